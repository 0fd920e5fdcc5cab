package docengine

import "context"

type identityContextKey struct{}

// ContextWithIdentity attaches a caller-resolved commit identity to ctx. The
// Commit Engine uses it in place of the repository-level default (spec
// §4.4 step 7) for writes made with this context, letting an HTTP layer
// attribute a commit to the authenticated caller without reopening the
// repository per request.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

func identityFromContext(ctx context.Context) *Identity {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok {
		return nil
	}
	return &id
}
