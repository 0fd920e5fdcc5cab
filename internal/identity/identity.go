// Package identity resolves the bearer token on an incoming HTTP request to
// the commit identity (name and email) that write_document/create_file
// operations should attribute authorship to.
//
// Tokens are opaque, pre-shared strings configured per caller (a CI
// pipeline, an editor plugin, a human operator) and stored only as bcrypt
// hashes, the same technique the teacher used for password storage.
package identity

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"docrepo/internal/docengine"
)

// ErrUnknownToken is returned when no configured caller matches the
// presented bearer token.
var ErrUnknownToken = errors.New("identity: unknown or invalid token")

// Caller is a registered API token holder.
type Caller struct {
	Name        string
	Email       string
	HashedToken string // bcrypt hash of the caller's plaintext token
}

// Registry resolves bearer tokens to commit identities. Lookups are O(n) in
// the number of registered callers since bcrypt hashes are salted and can't
// be indexed directly; this is fine for the small, operator-managed token
// lists this system expects (tens, not millions).
type Registry struct {
	callers []Caller
}

// NewRegistry builds a Registry from plaintext tokens paired with the
// identity they should resolve to. The plaintext is hashed immediately and
// never retained.
func NewRegistry(entries []TokenEntry) (*Registry, error) {
	callers := make([]Caller, 0, len(entries))
	for _, e := range entries {
		hash, err := bcrypt.GenerateFromPassword([]byte(e.Token), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		callers = append(callers, Caller{
			Name:        e.Name,
			Email:       e.Email,
			HashedToken: string(hash),
		})
	}
	return &Registry{callers: callers}, nil
}

// TokenEntry is one operator-configured API token.
type TokenEntry struct {
	Token string `json:"token"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Resolve returns the docengine.Identity attached to the given bearer token.
func (r *Registry) Resolve(token string) (docengine.Identity, error) {
	if token == "" {
		return docengine.Identity{}, ErrUnknownToken
	}
	for _, c := range r.callers {
		if bcrypt.CompareHashAndPassword([]byte(c.HashedToken), []byte(token)) == nil {
			return docengine.Identity{Name: c.Name, Email: c.Email}, nil
		}
	}
	return docengine.Identity{}, ErrUnknownToken
}

type contextKey int

const callerContextKey contextKey = 0

// ContextWithCaller attaches a resolved identity to ctx so downstream
// handlers can read it back with CallerFromContext.
func ContextWithCaller(ctx context.Context, id docengine.Identity) context.Context {
	return context.WithValue(ctx, callerContextKey, id)
}

// CallerFromContext returns the identity attached by ContextWithCaller, if
// any.
func CallerFromContext(ctx context.Context) (docengine.Identity, bool) {
	id, ok := ctx.Value(callerContextKey).(docengine.Identity)
	return id, ok
}
