package identity

import (
	"context"
	"testing"
)

func TestRegistry_ResolveKnownToken(t *testing.T) {
	reg, err := NewRegistry([]TokenEntry{
		{Token: "ci-token-one", Name: "CI Pipeline", Email: "ci@example.com"},
		{Token: "ci-token-two", Name: "Jamie", Email: "jamie@example.com"},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	id, err := reg.Resolve("ci-token-two")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id.Name != "Jamie" || id.Email != "jamie@example.com" {
		t.Fatalf("resolved identity = %+v", id)
	}
}

func TestRegistry_ResolveUnknownToken(t *testing.T) {
	reg, err := NewRegistry([]TokenEntry{
		{Token: "ci-token-one", Name: "CI Pipeline", Email: "ci@example.com"},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	if _, err := reg.Resolve("not-a-real-token"); err != ErrUnknownToken {
		t.Fatalf("err = %v, want ErrUnknownToken", err)
	}
}

func TestRegistry_ResolveEmptyToken(t *testing.T) {
	reg, err := NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if _, err := reg.Resolve(""); err != ErrUnknownToken {
		t.Fatalf("err = %v, want ErrUnknownToken", err)
	}
}

func TestContextWithCaller_RoundTrip(t *testing.T) {
	reg, _ := NewRegistry([]TokenEntry{{Token: "t", Name: "Avery", Email: "avery@example.com"}})
	id, err := reg.Resolve("t")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	ctx := ContextWithCaller(context.Background(), id)
	got, ok := CallerFromContext(ctx)
	if !ok {
		t.Fatal("expected caller present in context")
	}
	if got != id {
		t.Fatalf("got %+v, want %+v", got, id)
	}
}
