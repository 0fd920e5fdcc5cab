package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Ping(t.Context()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestSetAndGet(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	store.Set("proj-1:sync-status", `{"ahead":1,"behind":0}`, 5*time.Second)

	value, ok := store.Get("proj-1:sync-status")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if value != `{"ahead":1,"behind":0}` {
		t.Errorf("unexpected value: %s", value)
	}
}

func TestGetExpired(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	store.Set("proj-1:branches", "[]", 1*time.Millisecond)
	s.FastForward(2 * time.Millisecond)

	if _, ok := store.Get("proj-1:branches"); ok {
		t.Error("expected cache miss after expiry")
	}
}

func TestGetMiss(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	if _, ok := store.Get("never-set"); ok {
		t.Error("expected cache miss for unset key")
	}
}

func TestDel(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	store.Set("proj-1:sync-status", "stale", 5*time.Second)
	store.Del("proj-1:sync-status")

	if _, ok := store.Get("proj-1:sync-status"); ok {
		t.Error("expected cache miss after delete")
	}
}

func TestSetWithNonPositiveTTLDeletes(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	store.Set("proj-1:sync-status", "value", 5*time.Second)
	store.Set("proj-1:sync-status", "value", 0)

	if _, ok := store.Get("proj-1:sync-status"); ok {
		t.Error("expected non-positive ttl to act as delete")
	}
}

func TestKeyIsolation(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	store.Set("proj-1:branches", "a", 5*time.Second)
	store.Set("proj-2:branches", "b", 5*time.Second)

	v1, _ := store.Get("proj-1:branches")
	v2, _ := store.Get("proj-2:branches")
	if v1 != "a" || v2 != "b" {
		t.Errorf("expected isolated keys, got %q and %q", v1, v2)
	}
}
