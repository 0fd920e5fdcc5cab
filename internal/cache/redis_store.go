// Package cache provides short-TTL memoization for branch-list and
// sync-status results (spec §5: "may be memoized with a short TTL (≤ 5
// seconds), invalidated by every mutation").
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements docengine.Cache over a Redis client. It never
// blocks a mutating operation: Set/Del failures are discarded here and
// never surfaced to the caller, because losing a memoized entry never loses
// correctness — it only costs a fresh read.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// NewRedisStore dials redisURL and verifies connectivity before returning.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{
		client:  client,
		prefix:  "docengine:",
		timeout: 2 * time.Second,
	}, nil
}

// NewRedisStoreWithClient builds a RedisStore from an existing client,
// primarily for tests that point a client at a miniredis instance.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "docengine:", timeout: 2 * time.Second}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

// Get returns the memoized value for key, if any entry exists and has not
// expired.
func (s *RedisStore) Get(key string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	value, err := s.client.Get(ctx, s.key(key)).Result()
	if err != nil {
		return "", false
	}
	return value, true
}

// Set memoizes value under key for ttl. A non-positive ttl is treated as an
// immediate delete, matching Redis's own EXPIRE semantics.
func (s *RedisStore) Set(key, value string, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if ttl <= 0 {
		s.client.Del(ctx, s.key(key))
		return
	}
	s.client.Set(ctx, s.key(key), value, ttl)
}

// Del removes any memoized entry for key.
func (s *RedisStore) Del(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.client.Del(ctx, s.key(key))
}

// Close closes the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks Redis reachability.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
