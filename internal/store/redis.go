package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisCommander interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// RedisStore keeps state in Redis so multiple hosts share sessions and
// dedup marks.
type RedisStore struct {
	client    redisCommander
	closeFn   func() error
	namespace string
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client redis.UniversalClient, namespace string) *RedisStore {
	closeFn := func() error { return nil }
	if client != nil {
		closeFn = client.Close
	}
	return newRedisStoreFromCommander(client, closeFn, namespace)
}

func newRedisStoreFromCommander(client redisCommander, closeFn func() error, namespace string) *RedisStore {
	if namespace == "" {
		namespace = "lrtool"
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return &RedisStore{
		client:    client,
		closeFn:   closeFn,
		namespace: namespace,
	}
}

// Put stores value as JSON under key.
func (s *RedisStore) Put(ctx context.Context, key string, value any) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis store is not initialized")
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value for %s: %w", key, err)
	}
	if err := s.client.Set(ctx, s.prefixed(key), encoded, 0).Err(); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Get loads the JSON value under key into out.
func (s *RedisStore) Get(ctx context.Context, key string, out any) (bool, error) {
	if s == nil || s.client == nil {
		return false, fmt.Errorf("redis store is not initialized")
	}
	raw, err := s.client.Get(ctx, s.prefixed(key)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

// MarkOnce records key with a TTL using SETNX semantics.
func (s *RedisStore) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if s == nil || s.client == nil {
		return false, fmt.Errorf("redis store is not initialized")
	}
	if ttl <= 0 {
		return true, nil
	}
	first, err := s.client.SetNX(ctx, s.prefixed("seen:"+key), time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark %s: %w", key, err)
	}
	return first, nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

func (s *RedisStore) prefixed(suffix string) string {
	return s.namespace + ":" + suffix
}
