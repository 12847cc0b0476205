package cache

import (
	"context"
	"time"
)

// LayeredOption configures the two-tier cache.
type LayeredOption func(*layeredSettings)

type layeredSettings struct {
	l1Size int
	l1TTL  time.Duration
}

// WithLayeredMemorySize caps the L1 tier.
func WithLayeredMemorySize(n int) LayeredOption {
	return func(s *layeredSettings) {
		if n > 0 {
			s.l1Size = n
		}
	}
}

// WithLayeredMemoryTTL bounds how long an L1 copy may outlive the Redis
// entry it shadows.
func WithLayeredMemoryTTL(d time.Duration) LayeredOption {
	return func(s *layeredSettings) {
		if d > 0 {
			s.l1TTL = d
		}
	}
}

// LayeredCache fronts Redis with a small in-process LRU. Reads consult
// memory first; writes go through to Redis so other instances see them.
// L1 copies carry their own short TTL, so an entry changed by another
// instance is stale here for at most that long.
type LayeredCache struct {
	l1    *MemoryCache
	l2    *RedisCache
	l1TTL time.Duration
}

// NewLayeredCache wraps an existing Redis cache with an L1 tier.
func NewLayeredCache(l2 *RedisCache, opts ...LayeredOption) *LayeredCache {
	s := &layeredSettings{l1Size: 1000, l1TTL: time.Minute}
	for _, opt := range opts {
		opt(s)
	}
	return &LayeredCache{
		l1:    NewMemoryCache(WithMemoryMaxSize(s.l1Size)),
		l2:    l2,
		l1TTL: s.l1TTL,
	}
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := lc.l2.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	_ = lc.l1.Set(ctx, key, value, lc.capTTL(ttl))
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if lc.l1.Get(ctx, key, dest) == nil {
		return nil
	}

	if err := lc.l2.Get(ctx, key, dest); err != nil {
		return err
	}
	// Refill L1. Only string payloads are refilled: dereferencing dest is
	// only safe for the one shape every backend round-trips.
	if sp, ok := dest.(*string); ok {
		_ = lc.l1.Set(ctx, key, *sp, lc.l1TTL)
	}
	return nil
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.l1.Delete(ctx, keys...)
	return lc.l2.Delete(ctx, keys...)
}

func (lc *LayeredCache) DeleteByPattern(ctx context.Context, pattern string) error {
	_ = lc.l1.DeleteByPattern(ctx, pattern)
	return lc.l2.DeleteByPattern(ctx, pattern)
}

func (lc *LayeredCache) MSet(ctx context.Context, values map[string]interface{}, ttl time.Duration) error {
	if err := lc.l2.MSet(ctx, values, ttl); err != nil {
		return err
	}
	_ = lc.l1.MSet(ctx, values, lc.capTTL(ttl))
	return nil
}

func (lc *LayeredCache) MGet(ctx context.Context, keys ...string) (map[string]string, error) {
	out, _ := lc.l1.MGet(ctx, keys...)
	if len(out) == len(keys) {
		return out, nil
	}

	missing := make([]string, 0, len(keys)-len(out))
	for _, key := range keys {
		if _, ok := out[key]; !ok {
			missing = append(missing, key)
		}
	}

	fetched, err := lc.l2.MGet(ctx, missing...)
	if err != nil {
		return nil, err
	}
	for key, val := range fetched {
		out[key] = val
		_ = lc.l1.Set(ctx, key, val, lc.l1TTL)
	}
	return out, nil
}

// TryLock always goes to Redis: a lock held only in process memory cannot
// exclude other instances.
func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return lc.l2.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key string) error {
	return lc.l2.Unlock(ctx, key)
}

func (lc *LayeredCache) Close() error {
	_ = lc.l1.Close()
	return lc.l2.Close()
}

func (lc *LayeredCache) capTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > lc.l1TTL {
		return lc.l1TTL
	}
	return ttl
}

var _ Service = (*LayeredCache)(nil)
