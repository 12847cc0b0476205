package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrCacheMiss reports that a key is absent or expired.
var ErrCacheMiss = errors.New("cache: key not found")

// Service is the cache contract shared by the Redis, memory, and layered
// backends. Values round-trip as strings: callers store JSON text and read
// it back through a *string destination, which every backend supports.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
	MSet(ctx context.Context, values map[string]interface{}, ttl time.Duration) error
	MGet(ctx context.Context, keys ...string) (map[string]string, error)

	// TryLock takes a best-effort distributed lock. It never blocks; the
	// lock falls open on its own once ttl passes.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error

	Close() error
}

// MGetTyped batch-reads keys and unmarshals each hit into T. Keys that are
// absent or hold invalid JSON are left out of the result rather than
// failing the whole batch.
func MGetTyped[T any](ctx context.Context, c Service, keys ...string) (map[string]T, error) {
	if len(keys) == 0 {
		return map[string]T{}, nil
	}

	raw, err := c.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}

	out := make(map[string]T, len(raw))
	for key, text := range raw {
		var v T
		if json.Unmarshal([]byte(text), &v) != nil {
			continue
		}
		out[key] = v
	}
	return out, nil
}
