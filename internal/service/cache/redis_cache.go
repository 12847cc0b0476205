package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBytes backs the response cache with Redis so all instances behind a
// load balancer share one set of cached responses. It borrows the
// connection pool owned by the application cache rather than dialing its
// own.
type RedisBytes struct {
	cli    *redis.Client
	prefix string
}

func NewRedisBytes(cli *redis.Client, prefix string) *RedisBytes {
	return &RedisBytes{cli: cli, prefix: prefix}
}

func (r *RedisBytes) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.cli.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (r *RedisBytes) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.cli.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *RedisBytes) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

var _ BytesCache = (*RedisBytes)(nil)
