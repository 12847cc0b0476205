package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOption configures the Redis backend.
type RedisOption func(*redisSettings)

type redisSettings struct {
	host     string
	port     int
	password string
	db       int
	poolSize int
	prefix   string
}

// WithRedisHost sets the server host.
func WithRedisHost(host string) RedisOption {
	return func(s *redisSettings) { s.host = host }
}

// WithRedisPort sets the server port.
func WithRedisPort(port int) RedisOption {
	return func(s *redisSettings) { s.port = port }
}

// WithRedisPassword sets the AUTH password.
func WithRedisPassword(password string) RedisOption {
	return func(s *redisSettings) { s.password = password }
}

// WithRedisDB selects the logical database.
func WithRedisDB(db int) RedisOption {
	return func(s *redisSettings) { s.db = db }
}

// WithRedisPool sets the connection pool size.
func WithRedisPool(size int) RedisOption {
	return func(s *redisSettings) { s.poolSize = size }
}

// WithRedisPrefix namespaces every key this cache touches.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *redisSettings) { s.prefix = prefix }
}

// RedisCache implements Service on a shared Redis connection. All keys are
// namespaced under the configured prefix so several deployments can share
// one server.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache dials Redis and verifies the connection.
func NewRedisCache(opts ...RedisOption) (*RedisCache, error) {
	s := &redisSettings{host: "localhost", port: 6379, poolSize: 10}
	for _, opt := range opts {
		opt(s)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(s.host, strconv.Itoa(s.port)),
		Password: s.password,
		DB:       s.db,
		PoolSize: s.poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisCache{client: client, prefix: s.prefix}, nil
}

// Client exposes the underlying connection for components that need raw
// Redis commands, such as the job queue.
func (rc *RedisCache) Client() *redis.Client { return rc.client }

func (rc *RedisCache) Close() error { return rc.client.Close() }

func (rc *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encodeValue(value)
	if err != nil {
		return err
	}
	return rc.client.Set(ctx, rc.key(key), data, ttl).Err()
}

func (rc *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := rc.client.Get(ctx, rc.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return err
	}

	if sp, ok := dest.(*string); ok {
		*sp = string(data)
		return nil
	}
	return json.Unmarshal(data, dest)
}

func (rc *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return rc.client.Unlink(ctx, rc.keys(keys)...).Err()
}

// DeleteByPattern removes every key matching the glob pattern. It walks
// the keyspace with SCAN so large caches do not stall the server the way
// KEYS would.
func (rc *RedisCache) DeleteByPattern(ctx context.Context, pattern string) error {
	iter := rc.client.Scan(ctx, 0, rc.key(pattern), 200).Iterator()

	batch := make([]string, 0, 200)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := rc.client.Unlink(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return rc.client.Unlink(ctx, batch...).Err()
	}
	return nil
}

func (rc *RedisCache) MSet(ctx context.Context, values map[string]interface{}, ttl time.Duration) error {
	if len(values) == 0 {
		return nil
	}

	pipe := rc.client.Pipeline()
	for key, value := range values {
		data, err := encodeValue(value)
		if err != nil {
			return err
		}
		pipe.Set(ctx, rc.key(key), data, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (rc *RedisCache) MGet(ctx context.Context, keys ...string) (map[string]string, error) {
	if len(keys) == 0 {
		return map[string]string{}, nil
	}

	vals, err := rc.client.MGet(ctx, rc.keys(keys)...).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(keys))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[keys[i]] = s
		}
	}
	return out, nil
}

func (rc *RedisCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return rc.client.SetNX(ctx, rc.key(key), "1", ttl).Result()
}

func (rc *RedisCache) Unlock(ctx context.Context, key string) error {
	return rc.client.Del(ctx, rc.key(key)).Err()
}

func (rc *RedisCache) key(k string) string {
	if rc.prefix == "" {
		return k
	}
	return rc.prefix + ":" + k
}

func (rc *RedisCache) keys(ks []string) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = rc.key(k)
	}
	return out
}

func encodeValue(value interface{}) ([]byte, error) {
	if s, ok := value.(string); ok {
		return []byte(s), nil
	}
	return json.Marshal(value)
}

var _ Service = (*RedisCache)(nil)
