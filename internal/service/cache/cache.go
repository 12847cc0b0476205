package cache

import (
	"context"
	"time"
)

// BytesCache stores marshaled API responses. The second Get return
// distinguishes a miss from an empty payload.
type BytesCache interface {
	GetBytes(ctx context.Context, key string) (b []byte, ok bool, err error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
