package cache

import (
	"context"
	"sync"
	"time"
)

type ttlEntry struct {
	data     []byte
	deadline time.Time
}

// TTLCache is the in-process response cache used when Redis is not
// deployed. Entries expire lazily on read; a counter-driven purge keeps
// the map from accumulating dead entries under churn.
type TTLCache struct {
	mu      sync.Mutex
	entries map[string]ttlEntry
	writes  int
}

func NewTTLCache() *TTLCache {
	return &TTLCache{entries: make(map[string]ttlEntry)}
}

func (c *TTLCache) GetBytes(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.deadline.IsZero() && time.Now().After(e.deadline) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return e.data, true, nil
}

func (c *TTLCache) SetBytes(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var deadline time.Time
	if ttl > 0 {
		deadline = time.Now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = ttlEntry{data: value, deadline: deadline}
	if c.writes++; c.writes >= 256 {
		c.writes = 0
		c.purgeLocked()
	}
	return nil
}

func (c *TTLCache) purgeLocked() {
	now := time.Now()
	for key, e := range c.entries {
		if !e.deadline.IsZero() && now.After(e.deadline) {
			delete(c.entries, key)
		}
	}
}

var _ BytesCache = (*TTLCache)(nil)
