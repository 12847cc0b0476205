package cache

import (
	"container/list"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultMemoryTTL = 24 * time.Hour

// MemoryOption configures the in-process cache.
type MemoryOption func(*memorySettings)

type memorySettings struct {
	maxEntries int
	sweepEvery time.Duration
}

// WithMemoryMaxSize caps the number of live entries; the least recently
// used entry is evicted when the cap is hit.
func WithMemoryMaxSize(n int) MemoryOption {
	return func(s *memorySettings) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

// WithMemoryCleanup sets how often expired entries are swept out.
func WithMemoryCleanup(d time.Duration) MemoryOption {
	return func(s *memorySettings) {
		if d > 0 {
			s.sweepEvery = d
		}
	}
}

type memoryEntry struct {
	key      string
	value    interface{}
	deadline time.Time
}

// MemoryCache implements Service on a map with true LRU ordering. It backs
// single-process deployments and the L1 tier of the layered cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front is most recently used
	max     int

	sweeper *time.Ticker
	done    chan struct{}
}

// NewMemoryCache creates an in-process cache and starts its sweeper.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	s := &memorySettings{maxEntries: 1000, sweepEvery: 5 * time.Minute}
	for _, opt := range opts {
		opt(s)
	}

	mc := &MemoryCache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		max:     s.maxEntries,
		sweeper: time.NewTicker(s.sweepEvery),
		done:    make(chan struct{}),
	}
	go mc.sweep()
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = defaultMemoryTTL
	}
	deadline := time.Now().Add(ttl)

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if el, ok := mc.entries[key]; ok {
		ent := el.Value.(*memoryEntry)
		ent.value = value
		ent.deadline = deadline
		mc.order.MoveToFront(el)
		return nil
	}

	for len(mc.entries) >= mc.max {
		mc.evictOldest()
	}
	mc.entries[key] = mc.order.PushFront(&memoryEntry{key: key, value: value, deadline: deadline})
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	ent, ok := mc.live(key)
	if !ok {
		return ErrCacheMiss
	}

	switch d := dest.(type) {
	case *string:
		s, ok := ent.value.(string)
		if !ok {
			return fmt.Errorf("cache: entry %q is %T, not string", key, ent.value)
		}
		*d = s
	case *interface{}:
		*d = ent.value
	default:
		return fmt.Errorf("cache: unsupported destination %T", dest)
	}
	return nil
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		mc.remove(key)
	}
	return nil
}

// DeleteByPattern drops keys matching a trailing-wildcard pattern such as
// "instrument:*". Any other pattern shape clears the whole cache.
func (mc *MemoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	prefix, ok := strings.CutSuffix(pattern, "*")
	if !ok || strings.ContainsAny(prefix, "*?[") {
		mc.entries = make(map[string]*list.Element)
		mc.order.Init()
		return nil
	}
	for key := range mc.entries {
		if strings.HasPrefix(key, prefix) {
			mc.remove(key)
		}
	}
	return nil
}

func (mc *MemoryCache) MSet(ctx context.Context, values map[string]interface{}, ttl time.Duration) error {
	for key, value := range values {
		if err := mc.Set(ctx, key, value, ttl); err != nil {
			return err
		}
	}
	return nil
}

func (mc *MemoryCache) MGet(_ context.Context, keys ...string) (map[string]string, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	out := make(map[string]string, len(keys))
	for _, key := range keys {
		if ent, ok := mc.live(key); ok {
			if s, ok := ent.value.(string); ok {
				out[key] = s
			}
		}
	}
	return out, nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if _, held := mc.live(key); held {
		return false, nil
	}
	for len(mc.entries) >= mc.max {
		mc.evictOldest()
	}
	mc.entries[key] = mc.order.PushFront(&memoryEntry{key: key, value: "locked", deadline: time.Now().Add(ttl)})
	return true, nil
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

// Close stops the sweeper goroutine.
func (mc *MemoryCache) Close() error {
	mc.sweeper.Stop()
	select {
	case <-mc.done:
	default:
		close(mc.done)
	}
	return nil
}

// live returns the entry for key if present and unexpired, refreshing its
// LRU position. Expired entries are removed on sight. Callers hold mc.mu.
func (mc *MemoryCache) live(key string) (*memoryEntry, bool) {
	el, ok := mc.entries[key]
	if !ok {
		return nil, false
	}
	ent := el.Value.(*memoryEntry)
	if time.Now().After(ent.deadline) {
		mc.remove(key)
		return nil, false
	}
	mc.order.MoveToFront(el)
	return ent, true
}

func (mc *MemoryCache) remove(key string) {
	if el, ok := mc.entries[key]; ok {
		mc.order.Remove(el)
		delete(mc.entries, key)
	}
}

func (mc *MemoryCache) evictOldest() {
	back := mc.order.Back()
	if back == nil {
		return
	}
	mc.remove(back.Value.(*memoryEntry).key)
}

func (mc *MemoryCache) sweep() {
	for {
		select {
		case <-mc.done:
			return
		case <-mc.sweeper.C:
		}

		mc.mu.Lock()
		now := time.Now()
		for el := mc.order.Back(); el != nil; {
			prev := el.Prev()
			if ent := el.Value.(*memoryEntry); now.After(ent.deadline) {
				mc.remove(ent.key)
			}
			el = prev
		}
		mc.mu.Unlock()
	}
}

var _ Service = (*MemoryCache)(nil)
