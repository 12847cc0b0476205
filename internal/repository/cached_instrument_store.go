package repository

import (
	"context"
	"encoding/json"
	"time"

	"VNFlow/internal/domain/models"
	domrepo "VNFlow/internal/domain/repository"
	pkgcache "VNFlow/pkg/cache"
)

const (
	instrumentKeyPrefix = "instrument"
	universeKey         = "universe:active"
	universeTTL         = 15 * time.Minute
)

// CachedInstrumentStore wraps an InstrumentStore with a read-through
// cache. Metadata moves slowly (sector, exchange, market cap), so cache
// failures silently fall through to the inner store.
//
// Values are stored as JSON strings: the memory backend hands raw values
// back only for string destinations, so strings are the one shape every
// cache backend round-trips.
type CachedInstrumentStore struct {
	inner domrepo.InstrumentStore
	cache pkgcache.Service
	ttl   time.Duration
}

func NewCachedInstrumentStore(inner domrepo.InstrumentStore, c pkgcache.Service, ttl time.Duration) *CachedInstrumentStore {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &CachedInstrumentStore{inner: inner, cache: c, ttl: ttl}
}

func (s *CachedInstrumentStore) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	var raw string
	if err := s.cache.Get(ctx, key, &raw); err != nil || raw == "" {
		return false
	}
	return json.Unmarshal([]byte(raw), dest) == nil
}

func (s *CachedInstrumentStore) cacheSet(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, key, string(data), ttl)
}

func (s *CachedInstrumentStore) GetInstrument(ctx context.Context, symbol string) (*models.InstrumentMetadata, error) {
	key := pkgcache.GenerateKey(instrumentKeyPrefix, symbol)
	var cached models.InstrumentMetadata
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	m, err := s.inner.GetInstrument(ctx, symbol)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, key, m, s.ttl)
	return m, nil
}

// GetInstruments batch-reads metadata, going to the inner store only for
// symbols the cache cannot answer.
func (s *CachedInstrumentStore) GetInstruments(ctx context.Context, symbols []string) (map[string]*models.InstrumentMetadata, error) {
	keys := make([]string, len(symbols))
	for i, sym := range symbols {
		keys[i] = pkgcache.GenerateKey(instrumentKeyPrefix, sym)
	}

	hits, err := pkgcache.MGetTyped[models.InstrumentMetadata](ctx, s.cache, keys...)
	if err != nil {
		hits = nil // degraded cache, fetch everything
	}

	out := make(map[string]*models.InstrumentMetadata, len(symbols))
	missing := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if m, ok := hits[pkgcache.GenerateKey(instrumentKeyPrefix, sym)]; ok {
			cp := m
			out[sym] = &cp
			continue
		}
		missing = append(missing, sym)
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := s.inner.GetInstruments(ctx, missing)
	if err != nil {
		return nil, err
	}

	fill := make(map[string]interface{}, len(fetched))
	for sym, m := range fetched {
		out[sym] = m
		if data, merr := json.Marshal(m); merr == nil {
			fill[pkgcache.GenerateKey(instrumentKeyPrefix, sym)] = string(data)
		}
	}
	if len(fill) > 0 {
		_ = s.cache.MSet(ctx, fill, s.ttl)
	}
	return out, nil
}

func (s *CachedInstrumentStore) ListUniverse(ctx context.Context) ([]string, error) {
	var cached []string
	if s.cacheGet(ctx, universeKey, &cached) && len(cached) > 0 {
		return cached, nil
	}

	universe, err := s.inner.ListUniverse(ctx)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, universeKey, universe, universeTTL)
	return universe, nil
}

// Invalidate drops the cached universe and all cached metadata. The
// scheduled universe reload calls this before warming the cache again.
func (s *CachedInstrumentStore) Invalidate(ctx context.Context) error {
	if err := s.cache.Delete(ctx, universeKey); err != nil {
		return err
	}
	return s.cache.DeleteByPattern(ctx, pkgcache.BuildPattern(instrumentKeyPrefix+":"))
}

var _ domrepo.InstrumentStore = (*CachedInstrumentStore)(nil)
