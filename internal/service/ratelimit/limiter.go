package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per caller key. The budget rides along
// on each Allow call so endpoints with different limits can share the
// map; a bucket created under an old budget is retuned on its next use.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*rate.Limiter
}

func New() *Limiter {
	return &Limiter{buckets: make(map[string]*rate.Limiter)}
}

// Allow reports whether one request may pass for key, given a bucket of
// the stated capacity refilled at perSec tokens per second.
func (l *Limiter) Allow(key string, capacity, perSec float64) bool {
	lim := l.bucket(key, capacity, perSec)
	if lim.Limit() != rate.Limit(perSec) {
		lim.SetLimit(rate.Limit(perSec))
	}
	if b := int(capacity); lim.Burst() != b {
		lim.SetBurst(b)
	}
	return lim.Allow()
}

func (l *Limiter) bucket(key string, capacity, perSec float64) *rate.Limiter {
	l.mu.RLock()
	lim, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.buckets[key]; ok {
		return lim
	}
	lim = rate.NewLimiter(rate.Limit(perSec), int(capacity))
	l.buckets[key] = lim
	return lim
}
