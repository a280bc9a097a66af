// Package cache provides small in-memory helpers shared by the broker
// adapters.
package cache

import (
	"sync"
	"time"
)

// RateLimiter is a keyed fixed-window request limiter. Each key (one per
// broker endpoint) gets its own window; stale windows are pruned inline
// on access, so the limiter needs no background goroutine.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	span    time.Duration
}

type window struct {
	count   int
	startAt time.Time
}

// NewRateLimiter allows up to limit calls per key within each span.
func NewRateLimiter(limit int, span time.Duration) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		span:    span,
	}
}

// Allow reports whether another call for key fits in the current window
// and counts it if so.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.pruneLocked(now)

	w, ok := r.windows[key]
	if !ok || now.Sub(w.startAt) > r.span {
		r.windows[key] = &window{count: 1, startAt: now}
		return true
	}

	if w.count < r.limit {
		w.count++
		return true
	}
	return false
}

// Reset forgets the window for key.
func (r *RateLimiter) Reset(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.windows, key)
}

func (r *RateLimiter) pruneLocked(now time.Time) {
	for key, w := range r.windows {
		if now.Sub(w.startAt) > 2*r.span {
			delete(r.windows, key)
		}
	}
}
