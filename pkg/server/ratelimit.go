package server

import (
	"sync"
	"time"
)

// RateLimiter tracks the last accepted action per network origin and rejects
// actions submitted inside a fixed cooldown window. The handshake and the
// post path each consult it independently.
type RateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	now    func() time.Time // replaced in tests
}

// NewRateLimiter creates a limiter with the given cooldown window.
func NewRateLimiter(window time.Duration) *RateLimiter {
	return &RateLimiter{
		window: window,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Allow checks and records an action for the origin. Inside the cooldown the
// action is rejected and the stored timestamp is left untouched, so back-off
// is measured from the last accepted action.
func (rl *RateLimiter) Allow(origin string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if last, ok := rl.last[origin]; ok && now.Sub(last) < rl.window {
		return false
	}

	rl.last[origin] = now
	return true
}

// Prune removes origins whose last accepted action is older than maxIdle and
// returns how many were removed. Keeps the mapping bounded by active origins.
func (rl *RateLimiter) Prune(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-maxIdle)
	removed := 0
	for origin, last := range rl.last {
		if last.Before(cutoff) {
			delete(rl.last, origin)
			removed++
		}
	}
	return removed
}
