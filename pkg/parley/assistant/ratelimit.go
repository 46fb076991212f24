package assistant

import (
	"sync"
	"time"
)

// RateLimiter enforces a per-scope cooldown between expensive augmentation
// operations. A scope is one guild (or one DM); the resource distinguishes
// search from other operations so one does not consume the other's window.
type RateLimiter struct {
	cooldown time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewRateLimiter creates a limiter with the given cooldown window.
func NewRateLimiter(cooldown time.Duration) *RateLimiter {
	return &RateLimiter{
		cooldown: cooldown,
		now:      time.Now,
		last:     make(map[string]time.Time),
	}
}

// TryAcquire reports whether the scope may perform the resource's operation
// now. A true return stamps the window immediately, before the caller acts,
// so under concurrency at most one caller per window sees true.
func (r *RateLimiter) TryAcquire(scopeKey, resource string) bool {
	key := scopeKey + "\x00" + resource
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if last, ok := r.last[key]; ok && now.Sub(last) < r.cooldown {
		return false
	}
	r.last[key] = now
	return true
}

// Prune drops window stamps older than maxAge so the map does not grow with
// every guild ever seen. Returns the number of entries removed.
func (r *RateLimiter) Prune(maxAge time.Duration) int {
	cutoff := r.now().Add(-maxAge)

	r.mu.Lock()
	defer r.mu.Unlock()

	pruned := 0
	for key, last := range r.last {
		if last.Before(cutoff) {
			delete(r.last, key)
			pruned++
		}
	}
	return pruned
}

// Remaining returns how long until the scope's window reopens. Zero means
// the next TryAcquire would succeed.
func (r *RateLimiter) Remaining(scopeKey, resource string) time.Duration {
	key := scopeKey + "\x00" + resource

	r.mu.Lock()
	defer r.mu.Unlock()

	last, ok := r.last[key]
	if !ok {
		return 0
	}
	rem := r.cooldown - r.now().Sub(last)
	if rem < 0 {
		return 0
	}
	return rem
}
