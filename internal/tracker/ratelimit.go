package tracker

import (
	"context"
	"sync"
	"time"
)

// RateLimiter enforces a minimum delay between outgoing requests. The
// external search API has no formal rate limit but throttling is expected;
// the delay between keyword lookups is mandatory, not an accident of the
// sequential loop.
type RateLimiter struct {
	mu       sync.Mutex
	lastCall time.Time
	delay    time.Duration
}

// NewRateLimiter creates a limiter with the given inter-request delay.
func NewRateLimiter(delay time.Duration) *RateLimiter {
	return &RateLimiter{delay: delay}
}

// Wait blocks until enough time has passed since the last request, or until
// the context is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	now := time.Now()
	remaining := r.delay - now.Sub(r.lastCall)
	if remaining < 0 {
		remaining = 0
	}
	r.lastCall = now.Add(remaining)
	r.mu.Unlock()

	if remaining == 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
