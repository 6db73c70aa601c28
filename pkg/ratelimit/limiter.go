package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow checks if a request is allowed under the current rate limit
	Allow() bool
	// Wait blocks until the rate limit allows another request or ctx is done
	Wait(ctx context.Context) error
	// Reset resets the rate limiter state
	Reset()
}

// TokenBucket implements a token bucket rate limiter. Tokens accrue
// continuously at capacity per refillPeriod, so a bucket of 30 per minute
// admits one request every two seconds once the initial burst is spent.
type TokenBucket struct {
	capacity     float64
	tokens       float64
	refillPeriod time.Duration
	lastRefill   time.Time
	now          func() time.Time
	mu           sync.Mutex
}

// NewTokenBucket creates a new token bucket rate limiter
func NewTokenBucket(capacity int, refillPeriod time.Duration) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	return &TokenBucket{
		capacity:     float64(capacity),
		tokens:       float64(capacity),
		refillPeriod: refillPeriod,
		lastRefill:   time.Now(),
		now:          time.Now,
	}
}

// PerMinute returns a bucket admitting n requests per minute with a burst of one
func PerMinute(n int) *TokenBucket {
	if n < 1 {
		n = 1
	}
	tb := NewTokenBucket(n, time.Minute)
	tb.tokens = 1
	return tb
}

// Allow checks if a request can proceed
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is done
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		if tb.Allow() {
			return nil
		}

		timer := time.NewTimer(tb.untilNextToken())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Reset resets the token bucket to full capacity
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = tb.now()
}

func (tb *TokenBucket) untilNextToken() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	missing := 1 - tb.tokens
	if missing <= 0 || tb.refillPeriod <= 0 {
		return time.Millisecond
	}
	wait := time.Duration(missing / tb.capacity * float64(tb.refillPeriod))
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait
}

// refill adds tokens based on elapsed time; caller holds mu
func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill)
	if elapsed <= 0 {
		return
	}
	tb.lastRefill = now

	if tb.refillPeriod <= 0 {
		tb.tokens = tb.capacity
		return
	}
	tb.tokens += float64(elapsed) / float64(tb.refillPeriod) * tb.capacity
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
}
