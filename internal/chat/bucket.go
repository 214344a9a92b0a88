package chat

import (
	"math"
	"time"
)

// tokenBucket is a lazily-refilled token bucket. Callers must hold the owning
// UserState's mutex.
type tokenBucket struct {
	capacity   float64
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time
}

func newTokenBucket(capacity, refillRate float64, now time.Time) tokenBucket {
	return tokenBucket{
		capacity:   capacity,
		refillRate: refillRate,
		tokens:     capacity,
		lastRefill: now,
	}
}

// refill credits tokens for the time elapsed since the last refill, capped at
// capacity. Runs on every check so the bucket never drifts.
func (b *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(b.capacity, b.tokens+elapsed*b.refillRate)
	b.lastRefill = now
}

// reserve refills and then takes a single admission token. Returns false
// without changing the balance when less than one token is available.
func (b *tokenBucket) reserve(now time.Time) bool {
	b.refill(now)
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// restore returns a previously reserved admission token.
func (b *tokenBucket) restore() {
	b.tokens = math.Min(b.capacity, b.tokens+1)
}

// settle converts the single reserved token into the real cost of a completed
// request. The balance may go negative; refill works it back up over time.
func (b *tokenBucket) settle(cost int) {
	b.tokens -= float64(cost) - 1
}
