// Package ratelimit bounds how fast a single relay connection may send.
package ratelimit

import (
	"sync"
	"time"

	"github.com/BioHazard786/Huddle/backend/internal/clock"
)

// TokenBucket refills at a fixed rate of tokens per second up to a burst
// capacity. Time comes from the injected clock.
type TokenBucket struct {
	mu sync.Mutex

	clock clock.Clock

	capacity float64
	rate     float64
	tokens   float64
	last     time.Time
}

// NewTokenBucket returns a full bucket. A nil clock means wall time.
func NewTokenBucket(c clock.Clock, capacity, perSecond int) *TokenBucket {
	if c == nil {
		c = clock.RealClock{}
	}
	if capacity < 0 {
		capacity = 0
	}
	if perSecond < 0 {
		perSecond = 0
	}
	return &TokenBucket{
		clock:    c,
		capacity: float64(capacity),
		rate:     float64(perSecond),
		tokens:   float64(capacity),
		last:     c.Now(),
	}
}

// Allow takes one token if available.
func (b *TokenBucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	if now.After(b.last) {
		b.tokens += now.Sub(b.last).Seconds() * b.rate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
	}
	// Time going backwards only moves the reference point.
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
