package p2p

import (
	"sync"
	"time"
)

type tokenBucket struct {
	tokens float64
	last   time.Time
}

func (b *tokenBucket) allow(now time.Time, rate float64, burst float64, cost float64) bool {
	if b.last.IsZero() {
		b.last = now
		b.tokens = burst
	}
	elapsed := now.Sub(b.last).Seconds()
	b.last = now

	// refill
	b.tokens += elapsed * rate
	if b.tokens > burst {
		b.tokens = burst
	}
	if b.tokens < cost {
		return false
	}
	b.tokens -= cost
	return true
}

// sourceLimiter keeps one bucket per source address.
type sourceLimiter struct {
	rate  float64
	burst float64

	mu      sync.Mutex
	buckets map[string]*tokenBucket
}

const (
	limiterSweepAt = 4096
	limiterIdle    = time.Minute
)

func newSourceLimiter(rate, burst float64) *sourceLimiter {
	return &sourceLimiter{
		rate:    rate,
		burst:   burst,
		buckets: make(map[string]*tokenBucket),
	}
}

func (l *sourceLimiter) allow(src string, now time.Time) bool {
	if l == nil || l.rate <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.buckets[src]
	if b == nil {
		if len(l.buckets) >= limiterSweepAt {
			l.sweep(now)
		}
		b = &tokenBucket{}
		l.buckets[src] = b
	}
	return b.allow(now, l.rate, l.burst, 1)
}

// sweep drops buckets idle long enough to have refilled completely.
func (l *sourceLimiter) sweep(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.last) > limiterIdle {
			delete(l.buckets, k)
		}
	}
}
