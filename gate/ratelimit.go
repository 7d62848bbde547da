package gate

import (
	"sync"
	"time"
)

// RateLimiter throttles request volume per identifier, independent of risk
// tier. A denial is a normal decision outcome, not an error.
type RateLimiter interface {
	Allow(identifier string) bool
}

const (
	defaultBucketRetention = time.Hour
	defaultSweepInterval   = 5 * time.Minute
)

type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	lastUsed   time.Time
}

// TokenBucketLimiter is a lazy per-identifier token bucket. New identifiers
// start with zero tokens, so a fresh identifier must accrue at least one
// token before its first request is allowed; there is no free initial burst.
//
// The map lock is never held across a bucket's refill+consume sequence, so
// distinct identifiers do not contend with each other.
type TokenBucketLimiter struct {
	capacity  float64
	refillPer float64 // tokens per second
	retention time.Duration
	sweepMin  time.Duration
	now       func() time.Time

	mu        sync.Mutex
	buckets   map[string]*tokenBucket
	lastSweep time.Time
}

type LimiterOption func(*TokenBucketLimiter)

// WithLimiterClock replaces the wall clock, for tests.
func WithLimiterClock(now func() time.Time) LimiterOption {
	return func(l *TokenBucketLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithBucketRetention sets how long an idle bucket survives before the
// sweep drops it.
func WithBucketRetention(retention, sweepInterval time.Duration) LimiterOption {
	return func(l *TokenBucketLimiter) {
		if retention > 0 {
			l.retention = retention
		}
		if sweepInterval > 0 {
			l.sweepMin = sweepInterval
		}
	}
}

func NewTokenBucketLimiter(capacity, refillPerSecond float64, opts ...LimiterOption) *TokenBucketLimiter {
	if capacity < 0 {
		capacity = 0
	}
	if refillPerSecond < 0 {
		refillPerSecond = 0
	}
	l := &TokenBucketLimiter{
		capacity:  capacity,
		refillPer: refillPerSecond,
		retention: defaultBucketRetention,
		sweepMin:  defaultSweepInterval,
		now:       time.Now,
		buckets:   make(map[string]*tokenBucket),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastSweep = l.now()
	return l
}

func (l *TokenBucketLimiter) Allow(identifier string) bool {
	now := l.now()
	b := l.bucket(identifier, now)

	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * l.refillPer
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.lastRefill = now
	}
	b.lastUsed = now

	if b.tokens >= 1 {
		b.tokens -= 1
		return true
	}
	return false
}

func (l *TokenBucketLimiter) bucket(identifier string, now time.Time) *tokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.sweepMin {
		l.sweepLocked(now)
		l.lastSweep = now
	}

	b, ok := l.buckets[identifier]
	if !ok {
		b = &tokenBucket{lastRefill: now, lastUsed: now}
		l.buckets[identifier] = b
	}
	return b
}

func (l *TokenBucketLimiter) sweepLocked(now time.Time) {
	for id, b := range l.buckets {
		b.mu.Lock()
		idle := now.Sub(b.lastUsed)
		b.mu.Unlock()
		if idle > l.retention {
			delete(l.buckets, id)
		}
	}
}
