// Package ratelimit throttles job submission per job type with token buckets.
package ratelimit

import (
	"sort"
	"sync"
	"time"

	"github.com/taskline/taskline/internal/metrics"
)

// Rate describes a token bucket: Burst tokens at most, refilled at
// PerSecond. A zero value on either field disables limiting.
type Rate struct {
	Burst     float64 `json:"burst" yaml:"burst"`
	PerSecond float64 `json:"per_second" yaml:"per_second"`
}

func (r Rate) enabled() bool {
	return r.Burst > 0 && r.PerSecond > 0
}

// TokenBucket implements a token bucket rate limiter
type TokenBucket struct {
	mu         sync.Mutex
	rate       Rate
	tokens     float64
	lastRefill time.Time
	now        func() time.Time
}

// NewTokenBucket creates a full bucket.
func NewTokenBucket(rate Rate) *TokenBucket {
	return newTokenBucket(rate, time.Now)
}

func newTokenBucket(rate Rate, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		rate:       rate,
		tokens:     rate.Burst,
		lastRefill: now(),
		now:        now,
	}
}

// Allow takes one token if available.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if !tb.rate.enabled() {
		return true
	}

	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// refill adds tokens based on elapsed time
func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()

	tb.tokens += elapsed * tb.rate.PerSecond
	if tb.tokens > tb.rate.Burst {
		tb.tokens = tb.rate.Burst
	}
	tb.lastRefill = now
}

// SetRate changes the bucket parameters, keeping tokens already earned
// up to the new burst.
func (tb *TokenBucket) SetRate(rate Rate) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill() // settle at the old rate first
	tb.rate = rate
	if tb.tokens > rate.Burst {
		tb.tokens = rate.Burst
	}
}

// Rate returns the current parameters.
func (tb *TokenBucket) Rate() Rate {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.rate
}

// Tokens returns the tokens available right now.
func (tb *TokenBucket) Tokens() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return tb.tokens
}

// Limiter holds one bucket per job type. Types without a bucket are
// never limited.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*TokenBucket
	now     func() time.Time
}

// NewLimiter creates a limiter seeded with the given per-type rates.
func NewLimiter(rates map[string]Rate) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*TokenBucket),
		now:     time.Now,
	}
	for jobType, r := range rates {
		l.SetRate(jobType, r)
	}
	return l
}

// Allow reports whether a job of jobType may be enqueued now.
func (l *Limiter) Allow(jobType string) bool {
	l.mu.RLock()
	bucket, exists := l.buckets[jobType]
	l.mu.RUnlock()

	if !exists || bucket.Allow() {
		return true
	}
	metrics.RateLimitRejections.WithLabelValues(jobType).Inc()
	return false
}

// SetRate installs or updates the limit for jobType.
func (l *Limiter) SetRate(jobType string, rate Rate) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if bucket, exists := l.buckets[jobType]; exists {
		bucket.SetRate(rate)
		return
	}
	l.buckets[jobType] = newTokenBucket(rate, l.now)
}

// Remove drops the limit for jobType.
func (l *Limiter) Remove(jobType string) {
	l.mu.Lock()
	delete(l.buckets, jobType)
	l.mu.Unlock()
}

// GetRate returns the limit for jobType, if any.
func (l *Limiter) GetRate(jobType string) (Rate, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	bucket, exists := l.buckets[jobType]
	if !exists {
		return Rate{}, false
	}
	return bucket.Rate(), true
}

// Tokens returns available tokens for jobType, or -1 when unlimited.
func (l *Limiter) Tokens(jobType string) float64 {
	l.mu.RLock()
	bucket, exists := l.buckets[jobType]
	l.mu.RUnlock()

	if !exists {
		return -1
	}
	return bucket.Tokens()
}

// Types lists the job types that have a limit, sorted.
func (l *Limiter) Types() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, 0, len(l.buckets))
	for t := range l.buckets {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
