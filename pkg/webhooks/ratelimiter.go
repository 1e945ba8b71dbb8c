package webhooks

import (
	"sync"
	"time"
)

// RateLimiter caps deliveries per target with a token bucket per key
type RateLimiter struct {
	mutex        sync.Mutex
	buckets      map[string]*tokenBucket
	maxTokens    int
	refillPeriod time.Duration
	now          func() time.Time
}

type tokenBucket struct {
	tokens     int
	lastRefill time.Time
}

// NewRateLimiter allows maxRequests per period for each key. A
// non-positive maxRequests disables limiting.
func NewRateLimiter(maxRequests int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets:      make(map[string]*tokenBucket),
		maxTokens:    maxRequests,
		refillPeriod: period,
		now:          time.Now,
	}
}

// Allow takes a token for key if one is available
func (rl *RateLimiter) Allow(key string) bool {
	if rl.maxTokens <= 0 {
		return true
	}

	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	bucket, exists := rl.buckets[key]
	if !exists {
		bucket = &tokenBucket{tokens: rl.maxTokens, lastRefill: now}
		rl.buckets[key] = bucket
	}

	// One token per elapsed period
	if elapsed := now.Sub(bucket.lastRefill); elapsed >= rl.refillPeriod {
		periods := int(elapsed / rl.refillPeriod)
		bucket.tokens = min(bucket.tokens+periods, rl.maxTokens)
		bucket.lastRefill = bucket.lastRefill.Add(time.Duration(periods) * rl.refillPeriod)
	}

	if bucket.tokens > 0 {
		bucket.tokens--
		return true
	}
	return false
}

// Remaining returns the tokens left for key
func (rl *RateLimiter) Remaining(key string) int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	bucket, exists := rl.buckets[key]
	if !exists {
		return rl.maxTokens
	}
	return bucket.tokens
}
