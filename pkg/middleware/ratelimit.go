package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Kxd395/AxxessWebUI/pkg/auth"
	"github.com/Kxd395/AxxessWebUI/pkg/httputil"
	"github.com/Kxd395/AxxessWebUI/pkg/observability"
)

// MsgRateLimited is the detail returned with 429 responses
const MsgRateLimited = "Too many requests. Please wait a moment and try again."

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// BurstSize allows temporary bursts above the rate
	BurstSize int
}

// SigninRateLimitConfig allows perMinute attempts per client with a small burst
func SigninRateLimitConfig(perMinute int) *RateLimitConfig {
	if perMinute <= 0 {
		perMinute = 10
	}
	return &RateLimitConfig{
		RequestsPerWindow: perMinute,
		WindowDuration:    time.Minute,
		BurstSize:         perMinute / 2,
	}
}

// Limiter decides whether a request identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Config() *RateLimitConfig
}

// RateLimiter implements an in-process token bucket per key
type RateLimiter struct {
	config  *RateLimitConfig
	buckets map[string]*bucket
	mu      sync.Mutex
	now     func() time.Time
}

type bucket struct {
	tokens     int
	lastUpdate time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = SigninRateLimitConfig(0)
	}
	return &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (rl *RateLimiter) capacity() int {
	return rl.config.RequestsPerWindow + rl.config.BurstSize
}

// Config returns the limiter's configuration
func (rl *RateLimiter) Config() *RateLimitConfig {
	return rl.config
}

// Allow takes a token from key's bucket
func (rl *RateLimiter) Allow(_ context.Context, key string) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{tokens: rl.capacity(), lastUpdate: now}
		rl.buckets[key] = b
	}

	// Refill proportionally to elapsed time
	elapsed := now.Sub(b.lastUpdate)
	refill := int(elapsed.Seconds() * float64(rl.config.RequestsPerWindow) / rl.config.WindowDuration.Seconds())
	if refill > 0 {
		b.tokens = min(b.tokens+refill, rl.capacity())
		b.lastUpdate = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true, nil
	}
	return false, nil
}

// Remaining returns the number of remaining tokens for a key
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if b, ok := rl.buckets[key]; ok {
		return b.tokens
	}
	return rl.capacity()
}

// Cleanup removes buckets idle for two windows
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, b := range rl.buckets {
		if now.Sub(b.lastUpdate) > rl.config.WindowDuration*2 {
			delete(rl.buckets, key)
		}
	}
}

// StartCleanup runs Cleanup every window until ctx is done
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.config.WindowDuration)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RateLimitRecorder counts rejected requests
type RateLimitRecorder interface {
	RecordRateLimited(limiter string)
}

// RateLimitMiddleware limits requests per client IP
type RateLimitMiddleware struct {
	name     string
	limiter  Limiter
	recorder RateLimitRecorder
	logger   *observability.Logger
	// failOpen lets requests through when the limiter backend errors
	failOpen bool
}

// NewRateLimitMiddleware creates a rate limit middleware. name labels metrics
// and logs; recorder may be nil.
func NewRateLimitMiddleware(name string, limiter Limiter, recorder RateLimitRecorder, logger *observability.Logger) *RateLimitMiddleware {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &RateLimitMiddleware{
		name:     name,
		limiter:  limiter,
		recorder: recorder,
		logger:   logger.WithFields(map[string]interface{}{"component": "ratelimit", "limiter": name}),
		failOpen: true,
	}
}

// SetFailOpen controls whether to allow (true) or reject with 503 (false) on backend errors
func (m *RateLimitMiddleware) SetFailOpen(failOpen bool) {
	m.failOpen = failOpen
}

// Handler wraps an HTTP handler with rate limiting
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "ip:" + auth.ClientIP(r)
		cfg := m.limiter.Config()

		allowed, err := m.limiter.Allow(r.Context(), key)
		if err != nil {
			m.logger.WithError(err).Warn("rate limiter unavailable")
			if !m.failOpen {
				httputil.WriteServiceUnavailable(w, auth.MsgDefault)
				return
			}
			allowed = true
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.RequestsPerWindow))
		if !allowed {
			if m.recorder != nil {
				m.recorder.RecordRateLimited(m.name)
			}
			m.logger.WithField("client", key).Debug("request rate limited")
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", cfg.WindowDuration.Seconds()))
			httputil.WriteTooManyRequests(w, MsgRateLimited)
			return
		}

		next.ServeHTTP(w, r)
	})
}
