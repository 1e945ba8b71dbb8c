package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingLimited struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingLimited) RecordRateLimited(limiter string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[limiter]++
}

func newTestLimiter(perWindow, burst int) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: perWindow,
		WindowDuration:    time.Minute,
		BurstSize:         burst,
	})
	limiter.now = clock.Now
	return limiter, clock
}

func TestRateLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	limiter, clock := newTestLimiter(10, 2)

	allowed := 0
	for range 20 {
		ok, err := limiter.Allow(ctx, "ip:1.2.3.4")
		require.NoError(t, err)
		if ok {
			allowed++
		}
	}
	assert.Equal(t, 12, allowed)

	ok, _ := limiter.Allow(ctx, "ip:5.6.7.8")
	assert.True(t, ok, "other clients have their own bucket")

	clock.Advance(6 * time.Second)
	ok, _ = limiter.Allow(ctx, "ip:1.2.3.4")
	assert.True(t, ok, "a token refills after a tenth of the window")
	ok, _ = limiter.Allow(ctx, "ip:1.2.3.4")
	assert.False(t, ok)
}

func TestRateLimiter_RemainingAndCleanup(t *testing.T) {
	ctx := context.Background()
	limiter, clock := newTestLimiter(5, 0)

	assert.Equal(t, 5, limiter.Remaining("k"))
	_, _ = limiter.Allow(ctx, "k")
	assert.Equal(t, 4, limiter.Remaining("k"))

	clock.Advance(3 * time.Minute)
	limiter.Cleanup()
	limiter.mu.Lock()
	assert.Empty(t, limiter.buckets)
	limiter.mu.Unlock()
}

func TestDistributedRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	limiter := NewDistributedRateLimiter(client, &RateLimitConfig{
		RequestsPerWindow: 3,
		WindowDuration:    time.Minute,
	}, "webui:signin")

	for i := range 3 {
		ok, err := limiter.Allow(ctx, "ip:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i+1)
	}
	ok, err := limiter.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok)

	remaining, err := limiter.Remaining(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	ttl, err := limiter.TTL(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)

	mr.FastForward(time.Minute)
	ok, err = limiter.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok, "a new window starts after expiry")

	require.NoError(t, limiter.Reset(ctx, "ip:1.2.3.4"))
	remaining, err = limiter.Remaining(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter, _ := newTestLimiter(1, 0)
	recorder := &countingLimited{}
	mw := NewRateLimitMiddleware("signin", limiter, recorder, nil)

	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auths/signin", nil)
		req.RemoteAddr = ip + ":4242"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1").Code)

	rec := send("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"detail":"`+MsgRateLimited+`"}`, rec.Body.String())

	assert.Equal(t, http.StatusOK, send("10.0.0.2").Code)
	assert.Equal(t, 1, recorder.counts["signin"])
}

func TestRateLimitMiddleware_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	limiter := NewDistributedRateLimiter(client, SigninRateLimitConfig(5), "")
	mw := NewRateLimitMiddleware("signin", limiter, nil, nil)
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/signin", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "fails open by default")

	mw.SetFailOpen(false)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/signin", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
