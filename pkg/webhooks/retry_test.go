package webhooks

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestNewRetryPolicy_Defaults(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{
		MaxAttempts:       -1,
		InitialDelay:      0,
		MaxDelay:          -time.Minute,
		BackoffMultiplier: 1.0,
	})

	defaults := DefaultRetryConfig()
	if policy.config != defaults {
		t.Errorf("Expected defaults %+v, got %+v", defaults, policy.config)
	}
}

func TestNewRetryPolicy_KeepsValidValues(t *testing.T) {
	config := RetryConfig{
		MaxAttempts:       7,
		InitialDelay:      2 * time.Second,
		MaxDelay:          time.Minute,
		BackoffMultiplier: 3.0,
	}
	policy := NewRetryPolicy(config)

	if policy.config != config {
		t.Errorf("Expected %+v, got %+v", config, policy.config)
	}
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		MaxDelay:          time.Minute,
		BackoffMultiplier: 2.0,
	})
	transient := errors.New("connection refused")

	tests := []struct {
		name     string
		attempts int
		err      error
		want     bool
	}{
		{"no error", 1, nil, false},
		{"transport error", 1, transient, true},
		{"transport error second attempt", 2, transient, true},
		{"at max attempts", 3, transient, false},
		{"beyond max attempts", 4, transient, false},
		{"server error", 1, &StatusError{StatusCode: 503}, true},
		{"wrapped server error", 1, fmt.Errorf("send: %w", &StatusError{StatusCode: 500}), true},
		{"bad request is final", 1, &StatusError{StatusCode: 400}, false},
		{"not found is final", 1, &StatusError{StatusCode: 404}, false},
		{"request timeout", 1, &StatusError{StatusCode: 408}, true},
		{"too many requests", 1, &StatusError{StatusCode: 429}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.ShouldRetry(tt.attempts, tt.err); got != tt.want {
				t.Errorf("ShouldRetry(%d, %v) = %v, want %v", tt.attempts, tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryPolicy_NextRetryDelay(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{
		MaxAttempts:       10,
		InitialDelay:      time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
	})

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second}, // capped
		{9, 10 * time.Second},
	}

	for _, tt := range tests {
		if got := policy.NextRetryDelay(tt.attempts); got != tt.want {
			t.Errorf("NextRetryDelay(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("Expected first two requests to be allowed")
	}
	if rl.Allow("a") {
		t.Error("Expected third request to be rejected")
	}
	if !rl.Allow("b") {
		t.Error("Expected separate key to have its own bucket")
	}
	if rl.Remaining("a") != 0 {
		t.Errorf("Expected 0 remaining, got %d", rl.Remaining("a"))
	}

	now = now.Add(time.Minute)
	if !rl.Allow("a") {
		t.Error("Expected a token after one refill period")
	}
	if rl.Allow("a") {
		t.Error("Expected only one token to be refilled")
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		if !rl.Allow("a") {
			t.Fatal("Expected disabled limiter to allow everything")
		}
	}
}
