package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Kxd395/AxxessWebUI/pkg/auth"
	"github.com/Kxd395/AxxessWebUI/pkg/observability"
)

type countingRecorder struct {
	mu       sync.Mutex
	success  int
	failures int
}

func (r *countingRecorder) RecordWebhookDelivery(target string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if success {
		r.success++
	} else {
		r.failures++
	}
}

func (r *countingRecorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.success, r.failures
}

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      10 * time.Millisecond,
		MaxDelay:          20 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.DebugLevel, &bytes.Buffer{})
}

func waitFor(t *testing.T, n *Notifier) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.Wait(ctx); err != nil {
		t.Fatalf("Deliveries did not finish: %v", err)
	}
}

func TestNotifier_NotifySignup(t *testing.T) {
	var (
		mu       sync.Mutex
		received []map[string]interface{}
		headers  http.Header
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Failed to decode body: %v", err)
		}
		mu.Lock()
		received = append(received, body)
		headers = r.Header.Clone()
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	recorder := &countingRecorder{}
	n := NewNotifier(Config{URL: server.URL, Retry: fastRetry()}, testLogger(), recorder)

	user := &auth.User{
		ID:           "u1",
		Name:         "Ada",
		Email:        "ada@example.com",
		Role:         auth.RolePending,
		PasswordHash: "secret-hash",
		CreatedAt:    time.Now(),
	}
	n.NotifySignup(context.Background(), user)
	waitFor(t, n)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("Expected 1 delivery, got %d", len(received))
	}

	body := received[0]
	if body["action"] != "signup" {
		t.Errorf("Expected action signup, got %v", body["action"])
	}
	if body["message"] != "New user signed up: Ada" {
		t.Errorf("Unexpected message %v", body["message"])
	}

	var embedded map[string]interface{}
	if err := json.Unmarshal([]byte(body["user"].(string)), &embedded); err != nil {
		t.Fatalf("user field is not JSON: %v", err)
	}
	if embedded["email"] != "ada@example.com" {
		t.Errorf("Unexpected embedded user %v", embedded)
	}
	if _, ok := embedded["password_hash"]; ok {
		t.Error("Password hash must not be sent")
	}

	if headers.Get("X-WebUI-Event") != "signup" {
		t.Errorf("Expected X-WebUI-Event header, got %q", headers.Get("X-WebUI-Event"))
	}
	if headers.Get("X-WebUI-Signature") != "" {
		t.Error("Expected no signature without a secret")
	}

	if ok, failed := recorder.counts(); ok != 1 || failed != 0 {
		t.Errorf("Expected 1 success and 0 failures, got %d/%d", ok, failed)
	}
}

func TestNotifier_Disabled(t *testing.T) {
	n := NewNotifier(Config{}, testLogger(), nil)
	if n.Enabled() {
		t.Fatal("Expected notifier without URL to be disabled")
	}
	n.NotifySignup(context.Background(), &auth.User{ID: "u1"})
	waitFor(t, n)
}

func TestNotifier_Signature(t *testing.T) {
	var (
		body      []byte
		signature string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		signature = r.Header.Get("X-WebUI-Signature")
	}))
	defer server.Close()

	n := NewNotifier(Config{URL: server.URL, Secret: "s3cret"}, testLogger(), nil)
	if err := n.Deliver(context.Background(), &Event{Action: EventUserSignup, Message: "hi"}); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	if !VerifySignature(body, signature, "s3cret") {
		t.Error("Expected signature to verify")
	}
	if VerifySignature(body, signature, "other") {
		t.Error("Expected signature check with wrong secret to fail")
	}
}

func TestNotifier_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewNotifier(Config{URL: server.URL, Retry: fastRetry()}, testLogger(), nil)
	if err := n.Deliver(context.Background(), &Event{Action: EventUserSignup}); err != nil {
		t.Fatalf("Expected delivery to succeed after retries: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
}

func TestNotifier_GivesUp(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	recorder := &countingRecorder{}
	n := NewNotifier(Config{URL: server.URL, Retry: fastRetry()}, testLogger(), recorder)
	err := n.Deliver(context.Background(), &Event{Action: EventUserSignup})

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("Expected StatusError 500, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
	if _, failed := recorder.counts(); failed != 1 {
		t.Errorf("Expected 1 recorded failure, got %d", failed)
	}
}

func TestNotifier_ClientErrorIsFinal(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	n := NewNotifier(Config{URL: server.URL, Retry: fastRetry()}, testLogger(), nil)
	if err := n.Deliver(context.Background(), &Event{Action: EventUserSignup}); err == nil {
		t.Fatal("Expected an error")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected a single attempt, got %d", got)
	}
}

func TestNotifier_DetachedFromCallerContext(t *testing.T) {
	delivered := make(chan struct{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		delivered <- struct{}{}
	}))
	defer server.Close()

	n := NewNotifier(Config{URL: server.URL}, testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	n.NotifySignup(ctx, &auth.User{ID: "u1", Name: "Ada"})
	cancel()
	waitFor(t, n)

	select {
	case <-delivered:
	default:
		t.Error("Expected delivery to complete after the caller's context was cancelled")
	}
}

func TestNotifier_RateLimited(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	n := NewNotifier(Config{URL: server.URL, RatePerMinute: 1}, testLogger(), nil)
	if err := n.Deliver(context.Background(), &Event{Action: EventUserSignup}); err != nil {
		t.Fatalf("First delivery failed: %v", err)
	}
	if err := n.Deliver(context.Background(), &Event{Action: EventUserSignup}); err == nil {
		t.Error("Expected second delivery to be rate limited")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected 1 call, got %d", got)
	}
}

func TestNotifier_ShapesSlackPayload(t *testing.T) {
	n := NewNotifier(Config{URL: "https://hooks.slack.com/services/T/B/X"}, testLogger(), nil)
	if n.target != TargetSlack {
		t.Fatalf("Expected slack target, got %s", n.target)
	}
}
