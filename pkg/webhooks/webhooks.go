package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Kxd395/AxxessWebUI/pkg/auth"
	"github.com/Kxd395/AxxessWebUI/pkg/observability"
)

// EventType represents the type of webhook event
type EventType string

const (
	EventUserSignup EventType = "signup"
)

// Event is the generic webhook body
type Event struct {
	Action  EventType `json:"action"`
	Message string    `json:"message"`
	// User is the JSON-encoded account the event is about
	User string `json:"user,omitempty"`
}

// SignupMessage is the human-readable text of a signup event
func SignupMessage(name string) string {
	return fmt.Sprintf("New user signed up: %s", name)
}

// StatusError is returned when the target answers with a non-2xx status
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned non-2xx status: %d", e.StatusCode)
}

// Recorder counts delivery outcomes per target
type Recorder interface {
	RecordWebhookDelivery(target string, success bool)
}

// Config configures a Notifier
type Config struct {
	URL    string
	Secret string

	// RequestTimeout bounds a single HTTP attempt
	RequestTimeout time.Duration
	// DeliveryTimeout bounds all attempts of one event
	DeliveryTimeout time.Duration

	Retry RetryConfig
	// RatePerMinute caps deliveries to the target; 0 disables the cap
	RatePerMinute int

	Branding Branding
}

// Notifier posts account events to a single configured webhook URL.
// Deliveries run in the background and never fail the triggering request.
type Notifier struct {
	cfg      Config
	target   Target
	client   *http.Client
	policy   *RetryPolicy
	limiter  *RateLimiter
	logger   *observability.Logger
	recorder Recorder
	wg       sync.WaitGroup
}

// NewNotifier creates a notifier. With an empty URL it is a no-op.
func NewNotifier(cfg Config, logger *observability.Logger, recorder Recorder) *Notifier {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 2 * time.Minute
	}
	if cfg.Branding.AppName == "" {
		cfg.Branding.AppName = "WebUI"
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	return &Notifier{
		cfg:    cfg,
		target: DetectTarget(cfg.URL),
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		policy:   NewRetryPolicy(cfg.Retry),
		limiter:  NewRateLimiter(cfg.RatePerMinute, time.Minute),
		logger:   logger.WithField("component", "webhooks"),
		recorder: recorder,
	}
}

// Enabled reports whether a webhook URL is configured
func (n *Notifier) Enabled() bool {
	return n.cfg.URL != ""
}

// NotifySignup implements auth.SignupNotifier
func (n *Notifier) NotifySignup(ctx context.Context, user *auth.User) {
	if !n.Enabled() || user == nil {
		return
	}

	userJSON, err := json.Marshal(newUserPayload(user))
	if err != nil {
		n.logger.WithError(err).Error("failed to encode signup webhook user")
		return
	}

	n.Dispatch(ctx, &Event{
		Action:  EventUserSignup,
		Message: SignupMessage(user.Name),
		User:    string(userJSON),
	})
}

// Dispatch delivers event in the background. The delivery outlives the
// caller's context but is bounded by DeliveryTimeout.
func (n *Notifier) Dispatch(ctx context.Context, event *Event) {
	if !n.Enabled() {
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer observability.RecoverPanic(n.logger, "webhook delivery")

		deliveryCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.cfg.DeliveryTimeout)
		defer cancel()

		if err := n.Deliver(deliveryCtx, event); err != nil {
			n.logger.WithError(err).WithFields(map[string]interface{}{
				"action": string(event.Action),
				"target": string(n.target),
			}).Warn("webhook delivery failed")
		}
	}()
}

// Deliver posts event synchronously, retrying per the retry policy
func (n *Notifier) Deliver(ctx context.Context, event *Event) error {
	if !n.limiter.Allow(n.cfg.URL) {
		n.record(false)
		return fmt.Errorf("rate limit exceeded for webhook target %s", n.target)
	}

	payload, err := json.Marshal(BuildPayload(n.target, event, n.cfg.Branding))
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	for attempt := 1; ; attempt++ {
		err = n.send(ctx, event, payload)
		if err == nil {
			n.record(true)
			n.logger.WithFields(map[string]interface{}{
				"action":   string(event.Action),
				"target":   string(n.target),
				"attempts": attempt,
			}).Debug("webhook delivered")
			return nil
		}

		if !n.policy.ShouldRetry(attempt, err) {
			n.record(false)
			return fmt.Errorf("failed after %d attempt(s): %w", attempt, err)
		}

		timer := time.NewTimer(n.policy.NextRetryDelay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			n.record(false)
			return fmt.Errorf("delivery cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

func (n *Notifier) send(ctx context.Context, event *Event, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if n.target == TargetGeneric {
		req.Header.Set("X-WebUI-Event", string(event.Action))
		req.Header.Set("X-WebUI-Delivery", time.Now().UTC().Format(time.RFC3339))
		if n.cfg.Secret != "" {
			req.Header.Set("X-WebUI-Signature", generateSignature(payload, n.cfg.Secret))
		}
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

func (n *Notifier) record(success bool) {
	if n.recorder != nil {
		n.recorder.RecordWebhookDelivery(string(n.target), success)
	}
}

// Wait blocks until in-flight deliveries finish or ctx is done
func (n *Notifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// userPayload is the account view embedded in events
type userPayload struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	Role            auth.Role  `json:"role"`
	ProfileImageURL string     `json:"profile_image_url"`
	LastActiveAt    *time.Time `json:"last_active_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func newUserPayload(u *auth.User) userPayload {
	return userPayload{
		ID:              u.ID,
		Name:            u.Name,
		Email:           u.Email,
		Role:            u.Role,
		ProfileImageURL: u.ProfileImageURL,
		LastActiveAt:    u.LastActiveAt,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

// VerifySignature checks an X-WebUI-Signature header on the receiving side
func VerifySignature(payload []byte, signature, secret string) bool {
	expected := generateSignature(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// generateSignature generates an HMAC-SHA256 signature
func generateSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
