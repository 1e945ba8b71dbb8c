package sso

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Kxd395/AxxessWebUI/pkg/auth"
	"github.com/Kxd395/AxxessWebUI/pkg/observability"
)

// CallbackOutcome labels a finished callback
type CallbackOutcome string

const (
	OutcomeCreated  CallbackOutcome = "created"
	OutcomeExisting CallbackOutcome = "existing"
	OutcomeFailed   CallbackOutcome = "failed"
)

// CallbackRecorder counts callback outcomes
type CallbackRecorder interface {
	RecordSSOCallback(provider string, outcome string)
}

// BridgeConfig configures a Bridge
type BridgeConfig struct {
	// LogoutRedirectURL is where the provider sends the browser after logout
	LogoutRedirectURL string
	Logger            *observability.Logger
	Recorder          CallbackRecorder
}

// Bridge turns provider callbacks into local sessions
type Bridge struct {
	pool           *ClientPool
	service        *auth.Service
	logoutRedirect string
	logger         *observability.Logger
	recorder       CallbackRecorder
}

// NewBridge creates a bridge between pool and the account service
func NewBridge(pool *ClientPool, service *auth.Service, cfg BridgeConfig) *Bridge {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Bridge{
		pool:           pool,
		service:        service,
		logoutRedirect: cfg.LogoutRedirectURL,
		logger:         logger.WithField("component", "sso"),
		recorder:       cfg.Recorder,
	}
}

// ProviderType returns the protocol of the bridged provider
func (b *Bridge) ProviderType() ProviderType {
	return b.pool.Provider().Type()
}

// LoginURL returns the provider login URL for state
func (b *Bridge) LoginURL(state string) (string, error) {
	return b.pool.Provider().AuthURL(state)
}

// LogoutURL returns the provider logout URL
func (b *Bridge) LogoutURL() (string, error) {
	return b.pool.Provider().LogoutURL(b.logoutRedirect)
}

// Complete exchanges the callback for an identity, finds or creates the
// matching account and issues a session for it.
func (b *Bridge) Complete(ctx context.Context, r *http.Request) (*auth.SessionResponse, error) {
	session, outcome, err := b.complete(ctx, r)
	if b.recorder != nil {
		b.recorder.RecordSSOCallback(string(b.pool.Provider().Name()), string(outcome))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", auth.ErrSSOCallback, err)
	}
	return session, nil
}

func (b *Bridge) complete(ctx context.Context, r *http.Request) (*auth.SessionResponse, CallbackOutcome, error) {
	handle, err := b.pool.Acquire(ctx)
	if err != nil {
		return nil, OutcomeFailed, err
	}
	defer handle.Release()

	identity, err := handle.Exchange(ctx, r)
	if err != nil {
		return nil, OutcomeFailed, err
	}

	payload, err := identity.Payload()
	if err != nil {
		return nil, OutcomeFailed, err
	}

	user, created, err := b.service.ResolveFederated(ctx, auth.FederatedLogin{
		Email:       identity.Email,
		DisplayName: identity.Name(),
		Payload:     payload,
	})
	if err != nil {
		return nil, OutcomeFailed, fmt.Errorf("failed to resolve account: %w", err)
	}

	session, err := b.service.NewSession(user)
	if err != nil {
		return nil, OutcomeFailed, fmt.Errorf("failed to issue session: %w", err)
	}

	outcome := OutcomeExisting
	if created {
		outcome = OutcomeCreated
	}
	b.logger.WithFields(map[string]interface{}{
		"user_id":  user.ID,
		"provider": identity.Provider,
		"outcome":  string(outcome),
	}).Info("sso sign-in completed")

	return session, outcome, nil
}
