package auth

import (
	"context"
	"time"
)

// Store persists user records. Implementations return ErrUserNotFound for
// missing records and ErrEmailTaken when the unique email constraint is hit.
type Store interface {
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByAPIKey(ctx context.Context, key string) (*User, error)

	// GetCredentials reads the secrets of user id straight from the backing
	// store. Caches never serve it.
	GetCredentials(ctx context.Context, id string) (*Credentials, error)

	// CreateUser inserts u. With opts.PromoteFirstUser the store sets u.Role to
	// RoleAdmin when it holds no users, atomically with the insert.
	CreateUser(ctx context.Context, u *User, opts CreateOptions) error

	UpdateUser(ctx context.Context, id string, upd UserUpdate) (*User, error)
	SetAPIKey(ctx context.Context, id string, key *string) error
	TouchLastActive(ctx context.Context, id string, at time.Time) error
	CountUsers(ctx context.Context) (int64, error)
}

// Credentials are the secrets held for a user
type Credentials struct {
	PasswordHash string
	APIKey       *string
}

// SignupNotifier is told about new self-service accounts
type SignupNotifier interface {
	NotifySignup(ctx context.Context, user *User)
}

// EventRecorder counts authentication outcomes
type EventRecorder interface {
	RecordAuthEvent(event string, success bool)
}

// Event names passed to EventRecorder
const (
	EventSignin        = "signin"
	EventTrustedSignin = "trusted_signin"
	EventSignup        = "signup"
	EventAddUser       = "add_user"
	EventSSOProvision  = "sso_provision"
	EventPasswordSet   = "password_update"
	EventAPIKeyCreate  = "api_key_create"
	EventTokenResolve  = "token_resolve"
)

type nopRecorder struct{}

func (nopRecorder) RecordAuthEvent(string, bool) {}
