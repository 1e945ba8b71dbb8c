package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Kxd395/AxxessWebUI/pkg/observability"
)

// DefaultProfileImageURL is used when an account is created without an image
const DefaultProfileImageURL = "/user.png"

// ServiceConfig wires the collaborators of a Service
type ServiceConfig struct {
	Store    Store
	Issuer   *TokenIssuer
	Settings *Settings

	// Optional collaborators
	Hasher   Hasher
	Notifier SignupNotifier
	Recorder EventRecorder
	Logger   *observability.Logger

	// TrustedEmailHeader enables trusted-header mode when non-empty
	TrustedEmailHeader string
}

// Service implements sign-in, sign-up, account updates and API key management
type Service struct {
	store         Store
	hasher        Hasher
	issuer        *TokenIssuer
	keys          *KeyGenerator
	settings      *Settings
	notifier      SignupNotifier
	recorder      EventRecorder
	logger        *observability.Logger
	trustedHeader string
	now           func() time.Time
}

// NewService creates a new auth service
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Issuer == nil {
		return nil, fmt.Errorf("token issuer is required")
	}
	if cfg.Settings == nil {
		return nil, fmt.Errorf("settings are required")
	}

	s := &Service{
		store:         cfg.Store,
		hasher:        cfg.Hasher,
		issuer:        cfg.Issuer,
		keys:          NewKeyGenerator(),
		settings:      cfg.Settings,
		notifier:      cfg.Notifier,
		recorder:      cfg.Recorder,
		logger:        cfg.Logger,
		trustedHeader: cfg.TrustedEmailHeader,
		now:           time.Now,
	}
	if s.hasher == nil {
		s.hasher = NewBcryptHasher(0)
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.logger == nil {
		s.logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	s.logger = s.logger.WithField("component", "auth")

	return s, nil
}

// Settings returns the runtime settings store
func (s *Service) Settings() *Settings {
	return s.settings
}

// TrustedHeader returns the trusted email header name, or "" when the mode is off
func (s *Service) TrustedHeader() string {
	return s.trustedHeader
}

// TrustedMode reports whether trusted-header authentication is active
func (s *Service) TrustedMode() bool {
	return s.trustedHeader != ""
}

// Authenticate checks an email and password pair
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.store.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		s.recorder.RecordAuthEvent(EventSignin, false)
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !s.hasher.Verify(user.PasswordHash, password) {
		s.recorder.RecordAuthEvent(EventSignin, false)
		return nil, ErrInvalidCredentials
	}

	s.recorder.RecordAuthEvent(EventSignin, true)
	return user, nil
}

// AuthenticateTrusted signs in the pre-authenticated email asserted by an
// upstream proxy, creating the account on first sight.
func (s *Service) AuthenticateTrusted(ctx context.Context, email string) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrInvalidTrustedHeader
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		s.recorder.RecordAuthEvent(EventTrustedSignin, true)
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	user, err = s.Signup(ctx, SignupRequest{
		Email:    email,
		Password: RandomPassword(),
		Name:     email,
	})
	if errors.Is(err, ErrEmailTaken) {
		// Lost a race with a concurrent request for the same email
		user, err = s.store.GetUserByEmail(ctx, email)
	}
	if err != nil {
		s.recorder.RecordAuthEvent(EventTrustedSignin, false)
		return nil, err
	}

	s.recorder.RecordAuthEvent(EventTrustedSignin, true)
	return user, nil
}

// Signup creates a self-service account. The first account in the store is an
// admin; later ones get the configured default role.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*User, error) {
	if !s.settings.SignupEnabled() {
		s.recorder.RecordAuthEvent(EventSignup, false)
		return nil, ErrSignupDisabled
	}

	user, err := s.createAccount(ctx, newAccount{
		email:           req.Email,
		password:        req.Password,
		name:            req.Name,
		profileImageURL: req.ProfileImageURL,
		extraSSO:        req.ExtraSSO,
		role:            s.settings.DefaultRole(),
		promoteFirst:    true,
	})
	if err != nil {
		s.recorder.RecordAuthEvent(EventSignup, false)
		return nil, err
	}

	s.recorder.RecordAuthEvent(EventSignup, true)
	s.logger.WithFields(map[string]interface{}{
		"user_id": user.ID,
		"role":    string(user.Role),
	}).Info("user signed up")

	if s.notifier != nil {
		s.notifier.NotifySignup(ctx, user)
	}

	return user, nil
}

// AddUser creates an account with an explicit role on behalf of an admin
func (s *Service) AddUser(ctx context.Context, req AddUserRequest) (*User, error) {
	role := req.Role
	if role == "" {
		role = RolePending
	}
	if !role.Valid() {
		return nil, NewDefaultError("add user", fmt.Errorf("invalid role %q", req.Role))
	}

	user, err := s.createAccount(ctx, newAccount{
		email:           req.Email,
		password:        req.Password,
		name:            req.Name,
		profileImageURL: req.ProfileImageURL,
		role:            role,
	})
	s.recorder.RecordAuthEvent(EventAddUser, err == nil)
	if err != nil {
		return nil, err
	}

	s.logger.WithField("user_id", user.ID).Info("user added by admin")
	return user, nil
}

// FederatedLogin describes an identity asserted by an SSO provider
type FederatedLogin struct {
	Email       string
	DisplayName string
	// Payload is the serialized identity stored as the user's extra_sso
	Payload string
}

// ResolveFederated finds the local account for a federated identity, creating
// it through the signup path when absent. Existing accounts only get their
// extra_sso payload refreshed; role and password are left untouched. New
// accounts are admins when the store was empty and users otherwise.
func (s *Service) ResolveFederated(ctx context.Context, login FederatedLogin) (user *User, created bool, err error) {
	email := NormalizeEmail(login.Email)
	payload := login.Payload

	user, err = s.refreshFederated(ctx, email, payload)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	if !s.settings.SignupEnabled() {
		s.recorder.RecordAuthEvent(EventSSOProvision, false)
		return nil, false, ErrSignupDisabled
	}

	user, err = s.createAccount(ctx, newAccount{
		email:           email,
		password:        RandomPassword(),
		name:            login.DisplayName,
		profileImageURL: DefaultProfileImageURL,
		extraSSO:        &payload,
		role:            RoleUser,
		promoteFirst:    true,
	})
	if errors.Is(err, ErrEmailTaken) {
		// A concurrent callback created the account first
		user, err = s.refreshFederated(ctx, email, payload)
		if err != nil {
			return nil, false, err
		}
		return user, false, nil
	}
	s.recorder.RecordAuthEvent(EventSSOProvision, err == nil)
	if err != nil {
		return nil, false, err
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id": user.ID,
		"role":    string(user.Role),
	}).Info("provisioned user from SSO identity")

	if s.notifier != nil {
		s.notifier.NotifySignup(ctx, user)
	}

	return user, true, nil
}

func (s *Service) refreshFederated(ctx context.Context, email, payload string) (*User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	user, err = s.store.UpdateUser(ctx, user.ID, UserUpdate{ExtraSSO: &payload})
	if err != nil {
		return nil, fmt.Errorf("failed to update extra_sso: %w", err)
	}
	return user, nil
}

type newAccount struct {
	email           string
	password        string
	name            string
	profileImageURL string
	extraSSO        *string
	role            Role
	promoteFirst    bool
}

func (s *Service) createAccount(ctx context.Context, acct newAccount) (*User, error) {
	email := NormalizeEmail(acct.email)
	if !ValidEmail(email) {
		return nil, ErrInvalidEmailFormat
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, NewDefaultError("create user", err)
	}

	hash, err := s.hasher.Hash(acct.password)
	if errors.Is(err, ErrPasswordTooLong) {
		return nil, err
	}
	if err != nil {
		return nil, NewDefaultError("create user", err)
	}

	profileImageURL := acct.profileImageURL
	if profileImageURL == "" {
		profileImageURL = DefaultProfileImageURL
	}

	now := s.now().UTC()
	user := &User{
		ID:              uuid.NewString(),
		Email:           email,
		PasswordHash:    hash,
		Name:            acct.name,
		Role:            acct.role,
		ProfileImageURL: profileImageURL,
		ExtraSSO:        acct.extraSSO,
		LastActiveAt:    &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// The store enforces email uniqueness, so a concurrent duplicate surfaces here
	if err := s.store.CreateUser(ctx, user, CreateOptions{PromoteFirstUser: acct.promoteFirst}); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("%w: %v", ErrCreateUser, err)
	}

	return user, nil
}

// UpdateProfile changes the name and profile image of the session user
func (s *Service) UpdateProfile(ctx context.Context, userID, name, profileImageURL string) (*User, error) {
	if userID == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.UpdateUser(ctx, userID, UserUpdate{
		Name:            &name,
		ProfileImageURL: &profileImageURL,
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, NewDefaultError("update profile", err)
	}

	return user, nil
}

// UpdatePassword replaces the password of the session user after checking the old one
func (s *Service) UpdatePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if s.TrustedMode() {
		return ErrActionProhibited
	}
	if userID == "" {
		return ErrInvalidCredentials
	}

	creds, err := s.store.GetCredentials(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidCredentials
		}
		return NewDefaultError("update password", err)
	}
	if !s.hasher.Verify(creds.PasswordHash, oldPassword) {
		s.recorder.RecordAuthEvent(EventPasswordSet, false)
		return ErrInvalidPassword
	}

	hash, err := s.hasher.Hash(newPassword)
	if errors.Is(err, ErrPasswordTooLong) {
		return err
	}
	if err != nil {
		return NewDefaultError("update password", err)
	}

	if _, err := s.store.UpdateUser(ctx, userID, UserUpdate{PasswordHash: &hash}); err != nil {
		return NewDefaultError("update password", err)
	}

	s.recorder.RecordAuthEvent(EventPasswordSet, true)
	return nil
}

// IssueToken mints a session token for user using the configured expiry
func (s *Service) IssueToken(user *User) (string, error) {
	ttl, expires := s.settings.TokenTTL()
	return s.issuer.Issue(user.ID, ttl, expires)
}

// NewSession issues a token for user and builds the session payload
func (s *Service) NewSession(user *User) (*SessionResponse, error) {
	token, err := s.IssueToken(user)
	if err != nil {
		return nil, err
	}
	return newSessionResponse(token, user), nil
}

// NewPermanentSession builds a session payload whose token never expires
func (s *Service) NewPermanentSession(user *User) (*SessionResponse, error) {
	token, err := s.issuer.Issue(user.ID, 0, false)
	if err != nil {
		return nil, err
	}
	return newSessionResponse(token, user), nil
}

func newSessionResponse(token string, user *User) *SessionResponse {
	return &SessionResponse{
		Token:        token,
		TokenType:    "Bearer",
		UserResponse: *NewUserResponse(user),
	}
}

// ResolveToken maps a bearer credential (session token or API key) to its user
func (s *Service) ResolveToken(ctx context.Context, credential string) (*User, AuthMethod, error) {
	var (
		user   *User
		method AuthMethod
		err    error
	)

	if s.keys.IsAPIKey(credential) {
		method = AuthMethodAPIKey
		if err = s.keys.ValidateKeyFormat(credential); err != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidToken, err)
		} else {
			user, err = s.store.GetUserByAPIKey(ctx, credential)
		}
	} else {
		method = AuthMethodSession
		var userID string
		userID, err = s.issuer.Parse(credential)
		if err == nil {
			user, err = s.store.GetUserByID(ctx, userID)
		}
	}

	if err != nil {
		s.recorder.RecordAuthEvent(EventTokenResolve, false)
		if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrInvalidToken) {
			return nil, method, ErrInvalidToken
		}
		return nil, method, fmt.Errorf("failed to resolve token: %w", err)
	}

	s.touch(ctx, user)
	s.recorder.RecordAuthEvent(EventTokenResolve, true)
	return user, method, nil
}

func (s *Service) touch(ctx context.Context, user *User) {
	now := s.now().UTC()
	if err := s.store.TouchLastActive(ctx, user.ID, now); err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Warn("failed to update last active time")
		return
	}
	user.LastActiveAt = &now
}

// CreateAPIKey generates a new API key for the user, replacing any existing one
func (s *Service) CreateAPIKey(ctx context.Context, userID string) (string, error) {
	key, err := s.keys.GenerateKey()
	if err != nil {
		s.recorder.RecordAuthEvent(EventAPIKeyCreate, false)
		return "", fmt.Errorf("%w: %v", ErrCreateAPIKey, err)
	}

	if err := s.store.SetAPIKey(ctx, userID, &key); err != nil {
		s.recorder.RecordAuthEvent(EventAPIKeyCreate, false)
		return "", fmt.Errorf("%w: %v", ErrCreateAPIKey, err)
	}

	s.recorder.RecordAuthEvent(EventAPIKeyCreate, true)
	s.logger.WithFields(map[string]interface{}{
		"user_id":    userID,
		"key_prefix": s.keys.DisplayPrefix(key),
	}).Info("api key created")
	return key, nil
}

// DeleteAPIKey removes the user's API key
func (s *Service) DeleteAPIKey(ctx context.Context, userID string) error {
	if err := s.store.SetAPIKey(ctx, userID, nil); err != nil {
		return NewDefaultError("delete api key", err)
	}
	return nil
}

// GetAPIKey returns the user's API key
func (s *Service) GetAPIKey(ctx context.Context, userID string) (string, error) {
	creds, err := s.store.GetCredentials(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", ErrAPIKeyNotFound
		}
		return "", NewDefaultError("get api key", err)
	}

	if creds.APIKey == nil || *creds.APIKey == "" {
		return "", ErrAPIKeyNotFound
	}
	return *creds.APIKey, nil
}

// UserCount returns the number of accounts in the store
func (s *Service) UserCount(ctx context.Context) (int64, error) {
	return s.store.CountUsers(ctx)
}
