// Package memory implements an in-process user store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Kxd395/AxxessWebUI/pkg/auth"
)

// Store keeps users in maps guarded by a single mutex
type Store struct {
	mu      sync.Mutex
	users   map[string]*auth.User
	byEmail map[string]string
	byKey   map[string]string
}

// New creates an empty store
func New() *Store {
	return &Store{
		users:   make(map[string]*auth.User),
		byEmail: make(map[string]string),
		byKey:   make(map[string]string),
	}
}

// GetUserByID implements auth.Store
func (s *Store) GetUserByID(ctx context.Context, id string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return clone(u), nil
}

// GetUserByEmail implements auth.Store
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return clone(s.users[id]), nil
}

// GetUserByAPIKey implements auth.Store
func (s *Store) GetUserByAPIKey(ctx context.Context, key string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byKey[key]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return clone(s.users[id]), nil
}

// GetCredentials implements auth.Store
func (s *Store) GetCredentials(ctx context.Context, id string) (*auth.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	c := &auth.Credentials{PasswordHash: u.PasswordHash}
	if u.APIKey != nil {
		v := *u.APIKey
		c.APIKey = &v
	}
	return c, nil
}

// CreateUser implements auth.Store
func (s *Store) CreateUser(ctx context.Context, u *auth.User, opts auth.CreateOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[u.Email]; taken {
		return auth.ErrEmailTaken
	}
	if opts.PromoteFirstUser && len(s.users) == 0 {
		u.Role = auth.RoleAdmin
	}

	stored := clone(u)
	s.users[u.ID] = stored
	s.byEmail[u.Email] = u.ID
	if u.APIKey != nil {
		s.byKey[*u.APIKey] = u.ID
	}
	return nil
}

// UpdateUser implements auth.Store
func (s *Store) UpdateUser(ctx context.Context, id string, upd auth.UserUpdate) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}

	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.ProfileImageURL != nil {
		u.ProfileImageURL = *upd.ProfileImageURL
	}
	if upd.ExtraSSO != nil {
		v := *upd.ExtraSSO
		u.ExtraSSO = &v
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if !upd.IsEmpty() {
		u.UpdatedAt = time.Now().UTC()
	}

	return clone(u), nil
}

// SetAPIKey implements auth.Store
func (s *Store) SetAPIKey(ctx context.Context, id string, key *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return auth.ErrUserNotFound
	}

	if key != nil {
		if owner, taken := s.byKey[*key]; taken && owner != id {
			return auth.ErrCreateAPIKey
		}
	}

	if u.APIKey != nil {
		delete(s.byKey, *u.APIKey)
	}
	if key == nil {
		u.APIKey = nil
	} else {
		v := *key
		u.APIKey = &v
		s.byKey[v] = id
	}
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// TouchLastActive implements auth.Store
func (s *Store) TouchLastActive(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return auth.ErrUserNotFound
	}
	u.LastActiveAt = &at
	return nil
}

// CountUsers implements auth.Store
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.users)), nil
}

// HealthCheck always succeeds
func (s *Store) HealthCheck(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}

func clone(u *auth.User) *auth.User {
	c := *u
	if u.ExtraSSO != nil {
		v := *u.ExtraSSO
		c.ExtraSSO = &v
	}
	if u.APIKey != nil {
		v := *u.APIKey
		c.APIKey = &v
	}
	if u.LastActiveAt != nil {
		v := *u.LastActiveAt
		c.LastActiveAt = &v
	}
	return &c
}
