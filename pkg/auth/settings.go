package auth

import (
	"sync"
	"time"
)

// SettingsSnapshot is a point-in-time copy of the runtime settings
type SettingsSnapshot struct {
	EnableSignup    bool   `yaml:"enable_signup" json:"enable_signup"`
	DefaultUserRole Role   `yaml:"default_user_role" json:"default_user_role"`
	JWTExpiresIn    string `yaml:"jwt_expires_in" json:"jwt_expires_in"`
}

// Settings holds the process-wide settings admins can change at runtime.
// It is safe for concurrent use.
type Settings struct {
	mu       sync.RWMutex
	current  SettingsSnapshot
	onChange []func(SettingsSnapshot)
}

// NewSettings creates a settings store. Invalid initial values fall back to
// role pending and no token expiry.
func NewSettings(initial SettingsSnapshot) *Settings {
	if !initial.DefaultUserRole.Valid() {
		initial.DefaultUserRole = RolePending
	}
	if !ValidDuration(initial.JWTExpiresIn) {
		initial.JWTExpiresIn = NoExpiry
	}
	return &Settings{current: initial}
}

// OnChange registers fn to be called with the new snapshot after every change
func (s *Settings) OnChange(fn func(SettingsSnapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// Snapshot returns a copy of the current settings
func (s *Settings) Snapshot() SettingsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SignupEnabled reports whether self-service signup is allowed
func (s *Settings) SignupEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.EnableSignup
}

// ToggleSignup flips the signup flag and returns the new value
func (s *Settings) ToggleSignup() bool {
	snap := s.update(func(c *SettingsSnapshot) bool {
		c.EnableSignup = !c.EnableSignup
		return true
	})
	return snap.EnableSignup
}

// DefaultRole returns the role assigned to new self-service accounts
func (s *Settings) DefaultRole() Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.DefaultUserRole
}

// SetDefaultRole changes the default role; unknown roles are ignored.
// The role in effect afterwards is returned.
func (s *Settings) SetDefaultRole(role Role) Role {
	snap := s.update(func(c *SettingsSnapshot) bool {
		if !role.Valid() {
			return false
		}
		c.DefaultUserRole = role
		return true
	})
	return snap.DefaultUserRole
}

// TokenExpiry returns the current token expiry string
func (s *Settings) TokenExpiry() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.JWTExpiresIn
}

// SetTokenExpiry changes the token expiry; strings not matching the duration
// pattern or too large to represent are ignored. The value in effect afterwards is returned.
func (s *Settings) SetTokenExpiry(duration string) string {
	snap := s.update(func(c *SettingsSnapshot) bool {
		if !ValidDuration(duration) {
			return false
		}
		c.JWTExpiresIn = duration
		return true
	})
	return snap.JWTExpiresIn
}

// TokenTTL returns the parsed expiry; expires is false for "-1" and "0"
func (s *Settings) TokenTTL() (ttl time.Duration, expires bool) {
	d, ok, err := ParseDuration(s.TokenExpiry())
	if err != nil {
		return 0, false
	}
	return d, ok
}

// Apply replaces the settings with snap, keeping current values for invalid fields.
// It does not fire change callbacks; it is meant for reloading persisted state.
func (s *Settings) Apply(snap SettingsSnapshot) SettingsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current.EnableSignup = snap.EnableSignup
	if snap.DefaultUserRole.Valid() {
		s.current.DefaultUserRole = snap.DefaultUserRole
	}
	if ValidDuration(snap.JWTExpiresIn) {
		s.current.JWTExpiresIn = snap.JWTExpiresIn
	}
	return s.current
}

func (s *Settings) update(fn func(*SettingsSnapshot) bool) SettingsSnapshot {
	s.mu.Lock()
	changed := fn(&s.current)
	snap := s.current
	callbacks := append([]func(SettingsSnapshot){}, s.onChange...)
	s.mu.Unlock()

	if changed {
		for _, cb := range callbacks {
			cb(snap)
		}
	}
	return snap
}
