package auth

import "time"

// Role represents the account-level role of a user
type Role string

const (
	RolePending Role = "pending" // Signed up, awaiting approval
	RoleUser    Role = "user"    // Regular account
	RoleAdmin   Role = "admin"   // Full access, including runtime settings
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RolePending, RoleUser, RoleAdmin:
		return true
	}
	return false
}

// User represents a local account
type User struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	PasswordHash    string     `json:"-"` // Never expose hash
	Name            string     `json:"name"`
	Role            Role       `json:"role"`
	ProfileImageURL string     `json:"profile_image_url"`
	ExtraSSO        *string    `json:"extra_sso,omitempty"` // Last federated identity payload (JSON)
	APIKey          *string    `json:"-"`
	LastActiveAt    *time.Time `json:"last_active_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// ExtraSSOValue returns the federated payload or an empty string
func (u *User) ExtraSSOValue() string {
	if u == nil || u.ExtraSSO == nil {
		return ""
	}
	return *u.ExtraSSO
}

// UserUpdate carries the mutable fields of a user; nil fields are left untouched
type UserUpdate struct {
	Name            *string
	ProfileImageURL *string
	ExtraSSO        *string
	Role            *Role
	PasswordHash    *string
}

// IsEmpty reports whether the update changes nothing
func (u UserUpdate) IsEmpty() bool {
	return u.Name == nil && u.ProfileImageURL == nil && u.ExtraSSO == nil &&
		u.Role == nil && u.PasswordHash == nil
}

// CreateOptions controls how a store inserts a new user
type CreateOptions struct {
	// PromoteFirstUser makes the insert assign RoleAdmin when the store holds
	// no users yet. The emptiness check and the insert happen atomically.
	PromoteFirstUser bool
}

// SignupRequest is the input of a self-service or provisioned signup
type SignupRequest struct {
	Email           string  `json:"email"`
	Password        string  `json:"password"`
	Name            string  `json:"name"`
	ProfileImageURL string  `json:"profile_image_url"`
	ExtraSSO        *string `json:"extra_sso,omitempty"`
}

// AddUserRequest is the input of an admin-created account
type AddUserRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	Name            string `json:"name"`
	ProfileImageURL string `json:"profile_image_url"`
	Role            Role   `json:"role"`
}

// UserResponse is the public view of a user
type UserResponse struct {
	ID              string `json:"id"`
	Email           string `json:"email"`
	Name            string `json:"name"`
	Role            Role   `json:"role"`
	ProfileImageURL string `json:"profile_image_url"`
	ExtraSSO        string `json:"extra_sso"`
}

// NewUserResponse builds the public view of u
func NewUserResponse(u *User) *UserResponse {
	return &UserResponse{
		ID:              u.ID,
		Email:           u.Email,
		Name:            u.Name,
		Role:            u.Role,
		ProfileImageURL: u.ProfileImageURL,
		ExtraSSO:        u.ExtraSSOValue(),
	}
}

// SessionResponse is returned by every token-issuing endpoint
type SessionResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	UserResponse
}

// AuthMethod records how a request was authenticated
type AuthMethod string

const (
	AuthMethodSession AuthMethod = "session"
	AuthMethodAPIKey  AuthMethod = "api_key"
	AuthMethodTrusted AuthMethod = "trusted_header"
)

// AuthContext holds authentication information for a request
type AuthContext struct {
	User   *User
	Method AuthMethod
}

// IsAdmin reports whether the authenticated user is an admin
func (ac *AuthContext) IsAdmin() bool {
	return ac != nil && ac.User.IsAdmin()
}
