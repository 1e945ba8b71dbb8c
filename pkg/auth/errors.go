package auth

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidEmailFormat   = errors.New("invalid email format")
	ErrEmailTaken           = errors.New("email already registered")
	ErrSignupDisabled       = errors.New("signup is disabled")
	ErrAccessProhibited     = errors.New("access prohibited")
	ErrActionProhibited     = errors.New("action prohibited")
	ErrCreateUser           = errors.New("failed to create user")
	ErrCreateAPIKey         = errors.New("failed to create api key")
	ErrAPIKeyNotFound       = errors.New("api key not found")
	ErrSSOCallback          = errors.New("sso callback failed")
	ErrInvalidPassword      = errors.New("invalid password")
	ErrPasswordTooLong      = errors.New("password too long")
	ErrInvalidTrustedHeader = errors.New("trusted header missing")
	ErrUserNotFound         = errors.New("user not found")
	ErrInvalidToken         = errors.New("invalid or expired token")
)

// DefaultError is a generic failure that keeps its cause for diagnostics
type DefaultError struct {
	Op  string
	Err error
}

// NewDefaultError wraps err as a DefaultError for operation op
func NewDefaultError(op string, err error) *DefaultError {
	return &DefaultError{Op: op, Err: err}
}

func (e *DefaultError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: something went wrong", e.Op)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DefaultError) Unwrap() error {
	return e.Err
}

// User-facing messages returned as the detail of error responses
const (
	MsgDefault              = "Something went wrong :/"
	MsgInvalidCredentials   = "The email or password provided is incorrect. Please check for typos and try logging in again."
	MsgInvalidEmailFormat   = "The email format you entered is invalid. Please double-check and make sure you're using a valid email address (e.g., yourname@example.com)."
	MsgEmailTaken           = "Uh-oh! This email is already registered. Sign in with your existing account or choose another email to start anew."
	MsgAccessProhibited     = "You do not have permission to access this resource. Please contact your administrator for assistance."
	MsgActionProhibited     = "The requested action has been restricted as a security measure."
	MsgCreateUser           = "Oops! Something went wrong while creating your account. Please try again later. If the issue persists, contact support for assistance."
	MsgCreateAPIKey         = "Oops! Something went wrong while creating your API key. Please try again later. If the issue persists, contact support for assistance."
	MsgAPIKeyNotFound       = "Oops! It looks like there's a hiccup. The API key is missing. Please make sure to provide a valid API key to access this feature."
	MsgSSOCallback          = "Error in signin_callback"
	MsgInvalidPassword      = "The password provided is incorrect. Please check for typos and try again."
	MsgPasswordTooLong      = "Your password is too long. Please make sure your password is no more than 72 bytes long."
	MsgInvalidTrustedHeader = "Your provider has not provided a trusted header. Please contact your administrator for assistance."
	MsgUserNotFound         = "We could not find what you're looking for :/"
	MsgInvalidToken         = "Your session has expired or the token is invalid. Please sign in again."
	MsgUnauthorized         = "401 Unauthorized"
)

var errorMessages = []struct {
	err error
	msg string
}{
	// A failed SSO callback wraps its cause; the cause stays hidden
	{ErrSSOCallback, MsgSSOCallback},
	{ErrInvalidCredentials, MsgInvalidCredentials},
	{ErrInvalidEmailFormat, MsgInvalidEmailFormat},
	{ErrEmailTaken, MsgEmailTaken},
	{ErrSignupDisabled, MsgAccessProhibited},
	{ErrAccessProhibited, MsgAccessProhibited},
	{ErrActionProhibited, MsgActionProhibited},
	{ErrCreateUser, MsgCreateUser},
	{ErrCreateAPIKey, MsgCreateAPIKey},
	{ErrAPIKeyNotFound, MsgAPIKeyNotFound},
	{ErrInvalidPassword, MsgInvalidPassword},
	{ErrPasswordTooLong, MsgPasswordTooLong},
	{ErrInvalidTrustedHeader, MsgInvalidTrustedHeader},
	{ErrUserNotFound, MsgUserNotFound},
	{ErrInvalidToken, MsgInvalidToken},
}

// Message returns the user-facing message for err. Unknown errors, including
// DefaultError, get the generic message so internal detail never leaks.
func Message(err error) string {
	for _, m := range errorMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return MsgDefault
}
