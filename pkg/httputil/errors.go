package httputil

import (
	"errors"
	"net/http"

	"github.com/Kxd395/AxxessWebUI/pkg/auth"
)

var errorStatuses = []struct {
	err    error
	status int
}{
	{auth.ErrSSOCallback, http.StatusInternalServerError},
	{auth.ErrInvalidCredentials, http.StatusBadRequest},
	{auth.ErrInvalidEmailFormat, http.StatusBadRequest},
	{auth.ErrEmailTaken, http.StatusBadRequest},
	{auth.ErrInvalidPassword, http.StatusBadRequest},
	{auth.ErrPasswordTooLong, http.StatusBadRequest},
	{auth.ErrInvalidTrustedHeader, http.StatusBadRequest},
	{auth.ErrActionProhibited, http.StatusBadRequest},
	{auth.ErrInvalidToken, http.StatusUnauthorized},
	{auth.ErrSignupDisabled, http.StatusForbidden},
	{auth.ErrAccessProhibited, http.StatusForbidden},
	{auth.ErrAPIKeyNotFound, http.StatusNotFound},
	{auth.ErrUserNotFound, http.StatusNotFound},
	{auth.ErrCreateUser, http.StatusInternalServerError},
	{auth.ErrCreateAPIKey, http.StatusInternalServerError},
}

// StatusFor maps an auth error to its HTTP status; unknown errors are 500
func StatusFor(err error) int {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// WriteAuthError writes err with its mapped status and user-facing detail
func WriteAuthError(w http.ResponseWriter, err error) {
	WriteDetail(w, StatusFor(err), auth.Message(err))
}
