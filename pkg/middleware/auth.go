package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/Kxd395/AxxessWebUI/pkg/auth"
	"github.com/Kxd395/AxxessWebUI/pkg/contextkeys"
	"github.com/Kxd395/AxxessWebUI/pkg/httputil"
	"github.com/Kxd395/AxxessWebUI/pkg/observability"
)

// TokenCookie is the cookie a browser session may carry instead of a bearer header
const TokenCookie = "token"

// Resolver maps request credentials to users
type Resolver interface {
	ResolveToken(ctx context.Context, credential string) (*auth.User, auth.AuthMethod, error)
	AuthenticateTrusted(ctx context.Context, email string) (*auth.User, error)
	TrustedHeader() string
}

// AuthMiddleware authenticates requests by trusted header, bearer token,
// API key or session cookie, in that order.
type AuthMiddleware struct {
	resolver Resolver
	optional bool // If true, allow requests without credentials
	logger   *observability.Logger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(resolver Resolver, optional bool, logger *observability.Logger) *AuthMiddleware {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &AuthMiddleware{
		resolver: resolver,
		optional: optional,
		logger:   logger.WithField("component", "auth_middleware"),
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx, err := m.authenticate(r)
		switch {
		case err == nil:
		case errors.Is(err, errNoCredentials) && m.optional:
			next.ServeHTTP(w, r)
			return
		case errors.Is(err, errNoCredentials):
			httputil.WriteUnauthorized(w, auth.MsgUnauthorized)
			return
		default:
			if httputil.StatusFor(err) >= http.StatusInternalServerError {
				m.logger.WithError(err).Error("failed to authenticate request")
			}
			httputil.WriteAuthError(w, err)
			return
		}

		ctx := contextkeys.WithAuth(r.Context(), authCtx)
		ctx = observability.WithUserID(ctx, authCtx.User.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

var errNoCredentials = errors.New("no credentials")

func (m *AuthMiddleware) authenticate(r *http.Request) (*auth.AuthContext, error) {
	ctx := r.Context()

	if header := m.resolver.TrustedHeader(); header != "" {
		if email := r.Header.Get(header); email != "" {
			user, err := m.resolver.AuthenticateTrusted(ctx, email)
			if err != nil {
				return nil, err
			}
			return &auth.AuthContext{User: user, Method: auth.AuthMethodTrusted}, nil
		}
	}

	credential := httputil.BearerToken(r)
	if credential == "" {
		if cookie, err := r.Cookie(TokenCookie); err == nil {
			credential = cookie.Value
		}
	}
	if credential == "" {
		return nil, errNoCredentials
	}

	user, method, err := m.resolver.ResolveToken(ctx, credential)
	if err != nil {
		return nil, err
	}
	return &auth.AuthContext{User: user, Method: method}, nil
}

// GetAuthContext extracts auth context from request
func GetAuthContext(r *http.Request) *auth.AuthContext {
	authCtx, ok := r.Context().Value(contextkeys.AuthKey).(*auth.AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}

// RequireAdmin rejects requests whose user is not an admin
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx := GetAuthContext(r)
		if authCtx == nil {
			httputil.WriteUnauthorized(w, auth.MsgUnauthorized)
			return
		}
		if !authCtx.IsAdmin() {
			httputil.WriteForbidden(w, auth.MsgAccessProhibited)
			return
		}
		next.ServeHTTP(w, r)
	})
}
