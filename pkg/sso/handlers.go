package sso

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Kxd395/AxxessWebUI/pkg/auth"
	"github.com/Kxd395/AxxessWebUI/pkg/httputil"
	"github.com/Kxd395/AxxessWebUI/pkg/observability"
)

const (
	stateCookieName = "sso_state"
	defaultStateTTL = 10 * time.Minute
)

// HandlerOptions configures the SSO routes
type HandlerOptions struct {
	// SecureCookies marks the state cookie Secure
	SecureCookies bool
	// StateTTL bounds how long a login may take; defaults to 10 minutes
	StateTTL time.Duration
}

// Handlers serves the browser side of federated sign-in
type Handlers struct {
	bridge   *Bridge
	secure   bool
	stateTTL time.Duration
}

// NewHandlers creates SSO handlers over bridge
func NewHandlers(bridge *Bridge, opts HandlerOptions) *Handlers {
	if opts.StateTTL <= 0 {
		opts.StateTTL = defaultStateTTL
	}
	return &Handlers{
		bridge:   bridge,
		secure:   opts.SecureCookies,
		stateTTL: opts.StateTTL,
	}
}

// RegisterRoutes registers SSO routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/signin/sso", h.initiateLogin).Methods("GET")
	router.HandleFunc("/signin/callback", h.handleCallback).Methods("GET", "POST")
	router.HandleFunc("/signin/ssoout", h.logout).Methods("GET")
}

// initiateLogin handles GET /signin/sso
func (h *Handlers) initiateLogin(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context())

	state, err := generateState()
	if err != nil {
		logger.WithError(err).Error("failed to generate sso state")
		httputil.WriteInternalError(w, auth.MsgDefault)
		return
	}

	authURL, err := h.bridge.LoginURL(state)
	if err != nil {
		logger.WithError(err).Error("failed to build sso login url")
		httputil.WriteInternalError(w, auth.MsgDefault)
		return
	}

	http.SetCookie(w, h.stateCookie(state, int(h.stateTTL.Seconds())))
	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// handleCallback handles GET and POST /signin/callback
func (h *Handlers) handleCallback(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context())

	// The state is single use
	http.SetCookie(w, h.stateCookie("", -1))

	if err := h.verifyState(r); err != nil {
		logger.WithError(err).Warn("sso callback rejected")
		httputil.WriteInternalError(w, auth.MsgSSOCallback)
		return
	}

	session, err := h.bridge.Complete(r.Context(), r)
	if err != nil {
		logger.WithError(err).Error("sso callback failed")
		httputil.WriteInternalError(w, auth.Message(err))
		return
	}

	httputil.WriteSuccess(w, session)
}

// logout handles GET /signin/ssoout
func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	logoutURL, err := h.bridge.LogoutURL()
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to build sso logout url")
		httputil.WriteInternalError(w, auth.MsgDefault)
		return
	}
	if logoutURL == "" {
		httputil.WriteNotFound(w, auth.MsgUserNotFound)
		return
	}
	http.Redirect(w, r, logoutURL, http.StatusTemporaryRedirect)
}

func (h *Handlers) verifyState(r *http.Request) error {
	cookie, err := r.Cookie(stateCookieName)
	if err != nil || cookie.Value == "" {
		return fmt.Errorf("missing state cookie")
	}

	// SAML returns the state as RelayState
	param := r.FormValue("state")
	if param == "" {
		param = r.FormValue("RelayState")
	}
	if subtle.ConstantTimeCompare([]byte(param), []byte(cookie.Value)) != 1 {
		return fmt.Errorf("invalid state parameter")
	}
	return nil
}

func (h *Handlers) stateCookie(value string, maxAge int) *http.Cookie {
	cookie := &http.Cookie{
		Name:     stateCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	}
	// The SAML callback is a cross-site POST, which Lax cookies do not survive
	if h.bridge.ProviderType() == ProviderTypeSAML && h.secure {
		cookie.SameSite = http.SameSiteNoneMode
	}
	return cookie
}

func generateState() (string, error) {
	stateBytes := make([]byte, 32)
	if _, err := rand.Read(stateBytes); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(stateBytes), nil
}
