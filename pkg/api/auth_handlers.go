package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Kxd395/AxxessWebUI/pkg/auth"
	"github.com/Kxd395/AxxessWebUI/pkg/httputil"
	"github.com/Kxd395/AxxessWebUI/pkg/middleware"
	"github.com/Kxd395/AxxessWebUI/pkg/observability"
)

// AuthHandlers handles sign-in, sign-up, account and admin settings endpoints
type AuthHandlers struct {
	service     *auth.Service
	audit       *auth.AuditLogger
	authn       *middleware.AuthMiddleware
	signinLimit *middleware.RateLimitMiddleware
	images      *ImageHandlers
}

// NewAuthHandlers creates auth handlers. signinLimit and images may be nil.
func NewAuthHandlers(service *auth.Service, audit *auth.AuditLogger, authn *middleware.AuthMiddleware, signinLimit *middleware.RateLimitMiddleware, images *ImageHandlers) *AuthHandlers {
	return &AuthHandlers{
		service:     service,
		audit:       audit,
		authn:       authn,
		signinLimit: signinLimit,
		images:      images,
	}
}

// RegisterRoutes registers auth routes on a router mounted at /api/v1/auths
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	// Public routes
	signin := http.Handler(http.HandlerFunc(h.signin))
	signup := http.Handler(http.HandlerFunc(h.signup))
	if h.signinLimit != nil {
		signin = h.signinLimit.Handler(signin)
		signup = h.signinLimit.Handler(signup)
	}
	router.Handle("/signin", signin).Methods("POST")
	router.Handle("/signup", signup).Methods("POST")

	// Session routes
	session := func(fn http.HandlerFunc) http.Handler {
		return h.authn.Handler(fn)
	}
	router.Handle("/", session(h.getSessionUser)).Methods("GET")
	router.Handle("/update/profile", session(h.updateProfile)).Methods("POST")
	router.Handle("/update/password", session(h.updatePassword)).Methods("POST")
	if h.images != nil {
		router.Handle("/update/profile/image", session(h.uploadProfileImage)).Methods("POST")
	}
	router.Handle("/api_key", session(h.createAPIKey)).Methods("POST")
	router.Handle("/api_key", session(h.getAPIKey)).Methods("GET")
	router.Handle("/api_key", session(h.deleteAPIKey)).Methods("DELETE")

	// Admin routes
	admin := func(fn http.HandlerFunc) http.Handler {
		return h.authn.Handler(middleware.RequireAdmin(fn))
	}
	router.Handle("/add", admin(h.addUser)).Methods("POST")
	router.Handle("/signup/enabled", admin(h.getSignupEnabled)).Methods("GET")
	router.Handle("/signup/enabled/toggle", admin(h.toggleSignup)).Methods("GET")
	router.Handle("/signup/user/role", admin(h.getDefaultRole)).Methods("GET")
	router.Handle("/signup/user/role", admin(h.updateDefaultRole)).Methods("POST")
	router.Handle("/token/expires", admin(h.getTokenExpiry)).Methods("GET")
	router.Handle("/token/expires/update", admin(h.updateTokenExpiry)).Methods("POST")
}

// SigninRequest is the body of POST /signin
type SigninRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateProfileRequest is the body of POST /update/profile
type UpdateProfileRequest struct {
	Name            string `json:"name"`
	ProfileImageURL string `json:"profile_image_url"`
}

// UpdatePasswordRequest is the body of POST /update/password
type UpdatePasswordRequest struct {
	Password    string `json:"password"`
	NewPassword string `json:"new_password"`
}

// UpdateRoleRequest is the body of POST /signup/user/role
type UpdateRoleRequest struct {
	Role auth.Role `json:"role"`
}

// UpdateTokenExpiryRequest is the body of POST /token/expires/update
type UpdateTokenExpiryRequest struct {
	Duration string `json:"duration"`
}

// APIKeyResponse carries an API key
type APIKeyResponse struct {
	APIKey string `json:"api_key"`
}

// signin handles POST /signin
func (h *AuthHandlers) signin(w http.ResponseWriter, r *http.Request) {
	var (
		user *auth.User
		err  error
	)

	if header := h.service.TrustedHeader(); header != "" {
		email := r.Header.Get(header)
		if email == "" {
			err = auth.ErrInvalidTrustedHeader
		} else {
			user, err = h.service.AuthenticateTrusted(r.Context(), email)
		}
	} else {
		var req SigninRequest
		if !httputil.ParseJSONOrError(w, r, &req) {
			return
		}
		user, err = h.service.Authenticate(r.Context(), req.Email, req.Password)
	}

	if err != nil {
		h.logAudit(r, auth.ActionSignin, nil, err)
		h.writeError(w, r, err)
		return
	}

	session, err := h.service.NewSession(user)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logAudit(r, auth.ActionSignin, user, nil)
	httputil.WriteSuccess(w, session)
}

// signup handles POST /signup
func (h *AuthHandlers) signup(w http.ResponseWriter, r *http.Request) {
	var req auth.SignupRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	// Federated payloads are only set by the SSO bridge
	req.ExtraSSO = nil

	user, err := h.service.Signup(r.Context(), req)
	if err != nil {
		h.logAudit(r, auth.ActionSignup, nil, err)
		h.writeError(w, r, err)
		return
	}

	session, err := h.service.NewSession(user)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logAudit(r, auth.ActionSignup, user, nil)
	httputil.WriteSuccess(w, session)
}

// getSessionUser handles GET /
func (h *AuthHandlers) getSessionUser(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	httputil.WriteSuccess(w, auth.NewUserResponse(authCtx.User))
}

// updateProfile handles POST /update/profile
func (h *AuthHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	authCtx := middleware.GetAuthContext(r)
	user, err := h.service.UpdateProfile(r.Context(), authCtx.User.ID, req.Name, req.ProfileImageURL)
	h.logAudit(r, auth.ActionProfileUpdate, authCtx.User, err)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, auth.NewUserResponse(user))
}

// updatePassword handles POST /update/password
func (h *AuthHandlers) updatePassword(w http.ResponseWriter, r *http.Request) {
	var req UpdatePasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	authCtx := middleware.GetAuthContext(r)
	err := h.service.UpdatePassword(r.Context(), authCtx.User.ID, req.Password, req.NewPassword)
	h.logAudit(r, auth.ActionPasswordUpdate, authCtx.User, err)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, true)
}

// addUser handles POST /add
func (h *AuthHandlers) addUser(w http.ResponseWriter, r *http.Request) {
	var req auth.AddUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.service.AddUser(r.Context(), req)
	if err != nil {
		h.logAudit(r, auth.ActionUserAdd, middleware.GetAuthContext(r).User, err)
		h.writeError(w, r, err)
		return
	}

	session, err := h.service.NewPermanentSession(user)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logAudit(r, auth.ActionUserAdd, user, nil)
	httputil.WriteSuccess(w, session)
}

// getSignupEnabled handles GET /signup/enabled
func (h *AuthHandlers) getSignupEnabled(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, h.service.Settings().SignupEnabled())
}

// toggleSignup handles GET /signup/enabled/toggle
func (h *AuthHandlers) toggleSignup(w http.ResponseWriter, r *http.Request) {
	enabled := h.service.Settings().ToggleSignup()
	h.logAudit(r, auth.ActionSettingsUpdate, middleware.GetAuthContext(r).User, nil)
	httputil.WriteSuccess(w, enabled)
}

// getDefaultRole handles GET /signup/user/role
func (h *AuthHandlers) getDefaultRole(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, h.service.Settings().DefaultRole())
}

// updateDefaultRole handles POST /signup/user/role
func (h *AuthHandlers) updateDefaultRole(w http.ResponseWriter, r *http.Request) {
	var req UpdateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role := h.service.Settings().SetDefaultRole(req.Role)
	h.logAudit(r, auth.ActionSettingsUpdate, middleware.GetAuthContext(r).User, nil)
	httputil.WriteSuccess(w, role)
}

// getTokenExpiry handles GET /token/expires
func (h *AuthHandlers) getTokenExpiry(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, h.service.Settings().TokenExpiry())
}

// updateTokenExpiry handles POST /token/expires/update
func (h *AuthHandlers) updateTokenExpiry(w http.ResponseWriter, r *http.Request) {
	var req UpdateTokenExpiryRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	duration := h.service.Settings().SetTokenExpiry(req.Duration)
	h.logAudit(r, auth.ActionSettingsUpdate, middleware.GetAuthContext(r).User, nil)
	httputil.WriteSuccess(w, duration)
}

// createAPIKey handles POST /api_key
func (h *AuthHandlers) createAPIKey(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	key, err := h.service.CreateAPIKey(r.Context(), authCtx.User.ID)
	h.logAudit(r, auth.ActionAPIKeyCreate, authCtx.User, err)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, APIKeyResponse{APIKey: key})
}

// getAPIKey handles GET /api_key
func (h *AuthHandlers) getAPIKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.service.GetAPIKey(r.Context(), middleware.GetAuthContext(r).User.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, APIKeyResponse{APIKey: key})
}

// deleteAPIKey handles DELETE /api_key
func (h *AuthHandlers) deleteAPIKey(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	err := h.service.DeleteAPIKey(r.Context(), authCtx.User.ID)
	h.logAudit(r, auth.ActionAPIKeyDelete, authCtx.User, err)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, true)
}

// uploadProfileImage handles POST /update/profile/image
func (h *AuthHandlers) uploadProfileImage(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)

	url, err := h.images.Store(r)
	if err != nil {
		var uploadErr *UploadError
		if errors.As(err, &uploadErr) {
			httputil.WriteBadRequest(w, uploadErr.Message)
			return
		}
		h.writeError(w, r, err)
		return
	}

	previous := authCtx.User.ProfileImageURL
	user, err := h.service.UpdateProfile(r.Context(), authCtx.User.ID, authCtx.User.Name, url)
	h.logAudit(r, auth.ActionProfileUpdate, authCtx.User, err)
	if err != nil {
		_ = h.images.Remove(r.Context(), url)
		h.writeError(w, r, err)
		return
	}

	if err := h.images.Remove(r.Context(), previous); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("failed to remove previous profile image")
	}
	httputil.WriteSuccess(w, auth.NewUserResponse(user))
}

func (h *AuthHandlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if httputil.StatusFor(err) >= http.StatusInternalServerError {
		observability.FromContext(r.Context()).WithError(err).Error("auth request failed")
	}
	httputil.WriteAuthError(w, err)
}

func (h *AuthHandlers) logAudit(r *http.Request, action string, user *auth.User, err error) {
	if h.audit == nil {
		return
	}
	if auditErr := h.audit.LogFromRequest(r, action, user, err); auditErr != nil {
		observability.FromContext(r.Context()).WithError(auditErr).Warn("failed to write audit log")
	}
}
