package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kxd395/AxxessWebUI/pkg/auth"
)

// TestRegisterRoutes verifies all routes are registered
func TestRegisterRoutes(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		method string
		path   string
	}{
		{"GET", "/api/v1/auths/"},
		{"POST", "/api/v1/auths/update/profile"},
		{"POST", "/api/v1/auths/update/password"},
		{"POST", "/api/v1/auths/update/profile/image"},
		{"POST", "/api/v1/auths/signin"},
		{"POST", "/api/v1/auths/signup"},
		{"POST", "/api/v1/auths/add"},
		{"GET", "/api/v1/auths/signup/enabled"},
		{"GET", "/api/v1/auths/signup/enabled/toggle"},
		{"GET", "/api/v1/auths/signup/user/role"},
		{"POST", "/api/v1/auths/signup/user/role"},
		{"GET", "/api/v1/auths/token/expires"},
		{"POST", "/api/v1/auths/token/expires/update"},
		{"POST", "/api/v1/auths/api_key"},
		{"GET", "/api/v1/auths/api_key"},
		{"DELETE", "/api/v1/auths/api_key"},
		{"GET", "/files/profile/abc.png"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			var match mux.RouteMatch
			matched := env.server.Router().Match(req, &match)
			assert.True(t, matched, "Route %s %s should be registered", tt.method, tt.path)
		})
	}
}

func TestSignup_FirstUserIsAdmin(t *testing.T) {
	env := newTestEnv(t)

	first := env.signup(t, "Ada", "Ada@Example.com", "pw1")
	assert.Equal(t, "Bearer", first.TokenType)
	assert.NotEmpty(t, first.Token)
	assert.Equal(t, "ada@example.com", first.Email)
	assert.Equal(t, auth.RoleAdmin, first.Role)
	assert.Equal(t, auth.DefaultProfileImageURL, first.ProfileImageURL)

	second := env.signup(t, "Bob", "bob@example.com", "pw2")
	assert.Equal(t, auth.RolePending, second.Role)
}

func TestSignup_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "Ada", "ada@example.com", "pw")

	tests := []struct {
		name       string
		body       map[string]string
		wantStatus int
		wantDetail string
	}{
		{
			name:       "invalid email",
			body:       map[string]string{"name": "X", "email": "not-an-email", "password": "pw"},
			wantStatus: http.StatusBadRequest,
			wantDetail: auth.MsgInvalidEmailFormat,
		},
		{
			name:       "duplicate email in another case",
			body:       map[string]string{"name": "X", "email": "ADA@example.com", "password": "pw"},
			wantStatus: http.StatusBadRequest,
			wantDetail: auth.MsgEmailTaken,
		},
		{
			name:       "password over 72 bytes",
			body:       map[string]string{"name": "X", "email": "long@example.com", "password": strings.Repeat("p", 80)},
			wantStatus: http.StatusBadRequest,
			wantDetail: auth.MsgPasswordTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/signup", "", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantDetail, decodeDetail(t, w))
		})
	}

	count, err := env.store.CountUsers(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSignup_Disabled(t *testing.T) {
	env := newTestEnv(t)
	env.service.Settings().ToggleSignup()

	w := env.do(t, http.MethodPost, "/signup", "", map[string]string{
		"name": "Ada", "email": "ada@example.com", "password": "pw",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, auth.MsgAccessProhibited, decodeDetail(t, w))
}

func TestSignup_InvalidJSON(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, AuthPrefix+"/signup", strings.NewReader("{"))
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignin(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "Ada", "ada@example.com", "secret")

	t.Run("case insensitive email", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/signin", "", SigninRequest{Email: "ADA@Example.COM", Password: "secret"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var session auth.SessionResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
		assert.Equal(t, "Bearer", session.TokenType)
		assert.Equal(t, "ada@example.com", session.Email)
		assert.NotEmpty(t, session.Token)
	})

	t.Run("wrong password", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/signin", "", SigninRequest{Email: "ada@example.com", Password: "nope"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, auth.MsgInvalidCredentials, decodeDetail(t, w))
	})

	t.Run("unknown email", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/signin", "", SigninRequest{Email: "who@example.com", Password: "secret"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, auth.MsgInvalidCredentials, decodeDetail(t, w))
	})
}

func TestSignin_RateLimited(t *testing.T) {
	env := newTestEnv(t, withSigninLimit(2))

	for i := range 2 {
		w := env.do(t, http.MethodPost, "/signin", "", SigninRequest{Email: "a@example.com", Password: "x"})
		assert.Equal(t, http.StatusBadRequest, w.Code, "attempt %d", i+1)
	}

	w := env.do(t, http.MethodPost, "/signin", "", SigninRequest{Email: "a@example.com", Password: "x"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestGetSessionUser(t *testing.T) {
	env := newTestEnv(t)
	session := env.signup(t, "Ada", "ada@example.com", "pw")

	w := env.do(t, http.MethodGet, "/", session.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, session.ID, body["id"])
	assert.Equal(t, "ada@example.com", body["email"])
	assert.Equal(t, "admin", body["role"])
	assert.NotContains(t, body, "token")

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, AuthPrefix+"/", nil)
		req.AddCookie(&http.Cookie{Name: "token", Value: session.Token})
		w := httptest.NewRecorder()
		env.server.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, auth.MsgUnauthorized, decodeDetail(t, w))
	})

	t.Run("garbage token", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/", "not-a-jwt", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, auth.MsgInvalidToken, decodeDetail(t, w))
	})
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	session := env.signup(t, "Ada", "ada@example.com", "pw")

	w := env.do(t, http.MethodPost, "/update/profile", session.Token, UpdateProfileRequest{
		Name:            "Ada Lovelace",
		ProfileImageURL: "https://example.com/ada.png",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var user auth.UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))
	assert.Equal(t, "Ada Lovelace", user.Name)
	assert.Equal(t, "https://example.com/ada.png", user.ProfileImageURL)
}

func TestUpdatePassword(t *testing.T) {
	env := newTestEnv(t)
	session := env.signup(t, "Ada", "ada@example.com", "old")

	w := env.do(t, http.MethodPost, "/update/password", session.Token, UpdatePasswordRequest{Password: "wrong", NewPassword: "new"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, auth.MsgInvalidPassword, decodeDetail(t, w))

	w = env.do(t, http.MethodPost, "/update/password", session.Token, UpdatePasswordRequest{Password: "old", NewPassword: "new"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", strings.TrimSpace(w.Body.String()))

	w = env.do(t, http.MethodPost, "/signin", "", SigninRequest{Email: "ada@example.com", Password: "new"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminRoutes_RequireAdmin(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "Ada", "ada@example.com", "pw")
	user := env.signup(t, "Bob", "bob@example.com", "pw")

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/signup/enabled"},
		{http.MethodGet, "/signup/enabled/toggle"},
		{http.MethodGet, "/signup/user/role"},
		{http.MethodGet, "/token/expires"},
		{http.MethodPost, "/add"},
	}

	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			w := env.do(t, p.method, p.path, user.Token, map[string]string{})
			assert.Equal(t, http.StatusForbidden, w.Code)
			assert.Equal(t, auth.MsgAccessProhibited, decodeDetail(t, w))
		})
	}

	assert.True(t, env.service.Settings().SignupEnabled(), "toggle must not run for non-admins")
}

func TestAdminSettings(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signup(t, "Ada", "ada@example.com", "pw")

	w := env.do(t, http.MethodGet, "/signup/enabled", admin.Token, nil)
	assert.Equal(t, "true", strings.TrimSpace(w.Body.String()))

	w = env.do(t, http.MethodGet, "/signup/enabled/toggle", admin.Token, nil)
	assert.Equal(t, "false", strings.TrimSpace(w.Body.String()))
	assert.False(t, env.service.Settings().SignupEnabled())

	w = env.do(t, http.MethodPost, "/signup/user/role", admin.Token, UpdateRoleRequest{Role: auth.RoleUser})
	assert.Equal(t, `"user"`, strings.TrimSpace(w.Body.String()))

	w = env.do(t, http.MethodPost, "/signup/user/role", admin.Token, UpdateRoleRequest{Role: "superuser"})
	assert.Equal(t, `"user"`, strings.TrimSpace(w.Body.String()), "unknown role keeps the previous one")

	w = env.do(t, http.MethodGet, "/signup/user/role", admin.Token, nil)
	assert.Equal(t, `"user"`, strings.TrimSpace(w.Body.String()))

	w = env.do(t, http.MethodPost, "/token/expires/update", admin.Token, UpdateTokenExpiryRequest{Duration: "2w"})
	assert.Equal(t, `"2w"`, strings.TrimSpace(w.Body.String()))

	w = env.do(t, http.MethodPost, "/token/expires/update", admin.Token, UpdateTokenExpiryRequest{Duration: "abc"})
	assert.Equal(t, `"2w"`, strings.TrimSpace(w.Body.String()), "invalid duration is ignored")

	w = env.do(t, http.MethodGet, "/token/expires", admin.Token, nil)
	assert.Equal(t, `"2w"`, strings.TrimSpace(w.Body.String()))
}

func TestAddUser(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signup(t, "Ada", "ada@example.com", "pw")

	w := env.do(t, http.MethodPost, "/add", admin.Token, auth.AddUserRequest{
		Name:     "Carol",
		Email:    "Carol@example.com",
		Password: "carol-pw",
		Role:     auth.RoleUser,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var session auth.SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
	assert.Equal(t, "carol@example.com", session.Email)
	assert.Equal(t, auth.RoleUser, session.Role)
	assert.NotEqual(t, admin.ID, session.ID)

	// The returned token belongs to the new account
	w = env.do(t, http.MethodGet, "/", session.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "carol@example.com")

	w = env.do(t, http.MethodPost, "/add", admin.Token, auth.AddUserRequest{
		Name: "Dup", Email: "carol@example.com", Password: "x", Role: auth.RoleUser,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, auth.MsgEmailTaken, decodeDetail(t, w))
}

func TestAPIKeyLifecycle(t *testing.T) {
	env := newTestEnv(t)
	session := env.signup(t, "Ada", "ada@example.com", "pw")

	w := env.do(t, http.MethodGet, "/api_key", session.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, auth.MsgAPIKeyNotFound, decodeDetail(t, w))

	w = env.do(t, http.MethodPost, "/api_key", session.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var created APIKeyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.True(t, strings.HasPrefix(created.APIKey, auth.APIKeyPrefix))

	w = env.do(t, http.MethodGet, "/api_key", session.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var fetched APIKeyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	assert.Equal(t, created.APIKey, fetched.APIKey)

	// The key authenticates like a session token
	w = env.do(t, http.MethodGet, "/", created.APIKey, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodDelete, "/api_key", session.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", strings.TrimSpace(w.Body.String()))

	w = env.do(t, http.MethodGet, "/", created.APIKey, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTrustedHeaderMode(t *testing.T) {
	const header = "X-Forwarded-Email"
	env := newTestEnv(t, withTrustedHeader(header))

	t.Run("missing header", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/signin", "", SigninRequest{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, auth.MsgInvalidTrustedHeader, decodeDetail(t, w))
	})

	req := httptest.NewRequest(http.MethodPost, AuthPrefix+"/signin", nil)
	req.Header.Set(header, "Proxy@Example.com")
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var session auth.SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
	assert.Equal(t, "proxy@example.com", session.Email)
	assert.Equal(t, "proxy@example.com", session.Name)
	assert.Equal(t, auth.RoleAdmin, session.Role)

	t.Run("password update prohibited", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, AuthPrefix+"/update/password",
			strings.NewReader(`{"password":"a","new_password":"b"}`))
		req.Header.Set(header, "proxy@example.com")
		w := httptest.NewRecorder()
		env.server.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, auth.MsgActionProhibited, decodeDetail(t, w))
	})
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, auth.MsgUserNotFound, decodeDetail(t, w))
}
