package sso

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kxd395/AxxessWebUI/pkg/auth"
)

type ssoEnv struct {
	idp       *fakeIdP
	auth      *testAuth
	callbacks *countingCallbacks
	router    *mux.Router
}

func newSSOEnv(t *testing.T) *ssoEnv {
	t.Helper()

	env := &ssoEnv{
		idp:       newFakeIdP(t),
		auth:      newTestAuth(t),
		callbacks: &countingCallbacks{},
		router:    mux.NewRouter(),
	}

	pool := NewClientPool(mustProvider(t, env.idp.entraConfig(t)), 4)
	bridge := NewBridge(pool, env.auth.service, BridgeConfig{
		LogoutRedirectURL: "https://webui.example.com/auth",
		Logger:            testLogger(),
		Recorder:          env.callbacks,
	})
	NewHandlers(bridge, HandlerOptions{}).RegisterRoutes(env.router)
	return env
}

// login starts a login and returns the issued state cookie
func (env *ssoEnv) login(t *testing.T) *http.Cookie {
	t.Helper()

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/signin/sso", nil))
	require.Equal(t, http.StatusTemporaryRedirect, w.Code)

	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/authorize", location.Path)

	var state *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == stateCookieName {
			state = c
		}
	}
	require.NotNil(t, state)
	assert.True(t, state.HttpOnly)
	assert.Equal(t, location.Query().Get("state"), state.Value)
	return state
}

func (env *ssoEnv) callback(t *testing.T, state *http.Cookie, query string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/signin/callback?"+query, nil)
	if state != nil {
		req.AddCookie(state)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decodeSession(t *testing.T, w *httptest.ResponseRecorder) auth.SessionResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var session auth.SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
	return session
}

func assertCallbackFailed(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"detail":"Error in signin_callback"}`, w.Body.String())
}

func TestCallback_ProvisionsUnknownEmail(t *testing.T) {
	env := newSSOEnv(t)
	ctx := context.Background()

	state := env.login(t)
	session := decodeSession(t, env.callback(t, state, "code="+testGoodCode+"&state="+state.Value))

	assert.Equal(t, "Bearer", session.TokenType)
	assert.Equal(t, "ada@example.com", session.Email)
	assert.Equal(t, "Ada Lovelace", session.Name)
	assert.Equal(t, auth.RoleAdmin, session.Role)
	assert.Equal(t, auth.DefaultProfileImageURL, session.ProfileImageURL)

	count, err := env.auth.store.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	user, err := env.auth.store.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, session.ExtraSSO, user.ExtraSSOValue())

	var identity Identity
	require.NoError(t, json.Unmarshal([]byte(user.ExtraSSOValue()), &identity))
	assert.Equal(t, "graph-id-1", identity.Subject)
	assert.Equal(t, testAccessToken, identity.AccessToken)

	subject, err := env.auth.issuer.Parse(session.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, subject)

	assert.Equal(t, 1, env.callbacks.count(OutcomeCreated))
}

func TestCallback_SecondUserGetsUserRole(t *testing.T) {
	env := newSSOEnv(t)
	_, err := env.auth.service.Signup(context.Background(), auth.SignupRequest{
		Email: "first@example.com", Password: "pw", Name: "First",
	})
	require.NoError(t, err)

	state := env.login(t)
	session := decodeSession(t, env.callback(t, state, "code="+testGoodCode+"&state="+state.Value))
	assert.Equal(t, auth.RoleUser, session.Role)
}

func TestCallback_RefreshesKnownEmail(t *testing.T) {
	env := newSSOEnv(t)
	ctx := context.Background()

	existing, err := env.auth.service.Signup(ctx, auth.SignupRequest{
		Email: "ada@example.com", Password: "pw", Name: "Ada",
	})
	require.NoError(t, err)

	state := env.login(t)
	session := decodeSession(t, env.callback(t, state, "code="+testGoodCode+"&state="+state.Value))
	assert.Equal(t, existing.ID, session.ID)

	user, err := env.auth.store.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, existing.Role, user.Role)
	assert.Equal(t, existing.PasswordHash, user.PasswordHash)
	assert.Equal(t, "Ada", user.Name)
	assert.Contains(t, user.ExtraSSOValue(), "graph-id-1")

	env.idp.setMe(map[string]interface{}{
		"id":          "graph-id-1",
		"mail":        "ada@example.com",
		"displayName": "Ada L.",
		"jobTitle":    "Countess",
	})
	state = env.login(t)
	decodeSession(t, env.callback(t, state, "code="+testGoodCode+"&state="+state.Value))

	user, err = env.auth.store.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Contains(t, user.ExtraSSOValue(), "Countess")

	count, err := env.auth.store.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, 2, env.callbacks.count(OutcomeExisting))
}

func TestCallback_Failures(t *testing.T) {
	env := newSSOEnv(t)

	t.Run("state mismatch", func(t *testing.T) {
		state := env.login(t)
		calls := env.idp.TokenCalls()
		assertCallbackFailed(t, env.callback(t, state, "code="+testGoodCode+"&state=forged"))
		assert.Equal(t, calls, env.idp.TokenCalls())
	})

	t.Run("missing state cookie", func(t *testing.T) {
		state := env.login(t)
		assertCallbackFailed(t, env.callback(t, nil, "code="+testGoodCode+"&state="+state.Value))
	})

	t.Run("rejected code", func(t *testing.T) {
		state := env.login(t)
		assertCallbackFailed(t, env.callback(t, state, "code=bad&state="+state.Value))
	})

	t.Run("signup disabled", func(t *testing.T) {
		env.auth.settings.ToggleSignup()
		defer env.auth.settings.ToggleSignup()

		state := env.login(t)
		assertCallbackFailed(t, env.callback(t, state, "code="+testGoodCode+"&state="+state.Value))
	})

	count, err := env.auth.store.CountUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
	assert.Equal(t, 2, env.callbacks.count(OutcomeFailed))
}

func TestCallback_ClearsStateCookie(t *testing.T) {
	env := newSSOEnv(t)

	state := env.login(t)
	w := env.callback(t, state, "code="+testGoodCode+"&state="+state.Value)
	require.Equal(t, http.StatusOK, w.Code)

	var cleared bool
	for _, c := range w.Result().Cookies() {
		if c.Name == stateCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared)
}

func TestLogout_RedirectsToProvider(t *testing.T) {
	env := newSSOEnv(t)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/signin/ssoout", nil))

	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t,
		"https://login.microsoftonline.com/tenant-id/oauth2/v2.0/logout?post_logout_redirect_uri=https%3A%2F%2Fwebui.example.com%2Fauth",
		w.Header().Get("Location"))
}
