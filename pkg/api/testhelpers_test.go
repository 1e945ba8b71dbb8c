package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Kxd395/AxxessWebUI/pkg/auth"
	"github.com/Kxd395/AxxessWebUI/pkg/httputil"
	"github.com/Kxd395/AxxessWebUI/pkg/middleware"
	"github.com/Kxd395/AxxessWebUI/pkg/observability"
	"github.com/Kxd395/AxxessWebUI/pkg/storage/files"
	"github.com/Kxd395/AxxessWebUI/pkg/storage/memory"
)

type testEnv struct {
	server  *Server
	service *auth.Service
	store   *memory.Store
	files   *files.LocalStorage
}

type envOption func(*ServerConfig, *auth.ServiceConfig)

func withTrustedHeader(header string) envOption {
	return func(_ *ServerConfig, sc *auth.ServiceConfig) {
		sc.TrustedEmailHeader = header
	}
}

func withSigninLimit(requests int) envOption {
	return func(cfg *ServerConfig, _ *auth.ServiceConfig) {
		cfg.SigninLimiter = middleware.NewRateLimiter(&middleware.RateLimitConfig{
			RequestsPerWindow: requests,
			WindowDuration:    time.Hour,
		})
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	store := memory.New()
	issuer, err := auth.NewTokenIssuer("test-secret")
	require.NoError(t, err)

	fileStore, err := files.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	serviceCfg := auth.ServiceConfig{
		Store:  store,
		Issuer: issuer,
		Settings: auth.NewSettings(auth.SettingsSnapshot{
			EnableSignup:    true,
			DefaultUserRole: auth.RolePending,
			JWTExpiresIn:    "-1",
		}),
		Hasher: auth.NewBcryptHasher(bcrypt.MinCost),
		Logger: logger,
	}
	serverCfg := ServerConfig{
		Logger:       logger,
		Files:        fileStore,
		MaxBodyBytes: 1 << 20,
	}
	for _, opt := range opts {
		opt(&serverCfg, &serviceCfg)
	}

	service, err := auth.NewService(serviceCfg)
	require.NoError(t, err)
	serverCfg.Service = service

	server, err := NewServer(serverCfg)
	require.NoError(t, err)

	return &testEnv{server: server, service: service, store: store, files: fileStore}
}

// do sends a JSON request to an auth route and returns the recorder
func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, AuthPrefix+path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, req)
	return w
}

// signup registers an account and returns its session
func (e *testEnv) signup(t *testing.T, name, email, password string) auth.SessionResponse {
	t.Helper()

	w := e.do(t, http.MethodPost, "/signup", "", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var session auth.SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
	return session
}

func decodeDetail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	var resp httputil.DetailResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Detail
}
