package sso

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Kxd395/AxxessWebUI/pkg/auth"
	"github.com/Kxd395/AxxessWebUI/pkg/observability"
	"github.com/Kxd395/AxxessWebUI/pkg/storage/memory"
)

const (
	testClientID    = "client-id"
	testGoodCode    = "good-code"
	testAccessToken = "at-123"
	testKeyID       = "test-key"
)

// fakeIdP is an authorization server serving both the plain OAuth2 flow
// (with a Graph style /me endpoint) and OpenID Connect discovery.
type fakeIdP struct {
	server *httptest.Server
	key    *rsa.PrivateKey

	mu     sync.Mutex
	me     map[string]interface{}
	claims jwt.MapClaims

	tokenCalls int32
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	idp := &fakeIdP{
		key: key,
		me: map[string]interface{}{
			"id":                "graph-id-1",
			"mail":              "Ada@Example.com",
			"userPrincipalName": "ada@example.onmicrosoft.com",
			"displayName":       "Ada Lovelace",
			"givenName":         "Ada",
			"surname":           "Lovelace",
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", idp.discovery)
	mux.HandleFunc("/keys", idp.keys)
	mux.HandleFunc("/token", idp.token)
	mux.HandleFunc("/me", idp.userInfo)
	mux.HandleFunc("/userinfo", idp.userInfo)

	idp.server = httptest.NewServer(mux)
	t.Cleanup(idp.server.Close)

	idp.claims = jwt.MapClaims{
		"sub":   "oidc-sub-1",
		"email": "grace@example.com",
		"name":  "Grace Hopper",
	}
	return idp
}

func (idp *fakeIdP) URL() string {
	return idp.server.URL
}

func (idp *fakeIdP) setMe(fields map[string]interface{}) {
	idp.mu.Lock()
	defer idp.mu.Unlock()
	idp.me = fields
}

func (idp *fakeIdP) setClaims(claims jwt.MapClaims) {
	idp.mu.Lock()
	defer idp.mu.Unlock()
	idp.claims = claims
}

func (idp *fakeIdP) TokenCalls() int32 {
	return atomic.LoadInt32(&idp.tokenCalls)
}

func (idp *fakeIdP) discovery(w http.ResponseWriter, r *http.Request) {
	writeTestJSON(w, http.StatusOK, map[string]interface{}{
		"issuer":                                idp.URL(),
		"authorization_endpoint":                idp.URL() + "/authorize",
		"token_endpoint":                        idp.URL() + "/token",
		"jwks_uri":                              idp.URL() + "/keys",
		"userinfo_endpoint":                     idp.URL() + "/userinfo",
		"end_session_endpoint":                  idp.URL() + "/logout",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (idp *fakeIdP) keys(w http.ResponseWriter, r *http.Request) {
	pub := idp.key.PublicKey
	writeTestJSON(w, http.StatusOK, map[string]interface{}{
		"keys": []map[string]interface{}{{
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"kid": testKeyID,
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

func (idp *fakeIdP) token(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&idp.tokenCalls, 1)

	if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != testGoodCode {
		writeTestJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}

	idp.mu.Lock()
	claims := jwt.MapClaims{
		"iss": idp.URL(),
		"aud": testClientID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	for k, v := range idp.claims {
		claims[k] = v
	}
	idp.mu.Unlock()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	idToken, err := token.SignedString(idp.key)
	if err != nil {
		writeTestJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeTestJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": testAccessToken,
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     idToken,
	})
}

func (idp *fakeIdP) userInfo(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+testAccessToken {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	idp.mu.Lock()
	defer idp.mu.Unlock()
	writeTestJSON(w, http.StatusOK, idp.me)
}

func writeTestJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// entraConfig returns the entra preset pointed at the fake IdP
func (idp *fakeIdP) entraConfig(t *testing.T) *ProviderConfig {
	t.Helper()

	cfg, err := PresetConfig(ProviderEntra, "tenant-id")
	require.NoError(t, err)

	cfg.OAuth2Config.ClientID = testClientID
	cfg.OAuth2Config.ClientSecret = "client-secret"
	cfg.OAuth2Config.RedirectURL = "https://webui.example.com/api/v1/auths/signin/callback"
	cfg.OAuth2Config.AuthURL = idp.URL() + "/authorize"
	cfg.OAuth2Config.TokenURL = idp.URL() + "/token"
	cfg.OAuth2Config.UserInfoURL = idp.URL() + "/me"
	return cfg
}

// oidcConfig returns the generic OIDC preset pointed at the fake IdP
func (idp *fakeIdP) oidcConfig(t *testing.T) *ProviderConfig {
	t.Helper()

	cfg, err := PresetConfig(ProviderGenericOIDC, "")
	require.NoError(t, err)

	cfg.OIDCConfig.ClientID = testClientID
	cfg.OIDCConfig.ClientSecret = "client-secret"
	cfg.OIDCConfig.IssuerURL = idp.URL()
	cfg.OIDCConfig.RedirectURL = "https://webui.example.com/api/v1/auths/signin/callback"
	return cfg
}

type testAuth struct {
	service  *auth.Service
	store    *memory.Store
	issuer   *auth.TokenIssuer
	settings *auth.Settings
}

func newTestAuth(t *testing.T) *testAuth {
	t.Helper()

	issuer, err := auth.NewTokenIssuer("test-secret")
	require.NoError(t, err)

	ta := &testAuth{
		store:  memory.New(),
		issuer: issuer,
		settings: auth.NewSettings(auth.SettingsSnapshot{
			EnableSignup:    true,
			DefaultUserRole: auth.RolePending,
			JWTExpiresIn:    "-1",
		}),
	}
	ta.service, err = auth.NewService(auth.ServiceConfig{
		Store:    ta.store,
		Issuer:   issuer,
		Settings: ta.settings,
		Hasher:   auth.NewBcryptHasher(bcrypt.MinCost),
		Logger:   testLogger(),
	})
	require.NoError(t, err)
	return ta
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, &bytes.Buffer{})
}

type countingCallbacks struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (c *countingCallbacks) RecordSSOCallback(provider string, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcomes == nil {
		c.outcomes = make(map[string]int)
	}
	c.outcomes[outcome]++
}

func (c *countingCallbacks) count(outcome CallbackOutcome) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcomes[string(outcome)]
}

func mustProvider(t *testing.T, cfg *ProviderConfig) Provider {
	t.Helper()
	provider, err := NewProvider(context.Background(), cfg)
	require.NoError(t, err)
	return provider
}
