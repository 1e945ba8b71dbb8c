package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// OAuth2Provider implements the authorization code flow against a plain
// OAuth2 server with a userinfo endpoint
type OAuth2Provider struct {
	config       *ProviderConfig
	oauth2Config *oauth2.Config
}

// NewOAuth2Provider creates a new OAuth2 provider
func NewOAuth2Provider(config *ProviderConfig) (*OAuth2Provider, error) {
	if config.OAuth2Config == nil {
		return nil, fmt.Errorf("OAuth2 config is required")
	}

	oauth2Cfg := &oauth2.Config{
		ClientID:     config.OAuth2Config.ClientID,
		ClientSecret: config.OAuth2Config.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  config.OAuth2Config.AuthURL,
			TokenURL: config.OAuth2Config.TokenURL,
		},
		RedirectURL: config.OAuth2Config.RedirectURL,
		Scopes:      config.OAuth2Config.Scopes,
	}

	return &OAuth2Provider{
		config:       config,
		oauth2Config: oauth2Cfg,
	}, nil
}

// Type returns the provider type
func (p *OAuth2Provider) Type() ProviderType {
	return ProviderTypeOAuth2
}

// Name returns the provider name
func (p *OAuth2Provider) Name() ProviderName {
	return p.config.ProviderName
}

// AuthURL returns the authorization endpoint URL
func (p *OAuth2Provider) AuthURL(state string) (string, error) {
	return p.oauth2Config.AuthCodeURL(state), nil
}

// Exchange trades the authorization code for a token and reads the userinfo endpoint
func (p *OAuth2Provider) Exchange(ctx context.Context, r *http.Request) (*Identity, error) {
	if err := callbackError(r); err != nil {
		return nil, err
	}

	code := r.FormValue("code")
	if code == "" {
		return nil, fmt.Errorf("missing authorization code")
	}

	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	userInfo, err := p.fetchUserInfo(ctx, token)
	if err != nil {
		return nil, err
	}

	identity := identityFromClaims(userInfo, p.config.AttributeMapping, p.config.ProviderName)
	identity.AccessToken = token.AccessToken

	if identity.Subject == "" {
		return nil, fmt.Errorf("missing user ID in OAuth2 response")
	}
	if identity.Email == "" {
		return nil, fmt.Errorf("missing email in OAuth2 response")
	}
	return identity, nil
}

func (p *OAuth2Provider) fetchUserInfo(ctx context.Context, token *oauth2.Token) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.OAuth2Config.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.oauth2Config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("user info request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var userInfo map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}
	return userInfo, nil
}

// LogoutURL returns the configured logout endpoint, if any
func (p *OAuth2Provider) LogoutURL(postLogoutRedirect string) (string, error) {
	return withPostLogoutRedirect(p.config.OAuth2Config.LogoutURL, postLogoutRedirect)
}

// ValidateConfig validates the OAuth2 configuration
func (p *OAuth2Provider) ValidateConfig() error {
	cfg := p.config.OAuth2Config
	if cfg == nil {
		return fmt.Errorf("OAuth2 config is required")
	}

	if cfg.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if cfg.ClientSecret == "" {
		return fmt.Errorf("client_secret is required")
	}
	if cfg.AuthURL == "" {
		return fmt.Errorf("auth_url is required")
	}
	if cfg.TokenURL == "" {
		return fmt.Errorf("token_url is required")
	}
	if cfg.UserInfoURL == "" {
		return fmt.Errorf("user_info_url is required")
	}
	if cfg.RedirectURL == "" {
		return fmt.Errorf("redirect_url is required")
	}
	if len(cfg.Scopes) == 0 {
		return fmt.Errorf("scopes are required")
	}
	return nil
}
