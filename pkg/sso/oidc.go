package sso

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCProvider implements OpenID Connect SSO
type OIDCProvider struct {
	config       *ProviderConfig
	provider     *oidc.Provider
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
	endSession   string
}

// NewOIDCProvider discovers the issuer and creates a new OIDC provider
func NewOIDCProvider(ctx context.Context, config *ProviderConfig) (*OIDCProvider, error) {
	if config.OIDCConfig == nil {
		return nil, fmt.Errorf("OIDC config is required")
	}
	if config.OIDCConfig.IssuerURL == "" {
		return nil, fmt.Errorf("issuer_url is required")
	}

	provider, err := oidc.NewProvider(ctx, config.OIDCConfig.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID:        config.OIDCConfig.ClientID,
		SkipIssuerCheck: config.OIDCConfig.SkipIssuerCheck,
	})

	oauth2Config := &oauth2.Config{
		ClientID:     config.OIDCConfig.ClientID,
		ClientSecret: config.OIDCConfig.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  config.OIDCConfig.RedirectURL,
		Scopes:       config.OIDCConfig.Scopes,
	}

	endSession := config.OIDCConfig.LogoutURL
	if endSession == "" {
		var discovery struct {
			EndSessionEndpoint string `json:"end_session_endpoint"`
		}
		if err := provider.Claims(&discovery); err == nil {
			endSession = discovery.EndSessionEndpoint
		}
	}

	return &OIDCProvider{
		config:       config,
		provider:     provider,
		verifier:     verifier,
		oauth2Config: oauth2Config,
		endSession:   endSession,
	}, nil
}

// Type returns the provider type
func (p *OIDCProvider) Type() ProviderType {
	return ProviderTypeOIDC
}

// Name returns the provider name
func (p *OIDCProvider) Name() ProviderName {
	return p.config.ProviderName
}

// AuthURL returns the authorization endpoint URL
func (p *OIDCProvider) AuthURL(state string) (string, error) {
	return p.oauth2Config.AuthCodeURL(state), nil
}

// Exchange trades the code for tokens and verifies the ID token
func (p *OIDCProvider) Exchange(ctx context.Context, r *http.Request) (*Identity, error) {
	if err := callbackError(r); err != nil {
		return nil, err
	}

	code := r.FormValue("code")
	if code == "" {
		return nil, fmt.Errorf("missing authorization code")
	}

	oauth2Token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("missing id_token in response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	identity := identityFromClaims(claims, p.config.AttributeMapping, p.config.ProviderName)
	identity.AccessToken = oauth2Token.AccessToken

	// Some issuers keep email out of the ID token
	if identity.Email == "" {
		userInfo, err := p.fetchUserInfo(ctx, oauth2Token)
		if err != nil {
			return nil, err
		}
		for k, v := range userInfo {
			if _, exists := claims[k]; !exists {
				claims[k] = v
			}
		}
		identity = identityFromClaims(claims, p.config.AttributeMapping, p.config.ProviderName)
		identity.AccessToken = oauth2Token.AccessToken
	}

	if identity.Subject == "" {
		identity.Subject = idToken.Subject
	}
	if identity.Email == "" {
		return nil, fmt.Errorf("missing email in OIDC token")
	}
	return identity, nil
}

func (p *OIDCProvider) fetchUserInfo(ctx context.Context, token *oauth2.Token) (map[string]interface{}, error) {
	userInfo, err := p.provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}

	var claims map[string]interface{}
	if err := userInfo.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}
	return claims, nil
}

// LogoutURL returns the RP-initiated logout URL from discovery or configuration
func (p *OIDCProvider) LogoutURL(postLogoutRedirect string) (string, error) {
	return withPostLogoutRedirect(p.endSession, postLogoutRedirect)
}

// ValidateConfig validates the OIDC configuration
func (p *OIDCProvider) ValidateConfig() error {
	cfg := p.config.OIDCConfig
	if cfg == nil {
		return fmt.Errorf("OIDC config is required")
	}

	if cfg.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if cfg.ClientSecret == "" {
		return fmt.Errorf("client_secret is required")
	}
	if cfg.IssuerURL == "" {
		return fmt.Errorf("issuer_url is required")
	}
	if cfg.RedirectURL == "" {
		return fmt.Errorf("redirect_url is required")
	}
	if !slices.Contains(cfg.Scopes, oidc.ScopeOpenID) {
		return fmt.Errorf("'openid' scope is required for OIDC")
	}
	return nil
}
