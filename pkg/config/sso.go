package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/Kxd395/AxxessWebUI/pkg/sso"
)

// SSOConfig holds the federated login provider settings. Provider is empty
// when SSO is disabled.
type SSOConfig struct {
	Provider     sso.ProviderName
	Tenant       string // Entra directory (tenant) id
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// Overrides for the provider preset
	IssuerURL   string
	AuthURL     string
	TokenURL    string
	UserInfoURL string
	LogoutURL   string

	// LogoutRedirectURL is where the provider sends the browser after logout
	LogoutRedirectURL string
	MaxConcurrent     int64

	SAML SAMLSettings
}

// SAMLSettings holds SAML provider settings. Certificate and key fields take
// inline PEM or a path to a PEM file.
type SAMLSettings struct {
	EntityID      string
	SSOURL        string
	SLOURL        string
	Certificate   string
	SPEntityID    string
	ACSURL        string
	SPCertificate string
	SPPrivateKey  string
	SignRequests  bool
}

func loadSSOConfig() SSOConfig {
	return SSOConfig{
		Provider:          sso.ProviderName(strings.ToLower(getEnv("WEBUI_SSO_PROVIDER", ""))),
		Tenant:            getEnv("WEBUI_SSO_TENANT_ID", ""),
		ClientID:          getEnv("WEBUI_SSO_CLIENT_ID", ""),
		ClientSecret:      getEnv("WEBUI_SSO_CLIENT_SECRET", ""),
		RedirectURL:       getEnv("WEBUI_SSO_REDIRECT_URL", ""),
		Scopes:            getEnvList("WEBUI_SSO_SCOPES", nil),
		IssuerURL:         getEnv("WEBUI_SSO_ISSUER_URL", ""),
		AuthURL:           getEnv("WEBUI_SSO_AUTH_URL", ""),
		TokenURL:          getEnv("WEBUI_SSO_TOKEN_URL", ""),
		UserInfoURL:       getEnv("WEBUI_SSO_USERINFO_URL", ""),
		LogoutURL:         getEnv("WEBUI_SSO_LOGOUT_URL", ""),
		LogoutRedirectURL: getEnv("WEBUI_SSO_LOGOUT_REDIRECT_URL", ""),
		MaxConcurrent:     int64(getEnvInt("WEBUI_SSO_MAX_CONCURRENT", sso.DefaultMaxConcurrent)),
		SAML: SAMLSettings{
			EntityID:      getEnv("WEBUI_SAML_IDP_ENTITY_ID", ""),
			SSOURL:        getEnv("WEBUI_SAML_IDP_SSO_URL", ""),
			SLOURL:        getEnv("WEBUI_SAML_IDP_SLO_URL", ""),
			Certificate:   getEnv("WEBUI_SAML_IDP_CERTIFICATE", ""),
			SPEntityID:    getEnv("WEBUI_SAML_SP_ENTITY_ID", ""),
			ACSURL:        getEnv("WEBUI_SAML_ACS_URL", ""),
			SPCertificate: getEnv("WEBUI_SAML_SP_CERTIFICATE", ""),
			SPPrivateKey:  getEnv("WEBUI_SAML_SP_PRIVATE_KEY", ""),
			SignRequests:  getEnvBool("WEBUI_SAML_SIGN_REQUESTS", false),
		},
	}
}

// Enabled reports whether a provider is configured
func (c SSOConfig) Enabled() bool {
	return c.Provider != ""
}

// Validate builds the provider configuration and validates it
func (c SSOConfig) Validate() error {
	_, err := c.ProviderConfig()
	return err
}

// ProviderConfig starts from the preset for c.Provider and applies the
// configured credentials and overrides.
func (c SSOConfig) ProviderConfig() (*sso.ProviderConfig, error) {
	pc, err := sso.PresetConfig(c.Provider, c.Tenant)
	if err != nil {
		return nil, err
	}

	switch pc.ProviderType {
	case sso.ProviderTypeOAuth2:
		o := pc.OAuth2Config
		o.ClientID = c.ClientID
		o.ClientSecret = c.ClientSecret
		o.RedirectURL = c.RedirectURL
		override(&o.AuthURL, c.AuthURL)
		override(&o.TokenURL, c.TokenURL)
		override(&o.UserInfoURL, c.UserInfoURL)
		override(&o.LogoutURL, c.LogoutURL)
		if len(c.Scopes) > 0 {
			o.Scopes = c.Scopes
		}
		if o.ClientID == "" || o.AuthURL == "" || o.TokenURL == "" || o.UserInfoURL == "" {
			return nil, fmt.Errorf("client id, auth url, token url and userinfo url are required for %s", c.Provider)
		}

	case sso.ProviderTypeOIDC:
		o := pc.OIDCConfig
		o.ClientID = c.ClientID
		o.ClientSecret = c.ClientSecret
		o.RedirectURL = c.RedirectURL
		override(&o.IssuerURL, c.IssuerURL)
		override(&o.LogoutURL, c.LogoutURL)
		if len(c.Scopes) > 0 {
			o.Scopes = c.Scopes
		}
		if o.ClientID == "" || o.IssuerURL == "" {
			return nil, fmt.Errorf("client id and issuer url are required for %s", c.Provider)
		}

	case sso.ProviderTypeSAML:
		s := pc.SAMLConfig
		s.EntityID = c.SAML.EntityID
		s.SSOURL = c.SAML.SSOURL
		s.SLOURL = c.SAML.SLOURL
		s.SPEntityID = c.SAML.SPEntityID
		s.AssertionConsumerServiceURL = c.SAML.ACSURL
		s.SignRequests = c.SAML.SignRequests
		if s.Certificate, err = readPEM(c.SAML.Certificate); err != nil {
			return nil, fmt.Errorf("failed to read IdP certificate: %w", err)
		}
		if s.SPCertificate, err = readPEM(c.SAML.SPCertificate); err != nil {
			return nil, fmt.Errorf("failed to read SP certificate: %w", err)
		}
		if s.PrivateKey, err = readPEM(c.SAML.SPPrivateKey); err != nil {
			return nil, fmt.Errorf("failed to read SP private key: %w", err)
		}
		if s.SSOURL == "" || s.Certificate == "" {
			return nil, fmt.Errorf("IdP SSO url and certificate are required for %s", c.Provider)
		}
	}

	if c.RedirectURL == "" && pc.ProviderType != sso.ProviderTypeSAML {
		return nil, fmt.Errorf("redirect url is required for %s", c.Provider)
	}
	return pc, nil
}

func override(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

// readPEM returns value when it is inline PEM, otherwise the contents of the file it names
func readPEM(value string) (string, error) {
	if value == "" || strings.HasPrefix(strings.TrimSpace(value), "-----BEGIN") {
		return value, nil
	}
	data, err := os.ReadFile(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
