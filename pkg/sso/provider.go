package sso

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// EntraScopes are requested from Microsoft Graph by the entra preset
var EntraScopes = []string{
	"User.Read",
	"Directory.Read.All",
	"User.ReadBasic.All",
	"Mail.Read",
	"Mail.Send",
}

const (
	entraLoginBase   = "https://login.microsoftonline.com"
	entraUserInfoURL = "https://graph.microsoft.com/v1.0/me"
)

// Provider is one configured identity provider
type Provider interface {
	// Type returns the protocol (SAML, OAuth2, OIDC)
	Type() ProviderType

	// Name returns the provider preset name
	Name() ProviderName

	// AuthURL returns the URL the browser is sent to for login
	AuthURL(state string) (string, error)

	// Exchange completes the callback and returns the asserted identity
	Exchange(ctx context.Context, r *http.Request) (*Identity, error)

	// LogoutURL returns the provider logout URL. It is empty when the
	// provider has no logout endpoint.
	LogoutURL(postLogoutRedirect string) (string, error)

	// ValidateConfig validates the provider configuration
	ValidateConfig() error
}

// NewProvider creates a provider instance from configuration
func NewProvider(ctx context.Context, config *ProviderConfig) (Provider, error) {
	if config == nil {
		return nil, fmt.Errorf("provider config is required")
	}

	var (
		provider Provider
		err      error
	)
	switch config.ProviderType {
	case ProviderTypeSAML:
		provider, err = NewSAMLProvider(config)
	case ProviderTypeOAuth2:
		provider, err = NewOAuth2Provider(config)
	case ProviderTypeOIDC:
		provider, err = NewOIDCProvider(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", config.ProviderType)
	}
	if err != nil {
		return nil, err
	}

	if err := provider.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("invalid %s provider config: %w", config.ProviderName, err)
	}
	return provider, nil
}

// PresetConfig returns preset configuration for well-known providers.
// tenant is only used by the entra preset.
func PresetConfig(providerName ProviderName, tenant string) (*ProviderConfig, error) {
	switch providerName {
	case ProviderEntra:
		if tenant == "" {
			return nil, fmt.Errorf("tenant is required for provider %s", providerName)
		}
		base := entraLoginBase + "/" + url.PathEscape(tenant) + "/oauth2/v2.0"
		return &ProviderConfig{
			ProviderType: ProviderTypeOAuth2,
			ProviderName: ProviderEntra,
			AttributeMapping: AttributeMap{
				UserID:    "id",
				Email:     "mail",
				AltEmail:  "userPrincipalName",
				FullName:  "displayName",
				FirstName: "givenName",
				LastName:  "surname",
			},
			OAuth2Config: &OAuth2Config{
				AuthURL:     base + "/authorize",
				TokenURL:    base + "/token",
				UserInfoURL: entraUserInfoURL,
				LogoutURL:   base + "/logout",
				Scopes:      append([]string(nil), EntraScopes...),
			},
		}, nil

	case ProviderOkta:
		return &ProviderConfig{
			ProviderType: ProviderTypeOIDC,
			ProviderName: ProviderOkta,
			AttributeMapping: AttributeMap{
				UserID:    "sub",
				Email:     "email",
				AltEmail:  "preferred_username",
				FullName:  "name",
				FirstName: "given_name",
				LastName:  "family_name",
				Groups:    "groups",
			},
			OIDCConfig: &OIDCConfig{
				Scopes: []string{"openid", "profile", "email", "groups"},
			},
		}, nil

	case ProviderGoogle:
		return &ProviderConfig{
			ProviderType: ProviderTypeOIDC,
			ProviderName: ProviderGoogle,
			AttributeMapping: AttributeMap{
				UserID:    "sub",
				Email:     "email",
				FullName:  "name",
				FirstName: "given_name",
				LastName:  "family_name",
				Picture:   "picture",
			},
			OIDCConfig: &OIDCConfig{
				IssuerURL: "https://accounts.google.com",
				Scopes:    []string{"openid", "profile", "email"},
			},
		}, nil

	case ProviderGenericOIDC:
		return &ProviderConfig{
			ProviderType:     ProviderTypeOIDC,
			ProviderName:     ProviderGenericOIDC,
			AttributeMapping: defaultOIDCMapping(),
			OIDCConfig: &OIDCConfig{
				Scopes: []string{"openid", "profile", "email"},
			},
		}, nil

	case ProviderGenericOAuth2:
		return &ProviderConfig{
			ProviderType:     ProviderTypeOAuth2,
			ProviderName:     ProviderGenericOAuth2,
			AttributeMapping: defaultOIDCMapping(),
			OAuth2Config:     &OAuth2Config{},
		}, nil

	case ProviderGenericSAML:
		return &ProviderConfig{
			ProviderType: ProviderTypeSAML,
			ProviderName: ProviderGenericSAML,
			AttributeMapping: AttributeMap{
				Email:     "email",
				FullName:  "displayName",
				FirstName: "givenName",
				LastName:  "surname",
				Groups:    "groups",
			},
			SAMLConfig: &SAMLConfig{},
		}, nil

	default:
		return nil, fmt.Errorf("no preset configuration for provider: %s", providerName)
	}
}

func defaultOIDCMapping() AttributeMap {
	return AttributeMap{
		UserID:    "sub",
		Email:     "email",
		AltEmail:  "preferred_username",
		FullName:  "name",
		FirstName: "given_name",
		LastName:  "family_name",
		Picture:   "picture",
		Groups:    "groups",
	}
}

// withPostLogoutRedirect appends post_logout_redirect_uri to a logout endpoint
func withPostLogoutRedirect(endpoint, postLogoutRedirect string) (string, error) {
	if endpoint == "" {
		return "", nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid logout url: %w", err)
	}
	if postLogoutRedirect != "" {
		q := u.Query()
		q.Set("post_logout_redirect_uri", postLogoutRedirect)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// callbackError returns the error reported by the provider on the callback, if any
func callbackError(r *http.Request) error {
	if code := r.FormValue("error"); code != "" {
		return fmt.Errorf("provider returned error %s: %s", code, r.FormValue("error_description"))
	}
	return nil
}
