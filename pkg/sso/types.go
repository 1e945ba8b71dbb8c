package sso

import (
	"encoding/json"
	"fmt"
)

// ProviderType represents the SSO protocol
type ProviderType string

const (
	ProviderTypeSAML   ProviderType = "saml"
	ProviderTypeOAuth2 ProviderType = "oauth2"
	ProviderTypeOIDC   ProviderType = "oidc"
)

// ProviderName identifies a provider preset
type ProviderName string

const (
	ProviderEntra         ProviderName = "entra"
	ProviderOkta          ProviderName = "okta"
	ProviderGoogle        ProviderName = "google"
	ProviderGenericSAML   ProviderName = "generic_saml"
	ProviderGenericOAuth2 ProviderName = "generic_oauth2"
	ProviderGenericOIDC   ProviderName = "generic_oidc"
)

// ProviderConfig represents SSO provider configuration
type ProviderConfig struct {
	ProviderType     ProviderType  `json:"provider_type"`
	ProviderName     ProviderName  `json:"provider_name"`
	SAMLConfig       *SAMLConfig   `json:"saml_config,omitempty"`
	OAuth2Config     *OAuth2Config `json:"oauth2_config,omitempty"`
	OIDCConfig       *OIDCConfig   `json:"oidc_config,omitempty"`
	AttributeMapping AttributeMap  `json:"attribute_mapping"`
}

// SAMLConfig holds SAML 2.0 configuration
type SAMLConfig struct {
	EntityID                    string `json:"entity_id"` // IdP issuer
	SSOURL                      string `json:"sso_url"`
	SLOURL                      string `json:"slo_url,omitempty"`
	Certificate                 string `json:"certificate"` // PEM encoded IdP certificate
	PrivateKey                  string `json:"-"`           // SP signing key, PEM
	SPCertificate               string `json:"sp_certificate,omitempty"`
	SPEntityID                  string `json:"sp_entity_id"`
	AssertionConsumerServiceURL string `json:"acs_url"`
	SignRequests                bool   `json:"sign_requests"`
	NameIDFormat                string `json:"name_id_format,omitempty"`
}

// OAuth2Config holds OAuth2 configuration
type OAuth2Config struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"-"`
	AuthURL      string   `json:"auth_url"`
	TokenURL     string   `json:"token_url"`
	UserInfoURL  string   `json:"user_info_url"`
	LogoutURL    string   `json:"logout_url,omitempty"`
	RedirectURL  string   `json:"redirect_url"`
	Scopes       []string `json:"scopes"`
}

// OIDCConfig holds OpenID Connect configuration
type OIDCConfig struct {
	ClientID        string   `json:"client_id"`
	ClientSecret    string   `json:"-"`
	IssuerURL       string   `json:"issuer_url"` // Discovery endpoint
	RedirectURL     string   `json:"redirect_url"`
	Scopes          []string `json:"scopes"`
	SkipIssuerCheck bool     `json:"skip_issuer_check,omitempty"`
	// LogoutURL overrides the discovered end_session_endpoint
	LogoutURL string `json:"logout_url,omitempty"`
}

// AttributeMap defines which provider claims fill the identity fields
type AttributeMap struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	AltEmail  string `json:"alt_email,omitempty"` // Used when Email is absent
	FullName  string `json:"full_name,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Picture   string `json:"picture,omitempty"`
	Groups    string `json:"groups,omitempty"`
}

// Identity is the user asserted by a provider after a successful callback.
// Its JSON form is stored on the user as extra_sso.
type Identity struct {
	Subject     string                 `json:"id"`
	Email       string                 `json:"email"`
	FirstName   string                 `json:"first_name,omitempty"`
	LastName    string                 `json:"last_name,omitempty"`
	DisplayName string                 `json:"display_name"`
	Picture     string                 `json:"picture,omitempty"`
	Groups      []string               `json:"groups,omitempty"`
	Provider    string                 `json:"provider"`
	AccessToken string                 `json:"access_token,omitempty"`
	Claims      map[string]interface{} `json:"claims,omitempty"`
}

// Payload serializes the identity for storage
func (i *Identity) Payload() (string, error) {
	data, err := json.Marshal(i)
	if err != nil {
		return "", fmt.Errorf("failed to encode identity: %w", err)
	}
	return string(data), nil
}

// Name returns the best available display name
func (i *Identity) Name() string {
	switch {
	case i.DisplayName != "":
		return i.DisplayName
	case i.FirstName != "" || i.LastName != "":
		if i.FirstName != "" && i.LastName != "" {
			return i.FirstName + " " + i.LastName
		}
		return i.FirstName + i.LastName
	default:
		return i.Email
	}
}

// identityFromClaims maps raw provider claims onto an Identity
func identityFromClaims(claims map[string]interface{}, mapping AttributeMap, provider ProviderName) *Identity {
	identity := &Identity{
		Subject:     getStringValue(claims, mapping.UserID),
		Email:       getStringValue(claims, mapping.Email),
		FirstName:   getStringValue(claims, mapping.FirstName),
		LastName:    getStringValue(claims, mapping.LastName),
		DisplayName: getStringValue(claims, mapping.FullName),
		Picture:     getStringValue(claims, mapping.Picture),
		Groups:      getArrayValue(claims, mapping.Groups),
		Provider:    string(provider),
		Claims:      claims,
	}
	if identity.Email == "" {
		identity.Email = getStringValue(claims, mapping.AltEmail)
	}
	return identity
}

func getStringValue(data map[string]interface{}, key string) string {
	if key == "" {
		return ""
	}
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getArrayValue(data map[string]interface{}, key string) []string {
	if key == "" {
		return nil
	}
	switch val := data[key].(type) {
	case []interface{}:
		result := make([]string, 0, len(val))
		for _, item := range val {
			if str, ok := item.(string); ok {
				result = append(result, str)
			}
		}
		return result
	case []string:
		return val
	}
	return nil
}
