package sso

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"
)

// SAMLProvider implements SAML 2.0 SSO with the HTTP-POST binding on the callback
type SAMLProvider struct {
	config *ProviderConfig
	sp     *saml2.SAMLServiceProvider
}

// NewSAMLProvider creates a new SAML provider
func NewSAMLProvider(config *ProviderConfig) (*SAMLProvider, error) {
	if config.SAMLConfig == nil {
		return nil, fmt.Errorf("SAML config is required")
	}
	cfg := config.SAMLConfig

	cert, err := parseCertificate(cfg.Certificate)
	if err != nil {
		return nil, err
	}

	certStore := dsig.MemoryX509CertificateStore{
		Roots: []*x509.Certificate{cert},
	}

	var keyStore dsig.X509KeyStore
	if cfg.PrivateKey != "" {
		privateKey, err := parsePrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}

		spCert := cfg.SPCertificate
		if spCert == "" {
			spCert = cfg.Certificate
		}
		block, _ := pem.Decode([]byte(spCert))
		if block == nil {
			return nil, fmt.Errorf("failed to decode SP certificate PEM")
		}

		keyStore = &dsig.TLSCertKeyStore{
			PrivateKey:  privateKey,
			Certificate: [][]byte{block.Bytes},
		}
	}

	sp := &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      cfg.SSOURL,
		IdentityProviderSLOURL:      cfg.SLOURL,
		IdentityProviderIssuer:      cfg.EntityID,
		ServiceProviderIssuer:       cfg.SPEntityID,
		AssertionConsumerServiceURL: cfg.AssertionConsumerServiceURL,
		SignAuthnRequests:           cfg.SignRequests && keyStore != nil,
		AudienceURI:                 cfg.SPEntityID,
		IDPCertificateStore:         &certStore,
		SPKeyStore:                  keyStore,
		AllowMissingAttributes:      true,
	}
	if cfg.NameIDFormat != "" {
		sp.NameIdFormat = cfg.NameIDFormat
	}

	return &SAMLProvider{
		config: config,
		sp:     sp,
	}, nil
}

// Type returns the provider type
func (p *SAMLProvider) Type() ProviderType {
	return ProviderTypeSAML
}

// Name returns the provider name
func (p *SAMLProvider) Name() ProviderName {
	return p.config.ProviderName
}

// AuthURL returns the IdP redirect with an AuthnRequest. state travels as RelayState.
func (p *SAMLProvider) AuthURL(state string) (string, error) {
	authURL, err := p.sp.BuildAuthURL(state)
	if err != nil {
		return "", fmt.Errorf("failed to build auth URL: %w", err)
	}
	return authURL, nil
}

// Exchange validates the posted SAMLResponse
func (p *SAMLProvider) Exchange(ctx context.Context, r *http.Request) (*Identity, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}

	samlResponse := r.PostFormValue("SAMLResponse")
	if samlResponse == "" {
		return nil, fmt.Errorf("missing SAMLResponse parameter")
	}

	// RetrieveAssertionInfo takes the base64 form as posted
	assertionInfo, err := p.sp.RetrieveAssertionInfo(samlResponse)
	if err != nil {
		return nil, fmt.Errorf("failed to validate assertion: %w", err)
	}

	if assertionInfo.WarningInfo != nil {
		if assertionInfo.WarningInfo.InvalidTime {
			return nil, fmt.Errorf("assertion has invalid time")
		}
		if assertionInfo.WarningInfo.NotInAudience {
			return nil, fmt.Errorf("assertion not in expected audience")
		}
	}

	claims := make(map[string]interface{}, len(assertionInfo.Values))
	for name, attr := range assertionInfo.Values {
		switch len(attr.Values) {
		case 0:
		case 1:
			claims[name] = attr.Values[0].Value
		default:
			values := make([]interface{}, 0, len(attr.Values))
			for _, v := range attr.Values {
				values = append(values, v.Value)
			}
			claims[name] = values
		}
	}

	identity := identityFromClaims(claims, p.config.AttributeMapping, p.config.ProviderName)
	if identity.Subject == "" {
		identity.Subject = assertionInfo.NameID
	}
	if identity.Email == "" && strings.Contains(assertionInfo.NameID, "@") {
		identity.Email = assertionInfo.NameID
	}

	if identity.Subject == "" {
		return nil, fmt.Errorf("missing user ID in SAML assertion")
	}
	if identity.Email == "" {
		return nil, fmt.Errorf("missing email in SAML assertion")
	}
	return identity, nil
}

// LogoutURL returns the IdP single logout URL with the post-logout target as RelayState
func (p *SAMLProvider) LogoutURL(postLogoutRedirect string) (string, error) {
	if p.config.SAMLConfig.SLOURL == "" {
		return "", nil
	}

	logoutURL, err := url.Parse(p.config.SAMLConfig.SLOURL)
	if err != nil {
		return "", fmt.Errorf("invalid SLO URL: %w", err)
	}
	if postLogoutRedirect != "" {
		query := logoutURL.Query()
		query.Set("RelayState", postLogoutRedirect)
		logoutURL.RawQuery = query.Encode()
	}
	return logoutURL.String(), nil
}

// ValidateConfig validates the SAML configuration
func (p *SAMLProvider) ValidateConfig() error {
	cfg := p.config.SAMLConfig
	if cfg == nil {
		return fmt.Errorf("SAML config is required")
	}

	if cfg.EntityID == "" {
		return fmt.Errorf("entity_id is required")
	}
	if cfg.SSOURL == "" {
		return fmt.Errorf("sso_url is required")
	}
	if cfg.SPEntityID == "" {
		return fmt.Errorf("sp_entity_id is required")
	}
	if cfg.AssertionConsumerServiceURL == "" {
		return fmt.Errorf("acs_url is required")
	}
	if cfg.Certificate == "" {
		return fmt.Errorf("certificate is required")
	}
	if _, err := parseCertificate(cfg.Certificate); err != nil {
		return err
	}
	if cfg.SignRequests && cfg.PrivateKey == "" {
		return fmt.Errorf("private key is required to sign requests")
	}
	return nil
}

func parseCertificate(certPEM string) (*x509.Certificate, error) {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil {
		return nil, fmt.Errorf("invalid certificate PEM format")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("invalid certificate: %w", err)
	}
	return cert, nil
}

func parsePrivateKey(keyPEM string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(keyPEM))
	if block == nil {
		return nil, fmt.Errorf("failed to decode private key PEM")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	pkcs8Key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	key, ok := pkcs8Key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return key, nil
}
