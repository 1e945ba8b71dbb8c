// Package config loads the service configuration from WEBUI_* environment
// variables and persists the admin-editable runtime settings.
//
// LoadConfig reads server, storage, auth, SSO, webhook and observability
// settings and validates them. SSOConfig.ProviderConfig turns the SSO
// variables into an sso.ProviderConfig, starting from the provider preset
// (entra, okta, google, generic_oidc, generic_oauth2, generic_saml).
//
// RuntimeStore keeps auth.Settings (signup toggle, default role, JWT expiry)
// in a YAML file. Admin changes are written back atomically, and edits made
// to the file by an operator are picked up through fsnotify.
package config
