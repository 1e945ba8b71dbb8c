// Package auth provides account authentication and session issuance.
//
// # Overview
//
// The Service orchestrates password sign-in, self-service signup, admin-created
// accounts, profile and password updates, and API key management against a
// Store. Session tokens are stateless HS256 JWTs minted by a TokenIssuer; their
// lifetime comes from the runtime Settings.
//
// # Accounts
//
// Emails are normalized to lowercase before every lookup and insert. The store
// enforces uniqueness, so two concurrent signups for the same address yield one
// account and one ErrEmailTaken. The first account ever created is an admin:
//
//	svc, _ := auth.NewService(auth.ServiceConfig{
//		Store:    store,
//		Issuer:   issuer,
//		Settings: auth.NewSettings(auth.SettingsSnapshot{EnableSignup: true, DefaultUserRole: auth.RolePending}),
//	})
//	user, err := svc.Signup(ctx, auth.SignupRequest{Email: "Ada@Example.com", Password: "pw", Name: "Ada"})
//	// user.Email == "ada@example.com", user.Role == auth.RoleAdmin on an empty store
//
// # Tokens and API keys
//
//	session, err := svc.NewSession(user)   // {token, token_type: "Bearer", id, email, ...}
//	key, err := svc.CreateAPIKey(ctx, user.ID) // sk-<32 hex>
//	user, method, err := svc.ResolveToken(ctx, bearer)
//
// Token expiry strings follow ValidDuration: "-1" and "0" disable expiry, other
// values are a signed number followed by ms, s, m, h, d or w. Invalid strings
// passed to Settings.SetTokenExpiry are ignored.
//
// # Trusted header mode
//
// When ServiceConfig.TrustedEmailHeader is set, an upstream proxy asserts the
// caller's email. AuthenticateTrusted provisions unknown emails on first sight
// and UpdatePassword returns ErrActionProhibited.
//
// # Federated identities
//
// ResolveFederated is the find-or-create step used by the SSO bridge. Existing
// accounts only get their extra_sso payload refreshed.
package auth
