// Package sso signs users in through an external identity provider.
//
// A Provider speaks one protocol: plain OAuth2 with a userinfo endpoint (the
// Microsoft Entra preset, which reads Microsoft Graph /me), OpenID Connect with
// discovery, or SAML 2.0 with the HTTP-POST binding. Each returns a typed
// Identity from its callback.
//
// Callbacks go through a ClientPool, which bounds concurrent token exchanges
// and gives each request its own ProviderHandle:
//
//	handle, err := pool.Acquire(ctx)
//	if err != nil {
//		return err
//	}
//	defer handle.Release()
//	identity, err := handle.Exchange(ctx, r)
//
// The Bridge then maps the identity onto a local account. Unknown emails are
// provisioned through the regular signup path with a random password, so the
// signup toggle and the signup webhook apply. Known emails only get their
// stored identity refreshed. Either way the caller receives a normal session.
//
// Handlers mount three routes: /signin/sso redirects to the provider with a
// state cookie, /signin/callback (GET, or POST for SAML) verifies the state
// and completes the sign-in, and /signin/ssoout redirects to the provider's
// logout endpoint. Every callback failure is answered with the same 500
// response; the cause is only logged.
package sso
