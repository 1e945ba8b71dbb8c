// Package api provides the HTTP API of the auth service.
//
// # Overview
//
// Server mounts the account routes under /api/v1/auths on a gorilla/mux
// router. Every request passes through request ID, panic recovery, logging,
// body size and (when configured) Prometheus middleware, and the whole router
// can be wrapped in otelhttp for tracing.
//
// # Routes
//
// Public:
//
//	POST /signin               password or trusted-header sign-in (rate limited)
//	POST /signup               self-registration
//
// Session (Bearer token, API key, "token" cookie or trusted header):
//
//	GET    /                   current user
//	POST   /update/profile     name and profile image URL
//	POST   /update/password    password change
//	POST   /update/profile/image  multipart image upload
//	POST   /api_key            create or replace the API key
//	GET    /api_key            current API key
//	DELETE /api_key            remove the API key
//
// Admin:
//
//	POST /add                      create a user with an explicit role
//	GET  /signup/enabled           signup flag
//	GET  /signup/enabled/toggle    flip the signup flag
//	GET  /signup/user/role         default role of new accounts
//	POST /signup/user/role         change the default role
//	GET  /token/expires            token expiry string
//	POST /token/expires/update     change the token expiry
//
// The SSO routes (/signin/sso, /signin/callback, /signin/ssoout) are
// registered from package sso when a provider is configured. Uploaded profile
// images are served from /files/profile/{name}.
//
// Errors are written as {"detail": "..."} with the status chosen by
// httputil.StatusFor.
//
// # Operations endpoints
//
// NewOpsRouter serves /health, /health/live, /health/ready and /metrics for a
// separate listener.
package api
