// Package middleware provides HTTP middleware for authentication,
// authorization and rate limiting.
//
// AuthMiddleware resolves the caller from a trusted proxy header (when
// configured), a bearer session token, an sk- API key or the token cookie,
// and stores an *auth.AuthContext in the request context:
//
//	authn := middleware.NewAuthMiddleware(service, false, logger)
//	admin := router.NewRoute().Subrouter()
//	admin.Use(authn.Handler, middleware.RequireAdmin)
//
// RateLimitMiddleware limits requests per client IP with either an
// in-process token bucket (RateLimiter) or a Redis fixed window shared by
// all replicas (DistributedRateLimiter). Redis errors fail open by default.
package middleware
