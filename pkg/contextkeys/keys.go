// Package contextkeys defines the context keys shared across packages.
//
// Keys live here so that middleware and handlers agree on them without
// importing each other.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey contains *auth.AuthContext.
	// Set by middleware.AuthMiddleware, read by every session-protected handler.
	AuthKey Key = "auth_context"
)

// WithAuth adds authentication context to the context
func WithAuth(ctx context.Context, authCtx interface{}) context.Context {
	return context.WithValue(ctx, AuthKey, authCtx)
}
