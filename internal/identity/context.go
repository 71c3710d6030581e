package identity

import (
	"context"

	"github.com/quickai/quickai/internal/model"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// identityContextKey is the context key for storing the resolved Identity.
const identityContextKey contextKey = "identity"

// ContextWithIdentity adds a resolved Identity to the context.
func ContextWithIdentity(ctx context.Context, id *model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// FromContext retrieves the Identity from the context.
// Returns nil if not present.
func FromContext(ctx context.Context) *model.Identity {
	id, ok := ctx.Value(identityContextKey).(*model.Identity)
	if !ok {
		return nil
	}
	return id
}

// MustFromContext retrieves the Identity from the context.
// Panics if not present (use only when auth middleware has run).
func MustFromContext(ctx context.Context) *model.Identity {
	id := FromContext(ctx)
	if id == nil {
		panic("identity not found in context - ensure auth middleware is applied")
	}
	return id
}

// UserIDFromContext is a convenience function to get the user ID.
// Returns empty string if not authenticated.
func UserIDFromContext(ctx context.Context) string {
	id := FromContext(ctx)
	if id == nil {
		return ""
	}
	return id.UserID
}
