// Package auth resolves callers: end users through the identity provider and
// operators through locally issued keys.
package auth

import (
	"context"

	"github.com/tollgate/tollgate/internal/model"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	identityContextKey contextKey = "identity"
	operatorContextKey contextKey = "operator"
)

// ContextWithIdentity adds a resolved end-user identity to the context.
func ContextWithIdentity(ctx context.Context, id *model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext returns the resolved identity, or nil.
func IdentityFromContext(ctx context.Context) *model.Identity {
	id, _ := ctx.Value(identityContextKey).(*model.Identity)
	return id
}

// UserIDFromContext returns the authenticated user ID, or "".
func UserIDFromContext(ctx context.Context) string {
	if id := IdentityFromContext(ctx); id != nil {
		return id.UserID
	}
	return ""
}

// ContextWithOperator adds an authenticated operator to the context.
func ContextWithOperator(ctx context.Context, op *model.OperatorContext) context.Context {
	return context.WithValue(ctx, operatorContextKey, op)
}

// OperatorFromContext returns the authenticated operator, or nil.
func OperatorFromContext(ctx context.Context) *model.OperatorContext {
	op, _ := ctx.Value(operatorContextKey).(*model.OperatorContext)
	return op
}
