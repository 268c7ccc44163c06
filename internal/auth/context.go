package auth

import (
	"context"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

type principalContextKey struct{}

// ContextWithPrincipal stores the principal and its actor id in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	ctx = shared.ContextWithActor(ctx, p.UserID)
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
