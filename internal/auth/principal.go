package auth

import (
	"context"

	"github.com/oindividum/bankcards-service/internal/models"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID   int64
	Username string
	Roles    []models.Role
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom fetches the principal stored by WithPrincipal.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
