package auth

import (
	"context"

	"github.com/tierhost/tierhost/internal/model"
)

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal stores the authenticated principal in ctx.
func WithPrincipal(ctx context.Context, p *model.AuthContext) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the authenticated principal, or nil.
func PrincipalFrom(ctx context.Context) *model.AuthContext {
	p, ok := ctx.Value(principalKey).(*model.AuthContext)
	if !ok {
		return nil
	}
	return p
}

// UserIDFrom returns the authenticated user's id, or "".
func UserIDFrom(ctx context.Context) string {
	if p := PrincipalFrom(ctx); p != nil {
		return p.UserID
	}
	return ""
}
