package shared

import "context"

// Principal is the caller identity forwarded by the authentication gateway.
type Principal struct {
	TenantID int64
	UserID   int64
}

// Valid reports whether both identifiers are present.
func (p Principal) Valid() bool {
	return p.TenantID > 0 && p.UserID > 0
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok && p.Valid()
}
