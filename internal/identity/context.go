package identity

import "context"

type claimsContextKey struct{}

// ContextWithClaims attaches verified token claims to the context. The
// claims travel as an explicit value set by the authentication boundary,
// never as ambient per-goroutine state.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	if claims == nil {
		return ctx
	}
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext extracts the verified claims set by the
// authentication middleware.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(claimsContextKey{}).(*Claims)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}
