package authz

import "context"

// principalCtxKey is the context key for storing the current principal.
type principalCtxKey struct{}

// WithPrincipal stores the authenticated principal in the context. The
// authentication layer calls this after resolving the subject.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// PrincipalFromContext retrieves the principal from the context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalCtxKey{}).(*Principal)
	return p, ok && p != nil
}
