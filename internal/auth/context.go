package auth

import "context"

type contextKey string

const grantKey contextKey = "auth.grant"

// WithGrant attaches an authenticated grant to the request context.
func WithGrant(ctx context.Context, g *Grant) context.Context {
	return context.WithValue(ctx, grantKey, g)
}

// GrantFromContext returns the grant attached by WithGrant, if any.
func GrantFromContext(ctx context.Context) (*Grant, bool) {
	g, ok := ctx.Value(grantKey).(*Grant)
	return g, ok
}
