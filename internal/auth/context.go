package auth

import "context"

type principalKey struct{}

// Principal is the paired client behind a request.
type Principal struct {
	DeviceID   string
	DeviceName string
}

// WithPrincipal attaches the authenticated client to ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the authenticated client, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
