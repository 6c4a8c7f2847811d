package auth

import (
	"context"
	"errors"
)

// Principal is the authenticated caller.
type Principal struct {
	Subject string
	Scopes  []string
}

type principalKey struct{}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// GetPrincipal retrieves the Principal from the context.
func GetPrincipal(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok {
		return Principal{}, errors.New("no principal in context")
	}
	return p, nil
}
