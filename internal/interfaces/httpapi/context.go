package httpapi

import (
	"context"
	"fmt"

	"github.com/potatocaustic/real-karma-league/internal/domain/user"
	"github.com/potatocaustic/real-karma-league/internal/usecase"
)

type principalKey struct{}

func withPrincipal(ctx context.Context, p user.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// principalFromContext returns the caller RequireAuth resolved. Routes that
// skip RequireAuth have none and get ErrUnauthorized.
func principalFromContext(ctx context.Context) (user.Principal, error) {
	if p, ok := ctx.Value(principalKey{}).(user.Principal); ok {
		return p, nil
	}
	return user.Principal{}, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized)
}
