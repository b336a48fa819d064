package roster

import (
	"context"

	"github.com/potatocaustic/real-karma-league/internal/domain/league"
)

// Directory resolves team display data for a league.
type Directory interface {
	TeamNames(ctx context.Context, l league.League) (map[string]string, error)
}
