package usecase

import (
	"context"
	"fmt"

	"github.com/potatocaustic/real-karma-league/internal/domain/document"
	"github.com/potatocaustic/real-karma-league/internal/domain/league"
)

// activeSeason returns the league's active season; with several, the highest number wins.
func activeSeason(ctx context.Context, store document.Store, l league.League) (league.Season, error) {
	rows, err := document.QueryAs[league.Season](ctx, store, l.Seasons(), document.Where("status", league.SeasonStatusActive))
	if err != nil {
		return league.Season{}, fmt.Errorf("query active season league=%s: %w", l, err)
	}
	if len(rows) == 0 {
		return league.Season{}, fmt.Errorf("%w: no active season for league %s", ErrFailedPrecondition, l)
	}

	var best league.Season
	for _, row := range rows {
		season := row.Value
		season.ID = row.ID
		if best.ID == "" || season.Number() > best.Number() {
			best = season
		}
	}
	return best, nil
}
