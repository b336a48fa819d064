package docstore

import (
	"context"
	"fmt"

	"github.com/potatocaustic/real-karma-league/internal/domain/document"
	"github.com/potatocaustic/real-karma-league/internal/domain/league"
	"github.com/potatocaustic/real-karma-league/internal/domain/roster"
)

type TeamDirectory struct {
	store document.Store
}

func NewTeamDirectory(store document.Store) *TeamDirectory {
	return &TeamDirectory{store: store}
}

func (d *TeamDirectory) TeamNames(ctx context.Context, l league.League) (map[string]string, error) {
	teams, err := document.QueryAs[roster.Team](ctx, d.store, l.Teams())
	if err != nil {
		return nil, fmt.Errorf("list teams league=%s: %w", l, err)
	}

	out := make(map[string]string, len(teams))
	for _, item := range teams {
		name := item.Value.TeamName
		if name == "" {
			name = item.ID
		}
		out[item.ID] = name
	}
	return out, nil
}
