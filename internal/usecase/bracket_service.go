package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/potatocaustic/real-karma-league/internal/domain/bracket"
	"github.com/potatocaustic/real-karma-league/internal/domain/document"
	"github.com/potatocaustic/real-karma-league/internal/domain/game"
	"github.com/potatocaustic/real-karma-league/internal/domain/league"
	"github.com/potatocaustic/real-karma-league/internal/platform/logging"
)

type BracketResult struct {
	SeasonID    string   `json:"season_id"`
	Processed   int      `json:"processed"`
	Advanced    []string `json:"advanced"`
	SlotUpdates int      `json:"slot_updates"`
	Pruned      int      `json:"pruned"`
	Commits     int      `json:"commits"`
}

type BracketService struct {
	store   document.Store
	table   bracket.Table
	logger  *logging.Logger
	metrics engineMetrics
}

func NewBracketService(store document.Store, table bracket.Table, logger *logging.Logger) *BracketService {
	if logger == nil {
		logger = logging.Default()
	}
	return &BracketService{
		store:   store,
		table:   table,
		logger:  logger,
		metrics: newEngineMetrics(),
	}
}

type TriggerBracketInput struct {
	SeasonID string `json:"season_id"`
	// Date limits advancement to games played on that day.
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// TriggerUpdate advances the bracket from the season's completed postseason games.
func (s *BracketService) TriggerUpdate(ctx context.Context, l league.League, input TriggerBracketInput) (BracketResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.BracketService.TriggerUpdate")
	defer span.End()

	seasonID := strings.TrimSpace(input.SeasonID)
	if seasonID == "" {
		season, err := activeSeason(ctx, s.store, l)
		if err != nil {
			return BracketResult{}, err
		}
		seasonID = season.ID
	}

	filters := []document.Filter{document.Where("completed", true)}
	if date := strings.TrimSpace(input.Date); date != "" {
		filters = append(filters, document.Where("date", date))
	}
	completed, err := document.QueryAs[game.Game](ctx, s.store, l.SeasonGames(seasonID, league.PostGamesCollection), filters...)
	if err != nil {
		return BracketResult{}, fmt.Errorf("load completed postseason games: %w", err)
	}
	return s.AdvanceGames(ctx, l, seasonID, completed)
}

// AdvanceGames routes winners and losers of decided series into their
// downstream slots and deletes the unplayed games of those series. Each
// source series commits at most once per call, and only when something
// actually changes.
func (s *BracketService) AdvanceGames(ctx context.Context, l league.League, seasonID string, games []document.Decoded[game.Game]) (BracketResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.BracketService.AdvanceGames")
	defer span.End()

	result := BracketResult{SeasonID: seasonID, Advanced: []string{}}
	if len(games) == 0 {
		return result, nil
	}

	postPath := l.SeasonGames(seasonID, league.PostGamesCollection)
	rows, err := document.QueryAs[game.Game](ctx, s.store, postPath)
	if err != nil {
		return result, fmt.Errorf("load postseason games: %w", err)
	}
	bySeries := make(map[string][]document.Decoded[game.Game])
	for _, row := range rows {
		bySeries[row.Value.SeriesID] = append(bySeries[row.Value.SeriesID], row)
	}

	advanced := make(map[string]struct{})
	for _, completed := range games {
		g := completed.Value
		if !g.Completed || g.SeriesID == "" {
			continue
		}
		rule, ok := s.table.Rule(g.SeriesID)
		if !ok {
			continue
		}
		result.Processed++
		if _, done := advanced[g.SeriesID]; done {
			continue
		}

		winner, loser := outcomeOf(g, rule)
		if winner == "" {
			continue
		}
		advanced[g.SeriesID] = struct{}{}

		batch := document.NewBatch(s.store.MaxBatchOps())
		pending := make(map[string]map[string]map[string]any)
		slotUpdates := 0
		for _, route := range []struct {
			slot *bracket.Slot
			team string
		}{
			{rule.Winner, winner},
			{rule.Loser, loser},
		} {
			if route.slot == nil || route.team == "" {
				continue
			}
			seed := route.slot.Seed
			if seed == "" {
				seed = g.SeedOf(route.team)
			}
			destRule, _ := s.table.Rule(route.slot.SeriesID)
			for _, dest := range bySeries[route.slot.SeriesID] {
				fields := slotChanges(dest.Value, *route.slot, route.team, seed, destRule.Round)
				if len(fields) == 0 {
					continue
				}
				if err := batch.Update(postPath, dest.ID, fields); err != nil {
					return result, err
				}
				if pending[route.slot.SeriesID] == nil {
					pending[route.slot.SeriesID] = make(map[string]map[string]any)
				}
				pending[route.slot.SeriesID][dest.ID] = fields
				slotUpdates++
			}
		}

		var pruned []string
		for _, sibling := range bySeries[g.SeriesID] {
			if sibling.Value.Completed || sibling.ID == completed.ID {
				continue
			}
			if err := batch.Delete(postPath, sibling.ID); err != nil {
				return result, err
			}
			pruned = append(pruned, sibling.ID)
		}

		if batch.Len() == 0 {
			continue
		}
		if err := s.store.Commit(ctx, batch); err != nil {
			return result, storeError(fmt.Sprintf("advance series %s", g.SeriesID), err)
		}
		result.Commits++
		result.Advanced = append(result.Advanced, g.SeriesID)
		result.SlotUpdates += slotUpdates
		result.Pruned += len(pruned)

		applyPending(bySeries, pending)
		bySeries[g.SeriesID] = withoutIDs(bySeries[g.SeriesID], pruned)

		s.logger.InfoContext(ctx, "series advanced",
			"league", l,
			"season_id", seasonID,
			"series_id", g.SeriesID,
			"winner", winner,
			"loser", loser,
			"slot_updates", slotUpdates,
			"pruned", len(pruned),
		)
	}

	if writes := result.SlotUpdates + result.Pruned; writes > 0 {
		s.metrics.bracketWrites.Add(ctx, int64(writes))
	}
	return result, nil
}

// outcomeOf returns the winner and loser of g's series, or "" while a
// multi-game series is undecided or a single game ended level.
func outcomeOf(g game.Game, rule bracket.Rule) (string, string) {
	winner := g.WinnerTeamID
	if rule.IsSeries() {
		winner = g.SeriesWinner
	}
	if winner == "" {
		return "", ""
	}
	return winner, g.Opponent(winner)
}

func slotChanges(dest game.Game, slot bracket.Slot, team, seed, round string) map[string]any {
	currentTeam, currentSeed := dest.Team1ID, dest.Team1Seed
	if slot.Field == bracket.FieldTeam2 {
		currentTeam, currentSeed = dest.Team2ID, dest.Team2Seed
	}

	fields := make(map[string]any)
	if currentTeam != team {
		fields[slot.Field] = team
	}
	if seed != "" && currentSeed != seed {
		fields[slot.SeedField()] = seed
	}
	if round != "" && dest.Round != round {
		fields["round"] = round
	}
	return fields
}

func applyPending(bySeries map[string][]document.Decoded[game.Game], pending map[string]map[string]map[string]any) {
	for seriesID, byID := range pending {
		rows := bySeries[seriesID]
		for i := range rows {
			fields, ok := byID[rows[i].ID]
			if !ok {
				continue
			}
			for field, value := range fields {
				v, _ := value.(string)
				switch field {
				case bracket.FieldTeam1:
					rows[i].Value.Team1ID = v
				case bracket.FieldTeam2:
					rows[i].Value.Team2ID = v
				case "team1_seed":
					rows[i].Value.Team1Seed = v
				case "team2_seed":
					rows[i].Value.Team2Seed = v
				case "round":
					rows[i].Value.Round = v
				}
			}
		}
	}
}

func withoutIDs(rows []document.Decoded[game.Game], ids []string) []document.Decoded[game.Game] {
	if len(ids) == 0 {
		return rows
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	out := rows[:0:0]
	for _, row := range rows {
		if _, ok := drop[row.ID]; !ok {
			out = append(out, row)
		}
	}
	return out
}
