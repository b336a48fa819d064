package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/potatocaustic/real-karma-league/internal/domain/bracket"
	"github.com/potatocaustic/real-karma-league/internal/domain/document"
	"github.com/potatocaustic/real-karma-league/internal/domain/game"
	"github.com/potatocaustic/real-karma-league/internal/domain/league"
	"github.com/potatocaustic/real-karma-league/internal/domain/livescoring"
	"github.com/potatocaustic/real-karma-league/internal/domain/roster"
	"github.com/potatocaustic/real-karma-league/internal/platform/logging"
)

const defaultFetchWorkers = 4

type LiveGameConfig struct {
	FetchWorkers int
	// JitterMax spreads each score fetch by a random delay in [0, JitterMax); zero disables it.
	JitterMax time.Duration
	// MaxAttempts is what the score client tries before giving up; reported on degraded scores.
	MaxAttempts int
	// Location decides the calendar day of usage counters.
	Location *time.Location
}

// BracketAdvancer is notified after a postseason game is finalized.
type BracketAdvancer interface {
	AdvanceGames(ctx context.Context, l league.League, seasonID string, games []document.Decoded[game.Game]) (BracketResult, error)
}

// LiveGameService owns the live-game lifecycle: activation, score refresh and finalization.
type LiveGameService struct {
	store     document.Store
	scores    livescoring.ScoreLookup
	teams     roster.Directory
	bracket   bracket.Table
	publisher GameCompletionPublisher
	advancer  BracketAdvancer
	cfg       LiveGameConfig
	logger    *logging.Logger
	metrics   engineMetrics
	now       func() time.Time
}

func NewLiveGameService(
	store document.Store,
	scores livescoring.ScoreLookup,
	teams roster.Directory,
	table bracket.Table,
	cfg LiveGameConfig,
	logger *logging.Logger,
) *LiveGameService {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FetchWorkers <= 0 {
		cfg.FetchWorkers = defaultFetchWorkers
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &LiveGameService{
		store:   store,
		scores:  scores,
		teams:   teams,
		bracket: table,
		cfg:     cfg,
		logger:  logger,
		metrics: newEngineMetrics(),
		now:     time.Now,
	}
}

func (s *LiveGameService) WithGameCompletionPublisher(p GameCompletionPublisher) *LiveGameService {
	s.publisher = p
	return s
}

func (s *LiveGameService) WithBracketAdvancer(a BracketAdvancer) *LiveGameService {
	s.advancer = a
	return s
}

type ActivateGameInput struct {
	GameID         string             `json:"game_id" validate:"required"`
	SeasonID       string             `json:"season_id"`
	CollectionName string             `json:"collection_name" validate:"omitempty,oneof=games post_games exhibition_games"`
	Team1Lineup    []game.LineupEntry `json:"team1_lineup"`
	Team2Lineup    []game.LineupEntry `json:"team2_lineup"`
}

// Activate moves a game into the live set. The pending submission is removed in
// the same commit that creates the live record.
func (s *LiveGameService) Activate(ctx context.Context, l league.League, input ActivateGameInput) (game.LiveGame, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.LiveGameService.Activate", leagueAttr(l), gameAttr(input.GameID))
	defer span.End()

	gameID := strings.TrimSpace(input.GameID)
	if gameID == "" {
		return game.LiveGame{}, fmt.Errorf("%w: game id is required", ErrInvalidInput)
	}
	collection := strings.TrimSpace(input.CollectionName)
	if collection == "" {
		collection = league.GamesCollection
	}
	if !validGameCollection(collection) {
		return game.LiveGame{}, fmt.Errorf("%w: unknown game collection %q", ErrInvalidInput, collection)
	}

	seasonID := strings.TrimSpace(input.SeasonID)
	if seasonID == "" {
		seasonLeague := l
		if collection == league.ExhibitionGamesCollection {
			seasonLeague = league.Major
		}
		season, err := activeSeason(ctx, s.store, seasonLeague)
		if err != nil {
			return game.LiveGame{}, err
		}
		seasonID = season.ID
	}

	gamesPath := seasonGamesPath(l, seasonID, collection)
	scheduled, exists, err := document.GetAs[game.Game](ctx, s.store, gamesPath, gameID)
	if err != nil {
		return game.LiveGame{}, fmt.Errorf("load game: %w", err)
	}
	if !exists {
		return game.LiveGame{}, fmt.Errorf("%w: game %s not found in %s", ErrNotFound, gameID, gamesPath)
	}
	if scheduled.Completed {
		return game.LiveGame{}, fmt.Errorf("%w: game %s is already completed", ErrFailedPrecondition, gameID)
	}

	pending, hasPending, err := document.GetAs[game.PendingGame](ctx, s.store, l.PendingLiveGames(), gameID)
	if err != nil {
		return game.LiveGame{}, fmt.Errorf("load pending game: %w", err)
	}

	team1, team2 := input.Team1Lineup, input.Team2Lineup
	if len(team1) == 0 && hasPending {
		team1 = pending.Team1Lineup
	}
	if len(team2) == 0 && hasPending {
		team2 = pending.Team2Lineup
	}
	if len(team1) == 0 || len(team2) == 0 {
		return game.LiveGame{}, fmt.Errorf("%w: both lineups are required", ErrInvalidInput)
	}

	now := s.now().UTC()
	live := game.LiveGame{
		GameID:         gameID,
		League:         string(l),
		SeasonID:       seasonID,
		CollectionName: collection,
		Date:           scheduled.Date,
		GameType:       scheduled.GameType,
		SeriesID:       scheduled.SeriesID,
		Team1ID:        scheduled.Team1ID,
		Team2ID:        scheduled.Team2ID,
		Team1Lineup:    prepareLineup(team1, scheduled.Team1ID),
		Team2Lineup:    prepareLineup(team2, scheduled.Team2ID),
		ActivatedAt:    now,
	}

	batch := document.NewBatch(s.store.MaxBatchOps())
	if err := batch.Create(l.LiveGames(), gameID, live); err != nil {
		return game.LiveGame{}, err
	}
	if hasPending {
		if err := batch.Delete(l.PendingLiveGames(), gameID); err != nil {
			return game.LiveGame{}, err
		}
	}
	if err := s.store.Commit(ctx, batch); err != nil {
		if errors.Is(err, document.ErrAlreadyExists) {
			return game.LiveGame{}, fmt.Errorf("%w: game %s is already live", ErrAlreadyExists, gameID)
		}
		return game.LiveGame{}, storeError("activate game", err)
	}

	s.logger.InfoContext(ctx, "game activated", "league", l, "game_id", gameID, "season_id", seasonID, "players", len(live.Team1Lineup)+len(live.Team2Lineup))
	return live, nil
}

type RefreshResult struct {
	Games         int      `json:"games"`
	Players       int      `json:"players"`
	FailedFetches int      `json:"failed_fetches"`
	SkippedGames  int      `json:"skipped_games"`
	Dates         []string `json:"dates"`
}

// RefreshAll recomputes scores for every live game of the league.
func (s *LiveGameService) RefreshAll(ctx context.Context, l league.League) (RefreshResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.LiveGameService.RefreshAll", leagueAttr(l))
	defer span.End()

	return s.refresh(ctx, l, livescoring.UsageFullUpdateRequests)
}

func (s *LiveGameService) refresh(ctx context.Context, l league.League, usageField string) (RefreshResult, error) {
	lives, err := s.liveGames(ctx, l)
	if err != nil {
		return RefreshResult{}, err
	}
	if len(lives) == 0 {
		return RefreshResult{}, nil
	}

	requests := scoreRequestsFor(lives)
	outcomes, err := s.fetchScores(ctx, requests)
	if err != nil {
		return RefreshResult{}, err
	}

	result := RefreshResult{Players: len(requests)}
	for _, o := range outcomes {
		if o.err != nil {
			result.FailedFetches++
		}
	}

	now := s.now().UTC()
	refreshed := make([]game.LiveGame, 0, len(lives))
	for _, live := range lives {
		// A failed fetch keeps the last known value; only finalize degrades to zero.
		applyOutcomes(live.Team1Lineup, live.Date, outcomes, false)
		applyOutcomes(live.Team2Lineup, live.Date, outcomes, false)

		flow, _, err := document.GetAs[livescoring.GameFlow](ctx, s.store, l.GameFlow(), live.GameID)
		if err != nil {
			return result, fmt.Errorf("load game flow game_id=%s: %w", live.GameID, err)
		}
		flow.GameID = live.GameID
		team1Total, team2Total := live.Totals()
		flow.Record(now, team1Total, team2Total)

		batch := document.NewBatch(s.store.MaxBatchOps())
		if err := batch.Update(l.LiveGames(), live.GameID, map[string]any{
			"team1_lineup": live.Team1Lineup,
			"team2_lineup": live.Team2Lineup,
			"last_updated": now,
		}); err != nil {
			return result, err
		}
		if err := batch.Set(l.GameFlow(), live.GameID, flow); err != nil {
			return result, err
		}
		if err := s.store.Commit(ctx, batch); err != nil {
			if errors.Is(err, document.ErrNotFound) {
				s.logger.InfoContext(ctx, "live game finalized during refresh, skipping", "league", l, "game_id", live.GameID)
				result.SkippedGames++
				continue
			}
			return result, storeError("write refreshed game", err)
		}
		refreshed = append(refreshed, live)
	}
	result.Games = len(refreshed)

	if err := s.writeLeaderboards(ctx, l, refreshed, usageField, len(requests), now, &result); err != nil {
		return result, err
	}

	s.metrics.addLookups(ctx, usageField, result.Players-result.FailedFetches, result.FailedFetches)
	s.metrics.fullUpdates.Add(ctx, 1)
	s.logger.InfoContext(ctx, "live scores refreshed",
		"league", l,
		"games", result.Games,
		"players", result.Players,
		"failed_fetches", result.FailedFetches,
	)
	return result, nil
}

func (s *LiveGameService) writeLeaderboards(ctx context.Context, l league.League, lives []game.LiveGame, usageField string, requests int, now time.Time, result *RefreshResult) error {
	names, err := s.teams.TeamNames(ctx, l)
	if err != nil {
		s.logger.WarnContext(ctx, "team names unavailable for leaderboard", "league", l, "error", err)
		names = nil
	}

	byDate := make(map[string][]game.LiveGame)
	for _, live := range lives {
		byDate[live.Date] = append(byDate[live.Date], live)
	}
	dates := make([]string, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	writer := document.NewBatchWriter(s.store, 0)
	for _, date := range dates {
		if date == "" {
			continue
		}
		board := livescoring.BuildLeaderboard(date, byDate[date], names, now)
		if err := writer.Set(ctx, l.DailyLeaderboards(), date, board); err != nil {
			return err
		}
	}
	if requests > 0 {
		if err := writer.Increment(ctx, l.UsageStats(), s.usageDay(now), usageField, float64(requests)); err != nil {
			return err
		}
	}
	if err := writer.Flush(ctx); err != nil {
		return storeError("write leaderboard", err)
	}
	result.Dates = dates
	return nil
}

type FinalizeResult struct {
	GameID          string   `json:"game_id"`
	Team1Score      float64  `json:"team1_score"`
	Team2Score      float64  `json:"team2_score"`
	WinnerTeamID    string   `json:"winner_team_id"`
	SeriesWinner    string   `json:"series_winner,omitempty"`
	DegradedPlayers []string `json:"degraded_players,omitempty"`
}

// Finalize fetches final scores, writes permanent lineup records, completes the
// game and removes the live record in one commit. A game that is no longer live
// yields ErrNotFound and writes nothing.
func (s *LiveGameService) Finalize(ctx context.Context, l league.League, gameID string) (FinalizeResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.LiveGameService.Finalize", leagueAttr(l), gameAttr(gameID))
	defer span.End()

	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		return FinalizeResult{}, fmt.Errorf("%w: game id is required", ErrInvalidInput)
	}

	live, exists, err := document.GetAs[game.LiveGame](ctx, s.store, l.LiveGames(), gameID)
	if err != nil {
		return FinalizeResult{}, fmt.Errorf("load live game: %w", err)
	}
	if !exists {
		return FinalizeResult{}, fmt.Errorf("%w: live game %s (already finalized?)", ErrNotFound, gameID)
	}

	requests := scoreRequestsFor([]game.LiveGame{live})
	outcomes, err := s.fetchScores(ctx, requests)
	if err != nil {
		return FinalizeResult{}, err
	}
	degraded := applyOutcomes(live.Team1Lineup, live.Date, outcomes, true)
	degraded = append(degraded, applyOutcomes(live.Team2Lineup, live.Date, outcomes, true)...)
	for _, playerID := range degraded {
		s.logger.WarnContext(ctx, "final score lookup failed, scoring player as zero",
			"league", l,
			"game_id", gameID,
			"player_id", playerID,
			"attempts", s.cfg.MaxAttempts,
			"error", outcomes[scoreRequest{PlayerID: playerID, Date: live.Date}].err,
		)
	}

	team1Total, team2Total := live.Totals()
	winner := game.Winner(live.Team1ID, live.Team2ID, team1Total, team2Total)

	collection := live.CollectionName
	if collection == "" {
		collection = league.GamesCollection
	}
	gamesPath := seasonGamesPath(l, live.SeasonID, collection)
	scheduled, exists, err := document.GetAs[game.Game](ctx, s.store, gamesPath, gameID)
	if err != nil {
		return FinalizeResult{}, fmt.Errorf("load game: %w", err)
	}
	if !exists {
		return FinalizeResult{}, fmt.Errorf("%w: game %s not found in %s", ErrNotFound, gameID, gamesPath)
	}

	seriesWinner, siblings, err := s.resolveSeriesWinner(ctx, gamesPath, gameID, scheduled, winner)
	if err != nil {
		return FinalizeResult{}, err
	}

	now := s.now().UTC()
	batch := document.NewBatch(s.store.MaxBatchOps())
	lineupsPath := seasonLineupsPath(l, live.SeasonID, collection)
	for _, side := range []struct {
		teamID  string
		entries []game.LineupEntry
	}{
		{live.Team1ID, live.Team1Lineup},
		{live.Team2ID, live.Team2Lineup},
	} {
		for _, entry := range side.entries {
			record := game.FinalLineup{
				LineupEntry: entry,
				GameID:      gameID,
				SeasonID:    live.SeasonID,
				Date:        live.Date,
				Won:         winner != "" && winner == side.teamID,
				FinalizedAt: now,
			}
			if err := batch.Set(lineupsPath, game.LineupDocID(gameID, entry.PlayerID), record); err != nil {
				return FinalizeResult{}, err
			}
		}
	}

	gameFields := map[string]any{
		"completed":      true,
		"team1_score":    team1Total,
		"team2_score":    team2Total,
		"winner_team_id": winner,
		"finalized_at":   now,
	}
	if seriesWinner != "" {
		gameFields["series_winner"] = seriesWinner
		for _, sibling := range siblings {
			if sibling.Value.SeriesWinner == seriesWinner {
				continue
			}
			if err := batch.Update(gamesPath, sibling.ID, map[string]any{"series_winner": seriesWinner}); err != nil {
				return FinalizeResult{}, err
			}
		}
	}
	if err := batch.Update(gamesPath, gameID, gameFields); err != nil {
		return FinalizeResult{}, err
	}
	if err := batch.DeleteExisting(l.LiveGames(), gameID); err != nil {
		return FinalizeResult{}, err
	}
	if len(requests) > 0 {
		if err := batch.Increment(l.UsageStats(), s.usageDay(now), livescoring.UsageFinalizeRequests, float64(len(requests))); err != nil {
			return FinalizeResult{}, err
		}
	}
	if err := s.store.Commit(ctx, batch); err != nil {
		return FinalizeResult{}, storeError("commit finalized game", err)
	}

	s.metrics.addLookups(ctx, livescoring.UsageFinalizeRequests, len(requests)-len(degraded), len(degraded))
	s.metrics.gamesFinalized.Add(ctx, 1)
	s.logger.InfoContext(ctx, "game finalized",
		"league", l,
		"game_id", gameID,
		"team1_score", team1Total,
		"team2_score", team2Total,
		"winner_team_id", winner,
		"series_winner", seriesWinner,
		"degraded_players", len(degraded),
	)

	scheduled.Completed = true
	scheduled.Team1Score, scheduled.Team2Score = team1Total, team2Total
	scheduled.WinnerTeamID = winner
	if seriesWinner != "" {
		scheduled.SeriesWinner = seriesWinner
	}
	scheduled.FinalizedAt = &now
	s.afterFinalize(ctx, l, live, collection, document.Decoded[game.Game]{ID: gameID, Value: scheduled})

	return FinalizeResult{
		GameID:          gameID,
		Team1Score:      team1Total,
		Team2Score:      team2Total,
		WinnerTeamID:    winner,
		SeriesWinner:    seriesWinner,
		DegradedPlayers: degraded,
	}, nil
}

// afterFinalize runs follow-ups that must not undo a committed finalization;
// failures are logged and left to the rollover job.
func (s *LiveGameService) afterFinalize(ctx context.Context, l league.League, live game.LiveGame, collection string, completed document.Decoded[game.Game]) {
	isRelegation := live.GameType == game.GameTypeRelegation || completed.Value.GameType == game.GameTypeRelegation
	if isRelegation && collection == league.ExhibitionGamesCollection && s.publisher != nil {
		event := GameCompletedEvent{SeasonID: live.SeasonID, GameID: live.GameID, CompletedAt: s.now().UTC()}
		if err := s.publisher.PublishGameCompleted(ctx, event); err != nil {
			s.logger.ErrorContext(ctx, "publish relegation game completion failed", "game_id", live.GameID, "season_id", live.SeasonID, "error", err)
		}
	}

	if collection == league.PostGamesCollection && s.advancer != nil {
		if _, err := s.advancer.AdvanceGames(ctx, l, live.SeasonID, []document.Decoded[game.Game]{completed}); err != nil {
			s.logger.ErrorContext(ctx, "bracket advancement after finalize failed", "league", l, "game_id", live.GameID, "error", err)
		}
	}
}

// resolveSeriesWinner counts wins across the completed games of a best-of-N
// series, counting the game being finalized as won by winner. It returns the
// team that has reached the required wins, plus the other completed games.
func (s *LiveGameService) resolveSeriesWinner(ctx context.Context, gamesPath, gameID string, g game.Game, winner string) (string, []document.Decoded[game.Game], error) {
	if winner == "" || g.SeriesID == "" {
		return "", nil, nil
	}
	rule, ok := s.bracket.Rule(g.SeriesID)
	if !ok || !rule.IsSeries() {
		return "", nil, nil
	}

	rows, err := document.QueryAs[game.Game](ctx, s.store, gamesPath, document.Where("series_id", g.SeriesID))
	if err != nil {
		return "", nil, fmt.Errorf("load series %s: %w", g.SeriesID, err)
	}

	wins := map[string]int{winner: 1}
	siblings := make([]document.Decoded[game.Game], 0, len(rows))
	for _, row := range rows {
		if row.ID == gameID || !row.Value.Completed {
			continue
		}
		siblings = append(siblings, row)
		if w := row.Value.WinnerTeamID; w != "" {
			wins[w]++
		}
	}

	need := rule.WinsNeeded()
	if wins[winner] >= need {
		return winner, siblings, nil
	}
	for _, team := range []string{g.Team1ID, g.Team2ID} {
		if wins[team] >= need {
			return team, siblings, nil
		}
	}
	return "", nil, nil
}

func (s *LiveGameService) liveGames(ctx context.Context, l league.League) ([]game.LiveGame, error) {
	rows, err := document.QueryAs[game.LiveGame](ctx, s.store, l.LiveGames())
	if err != nil {
		return nil, fmt.Errorf("list live games league=%s: %w", l, err)
	}
	out := make([]game.LiveGame, 0, len(rows))
	for _, row := range rows {
		live := row.Value
		if live.GameID == "" {
			live.GameID = row.ID
		}
		out = append(out, live)
	}
	return out, nil
}

func (s *LiveGameService) usageDay(now time.Time) string {
	return now.In(s.cfg.Location).Format(time.DateOnly)
}

type scoreRequest struct {
	PlayerID string
	Date     string
}

type scoreOutcome struct {
	score livescoring.PlayerScore
	err   error
}

func scoreRequestsFor(lives []game.LiveGame) []scoreRequest {
	seen := make(map[scoreRequest]struct{})
	out := make([]scoreRequest, 0)
	for _, live := range lives {
		for _, p := range live.Players() {
			req := scoreRequest{PlayerID: p.PlayerID, Date: live.Date}
			if p.PlayerID == "" {
				continue
			}
			if _, ok := seen[req]; ok {
				continue
			}
			seen[req] = struct{}{}
			out = append(out, req)
		}
	}
	return out
}

// fetchScores looks up every request on a bounded ants pool.
func (s *LiveGameService) fetchScores(ctx context.Context, requests []scoreRequest) (map[scoreRequest]scoreOutcome, error) {
	out := make(map[scoreRequest]scoreOutcome, len(requests))
	if len(requests) == 0 {
		return out, nil
	}

	pool, err := ants.NewPool(min(s.cfg.FetchWorkers, len(requests)))
	if err != nil {
		return nil, fmt.Errorf("create score fetch pool: %w", err)
	}
	defer pool.Release()

	var (
		mu      sync.Mutex
		workers sync.WaitGroup
	)
	for _, req := range requests {
		workers.Add(1)
		if err := pool.Submit(func() {
			defer workers.Done()
			s.jitter(ctx)
			score, err := s.scores.LookupScore(ctx, req.PlayerID, req.Date)
			mu.Lock()
			out[req] = scoreOutcome{score: score, err: err}
			mu.Unlock()
		}); err != nil {
			workers.Done()
			workers.Wait()
			return nil, fmt.Errorf("submit score lookup: %w", err)
		}
	}
	workers.Wait()
	return out, nil
}

func (s *LiveGameService) jitter(ctx context.Context) {
	if s.cfg.JitterMax <= 0 {
		return
	}
	timer := time.NewTimer(rand.N(s.cfg.JitterMax))
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// applyOutcomes writes fetched scores into entries and returns the players whose
// fetch failed. With degrade set, failed players score zero.
func applyOutcomes(entries []game.LineupEntry, date string, outcomes map[scoreRequest]scoreOutcome, degrade bool) []string {
	var failed []string
	for i := range entries {
		o, ok := outcomes[scoreRequest{PlayerID: entries[i].PlayerID, Date: date}]
		if !ok {
			continue
		}
		if o.err != nil {
			failed = append(failed, entries[i].PlayerID)
			if degrade {
				entries[i].ApplyScore(0, 0)
			}
			continue
		}
		entries[i].ApplyScore(o.score.RawScoreDelta, o.score.RankToday)
	}
	return failed
}

func prepareLineup(entries []game.LineupEntry, teamID string) []game.LineupEntry {
	out := make([]game.LineupEntry, 0, len(entries))
	for _, e := range entries {
		e.PlayerID = strings.TrimSpace(e.PlayerID)
		if e.PlayerID == "" {
			continue
		}
		if e.TeamID == "" {
			e.TeamID = teamID
		}
		e.ApplyScore(e.RawScore, e.GlobalRank)
		out = append(out, e)
	}
	return out
}

func validGameCollection(name string) bool {
	switch name {
	case league.GamesCollection, league.PostGamesCollection, league.ExhibitionGamesCollection:
		return true
	default:
		return false
	}
}

// Exhibition games are shared between leagues and live under the major league.
func seasonGamesPath(l league.League, seasonID, collection string) string {
	if collection == league.ExhibitionGamesCollection {
		return league.Major.SeasonGames(seasonID, collection)
	}
	return l.SeasonGames(seasonID, collection)
}

func seasonLineupsPath(l league.League, seasonID, collection string) string {
	if collection == league.ExhibitionGamesCollection {
		return league.Major.SeasonLineups(seasonID, collection)
	}
	return l.SeasonLineups(seasonID, collection)
}
