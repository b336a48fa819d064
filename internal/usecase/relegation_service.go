package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/potatocaustic/real-karma-league/internal/domain/bracket"
	"github.com/potatocaustic/real-karma-league/internal/domain/document"
	"github.com/potatocaustic/real-karma-league/internal/domain/game"
	"github.com/potatocaustic/real-karma-league/internal/domain/league"
	"github.com/potatocaustic/real-karma-league/internal/domain/relegation"
	"github.com/potatocaustic/real-karma-league/internal/domain/roster"
	"github.com/potatocaustic/real-karma-league/internal/platform/id"
	"github.com/potatocaustic/real-karma-league/internal/platform/logging"
)

const defaultPromotionBatchSize = 450

type RelegationConfig struct {
	// PromotionBatchSize caps each commit of a promotion run.
	PromotionBatchSize int
}

// RelegationService runs the end-of-season swap between the worst major team
// and the minor champion.
type RelegationService struct {
	store  document.Store
	ids    id.Generator
	cfg    RelegationConfig
	logger *logging.Logger
	now    func() time.Time

	teamCache TeamCacheInvalidator
}

// TeamCacheInvalidator drops cached team directory entries once teams have
// changed leagues.
type TeamCacheInvalidator interface {
	Invalidate(ctx context.Context)
}

func NewRelegationService(store document.Store, ids id.Generator, cfg RelegationConfig, logger *logging.Logger) *RelegationService {
	if logger == nil {
		logger = logging.Default()
	}
	if ids == nil {
		ids = id.NewUUIDGenerator()
	}
	if cfg.PromotionBatchSize <= 0 {
		cfg.PromotionBatchSize = defaultPromotionBatchSize
	}
	return &RelegationService{
		store:  store,
		ids:    ids,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (s *RelegationService) WithTeamCache(c TeamCacheInvalidator) *RelegationService {
	s.teamCache = c
	return s
}

func RelegationGameID(seasonID string) string {
	return "relegation-" + seasonID
}

func (s *RelegationService) GetRecord(ctx context.Context, seasonID string) (relegation.Record, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.RelegationService.GetRecord")
	defer span.End()

	return s.loadRecord(ctx, seasonID)
}

// DetectMatchup pairs the lowest-sortscore major team with the minor Finals
// winner once both seasons are complete. A season that already has a decided
// record returns it unchanged.
func (s *RelegationService) DetectMatchup(ctx context.Context) (relegation.Record, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.RelegationService.DetectMatchup")
	defer span.End()

	var majorSeason, minorSeason league.Season
	seasons, gctx := errgroup.WithContext(ctx)
	seasons.Go(func() error {
		var err error
		majorSeason, err = activeSeason(gctx, s.store, league.Major)
		return err
	})
	seasons.Go(func() error {
		var err error
		minorSeason, err = activeSeason(gctx, s.store, league.Minor)
		return err
	})
	if err := seasons.Wait(); err != nil {
		return relegation.Record{}, err
	}
	if !majorSeason.IsComplete() || !minorSeason.IsComplete() {
		return relegation.Record{}, fmt.Errorf("%w: both seasons must be complete (major=%q minor=%q)",
			ErrFailedPrecondition, majorSeason.CurrentWeek, minorSeason.CurrentWeek)
	}

	existing, exists, err := document.GetAs[relegation.Record](ctx, s.store, league.RelegationRecordsCollection, majorSeason.ID)
	if err != nil {
		return relegation.Record{}, fmt.Errorf("load relegation record: %w", err)
	}
	if exists && existing.Decided() {
		return existing, nil
	}

	var (
		worst    relegation.TeamRef
		champion *relegation.TeamRef
	)
	lookups, gctx := errgroup.WithContext(ctx)
	lookups.Go(func() error {
		var err error
		worst, err = s.worstTeam(gctx, league.Major, majorSeason.ID)
		return err
	})
	lookups.Go(func() error {
		var err error
		champion, err = s.finalsChampion(gctx, league.Minor, minorSeason.ID)
		return err
	})
	if err := lookups.Wait(); err != nil {
		return relegation.Record{}, err
	}

	now := s.now().UTC()
	record := relegation.Record{
		SeasonID:      majorSeason.ID,
		MinorSeasonID: minorSeason.ID,
		SeasonNumber:  majorSeason.Number(),
		DetectedAt:    &now,
		UpdatedAt:     &now,
	}
	if champion == nil {
		record.Status = relegation.StatusNoChange
	} else {
		record.Status = relegation.StatusMatchupSet
		record.MajorTeam = &worst
		record.MinorChampion = champion
	}

	batch := document.NewBatch(s.store.MaxBatchOps())
	if err := batch.Set(league.RelegationRecordsCollection, record.SeasonID, record); err != nil {
		return relegation.Record{}, err
	}
	if err := s.store.Commit(ctx, batch); err != nil {
		return relegation.Record{}, storeError("write relegation record", err)
	}

	s.logger.InfoContext(ctx, "relegation matchup detected",
		"season_id", record.SeasonID,
		"minor_season_id", record.MinorSeasonID,
		"status", record.Status,
		"major_team", teamRefID(record.MajorTeam),
		"minor_champion", teamRefID(record.MinorChampion),
	)
	return record, nil
}

func (s *RelegationService) worstTeam(ctx context.Context, l league.League, seasonID string) (relegation.TeamRef, error) {
	teams, err := document.QueryAs[roster.Team](ctx, s.store, l.Teams())
	if err != nil {
		return relegation.TeamRef{}, fmt.Errorf("list %s teams: %w", l, err)
	}

	var lowest []relegation.TeamRef
	for _, row := range teams {
		team := row.Value
		team.ID = row.ID
		rec, ok, err := document.GetAs[roster.TeamSeasonRecord](ctx, s.store, l.TeamSeasonalRecords(team.ID), seasonID)
		if err != nil {
			return relegation.TeamRef{}, fmt.Errorf("load season record team=%s: %w", team.ID, err)
		}
		if !ok {
			continue
		}
		switch {
		case len(lowest) == 0 || rec.SortScore < lowest[0].SortScore:
			lowest = []relegation.TeamRef{teamRef(team, rec)}
		case rec.SortScore == lowest[0].SortScore:
			lowest = append(lowest, teamRef(team, rec))
		}
	}
	switch len(lowest) {
	case 0:
		return relegation.TeamRef{}, fmt.Errorf("%w: no %s team has a %s season record", ErrNotFound, l, seasonID)
	case 1:
		return lowest[0], nil
	}

	tied := make([]string, 0, len(lowest))
	for _, ref := range lowest {
		tied = append(tied, ref.TeamID)
	}
	return relegation.TeamRef{}, fmt.Errorf("%w: teams %s share sortscore %v", ErrRelegationTie, strings.Join(tied, ", "), lowest[0].SortScore)
}

// finalsChampion returns nil when the league held no Finals at all.
func (s *RelegationService) finalsChampion(ctx context.Context, l league.League, seasonID string) (*relegation.TeamRef, error) {
	finals, err := document.QueryAs[game.Game](ctx, s.store, l.SeasonGames(seasonID, league.PostGamesCollection), document.Where("series_id", bracket.FinalsSeriesID))
	if err != nil {
		return nil, fmt.Errorf("load %s finals: %w", l, err)
	}
	if len(finals) == 0 {
		return nil, nil
	}

	championID := ""
	for _, g := range finals {
		if g.Value.Completed && g.Value.SeriesWinner != "" {
			championID = g.Value.SeriesWinner
			break
		}
	}
	if championID == "" {
		return nil, fmt.Errorf("%w: %s finals have no series winner yet", ErrFailedPrecondition, l)
	}

	team, ok, err := document.GetAs[roster.Team](ctx, s.store, l.Teams(), championID)
	if err != nil {
		return nil, fmt.Errorf("load champion team: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: champion team %s", ErrNotFound, championID)
	}
	team.ID = championID
	rec, ok, err := document.GetAs[roster.TeamSeasonRecord](ctx, s.store, l.TeamSeasonalRecords(championID), seasonID)
	if err != nil {
		return nil, fmt.Errorf("load champion season record: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: season record for champion %s", ErrNotFound, championID)
	}
	ref := teamRef(team, rec)
	return &ref, nil
}

type ScheduleRelegationInput struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

// ScheduleGame creates the relegation exhibition game in the shared major
// collection and moves the record to scheduled. Rescheduling is allowed until
// the game completes.
func (s *RelegationService) ScheduleGame(ctx context.Context, seasonID string, input ScheduleRelegationInput) (relegation.Record, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.RelegationService.ScheduleGame", seasonAttr(seasonID))
	defer span.End()

	date := strings.TrimSpace(input.Date)
	if date == "" {
		return relegation.Record{}, fmt.Errorf("%w: date is required", ErrInvalidInput)
	}
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return relegation.Record{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}

	record, err := s.loadRecord(ctx, seasonID)
	if err != nil {
		return relegation.Record{}, err
	}
	if record.Status != relegation.StatusMatchupSet && record.Status != relegation.StatusScheduled {
		return relegation.Record{}, fmt.Errorf("%w: relegation record is %s", ErrFailedPrecondition, record.Status)
	}
	if record.MajorTeam == nil || record.MinorChampion == nil {
		return relegation.Record{}, fmt.Errorf("%w: relegation matchup is incomplete", ErrFailedPrecondition)
	}

	gameID := RelegationGameID(record.SeasonID)
	gamesPath := league.Major.SeasonGames(record.SeasonID, league.ExhibitionGamesCollection)
	current, exists, err := document.GetAs[game.Game](ctx, s.store, gamesPath, gameID)
	if err != nil {
		return relegation.Record{}, fmt.Errorf("load relegation game: %w", err)
	}
	if exists && current.Completed {
		return relegation.Record{}, fmt.Errorf("%w: relegation game already completed", ErrFailedPrecondition)
	}

	now := s.now().UTC()
	scheduled := game.Game{
		ID:       gameID,
		Team1ID:  record.MajorTeam.TeamID,
		Team2ID:  record.MinorChampion.TeamID,
		Date:     date,
		Week:     "Relegation",
		GameType: game.GameTypeRelegation,
	}
	ref := relegation.GameRef{SeasonID: record.SeasonID, Collection: league.ExhibitionGamesCollection, GameID: gameID}

	batch := document.NewBatch(s.store.MaxBatchOps())
	if err := batch.Set(gamesPath, gameID, scheduled); err != nil {
		return relegation.Record{}, err
	}
	if err := batch.Update(league.RelegationRecordsCollection, record.SeasonID, map[string]any{
		"status":       relegation.StatusScheduled,
		"game_ref":     ref,
		"game_date":    date,
		"scheduled_at": now,
		"updated_at":   now,
	}); err != nil {
		return relegation.Record{}, err
	}
	if err := s.store.Commit(ctx, batch); err != nil {
		return relegation.Record{}, storeError("schedule relegation game", err)
	}

	record.Status = relegation.StatusScheduled
	record.GameRef = &ref
	record.GameDate = date
	record.ScheduledAt = &now
	record.UpdatedAt = &now
	s.logger.InfoContext(ctx, "relegation game scheduled", "season_id", record.SeasonID, "game_id", gameID, "date", date)
	return record, nil
}

// HandleGameCompleted records the outcome of a finalized relegation game.
// Replays after the record moved on are ignored.
func (s *RelegationService) HandleGameCompleted(ctx context.Context, event GameCompletedEvent) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.RelegationService.HandleGameCompleted", seasonAttr(event.SeasonID), gameAttr(event.GameID))
	defer span.End()

	_, err := s.RecordOutcome(ctx, event)
	return err
}

func (s *RelegationService) RecordOutcome(ctx context.Context, event GameCompletedEvent) (relegation.Record, error) {
	if strings.TrimSpace(event.SeasonID) == "" || strings.TrimSpace(event.GameID) == "" {
		return relegation.Record{}, fmt.Errorf("%w: season_id and game_id are required", ErrInvalidInput)
	}

	record, err := s.loadRecord(ctx, event.SeasonID)
	if err != nil {
		return relegation.Record{}, err
	}
	switch record.Status {
	case relegation.StatusCompleted, relegation.StatusExecuted:
		s.logger.InfoContext(ctx, "relegation outcome already recorded", "season_id", record.SeasonID, "status", record.Status)
		return record, nil
	case relegation.StatusMatchupSet, relegation.StatusScheduled:
	default:
		return relegation.Record{}, fmt.Errorf("%w: relegation record is %s", ErrFailedPrecondition, record.Status)
	}
	if record.MajorTeam == nil || record.MinorChampion == nil {
		return relegation.Record{}, fmt.Errorf("%w: relegation matchup is incomplete", ErrFailedPrecondition)
	}
	if record.GameRef != nil && record.GameRef.GameID != event.GameID {
		return relegation.Record{}, fmt.Errorf("%w: game %s is not the relegation game %s", ErrFailedPrecondition, event.GameID, record.GameRef.GameID)
	}

	gamesPath := league.Major.SeasonGames(record.SeasonID, league.ExhibitionGamesCollection)
	played, exists, err := document.GetAs[game.Game](ctx, s.store, gamesPath, event.GameID)
	if err != nil {
		return relegation.Record{}, fmt.Errorf("load relegation game: %w", err)
	}
	if !exists {
		return relegation.Record{}, fmt.Errorf("%w: relegation game %s", ErrNotFound, event.GameID)
	}
	if !played.Completed || played.GameType != game.GameTypeRelegation {
		return relegation.Record{}, fmt.Errorf("%w: game %s is not a completed relegation game", ErrFailedPrecondition, event.GameID)
	}

	winnerLeague, winnerTeam := relegationWinner(played, record.MajorTeam.TeamID, record.MinorChampion.TeamID)
	if winnerLeague == "" {
		return relegation.Record{}, fmt.Errorf("%w: relegation game %s has no winner", ErrFailedPrecondition, event.GameID)
	}

	now := s.now().UTC()
	ref := relegation.GameRef{SeasonID: record.SeasonID, Collection: league.ExhibitionGamesCollection, GameID: event.GameID}
	fields := map[string]any{
		"status":             relegation.StatusCompleted,
		"winner_league":      winnerLeague,
		"winner_team_id":     winnerTeam,
		"promotion_required": winnerLeague == relegation.WinnerLeagueMinor,
		"completed_at":       now,
		"game_ref":           ref,
		"updated_at":         now,
	}
	batch := document.NewBatch(s.store.MaxBatchOps())
	if err := batch.Update(league.RelegationRecordsCollection, record.SeasonID, fields); err != nil {
		return relegation.Record{}, err
	}
	if err := s.store.Commit(ctx, batch); err != nil {
		return relegation.Record{}, storeError("record relegation outcome", err)
	}

	record.Status = relegation.StatusCompleted
	record.WinnerLeague = winnerLeague
	record.WinnerTeamID = winnerTeam
	record.PromotionRequired = winnerLeague == relegation.WinnerLeagueMinor
	record.CompletedAt = &now
	record.GameRef = &ref
	record.UpdatedAt = &now
	s.logger.InfoContext(ctx, "relegation game outcome recorded",
		"season_id", record.SeasonID,
		"winner_league", winnerLeague,
		"winner_team_id", winnerTeam,
		"promotion_required", record.PromotionRequired,
	)
	return record, nil
}

// relegationWinner trusts the declared winner when it names one of the two
// teams and otherwise compares scores. A level score has no winner.
func relegationWinner(g game.Game, majorTeamID, minorTeamID string) (string, string) {
	switch g.WinnerTeamID {
	case majorTeamID:
		return relegation.WinnerLeagueMajor, majorTeamID
	case minorTeamID:
		return relegation.WinnerLeagueMinor, minorTeamID
	}

	var majorScore, minorScore float64
	switch {
	case g.Team1ID == majorTeamID && g.Team2ID == minorTeamID:
		majorScore, minorScore = g.Team1Score, g.Team2Score
	case g.Team2ID == majorTeamID && g.Team1ID == minorTeamID:
		majorScore, minorScore = g.Team2Score, g.Team1Score
	default:
		return "", ""
	}
	switch {
	case majorScore > minorScore:
		return relegation.WinnerLeagueMajor, majorTeamID
	case minorScore > majorScore:
		return relegation.WinnerLeagueMinor, minorTeamID
	default:
		return "", ""
	}
}

// ExecutePromotion swaps the two teams, their rosters and future picks between
// leagues. Each step commits in capped batches and advances the cursor on the
// record with its last batch, so a failed run resumes at the first unfinished
// step.
func (s *RelegationService) ExecutePromotion(ctx context.Context, seasonID, actor string) (relegation.Record, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.RelegationService.ExecutePromotion", seasonAttr(seasonID))
	defer span.End()

	record, err := s.loadRecord(ctx, seasonID)
	if err != nil {
		return relegation.Record{}, err
	}
	if record.ExecutedAt != nil {
		return relegation.Record{}, fmt.Errorf("%w: promotion for %s ran at %s", ErrAlreadyExecuted, record.SeasonID, record.ExecutedAt.Format(time.RFC3339))
	}
	if record.Status != relegation.StatusCompleted {
		return relegation.Record{}, fmt.Errorf("%w: relegation record is %s, want %s", ErrFailedPrecondition, record.Status, relegation.StatusCompleted)
	}
	if !record.PromotionRequired {
		return relegation.Record{}, fmt.Errorf("%w: the major team won, no promotion required", ErrFailedPrecondition)
	}
	if record.MajorTeam == nil || record.MinorChampion == nil {
		return relegation.Record{}, fmt.Errorf("%w: relegation matchup is incomplete", ErrFailedPrecondition)
	}
	if strings.TrimSpace(actor) == "" {
		actor = "system"
	}

	run := promotionRun{
		svc:       s,
		record:    &record,
		promoted:  record.MinorChampion.TeamID,
		relegated: record.MajorTeam.TeamID,
		now:       s.now().UTC(),
	}

	if !record.ExecutionStep.Reached(relegation.StepTeamsCopied) {
		if err := run.copyTeams(ctx); err != nil {
			return record, fmt.Errorf("copy teams: %w", err)
		}
	}
	if !record.ExecutionStep.Reached(relegation.StepPlayersMoved) {
		if err := run.movePlayers(ctx); err != nil {
			return record, fmt.Errorf("move players: %w", err)
		}
	}
	if !record.ExecutionStep.Reached(relegation.StepPicksSwapped) {
		if err := run.swapPicks(ctx); err != nil {
			return record, fmt.Errorf("swap draft picks: %w", err)
		}
	}
	if err := run.finish(ctx, actor); err != nil {
		return record, fmt.Errorf("record promotion: %w", err)
	}
	if s.teamCache != nil {
		s.teamCache.Invalidate(ctx)
	}

	s.logger.InfoContext(ctx, "promotion executed",
		"season_id", record.SeasonID,
		"promoted_team_id", run.promoted,
		"relegated_team_id", run.relegated,
		"players_promoted", len(record.PlayersPromoted),
		"players_relegated", len(record.PlayersRelegated),
		"picks_to_major", len(record.PicksToMajor),
		"picks_to_minor", len(record.PicksToMinor),
		"executed_by", actor,
	)
	return record, nil
}

type promotionRun struct {
	svc       *RelegationService
	record    *relegation.Record
	promoted  string
	relegated string
	now       time.Time
}

func (r promotionRun) writer() *document.BatchWriter {
	return document.NewBatchWriter(r.svc.store, r.svc.cfg.PromotionBatchSize)
}

// advance queues the cursor update as the writer's last operation and flushes.
func (r promotionRun) advance(ctx context.Context, w *document.BatchWriter, step relegation.ExecutionStep, extra map[string]any) error {
	fields := map[string]any{"execution_step": step, "updated_at": r.now}
	for k, v := range extra {
		fields[k] = v
	}
	if err := w.Update(ctx, league.RelegationRecordsCollection, r.record.SeasonID, fields); err != nil {
		return err
	}
	if err := w.Flush(ctx); err != nil {
		return storeError("commit promotion step", err)
	}
	r.record.ExecutionStep = step
	batches, ops := w.Committed()
	r.svc.logger.InfoContext(ctx, "promotion step committed", "season_id", r.record.SeasonID, "step", step, "batches", batches, "operations", ops)
	return nil
}

func (r promotionRun) copyTeams(ctx context.Context) error {
	w := r.writer()
	if err := r.copyTeam(ctx, w, r.promoted, league.Minor, league.Major, relegation.ProvenancePromoted, r.record.MinorSeasonID); err != nil {
		return err
	}
	if err := r.copyTeam(ctx, w, r.relegated, league.Major, league.Minor, relegation.ProvenanceRelegated, r.record.SeasonID); err != nil {
		return err
	}
	return r.advance(ctx, w, relegation.StepTeamsCopied, nil)
}

func (r promotionRun) copyTeam(ctx context.Context, w *document.BatchWriter, teamID string, from, to league.League, provenance, seasonID string) error {
	team, ok, err := document.GetAs[map[string]any](ctx, r.svc.store, from.Teams(), teamID)
	if err != nil {
		return fmt.Errorf("load team %s: %w", teamID, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s team %s", ErrNotFound, from, teamID)
	}
	team["provenance"] = provenance
	team["provenance_at"] = r.now
	team["provenance_season_id"] = seasonID
	if err := w.Set(ctx, to.Teams(), teamID, team); err != nil {
		return err
	}

	records, err := document.QueryAs[map[string]any](ctx, r.svc.store, from.TeamSeasonalRecords(teamID))
	if err != nil {
		return fmt.Errorf("load season records team=%s: %w", teamID, err)
	}
	for _, rec := range records {
		if err := w.Set(ctx, to.TeamSeasonalRecords(teamID), rec.ID, rec.Value); err != nil {
			return err
		}
	}
	return nil
}

func (r promotionRun) movePlayers(ctx context.Context) error {
	w := r.writer()
	promoted, err := r.movePlayersOf(ctx, w, r.promoted, league.Minor, league.Major, relegation.ProvenancePromoted)
	if err != nil {
		return err
	}
	relegated, err := r.movePlayersOf(ctx, w, r.relegated, league.Major, league.Minor, relegation.ProvenanceRelegated)
	if err != nil {
		return err
	}
	r.record.PlayersPromoted = mergeIDs(r.record.PlayersPromoted, promoted)
	r.record.PlayersRelegated = mergeIDs(r.record.PlayersRelegated, relegated)
	return r.advance(ctx, w, relegation.StepPlayersMoved, map[string]any{
		"players_promoted":  r.record.PlayersPromoted,
		"players_relegated": r.record.PlayersRelegated,
	})
}

// movePlayersOf copies each rostered player (and their seasonal stats) into the
// target league and marks the source document transferred. A source already
// marked transferred whose copy exists was moved by an earlier attempt.
func (r promotionRun) movePlayersOf(ctx context.Context, w *document.BatchWriter, teamID string, from, to league.League, provenance string) ([]string, error) {
	snaps, err := r.svc.store.Query(ctx, from.Players(), document.Where("current_team_id", teamID))
	if err != nil {
		return nil, fmt.Errorf("list %s players of %s: %w", from, teamID, err)
	}

	moved := make([]string, 0, len(snaps))
	for _, snap := range snaps {
		var player roster.Player
		if err := snap.Decode(&player); err != nil {
			return nil, fmt.Errorf("decode player %s: %w", snap.ID, err)
		}
		if player.PlayerStatus == relegation.PlayerStatusTransferred {
			_, copied, err := r.svc.store.Get(ctx, to.Players(), snap.ID)
			if err != nil {
				return nil, fmt.Errorf("check moved player %s: %w", snap.ID, err)
			}
			if copied {
				moved = append(moved, snap.ID)
				continue
			}
		}

		doc := map[string]any{}
		if err := snap.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode player %s: %w", snap.ID, err)
		}
		if player.PlayerStatus == relegation.PlayerStatusTransferred {
			delete(doc, "player_status")
		}
		doc["provenance"] = provenance
		doc["provenance_at"] = r.now
		if err := w.Set(ctx, to.Players(), snap.ID, doc); err != nil {
			return nil, err
		}

		stats, err := document.QueryAs[map[string]any](ctx, r.svc.store, from.PlayerSeasonalStats(snap.ID))
		if err != nil {
			return nil, fmt.Errorf("load seasonal stats player=%s: %w", snap.ID, err)
		}
		for _, st := range stats {
			if err := w.Set(ctx, to.PlayerSeasonalStats(snap.ID), st.ID, st.Value); err != nil {
				return nil, err
			}
		}

		if err := w.Update(ctx, from.Players(), snap.ID, map[string]any{
			"player_status":  relegation.PlayerStatusTransferred,
			"transferred_to": string(to),
			"transferred_at": r.now,
		}); err != nil {
			return nil, err
		}
		moved = append(moved, snap.ID)
	}
	return moved, nil
}

func (r promotionRun) swapPicks(ctx context.Context) error {
	current, err := r.seasonNumber(ctx)
	if err != nil {
		return err
	}
	nextSeason := current + 1
	w := r.writer()
	toMajor, err := r.movePicks(ctx, w, r.promoted, league.Minor, league.Major, nextSeason)
	if err != nil {
		return err
	}
	toMinor, err := r.movePicks(ctx, w, r.relegated, league.Major, league.Minor, nextSeason)
	if err != nil {
		return err
	}
	r.record.PicksToMajor = mergeIDs(r.record.PicksToMajor, toMajor)
	r.record.PicksToMinor = mergeIDs(r.record.PicksToMinor, toMinor)
	return r.advance(ctx, w, relegation.StepPicksSwapped, map[string]any{
		"picks_to_major": r.record.PicksToMajor,
		"picks_to_minor": r.record.PicksToMinor,
	})
}

// seasonNumber prefers the number stored at detection and falls back to the
// season document for records written before it was kept.
func (r promotionRun) seasonNumber(ctx context.Context) (int, error) {
	if r.record.SeasonNumber > 0 {
		return r.record.SeasonNumber, nil
	}
	season, ok, err := document.GetAs[league.Season](ctx, r.svc.store, league.Major.Seasons(), r.record.SeasonID)
	if err != nil {
		return 0, fmt.Errorf("load season %s: %w", r.record.SeasonID, err)
	}
	if ok {
		season.ID = r.record.SeasonID
		if n := season.Number(); n > 0 {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w: season %s has no season number", ErrFailedPrecondition, r.record.SeasonID)
}

// movePicks moves future picks owned by teamID into the other league's pick
// collection. Picks a failed earlier attempt already moved are found by their
// tags in the target collection so the audit lists them too.
func (r promotionRun) movePicks(ctx context.Context, w *document.BatchWriter, teamID string, from, to league.League, minSeason int) ([]string, error) {
	earlier, err := r.svc.store.Query(ctx, to.DraftPicks(),
		document.Where("current_owner", teamID),
		document.Where("moved_from_league", string(from)),
		document.Where("moved_season_id", r.record.SeasonID),
	)
	if err != nil {
		return nil, fmt.Errorf("list %s picks already moved for %s: %w", to, teamID, err)
	}
	moved := make([]string, 0, len(earlier))
	for _, snap := range earlier {
		moved = append(moved, snap.ID)
	}

	snaps, err := r.svc.store.Query(ctx, from.DraftPicks(), document.Where("current_owner", teamID))
	if err != nil {
		return nil, fmt.Errorf("list %s picks of %s: %w", from, teamID, err)
	}
	for _, snap := range snaps {
		var pick roster.DraftPick
		if err := snap.Decode(&pick); err != nil {
			return nil, fmt.Errorf("decode pick %s: %w", snap.ID, err)
		}
		if int(pick.Season) < minSeason {
			continue
		}
		doc := map[string]any{}
		if err := snap.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode pick %s: %w", snap.ID, err)
		}
		doc["moved_from_league"] = string(from)
		doc["moved_season_id"] = r.record.SeasonID
		doc["moved_at"] = r.now
		if err := w.Set(ctx, to.DraftPicks(), snap.ID, doc); err != nil {
			return nil, err
		}
		if err := w.Delete(ctx, from.DraftPicks(), snap.ID); err != nil {
			return nil, err
		}
		moved = append(moved, snap.ID)
	}
	return moved, nil
}

// finish writes the audit entry and marks the record executed in one commit.
func (r promotionRun) finish(ctx context.Context, actor string) error {
	historyID, err := r.svc.ids.NewID()
	if err != nil {
		return err
	}
	history := relegation.PromotionHistory{
		ID:               historyID,
		SeasonID:         r.record.SeasonID,
		PromotedTeamID:   r.promoted,
		RelegatedTeamID:  r.relegated,
		PlayersPromoted:  nonNil(r.record.PlayersPromoted),
		PlayersRelegated: nonNil(r.record.PlayersRelegated),
		PicksToMajor:     nonNil(r.record.PicksToMajor),
		PicksToMinor:     nonNil(r.record.PicksToMinor),
		ExecutedAt:       r.now,
		ExecutedBy:       actor,
	}

	batch := document.NewBatch(r.svc.store.MaxBatchOps())
	if err := batch.Create(league.PromotionHistoryCollection, historyID, history); err != nil {
		return err
	}
	if err := batch.Update(league.RelegationRecordsCollection, r.record.SeasonID, map[string]any{
		"status":         relegation.StatusExecuted,
		"execution_step": relegation.StepDone,
		"executed_at":    r.now,
		"executed_by":    actor,
		"history_id":     historyID,
		"updated_at":     r.now,
	}); err != nil {
		return err
	}
	if err := r.svc.store.Commit(ctx, batch); err != nil {
		return storeError("commit promotion history", err)
	}

	r.record.Status = relegation.StatusExecuted
	r.record.ExecutionStep = relegation.StepDone
	r.record.ExecutedAt = &history.ExecutedAt
	r.record.ExecutedBy = actor
	r.record.HistoryID = historyID
	r.record.UpdatedAt = &history.ExecutedAt
	return nil
}

func (s *RelegationService) loadRecord(ctx context.Context, seasonID string) (relegation.Record, error) {
	seasonID = strings.TrimSpace(seasonID)
	if seasonID == "" {
		return relegation.Record{}, fmt.Errorf("%w: season id is required", ErrInvalidInput)
	}
	record, ok, err := document.GetAs[relegation.Record](ctx, s.store, league.RelegationRecordsCollection, seasonID)
	if err != nil {
		return relegation.Record{}, fmt.Errorf("load relegation record: %w", err)
	}
	if !ok {
		return relegation.Record{}, fmt.Errorf("%w: relegation record for %s", ErrNotFound, seasonID)
	}
	if record.SeasonID == "" {
		record.SeasonID = seasonID
	}
	return record, nil
}

func teamRef(team roster.Team, rec roster.TeamSeasonRecord) relegation.TeamRef {
	name := rec.TeamName
	if name == "" {
		name = team.TeamName
	}
	return relegation.TeamRef{
		TeamID:    team.ID,
		TeamName:  name,
		SortScore: rec.SortScore,
		Wins:      rec.Wins,
		Losses:    rec.Losses,
	}
}

func teamRefID(ref *relegation.TeamRef) string {
	if ref == nil {
		return ""
	}
	return ref.TeamID
}

func mergeIDs(existing, added []string) []string {
	out := append([]string(nil), existing...)
	for _, id := range added {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// IsExpectedRelegationSkip reports errors the rollover job treats as "not yet".
// A tied worst record needs an admin and is not one of them.
func IsExpectedRelegationSkip(err error) bool {
	return errors.Is(err, ErrFailedPrecondition) && !errors.Is(err, ErrRelegationTie)
}
