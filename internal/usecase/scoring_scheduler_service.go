package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/potatocaustic/real-karma-league/internal/domain/document"
	"github.com/potatocaustic/real-karma-league/internal/domain/game"
	"github.com/potatocaustic/real-karma-league/internal/domain/league"
	"github.com/potatocaustic/real-karma-league/internal/domain/livescoring"
	"github.com/potatocaustic/real-karma-league/internal/platform/logging"
)

const (
	defaultIntervalMinutes     = 5
	defaultFinalizeConcurrency = 2
)

// ChangeProbe decides from a cheap sample whether a full refresh is worth it.
type ChangeProbe interface {
	Select(candidates []SampleCandidate) []SampleCandidate
	ShouldRefresh(results []livescoring.SampleResult) bool
}

// SampleCandidate is a live player together with the date its score is looked up for.
type SampleCandidate struct {
	Entry game.LineupEntry
	Date  string
}

// ThresholdProbe picks Size players at random without replacement and asks for
// a refresh when at least Threshold of them changed score or rank.
type ThresholdProbe struct {
	Size      int
	Threshold int
	// Shuffle defaults to math/rand; tests pin it.
	Shuffle func(n int, swap func(i, j int))
}

func NewThresholdProbe(size, threshold int) ThresholdProbe {
	if size <= 0 {
		size = 3
	}
	if threshold <= 0 {
		threshold = 2
	}
	return ThresholdProbe{Size: size, Threshold: threshold}
}

func (p ThresholdProbe) Select(candidates []SampleCandidate) []SampleCandidate {
	picked := append([]SampleCandidate(nil), candidates...)
	shuffle := p.Shuffle
	if shuffle == nil {
		shuffle = rand.Shuffle
	}
	shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
	if len(picked) > p.Size {
		picked = picked[:p.Size]
	}
	return picked
}

func (p ThresholdProbe) ShouldRefresh(results []livescoring.SampleResult) bool {
	changed := 0
	for _, r := range results {
		if r.Changed {
			changed++
		}
	}
	return changed >= p.Threshold
}

type ScoringSchedulerConfig struct {
	DefaultIntervalMinutes int
	FinalizeConcurrency    int
}

// ScoringSchedulerService drives the per-league live scoring state machine.
type ScoringSchedulerService struct {
	store  document.Store
	scores livescoring.ScoreLookup
	live   *LiveGameService
	probe  ChangeProbe
	cfg    ScoringSchedulerConfig
	logger *logging.Logger
	now    func() time.Time
}

func NewScoringSchedulerService(
	store document.Store,
	scores livescoring.ScoreLookup,
	live *LiveGameService,
	probe ChangeProbe,
	cfg ScoringSchedulerConfig,
	logger *logging.Logger,
) *ScoringSchedulerService {
	if logger == nil {
		logger = logging.Default()
	}
	if probe == nil {
		probe = NewThresholdProbe(3, 2)
	}
	if cfg.DefaultIntervalMinutes <= 0 {
		cfg.DefaultIntervalMinutes = defaultIntervalMinutes
	}
	if cfg.FinalizeConcurrency <= 0 {
		cfg.FinalizeConcurrency = defaultFinalizeConcurrency
	}
	return &ScoringSchedulerService{
		store:  store,
		scores: scores,
		live:   live,
		probe:  probe,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (s *ScoringSchedulerService) GetStatus(ctx context.Context, l league.League) (livescoring.ScoringStatus, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ScoringSchedulerService.GetStatus")
	defer span.End()

	status, _, err := s.loadStatus(ctx, l)
	return status, err
}

type SetStatusInput struct {
	Status          string `json:"status" validate:"required,oneof=active paused stopped"`
	IntervalMinutes int    `json:"interval_minutes" validate:"omitempty,min=1,max=120"`
	GameDate        string `json:"game_date" validate:"omitempty,datetime=2006-01-02"`
}

func (s *ScoringSchedulerService) SetStatus(ctx context.Context, l league.League, input SetStatusInput, actor string) (livescoring.ScoringStatus, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ScoringSchedulerService.SetStatus")
	defer span.End()

	next, err := livescoring.ParseStatus(input.Status)
	if err != nil {
		return livescoring.ScoringStatus{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if input.IntervalMinutes < 0 {
		return livescoring.ScoringStatus{}, fmt.Errorf("%w: interval_minutes must be positive", ErrInvalidInput)
	}

	status, err := s.patchStatus(ctx, l, nil, func(st *livescoring.ScoringStatus) {
		st.Status = next
		if input.IntervalMinutes > 0 {
			st.IntervalMinutes = input.IntervalMinutes
		}
		if date := strings.TrimSpace(input.GameDate); date != "" {
			st.ActiveGameDate = date
		}
		st.UpdatedBy = actor
	})
	if err != nil {
		return livescoring.ScoringStatus{}, err
	}

	s.logger.InfoContext(ctx, "scoring status set", "league", l, "status", status.Status, "interval_minutes", status.IntervalMinutes, "actor", actor)
	return status, nil
}

type SampleOutcome struct {
	Due       bool                       `json:"due"`
	Sampled   int                        `json:"sampled"`
	Changed   int                        `json:"changed"`
	Triggered bool                       `json:"triggered"`
	Results   []livescoring.SampleResult `json:"results,omitempty"`
	Refresh   *RefreshResult             `json:"refresh,omitempty"`
}

// SamplerTick probes a few live players and runs a full refresh when the probe
// says enough has changed. Nothing happens unless scoring is active and the
// interval has elapsed.
func (s *ScoringSchedulerService) SamplerTick(ctx context.Context, l league.League) (SampleOutcome, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ScoringSchedulerService.SamplerTick")
	defer span.End()

	status, _, err := s.loadStatus(ctx, l)
	if err != nil {
		return SampleOutcome{}, err
	}
	if !status.SampleDue(s.now()) {
		return SampleOutcome{}, nil
	}

	lives, err := s.live.liveGames(ctx, l)
	if err != nil {
		return SampleOutcome{}, err
	}

	var candidates []SampleCandidate
	seen := make(map[string]struct{})
	for _, live := range lives {
		for _, entry := range live.Players() {
			if entry.PlayerID == "" {
				continue
			}
			if _, ok := seen[entry.PlayerID]; ok {
				continue
			}
			seen[entry.PlayerID] = struct{}{}
			candidates = append(candidates, SampleCandidate{Entry: entry, Date: live.Date})
		}
	}

	picked := s.probe.Select(candidates)
	results := make([]livescoring.SampleResult, 0, len(picked))
	failed := 0
	for _, c := range picked {
		result := livescoring.SampleResult{
			PlayerID: c.Entry.PlayerID,
			OldScore: c.Entry.RawScore,
			OldRank:  c.Entry.GlobalRank,
		}
		score, err := s.scores.LookupScore(ctx, c.Entry.PlayerID, c.Date)
		if err != nil {
			// A failed probe counts as unchanged.
			failed++
			result.Failed = true
			result.NewScore, result.NewRank = result.OldScore, result.OldRank
			s.logger.WarnContext(ctx, "sample score lookup failed", "league", l, "player_id", c.Entry.PlayerID, "error", err)
		} else {
			result.NewScore = score.RawScoreDelta
			result.NewRank = score.RankToday
			result.Changed = result.NewScore != result.OldScore || result.NewRank != result.OldRank
		}
		results = append(results, result)
	}

	outcome := SampleOutcome{Due: true, Sampled: len(picked), Results: results}
	for _, r := range results {
		if r.Changed {
			outcome.Changed++
		}
	}
	outcome.Triggered = len(picked) > 0 && s.probe.ShouldRefresh(results)
	s.live.metrics.addLookups(ctx, livescoring.UsageSampleRequests, len(picked)-failed, failed)

	var refreshErr error
	if outcome.Triggered {
		refresh, err := s.live.refresh(ctx, l, livescoring.UsageFullUpdateRequests)
		if err != nil {
			refreshErr = err
		} else {
			outcome.Refresh = &refresh
		}
	}

	completed := s.now().UTC()
	usage := func(b *document.Batch) error {
		if len(picked) == 0 {
			return nil
		}
		return b.Increment(l.UsageStats(), s.live.usageDay(completed), livescoring.UsageSampleRequests, float64(len(picked)))
	}
	if _, err := s.patchStatus(ctx, l, usage, func(st *livescoring.ScoringStatus) {
		st.LastSampleCompletedAt = &completed
		st.LastSampleResults = results
		st.LastSampleTriggered = outcome.Triggered
		if outcome.Refresh != nil {
			st.LastFullUpdateCompleted = &completed
		}
	}); err != nil {
		return outcome, err
	}

	if refreshErr != nil {
		return outcome, fmt.Errorf("full update after sample: %w", refreshErr)
	}
	s.logger.InfoContext(ctx, "sampler tick completed",
		"league", l,
		"sampled", outcome.Sampled,
		"changed", outcome.Changed,
		"triggered", outcome.Triggered,
	)
	return outcome, nil
}

// ForceFullUpdate refreshes every live game regardless of status or sampling.
func (s *ScoringSchedulerService) ForceFullUpdate(ctx context.Context, l league.League) (RefreshResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ScoringSchedulerService.ForceFullUpdate")
	defer span.End()

	result, err := s.live.refresh(ctx, l, livescoring.UsageFullUpdateRequests)
	if err != nil {
		return result, err
	}
	completed := s.now().UTC()
	if _, err := s.patchStatus(ctx, l, nil, func(st *livescoring.ScoringStatus) {
		st.LastFullUpdateCompleted = &completed
	}); err != nil {
		return result, err
	}
	return result, nil
}

type AutoStartResult struct {
	Started bool           `json:"started"`
	Reason  string         `json:"reason,omitempty"`
	Refresh *RefreshResult `json:"refresh,omitempty"`
}

// AutoStart turns scoring on for gameDate once at least one game is live.
func (s *ScoringSchedulerService) AutoStart(ctx context.Context, l league.League, gameDate string) (AutoStartResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ScoringSchedulerService.AutoStart")
	defer span.End()

	status, _, err := s.loadStatus(ctx, l)
	if err != nil {
		return AutoStartResult{}, err
	}
	if status.Status == livescoring.StatusActive {
		return AutoStartResult{Reason: "already active"}, nil
	}
	lives, err := s.live.liveGames(ctx, l)
	if err != nil {
		return AutoStartResult{}, err
	}
	if len(lives) == 0 {
		return AutoStartResult{Reason: "no live games"}, nil
	}

	if _, err := s.patchStatus(ctx, l, nil, func(st *livescoring.ScoringStatus) {
		st.Status = livescoring.StatusActive
		st.IntervalMinutes = s.cfg.DefaultIntervalMinutes
		if date := strings.TrimSpace(gameDate); date != "" {
			st.ActiveGameDate = date
		}
		st.UpdatedBy = "auto-start"
	}); err != nil {
		return AutoStartResult{}, err
	}

	refresh, err := s.ForceFullUpdate(ctx, l)
	if err != nil {
		return AutoStartResult{Started: true}, fmt.Errorf("initial full update: %w", err)
	}
	s.logger.InfoContext(ctx, "live scoring auto-started", "league", l, "game_date", gameDate, "games", refresh.Games)
	return AutoStartResult{Started: true, Refresh: &refresh}, nil
}

func (s *ScoringSchedulerService) AutoStop(ctx context.Context, l league.League) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.ScoringSchedulerService.AutoStop")
	defer span.End()

	_, err := s.patchStatus(ctx, l, nil, func(st *livescoring.ScoringStatus) {
		st.Status = livescoring.StatusStopped
		st.UpdatedBy = "auto-stop"
	})
	return err
}

type AutoFinalizeResult struct {
	Finalized []FinalizeResult  `json:"finalized"`
	Failed    []FinalizeFailure `json:"failed,omitempty"`
	Leagues   map[string]int    `json:"leagues"`
}

type FinalizeFailure struct {
	League string `json:"league"`
	GameID string `json:"game_id"`
	Error  string `json:"error"`
}

// AutoFinalize finalizes every live game of every league, a few at a time. A
// failing game is marked on its live record and does not stop the others.
func (s *ScoringSchedulerService) AutoFinalize(ctx context.Context) (AutoFinalizeResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ScoringSchedulerService.AutoFinalize")
	defer span.End()

	type target struct {
		league league.League
		gameID string
	}
	var (
		targets  []target
		listErrs []error
	)
	result := AutoFinalizeResult{Leagues: make(map[string]int)}
	for _, l := range league.All() {
		lives, err := s.live.liveGames(ctx, l)
		if err != nil {
			listErrs = append(listErrs, err)
			s.logger.ErrorContext(ctx, "list live games for auto-finalize failed", "league", l, "error", err)
			continue
		}
		result.Leagues[string(l)] = len(lives)
		for _, live := range lives {
			targets = append(targets, target{league: l, gameID: live.GameID})
		}
	}
	if len(listErrs) == len(league.All()) {
		return result, errors.Join(listErrs...)
	}

	var mu sync.Mutex
	workers := pool.New().WithMaxGoroutines(s.cfg.FinalizeConcurrency)
	for _, t := range targets {
		workers.Go(func() {
			finalized, err := s.live.Finalize(ctx, t.league, t.gameID)
			if err != nil {
				if errors.Is(err, ErrNotFound) && !s.stillLive(ctx, t.league, t.gameID) {
					return
				}
				s.logger.ErrorContext(ctx, "auto-finalize game failed", "league", t.league, "game_id", t.gameID, "error", err)
				s.recordFinalizeFailure(ctx, t.league, t.gameID, err)
				mu.Lock()
				result.Failed = append(result.Failed, FinalizeFailure{League: string(t.league), GameID: t.gameID, Error: err.Error()})
				mu.Unlock()
				return
			}
			mu.Lock()
			result.Finalized = append(result.Finalized, finalized)
			mu.Unlock()
		})
	}
	workers.Wait()

	s.logger.InfoContext(ctx, "auto-finalize completed", "finalized", len(result.Finalized), "failed", len(result.Failed))
	return result, nil
}

// stillLive tells a game finalized by a concurrent run apart from one whose
// finalization failed on a missing dependency.
func (s *ScoringSchedulerService) stillLive(ctx context.Context, l league.League, gameID string) bool {
	_, ok, err := s.store.Get(ctx, l.LiveGames(), gameID)
	return err != nil || ok
}

func (s *ScoringSchedulerService) recordFinalizeFailure(ctx context.Context, l league.League, gameID string, cause error) {
	failedAt := s.now().UTC()
	batch := document.NewBatch(s.store.MaxBatchOps())
	if err := batch.Update(l.LiveGames(), gameID, map[string]any{
		"finalize_status":    game.FinalizeStatusFailed,
		"finalize_error":     cause.Error(),
		"finalize_failed_at": failedAt,
	}); err != nil {
		return
	}
	if err := s.store.Commit(ctx, batch); err != nil && !errors.Is(err, document.ErrNotFound) {
		s.logger.WarnContext(ctx, "record finalize failure failed", "league", l, "game_id", gameID, "error", err)
	}
}

func (s *ScoringSchedulerService) loadStatus(ctx context.Context, l league.League) (livescoring.ScoringStatus, bool, error) {
	status, exists, err := document.GetAs[livescoring.ScoringStatus](ctx, s.store, l.LiveScoringStatus(), livescoring.StatusDocID)
	if err != nil {
		return livescoring.ScoringStatus{}, false, fmt.Errorf("load scoring status league=%s: %w", l, err)
	}
	if status.Status == "" {
		status.Status = livescoring.StatusStopped
	}
	if status.IntervalMinutes <= 0 {
		status.IntervalMinutes = s.cfg.DefaultIntervalMinutes
	}
	return status, exists, nil
}

// patchStatus rewrites the status singleton after mutate, optionally adding
// more operations to the same commit. Concurrent writers are last-write-wins.
func (s *ScoringSchedulerService) patchStatus(ctx context.Context, l league.League, extra func(*document.Batch) error, mutate func(*livescoring.ScoringStatus)) (livescoring.ScoringStatus, error) {
	status, _, err := s.loadStatus(ctx, l)
	if err != nil {
		return livescoring.ScoringStatus{}, err
	}
	mutate(&status)
	now := s.now().UTC()
	status.UpdatedAt = &now

	batch := document.NewBatch(s.store.MaxBatchOps())
	if err := batch.Set(l.LiveScoringStatus(), livescoring.StatusDocID, status); err != nil {
		return livescoring.ScoringStatus{}, err
	}
	if extra != nil {
		if err := extra(batch); err != nil {
			return livescoring.ScoringStatus{}, err
		}
	}
	if err := s.store.Commit(ctx, batch); err != nil {
		return livescoring.ScoringStatus{}, storeError("write scoring status", err)
	}
	return status, nil
}
