package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/potatocaustic/real-karma-league/internal/domain/jobscheduler"
	"github.com/potatocaustic/real-karma-league/internal/domain/league"
	"github.com/potatocaustic/real-karma-league/internal/domain/relegation"
	"github.com/potatocaustic/real-karma-league/internal/platform/id"
	"github.com/potatocaustic/real-karma-league/internal/platform/logging"
)

// Job triggers recorded on job_runs.
const (
	TriggerScheduler = "scheduler"
	TriggerHTTP      = "http"
	TriggerQueue     = "queue"
)

type JobOrchestratorConfig struct {
	// Location decides which calendar day "today" and "yesterday" are.
	Location *time.Location
}

// JobOrchestratorService runs the periodic and reactive jobs and keeps the
// job_runs audit trail for each of them.
type JobOrchestratorService struct {
	scheduler  *ScoringSchedulerService
	bracket    *BracketService
	relegation *RelegationService
	runs       jobscheduler.Repository
	ids        id.Generator
	cfg        JobOrchestratorConfig
	logger     *logging.Logger
	now        func() time.Time
}

var dedupUnsafeCharRegex = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

func NewJobOrchestratorService(
	scheduler *ScoringSchedulerService,
	bracket *BracketService,
	relegation *RelegationService,
	runs jobscheduler.Repository,
	ids id.Generator,
	cfg JobOrchestratorConfig,
	logger *logging.Logger,
) *JobOrchestratorService {
	if logger == nil {
		logger = logging.Default()
	}
	if ids == nil {
		ids = id.NewUUIDGenerator()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &JobOrchestratorService{
		scheduler:  scheduler,
		bracket:    bracket,
		relegation: relegation,
		runs:       runs,
		ids:        ids,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// jobOutcome is what a tracked job reports back for its audit entry.
type jobOutcome struct {
	summary map[string]any
	skipped bool
}

// RunSample performs one sampler tick per league. A league failing does not
// stop the other.
func (s *JobOrchestratorService) RunSample(ctx context.Context, trigger string) (map[string]SampleOutcome, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.JobOrchestratorService.RunSample")
	defer span.End()

	out := make(map[string]SampleOutcome, len(league.All()))
	var errs []error
	for _, l := range league.All() {
		err := s.track(ctx, jobscheduler.JobSample, l, trigger, func(ctx context.Context) (jobOutcome, error) {
			outcome, err := s.scheduler.SamplerTick(ctx, l)
			out[string(l)] = outcome
			if err != nil {
				return jobOutcome{}, err
			}
			return jobOutcome{
				summary: map[string]any{"sampled": outcome.Sampled, "changed": outcome.Changed, "triggered": outcome.Triggered},
				skipped: !outcome.Due,
			}, nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("league %s: %w", l, err))
		}
	}
	return out, errors.Join(errs...)
}

type AutoStartInput struct {
	League   string `json:"league" validate:"omitempty,oneof=major minor"`
	GameDate string `json:"game_date" validate:"omitempty,datetime=2006-01-02"`
}

// RunAutoStart turns live scoring on for one league. An empty game date means today.
func (s *JobOrchestratorService) RunAutoStart(ctx context.Context, trigger string, input AutoStartInput) (AutoStartResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.JobOrchestratorService.RunAutoStart")
	defer span.End()

	l, err := league.Parse(input.League)
	if err != nil {
		return AutoStartResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	gameDate := strings.TrimSpace(input.GameDate)
	if gameDate == "" {
		gameDate = s.today()
	}

	var result AutoStartResult
	err = s.track(ctx, jobscheduler.JobAutoStart, l, trigger, func(ctx context.Context) (jobOutcome, error) {
		var err error
		result, err = s.scheduler.AutoStart(ctx, l, gameDate)
		if err != nil {
			return jobOutcome{}, err
		}
		return jobOutcome{
			summary: map[string]any{"started": result.Started, "reason": result.Reason, "game_date": gameDate},
			skipped: !result.Started,
		}, nil
	})
	return result, err
}

// RunAutoStop stops live scoring in every league.
func (s *JobOrchestratorService) RunAutoStop(ctx context.Context, trigger string) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.JobOrchestratorService.RunAutoStop")
	defer span.End()

	var errs []error
	for _, l := range league.All() {
		if err := s.track(ctx, jobscheduler.JobAutoStop, l, trigger, func(ctx context.Context) (jobOutcome, error) {
			return jobOutcome{}, s.scheduler.AutoStop(ctx, l)
		}); err != nil {
			errs = append(errs, fmt.Errorf("league %s: %w", l, err))
		}
	}
	return errors.Join(errs...)
}

func (s *JobOrchestratorService) RunAutoFinalize(ctx context.Context, trigger string) (AutoFinalizeResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.JobOrchestratorService.RunAutoFinalize")
	defer span.End()

	var result AutoFinalizeResult
	err := s.track(ctx, jobscheduler.JobAutoFinalize, "", trigger, func(ctx context.Context) (jobOutcome, error) {
		var err error
		result, err = s.scheduler.AutoFinalize(ctx)
		if err != nil {
			return jobOutcome{}, err
		}
		failed := make([]string, 0, len(result.Failed))
		for _, f := range result.Failed {
			failed = append(failed, f.League+"/"+f.GameID)
		}
		return jobOutcome{
			summary: map[string]any{"finalized": len(result.Finalized), "failed": failed, "live_games": result.Leagues},
			skipped: len(result.Finalized) == 0 && len(result.Failed) == 0,
		}, nil
	})
	return result, err
}

type RolloverResult struct {
	Date       string                   `json:"date"`
	Brackets   map[string]BracketResult `json:"brackets"`
	Relegation *relegation.Record       `json:"relegation,omitempty"`
	Skipped    []string                 `json:"skipped,omitempty"`
	Failed     []string                 `json:"failed,omitempty"`
}

// RunDailyRollover advances each league's bracket from the previous game
// date and then tries relegation detection. Detection before both seasons
// are complete is expected and not an error. A failing item is logged and
// listed in Failed; the remaining items still run.
func (s *JobOrchestratorService) RunDailyRollover(ctx context.Context, trigger string) (RolloverResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.JobOrchestratorService.RunDailyRollover")
	defer span.End()

	result := RolloverResult{
		Date:     s.now().In(s.cfg.Location).AddDate(0, 0, -1).Format(time.DateOnly),
		Brackets: make(map[string]BracketResult, len(league.All())),
	}
	err := s.track(ctx, jobscheduler.JobDailyRollover, "", trigger, func(ctx context.Context) (jobOutcome, error) {
		for _, l := range league.All() {
			advanced, err := s.bracket.TriggerUpdate(ctx, l, TriggerBracketInput{Date: result.Date})
			if err != nil {
				if errors.Is(err, ErrFailedPrecondition) {
					s.logger.DebugContext(ctx, "bracket rollover skipped", "league", l, "reason", err.Error())
					result.Skipped = append(result.Skipped, "bracket:"+string(l))
					continue
				}
				s.logger.ErrorContext(ctx, "bracket rollover failed", "job", jobscheduler.JobDailyRollover, "league", l, "error", err)
				result.Failed = append(result.Failed, "bracket:"+string(l))
				continue
			}
			result.Brackets[string(l)] = advanced
		}

		record, err := s.relegation.DetectMatchup(ctx)
		switch {
		case err == nil:
			result.Relegation = &record
		case IsExpectedRelegationSkip(err):
			s.logger.DebugContext(ctx, "relegation detection skipped", "reason", err.Error())
			result.Skipped = append(result.Skipped, "relegation")
		default:
			s.logger.ErrorContext(ctx, "relegation detection failed", "job", jobscheduler.JobDailyRollover, "error", err)
			result.Failed = append(result.Failed, "relegation")
		}

		summary := map[string]any{"date": result.Date, "skipped": result.Skipped, "failed": result.Failed}
		for l, b := range result.Brackets {
			summary["advanced_"+l] = b.Advanced
		}
		if result.Relegation != nil {
			summary["relegation_status"] = result.Relegation.Status
		}
		return jobOutcome{summary: summary}, nil
	})
	return result, err
}

// RunRelegationGameCompleted is the queue-delivered counterpart of
// RelegationService.HandleGameCompleted.
func (s *JobOrchestratorService) RunRelegationGameCompleted(ctx context.Context, trigger string, event GameCompletedEvent) (relegation.Record, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.JobOrchestratorService.RunRelegationGameCompleted")
	defer span.End()

	var record relegation.Record
	err := s.track(ctx, jobscheduler.JobRelegationGame, league.Major, trigger, func(ctx context.Context) (jobOutcome, error) {
		var err error
		record, err = s.relegation.RecordOutcome(ctx, event)
		if err != nil {
			return jobOutcome{}, err
		}
		return jobOutcome{summary: map[string]any{
			"season_id":      event.SeasonID,
			"game_id":        event.GameID,
			"status":         record.Status,
			"winner_team_id": record.WinnerTeamID,
		}}, nil
	})
	return record, err
}

func (s *JobOrchestratorService) RecentRuns(ctx context.Context, jobName string, limit int) ([]jobscheduler.Run, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.JobOrchestratorService.RecentRuns")
	defer span.End()

	if s.runs == nil {
		return []jobscheduler.Run{}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.runs.ListRecent(ctx, strings.TrimSpace(jobName), limit)
}

// track wraps one job run with started/completed/failed audit events and a
// single summary log line.
func (s *JobOrchestratorService) track(ctx context.Context, job string, l league.League, trigger string, fn func(ctx context.Context) (jobOutcome, error)) error {
	if strings.TrimSpace(trigger) == "" {
		trigger = TriggerHTTP
	}
	started := s.now().UTC()
	runID := s.newRunID(job, string(l), started)
	event := jobscheduler.RunEvent{
		RunID:   runID,
		JobName: job,
		League:  string(l),
		Trigger: trigger,
	}

	event.Status = jobscheduler.StatusStarted
	event.OccurredAt = started
	s.recordRunEvent(ctx, event)

	outcome, err := fn(ctx)
	event.OccurredAt = s.now().UTC()
	event.Summary = outcome.summary
	if err != nil {
		event.Status = jobscheduler.StatusFailed
		event.ErrorMessage = err.Error()
		s.recordRunEvent(ctx, event)
		s.logger.ErrorContext(ctx, "job run failed", "job", job, "league", l, "run_id", runID, "trigger", trigger, "error", err)
		return err
	}

	event.Status = jobscheduler.StatusCompleted
	if outcome.skipped {
		event.Status = jobscheduler.StatusSkipped
	}
	s.recordRunEvent(ctx, event)
	s.logger.InfoContext(ctx, "job run finished",
		"job", job,
		"league", l,
		"run_id", runID,
		"trigger", trigger,
		"status", event.Status,
		"duration", event.OccurredAt.Sub(started),
	)
	return nil
}

func (s *JobOrchestratorService) newRunID(job, leagueName string, at time.Time) string {
	base := dedupKey(job, leagueName, at, time.Second)
	suffix, err := s.ids.NewID()
	if err != nil || suffix == "" {
		return base
	}
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return base + "-" + sanitizeDedupSegment(suffix)
}

func (s *JobOrchestratorService) today() string {
	return s.now().In(s.cfg.Location).Format(time.DateOnly)
}

// dedupKey builds a queue-safe id from a prefix, a scope and a time bucket.
func dedupKey(prefix, scope string, at time.Time, bucket time.Duration) string {
	if bucket <= 0 {
		bucket = time.Minute
	}
	slot := at.UTC().Truncate(bucket).Format("20060102T150405Z")
	prefix = sanitizeDedupSegment(prefix)
	scope = sanitizeDedupSegment(scope)
	return prefix + "-" + scope + "-" + slot
}

func sanitizeDedupSegment(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "all"
	}
	return dedupUnsafeCharRegex.ReplaceAllString(value, "-")
}

func (s *JobOrchestratorService) recordRunEvent(ctx context.Context, event jobscheduler.RunEvent) {
	if s.runs == nil || strings.TrimSpace(event.RunID) == "" {
		return
	}
	event.TraceID, event.SpanID = traceMetaFromContext(ctx)
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now().UTC()
	}
	if err := s.runs.UpsertEvent(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "record job run event failed",
			"run_id", event.RunID,
			"status", event.Status,
			"error", err,
		)
	}
}

func traceMetaFromContext(ctx context.Context) (string, string) {
	spanContext := trace.SpanFromContext(ctx).SpanContext()
	if !spanContext.IsValid() {
		return "", ""
	}
	return spanContext.TraceID().String(), spanContext.SpanID().String()
}
