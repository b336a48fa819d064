package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/potatocaustic/real-karma-league/internal/domain/jobscheduler"
	"github.com/potatocaustic/real-karma-league/internal/platform/logging"
	"github.com/potatocaustic/real-karma-league/internal/usecase"
)

const defaultJobTimeout = 5 * time.Minute

var (
	ErrEmptyJobName  = errors.New("job name is required")
	ErrEmptyCronExpr = errors.New("cron expression is required")
	ErrNilRunner     = errors.New("job runner is required")
)

// JobRunner executes the periodic live scoring and rollover jobs.
// *usecase.JobOrchestratorService satisfies it.
type JobRunner interface {
	RunSample(ctx context.Context, trigger string) (map[string]usecase.SampleOutcome, error)
	RunAutoStop(ctx context.Context, trigger string) error
	RunAutoFinalize(ctx context.Context, trigger string) (usecase.AutoFinalizeResult, error)
	RunDailyRollover(ctx context.Context, trigger string) (usecase.RolloverResult, error)
}

// Schedules holds one standard five-field cron expression per job.
type Schedules struct {
	Sampler      string
	AutoStop     string
	AutoFinalize string
	Rollover     string
}

type Config struct {
	Location   *time.Location
	Schedules  Schedules
	JobTimeout time.Duration
}

// Service wraps a gocron scheduler running the league jobs in the league's timezone.
type Service struct {
	scheduler gocron.Scheduler
	runner    JobRunner
	cfg       Config
	logger    *logging.Logger
	stopOnce  sync.Once
	stopErr   error
}

func New(runner JobRunner, cfg Config, logger *logging.Logger) (*Service, error) {
	if runner == nil {
		return nil, ErrNilRunner
	}
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.Named("scheduler")
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}

	sched, err := gocron.NewScheduler(
		gocron.WithLocation(cfg.Location),
		gocron.WithGlobalJobOptions(
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithEventListeners(
				gocron.AfterJobRunsWithPanic(func(jobID uuid.UUID, jobName string, recoverData any) {
					logger.Error("scheduler job panicked", "job_id", jobID.String(), "job", jobName, "panic", fmt.Sprint(recoverData))
				}),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	return &Service{
		scheduler: sched,
		runner:    runner,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

type jobDefinition struct {
	name     string
	cronExpr string
	run      func(ctx context.Context) (map[string]any, error)
}

func (s *Service) definitions() []jobDefinition {
	return []jobDefinition{
		{
			name:     jobscheduler.JobSample,
			cronExpr: s.cfg.Schedules.Sampler,
			run: func(ctx context.Context) (map[string]any, error) {
				outcomes, err := s.runner.RunSample(ctx, usecase.TriggerScheduler)
				summary := make(map[string]any, len(outcomes))
				for l, o := range outcomes {
					summary[l+"_due"] = o.Due
					summary[l+"_triggered"] = o.Triggered
				}
				return summary, err
			},
		},
		{
			name:     jobscheduler.JobAutoStop,
			cronExpr: s.cfg.Schedules.AutoStop,
			run: func(ctx context.Context) (map[string]any, error) {
				return nil, s.runner.RunAutoStop(ctx, usecase.TriggerScheduler)
			},
		},
		{
			name:     jobscheduler.JobAutoFinalize,
			cronExpr: s.cfg.Schedules.AutoFinalize,
			run: func(ctx context.Context) (map[string]any, error) {
				result, err := s.runner.RunAutoFinalize(ctx, usecase.TriggerScheduler)
				return map[string]any{"finalized": len(result.Finalized), "failed": len(result.Failed)}, err
			},
		},
		{
			name:     jobscheduler.JobDailyRollover,
			cronExpr: s.cfg.Schedules.Rollover,
			run: func(ctx context.Context) (map[string]any, error) {
				result, err := s.runner.RunDailyRollover(ctx, usecase.TriggerScheduler)
				return map[string]any{"date": result.Date, "skipped": len(result.Skipped)}, err
			},
		},
	}
}

// RegisterJobs adds every league job with a non-empty schedule.
func (s *Service) RegisterJobs() error {
	for _, def := range s.definitions() {
		if strings.TrimSpace(def.cronExpr) == "" {
			s.logger.Info("scheduler job disabled", "job", def.name)
			continue
		}
		if _, err := s.AddJob(def.name, def.cronExpr, s.wrap(def)); err != nil {
			return err
		}
	}
	return nil
}

// AddJob registers a cron-based job with the scheduler.
func (s *Service) AddJob(name, cronExpr string, task func()) (gocron.Job, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyJobName
	}
	if strings.TrimSpace(cronExpr) == "" {
		return nil, ErrEmptyCronExpr
	}
	jobLogger := s.logger.With("job", name, "cron", cronExpr)

	job, err := s.scheduler.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(task),
		gocron.WithName(name),
	)
	if err != nil {
		jobLogger.Error("failed to register scheduler job", "error", err)
		return nil, fmt.Errorf("register job %s: %w", name, err)
	}
	jobLogger.Info("scheduler job registered")
	return job, nil
}

// wrap bounds a run with the job timeout and logs one summary line for it.
func (s *Service) wrap(def jobDefinition) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
		defer cancel()

		started := time.Now()
		summary, err := def.run(ctx)
		args := []any{"job", def.name, "duration_ms", time.Since(started).Milliseconds()}
		for k, v := range summary {
			args = append(args, k, v)
		}
		if err != nil {
			s.logger.ErrorContext(ctx, "scheduler job failed", append(args, "error", err)...)
			return
		}
		s.logger.InfoContext(ctx, "scheduler job completed", args...)
	}
}

// JobNames lists the registered jobs.
func (s *Service) JobNames() []string {
	jobs := s.scheduler.Jobs()
	out := make([]string, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, job.Name())
	}
	return out
}

func (s *Service) Start() {
	s.logger.Info("scheduler starting", "timezone", s.cfg.Location.String(), "jobs", len(s.scheduler.Jobs()))
	s.scheduler.Start()
}

// Stop shuts the scheduler down and waits for running jobs. Safe to call twice.
func (s *Service) Stop() error {
	s.stopOnce.Do(func() {
		s.logger.Info("scheduler stopping")
		s.stopErr = s.scheduler.Shutdown()
	})
	return s.stopErr
}
