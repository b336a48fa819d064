package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/potatocaustic/real-karma-league/external/realsports"
	"github.com/potatocaustic/real-karma-league/internal/config"
	"github.com/potatocaustic/real-karma-league/internal/domain/bracket"
	"github.com/potatocaustic/real-karma-league/internal/domain/document"
	"github.com/potatocaustic/real-karma-league/internal/domain/jobscheduler"
	"github.com/potatocaustic/real-karma-league/internal/domain/roster"
	"github.com/potatocaustic/real-karma-league/internal/domain/user"
	"github.com/potatocaustic/real-karma-league/internal/infrastructure/account/anubis"
	"github.com/potatocaustic/real-karma-league/internal/infrastructure/jobqueue"
	"github.com/potatocaustic/real-karma-league/internal/infrastructure/repository/cache"
	"github.com/potatocaustic/real-karma-league/internal/infrastructure/repository/docstore"
	"github.com/potatocaustic/real-karma-league/internal/infrastructure/repository/memory"
	"github.com/potatocaustic/real-karma-league/internal/infrastructure/repository/postgres"
	"github.com/potatocaustic/real-karma-league/internal/interfaces/httpapi"
	"github.com/potatocaustic/real-karma-league/internal/platform/id"
	"github.com/potatocaustic/real-karma-league/internal/platform/logging"
	"github.com/potatocaustic/real-karma-league/internal/platform/resilience"
	"github.com/potatocaustic/real-karma-league/internal/scheduler"
	"github.com/potatocaustic/real-karma-league/internal/usecase"
)

// App holds the wired service: the HTTP server, the optional cron scheduler
// and whatever needs closing on shutdown.
type App struct {
	Server    *http.Server
	Scheduler *scheduler.Service
	Jobs      *usecase.JobOrchestratorService

	db     *sqlx.DB
	logger *logging.Logger
}

func New(ctx context.Context, cfg config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.HTTPAddr == "" {
		return nil, fmt.Errorf("http server addr cannot be empty")
	}

	store, db, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &App{db: db, logger: logger}
	if err := a.build(cfg, store); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg config.Config, store document.Store) error {
	table, err := bracket.Default()
	if err != nil {
		return fmt.Errorf("load bracket table: %w", err)
	}

	var (
		teams     roster.Directory        = docstore.NewTeamDirectory(store)
		users     user.Repository         = docstore.NewUserRepository(store)
		runs      jobscheduler.Repository = docstore.NewJobRunRepository(store)
		teamCache *cache.TeamDirectory
	)
	if cfg.CacheEnabled {
		teamCache = cache.NewTeamDirectory(teams, cfg.CacheTTL)
		teams = teamCache
		users = cache.NewUserRepository(users, cfg.CacheTTL)
	}

	scores := realsports.NewClient(realsports.ClientConfig{
		BaseURL: cfg.ScoreAPIBaseURL,
		Token:   cfg.ScoreAPIToken,
		Version: cfg.ScoreAPIVersion,
		Timeout: cfg.ScoreAPITimeout,
		Retry: resilience.RetryConfig{
			MaxAttempts:     cfg.ScoreAPIMaxAttempts,
			InitialInterval: cfg.ScoreAPIBackoffInitial,
			MaxInterval:     cfg.ScoreAPIBackoffMax,
		},
		RatePerSecond: cfg.ScoreAPIRatePerSec,
		RateBurst:     cfg.ScoreAPIRateBurst,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.ScoreAPICircuitEnabled,
			FailureThreshold: cfg.ScoreAPICircuitFailureCount,
			OpenTimeout:      cfg.ScoreAPICircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.ScoreAPICircuitHalfOpenMax,
		},
		Logger: a.logger.Named("realsports"),
	})

	ids := id.NewUUIDGenerator()
	location := cfg.SchedulerLocation
	if location == nil {
		location = time.UTC
	}

	bracketSvc := usecase.NewBracketService(store, table, a.logger)
	relegationSvc := usecase.NewRelegationService(store, ids, usecase.RelegationConfig{
		PromotionBatchSize: cfg.PromotionBatchSize,
	}, a.logger)
	if teamCache != nil {
		relegationSvc.WithTeamCache(teamCache)
	}

	liveSvc := usecase.NewLiveGameService(store, scores, teams, table, usecase.LiveGameConfig{
		FetchWorkers: cfg.ScoringFetchWorkers,
		JitterMax:    cfg.ScoringFetchJitterMax,
		MaxAttempts:  scores.MaxAttempts(),
		Location:     location,
	}, a.logger).
		WithBracketAdvancer(bracketSvc).
		WithGameCompletionPublisher(a.completionPublisher(cfg, relegationSvc, runs))

	schedulerSvc := usecase.NewScoringSchedulerService(
		store,
		scores,
		liveSvc,
		usecase.NewThresholdProbe(cfg.ScoringSampleSize, cfg.ScoringSampleThreshold),
		usecase.ScoringSchedulerConfig{
			DefaultIntervalMinutes: cfg.ScoringDefaultIntervalMinutes,
			FinalizeConcurrency:    cfg.ScoringFinalizeConcurrency,
		},
		a.logger,
	)
	a.Jobs = usecase.NewJobOrchestratorService(schedulerSvc, bracketSvc, relegationSvc, runs, ids, usecase.JobOrchestratorConfig{
		Location: location,
	}, a.logger)

	verifier := anubis.NewClient(
		&http.Client{
			Timeout:   cfg.AnubisTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		anubis.Config{
			BaseURL:        cfg.AnubisBaseURL,
			IntrospectPath: cfg.AnubisIntrospectURL,
			AdminKey:       cfg.AnubisAdminKey,
			Timeout:        cfg.AnubisTimeout,
			CacheTTL:       cfg.CacheTTL,
			CircuitBreaker: resilience.CircuitBreakerConfig{
				Enabled:          cfg.AnubisCircuitEnabled,
				FailureThreshold: cfg.AnubisCircuitFailureCount,
				OpenTimeout:      cfg.AnubisCircuitOpenTimeout,
				HalfOpenMaxReq:   cfg.AnubisCircuitHalfOpenMaxReq,
			},
		},
		a.logger.Named("anubis"),
	)

	handler := httpapi.NewHandler(
		usecase.NewAccessService(users),
		liveSvc,
		schedulerSvc,
		bracketSvc,
		relegationSvc,
		a.Jobs,
		a.logger,
	)
	router := httpapi.NewRouter(handler, verifier, a.logger, httpapi.RouterConfig{
		ServiceName:        cfg.ServiceName,
		SwaggerEnabled:     cfg.SwaggerEnabled,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		InternalJobToken:   cfg.InternalJobToken,
	})

	a.Server = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	if cfg.SchedulerEnabled {
		a.Scheduler, err = scheduler.New(a.Jobs, scheduler.Config{
			Location: location,
			Schedules: scheduler.Schedules{
				Sampler:      cfg.SchedulerSamplerCron,
				AutoStop:     cfg.SchedulerAutoStopCron,
				AutoFinalize: cfg.SchedulerAutoFinalizeCron,
				Rollover:     cfg.SchedulerRolloverCron,
			},
		}, a.logger.Named("scheduler"))
		if err != nil {
			return fmt.Errorf("create scheduler: %w", err)
		}
		if err := a.Scheduler.RegisterJobs(); err != nil {
			return fmt.Errorf("register scheduler jobs: %w", err)
		}
	}

	return nil
}

// completionPublisher sends relegation game completions through QStash when
// it is configured and straight to the relegation service otherwise.
func (a *App) completionPublisher(cfg config.Config, relegationSvc *usecase.RelegationService, runs jobscheduler.Repository) usecase.GameCompletionPublisher {
	if !cfg.QStashEnabled {
		return usecase.InProcessGameCompletion{Handler: relegationSvc}
	}
	return jobqueue.NewQStashPublisher(jobqueue.QStashPublisherConfig{
		BaseURL:          cfg.QStashBaseURL,
		Token:            cfg.QStashToken,
		TargetBaseURL:    cfg.QStashTargetBaseURL,
		Retries:          cfg.QStashRetries,
		InternalJobToken: cfg.InternalJobToken,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.QStashCircuitEnabled,
			FailureThreshold: cfg.QStashCircuitFailureCount,
			OpenTimeout:      cfg.QStashCircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.QStashCircuitHalfOpenMaxReq,
		},
	}, a.logger.Named("qstash")).WithRunRecorder(runs)
}

// Close releases the database handle when the postgres store is in use.
func (a *App) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config, logger *logging.Logger) (document.Store, *sqlx.DB, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		db, err := openDatabase(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("document store ready", "backend", cfg.StoreBackend, "db_name", dbNameFromURL(cfg.DBURL))
		return postgres.NewDocumentStore(db, cfg.StoreMaxBatchOps), db, nil
	case config.StoreMemory, "":
		store := memory.NewDocumentStore().WithMaxBatchOps(cfg.StoreMaxBatchOps)
		if err := memory.Seed(store); err != nil {
			return nil, nil, fmt.Errorf("seed memory store: %w", err)
		}
		logger.Info("document store ready", "backend", config.StoreMemory)
		return store, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
}
