package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/potatocaustic/real-karma-league/internal/app"
	"github.com/potatocaustic/real-karma-league/internal/config"
	"github.com/potatocaustic/real-karma-league/internal/observability"
	"github.com/potatocaustic/real-karma-league/internal/platform/logging"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	telemetry, err := observability.Start(cfg, logging.NewJSON(cfg.LogLevel))
	if err != nil {
		return fmt.Errorf("start observability: %w", err)
	}
	logger := telemetry.Logger
	logging.SetDefault(logger)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		_ = telemetry.Shutdown(context.Background())
		return fmt.Errorf("build app: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", cfg.HTTPAddr, "store", cfg.StoreBackend)
		if err := application.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if application.Scheduler != nil {
		application.Scheduler.Start()
		logger.Info("scheduler started", "jobs", application.Scheduler.JobNames(), "timezone", cfg.SchedulerTimezone)
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("http server failed", "error", err)
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if application.Scheduler != nil {
		if err := application.Scheduler.Stop(); err != nil {
			logger.Error("scheduler shutdown failed", "error", err)
		}
	}
	if err := application.Server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		runErr = errors.Join(runErr, err)
	}
	if err := application.Close(); err != nil {
		logger.Error("close app failed", "error", err)
	}
	logger.Info("http server stopped")
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintln(os.Stderr, "observability shutdown:", err)
	}
	return runErr
}
