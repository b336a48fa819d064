package observability

import (
	"context"
	"errors"
	"fmt"

	"github.com/potatocaustic/real-karma-league/internal/config"
	"github.com/potatocaustic/real-karma-league/internal/platform/logging"
)

type shutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Runtime owns the telemetry exporters started for one process. Logger is the
// process logger, teed to Better Stack when that sink is enabled.
type Runtime struct {
	Logger *logging.Logger

	stops []namedShutdown
}

type namedShutdown struct {
	name string
	fn   shutdownFunc
}

// Start brings up log shipping, tracing, profiling and the pprof listener in
// that order. On failure everything already started is stopped again.
func Start(cfg config.Config, base *logging.Logger) (*Runtime, error) {
	if base == nil {
		base = logging.NewJSON(cfg.LogLevel)
	}

	logger, stopLogs, err := startBetterStack(cfg, base)
	if err != nil {
		return nil, fmt.Errorf("start betterstack: %w", err)
	}
	rt := &Runtime{Logger: logger}
	rt.stops = append(rt.stops, namedShutdown{name: "betterstack", fn: stopLogs})

	starters := []struct {
		name  string
		start func(config.Config, *logging.Logger) (shutdownFunc, error)
	}{
		{name: "uptrace", start: startUptrace},
		{name: "pyroscope", start: startPyroscope},
		{name: "pprof", start: startPprof},
	}
	for _, s := range starters {
		stop, err := s.start(cfg, logger)
		if err != nil {
			_ = rt.Shutdown(context.Background())
			return nil, fmt.Errorf("start %s: %w", s.name, err)
		}
		rt.stops = append(rt.stops, namedShutdown{name: s.name, fn: stop})
	}
	return rt, nil
}

// Shutdown stops exporters in reverse start order so the log sink drains last.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(r.stops) - 1; i >= 0; i-- {
		s := r.stops[i]
		if err := s.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", s.name, err))
		}
	}
	r.stops = nil
	return errors.Join(errs...)
}
