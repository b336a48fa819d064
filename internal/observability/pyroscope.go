package observability

import (
	"context"
	"runtime"

	"github.com/grafana/pyroscope-go"

	"github.com/potatocaustic/real-karma-league/internal/config"
	"github.com/potatocaustic/real-karma-league/internal/platform/logging"
)

const (
	mutexProfileFraction = 5
	blockProfileRate     = 5
)

// startPyroscope pushes continuous profiles tagged with env, service and
// store backend.
func startPyroscope(cfg config.Config, logger *logging.Logger) (shutdownFunc, error) {
	if !cfg.PyroscopeEnabled {
		logger.Info("pyroscope disabled")
		return noopShutdown, nil
	}

	// The fan-out pools and the scheduler are where contention shows up.
	runtime.SetMutexProfileFraction(mutexProfileFraction)
	runtime.SetBlockProfileRate(blockProfileRate)

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName:   cfg.PyroscopeAppName,
		ServerAddress:     cfg.PyroscopeServerAddress,
		AuthToken:         cfg.PyroscopeAuthToken,
		BasicAuthUser:     cfg.PyroscopeBasicAuthUser,
		BasicAuthPassword: cfg.PyroscopeBasicAuthPassword,
		UploadRate:        cfg.PyroscopeUploadRate,
		Tags: map[string]string{
			"env":     cfg.AppEnv,
			"service": cfg.ServiceName,
			"store":   cfg.StoreBackend,
		},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
			pyroscope.ProfileMutexDuration,
			pyroscope.ProfileBlockDuration,
		},
	})
	if err != nil {
		runtime.SetMutexProfileFraction(0)
		runtime.SetBlockProfileRate(0)
		return nil, err
	}

	logger.Info("pyroscope enabled", "server_address", cfg.PyroscopeServerAddress, "application", cfg.PyroscopeAppName)
	return func(context.Context) error {
		return profiler.Stop()
	}, nil
}
