package observability

import (
	"context"
	"strings"

	"github.com/uptrace/uptrace-go/uptrace"
	"go.opentelemetry.io/otel/attribute"

	"github.com/potatocaustic/real-karma-league/internal/config"
	"github.com/potatocaustic/real-karma-league/internal/platform/logging"
)

// startUptrace installs the global OpenTelemetry providers. With
// UPTRACE_LOGS_ENABLED the zap logger is mirrored into the OTel log pipeline.
func startUptrace(cfg config.Config, logger *logging.Logger) (shutdownFunc, error) {
	logging.SetMirror(nil)

	dsn := strings.TrimSpace(cfg.UptraceDSN)
	if !cfg.UptraceEnabled || dsn == "" {
		logger.Info("uptrace disabled", "enabled", cfg.UptraceEnabled, "dsn_set", dsn != "")
		return noopShutdown, nil
	}

	uptrace.ConfigureOpentelemetry(
		uptrace.WithDSN(dsn),
		uptrace.WithServiceName(cfg.ServiceName),
		uptrace.WithServiceVersion(cfg.ServiceVersion),
		uptrace.WithDeploymentEnvironment(cfg.AppEnv),
		uptrace.WithResourceAttributes(attribute.String("rkl.store_backend", cfg.StoreBackend)),
		uptrace.WithLoggingEnabled(cfg.UptraceLogsEnabled),
	)
	if cfg.UptraceLogsEnabled {
		logging.SetMirror(newLogMirror(cfg.ServiceVersion).emit)
	}

	logger.Info("uptrace enabled", "environment", cfg.AppEnv, "logs_enabled", cfg.UptraceLogsEnabled)
	return func(ctx context.Context) error {
		logging.SetMirror(nil)
		return uptrace.Shutdown(ctx)
	}, nil
}
