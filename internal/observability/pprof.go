package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/potatocaustic/real-karma-league/internal/config"
	"github.com/potatocaustic/real-karma-league/internal/platform/logging"
)

func pprofHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /debug/pprof/", pprof.Index)
	mux.HandleFunc("GET /debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("GET /debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("GET /debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("POST /debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("GET /debug/pprof/trace", pprof.Trace)
	return mux
}

// startPprof binds PPROF_ADDR before returning, so a taken port fails startup
// instead of a background goroutine.
func startPprof(cfg config.Config, logger *logging.Logger) (shutdownFunc, error) {
	if !cfg.PprofEnabled {
		logger.Info("pprof disabled")
		return noopShutdown, nil
	}

	ln, err := net.Listen("tcp", cfg.PprofAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.PprofAddr, err)
	}

	srv := &http.Server{
		Handler:           pprofHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("pprof server failed", "error", err)
		}
	}()

	logger.Info("pprof server started", "addr", ln.Addr().String())
	return srv.Shutdown, nil
}
