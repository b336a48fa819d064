package httpapi

import (
	"errors"
	"net/http"

	"github.com/potatocaustic/real-karma-league/internal/platform/logging"
)

type RouterConfig struct {
	ServiceName        string
	SwaggerEnabled     bool
	CORSAllowedOrigins []string
	InternalJobToken   string
}

func NewRouter(handler *Handler, verifier TokenVerifier, logger *logging.Logger, cfg RouterConfig) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}

	mux := http.NewServeMux()
	registerSystemRoutes(mux, handler, cfg.SwaggerEnabled)
	registerLeagueRoutes(mux, handler, verifier)
	registerRelegationRoutes(mux, handler, verifier)
	registerInternalJobRoutes(mux, handler, cfg.InternalJobToken)

	return RequestTracing(cfg.ServiceName, RequestLogging(logger, CORS(cfg.CORSAllowedOrigins, recoverPanic(logger, mux))))
}

func recoverPanic(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.ErrorContext(r.Context(), "panic recovered", "panic", rec, "path", r.URL.Path)
				writeError(r.Context(), w, errors.New("panic"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
