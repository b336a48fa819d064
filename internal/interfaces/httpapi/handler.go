package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"

	"github.com/potatocaustic/real-karma-league/internal/domain/league"
	"github.com/potatocaustic/real-karma-league/internal/domain/user"
	"github.com/potatocaustic/real-karma-league/internal/platform/logging"
	"github.com/potatocaustic/real-karma-league/internal/usecase"
)

type Handler struct {
	accessService     *usecase.AccessService
	liveGameService   *usecase.LiveGameService
	schedulerService  *usecase.ScoringSchedulerService
	bracketService    *usecase.BracketService
	relegationService *usecase.RelegationService
	jobOrchestrator   *usecase.JobOrchestratorService
	logger            *logging.Logger
	validator         *validator.Validate
}

func NewHandler(
	accessService *usecase.AccessService,
	liveGameService *usecase.LiveGameService,
	schedulerService *usecase.ScoringSchedulerService,
	bracketService *usecase.BracketService,
	relegationService *usecase.RelegationService,
	jobOrchestrator *usecase.JobOrchestratorService,
	logger *logging.Logger,
) *Handler {
	if logger == nil {
		logger = logging.Default()
	}

	return &Handler{
		accessService:     accessService,
		liveGameService:   liveGameService,
		schedulerService:  schedulerService,
		bracketService:    bracketService,
		relegationService: relegationService,
		jobOrchestrator:   jobOrchestrator,
		logger:            logger,
		validator:         validator.New(),
	}
}

// actionResponse is the data payload of every mutating callable.
type actionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Result  any    `json:"result,omitempty"`
}

func (h *Handler) validateRequest(ctx context.Context, payload any) error {
	ctx, span := startSpan(ctx, "httpapi.Handler.validateRequest")
	defer span.End()

	if err := h.validator.StructCtx(ctx, payload); err != nil {
		return fmt.Errorf("%w: validation failed: %v", usecase.ErrInvalidInput, err)
	}

	return nil
}

// decodeJSON decodes an optional JSON body into dst; an empty body leaves dst untouched.
func (h *Handler) decodeJSON(ctx context.Context, r *http.Request, dst any) error {
	decoder := jsoniter.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrInvalidInput, err)
	}
	return h.validateRequest(ctx, dst)
}

// authorize resolves the caller and checks their role in l.
func (h *Handler) authorize(ctx context.Context, l league.League, allowed []user.Role) (user.Principal, error) {
	principal, err := principalFromContext(ctx)
	if err != nil {
		return user.Principal{}, err
	}
	if h.accessService == nil {
		return user.Principal{}, fmt.Errorf("%w: access service is not configured", usecase.ErrDependencyUnavailable)
	}
	if err := h.accessService.Require(ctx, principal, l, allowed); err != nil {
		return user.Principal{}, err
	}
	return principal, nil
}

func leagueFromPath(r *http.Request) (league.League, error) {
	raw := strings.TrimSpace(r.PathValue("league"))
	if raw == "" {
		return "", fmt.Errorf("%w: league is required", usecase.ErrInvalidInput)
	}
	l, err := league.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", usecase.ErrInvalidInput, err)
	}
	return l, nil
}

func requiredPathValue(r *http.Request, name string) (string, error) {
	value := strings.TrimSpace(r.PathValue(name))
	if value == "" {
		return "", fmt.Errorf("%w: %s is required", usecase.ErrInvalidInput, name)
	}
	return value, nil
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.Healthz")
	defer span.End()

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}
