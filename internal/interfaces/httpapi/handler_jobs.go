package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/potatocaustic/real-karma-league/internal/usecase"
)

// jobTrigger tells queue deliveries apart from direct calls for the job_runs audit.
func jobTrigger(r *http.Request) string {
	if strings.TrimSpace(r.Header.Get("Upstash-Message-Id")) != "" {
		return usecase.TriggerQueue
	}
	return usecase.TriggerHTTP
}

func (h *Handler) requireOrchestrator(w http.ResponseWriter, r *http.Request) bool {
	if h.jobOrchestrator != nil {
		return true
	}
	writeError(r.Context(), w, fmt.Errorf("%w: job orchestrator is not configured", usecase.ErrDependencyUnavailable))
	return false
}

func (h *Handler) RunSampleJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RunSampleJob")
	defer span.End()

	if !h.requireOrchestrator(w, r) {
		return
	}

	result, err := h.jobOrchestrator.RunSample(ctx, jobTrigger(r))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, actionResponse{Success: true, Message: "Sampler tick complete.", Result: result})
}

func (h *Handler) RunAutoStartJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RunAutoStartJob")
	defer span.End()

	if !h.requireOrchestrator(w, r) {
		return
	}

	var req usecase.AutoStartInput
	if err := h.decodeJSON(ctx, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	result, err := h.jobOrchestrator.RunAutoStart(ctx, jobTrigger(r), req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	message := "Live scoring started."
	if !result.Started {
		message = "Live scoring not started: " + result.Reason + "."
	}
	writeSuccess(ctx, w, http.StatusOK, actionResponse{Success: true, Message: message, Result: result})
}

func (h *Handler) RunAutoStopJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RunAutoStopJob")
	defer span.End()

	if !h.requireOrchestrator(w, r) {
		return
	}

	if err := h.jobOrchestrator.RunAutoStop(ctx, jobTrigger(r)); err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, actionResponse{Success: true, Message: "Live scoring stopped."})
}

func (h *Handler) RunAutoFinalizeJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RunAutoFinalizeJob")
	defer span.End()

	if !h.requireOrchestrator(w, r) {
		return
	}

	result, err := h.jobOrchestrator.RunAutoFinalize(ctx, jobTrigger(r))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, actionResponse{
		Success: true,
		Message: fmt.Sprintf("Finalized %d games, %d failed.", len(result.Finalized), len(result.Failed)),
		Result:  result,
	})
}

func (h *Handler) RunRolloverJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RunRolloverJob")
	defer span.End()

	if !h.requireOrchestrator(w, r) {
		return
	}

	result, err := h.jobOrchestrator.RunDailyRollover(ctx, jobTrigger(r))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, actionResponse{Success: true, Message: "Daily rollover complete for " + result.Date + ".", Result: result})
}

func (h *Handler) RunRelegationGameCompletedJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RunRelegationGameCompletedJob")
	defer span.End()

	if !h.requireOrchestrator(w, r) {
		return
	}

	var event usecase.GameCompletedEvent
	if err := h.decodeJSON(ctx, r, &event); err != nil {
		writeError(ctx, w, err)
		return
	}

	record, err := h.jobOrchestrator.RunRelegationGameCompleted(ctx, jobTrigger(r), event)
	if err != nil {
		h.logger.WarnContext(ctx, "relegation game completion failed", "season_id", event.SeasonID, "game_id", event.GameID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, actionResponse{Success: true, Message: "Relegation outcome recorded.", Result: record})
}

func (h *Handler) ListJobRuns(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListJobRuns")
	defer span.End()

	if !h.requireOrchestrator(w, r) {
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(ctx, w, fmt.Errorf("%w: limit must be a number", usecase.ErrInvalidInput))
			return
		}
		limit = parsed
	}

	runs, err := h.jobOrchestrator.RecentRuns(ctx, r.URL.Query().Get("job"), limit)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, map[string]any{"items": runs})
}
