package httpapi

import (
	"net/http"

	"github.com/potatocaustic/real-karma-league/internal/domain/league"
	"github.com/potatocaustic/real-karma-league/internal/usecase"
)

// DetectRelegationMatchup and the other relegation callables span both
// leagues; roles are checked against the major league.
func (h *Handler) DetectRelegationMatchup(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.DetectRelegationMatchup")
	defer span.End()

	if _, err := h.authorize(ctx, league.Major, usecase.AdminOnly); err != nil {
		writeError(ctx, w, err)
		return
	}

	record, err := h.relegationService.DetectMatchup(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, actionResponse{
		Success: true,
		Message: "Relegation matchup status: " + string(record.Status) + ".",
		Result:  record,
	})
}

func (h *Handler) GetRelegationRecord(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetRelegationRecord")
	defer span.End()

	seasonID, err := requiredPathValue(r, "seasonID")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if _, err := h.authorize(ctx, league.Major, usecase.AdminOrScorekeeper); err != nil {
		writeError(ctx, w, err)
		return
	}

	record, err := h.relegationService.GetRecord(ctx, seasonID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, record)
}

func (h *Handler) ScheduleRelegationGame(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ScheduleRelegationGame")
	defer span.End()

	seasonID, err := requiredPathValue(r, "seasonID")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if _, err := h.authorize(ctx, league.Major, usecase.AdminOnly); err != nil {
		writeError(ctx, w, err)
		return
	}

	var req usecase.ScheduleRelegationInput
	if err := h.decodeJSON(ctx, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	record, err := h.relegationService.ScheduleGame(ctx, seasonID, req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, actionResponse{
		Success: true,
		Message: "Relegation game scheduled for " + record.GameDate + ".",
		Result:  record,
	})
}

func (h *Handler) ExecutePromotion(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ExecutePromotion")
	defer span.End()

	seasonID, err := requiredPathValue(r, "seasonID")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	principal, err := h.authorize(ctx, league.Major, usecase.AdminOnly)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	record, err := h.relegationService.ExecutePromotion(ctx, seasonID, principal.UserID)
	if err != nil {
		h.logger.WarnContext(ctx, "execute promotion failed", "season_id", seasonID, "actor", principal.UserID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, actionResponse{
		Success: true,
		Message: "Promotion executed.",
		Result:  record,
	})
}
