package httpapi

import (
	"fmt"
	"net/http"

	"github.com/potatocaustic/real-karma-league/internal/usecase"
)

func (h *Handler) GetScoringStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetScoringStatus")
	defer span.End()

	l, err := leagueFromPath(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if _, err := h.authorize(ctx, l, usecase.AdminOrScorekeeper); err != nil {
		writeError(ctx, w, err)
		return
	}

	status, err := h.schedulerService.GetStatus(ctx, l)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, status)
}

func (h *Handler) SetScoringStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.SetScoringStatus")
	defer span.End()

	l, err := leagueFromPath(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	principal, err := h.authorize(ctx, l, usecase.AdminOrScorekeeper)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	var req usecase.SetStatusInput
	if err := h.decodeJSON(ctx, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	status, err := h.schedulerService.SetStatus(ctx, l, req, principal.UserID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, actionResponse{
		Success: true,
		Message: fmt.Sprintf("Live scoring is now %s.", status.Status),
		Result:  status,
	})
}

func (h *Handler) ForceFullUpdate(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ForceFullUpdate")
	defer span.End()

	l, err := leagueFromPath(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if _, err := h.authorize(ctx, l, usecase.AdminOrScorekeeper); err != nil {
		writeError(ctx, w, err)
		return
	}

	result, err := h.schedulerService.ForceFullUpdate(ctx, l)
	if err != nil {
		h.logger.WarnContext(ctx, "force full update failed", "league", l, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, actionResponse{
		Success: true,
		Message: fmt.Sprintf("Updated %d live games.", result.Games),
		Result:  result,
	})
}

func (h *Handler) AdvanceBracket(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.AdvanceBracket")
	defer span.End()

	l, err := leagueFromPath(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if _, err := h.authorize(ctx, l, usecase.AdminOrScorekeeper); err != nil {
		writeError(ctx, w, err)
		return
	}

	var req usecase.TriggerBracketInput
	if err := h.decodeJSON(ctx, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	result, err := h.bracketService.TriggerUpdate(ctx, l, req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, actionResponse{
		Success: true,
		Message: fmt.Sprintf("Advanced %d series.", len(result.Advanced)),
		Result:  result,
	})
}
