package httpapi

import (
	"fmt"
	"net/http"

	"github.com/potatocaustic/real-karma-league/internal/domain/game"
	"github.com/potatocaustic/real-karma-league/internal/usecase"
)

// activateGameRequest lineups override the pending submission when present.
type activateGameRequest struct {
	SeasonID       string             `json:"season_id"`
	CollectionName string             `json:"collection_name" validate:"omitempty,oneof=games post_games exhibition_games"`
	Team1Lineup    []game.LineupEntry `json:"team1_lineup"`
	Team2Lineup    []game.LineupEntry `json:"team2_lineup"`
}

func (h *Handler) ActivateGame(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ActivateGame")
	defer span.End()

	l, err := leagueFromPath(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	gameID, err := requiredPathValue(r, "gameID")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if _, err := h.authorize(ctx, l, usecase.AdminOnly); err != nil {
		writeError(ctx, w, err)
		return
	}

	var req activateGameRequest
	if err := h.decodeJSON(ctx, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	live, err := h.liveGameService.Activate(ctx, l, usecase.ActivateGameInput{
		GameID:         gameID,
		SeasonID:       req.SeasonID,
		CollectionName: req.CollectionName,
		Team1Lineup:    req.Team1Lineup,
		Team2Lineup:    req.Team2Lineup,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "activate game failed", "league", l, "game_id", gameID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, actionResponse{
		Success: true,
		Message: fmt.Sprintf("Game %s is now live.", gameID),
		Result:  live,
	})
}

func (h *Handler) FinalizeGame(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.FinalizeGame")
	defer span.End()

	l, err := leagueFromPath(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	gameID, err := requiredPathValue(r, "gameID")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if _, err := h.authorize(ctx, l, usecase.AdminOnly); err != nil {
		writeError(ctx, w, err)
		return
	}

	result, err := h.liveGameService.Finalize(ctx, l, gameID)
	if err != nil {
		h.logger.WarnContext(ctx, "finalize game failed", "league", l, "game_id", gameID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, actionResponse{
		Success: true,
		Message: fmt.Sprintf("Game %s finalized.", gameID),
		Result:  result,
	})
}
