package httpapi

import "net/http"

func registerSystemRoutes(mux *http.ServeMux, handler *Handler, swaggerEnabled bool) {
	mux.HandleFunc("GET /healthz", handler.Healthz)
	if !swaggerEnabled {
		return
	}

	mux.HandleFunc("GET /openapi.yaml", handler.OpenAPI)
	mux.HandleFunc("GET /docs", handler.SwaggerUI)
	mux.HandleFunc("GET /docs/", handler.SwaggerUI)
}

func registerLeagueRoutes(mux *http.ServeMux, handler *Handler, verifier TokenVerifier) {
	mux.Handle("POST /v1/leagues/{league}/games/{gameID}/activate", RequireAuth(verifier, http.HandlerFunc(handler.ActivateGame)))
	mux.Handle("POST /v1/leagues/{league}/games/{gameID}/finalize", RequireAuth(verifier, http.HandlerFunc(handler.FinalizeGame)))
	mux.Handle("GET /v1/leagues/{league}/live-scoring/status", RequireAuth(verifier, http.HandlerFunc(handler.GetScoringStatus)))
	mux.Handle("PUT /v1/leagues/{league}/live-scoring/status", RequireAuth(verifier, http.HandlerFunc(handler.SetScoringStatus)))
	mux.Handle("POST /v1/leagues/{league}/live-scoring/full-update", RequireAuth(verifier, http.HandlerFunc(handler.ForceFullUpdate)))
	mux.Handle("POST /v1/leagues/{league}/bracket/advance", RequireAuth(verifier, http.HandlerFunc(handler.AdvanceBracket)))
}

func registerRelegationRoutes(mux *http.ServeMux, handler *Handler, verifier TokenVerifier) {
	mux.Handle("POST /v1/relegation/detect", RequireAuth(verifier, http.HandlerFunc(handler.DetectRelegationMatchup)))
	mux.Handle("GET /v1/relegation/{seasonID}", RequireAuth(verifier, http.HandlerFunc(handler.GetRelegationRecord)))
	mux.Handle("POST /v1/relegation/{seasonID}/schedule", RequireAuth(verifier, http.HandlerFunc(handler.ScheduleRelegationGame)))
	mux.Handle("POST /v1/relegation/{seasonID}/execute", RequireAuth(verifier, http.HandlerFunc(handler.ExecutePromotion)))
}

func registerInternalJobRoutes(mux *http.ServeMux, handler *Handler, internalJobToken string) {
	mux.Handle("POST /v1/internal/jobs/sample", RequireInternalJobToken(internalJobToken, http.HandlerFunc(handler.RunSampleJob)))
	mux.Handle("POST /v1/internal/jobs/auto-start", RequireInternalJobToken(internalJobToken, http.HandlerFunc(handler.RunAutoStartJob)))
	mux.Handle("POST /v1/internal/jobs/auto-stop", RequireInternalJobToken(internalJobToken, http.HandlerFunc(handler.RunAutoStopJob)))
	mux.Handle("POST /v1/internal/jobs/auto-finalize", RequireInternalJobToken(internalJobToken, http.HandlerFunc(handler.RunAutoFinalizeJob)))
	mux.Handle("POST /v1/internal/jobs/rollover", RequireInternalJobToken(internalJobToken, http.HandlerFunc(handler.RunRolloverJob)))
	mux.Handle("POST /v1/internal/jobs/relegation-game-completed", RequireInternalJobToken(internalJobToken, http.HandlerFunc(handler.RunRelegationGameCompletedJob)))
	mux.Handle("GET /v1/internal/jobs/runs", RequireInternalJobToken(internalJobToken, http.HandlerFunc(handler.ListJobRuns)))
}
