package handlers

import (
	"net/http"

	"github.com/example/bunnyvideo/internal/platform/api"
	"github.com/example/bunnyvideo/internal/platform/httpserver"
	"github.com/example/bunnyvideo/services/completion/internal/engine"
)

type engineStateResponse struct {
	VideoID  string `json:"video_id"`
	UserID   string `json:"user_id"`
	Complete bool   `json:"complete"`
	Cached   bool   `json:"cached"`
}

type hostReportRequest struct {
	Complete bool `json:"complete"`
}

// EngineState is the host engine's read of a completion decision.
func EngineState(reader *engine.Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		videoID, userID := videoIDParam(r), userIDParam(r)
		v, cached, err := reader.Satisfied(r.Context(), videoID, userID)
		if err != nil {
			writeStatusError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, engineStateResponse{VideoID: videoID, UserID: userID, Complete: v, Cached: cached})
	}
}

// ReportHostState records a flag the host set by its own rules.
func ReportHostState(host *engine.HostState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		var req hostReportRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		if err := host.Report(r.Context(), videoIDParam(r), userIDParam(r), req.Complete); err != nil {
			api.Unavailable(w, "STORE_UNAVAILABLE", "host state could not be recorded", rid)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
