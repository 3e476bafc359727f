package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/bunnyvideo/internal/platform/api"
	"github.com/example/bunnyvideo/internal/platform/httpserver"
	"github.com/example/bunnyvideo/services/completion/internal/authority"
	"github.com/example/bunnyvideo/services/completion/internal/store"
)

type configureVideoRequest struct {
	Title            string `json:"title"`
	ThresholdPercent *int   `json:"threshold_percent"`
	TrackingEnabled  *bool  `json:"tracking_enabled"`
}

type overrideRequest struct {
	Satisfied *bool  `json:"satisfied"`
	Reason    string `json:"reason"`
}

type overridesResponse struct {
	Items []store.CompletionOverride `json:"items"`
}

func videoIDParam(r *http.Request) string { return chi.URLParam(r, "video_id") }

func userIDParam(r *http.Request) string { return chi.URLParam(r, "user_id") }

func ConfigureVideo(a *authority.Authority) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		caller, ok := actor(w, r, rid)
		if !ok {
			return
		}
		var req configureVideoRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		if req.ThresholdPercent == nil {
			api.BadRequest(w, authority.ReasonInvalidArgument, "threshold_percent is required", rid,
				map[string]any{"threshold_percent": "required"})
			return
		}
		enabled := true
		if req.TrackingEnabled != nil {
			enabled = *req.TrackingEnabled
		}

		res, err := a.ConfigureVideo(r.Context(), authority.VideoConfig{
			ID:               videoIDParam(r),
			Title:            req.Title,
			ThresholdPercent: *req.ThresholdPercent,
			TrackingEnabled:  enabled,
		}, caller)
		if err != nil {
			writeStatusError(w, rid, err)
			return
		}
		code := http.StatusOK
		if res.Created {
			code = http.StatusCreated
		}
		api.WriteJSON(w, code, res)
	}
}

func GetVideo(a *authority.Authority) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		v, err := a.Video(r.Context(), videoIDParam(r))
		if err != nil {
			writeStatusError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, v)
	}
}

func DeleteVideo(a *authority.Authority) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		caller, ok := actor(w, r, rid)
		if !ok {
			return
		}
		if err := a.DeleteVideo(r.Context(), videoIDParam(r), caller); err != nil {
			writeStatusError(w, rid, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func ListOverrides(a *authority.Authority) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		items, err := a.Overrides(r.Context(), videoIDParam(r), r.URL.Query().Get("user_id"), queryInt(r, "limit", 50))
		if err != nil {
			writeStatusError(w, rid, err)
			return
		}
		if items == nil {
			items = []store.CompletionOverride{}
		}
		api.WriteJSON(w, http.StatusOK, overridesResponse{Items: items})
	}
}

func ForceState(a *authority.Authority) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		caller, ok := actor(w, r, rid)
		if !ok {
			return
		}
		var req overrideRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		if req.Satisfied == nil {
			api.BadRequest(w, authority.ReasonInvalidArgument, "satisfied is required", rid,
				map[string]any{"satisfied": "required"})
			return
		}
		rec, err := a.ForceState(r.Context(), authority.Override{
			VideoID:   videoIDParam(r),
			UserID:    userIDParam(r),
			Satisfied: *req.Satisfied,
			Reason:    req.Reason,
			Actor:     caller,
		})
		if err != nil {
			writeStatusError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, rec)
	}
}

func Reconcile(a *authority.Authority) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		report, err := a.ReconcileAgainstExternalDrift(r.Context())
		if err != nil {
			writeStatusError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, report)
	}
}
