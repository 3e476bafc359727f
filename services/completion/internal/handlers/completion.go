package handlers

import (
	"mime"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/example/bunnyvideo/internal/platform/api"
	"github.com/example/bunnyvideo/internal/platform/auth"
	"github.com/example/bunnyvideo/internal/platform/httpserver"
	"github.com/example/bunnyvideo/internal/wire"
	"github.com/example/bunnyvideo/services/completion/internal/authority"
)

// Completion serves the tracker-facing endpoint. mark_complete always
// applies to the authenticated user; toggle_completion is the
// administrative path and needs the override capability.
func Completion(a *authority.Authority, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		caller, ok := actor(w, r, rid)
		if !ok {
			return
		}

		req, ok := decodeCompletionRequest(w, r)
		if !ok {
			return
		}
		if err := req.Validate(); err != nil {
			api.WriteJSON(w, http.StatusBadRequest, wire.Response{Message: err.Error(), Code: authority.ReasonInvalidArgument})
			return
		}

		switch req.Action {
		case wire.ActionMarkComplete:
			if req.UserID != "" && req.UserID != caller.UserID {
				api.WriteJSON(w, http.StatusForbidden, wire.Response{
					Message: "userId does not match the authenticated user",
					Code:    authority.ReasonPermissionDenied,
				})
				return
			}
			out, err := a.RecordSatisfied(r.Context(), req.VideoID, caller.UserID)
			if err != nil {
				writeWireError(w, log, err)
				return
			}
			api.WriteJSON(w, http.StatusOK, authority.ResponseFor(out))

		case wire.ActionToggleCompletion:
			_, err := a.ForceState(r.Context(), authority.Override{
				VideoID:   req.VideoID,
				UserID:    req.UserID,
				Satisfied: req.Satisfied(),
				Reason:    "toggle_completion",
				Actor:     caller,
			})
			if err != nil {
				writeWireError(w, log, err)
				return
			}
			msg := "completion revoked"
			if req.Satisfied() {
				msg = "completion granted"
			}
			api.WriteJSON(w, http.StatusOK, wire.Response{Success: true, Message: msg})
		}
	}
}

func writeWireError(w http.ResponseWriter, log *zap.Logger, err error) {
	code := httpStatus(err)
	if code >= http.StatusInternalServerError {
		log.Warn("completion request failed", zap.Error(err))
	}
	api.WriteJSON(w, code, authority.ErrorResponse(err))
}

// decodeCompletionRequest accepts JSON or the form encoding used by LMS
// ajax callers.
func decodeCompletionRequest(w http.ResponseWriter, r *http.Request) (wire.Request, bool) {
	var req wire.Request
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "application/x-www-form-urlencoded" && mt != "multipart/form-data" {
		return req, decodeJSON(w, r, httpserver.RequestIDFromContext(r.Context()), &req)
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := r.ParseForm(); err != nil {
		api.BadRequest(w, "INVALID_FORM", "Invalid form body", httpserver.RequestIDFromContext(r.Context()), nil)
		return req, false
	}
	req.Action = wire.Action(r.PostForm.Get("action"))
	req.VideoID = r.PostForm.Get("videoId")
	req.UserID = r.PostForm.Get("userId")
	if raw := strings.TrimSpace(r.PostForm.Get("newState")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			n = -1
		}
		req.NewState = wire.Int(n)
	}
	return req, true
}

// CompletionStatus answers for the caller, or for ?user_id= when the caller
// may read other users' completion.
func CompletionStatus(a *authority.Authority) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		caller, ok := actor(w, r, rid)
		if !ok {
			return
		}
		userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
		if userID == "" {
			userID = caller.UserID
		}
		if userID != caller.UserID && !auth.RoleHas(caller.Role, auth.CapReadAnyCompletion) {
			api.Forbidden(w, authority.ReasonPermissionDenied, "missing capability "+string(auth.CapReadAnyCompletion), rid)
			return
		}

		st, err := a.Status(r.Context(), videoIDParam(r), userID)
		if err != nil {
			writeStatusError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, st)
	}
}
