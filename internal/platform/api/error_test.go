package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteError_Envelope(t *testing.T) {
	rr := httptest.NewRecorder()
	BadRequest(rr, "INVALID_ARGUMENT", "bad", "rid-1", map[string]any{"videoId": "required"})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var body ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "INVALID_ARGUMENT" || body.Error.RequestID != "rid-1" {
		t.Fatalf("unexpected error body: %+v", body.Error)
	}
	if body.Error.Details["videoId"] != "required" {
		t.Fatalf("expected field detail, got %v", body.Error.Details)
	}
}

func TestUnavailable(t *testing.T) {
	rr := httptest.NewRecorder()
	Unavailable(rr, "STORE_UNAVAILABLE", "try again", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestWriteError_DefaultsFromStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	Internal(rr, "rid-2")
	var body ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "INTERNAL" || body.Error.Message != "Internal Server Error" {
		t.Fatalf("unexpected error body: %+v", body.Error)
	}
}

func TestConflict(t *testing.T) {
	rr := httptest.NewRecorder()
	Conflict(rr, "COMPLETION_NOT_ENABLED", "tracking disabled", "", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if got := (APIError{Code: "A", Message: "b"}).Error(); got != "A: b" {
		t.Fatalf("expected %q, got %q", "A: b", got)
	}
}
