package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/bunnyvideo/internal/wire"
)

func TestHTTPSignaler_Success(t *testing.T) {
	var got wire.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/completion" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(wire.Response{Success: true, AlreadyComplete: wire.Bool(true)})
	}))
	defer srv.Close()

	resp, err := HTTPSignaler{BaseURL: srv.URL + "/", Token: "tok"}.Signal(context.Background(),
		wire.Request{Action: wire.ActionMarkComplete, VideoID: "v1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Success || resp.AlreadyComplete == nil || !*resp.AlreadyComplete {
		t.Fatalf("unexpected response %+v", resp)
	}
	if got.VideoID != "v1" || got.Action != wire.ActionMarkComplete {
		t.Fatalf("unexpected request body %+v", got)
	}
}

func TestHTTPSignaler_ServerErrorIsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := HTTPSignaler{BaseURL: srv.URL}.Signal(context.Background(), wire.Request{VideoID: "v1"})
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected StatusError 503, got %v", err)
	}
}

func TestHTTPSignaler_AuthRejectionIsAResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":"AUTH_INVALID","message":"Invalid or expired token"}}`))
	}))
	defer srv.Close()

	resp, err := HTTPSignaler{BaseURL: srv.URL}.Signal(context.Background(), wire.Request{VideoID: "v1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Success || resp.Code != "AUTH_INVALID" {
		t.Fatalf("expected AUTH_INVALID rejection, got %+v", resp)
	}
}

func TestNATSSignaler_RequiresUser(t *testing.T) {
	resp, err := NATSSignaler{}.Signal(context.Background(), wire.Request{VideoID: "v1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Success || resp.Code != "INVALID_ARGUMENT" {
		t.Fatalf("expected INVALID_ARGUMENT, got %+v", resp)
	}
}
