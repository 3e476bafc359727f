package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/example/bunnyvideo/internal/wire"
)

// HTTPSignaler posts the request to the completion endpoint with the
// learner's bearer token; the server derives the user from the token.
type HTTPSignaler struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// StatusError is a 5xx answer. The signal may not have been recorded.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("completion endpoint returned %d: %s", e.StatusCode, e.Body)
}

type apiErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (h HTTPSignaler) Signal(ctx context.Context, req wire.Request) (wire.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return wire.Response{}, err
	}
	url := strings.TrimRight(h.BaseURL, "/") + "/v1/completion"
	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return wire.Response{}, err
	}
	hr.Header.Set("Content-Type", "application/json")
	if h.Token != "" {
		hr.Header.Set("Authorization", "Bearer "+h.Token)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(hr)
	if err != nil {
		return wire.Response{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return wire.Response{}, err
	}

	if resp.StatusCode >= 500 {
		return wire.Response{}, &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out wire.Response
	if err := json.Unmarshal(raw, &out); err == nil && (out.Success || out.Message != "" || out.Code != "") {
		return out, nil
	}
	// Middleware rejections use the api error envelope instead.
	var ae apiErrorBody
	if err := json.Unmarshal(raw, &ae); err == nil && ae.Error.Code != "" {
		return wire.Response{Success: false, Code: ae.Error.Code, Message: ae.Error.Message}, nil
	}
	if resp.StatusCode >= 300 {
		return wire.Response{Success: false, Code: http.StatusText(resp.StatusCode), Message: string(raw)}, nil
	}
	return wire.Response{}, fmt.Errorf("completion endpoint: undecodable response: %q", raw)
}

// NATSSignaler queues the signal on JetStream for the completion worker.
// Acceptance means durably queued, not yet recorded. The worker trusts the
// UserID in the payload, unlike the HTTP path which takes it from the token,
// so the signal subject must only be reachable by trusted relays.
type NATSSignaler struct {
	JS      nats.JetStreamContext
	Subject string
	Now     func() time.Time
}

func (n NATSSignaler) Signal(ctx context.Context, req wire.Request) (wire.Response, error) {
	subject := n.Subject
	if subject == "" {
		subject = wire.SignalSubject
	}
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	sig := wire.Signal{
		EventID:   uuid.NewString(),
		VideoID:   req.VideoID,
		UserID:    req.UserID,
		EmittedAt: now().UTC(),
	}
	if err := sig.Validate(); err != nil {
		return wire.Response{Success: false, Code: "INVALID_ARGUMENT", Message: err.Error()}, nil
	}
	data, err := json.Marshal(sig)
	if err != nil {
		return wire.Response{}, err
	}
	// The event id doubles as the JetStream dedup key.
	if _, err := n.JS.Publish(subject, data, nats.Context(ctx), nats.MsgId(sig.EventID)); err != nil {
		return wire.Response{}, err
	}
	return wire.Response{Success: true, Message: "queued"}, nil
}
