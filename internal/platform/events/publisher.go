// Package events publishes completion domain events to NATS JetStream.
// Downstream consumers (gradebooks, notifications, the host engine) react to
// these instead of polling.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	Stream = "COMPLETION_EVENTS"

	SubjectSatisfied     = "completion.events.satisfied"
	SubjectOverridden    = "completion.events.overridden"
	SubjectVideoReset    = "completion.events.video_reset"
	SubjectDriftReverted = "completion.events.drift_reverted"

	SubjectWildcard = "completion.events.>"
)

// Event is the envelope sent on every completion.events.* subject.
type Event struct {
	EventID    string         `json:"event_id"`
	EventName  string         `json:"event_name"`
	VideoID    string         `json:"video_id"`
	UserID     string         `json:"user_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Publisher is fire-and-forget. A nil pointer or a Publisher without a
// JetStream context drops every event.
type Publisher struct {
	js  nats.JetStreamContext
	log *zap.Logger
	now func() time.Time
}

func New(js nats.JetStreamContext, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{js: js, log: log, now: time.Now}
}

// Publish sends the event asynchronously. Failures are logged and never
// returned, so a broker outage cannot fail a completion write.
func (p *Publisher) Publish(subject, videoID, userID string, props map[string]any) {
	if p == nil || p.js == nil {
		return
	}
	data, err := json.Marshal(p.envelope(subject, videoID, userID, props))
	if err != nil {
		p.log.Warn("events: marshal failed", zap.String("subject", subject), zap.Error(err))
		return
	}
	if _, err := p.js.PublishAsync(subject, data); err != nil {
		p.log.Warn("events: publish failed", zap.String("subject", subject), zap.Error(err))
	}
}

func (p *Publisher) envelope(subject, videoID, userID string, props map[string]any) Event {
	return Event{
		EventID:    uuid.NewString(),
		EventName:  eventName(subject),
		VideoID:    videoID,
		UserID:     userID,
		OccurredAt: p.now().UTC(),
		Properties: props,
	}
}

func eventName(subject string) string {
	const prefix = "completion.events."
	if len(subject) > len(prefix) && subject[:len(prefix)] == prefix {
		return subject[len(prefix):]
	}
	return subject
}
