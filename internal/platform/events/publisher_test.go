package events

import (
	"testing"
	"time"
)

func TestPublish_NilSafe(t *testing.T) {
	var p *Publisher
	p.Publish(SubjectSatisfied, "v", "u", nil)
	New(nil, nil).Publish(SubjectSatisfied, "v", "u", nil)
}

func TestEnvelope(t *testing.T) {
	p := New(nil, nil)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	p.now = func() time.Time { return fixed }

	ev := p.envelope(SubjectDriftReverted, "video-1", "user-1", map[string]any{"source": "host"})
	if ev.EventName != "drift_reverted" {
		t.Fatalf("expected drift_reverted, got %q", ev.EventName)
	}
	if ev.EventID == "" {
		t.Fatal("expected event id")
	}
	if !ev.OccurredAt.Equal(fixed) || ev.OccurredAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %v", ev.OccurredAt)
	}
}
