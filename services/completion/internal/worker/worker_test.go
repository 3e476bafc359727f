package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/bunnyvideo/internal/wire"
	"github.com/example/bunnyvideo/services/completion/internal/authority"
)

func TestBackoffDelay(t *testing.T) {
	cases := map[uint64]time.Duration{
		0:  time.Second,
		1:  time.Second,
		2:  2 * time.Second,
		4:  8 * time.Second,
		7:  time.Minute,
		30: time.Minute,
	}
	for delivered, want := range cases {
		if got := backoffDelay(delivered); got != want {
			t.Fatalf("delivered=%d: expected %v, got %v", delivered, want, got)
		}
	}
}

func TestClassify(t *testing.T) {
	unavailable := status.Error(codes.Unavailable, "db down")
	cases := []struct {
		name      string
		err       error
		delivered uint64
		want      disposition
	}{
		{"success", nil, 1, dispAck},
		{"malformed", errMalformed{errors.New("bad json")}, 1, dispDeadLetter},
		{"unknown video", status.Error(codes.NotFound, "video"), 1, dispDeadLetter},
		{"disabled", status.Error(codes.FailedPrecondition, "off"), 1, dispDeadLetter},
		{"store down", unavailable, 1, dispRetry},
		{"store down, budget spent", unavailable, 8, dispDeadLetter},
		{"plain error", errors.New("boom"), 1, dispDeadLetter},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classify(tc.err, tc.delivered, 8); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

type countingReconciler struct{ n atomic.Int32 }

func (c *countingReconciler) ReconcileAgainstExternalDrift(context.Context) (authority.ReconcileReport, error) {
	c.n.Add(1)
	return authority.ReconcileReport{}, nil
}

func TestReconciler_RunsUntilCancelled(t *testing.T) {
	rec := &countingReconciler{}
	r := &Reconciler{Log: zap.NewNop(), Authority: rec, Interval: 5 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for rec.n.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expected clean exit, got %v", err)
	}
	if rec.n.Load() < 2 {
		t.Fatalf("expected at least 2 passes, got %d", rec.n.Load())
	}
}

type recordedKey struct{ videoID, userID string }

type recordingRecorder struct{ got []recordedKey }

func (r *recordingRecorder) RecordSatisfied(_ context.Context, videoID, userID string) (authority.Outcome, error) {
	r.got = append(r.got, recordedKey{videoID, userID})
	return authority.Outcome{}, nil
}

// Queued signals carry no token: the payload's user is the one recorded.
func TestSignalConsumer_RecordsPayloadUser(t *testing.T) {
	rec := &recordingRecorder{}
	c := NewSignalConsumer(zap.NewNop(), nil, rec)
	data, _ := json.Marshal(wire.Signal{EventID: "e-1", VideoID: "42", UserID: "7", EmittedAt: time.Now()})

	c.handle(context.Background(), &nats.Msg{Subject: wire.SignalSubject, Data: data})

	if len(rec.got) != 1 || rec.got[0] != (recordedKey{"42", "7"}) {
		t.Fatalf("expected one record for 42/7, got %+v", rec.got)
	}
}
