package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/bunnyvideo/internal/tracker"
	"github.com/example/bunnyvideo/internal/wire"
)

func TestLoadReplay_TimestampsAndSteps(t *testing.T) {
	in := strings.Join([]string{
		`# recorded from staging`,
		`{"t":0,"frame":{"context":"player.js","event":"ready"}}`,
		``,
		`{"frame":{"context":"player.js","event":"play"}}`,
		`{"t":2.5,"frame":{"context":"player.js","event":"pause"}}`,
	}, "\n")
	frames, err := loadReplay(strings.NewReader(in), 500*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	want := []time.Duration{0, 500 * time.Millisecond, 2500 * time.Millisecond}
	for i, f := range frames {
		if f.at != want[i] {
			t.Fatalf("frame %d: expected %s, got %s", i, want[i], f.at)
		}
	}
}

func TestLoadReplay_Rejects(t *testing.T) {
	cases := map[string]string{
		"bad json":      `{"t":`,
		"missing frame": `{"t":1}`,
		"backwards":     "{\"t\":2,\"frame\":{}}\n{\"t\":1,\"frame\":{}}",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := loadReplay(strings.NewReader(in), time.Second); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestReplayTransport_AnswersGetters(t *testing.T) {
	frames := []replayFrame{{at: 3 * time.Second, data: timeupdate(12, 40)}}
	clock := &replayClock{base: time.Unix(0, 0)}
	tr := newReplayTransport(frames, clock)
	ctx := context.Background()

	if _, err := tr.Receive(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := clock.Now(); !got.Equal(time.Unix(3, 0)) {
		t.Fatalf("expected clock at 3s, got %s", got)
	}

	req, _ := wire.MethodFrame("getCurrentTime", nil, "l-1")
	if err := tr.Send(ctx, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw, err := tr.Receive(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f, err := wire.ParseFrame(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Listener != "l-1" {
		t.Fatalf("expected listener l-1, got %q", f.Listener)
	}
	if v, err := wire.ParseSeconds(f.Value); err != nil || v != 12 {
		t.Fatalf("expected 12, got %v (%v)", v, err)
	}
	if _, err := tr.Receive(ctx); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

type recordingSignaler struct {
	mu   sync.Mutex
	reqs []wire.Request
}

func (r *recordingSignaler) Signal(_ context.Context, req wire.Request) (wire.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return wire.Response{Success: true, Message: "completion recorded"}, nil
}

func TestRunReplay_SignalsOnceAtThreshold(t *testing.T) {
	frames := recording(t, 7)
	sig := &recordingSignaler{}
	rep, err := runReplay(context.Background(), frames, tracker.Config{
		VideoID: "42", UserID: "7", ThresholdPercent: 50,
	}, sig, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sig.reqs) != 1 {
		t.Fatalf("expected one signal, got %d", len(sig.reqs))
	}
	if sig.reqs[0].VideoID != "42" || sig.reqs[0].UserID != "7" {
		t.Fatalf("unexpected request %+v", sig.reqs[0])
	}
	if !rep.Snapshot.SignalSent {
		t.Fatal("expected snapshot to show the signal")
	}
	if code := exitCode(rep); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
}

func TestRunReplay_BelowThreshold(t *testing.T) {
	frames := recording(t, 2)
	sig := &recordingSignaler{}
	rep, err := runReplay(context.Background(), frames, tracker.Config{
		VideoID: "42", UserID: "7", ThresholdPercent: 50,
	}, sig, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sig.reqs) != 0 {
		t.Fatalf("expected no signal, got %d", len(sig.reqs))
	}
	if code := exitCode(rep); code != 3 {
		t.Fatalf("expected exit 3, got %d", code)
	}
}

func TestExitCode_Rejected(t *testing.T) {
	rep := report{Results: []resultLine{{Attempt: 1, Response: wire.Response{Success: false, Code: "PERMISSION_DENIED"}}}}
	if code := exitCode(rep); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
}

// recording plays a 10 second video continuously up to the given second.
func recording(t *testing.T, upTo int) []replayFrame {
	t.Helper()
	var b strings.Builder
	b.WriteString(`{"t":0,"frame":{"context":"player.js","event":"ready"}}` + "\n")
	for i := 0; i <= upTo*2; i++ {
		pos := float64(i) / 2
		fmt.Fprintf(&b, `{"t":%g,"frame":%s}`+"\n", pos, timeupdate(pos, 10))
	}
	frames, err := loadReplay(strings.NewReader(b.String()), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return frames
}

func timeupdate(pos, dur float64) []byte {
	value, _ := json.Marshal(map[string]float64{"seconds": pos, "duration": dur})
	b, _ := json.Marshal(wire.Frame{
		Context: wire.FrameContext,
		Version: wire.FrameVersion,
		Event:   "timeupdate",
		Value:   value,
	})
	return b
}
