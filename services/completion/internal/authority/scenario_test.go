package authority

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/example/bunnyvideo/internal/tracker"
	"github.com/example/bunnyvideo/internal/wire"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// A learner watches half of a 100s video in 10s steps; the tracker signals
// at 50% and the authority records it once.
func TestScenario_TrackerSignalsAuthority(t *testing.T) {
	a, _, _ := newAuthority(t)
	ctx := context.Background()
	configure(t, a, "42", 50, true)

	clock := &stepClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	var mu sync.Mutex
	var results []tracker.Result
	s := tracker.NewSession(
		tracker.Config{VideoID: "42", UserID: "7", ThresholdPercent: 50, Resolution: 10, InactivityGap: 15 * time.Second},
		LocalSignaler{Authority: a},
		tracker.WithClock(clock.Now),
		tracker.WithResultHandler(func(r tracker.Result) {
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}),
	)
	defer s.Close()
	s.Ready()

	for i, p := range []float64{0, 10, 20, 30, 40} {
		if i > 0 {
			clock.Advance(10 * time.Second)
		}
		s.Observe(wire.Sample{Position: p, Duration: 100})
	}
	s.Wait()
	if ok, _ := a.IsSatisfied(ctx, "42", "7"); ok {
		t.Fatalf("expected no completion before 50%%")
	}

	for _, p := range []float64{50, 60} {
		clock.Advance(10 * time.Second)
		s.Observe(wire.Sample{Position: p, Duration: 100})
	}
	s.Wait()

	if ok, _ := a.IsSatisfied(ctx, "42", "7"); !ok {
		t.Fatalf("expected completion recorded at 50%%")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(results) != 1 {
		t.Fatalf("expected one delivery, got %d", len(results))
	}
	if r := results[0]; r.Err != nil || !r.Response.Success || r.Response.AlreadyComplete == nil || *r.Response.AlreadyComplete {
		t.Fatalf("unexpected delivery result: %+v", r)
	}

	// Reconfiguring another video, including to threshold 0, leaves 42 alone.
	configure(t, a, "43", 80, true)
	if res := configure(t, a, "43", 0, true); res.ResetRecords != 0 {
		t.Fatalf("expected nothing to reset on 43, got %d", res.ResetRecords)
	}
	if out, err := a.RecordSatisfied(ctx, "43", "7"); err != nil || !out.NoRequirement {
		t.Fatalf("expected vacuous signal on 43, got %+v err=%v", out, err)
	}
	configure(t, a, "43", 30, true)
	if ok, _ := a.IsSatisfied(ctx, "42", "7"); !ok {
		t.Fatalf("expected 42 to stay satisfied after reconfiguring 43")
	}
	if res := configure(t, a, "42", 50, true); res.ResetRecords != 0 {
		t.Fatalf("expected no reset on 42, got %d", res.ResetRecords)
	}
	if ok, _ := a.IsSatisfied(ctx, "42", "7"); !ok {
		t.Fatalf("expected 42 to stay satisfied")
	}
}

func TestLocalSignaler_RejectionBecomesResponse(t *testing.T) {
	a, _, _ := newAuthority(t)
	resp, err := LocalSignaler{Authority: a}.Signal(context.Background(), wire.Request{Action: wire.ActionMarkComplete, VideoID: "missing", UserID: "7"})
	if err != nil {
		t.Fatalf("expected rejection as response, got %v", err)
	}
	if resp.Success || resp.Code != ReasonVideoNotFound {
		t.Fatalf("unexpected response: %+v", resp)
	}
}
