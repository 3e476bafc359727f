// Command watchreplay replays a recorded player.js session through the watch
// tracker and reports whether, and when, the completion signal fired.
//
//	watchreplay -file session.jsonl -video 42 -user 7 -threshold 80 -endpoint http://localhost:8080
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/bunnyvideo/internal/platform/config"
	"github.com/example/bunnyvideo/internal/platform/logging"
	"github.com/example/bunnyvideo/internal/platform/natsconn"
	"github.com/example/bunnyvideo/internal/tracker"
	"github.com/example/bunnyvideo/internal/wire"
)

type options struct {
	file      string
	videoID   string
	userID    string
	threshold float64
	endpoint  string
	token     string
	natsURL   string
	step      time.Duration
	retry     bool
	logLevel  string
}

type report struct {
	Snapshot tracker.Snapshot `json:"snapshot"`
	Results  []resultLine     `json:"results"`
}

type resultLine struct {
	Attempt  int           `json:"attempt"`
	Response wire.Response `json:"response"`
	Error    string        `json:"error,omitempty"`
}

func main() {
	var o options
	flag.StringVar(&o.file, "file", "", "JSONL recording of player.js frames (- for stdin)")
	flag.StringVar(&o.videoID, "video", "", "video id")
	flag.StringVar(&o.userID, "user", config.Env("TRACKER_USER_ID", ""), "learner id")
	flag.Float64Var(&o.threshold, "threshold", 80, "required watch percentage")
	flag.StringVar(&o.endpoint, "endpoint", config.Env("COMPLETION_URL", ""), "completion service base URL")
	flag.StringVar(&o.token, "token", config.Env("COMPLETION_TOKEN", ""), "bearer token for the endpoint")
	flag.StringVar(&o.natsURL, "nats", config.Env("NATS_URL", ""), "queue the signal on NATS instead of HTTP")
	flag.DurationVar(&o.step, "step", 250*time.Millisecond, "clock step for frames without a timestamp")
	flag.BoolVar(&o.retry, "retry", false, "re-arm after a failed delivery")
	flag.StringVar(&o.logLevel, "log-level", config.Env("LOG_LEVEL", "info"), "log level")
	flag.Parse()

	log, err := logging.New("watchreplay", o.logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	code, err := replay(context.Background(), o, log)
	if err != nil {
		log.Error("replay failed", zap.Error(err))
	}
	os.Exit(code)
}

// replay exits 0 when the signal was delivered and accepted, 3 when the
// threshold was never reached, 2 on bad usage and 1 on any other failure.
func replay(ctx context.Context, o options, log *zap.Logger) (int, error) {
	if o.file == "" || o.videoID == "" {
		return 2, fmt.Errorf("-file and -video are required")
	}
	in := os.Stdin
	if o.file != "-" {
		f, err := os.Open(o.file)
		if err != nil {
			return 1, err
		}
		defer f.Close()
		in = f
	}
	frames, err := loadReplay(in, o.step)
	if err != nil {
		return 1, err
	}

	signaler, closeFn, err := buildSignaler(o, log)
	if err != nil {
		return 1, err
	}
	defer closeFn()

	rep, err := runReplay(ctx, frames, tracker.Config{
		VideoID:          o.videoID,
		UserID:           o.userID,
		ThresholdPercent: o.threshold,
		RetryOnFailure:   o.retry,
	}, signaler, log)
	if err != nil {
		return 1, err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return 1, err
	}
	return exitCode(rep), nil
}

func runReplay(ctx context.Context, frames []replayFrame, cfg tracker.Config, signaler tracker.Signaler, log *zap.Logger) (report, error) {
	// Recorded timeupdates drive accrual; the poll backstop would tick on wall time.
	cfg.PollInterval = time.Hour
	clock := &replayClock{base: time.Now().UTC()}
	transport := newReplayTransport(frames, clock)
	player := tracker.NewMessagePlayer(transport, log)

	var (
		rep     report
		mu      sync.Mutex
		results []tracker.Result
	)
	s := tracker.NewSession(cfg, signaler,
		tracker.WithLogger(log),
		tracker.WithClock(clock.Now),
		tracker.WithResultHandler(func(r tracker.Result) {
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}),
	)
	defer s.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	tracker.Bind(ctx, s, player)
	if err := player.Run(ctx); err != nil && !errors.Is(err, io.EOF) {
		return rep, err
	}
	cancel()
	s.Wait()

	mu.Lock()
	defer mu.Unlock()
	for _, r := range results {
		line := resultLine{Attempt: r.Attempt, Response: r.Response}
		if r.Err != nil {
			line.Error = r.Err.Error()
		}
		rep.Results = append(rep.Results, line)
	}
	rep.Snapshot = s.Snapshot()
	return rep, nil
}

func exitCode(rep report) int {
	if len(rep.Results) == 0 {
		return 3
	}
	last := rep.Results[len(rep.Results)-1]
	if last.Error != "" || !last.Response.Success {
		return 1
	}
	return 0
}

func buildSignaler(o options, log *zap.Logger) (tracker.Signaler, func(), error) {
	switch {
	case o.natsURL != "":
		nc, err := natsconn.Connect(natsconn.Options{URL: o.natsURL, Name: "watchreplay", Log: log})
		if err != nil {
			return nil, nil, err
		}
		js, err := nc.JetStream()
		if err != nil {
			nc.Close()
			return nil, nil, err
		}
		return tracker.NATSSignaler{JS: js}, func() { _ = nc.Drain() }, nil
	case o.endpoint != "":
		return tracker.HTTPSignaler{BaseURL: o.endpoint, Token: o.token}, func() {}, nil
	default:
		log.Info("no endpoint configured; signals are only reported")
		return dryRun{}, func() {}, nil
	}
}

type dryRun struct{}

func (dryRun) Signal(context.Context, wire.Request) (wire.Response, error) {
	return wire.Response{Success: true, Message: "dry run"}, nil
}
