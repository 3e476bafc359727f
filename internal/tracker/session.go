package tracker

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/bunnyvideo/internal/wire"
)

type State int

const (
	StateIdle State = iota
	StateTracking
	StateSignaled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTracking:
		return "tracking"
	case StateSignaled:
		return "signaled"
	}
	return "unknown"
}

// Accrual describes what a sample did to the session.
type Accrual string

const (
	AccrualIgnored  Accrual = "ignored"
	AccrualStarted  Accrual = "started"
	AccrualCredited Accrual = "credited"
	AccrualStalled  Accrual = "stalled"
	AccrualSeek     Accrual = "seek"
	AccrualInactive Accrual = "inactive"
)

// Signaler delivers the threshold signal to the completion service.
type Signaler interface {
	Signal(ctx context.Context, req wire.Request) (wire.Response, error)
}

var ErrNoSignaler = errors.New("tracker: no signaler configured")

// Result is the outcome of one signal delivery attempt.
type Result struct {
	Attempt  int
	Response wire.Response
	Err      error
}

type Snapshot struct {
	State        State   `json:"state"`
	Duration     float64 `json:"duration"`
	Watched      float64 `json:"watched"`
	Percent      float64 `json:"percent"`
	MaxPercent   float64 `json:"max_percent"`
	LastPosition float64 `json:"last_position"`
	Spans        []Span  `json:"spans"`
	SignalSent   bool    `json:"signal_sent"`
	Ended        bool    `json:"ended"`
	Attempts     int     `json:"attempts"`
}

type Option func(*Session)

func WithLogger(log *zap.Logger) Option {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock replaces the wall clock used for inactivity detection.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithResultHandler observes every delivery outcome. It runs on the
// delivery goroutine, never under the session lock.
func WithResultHandler(fn func(Result)) Option {
	return func(s *Session) { s.onResult = fn }
}

// Session accumulates watched time for one playback of one video and emits
// at most one completion signal per arming. It is safe for concurrent use
// by event callbacks and the poll loop.
type Session struct {
	cfg      Config
	signaler Signaler
	log      *zap.Logger
	now      func() time.Time
	onResult func(Result)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	state      State
	segments   *Segments
	duration   float64
	lastPos    float64
	lastAt     time.Time
	hasLast    bool
	maxPercent float64
	signalSent bool
	ended      bool
	attempts   int
}

func NewSession(cfg Config, signaler Signaler, opts ...Option) *Session {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:      cfg,
		signaler: signaler,
		log:      zap.NewNop(),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		segments: NewSegments(cfg.Resolution, cfg.MergeTolerance),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With(zap.String("video_id", cfg.VideoID))
	return s
}

func (s *Session) Config() Config { return s.cfg }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready moves an idle session to tracking. It reports whether it did.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return false
	}
	s.state = StateTracking
	s.log.Debug("tracking started", zap.Float64("threshold", s.cfg.ThresholdPercent))
	return true
}

// HandleRaw decodes a timeupdate payload and observes it. Undecodable
// payloads are dropped.
func (s *Session) HandleRaw(raw []byte) Accrual {
	sample, err := wire.ParseSample(raw)
	if err != nil {
		s.log.Debug("sample dropped", zap.ByteString("payload", raw), zap.Error(err))
		return AccrualIgnored
	}
	return s.Observe(sample)
}

// Observe applies one position sample.
func (s *Session) Observe(sample wire.Sample) Accrual {
	return s.observe(sample, s.cfg.InactivityGap)
}

func (s *Session) observe(sample wire.Sample, inactivity time.Duration) Accrual {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateTracking || s.cfg.ThresholdPercent <= 0 {
		return AccrualIgnored
	}
	if !(sample.Duration > 0) || math.IsInf(sample.Duration, 0) || math.IsNaN(sample.Position) || sample.Position < 0 {
		return AccrualIgnored
	}
	s.duration = sample.Duration
	if p := sample.Position / sample.Duration * 100; p > s.maxPercent {
		s.maxPercent = math.Min(p, 100)
	}

	res := s.cfg.Resolution
	pos := math.Round(sample.Position/res) * res
	now := s.now()
	acc := s.accrueLocked(pos, now, inactivity)
	s.lastPos = pos
	s.lastAt = now
	s.hasLast = true

	// A re-armed session re-evaluates on any accepted sample.
	s.evaluateLocked()
	return acc
}

func (s *Session) accrueLocked(pos float64, now time.Time, inactivity time.Duration) Accrual {
	if !s.hasLast {
		return AccrualStarted
	}
	if gap := now.Sub(s.lastAt); gap > inactivity {
		s.log.Debug("inactivity gap, not credited",
			zap.Duration("gap", gap), zap.Float64("from", s.lastPos), zap.Float64("to", pos))
		return AccrualInactive
	}
	delta := pos - s.lastPos
	if math.Abs(delta) > s.cfg.jumpLimit() {
		s.log.Debug("seek detected, not credited", zap.Float64("from", s.lastPos), zap.Float64("to", pos))
		return AccrualSeek
	}
	if delta <= 0 {
		return AccrualStalled
	}
	s.segments.Add(s.lastPos, pos)
	return AccrualCredited
}

// Ended treats the video as fully watched and signals if a threshold is set.
func (s *Session) Ended() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateTracking {
		return
	}
	s.ended = true
	s.evaluateLocked()
}

func (s *Session) percentLocked() float64 {
	if s.ended {
		return 100
	}
	if s.duration <= 0 {
		return 0
	}
	return s.segments.Total() / s.duration * 100
}

func (s *Session) evaluateLocked() {
	if s.signalSent || s.cfg.ThresholdPercent <= 0 {
		return
	}
	pct := s.percentLocked()
	if pct < s.cfg.ThresholdPercent {
		return
	}
	s.signalSent = true
	s.state = StateSignaled
	s.attempts++
	s.log.Info("watch threshold reached",
		zap.Float64("percent", pct),
		zap.Float64("watched", s.segments.Total()),
		zap.Bool("ended", s.ended),
		zap.Int("attempt", s.attempts))

	req := wire.Request{Action: wire.ActionMarkComplete, VideoID: s.cfg.VideoID, UserID: s.cfg.UserID}
	s.wg.Add(1)
	go s.deliver(req, s.attempts)
}

func (s *Session) deliver(req wire.Request, attempt int) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.SignalTimeout)
	defer cancel()

	res := Result{Attempt: attempt}
	if s.signaler == nil {
		res.Err = ErrNoSignaler
	} else {
		res.Response, res.Err = s.signaler.Signal(ctx, req)
	}

	switch {
	case res.Err != nil:
		s.log.Warn("completion signal not delivered", zap.Int("attempt", attempt), zap.Error(res.Err))
		if s.cfg.RetryOnFailure {
			s.mu.Lock()
			if s.state == StateSignaled {
				s.signalSent = false
				s.state = StateTracking
			}
			s.mu.Unlock()
		}
	case !res.Response.Success:
		s.log.Warn("completion signal rejected",
			zap.String("code", res.Response.Code), zap.String("message", res.Response.Message))
	default:
		already := res.Response.AlreadyComplete != nil && *res.Response.AlreadyComplete
		s.log.Info("completion signal accepted", zap.Bool("already_complete", already))
	}

	if s.onResult != nil {
		s.onResult(res)
	}
}

// Wait blocks until every in-flight delivery has finished.
func (s *Session) Wait() { s.wg.Wait() }

// Close aborts in-flight deliveries and waits for them.
func (s *Session) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:        s.state,
		Duration:     s.duration,
		Watched:      s.segments.Total(),
		Percent:      s.percentLocked(),
		MaxPercent:   s.maxPercent,
		LastPosition: s.lastPos,
		Spans:        s.segments.Spans(),
		SignalSent:   s.signalSent,
		Ended:        s.ended,
		Attempts:     s.attempts,
	}
}

func sampleOf(pos, dur float64) wire.Sample {
	return wire.Sample{Position: pos, Duration: dur}
}
