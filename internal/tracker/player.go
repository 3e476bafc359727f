package tracker

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

const (
	EventReady      = "ready"
	EventTimeUpdate = "timeupdate"
	EventEnded      = "ended"
	EventError      = "error"
	EventPlay       = "play"
	EventPause      = "pause"
)

// PositionSource answers the current playback position and duration.
type PositionSource interface {
	Position(ctx context.Context) (float64, error)
	Duration(ctx context.Context) (float64, error)
}

// Player is the capability every embed adapter exposes.
type Player interface {
	PositionSource
	On(event string, fn func(value json.RawMessage))
}

// Probe recognises one specific embed and returns an adapter for it.
type Probe struct {
	Name   string
	Detect func(ctx context.Context) (Player, bool)
}

// FallbackName is reported when no probe matched.
const FallbackName = "postmessage"

// Detect tries probes in order and falls back to fallback when none match.
func Detect(ctx context.Context, probes []Probe, fallback func() Player) (Player, string) {
	for _, p := range probes {
		if p.Detect == nil {
			continue
		}
		if pl, ok := p.Detect(ctx); ok && pl != nil {
			return pl, p.Name
		}
	}
	return fallback(), FallbackName
}

// Bind wires player events into s. Ready starts tracking and the poll
// backstop, which runs until ctx ends.
func Bind(ctx context.Context, s *Session, p Player) {
	log := s.log
	p.On(EventReady, func(json.RawMessage) {
		if s.Ready() {
			go func() {
				if err := s.Poll(ctx, p); err != nil {
					log.Debug("poll stopped", zap.Error(err))
				}
			}()
		}
	})
	p.On(EventTimeUpdate, func(v json.RawMessage) { s.HandleRaw(v) })
	p.On(EventEnded, func(json.RawMessage) { s.Ended() })
	p.On(EventError, func(v json.RawMessage) {
		log.Warn("player error", zap.ByteString("value", v))
	})
}

// Poll samples src every PollInterval and feeds the same accrual path as
// timeupdate events. It returns when ctx ends, or once the session is
// signaled for good.
func (s *Session) Poll(ctx context.Context, src PositionSource) error {
	t := time.NewTicker(s.cfg.PollInterval)
	defer t.Stop()
	limit := s.cfg.InactivityGap + s.cfg.PollSlack

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}

		switch s.State() {
		case StateIdle:
			continue
		case StateSignaled:
			if !s.cfg.RetryOnFailure {
				return nil
			}
			continue
		}

		pos, err := src.Position(ctx)
		if err != nil {
			s.log.Debug("poll position failed", zap.Error(err))
			continue
		}
		dur, err := src.Duration(ctx)
		if err != nil {
			s.log.Debug("poll duration failed", zap.Error(err))
			continue
		}
		s.observe(sampleOf(pos, dur), limit)
	}
}
