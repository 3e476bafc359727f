package tracker

import "time"

// Config tunes a watch session. Zero values take the defaults noted per field.
type Config struct {
	VideoID string
	UserID  string

	// ThresholdPercent is the share of the duration that must be watched.
	// Zero or less disables tracking for the session.
	ThresholdPercent float64

	// Resolution in seconds that positions are rounded to. Default 1.
	Resolution float64
	// InactivityGap is the wall-clock gap between samples beyond which the
	// interval is treated as paused or backgrounded. Default 2s.
	InactivityGap time.Duration
	// JumpFactor times Resolution is the largest position move still treated
	// as continuous playback. Default 2.
	JumpFactor float64
	// MergeTolerance in seconds below which neighbouring spans are merged.
	// Default Resolution; negative means exact adjacency only.
	MergeTolerance float64

	// PollInterval of the position backstop loop. Default 2s.
	PollInterval time.Duration
	// PollSlack widens InactivityGap for backstop samples, whose spacing
	// equals PollInterval plus scheduler jitter. Default 500ms.
	PollSlack time.Duration

	// SignalTimeout bounds a single signal delivery. Default 10s.
	SignalTimeout time.Duration
	// RetryOnFailure re-arms the one-shot signal when delivery fails at the
	// transport level. Default false: a failed delivery is reported and the
	// session stays signaled.
	RetryOnFailure bool
}

func (c Config) withDefaults() Config {
	if c.Resolution <= 0 {
		c.Resolution = 1
	}
	if c.InactivityGap <= 0 {
		c.InactivityGap = 2 * time.Second
	}
	if c.JumpFactor <= 0 {
		c.JumpFactor = 2
	}
	switch {
	case c.MergeTolerance == 0:
		c.MergeTolerance = c.Resolution
	case c.MergeTolerance < 0:
		c.MergeTolerance = 0
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.PollSlack <= 0 {
		c.PollSlack = 500 * time.Millisecond
	}
	if c.SignalTimeout <= 0 {
		c.SignalTimeout = 10 * time.Second
	}
	return c
}

func (c Config) jumpLimit() float64 { return c.JumpFactor * c.Resolution }
