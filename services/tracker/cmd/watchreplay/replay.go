package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/example/bunnyvideo/internal/wire"
)

// replayLine is one recorded postMessage frame. T is seconds since the
// recording started; a missing T advances by the default step.
type replayLine struct {
	T     *float64        `json:"t"`
	Frame json.RawMessage `json:"frame"`
}

type replayFrame struct {
	at   time.Duration
	data []byte
}

func loadReplay(r io.Reader, step time.Duration) ([]replayFrame, error) {
	var out []replayFrame
	var at time.Duration
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	n := 0
	for sc.Scan() {
		n++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		var rl replayLine
		if err := json.Unmarshal(line, &rl); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		if len(rl.Frame) == 0 {
			return nil, fmt.Errorf("line %d: missing frame", n)
		}
		if rl.T != nil {
			next := time.Duration(*rl.T * float64(time.Second))
			if next < at {
				return nil, fmt.Errorf("line %d: time goes backwards", n)
			}
			at = next
		} else if len(out) > 0 {
			at += step
		}
		out = append(out, replayFrame{at: at, data: append([]byte(nil), rl.Frame...)})
	}
	return out, sc.Err()
}

// replayClock reports recorded time instead of wall time.
type replayClock struct {
	mu     sync.Mutex
	base   time.Time
	offset time.Duration
}

func (c *replayClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base.Add(c.offset)
}

func (c *replayClock) set(d time.Duration) {
	c.mu.Lock()
	c.offset = d
	c.mu.Unlock()
}

// replayTransport feeds recorded frames to the player and answers getter
// requests from the last observed timeupdate.
type replayTransport struct {
	clock  *replayClock
	frames []replayFrame

	mu       sync.Mutex
	next     int
	replies  [][]byte
	position float64
	duration float64
	sent     int
}

func newReplayTransport(frames []replayFrame, clock *replayClock) *replayTransport {
	return &replayTransport{frames: frames, clock: clock}
}

func (t *replayTransport) Send(_ context.Context, msg []byte) error {
	f, err := wire.ParseFrame(msg)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent++
	if f.Listener == "" {
		return nil
	}
	var v float64
	switch f.Method {
	case "getCurrentTime":
		v = t.position
	case "getDuration":
		v = t.duration
	default:
		return nil
	}
	reply, err := json.Marshal(wire.Frame{
		Context:  wire.FrameContext,
		Version:  wire.FrameVersion,
		Event:    f.Method,
		Value:    json.RawMessage(strconv.FormatFloat(v, 'f', -1, 64)),
		Listener: f.Listener,
	})
	if err != nil {
		return err
	}
	t.replies = append(t.replies, reply)
	return nil
}

func (t *replayTransport) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.replies) > 0 {
		r := t.replies[0]
		t.replies = t.replies[1:]
		return r, nil
	}
	if t.next >= len(t.frames) {
		return nil, io.EOF
	}
	f := t.frames[t.next]
	t.next++
	t.clock.set(f.at)
	t.observe(f.data)
	return f.data, nil
}

func (t *replayTransport) observe(raw []byte) {
	f, err := wire.ParseFrame(raw)
	if err != nil || f.Event != "timeupdate" {
		return
	}
	if s, err := wire.ParseSample(f.Value); err == nil {
		t.position, t.duration = s.Position, s.Duration
	}
}
