package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/bunnyvideo/internal/wire"
)

// Transport moves raw postMessage payloads between the page and the embed.
type Transport interface {
	Send(ctx context.Context, msg []byte) error
	Receive(ctx context.Context) ([]byte, error)
}

var ErrPlayerClosed = errors.New("tracker: player closed")

// MessagePlayer speaks the player.js postMessage protocol over a Transport.
// Run must be active for events and getter replies to be delivered.
type MessagePlayer struct {
	t           Transport
	log         *zap.Logger
	sendTimeout time.Duration

	mu       sync.Mutex
	ready    bool
	closed   bool
	handlers map[string][]func(json.RawMessage)
	pending  map[string]chan json.RawMessage
}

func NewMessagePlayer(t Transport, log *zap.Logger) *MessagePlayer {
	if log == nil {
		log = zap.NewNop()
	}
	return &MessagePlayer{
		t:           t,
		log:         log,
		sendTimeout: 5 * time.Second,
		handlers:    make(map[string][]func(json.RawMessage)),
		pending:     make(map[string]chan json.RawMessage),
	}
}

// On subscribes fn to event and asks the embed to emit it. Subscribing to
// ready after the embed is ready calls fn immediately.
func (p *MessagePlayer) On(event string, fn func(json.RawMessage)) {
	p.mu.Lock()
	p.handlers[event] = append(p.handlers[event], fn)
	alreadyReady := event == EventReady && p.ready
	p.mu.Unlock()

	if alreadyReady {
		fn(nil)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.sendTimeout)
	defer cancel()
	if err := p.send(ctx, "addEventListener", event, ""); err != nil {
		p.log.Warn("player subscribe failed", zap.String("event", event), zap.Error(err))
	}
}

func (p *MessagePlayer) Position(ctx context.Context) (float64, error) {
	return p.get(ctx, "getCurrentTime")
}

func (p *MessagePlayer) Duration(ctx context.Context) (float64, error) {
	return p.get(ctx, "getDuration")
}

func (p *MessagePlayer) get(ctx context.Context, method string) (float64, error) {
	id := uuid.NewString()
	ch := make(chan json.RawMessage, 1)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrPlayerClosed
	}
	p.pending[id] = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}()

	if err := p.send(ctx, method, nil, id); err != nil {
		return 0, err
	}
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case v, ok := <-ch:
		if !ok {
			return 0, ErrPlayerClosed
		}
		return wire.ParseSeconds(v)
	}
}

func (p *MessagePlayer) send(ctx context.Context, method string, value any, listener string) error {
	msg, err := wire.MethodFrame(method, value, listener)
	if err != nil {
		return err
	}
	return p.t.Send(ctx, msg)
}

// Run reads frames until ctx ends or the transport fails. Frames from other
// protocols on the same channel are skipped.
func (p *MessagePlayer) Run(ctx context.Context) error {
	defer p.close()
	for {
		raw, err := p.t.Receive(ctx)
		if err != nil {
			return err
		}
		f, err := wire.ParseFrame(raw)
		if err != nil {
			continue
		}
		p.dispatch(f)
	}
}

func (p *MessagePlayer) dispatch(f wire.Frame) {
	p.mu.Lock()
	if f.Listener != "" {
		if ch, ok := p.pending[f.Listener]; ok {
			delete(p.pending, f.Listener)
			p.mu.Unlock()
			ch <- f.Value
			return
		}
	}
	if f.Event == "" {
		p.mu.Unlock()
		return
	}
	if f.Event == EventReady {
		if p.ready {
			p.mu.Unlock()
			return
		}
		p.ready = true
	}
	hs := append([]func(json.RawMessage){}, p.handlers[f.Event]...)
	p.mu.Unlock()

	for _, h := range hs {
		h(f.Value)
	}
}

func (p *MessagePlayer) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for id, ch := range p.pending {
		close(ch)
		delete(p.pending, id)
	}
}
