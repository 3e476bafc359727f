package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/bunnyvideo/internal/platform/natsconn"
	"github.com/example/bunnyvideo/internal/wire"
	"github.com/example/bunnyvideo/services/completion/internal/authority"
)

const (
	SignalStream  = "COMPLETION_SIGNALS"
	DLQSubject    = "completion.dlq"
	signalDurable = "completion_signals"
)

type Recorder interface {
	RecordSatisfied(ctx context.Context, videoID, userID string) (authority.Outcome, error)
}

// SignalConsumer applies tracker signals queued on JetStream.
type SignalConsumer struct {
	Log        *zap.Logger
	JS         nats.JetStreamContext
	Recorder   Recorder
	BatchSize  int
	MaxWait    time.Duration
	MaxDeliver int
}

func NewSignalConsumer(log *zap.Logger, js nats.JetStreamContext, rec Recorder) *SignalConsumer {
	return &SignalConsumer{
		Log:        log,
		JS:         js,
		Recorder:   rec,
		BatchSize:  50,
		MaxWait:    2 * time.Second,
		MaxDeliver: 8,
	}
}

func (c *SignalConsumer) EnsureStream() error {
	return natsconn.EnsureStream(c.JS, SignalStream, []string{wire.SignalSubject, DLQSubject}, 7*24*time.Hour)
}

func (c *SignalConsumer) Run(ctx context.Context) error {
	if err := c.EnsureStream(); err != nil {
		return err
	}
	sub, err := c.JS.PullSubscribe(wire.SignalSubject, signalDurable,
		nats.ManualAck(),
		nats.MaxDeliver(c.MaxDeliver),
		nats.AckWait(30*time.Second),
	)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Unsubscribe() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := sub.Fetch(c.BatchSize, nats.MaxWait(c.MaxWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			c.Log.Warn("signal fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		for _, m := range msgs {
			c.handle(ctx, m)
		}
	}
}

type disposition int

const (
	dispAck disposition = iota
	dispRetry
	dispDeadLetter
)

// handle records the signal for the user named in the payload. No token
// backs it; publish rights on the subject are the authorization.
func (c *SignalConsumer) handle(ctx context.Context, m *nats.Msg) {
	delivered := uint64(1)
	if md, err := m.Metadata(); err == nil {
		delivered = md.NumDelivered
	}

	var sig wire.Signal
	var procErr error
	if err := json.Unmarshal(m.Data, &sig); err != nil {
		procErr = errMalformed{err}
	} else if err := sig.Validate(); err != nil {
		procErr = errMalformed{err}
	} else {
		_, procErr = c.Recorder.RecordSatisfied(ctx, sig.VideoID, sig.UserID)
	}

	log := c.Log.With(zap.String("event_id", sig.EventID), zap.String("video_id", sig.VideoID), zap.String("user_id", sig.UserID))
	switch classify(procErr, delivered, c.MaxDeliver) {
	case dispAck:
		_ = m.Ack()
	case dispRetry:
		log.Warn("signal deferred", zap.Uint64("delivered", delivered), zap.Error(procErr))
		_ = m.NakWithDelay(backoffDelay(delivered))
	case dispDeadLetter:
		log.Error("signal dead-lettered", zap.Uint64("delivered", delivered), zap.Error(procErr))
		if _, err := c.JS.Publish(DLQSubject, m.Data); err != nil {
			log.Error("dlq publish failed", zap.Error(err))
			_ = m.NakWithDelay(backoffDelay(delivered))
			return
		}
		_ = m.Ack()
	}
}

type errMalformed struct{ err error }

func (e errMalformed) Error() string { return "malformed signal: " + e.err.Error() }

// classify decides what happens to a message. Unavailable errors are
// retried until the delivery budget runs out; every other failure is
// permanent and goes straight to the dead letter subject.
func classify(err error, delivered uint64, maxDeliver int) disposition {
	if err == nil {
		return dispAck
	}
	var m errMalformed
	if errors.As(err, &m) {
		return dispDeadLetter
	}
	if status.Code(err) != codes.Unavailable {
		return dispDeadLetter
	}
	if maxDeliver > 0 && delivered >= uint64(maxDeliver) {
		return dispDeadLetter
	}
	return dispRetry
}

// backoffDelay doubles from one second per delivery, capped at a minute.
func backoffDelay(delivered uint64) time.Duration {
	if delivered < 1 {
		delivered = 1
	}
	if delivered > 7 {
		return time.Minute
	}
	d := time.Second << (delivered - 1)
	if d > time.Minute {
		return time.Minute
	}
	return d
}
