package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// InvalidationSubject carries invalidations to the local tier of every
// other instance.
const InvalidationSubject = "completion.cache.invalidate"

type invalidation struct {
	VideoID string `json:"video_id"`
	UserID  string `json:"user_id,omitempty"`
	Origin  string `json:"origin"`
}

// Broadcaster publishes invalidations on NATS core. A nil connection makes
// it a no-op for single-instance deployments.
type Broadcaster struct {
	nc     *nats.Conn
	origin string
}

func NewBroadcaster(nc *nats.Conn, origin string) *Broadcaster {
	return &Broadcaster{nc: nc, origin: origin}
}

func (b *Broadcaster) Invalidate(_ context.Context, videoID, userID string) error {
	return b.publish(invalidation{VideoID: videoID, UserID: userID, Origin: b.origin})
}

func (b *Broadcaster) InvalidateVideo(_ context.Context, videoID string) error {
	return b.publish(invalidation{VideoID: videoID, Origin: b.origin})
}

func (b *Broadcaster) publish(m invalidation) error {
	if b == nil || b.nc == nil {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := b.nc.Publish(InvalidationSubject, data); err != nil {
		return fmt.Errorf("broadcast invalidation: %w", err)
	}
	return nil
}

// Subscribe applies invalidations broadcast by other instances to target.
func Subscribe(nc *nats.Conn, origin string, target Invalidator, log *zap.Logger) (*nats.Subscription, error) {
	return nc.Subscribe(InvalidationSubject, func(msg *nats.Msg) {
		if err := apply(context.Background(), msg.Data, origin, target); err != nil {
			log.Warn("invalidation dropped", zap.Error(err))
		}
	})
}

func apply(ctx context.Context, data []byte, origin string, target Invalidator) error {
	var m invalidation
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if m.Origin == origin || m.VideoID == "" {
		return nil
	}
	if m.UserID == "" {
		return target.InvalidateVideo(ctx, m.VideoID)
	}
	return target.Invalidate(ctx, m.VideoID, m.UserID)
}
