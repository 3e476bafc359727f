package cache

import (
	"context"
	"errors"
)

// Tiered reads through the local tier into an optional shared tier.
type Tiered struct {
	L1 *LocalCache
	L2 DecisionCache
}

func (t *Tiered) Get(ctx context.Context, videoID, userID string) (bool, bool, error) {
	if v, ok, _ := t.L1.Get(ctx, videoID, userID); ok {
		return v, true, nil
	}
	if t.L2 == nil {
		return false, false, nil
	}
	v, ok, err := t.L2.Get(ctx, videoID, userID)
	if err != nil || !ok {
		return false, false, err
	}
	_ = t.L1.Set(ctx, videoID, userID, v)
	return v, true, nil
}

func (t *Tiered) Set(ctx context.Context, videoID, userID string, satisfied bool) error {
	_ = t.L1.Set(ctx, videoID, userID, satisfied)
	if t.L2 == nil {
		return nil
	}
	return t.L2.Set(ctx, videoID, userID, satisfied)
}

func (t *Tiered) Invalidate(ctx context.Context, videoID, userID string) error {
	err := t.L1.Invalidate(ctx, videoID, userID)
	if t.L2 != nil {
		err = errors.Join(err, t.L2.Invalidate(ctx, videoID, userID))
	}
	return err
}

func (t *Tiered) InvalidateVideo(ctx context.Context, videoID string) error {
	err := t.L1.InvalidateVideo(ctx, videoID)
	if t.L2 != nil {
		err = errors.Join(err, t.L2.InvalidateVideo(ctx, videoID))
	}
	return err
}
