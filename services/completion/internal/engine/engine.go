// Package engine models the host LMS completion engine: a read-only
// consumer of authority decisions that keeps its own completion flags.
// Those flags are derived state; the authority invalidates them and the
// reconciler reverts the ones it did not grant.
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/bunnyvideo/services/completion/internal/cache"
	"github.com/example/bunnyvideo/services/completion/internal/store"
)

// HostState exposes the mirrored host flags as an external state the
// authority can reconcile and invalidate.
type HostState struct {
	Repo store.HostStateRepository
	Now  func() time.Time
}

func NewHostState(repo store.HostStateRepository) *HostState {
	return &HostState{Repo: repo, Now: func() time.Time { return time.Now().UTC() }}
}

func (h *HostState) ListComplete(ctx context.Context, after store.Key, limit int) ([]store.Key, error) {
	rows, err := h.Repo.ListHostComplete(ctx, after, limit)
	if err != nil {
		return nil, err
	}
	out := make([]store.Key, len(rows))
	for i, r := range rows {
		out[i] = store.Key{VideoID: r.VideoID, UserID: r.UserID}
	}
	return out, nil
}

func (h *HostState) Revert(ctx context.Context, videoID, userID string) error {
	return h.Repo.ClearHost(ctx, videoID, userID)
}

func (h *HostState) Invalidate(ctx context.Context, videoID, userID string) error {
	return h.Repo.ClearHost(ctx, videoID, userID)
}

func (h *HostState) InvalidateVideo(ctx context.Context, videoID string) error {
	_, err := h.Repo.ClearHostVideo(ctx, videoID)
	return err
}

// Report records the host's own view of a completion flag. Flags the
// authority does not back are reverted on the next reconcile pass.
func (h *HostState) Report(ctx context.Context, videoID, userID string, complete bool) error {
	if complete {
		return h.Repo.MarkHostComplete(ctx, videoID, userID, h.Now())
	}
	return h.Repo.ClearHost(ctx, videoID, userID)
}

type Checker interface {
	IsSatisfied(ctx context.Context, videoID, userID string) (bool, error)
}

// Reader answers the host engine's "is this activity complete?" query
// through the decision cache.
type Reader struct {
	Authority Checker
	Cache     cache.DecisionCache
	Host      *HostState
	Log       *zap.Logger
}

// Satisfied returns the decision and whether it came from the cache.
func (r *Reader) Satisfied(ctx context.Context, videoID, userID string) (bool, bool, error) {
	log := r.logger()
	if r.Cache != nil {
		v, ok, err := r.Cache.Get(ctx, videoID, userID)
		if err != nil {
			log.Warn("decision cache read failed", zap.String("video_id", videoID), zap.String("user_id", userID), zap.Error(err))
		} else if ok {
			return v, true, nil
		}
	}

	v, err := r.Authority.IsSatisfied(ctx, videoID, userID)
	if err != nil {
		return false, false, err
	}
	r.fill(ctx, videoID, userID, v)

	// An override that landed between the read and the fill has already
	// invalidated; confirm so our fill does not outlive it.
	again, err := r.Authority.IsSatisfied(ctx, videoID, userID)
	if err == nil && again != v {
		r.drop(ctx, videoID, userID)
		return again, false, nil
	}
	return v, false, nil
}

func (r *Reader) fill(ctx context.Context, videoID, userID string, v bool) {
	log := r.logger()
	if r.Cache != nil {
		if err := r.Cache.Set(ctx, videoID, userID, v); err != nil {
			log.Warn("decision cache write failed", zap.String("video_id", videoID), zap.String("user_id", userID), zap.Error(err))
		}
	}
	if r.Host != nil {
		if err := r.Host.Report(ctx, videoID, userID, v); err != nil {
			log.Warn("host mirror write failed", zap.String("video_id", videoID), zap.String("user_id", userID), zap.Error(err))
		}
	}
}

func (r *Reader) drop(ctx context.Context, videoID, userID string) {
	if r.Cache != nil {
		_ = r.Cache.Invalidate(ctx, videoID, userID)
	}
	if r.Host != nil {
		_ = r.Host.Invalidate(ctx, videoID, userID)
	}
}

func (r *Reader) logger() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}
