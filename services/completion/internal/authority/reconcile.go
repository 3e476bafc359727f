package authority

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/bunnyvideo/internal/platform/events"
	"github.com/example/bunnyvideo/services/completion/internal/store"
)

type ReconcileReport struct {
	Scanned  int `json:"scanned"`
	Reverted int `json:"reverted"`
	Failed   int `json:"failed"`
}

// ReconcileAgainstExternalDrift reverts every external completion flag that
// the records do not back. A flag set by another mechanism (a view-based
// rule, a manual toggle in the host) is drift and never overrides a record.
func (a *Authority) ReconcileAgainstExternalDrift(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	if a.external == nil {
		return report, nil
	}

	after := store.Key{}
	for {
		keys, err := a.external.ListComplete(ctx, after, a.batch)
		if err != nil {
			a.log.Error("list external completions failed", zap.Error(err))
			return report, errStore()
		}
		for _, k := range keys {
			report.Scanned++
			reverted, err := a.reconcileOne(ctx, k)
			if err != nil {
				report.Failed++
				a.log.Warn("reconcile failed", zap.String("video_id", k.VideoID), zap.String("user_id", k.UserID), zap.Error(err))
				continue
			}
			if reverted {
				report.Reverted++
			}
		}
		if len(keys) < a.batch {
			break
		}
		after = keys[len(keys)-1]
		if err := ctx.Err(); err != nil {
			return report, err
		}
	}

	if report.Reverted > 0 || report.Failed > 0 {
		a.log.Info("reconcile finished",
			zap.Int("scanned", report.Scanned),
			zap.Int("reverted", report.Reverted),
			zap.Int("failed", report.Failed),
		)
	}
	return report, nil
}

func (a *Authority) reconcileOne(ctx context.Context, k store.Key) (bool, error) {
	unlock := a.locks.lockPair(k.VideoID, k.UserID)
	defer unlock()

	ok, err := a.isSatisfied(ctx, k.VideoID, k.UserID)
	if err != nil || ok {
		return false, err
	}
	if err := a.external.Revert(ctx, k.VideoID, k.UserID); err != nil {
		return false, err
	}
	if err := a.inv.Invalidate(ctx, k.VideoID, k.UserID); err != nil {
		a.log.Warn("invalidate after drift revert failed", zap.String("video_id", k.VideoID), zap.String("user_id", k.UserID), zap.Error(err))
	}
	a.log.Warn("completion drift reverted", zap.String("video_id", k.VideoID), zap.String("user_id", k.UserID))
	a.events.Publish(events.SubjectDriftReverted, k.VideoID, k.UserID, nil)
	return true, nil
}
