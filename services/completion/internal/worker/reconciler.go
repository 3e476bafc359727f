package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/bunnyvideo/services/completion/internal/authority"
)

type DriftReconciler interface {
	ReconcileAgainstExternalDrift(ctx context.Context) (authority.ReconcileReport, error)
}

// Reconciler runs drift passes on an interval.
type Reconciler struct {
	Log       *zap.Logger
	Authority DriftReconciler
	Interval  time.Duration
}

func (r *Reconciler) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			report, err := r.Authority.ReconcileAgainstExternalDrift(ctx)
			if err != nil {
				r.Log.Warn("reconcile pass failed", zap.Error(err))
				continue
			}
			r.Log.Debug("reconcile pass done", zap.Int("scanned", report.Scanned), zap.Int("reverted", report.Reverted))
		}
	}
}
