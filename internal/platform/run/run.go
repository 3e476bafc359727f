package run

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

type Runner struct {
	Logger       *zap.Logger
	DrainTimeout time.Duration
}

func New(log *zap.Logger) *Runner {
	return &Runner{Logger: log, DrainTimeout: 10 * time.Second}
}

// WithSignals runs start until it returns or SIGINT/SIGTERM arrives. On a
// signal the context passed to start is cancelled and start gets DrainTimeout
// to return. The result is a process exit code.
func (r *Runner) WithSignals(start func(ctx context.Context) error) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return r.run(ctx, start)
}

func (r *Runner) run(ctx context.Context, start func(ctx context.Context) error) int {
	errCh := make(chan error, 1)
	go func() {
		errCh <- start(ctx)
	}()

	select {
	case err := <-errCh:
		return r.exitCode(err)
	case <-ctx.Done():
		r.Logger.Info("shutdown signal received")
	}

	select {
	case err := <-errCh:
		return r.exitCode(err)
	case <-time.After(r.DrainTimeout):
		r.Logger.Warn("shutdown drain timed out", zap.Duration("timeout", r.DrainTimeout))
		return 1
	}
}

func (r *Runner) exitCode(err error) int {
	if err == nil || errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
		return 0
	}
	r.Logger.Error("service exited with error", zap.Error(err))
	return 1
}

// Shutdown calls fn with a fresh context bounded by DrainTimeout.
func (r *Runner) Shutdown(fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.DrainTimeout)
	defer cancel()
	return fn(ctx)
}

func Exit(code int) {
	os.Exit(code)
}
