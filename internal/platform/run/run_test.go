package run

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRun_StartReturnsNil(t *testing.T) {
	r := New(zap.NewNop())
	if code := r.run(context.Background(), func(context.Context) error { return nil }); code != 0 {
		t.Fatalf("expected 0, got %d", code)
	}
}

func TestRun_ServerClosedIsClean(t *testing.T) {
	r := New(zap.NewNop())
	if code := r.run(context.Background(), func(context.Context) error { return http.ErrServerClosed }); code != 0 {
		t.Fatalf("expected 0, got %d", code)
	}
}

func TestRun_StartError(t *testing.T) {
	r := New(zap.NewNop())
	if code := r.run(context.Background(), func(context.Context) error { return errors.New("boom") }); code != 1 {
		t.Fatalf("expected 1, got %d", code)
	}
}

func TestRun_CancelWaitsForDrain(t *testing.T) {
	r := New(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	drained := false
	go cancel()
	code := r.run(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		drained = true
		return ctx.Err()
	})
	if code != 0 {
		t.Fatalf("expected 0, got %d", code)
	}
	if !drained {
		t.Fatal("expected start to finish draining before exit")
	}
}

func TestRun_DrainTimeout(t *testing.T) {
	r := &Runner{Logger: zap.NewNop(), DrainTimeout: 10 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	block := make(chan struct{})
	defer close(block)
	code := r.run(ctx, func(context.Context) error {
		<-block
		return nil
	})
	if code != 1 {
		t.Fatalf("expected 1 on drain timeout, got %d", code)
	}
}
