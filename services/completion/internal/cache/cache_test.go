package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

func TestLocalCache_GetSetInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCache(16, time.Minute)

	if _, ok, _ := c.Get(ctx, "v", "u"); ok {
		t.Fatalf("expected miss on empty cache")
	}
	_ = c.Set(ctx, "v", "u", true)
	v, ok, _ := c.Get(ctx, "v", "u")
	if !ok || !v {
		t.Fatalf("expected cached true, got %v ok=%v", v, ok)
	}
	_ = c.Invalidate(ctx, "v", "u")
	if _, ok, _ := c.Get(ctx, "v", "u"); ok {
		t.Fatalf("expected miss after invalidate")
	}
}

func TestLocalCache_InvalidateVideoOnlyTouchesThatVideo(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCache(16, time.Minute)
	_ = c.Set(ctx, "1", "a", true)
	_ = c.Set(ctx, "1", "b", false)
	_ = c.Set(ctx, "10", "a", true)

	_ = c.InvalidateVideo(ctx, "1")
	if c.Len() != 1 {
		t.Fatalf("expected 1 entry left, got %d", c.Len())
	}
	if _, ok, _ := c.Get(ctx, "10", "a"); !ok {
		t.Fatalf("expected video 10 untouched")
	}
}

func TestLocalCache_Expires(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCache(16, 10*time.Millisecond)
	_ = c.Set(ctx, "v", "u", true)
	time.Sleep(30 * time.Millisecond)
	if _, ok, _ := c.Get(ctx, "v", "u"); ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestTiered_PromotesFromL2(t *testing.T) {
	ctx := context.Background()
	l2 := NewLocalCache(16, time.Minute)
	tc := &Tiered{L1: NewLocalCache(16, time.Minute), L2: l2}

	_ = l2.Set(ctx, "v", "u", true)
	v, ok, err := tc.Get(ctx, "v", "u")
	if err != nil || !ok || !v {
		t.Fatalf("expected L2 hit, got %v ok=%v err=%v", v, ok, err)
	}
	if _, ok, _ := tc.L1.Get(ctx, "v", "u"); !ok {
		t.Fatalf("expected value promoted into L1")
	}

	_ = tc.Invalidate(ctx, "v", "u")
	if _, ok, _ := l2.Get(ctx, "v", "u"); ok {
		t.Fatalf("expected L2 invalidated")
	}
}

type failingInvalidator struct{ calls int }

func (f *failingInvalidator) Invalidate(context.Context, string, string) error {
	f.calls++
	return errors.New("down")
}

func (f *failingInvalidator) InvalidateVideo(context.Context, string) error {
	f.calls++
	return errors.New("down")
}

func TestInvalidators_ReachesEveryTargetAndJoinsErrors(t *testing.T) {
	ctx := context.Background()
	local := NewLocalCache(16, time.Minute)
	_ = local.Set(ctx, "v", "u", true)
	bad := &failingInvalidator{}

	err := Invalidators{bad, local, nil}.Invalidate(ctx, "v", "u")
	if err == nil {
		t.Fatalf("expected joined error")
	}
	if bad.calls != 1 {
		t.Fatalf("expected failing target called once, got %d", bad.calls)
	}
	if _, ok, _ := local.Get(ctx, "v", "u"); ok {
		t.Fatalf("expected local invalidated despite earlier failure")
	}
}

func TestApply_SkipsOwnOrigin(t *testing.T) {
	ctx := context.Background()
	local := NewLocalCache(16, time.Minute)
	_ = local.Set(ctx, "v", "u", true)

	if err := apply(ctx, []byte(`{"video_id":"v","user_id":"u","origin":"me"}`), "me", local); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, ok, _ := local.Get(ctx, "v", "u"); !ok {
		t.Fatalf("expected own broadcast ignored")
	}

	if err := apply(ctx, []byte(`{"video_id":"v","origin":"peer"}`), "me", local); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, ok, _ := local.Get(ctx, "v", "u"); ok {
		t.Fatalf("expected peer video invalidation applied")
	}

	if err := apply(ctx, []byte(`not json`), "me", local); err == nil {
		t.Fatalf("expected error on malformed payload")
	}
}

func TestBroadcaster_NilConnIsNoop(t *testing.T) {
	b := NewBroadcaster(nil, "me")
	if err := b.Invalidate(context.Background(), "v", "u"); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}

func TestRedisCache_RoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	c, err := NewRedisCache(url, time.Minute)
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	defer c.Close()

	_ = c.Set(ctx, "test-video", "a", true)
	_ = c.Set(ctx, "test-video", "b", false)
	if v, ok, err := c.Get(ctx, "test-video", "a"); err != nil || !ok || !v {
		t.Fatalf("expected cached true, got %v ok=%v err=%v", v, ok, err)
	}
	if err := c.InvalidateVideo(ctx, "test-video"); err != nil {
		t.Fatalf("invalidate video: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "test-video", "b"); ok {
		t.Fatalf("expected miss after video invalidation")
	}
}
