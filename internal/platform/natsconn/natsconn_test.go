package natsconn

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

func TestOptions_Defaults(t *testing.T) {
	t.Setenv("NATS_URL", "")
	t.Setenv("NATS_MAX_RECONNECTS", "")
	t.Setenv("NATS_RECONNECT_WAIT", "")
	o := Options{}.withDefaults()
	if o.URL != nats.DefaultURL {
		t.Fatalf("expected %s, got %s", nats.DefaultURL, o.URL)
	}
	if o.MaxReconnects != 5 || o.ReconnectWait != 2*time.Second {
		t.Fatalf("unexpected reconnect policy: %d %s", o.MaxReconnects, o.ReconnectWait)
	}
	if o.Log == nil {
		t.Fatal("expected a nop logger")
	}
}

func TestOptions_FromEnv(t *testing.T) {
	t.Setenv("NATS_URL", "nats://queue:4222")
	t.Setenv("NATS_MAX_RECONNECTS", "9")
	t.Setenv("NATS_RECONNECT_WAIT", "3s")
	o := Options{}.withDefaults()
	if o.URL != "nats://queue:4222" || o.MaxReconnects != 9 || o.ReconnectWait != 3*time.Second {
		t.Fatalf("unexpected options: %+v", o)
	}
	if got := (Options{MaxReconnects: 1}).withDefaults().MaxReconnects; got != 1 {
		t.Fatalf("expected explicit value to win, got %d", got)
	}
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(Options{
		URL:           "nats://127.0.0.1:19999",
		MaxReconnects: 1,
		ReconnectWait: 10 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected error connecting to an unreachable NATS server")
	}
}

func TestMissingSubjects(t *testing.T) {
	got := missingSubjects([]string{"completion.signals"}, []string{"completion.signals", "completion.events.>"})
	if len(got) != 1 || got[0] != "completion.events.>" {
		t.Fatalf("expected [completion.events.>], got %v", got)
	}
	if got := missingSubjects([]string{"a", "b"}, []string{"b"}); len(got) != 0 {
		t.Fatalf("expected none missing, got %v", got)
	}
}
