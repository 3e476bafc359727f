package config

import (
	"testing"
	"time"
)

func TestLoad_RequiresServiceName(t *testing.T) {
	t.Setenv("SERVICE_NAME", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without SERVICE_NAME")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SERVICE_NAME", "completion")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("APP_ENV", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("expected :8080, got %q", cfg.HTTP.Addr)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected info, got %q", cfg.LogLevel)
	}
	if cfg.IsProd() {
		t.Fatal("expected development environment by default")
	}
}

func TestIsProd(t *testing.T) {
	if !(AppConfig{Env: "Production"}).IsProd() {
		t.Fatal("expected Production to be prod")
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("CFG_TEST_INT", "12")
	t.Setenv("CFG_TEST_BAD_INT", "-3")
	t.Setenv("CFG_TEST_DUR", "750ms")
	t.Setenv("CFG_TEST_BOOL", "yes")
	t.Setenv("CFG_TEST_FLOAT", "2.5")

	if v := EnvInt("CFG_TEST_INT", 1); v != 12 {
		t.Fatalf("expected 12, got %d", v)
	}
	if v := EnvInt("CFG_TEST_BAD_INT", 1); v != 1 {
		t.Fatalf("expected fallback 1, got %d", v)
	}
	if v := EnvDuration("CFG_TEST_DUR", time.Second); v != 750*time.Millisecond {
		t.Fatalf("expected 750ms, got %s", v)
	}
	if !EnvBool("CFG_TEST_BOOL", false) {
		t.Fatal("expected true")
	}
	if v := EnvFloat("CFG_TEST_FLOAT", 0); v != 2.5 {
		t.Fatalf("expected 2.5, got %v", v)
	}
}
