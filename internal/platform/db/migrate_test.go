package db

import (
	"context"
	"testing"
	"testing/fstest"
	"time"
)

func TestMigrationFiles_SortedSQLOnly(t *testing.T) {
	fsys := fstest.MapFS{
		"002_overrides.sql":  {Data: []byte("select 2")},
		"001_completion.sql": {Data: []byte("select 1")},
		"README.md":          {Data: []byte("docs")},
		"old/003_x.sql":      {Data: []byte("select 3")},
	}
	names, err := MigrationFiles(fsys)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 files, got %v", names)
	}
	if names[0] != "001_completion.sql" || names[1] != "002_overrides.sql" {
		t.Fatalf("unexpected order: %v", names)
	}
}

func TestOpen_RequiresDSN(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Open(context.Background(), ""); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}

func TestPoolOptions_Defaults(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "4")
	t.Setenv("DB_MIN_CONNS", "9")
	o := PoolOptions{}.withDefaults()
	if o.MaxConns != 4 {
		t.Fatalf("expected max 4, got %d", o.MaxConns)
	}
	if o.MinConns != 4 {
		t.Fatalf("expected min clamped to 4, got %d", o.MinConns)
	}
	if o.MaxConnIdleTime != 5*time.Minute {
		t.Fatalf("expected 5m idle, got %s", o.MaxConnIdleTime)
	}
}
