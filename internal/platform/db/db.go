// Package db opens the Postgres pool behind the completion store and applies
// its embedded migrations.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/bunnyvideo/internal/platform/config"
)

// PoolOptions sizes the pool. Zero values come from DB_MAX_CONNS,
// DB_MIN_CONNS and DB_MAX_CONN_IDLE, then built-in defaults.
type PoolOptions struct {
	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
}

func (o PoolOptions) withDefaults() PoolOptions {
	if o.MaxConns <= 0 {
		o.MaxConns = int32(config.EnvInt("DB_MAX_CONNS", 10))
	}
	if o.MinConns <= 0 {
		o.MinConns = int32(config.EnvInt("DB_MIN_CONNS", 1))
	}
	if o.MinConns > o.MaxConns {
		o.MinConns = o.MaxConns
	}
	if o.MaxConnIdleTime <= 0 {
		o.MaxConnIdleTime = config.EnvDuration("DB_MAX_CONN_IDLE", 5*time.Minute)
	}
	return o
}

// Open connects to dsn, falling back to DATABASE_URL, and pings before
// returning.
func Open(ctx context.Context, dsn string, opts ...PoolOptions) (*pgxpool.Pool, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = config.Env("DATABASE_URL", "")
	}
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	var o PoolOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	o = o.withDefaults()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = o.MaxConns
	cfg.MinConns = o.MinConns
	cfg.MaxConnIdleTime = o.MaxConnIdleTime
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
