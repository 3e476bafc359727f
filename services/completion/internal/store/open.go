package store

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

type OpenOptions struct {
	DatabaseURL string
	SQLitePath  string
	// AllowMemory permits the in-memory store when no database is configured.
	AllowMemory bool
}

// Open selects a backend: Postgres, then SQLite, then memory.
func Open(ctx context.Context, opts OpenOptions, log *zap.Logger) (Store, error) {
	switch {
	case opts.DatabaseURL != "":
		s, err := OpenPostgres(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		log.Info("store opened", zap.String("backend", "postgres"))
		return s, nil
	case opts.SQLitePath != "":
		s, err := OpenSQLite(ctx, opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info("store opened", zap.String("backend", "sqlite"), zap.String("path", opts.SQLitePath))
		return s, nil
	case opts.AllowMemory:
		log.Warn("store opened in memory; completion records will not survive a restart")
		return NewMemoryStore(), nil
	default:
		return nil, errors.New("DATABASE_URL or SQLITE_PATH is required")
	}
}
