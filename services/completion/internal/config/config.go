package config

import (
	"errors"
	"time"

	platformconfig "github.com/example/bunnyvideo/internal/platform/config"
)

type Config struct {
	// DatabaseURL selects the Postgres store. Takes precedence over SQLitePath.
	DatabaseURL string
	// SQLitePath selects the single-node SQLite store.
	SQLitePath string
	// RedisURL enables the shared decision cache tier.
	RedisURL string
	// NATSURL enables events, cross-instance invalidation and the queued
	// signal consumer. Empty disables all three.
	NATSURL string

	JWTSecret string
	JWTIssuer string
	GRPCAddr  string

	CacheSize int
	CacheTTL  time.Duration

	ReconcileInterval time.Duration
	RateLimitRPS      float64
	RateLimitBurst    int
}

func Load(app platformconfig.AppConfig) (Config, error) {
	cfg := Config{
		DatabaseURL:       platformconfig.Env("DATABASE_URL", ""),
		SQLitePath:        platformconfig.Env("SQLITE_PATH", ""),
		RedisURL:          platformconfig.Env("REDIS_URL", ""),
		NATSURL:           platformconfig.Env("NATS_URL", ""),
		JWTSecret:         platformconfig.Env("JWT_SECRET", ""),
		JWTIssuer:         platformconfig.Env("JWT_ISSUER", ""),
		GRPCAddr:          platformconfig.Env("GRPC_ADDR", ":9090"),
		CacheSize:         platformconfig.EnvInt("DECISION_CACHE_SIZE", 10000),
		CacheTTL:          platformconfig.EnvDuration("DECISION_CACHE_TTL", 5*time.Minute),
		ReconcileInterval: platformconfig.EnvDuration("RECONCILE_INTERVAL", 5*time.Minute),
		RateLimitRPS:      platformconfig.EnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:    platformconfig.EnvInt("RATE_LIMIT_BURST", 20),
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}
	if app.IsProd() && cfg.DatabaseURL == "" && cfg.SQLitePath == "" {
		return Config{}, errors.New("DATABASE_URL or SQLITE_PATH is required in production")
	}
	return cfg, nil
}
