package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type HTTPConfig struct {
	Addr           string
	AllowedOrigins string
}

type AppConfig struct {
	ServiceName string
	Env         string
	LogLevel    string
	HTTP        HTTPConfig
}

func (c AppConfig) IsProd() bool {
	switch strings.ToLower(c.Env) {
	case "prod", "production":
		return true
	}
	return false
}

// Load reads the shared service settings. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (AppConfig, error) {
	_ = godotenv.Load()

	cfg := AppConfig{
		ServiceName: Env("SERVICE_NAME", ""),
		Env:         Env("APP_ENV", "development"),
		LogLevel:    Env("LOG_LEVEL", "info"),
		HTTP: HTTPConfig{
			Addr:           Env("HTTP_ADDR", ":8080"),
			AllowedOrigins: Env("CORS_ALLOWED_ORIGINS", ""),
		},
	}
	if cfg.ServiceName == "" {
		return AppConfig{}, errors.New("SERVICE_NAME is required")
	}
	return cfg, nil
}

func Env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func EnvInt(key string, fallback int) int {
	n, err := strconv.Atoi(Env(key, ""))
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func EnvFloat(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(Env(key, ""), 64)
	if err != nil || f < 0 {
		return fallback
	}
	return f
}

func EnvDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(Env(key, ""))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func EnvBool(key string, fallback bool) bool {
	switch strings.ToLower(Env(key, "")) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}
