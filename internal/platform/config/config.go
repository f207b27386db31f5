package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`
	Backend     string `env:"DRAFT_BACKEND" default:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	AllowDuplicateJoin bool `env:"ALLOW_DUPLICATE_JOIN" default:"false"`
	AutoJoinOwner      bool `env:"AUTO_JOIN_OWNER" default:"true"`
	DeleteOnStop       bool `env:"DELETE_ON_STOP" default:"false"`

	Retention         time.Duration `env:"DRAFT_RETENTION" default:"168h"` // 7 days
	RetentionInterval time.Duration `env:"RETENTION_INTERVAL" default:"24h"`

	LockTTL         time.Duration `env:"LOCK_TTL" default:"6s"`
	MaxAttempts     int           `env:"MAX_ATTEMPTS" default:"10"`
	MutationTimeout time.Duration `env:"MUTATION_TIMEOUT" default:"15s"`

	RateLimitPerSecond float64 `env:"RATE_LIMIT_PER_SECOND" default:"20"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST" default:"40"`

	ActionRateLimitPerSecond float64 `env:"ACTION_RATE_LIMIT_PER_SECOND" default:"2"`
	ActionRateLimitBurst     int     `env:"ACTION_RATE_LIMIT_BURST" default:"5"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.Backend {
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}
	case BackendRedis:
		if cfg.RedisURL == "" {
			return errors.New("REDIS_URL is required")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("DRAFT_BACKEND must be one of postgres, redis, memory, got %q", cfg.Backend)
	}

	if cfg.AppEnv == "production" && cfg.DatabaseURL != "" {
		if err := validateSSLMode(cfg.DatabaseURL); err != nil {
			return err
		}
	}

	positive := map[string]time.Duration{
		"DRAFT_RETENTION":    cfg.Retention,
		"RETENTION_INTERVAL": cfg.RetentionInterval,
		"LOCK_TTL":           cfg.LockTTL,
		"MUTATION_TIMEOUT":   cfg.MutationTimeout,
	}
	for name, d := range positive {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if cfg.MaxAttempts < 1 {
		return errors.New("MAX_ATTEMPTS must be at least 1")
	}
	if cfg.RateLimitPerSecond <= 0 || cfg.RateLimitBurst < 1 {
		return errors.New("RATE_LIMIT_PER_SECOND and RATE_LIMIT_BURST must be positive")
	}
	if cfg.ActionRateLimitPerSecond <= 0 || cfg.ActionRateLimitBurst < 1 {
		return errors.New("ACTION_RATE_LIMIT_PER_SECOND and ACTION_RATE_LIMIT_BURST must be positive")
	}

	return nil
}

func validateSSLMode(databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}
	mode := strings.ToLower(u.Query().Get("sslmode"))
	if mode == "disable" || mode == "allow" {
		return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
	}
	return nil
}
