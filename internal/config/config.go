// Package config reads process settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Env holds settings that command-line flags default to.
type Env struct {
	// Database is the SQLite file backing the registry and balances.
	Database string `env:"ESCROW_DB" envDefault:"escrow.db"`

	// Policy is a CUE file or directory. Empty selects the built-in policy.
	Policy string `env:"ESCROW_POLICY"`

	// Caller is the acting principal for mutating commands.
	Caller string `env:"ESCROW_CALLER"`

	// Height pins the current block height. Zero derives it from wall-clock time.
	Height uint64 `env:"ESCROW_HEIGHT"`

	LogLevel string `env:"ESCROW_LOG_LEVEL" envDefault:"warn"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses Env from the process environment.
func Load() (Env, error) {
	var cfg Env
	if err := ParseEnv(&cfg); err != nil {
		return Env{}, err
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return Env{}, err
	}
	return cfg, nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}
