package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "escrow.db", cfg.Database)
	assert.Empty(t, cfg.Policy)
	assert.Zero(t, cfg.Height)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ESCROW_DB", "/tmp/vaults.db")
	t.Setenv("ESCROW_POLICY", "deploy/policy.cue")
	t.Setenv("ESCROW_CALLER", "0xalice")
	t.Setenv("ESCROW_HEIGHT", "4200")
	t.Setenv("ESCROW_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, Env{
		Database: "/tmp/vaults.db",
		Policy:   "deploy/policy.cue",
		Caller:   "0xalice",
		Height:   4200,
		LogLevel: "debug",
	}, cfg)
}

func TestLoadRejectsBadHeight(t *testing.T) {
	t.Setenv("ESCROW_HEIGHT", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestLoadRejectsBadLevel(t *testing.T) {
	t.Setenv("ESCROW_LOG_LEVEL", "loud")

	_, err := Load()
	require.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
