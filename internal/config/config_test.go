package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "ws://localhost:8000/rpc", cfg.SurrealDBURL)
	assert.Equal(t, "8585", cfg.ServerPort)
	assert.Equal(t, 2*time.Minute, cfg.MinPullInterval)
	assert.Equal(t, 50, cfg.PullBatchLimit)
	assert.Equal(t, 0.9, cfg.HealthMinSuccessRate)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PRESSBRIDGE_SERVER_PORT", "9999")
	t.Setenv("PRESSBRIDGE_MIN_PULL_INTERVAL", "30s")
	t.Setenv("PRESSBRIDGE_REINDEX_TENANT_CAP", "5")
	t.Setenv("PRESSBRIDGE_HEALTH_MIN_SUCCESS_RATE", "0.75")
	t.Setenv("PRESSBRIDGE_LOG_LEVEL", "debug")

	cfg := Load()
	assert.Equal(t, "9999", cfg.ServerPort)
	assert.Equal(t, 30*time.Second, cfg.MinPullInterval)
	assert.Equal(t, 5, cfg.ReindexTenantCap)
	assert.Equal(t, 0.75, cfg.HealthMinSuccessRate)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadIgnoresMalformedEnv(t *testing.T) {
	t.Setenv("PRESSBRIDGE_PULL_BATCH_LIMIT", "lots")
	t.Setenv("PRESSBRIDGE_MIN_PULL_INTERVAL", "soon")

	cfg := Load()
	assert.Equal(t, 50, cfg.PullBatchLimit)
	assert.Equal(t, 2*time.Minute, cfg.MinPullInterval)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("WARNING"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("whatever"))
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Info("pull finished", "site_id", "site-1")
	logger.Debug("suppressed")

	// Text goes to stderr, JSON to the file writer.
	assert.Contains(t, stderr.String(), "pull finished")
	assert.NotContains(t, stderr.String(), "suppressed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(file.Bytes(), &entry))
	assert.Equal(t, "pull finished", entry["msg"])
	assert.Equal(t, "site-1", entry["site_id"])
}
