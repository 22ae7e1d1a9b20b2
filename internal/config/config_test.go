package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"Error", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.in))
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("QUIZSYNC_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("QUIZSYNC_BACKEND_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8585", cfg.BackendURL)
	assert.Equal(t, DefaultReconcile(), cfg.Reconcile)
	assert.Equal(t, 30, cfg.Reconcile.MaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Reconcile.MaxElapsed)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("QUIZSYNC_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("QUIZSYNC_BACKEND_URL", "http://backend:9000")
	t.Setenv("QUIZSYNC_POLL_MAX_ATTEMPTS", "12")
	t.Setenv("QUIZSYNC_POLL_BASE_DELAY", "500ms")
	t.Setenv("QUIZSYNC_POLL_MAX_ELAPSED", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://backend:9000", cfg.BackendURL)
	assert.Equal(t, 12, cfg.Reconcile.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Reconcile.BaseDelay)
	assert.Equal(t, 5*time.Minute, cfg.Reconcile.MaxElapsed, "invalid duration keeps default")
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
backend_url: http://from-file:8585
log_level: debug
reconcile:
  max_attempts: 5
  base_delay: 250ms
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("QUIZSYNC_CONFIG", path)
	t.Setenv("QUIZSYNC_SERVER_PORT", "9999")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://from-file:8585", cfg.BackendURL)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 5, cfg.Reconcile.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Reconcile.BaseDelay)
	assert.Equal(t, 10*time.Second, cfg.Reconcile.MaxDelay, "keys absent from the file keep their value")
	assert.Equal(t, "9999", cfg.ServerPort)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("reconcile: [not, a, map"), 0o644))
	t.Setenv("QUIZSYNC_CONFIG", path)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config file")
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var console, file bytes.Buffer
	logger := SetupLoggerWithWriters(&console, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("job resolved", "job_id", "j1", "tasks", 2)

	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "job_id=j1")

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(file.String())), &record))
	assert.Equal(t, "job resolved", record["msg"])
	assert.Equal(t, float64(2), record["tasks"])
}

func TestSetupLoggerFileOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quizsync.log")
	logger, cleanup := SetupLogger(path, slog.LevelInfo, nil)
	logger.Info("written to file")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"written to file"`)
}
