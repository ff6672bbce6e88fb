package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HYGEIA_CONFIG", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "Rscript", cfg.EngineCommand)
	assert.Equal(t, 10*time.Minute, cfg.EngineTimeout)
	assert.Equal(t, 256, cfg.CacheCapacity)
	assert.Equal(t, 0.8, cfg.BridgeMinCoverage)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "r/run_lasso.R", cfg.AnalysisScript["lasso"])
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hygeia.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine_command: /usr/local/bin/Rscript
engine_timeout: 90s
cache_capacity: 16
bridge_min_coverage: 0.5
log_level: debug
`), 0o600))

	t.Setenv("HYGEIA_CONFIG", path)
	t.Setenv("HYGEIA_CACHE_CAPACITY", "32")
	t.Setenv("HYGEIA_KEEP_WORKDIR", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/bin/Rscript", cfg.EngineCommand)
	assert.Equal(t, 90*time.Second, cfg.EngineTimeout)
	assert.Equal(t, 32, cfg.CacheCapacity, "env wins over file")
	assert.Equal(t, 0.5, cfg.BridgeMinCoverage)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.True(t, cfg.KeepWorkdir)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad timeout", map[string]string{"HYGEIA_ENGINE_TIMEOUT": "soon"}},
		{"bad capacity", map[string]string{"HYGEIA_CACHE_CAPACITY": "0"}},
		{"unknown exporter", map[string]string{"HYGEIA_TRACE_EXPORTER": "jaeger"}},
		{"missing file", map[string]string{"HYGEIA_CONFIG": "/nonexistent/hygeia.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HYGEIA_CONFIG", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLogLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("verbose"))
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)
	logger.Info("engine run finished", "analysis_id", "a1")
	logger.Debug("hidden")

	assert.Contains(t, stderr.String(), "analysis_id=a1")
	assert.Contains(t, file.String(), `"analysis_id":"a1"`)
	assert.NotContains(t, stderr.String(), "hidden")
}
