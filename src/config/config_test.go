package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 8089, cfg.Server.Port)
	assert.Equal(t, 500.0, cfg.Monitor.SlowQueryThresholdMs)
	assert.Equal(t, 5.0, cfg.Monitor.AlertThresholds.ErrorRatePercent)
	assert.False(t, cfg.Monitor.AutoOptimize)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_FileWithEnvExpansion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	t.Setenv("DBPULSE_TEST_DIR", dir)

	content := `
server:
  port: 9100
store:
  driver: sqlite
  data_dir: ${DBPULSE_TEST_DIR}/data
logging:
  level: debug
metrics:
  cleanup_interval: 10m
monitor:
  slow_query_threshold_ms: 250
  max_stored_metrics: 200
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, filepath.Join(dir, "data"), cfg.Store.DataDir)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 10*time.Minute, cfg.Metrics.CleanupInterval)
	assert.Equal(t, 250.0, cfg.Monitor.SlowQueryThresholdMs)
	assert.Equal(t, 200, cfg.Monitor.MaxStoredMetrics)
	// untouched keys keep their defaults
	assert.Equal(t, 5.0, cfg.Monitor.AlertThresholds.ErrorRatePercent)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9200")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/shop")
	t.Setenv("MAX_STORED_METRICS", "50")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 50, cfg.Monitor.MaxStoredMetrics)
}

func TestExpandKeepsUnsetVariables(t *testing.T) {
	t.Setenv("DBPULSE_SET", "value")

	assert.Equal(t, "a=value b=${DBPULSE_UNSET_VAR}", expand("a=${DBPULSE_SET} b=${DBPULSE_UNSET_VAR}"))
}

func TestLoadConfig_BadEnvValueIgnored(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-port")
	t.Setenv("SLOW_QUERY_THRESHOLD_MS", "120")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 8089, cfg.Server.Port)
	assert.Equal(t, 120.0, cfg.Monitor.AlertThresholds.SlowQueryMs)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = "postgres"; c.Store.DSN = "" }},
		{"zero max metrics", func(c *Config) { c.Monitor.MaxStoredMetrics = 0 }},
		{"unknown format", func(c *Config) { c.Logging.Format = "xml" }},
		{"zero scan interval", func(c *Config) { c.Metrics.AlertScanInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestMonitorConfig_Apply(t *testing.T) {
	base := DefaultMonitorConfig()

	threshold := 42.0
	got, err := base.Apply(MonitorPatch{SlowQueryThresholdMs: &threshold})
	require.NoError(t, err)
	assert.Equal(t, 42.0, got.SlowQueryThresholdMs)
	assert.Equal(t, 42.0, got.AlertThresholds.SlowQueryMs)
	assert.Equal(t, base.MaxStoredMetrics, got.MaxStoredMetrics)

	alertSlow := 800.0
	got, err = base.Apply(MonitorPatch{
		SlowQueryThresholdMs: &threshold,
		AlertThresholds:      &AlertThresholdsPatch{SlowQueryMs: &alertSlow},
	})
	require.NoError(t, err)
	assert.Equal(t, 42.0, got.SlowQueryThresholdMs)
	assert.Equal(t, 800.0, got.AlertThresholds.SlowQueryMs)
}

func TestMonitorConfig_ApplyRejectsInvalid(t *testing.T) {
	base := DefaultMonitorConfig()
	zero := 0

	got, err := base.Apply(MonitorPatch{MaxStoredMetrics: &zero})
	assert.Error(t, err)
	assert.Equal(t, base, got)
}
