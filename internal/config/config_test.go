package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T, dataDir string) {
	t.Helper()
	t.Setenv("ALLOCATOR_DATA_DIR", dataDir)
	t.Setenv("GO_PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DEV_MODE", "")
	t.Setenv("YAHOO_BASE_URL", "")
	t.Setenv("HISTORY_RANGE", "")
	t.Setenv("DEFAULT_LAMBDA", "")
}

func TestLoad_Defaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	setEnv(t, dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.DirExists(t, dir)
	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, "https://query1.finance.yahoo.com", cfg.YahooBaseURL)
	assert.Equal(t, "1y", cfg.HistoryRange)
	assert.Equal(t, 0.5, cfg.DefaultLambda)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, t.TempDir())
	t.Setenv("GO_PORT", "9100")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("HISTORY_RANGE", "2y")
	t.Setenv("DEFAULT_LAMBDA", "1.5")
	t.Setenv("PRICE_SYNC_SCHEDULE", "")
	t.Setenv("MAINTENANCE_SCHEDULE", "@every 1h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, "2y", cfg.HistoryRange)
	assert.Equal(t, 1.5, cfg.DefaultLambda)
	assert.Empty(t, cfg.PriceSyncSchedule, "explicitly empty schedule disables sync")
	assert.Equal(t, "@every 1h", cfg.MaintenanceSchedule)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	setEnv(t, t.TempDir())
	t.Setenv("GO_PORT", "not-a-port")
	t.Setenv("DEFAULT_LAMBDA", "abc")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, 0.5, cfg.DefaultLambda)
}

func TestLoad_RejectsNegativeLambda(t *testing.T) {
	setEnv(t, t.TempDir())
	t.Setenv("DEFAULT_LAMBDA", "-1")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{Port: 8001, HistoryRange: "1y", DefaultLambda: 0.5}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Port = 0 }},
		{"port too large", func(c *Config) { c.Port = 70000 }},
		{"negative lambda", func(c *Config) { c.DefaultLambda = -0.1 }},
		{"empty range", func(c *Config) { c.HistoryRange = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
