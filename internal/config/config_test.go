package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.Redis.Addr = ""
	cfg.Match.FuzzyMinScore = 1.5
	cfg.Analyze.MinPricePoints = 99 // exceeds history_window

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "redis: addr")
	assert.Contains(t, err.Error(), "fuzzy_min_score")
	assert.Contains(t, err.Error(), "min_price_points")
}

func TestValidateSeverityOrdering(t *testing.T) {
	cfg := Defaults()
	cfg.Alert.HighPct = 60 // above critical
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strictly decreasing")
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
mode = "watch"

[match]
fuzzy_min_score = 0.9

[pipeline]
scan_interval = "5m"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	t.Setenv("ARBSCOUT_MATCH_FUZZY_MIN_SCORE", "0.80")
	t.Setenv("ARBSCOUT_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("ARBSCOUT_ALERT_DEDUP_WINDOW", "2h")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "watch", cfg.Mode)
	assert.Equal(t, 0.80, cfg.Match.FuzzyMinScore, "env override wins over file")
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, "2h0m0s", cfg.Alert.DedupWindow.String())
	assert.Equal(t, "5m0s", cfg.Pipeline.ScanInterval.String())
	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.S3.SecretKey = "secret"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "hunter2", cfg.Postgres.Password, "original untouched")
}
