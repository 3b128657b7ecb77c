package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, SourceCSV, cfg.Data.Source)
	assert.Equal(t, 10, cfg.Model.MinRows)
	assert.Equal(t, 50, cfg.Model.ForestMinRows)
	assert.Equal(t, 100, cfg.Model.Trees)
	assert.Equal(t, int64(42), cfg.Model.Seed)
	assert.Equal(t, 30*time.Second, cfg.Model.FitTimeout)
	assert.Equal(t, 30.0, cfg.Insights.StrategyThreshold)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agri.yaml")
	content := []byte(`
server:
  port: 9090
data:
  source: sample
  sample_rows_per_combination: 8
model:
  trees: 25
  fit_timeout: 5s
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	t.Setenv("AGRI_MODEL_TREES", "12")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, SourceSample, cfg.Data.Source)
	assert.Equal(t, 8, cfg.Data.SampleRowsPerCombination)
	assert.Equal(t, 12, cfg.Model.Trees)
	assert.Equal(t, 5*time.Second, cfg.Model.FitTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"unknown source", func(c *Config) { c.Data.Source = "s3" }},
		{"csv without path", func(c *Config) { c.Data.CSVPath = "" }},
		{"min rows too small", func(c *Config) { c.Model.MinRows = 1 }},
		{"forest below min", func(c *Config) { c.Model.ForestMinRows = 5 }},
		{"no trees", func(c *Config) { c.Model.Trees = 0 }},
		{"no fit timeout", func(c *Config) { c.Model.FitTimeout = 0 }},
		{"threshold out of range", func(c *Config) { c.Insights.StrategyThreshold = 150 }},
		{"database with unknown driver", func(c *Config) {
			c.Data.Source = SourceDatabase
			c.Database.Driver = "oracle"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateDatabase(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.NoError(t, cfg.ValidateDatabase())

	cfg.Database.Driver = "postgres"
	cfg.Database.Host = ""
	assert.Error(t, cfg.ValidateDatabase())

	cfg.Database.DSN = "postgres://agri@localhost/agri?sslmode=disable"
	assert.NoError(t, cfg.ValidateDatabase())
}
