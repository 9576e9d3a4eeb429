package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/fx3analysis/pkg/analysis/engine"
	"github.com/hed1ad/fx3analysis/pkg/analysis/iforest"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fx3analysis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	// the package directory carries no fx3analysis.yaml
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: console
analyzers:
  anomaly:
    zscore_threshold: 2.5
  isolation_forest:
    enabled: true
    trees: 20
metrics:
  file: /tmp/fx3.prom
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 2.5, cfg.Analyzers.Anomaly.ZScoreThreshold)
	assert.Equal(t, 5, cfg.Analyzers.Anomaly.Window, "unset keys keep defaults")
	assert.True(t, cfg.Analyzers.IsolationForest.Enabled)
	assert.Equal(t, 20, cfg.Analyzers.IsolationForest.Trees)
	assert.Equal(t, "/tmp/fx3.prom", cfg.Metrics.File)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FX3ANALYSIS_LOG_LEVEL", "warn")
	t.Setenv("FX3ANALYSIS_ANALYZERS_TREND_MOVING_AVERAGE_WINDOW", "9")

	cfg, err := Load(writeConfig(t, "log:\n  level: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 9, cfg.Analyzers.Trend.MovingAverageWindow)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
		want string
	}{
		{
			name: "missing explicit file",
			path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") },
			want: "error reading config file",
		},
		{
			name: "malformed yaml",
			path: func(t *testing.T) string { return writeConfig(t, "log: [\n") },
			want: "error reading config file",
		},
		{
			name: "invalid values",
			path: func(t *testing.T) string {
				return writeConfig(t, "analyzers:\n  anomaly:\n    window: 0\n    zscore_threshold: -1\n")
			},
			want: "analyzers.anomaly.window must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path(t))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   []string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{
			name:   "log settings",
			mutate: func(c *Config) { c.Log.Level = "loud"; c.Log.Format = "xml" },
			want:   []string{"log.level", "log.format"},
		},
		{
			name: "disabled forest is not checked",
			mutate: func(c *Config) {
				c.Analyzers.IsolationForest.Trees = 0
			},
		},
		{
			name: "enabled forest is checked",
			mutate: func(c *Config) {
				c.Analyzers.IsolationForest.Enabled = true
				c.Analyzers.IsolationForest.Contamination = 0.7
				c.Analyzers.IsolationForest.MinSamples = 1
			},
			want: []string{"contamination", "min_samples"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if len(tt.want) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, w := range tt.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}

func TestEngineOptions(t *testing.T) {
	cfg := Default()
	e := engine.New(cfg.EngineOptions()...)
	assert.NotContains(t, e.Names(), iforest.Name)

	cfg.Analyzers.IsolationForest.Enabled = true
	e = engine.New(cfg.EngineOptions()...)
	assert.Equal(t, []string{"anomaly_detection", "basic_statistics", iforest.Name, "trend_analysis"}, e.Names())
}

func TestLoggingConfig(t *testing.T) {
	lc := Default().LoggingConfig()
	assert.Equal(t, "info", lc.Level)
	assert.Equal(t, "json", lc.Format)
}
