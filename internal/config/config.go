// Package config loads fx3analysis settings from a YAML file, the environment
// and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/hed1ad/fx3analysis/internal/logging"
	"github.com/hed1ad/fx3analysis/pkg/analysis/anomaly"
	"github.com/hed1ad/fx3analysis/pkg/analysis/engine"
	"github.com/hed1ad/fx3analysis/pkg/analysis/iforest"
	"github.com/hed1ad/fx3analysis/pkg/analysis/trend"
)

// EnvPrefix prefixes every environment override, e.g. FX3ANALYSIS_LOG_LEVEL.
const EnvPrefix = "FX3ANALYSIS"

// Config is the complete application configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Analyzers AnalyzersConfig `mapstructure:"analyzers"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AnalyzersConfig holds per-analyzer tuning.
type AnalyzersConfig struct {
	Trend           TrendConfig           `mapstructure:"trend"`
	Anomaly         AnomalyConfig         `mapstructure:"anomaly"`
	IsolationForest IsolationForestConfig `mapstructure:"isolation_forest"`
}

// TrendConfig tunes the trend analyzer.
type TrendConfig struct {
	MovingAverageWindow int     `mapstructure:"moving_average_window"`
	FlatEpsilon         float64 `mapstructure:"flat_epsilon"`
}

// AnomalyConfig tunes the anomaly analyzer.
type AnomalyConfig struct {
	ZScoreThreshold float64 `mapstructure:"zscore_threshold"`
	Window          int     `mapstructure:"window"`
	WindowThreshold float64 `mapstructure:"window_threshold"`
}

// IsolationForestConfig enables and tunes the optional isolation forest analyzer.
type IsolationForestConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	Trees         int     `mapstructure:"trees"`
	SampleSize    int     `mapstructure:"sample_size"`
	Contamination float64 `mapstructure:"contamination"`
	Seed          int64   `mapstructure:"seed"`
	MinSamples    int     `mapstructure:"min_samples"`
}

// MetricsConfig configures Prometheus export.
type MetricsConfig struct {
	// File receives the registry in text exposition format after a run. Empty disables export.
	File string `mapstructure:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: logging.FormatJSON,
		},
		Analyzers: AnalyzersConfig{
			Trend: TrendConfig{
				MovingAverageWindow: 5,
				FlatEpsilon:         1e-4,
			},
			Anomaly: AnomalyConfig{
				ZScoreThreshold: 3.0,
				Window:          5,
				WindowThreshold: 2.0,
			},
			IsolationForest: IsolationForestConfig{
				Trees:         100,
				SampleSize:    256,
				Contamination: 0.1,
				Seed:          42,
				MinSamples:    8,
			},
		},
	}
}

// Load reads configuration from path, or from fx3analysis.yaml in the working
// directory when path is empty. A missing default file is not an error; a
// missing explicit path is.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("fx3analysis")
		v.AddConfigPath(".")
	}
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("analyzers.trend.moving_average_window", d.Analyzers.Trend.MovingAverageWindow)
	v.SetDefault("analyzers.trend.flat_epsilon", d.Analyzers.Trend.FlatEpsilon)

	v.SetDefault("analyzers.anomaly.zscore_threshold", d.Analyzers.Anomaly.ZScoreThreshold)
	v.SetDefault("analyzers.anomaly.window", d.Analyzers.Anomaly.Window)
	v.SetDefault("analyzers.anomaly.window_threshold", d.Analyzers.Anomaly.WindowThreshold)

	v.SetDefault("analyzers.isolation_forest.enabled", d.Analyzers.IsolationForest.Enabled)
	v.SetDefault("analyzers.isolation_forest.trees", d.Analyzers.IsolationForest.Trees)
	v.SetDefault("analyzers.isolation_forest.sample_size", d.Analyzers.IsolationForest.SampleSize)
	v.SetDefault("analyzers.isolation_forest.contamination", d.Analyzers.IsolationForest.Contamination)
	v.SetDefault("analyzers.isolation_forest.seed", d.Analyzers.IsolationForest.Seed)
	v.SetDefault("analyzers.isolation_forest.min_samples", d.Analyzers.IsolationForest.MinSamples)

	v.SetDefault("metrics.file", d.Metrics.File)
}

// Validate reports every invalid setting in one error.
func (c *Config) Validate() error {
	var errs []string

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Sprintf("log.level: %v", err))
	}
	switch c.Log.Format {
	case logging.FormatJSON, logging.FormatConsole:
	default:
		errs = append(errs, fmt.Sprintf("log.format must be %q or %q, got %q", logging.FormatJSON, logging.FormatConsole, c.Log.Format))
	}

	if c.Analyzers.Trend.MovingAverageWindow < 1 {
		errs = append(errs, "analyzers.trend.moving_average_window must be at least 1")
	}
	if c.Analyzers.Trend.FlatEpsilon < 0 {
		errs = append(errs, "analyzers.trend.flat_epsilon must not be negative")
	}

	if c.Analyzers.Anomaly.ZScoreThreshold <= 0 {
		errs = append(errs, "analyzers.anomaly.zscore_threshold must be positive")
	}
	if c.Analyzers.Anomaly.Window < 1 {
		errs = append(errs, "analyzers.anomaly.window must be at least 1")
	}
	if c.Analyzers.Anomaly.WindowThreshold <= 0 {
		errs = append(errs, "analyzers.anomaly.window_threshold must be positive")
	}

	if f := c.Analyzers.IsolationForest; f.Enabled {
		if f.Trees < 1 {
			errs = append(errs, "analyzers.isolation_forest.trees must be at least 1")
		}
		if f.SampleSize < 2 {
			errs = append(errs, "analyzers.isolation_forest.sample_size must be at least 2")
		}
		if f.Contamination <= 0 || f.Contamination >= 0.5 {
			errs = append(errs, "analyzers.isolation_forest.contamination must be in (0, 0.5)")
		}
		if f.MinSamples < 2 {
			errs = append(errs, "analyzers.isolation_forest.min_samples must be at least 2")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// EngineOptions registers the configured analyzers, replacing the engine's
// defaults for trend and anomaly detection.
func (c *Config) EngineOptions() []engine.Option {
	t := c.Analyzers.Trend
	a := c.Analyzers.Anomaly

	opts := []engine.Option{
		engine.WithAnalyzer(trend.Name, trend.New(
			trend.WithMovingAverageWindow(t.MovingAverageWindow),
			trend.WithFlatEpsilon(t.FlatEpsilon),
		)),
		engine.WithAnalyzer(anomaly.Name, anomaly.New(
			anomaly.WithZScoreThreshold(a.ZScoreThreshold),
			anomaly.WithWindow(a.Window),
			anomaly.WithWindowThreshold(a.WindowThreshold),
		)),
	}

	if f := c.Analyzers.IsolationForest; f.Enabled {
		opts = append(opts, engine.WithAnalyzer(iforest.Name, iforest.NewAnalyzer(f.MinSamples,
			iforest.WithTrees(f.Trees),
			iforest.WithSampleSize(f.SampleSize),
			iforest.WithContamination(f.Contamination),
			iforest.WithSeed(f.Seed),
		)))
	}

	return opts
}

// LoggingConfig converts the log section for the logging package.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format}
}
