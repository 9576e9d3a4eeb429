// Package cli implements the fx3analysis command line.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hed1ad/fx3analysis/internal/config"
	"github.com/hed1ad/fx3analysis/internal/logging"
	"github.com/hed1ad/fx3analysis/internal/metrics"
	"github.com/hed1ad/fx3analysis/pkg/analysis/engine"
	"github.com/hed1ad/fx3analysis/pkg/io/report"
)

type app struct {
	configPath  string
	analyzer    string
	output      string
	logLevel    string
	metricsFile string

	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry

	stdout io.Writer
	stderr io.Writer
}

// NewRootCommand builds the fx3analysis command tree on the process's stdout and stderr.
func NewRootCommand() *cobra.Command {
	return newRootCommand(os.Stdout, os.Stderr)
}

// NewRootCommandWithIO builds the command tree writing reports to out and logs to errOut.
func NewRootCommandWithIO(out, errOut io.Writer) *cobra.Command {
	return newRootCommand(out, errOut)
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{
		logger: zap.NewNop(),
		stdout: out,
		stderr: errOut,
	}

	cmd := &cobra.Command{
		Use:           "fx3analysis",
		Short:         "Statistical, trend and anomaly analysis of FX3 device captures",
		Long:          "fx3analysis reads captures of an FX3 USB device from CSV, usbmon pcap or raw sample files and runs the registered analyzers over them.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to the configuration file (default ./fx3analysis.yaml)")
	cmd.PersistentFlags().StringVarP(&a.analyzer, "analyzer", "a", "", "run only the named analyzer instead of all of them")
	cmd.PersistentFlags().StringVarP(&a.output, "output", "o", report.FormatText, "output format: text, json or yaml")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level")
	cmd.PersistentFlags().StringVar(&a.metricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return a.setup()
	}
	cmd.PersistentPostRun = func(cmd *cobra.Command, _ []string) {
		_ = a.logger.Sync()
	}

	cmd.AddCommand(
		newAnalyzeCmd(a),
		newAnalyzersCmd(a),
	)

	return cmd
}

// setup loads configuration and builds the logger and metrics registry.
func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.metricsFile != "" {
		cfg.Metrics.File = a.metricsFile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	lc := cfg.LoggingConfig()
	lc.Output = a.stderr
	logger, err := logging.New(lc)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	a.registry = prometheus.NewRegistry()
	return nil
}

// exportMetrics writes the registry to the configured metrics file, if any.
func (a *app) exportMetrics() error {
	if a.cfg == nil || a.cfg.Metrics.File == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(a.cfg.Metrics.File, a.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	a.logger.Debug("metrics written", zap.String("file", a.cfg.Metrics.File))
	return nil
}

func (a *app) newEngine() *engine.Engine {
	opts := append(a.cfg.EngineOptions(),
		engine.WithLogger(a.logger),
		engine.WithRecorder(metrics.NewRecorder(a.registry)),
	)
	return engine.New(opts...)
}
