// Package main implements the featmine CLI for mining materials-science
// features from research documents and analyzing the persisted results.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/featmine/internal/config"
	"github.com/fyrsmithlabs/featmine/internal/logging"
	"github.com/fyrsmithlabs/featmine/internal/run"
	"github.com/fyrsmithlabs/featmine/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "featmine",
	Short: "Mine and analyze materials-science features from research papers",
	Long: `featmine runs a supervised extraction pipeline over research documents:
features are extracted per document, standardized against a canonical
schema, persisted to a tabular store and a knowledge graph, and made
available for statistical analysis.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("featmine by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

// app bundles everything a command needs after bootstrap.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	tel     *telemetry.Telemetry
	service *run.Service
}

// bootstrap loads configuration, applies command-specific overrides, and
// wires telemetry, logging and the run service.
func bootstrap(ctx context.Context, override func(*config.Config)) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if override != nil {
		override(cfg)
	}

	tel, err := telemetry.New(ctx, telemetryConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	logger, err := logging.NewLogger(loggingConfig(cfg), tel.LoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	for _, reason := range tel.Degraded() {
		logger.Warn(ctx, "telemetry degraded", zap.String("reason", reason))
	}

	service, err := run.NewService(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, tel: tel, service: service}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.service.Close(ctx); err != nil {
		a.logger.Warn(ctx, "service close", zap.Error(err))
	}
	if err := a.tel.Shutdown(ctx); err != nil {
		a.logger.Warn(ctx, "telemetry shutdown", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func loggingConfig(cfg *config.Config) *logging.Config {
	lc := logging.NewDefaultConfig()
	if cfg.Log.Level != "" {
		level, err := logging.LevelFromString(cfg.Log.Level)
		if err == nil {
			lc.Level = level
		}
	}
	if cfg.Log.Format != "" {
		lc.Format = cfg.Log.Format
	}
	lc.Output.OTEL = cfg.Log.OTEL
	return lc
}

func telemetryConfig(cfg *config.Config) *telemetry.Config {
	tc := telemetry.NewDefaultConfig()
	tc.Enabled = cfg.Telemetry.Enabled
	if cfg.Telemetry.Endpoint != "" {
		tc.Endpoint = cfg.Telemetry.Endpoint
	}
	if cfg.Telemetry.ServiceName != "" {
		tc.ServiceName = cfg.Telemetry.ServiceName
	}
	tc.ServiceVersion = version
	tc.Insecure = cfg.Telemetry.Insecure
	tc.Metrics.Enabled = cfg.Telemetry.MetricsEnabled
	if cfg.Telemetry.MetricsInterval != 0 {
		tc.Metrics.ExportInterval = cfg.Telemetry.MetricsInterval
	}
	return tc
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
