// Package cmd provides the CLI commands for nrtindex.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/nrtindex/internal/config"
	"github.com/Aman-CERP/nrtindex/internal/logging"
	"github.com/Aman-CERP/nrtindex/internal/metrics"
	"github.com/Aman-CERP/nrtindex/pkg/version"
)

// app carries state from the root hooks to subcommands.
type app struct {
	configPath  string
	debug       bool
	dumpMetrics bool

	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	cleanup  func()
}

// NewRootCmd creates the root command for the nrtindex CLI.
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "nrtindex",
		Short: "Near-real-time full-text index over a SQLite entity table",
		Long: `nrtindex keeps a full-text index of the rows of one SQLite table and
answers queries with row identifiers.

Configuration is read from ~/.config/nrtindex/config.yaml, then
.nrtindex.yaml in the project root, then NRTINDEX_* environment variables.`,
		Version:           version.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown(cmd)
		},
	}
	cmd.SetVersionTemplate("nrtindex version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (skips user and project config)")
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&a.dumpMetrics, "metrics", false, "Print Prometheus metrics to stderr on exit")

	cmd.AddCommand(newRebuildCmd(a))
	cmd.AddCommand(newSearchCmd(a))
	cmd.AddCommand(newAddCmd(a))
	cmd.AddCommand(newDeleteCmd(a))
	cmd.AddCommand(newIDsCmd(a))
	cmd.AddCommand(newStatsCmd(a))
	cmd.AddCommand(newConfigCmd(a))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command. Interrupts cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// setup loads configuration and starts logging.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	logCfg := logging.Config{
		Level:     cfg.Logging.Level,
		FilePath:  cfg.Logging.File,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	}
	if logCfg.FilePath == "" {
		logCfg.FilePath = logging.DefaultLogPath()
	}
	if a.debug {
		logCfg.Level = "debug"
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	a.logger = logger
	a.cleanup = cleanup
	slog.SetDefault(logger)

	a.registry = prometheus.NewRegistry()
	a.metrics = metrics.New(a.registry)

	logger.Debug("cli_started",
		slog.String("command", cmd.CommandPath()),
		slog.String("version", version.Version),
		slog.String("index_path", cfg.Index.Path),
		slog.String("strategy", cfg.Search.Strategy))
	return nil
}

func (a *app) loadConfig() (*config.Config, error) {
	if a.configPath != "" {
		return config.LoadFile(a.configPath)
	}
	root, err := config.FindProjectRoot(".")
	if err != nil {
		if root, err = os.Getwd(); err != nil {
			return nil, err
		}
	}
	return config.Load(root)
}

// teardown prints metrics when asked and closes the log file.
func (a *app) teardown(cmd *cobra.Command) error {
	var err error
	if a.dumpMetrics && a.registry != nil {
		err = writeMetrics(cmd, a.registry)
	}
	if a.cleanup != nil {
		a.cleanup()
		a.cleanup = nil
	}
	return err
}

func writeMetrics(cmd *cobra.Command, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(cmd.ErrOrStderr(), expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode metrics: %w", err)
		}
	}
	return nil
}
