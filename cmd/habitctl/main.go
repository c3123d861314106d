// Command habitctl manages habit protocols from the command line and serves
// the HTTP API.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"habitcore/internal/blob"
	"habitcore/internal/config"
	"habitcore/internal/core"
	"habitcore/pkg/domain"
)

var (
	// Global flags
	configPath string
	logLevel   string
	verbose    bool

	// Runtime state built in PersistentPreRunE.
	cfg     config.Config
	logger  *zap.Logger
	svc     *core.Service
	store   domain.ProtocolStore
	metrics *core.PrometheusMetricsRecorder

	// clock is swapped in tests.
	clock core.Clock = core.ClockFunc(nil)
)

var rootCmd = &cobra.Command{
	Use:   "habitctl",
	Short: "Track fixed-length habit protocols",
	Long: `habitctl drives a habit protocol: a routine of items repeated for a
fixed number of days, with per-day completion, per-day overrides and an
append-only change history.

Only the effective day (the current day, shifted by the protocol's refresh
time) accepts toggles.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd.Context())
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return teardown()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("HABITCORE_CONFIG"), "path to a TOML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		serveCmd,
		createCmd,
		listCmd,
		showCmd,
		toggleCmd,
		addItemCmd,
		removeItemCmd,
		overrideCmd,
		settingsCmd,
		statsCmd,
		agendaCmd,
		resetCmd,
		deleteCmd,
		archivesCmd,
	)
}

func setup(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = loaded
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	logger, err = newLogger(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	store, err = core.OpenPersistentStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	archive, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	metrics, err = core.NewPrometheusMetricsRecorder(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	opts := []core.Option{
		core.WithClock(clock),
		core.WithLocation(loc),
		core.WithLogger(core.NewZapLogger(logger)),
		core.WithMetricsRecorder(metrics),
	}
	if archive != nil {
		opts = append(opts, core.WithArchive(archive))
	}
	svc = core.NewService(store, opts...)
	logger.Debug("habitctl ready",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("blob", cfg.Blob.Driver),
		zap.String("location", loc.String()))
	return nil
}

func teardown() error {
	var err error
	if store != nil {
		err = core.CloseStore(store)
		store = nil
	}
	if logger != nil {
		_ = logger.Sync()
	}
	return err
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.OutputPaths = []string{"stderr"}
	return zcfg.Build()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
