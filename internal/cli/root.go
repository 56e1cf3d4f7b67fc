// Package cli provides the fxanalyzer command-line interface.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"forex-analyzer/internal/config"
	"forex-analyzer/internal/engine"
	"forex-analyzer/internal/logging"
	"forex-analyzer/internal/metrics"
	"forex-analyzer/internal/store"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2026-10-01"
)

// App holds the application dependencies. The engine and its store are
// opened on first use so that commands such as version and config work
// without a database.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Metrics *metrics.Collector

	engine *engine.Engine
	store  *store.SQLiteStore
}

// Engine opens the store and builds the engine if needed.
func (a *App) Engine() (*engine.Engine, error) {
	if a.engine != nil {
		return a.engine, nil
	}
	dbPath := a.Config.Storage.DBPath
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, err
	}
	a.Logger.Debug().Str("path", dbPath).Msg("SQLite store initialized")

	a.store = st
	a.engine = engine.New(a.Config, st, a.Logger, engine.WithMetrics(a.Metrics))
	return a.engine, nil
}

// Close releases the engine and store.
func (a *App) Close() error {
	if a.engine != nil {
		a.engine.Close()
		a.engine = nil
	}
	if a.store != nil {
		err := a.store.Close()
		a.store = nil
		return err
	}
	return nil
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewCollector(),
	}

	rootCmd := &cobra.Command{
		Use:   "fxanalyzer",
		Short: "Forex trade history analyzer",
		Long: `fxanalyzer normalizes trade history exports from MetaTrader 4, MetaTrader 5,
cTrader and generic CSV/XLSX/JSON files, validates them and runs performance,
timing, risk and machine-learning analyses over the stored datasets.

Typical workflow:
  fxanalyzer upload history.csv
  fxanalyzer datasets list
  fxanalyzer analyze <dataset-id> --type comprehensive
  fxanalyzer insights <dataset-id>`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if dir, _ := cmd.Flags().GetString("config"); dir != "" {
				loaded, err := config.Load(dir)
				if err != nil {
					return err
				}
				*app.Config = *loaded
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			format, _ := cmd.Flags().GetString("format")
			switch format {
			case FormatTable, FormatJSON, FormatYAML:
			default:
				return fmt.Errorf("unknown output format %q (table, json, yaml)", format)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if dump, _ := cmd.Flags().GetBool("metrics"); dump {
				if err := app.Metrics.WriteText(cmd.ErrOrStderr()); err != nil {
					return err
				}
			}
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/forex-analyzer)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringP("format", "f", FormatTable, "output format: table, json or yaml")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("metrics", false, "print Prometheus metrics to stderr after the command")

	rootCmd.AddCommand(
		newUploadCmd(app),
		newDatasetsCmd(app),
		newAnalyzeCmd(app),
		newInsightsCmd(app),
		newResultsCmd(app),
		newPluginsCmd(app),
		newConfigCmd(app),
		newVersionCmd(),
	)
	return rootCmd
}
