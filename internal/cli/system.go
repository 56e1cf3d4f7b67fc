package cli

import (
	"runtime"

	"github.com/spf13/cobra"

	"forex-analyzer/internal/config"
	"forex-analyzer/pkg/utils"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsStructured() {
				return output.Structured(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
					"go":         runtime.Version(),
				})
			}
			output.Printf("fxanalyzer v%s\n", Version)
			output.Dim("Build date: %s (%s)", BuildDate, runtime.Version())
			return nil
		},
	}
}

// pluginInfo describes one registered extension.
type pluginInfo struct {
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func newPluginsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List registered format normalizers and analysis providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			eng, err := app.Engine()
			if err != nil {
				return err
			}

			var plugins []pluginInfo
			for _, n := range eng.Normalizers().All() {
				plugins = append(plugins, pluginInfo{Kind: "normalizer", Name: string(n.Source())})
			}
			plugins = append(plugins, pluginInfo{Kind: "normalizer", Name: "generic", Description: "fallback keyword mapping"})
			for _, p := range eng.Providers().All() {
				plugins = append(plugins, pluginInfo{Kind: "analysis", Name: p.Name(), Description: p.Description()})
			}

			if output.IsStructured() {
				return output.Structured(plugins)
			}
			table := NewTable(output, "KIND", "NAME", "DESCRIPTION")
			for _, p := range plugins {
				table.AddRow(p.Kind, p.Name, p.Description)
			}
			table.Render()
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the analyzer configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsStructured() {
				return output.Structured(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			dir, _ := cmd.Flags().GetString("config")
			path := config.ConfigFile(dir)
			if output.IsStructured() {
				return output.Structured(map[string]string{"path": path})
			}
			output.Println(path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				if !output.IsStructured() {
					output.Error("✗ Configuration validation failed: %v", err)
				}
				return err
			}
			if output.IsStructured() {
				return output.Structured(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Ingest")
	output.KV("Default source", cfg.Ingest.DefaultSource)
	output.KV("Default currency", cfg.Ingest.DefaultCurrency)
	output.KV("Default leverage", cfg.Ingest.DefaultLeverage)
	output.KV("Max file size", utils.FormatCount(cfg.Ingest.MaxFileSizeMB)+" MB")
	output.KV("Upload workers", cfg.Ingest.UploadWorkers)
	output.Println()

	output.Bold("Analysis")
	output.KV("Confidence level", cfg.Analysis.ConfidenceLevel)
	output.KV("Rolling window", cfg.Analysis.RollingWindow)
	output.KV("Granularity", cfg.Analysis.Granularity)
	output.Println()

	output.Bold("Risk")
	output.KV("Risk-free rate", utils.FormatRate(cfg.Risk.RiskFreeRate))
	output.KV("Confidence levels", cfg.Risk.ConfidenceLevels)
	output.KV("Simulations", utils.FormatCount(cfg.Risk.MonteCarloSimulations))
	output.KV("Seed", cfg.Risk.Seed)
	output.KV("Minimum trades", cfg.Risk.MinTrades)
	output.Println()

	output.Bold("Machine learning")
	output.KV("Estimators", cfg.ML.NEstimators)
	output.KV("Max depth", cfg.ML.MaxDepth)
	output.KV("DBSCAN eps", cfg.ML.DBSCANEps)
	output.KV("IQR multiplier", cfg.ML.IQRMultiplier)
	output.KV("Workers", cfg.ML.Workers)
	output.Println()

	output.Bold("Storage")
	output.KV("Database", cfg.Storage.DBPath)
	output.KV("Cache TTL", cfg.Storage.CacheTTL)
	output.Println()

	output.Bold("Logging")
	output.KV("Level", cfg.Logging.Level)
	output.KV("File", cfg.Logging.File)
	if cfg.Logging.File {
		output.KV("Path", cfg.Logging.FilePath)
	}
}
