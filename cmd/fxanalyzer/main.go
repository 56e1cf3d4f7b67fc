// Command fxanalyzer normalizes and analyzes forex trade history exports.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"forex-analyzer/internal/cli"
	"forex-analyzer/internal/config"
	"forex-analyzer/internal/logging"
)

func main() {
	cfg, err := config.Load(os.Getenv("FXA_CONFIG_DIR"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logCfg := logging.DefaultLogConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.File = cfg.Logging.File
	if cfg.Logging.FilePath != "" {
		logCfg.FilePath = cfg.Logging.FilePath
	}
	logger := logging.NewLoggerWithConfig(logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd(cfg, logger).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
