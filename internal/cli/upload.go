package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"forex-analyzer/internal/engine"
	"forex-analyzer/internal/errors"
	"forex-analyzer/internal/models"
	"forex-analyzer/pkg/utils"
)

// uploadOutcome is the per-file result of the upload command.
type uploadOutcome struct {
	File   string               `json:"file"`
	Result *engine.UploadResult `json:"result,omitempty"`
	Error  string               `json:"error,omitempty"`

	err error
}

func newUploadCmd(app *App) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Normalize, validate and store trade history files",
		Long: `Reads MT4, MT5, cTrader or generic exports (CSV, XLSX or JSON), normalizes
them to the canonical trade schema, validates them and stores each valid file
as a dataset. Several files are processed in parallel.`,
		Example: `  fxanalyzer upload history.csv
  fxanalyzer upload --source MT4 statement.xlsx
  fxanalyzer upload exports/*.csv --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			declared := models.ParseSource(source)
			if source == "" {
				declared = models.ParseSource(app.Config.Ingest.DefaultSource)
			}

			eng, err := app.Engine()
			if err != nil {
				return err
			}

			outcomes := uploadFiles(cmd.Context(), eng, args, declared, app.Config.Ingest.UploadWorkers)

			failed := 0
			for _, o := range outcomes {
				if o.Error != "" {
					failed++
				}
			}

			if output.IsStructured() {
				if err := output.Structured(outcomes); err != nil {
					return err
				}
			} else {
				renderUploads(output, outcomes, app.Config.Ingest.DefaultCurrency)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d upload(s) failed", failed, len(outcomes))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "declared source: auto, MT4, MT5, cTrader or generic")
	return cmd
}

// uploadFiles processes files concurrently, at most workers at a time. The
// outcomes keep the order of files.
func uploadFiles(ctx context.Context, eng *engine.Engine, files []string, source models.Source, workers int) []uploadOutcome {
	if ctx == nil {
		ctx = context.Background()
	}
	outcomes := make([]uploadOutcome, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, workers))
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			outcomes[i] = uploadOne(ctx, eng, file, source)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func uploadOne(ctx context.Context, eng *engine.Engine, file string, source models.Source) uploadOutcome {
	out := uploadOutcome{File: file}
	data, err := os.ReadFile(file)
	if err != nil {
		out.err, out.Error = err, err.Error()
		return out
	}
	res, err := eng.Upload(ctx, filepath.Base(file), data, source)
	out.Result = res
	if err != nil {
		out.err, out.Error = err, err.Error()
	}
	return out
}

func renderUploads(output *Output, outcomes []uploadOutcome, currency string) {
	table := NewTable(output, "FILE", "STATUS", "DATASET", "SOURCE", "ROWS", "TRADES", "WARNINGS")
	for _, o := range outcomes {
		status := output.Green("stored")
		datasetID, src, rows, trades, warnings := "-", "-", "-", "-", "-"
		if o.Result != nil {
			src = string(o.Result.Source)
			rows = strconv.Itoa(o.Result.RowsRead)
			trades = strconv.Itoa(o.Result.TradeCount)
			warnings = strconv.Itoa(len(o.Result.Warnings))
			if o.Result.DatasetID != "" {
				datasetID = o.Result.DatasetID
			}
		}
		if o.Error != "" {
			status = output.Red("failed")
		}
		table.AddRow(filepath.Base(o.File), status, datasetID, src, rows, trades, warnings)
	}
	table.Render()

	for _, o := range outcomes {
		output.Println()
		switch {
		case o.Error != "" && o.Result != nil && o.Result.Validation != nil && !o.Result.Validation.IsValid:
			output.Error("✗ %s failed validation", o.File)
			for _, e := range o.Result.Validation.Errors {
				output.Printf("    %s\n", e)
			}
		case o.Error != "":
			output.Error("✗ %s: %s", o.File, o.Error)
			if errors.Is(o.err, errors.ErrUnsupportedFormat) {
				output.Dim("  Supported formats: .csv, .txt, .xlsx, .xlsm, .xls, .json")
			}
		case o.Result.Summary != nil:
			s := o.Result.Summary
			output.Success("✓ %s → %s", o.File, o.Result.DatasetID)
			output.KV("Trades", utils.FormatCount(s.TotalTrades))
			output.KV("Win rate", utils.FormatRate(s.WinRate))
			output.KV("Total profit", output.PnL(s.TotalProfit, currency))
			output.KV("Profit factor", utils.FormatRatio(float64(s.ProfitFactor)))
		}
		for _, w := range warningsOf(o) {
			output.Warning("  ⚠ %s", w)
		}
	}
}

// maxWarningsShown caps per-file warnings in table output.
const maxWarningsShown = 5

func warningsOf(o uploadOutcome) []string {
	if o.Result == nil {
		return nil
	}
	w := o.Result.Warnings
	if len(w) > maxWarningsShown {
		rest := len(w) - maxWarningsShown
		w = append(append([]string{}, w[:maxWarningsShown]...), fmt.Sprintf("... and %d more", rest))
	}
	return w
}
