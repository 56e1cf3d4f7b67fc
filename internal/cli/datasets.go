package cli

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"forex-analyzer/internal/models"
	"forex-analyzer/internal/store"
	"forex-analyzer/pkg/utils"
)

const timeLayout = "2006-01-02 15:04:05"

func newDatasetsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "datasets",
		Aliases: []string{"ds"},
		Short:   "Manage stored datasets",
	}
	cmd.AddCommand(
		newDatasetsListCmd(app),
		newDatasetsShowCmd(app),
		newDatasetsDeleteCmd(app),
		newDatasetsExportCmd(app),
		newDatasetsQualityCmd(app),
	)
	return cmd
}

func newDatasetsListCmd(app *App) *cobra.Command {
	var source string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored datasets, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			eng, err := app.Engine()
			if err != nil {
				return err
			}
			infos, err := eng.Datasets(cmd.Context(), store.DatasetFilter{Source: source, Limit: limit})
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Structured(infos)
			}
			if len(infos) == 0 {
				output.Dim("No datasets stored. Use 'fxanalyzer upload <file>' to add one.")
				return nil
			}
			table := NewTable(output, "ID", "SOURCE", "FILE", "TRADES", "CREATED")
			for _, info := range infos {
				table.AddRow(info.ID, info.Source, info.Filename,
					utils.FormatCount(info.TotalTrades), info.CreatedAt.Local().Format(timeLayout))
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "only datasets from this source")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of datasets")
	return cmd
}

func newDatasetsShowCmd(app *App) *cobra.Command {
	var trades int

	cmd := &cobra.Command{
		Use:   "show <dataset-id>",
		Short: "Show dataset metadata and its first trades",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			eng, err := app.Engine()
			if err != nil {
				return err
			}
			ds, err := eng.Dataset(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Structured(ds)
			}
			renderDataset(output, ds, trades)
			return nil
		},
	}
	cmd.Flags().IntVarP(&trades, "trades", "t", 10, "number of trades to list")
	return cmd
}

func renderDataset(output *Output, ds *models.TradingDataset, limit int) {
	md := ds.Metadata
	currency := ""
	if md != nil {
		currency = md.Currency
	}

	output.Bold("Dataset %s", ds.ID)
	if md != nil {
		output.KV("Source", md.Source)
		output.KV("File", md.Filename)
		output.KV("Account", md.Account)
		output.KV("Currency", md.Currency)
		if md.Leverage > 0 {
			output.KV("Leverage", fmt.Sprintf("1:%.0f", md.Leverage))
		}
		output.KV("Trades", utils.FormatCount(md.TotalTrades))
		if md.DateRange != nil {
			output.KV("Period", md.DateRange.Start.Format(timeLayout)+" → "+md.DateRange.End.Format(timeLayout))
		}
		if md.Balance != nil {
			output.KV("Balance", utils.FormatMoney(*md.Balance, currency))
		}
	}
	output.KV("Stored", ds.CreatedAt.Local().Format(timeLayout))

	if limit <= 0 || len(ds.Trades) == 0 {
		return
	}
	output.Println()
	table := NewTable(output, "TICKET", "OPEN", "TYPE", "SIZE", "SYMBOL", "OPEN PRICE", "CLOSE PRICE", "PROFIT")
	for i, t := range ds.Trades {
		if i == limit {
			break
		}
		table.AddRow(t.Ticket, formatTime(t.OpenTime), string(t.Type), formatNumber(t.Size, 2),
			t.Symbol, formatNumber(t.OpenPrice, 5), formatFloat(t.ClosePrice, 5), output.PnL(t.Profit, currency))
	}
	table.Render()
	if len(ds.Trades) > limit {
		output.Dim("... %d more trade(s)", len(ds.Trades)-limit)
	}
}

func newDatasetsDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <dataset-id>",
		Short: "Delete a dataset and its analysis results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			eng, err := app.Engine()
			if err != nil {
				return err
			}
			if err := eng.DeleteDataset(cmd.Context(), args[0]); err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Structured(map[string]string{"deleted": args[0]})
			}
			output.Success("✓ Deleted dataset %s", args[0])
			return nil
		},
	}
}

// exportRow is one trade in the canonical CSV layout. The headers are the
// canonical field names, so the file uploads again as a generic export.
type exportRow struct {
	Ticket     string `csv:"ticket"`
	OpenTime   string `csv:"open_time"`
	CloseTime  string `csv:"close_time"`
	Type       string `csv:"type"`
	Size       string `csv:"size"`
	Symbol     string `csv:"symbol"`
	OpenPrice  string `csv:"open_price"`
	ClosePrice string `csv:"close_price"`
	StopLoss   string `csv:"stop_loss"`
	TakeProfit string `csv:"take_profit"`
	Commission string `csv:"commission"`
	Swap       string `csv:"swap"`
	Profit     string `csv:"profit"`
	Duration   string `csv:"duration"`
	Pips       string `csv:"pips"`
}

func exportRows(trades []models.Trade) []*exportRow {
	rows := make([]*exportRow, len(trades))
	for i, t := range trades {
		rows[i] = &exportRow{
			Ticket:     t.Ticket,
			OpenTime:   formatTime(t.OpenTime),
			CloseTime:  formatTimePtr(t.CloseTime),
			Type:       string(t.Type),
			Size:       formatNumber(t.Size, -1),
			Symbol:     t.Symbol,
			OpenPrice:  formatNumber(t.OpenPrice, -1),
			ClosePrice: formatFloat(t.ClosePrice, -1),
			StopLoss:   formatFloat(t.StopLoss, -1),
			TakeProfit: formatFloat(t.TakeProfit, -1),
			Commission: strconv.FormatFloat(t.Commission, 'f', -1, 64),
			Swap:       strconv.FormatFloat(t.Swap, 'f', -1, 64),
			Profit:     formatNumber(t.Profit, -1),
			Duration:   formatInt(t.Duration),
			Pips:       formatFloat(t.Pips, -1),
		}
	}
	return rows
}

// WriteTradesCSV writes trades in the canonical CSV layout.
func WriteTradesCSV(w io.Writer, trades []models.Trade) error {
	return gocsv.Marshal(exportRows(trades), w)
}

func newDatasetsExportCmd(app *App) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "export <dataset-id>",
		Short: "Export a dataset's trades as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := app.Engine()
			if err != nil {
				return err
			}
			ds, err := eng.Dataset(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if path != "" && path != "-" {
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := WriteTradesCSV(w, ds.Trades); err != nil {
				return err
			}
			if path != "" && path != "-" {
				NewOutput(cmd).Success("✓ Wrote %d trade(s) to %s", len(ds.Trades), path)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "output", "o", "", "output file (default: stdout)")
	return cmd
}

func newDatasetsQualityCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "quality <dataset-id>",
		Short: "Report completeness, validation findings and a quality score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			eng, err := app.Engine()
			if err != nil {
				return err
			}
			rep, err := eng.Quality(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Structured(rep)
			}

			score := fmt.Sprintf("%.1f / 100", rep.QualityScore)
			switch {
			case rep.QualityScore >= 80:
				score = output.Green(score)
			case rep.QualityScore >= 50:
				score = output.Yellow(score)
			default:
				score = output.Red(score)
			}
			output.Bold("Data quality")
			output.KV("Score", score)
			output.KV("Trades", rep.Summary.TotalTrades)
			output.KV("Closed / open", fmt.Sprintf("%d / %d", rep.Summary.ClosedTrades, rep.Summary.OpenTrades))
			output.KV("Win rate", utils.FormatRate(rep.Summary.WinRate))
			output.KV("Symbols", rep.Summary.UniqueSymbols)
			output.KV("Span", fmt.Sprintf("%d day(s)", rep.Summary.DateSpanDays))

			output.Println()
			output.Bold("Field completeness")
			fields := make([]string, 0, len(rep.Completeness))
			for f := range rep.Completeness {
				fields = append(fields, f)
			}
			sort.Strings(fields)
			for _, f := range fields {
				output.KV(f, utils.FormatRate(rep.Completeness[f]))
			}

			if rep.Validation != nil {
				for _, e := range rep.Validation.Errors {
					output.Error("✗ %s", e)
				}
				for _, w := range rep.Validation.Warnings {
					output.Warning("⚠ %s", w)
				}
			}
			return nil
		},
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// formatNumber renders v with prec decimals; NaN renders empty.
func formatNumber(v float64, prec int) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}

func formatFloat(v *float64, prec int) string {
	if v == nil {
		return ""
	}
	return formatNumber(*v, prec)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
