package cli

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"forex-analyzer/internal/analytics"
	"forex-analyzer/internal/engine"
	"forex-analyzer/internal/models"
	"forex-analyzer/internal/store"
	"forex-analyzer/pkg/utils"
)

func newAnalyzeCmd(app *App) *cobra.Command {
	var analysisType string
	var pairs []string

	cmd := &cobra.Command{
		Use:   "analyze <dataset-id>",
		Short: "Run an analysis over a stored dataset",
		Long: `Runs one analysis type over a dataset and stores the result.

Analysis types:
  performance      win rate, profit factor, drawdown, Sharpe, expectancy
  time_patterns    hourly, daily, monthly and session breakdowns
  risk_metrics     historical VaR, streaks, drawdown periods, rolling metrics
  risk_assessment  VaR methods, Monte Carlo, risk-adjusted ratios, tail risk
  clustering       k-means or DBSCAN clusters of trades
  classification   win/loss classifier with feature importances
  anomalies        IQR outliers in profit, size and duration
  ml_quick         clustering, feature importance and anomalies together
  insights         ranked insights
  comprehensive    performance, time patterns, risk, ML and insights

Use 'fxanalyzer plugins' to list every registered type.`,
		Example: `  fxanalyzer analyze 3f2a... --type performance
  fxanalyzer analyze 3f2a... --type time_patterns --param granularity=all
  fxanalyzer analyze 3f2a... --type clustering --param algorithm=dbscan --param eps=0.8
  fxanalyzer analyze 3f2a... --type risk_assessment --param confidence_levels=0.95,0.99 -f yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			params, err := engine.ParseParams(pairs)
			if err != nil {
				return err
			}
			eng, err := app.Engine()
			if err != nil {
				return err
			}
			result, err := eng.Analyze(cmd.Context(), args[0], analysisType, params)
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Structured(result)
			}
			return renderResult(output, result, app.Config.Ingest.DefaultCurrency)
		},
	}
	cmd.Flags().StringVarP(&analysisType, "type", "t", engine.TypeComprehensive, "analysis type")
	cmd.Flags().StringArrayVarP(&pairs, "param", "p", nil, "analysis parameter as key=value (repeatable)")
	return cmd
}

func newInsightsCmd(app *App) *cobra.Command {
	var category string
	var limit int

	cmd := &cobra.Command{
		Use:   "insights <dataset-id>",
		Short: "Show ranked insights for a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			eng, err := app.Engine()
			if err != nil {
				return err
			}
			insights, err := eng.Insights(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			insights = filterInsights(insights, category, limit)
			if output.IsStructured() {
				return output.Structured(insights)
			}
			renderInsights(output, insights)
			return nil
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "only insights in this category")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of insights")
	return cmd
}

func filterInsights(in []models.Insight, category string, limit int) []models.Insight {
	out := in[:0:0]
	for _, i := range in {
		if category != "" && !strings.EqualFold(i.Category, category) {
			continue
		}
		out = append(out, i)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func newResultsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Browse stored analysis results",
	}

	var filter store.ResultFilter
	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored results, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			eng, err := app.Engine()
			if err != nil {
				return err
			}
			filter.Status = models.AnalysisStatus(status)
			infos, err := eng.Results(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Structured(infos)
			}
			if len(infos) == 0 {
				output.Dim("No analysis results stored.")
				return nil
			}
			table := NewTable(output, "ID", "TYPE", "DATASET", "STATUS", "TIME")
			for _, info := range infos {
				table.AddRow(info.AnalysisID, info.AnalysisType, info.DatasetID,
					output.Severity(string(info.Status)), info.Timestamp.Local().Format(timeLayout))
			}
			table.Render()
			return nil
		},
	}
	list.Flags().StringVarP(&filter.DatasetID, "dataset", "d", "", "only results for this dataset")
	list.Flags().StringVarP(&filter.AnalysisType, "type", "t", "", "only results of this analysis type")
	list.Flags().StringVar(&status, "status", "", "only results with this status")
	list.Flags().IntVarP(&filter.Limit, "limit", "n", 0, "maximum number of results")

	show := &cobra.Command{
		Use:   "show <analysis-id>",
		Short: "Show one stored result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			eng, err := app.Engine()
			if err != nil {
				return err
			}
			result, err := eng.Result(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Structured(result)
			}
			return renderResult(output, result, app.Config.Ingest.DefaultCurrency)
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

// renderResult prints the result header, then the data with a renderer
// for the analysis type where one exists.
func renderResult(output *Output, r *models.AnalysisResult, currency string) error {
	output.Bold("%s analysis", strings.ReplaceAll(r.AnalysisType, "_", " "))
	output.KV("ID", r.AnalysisID)
	output.KV("Dataset", r.DatasetID)
	output.KV("Status", output.Severity(string(r.Status)))
	output.KV("Execution", fmt.Sprintf("%.3fs", r.ExecutionTime))
	if r.Error != "" {
		output.KV("Reason", r.Error)
	}
	if r.Data == nil {
		return nil
	}
	output.Println()

	switch data := r.Data.(type) {
	case *analytics.PerformanceMetrics:
		renderPerformance(output, data, currency)
		return nil
	case []models.Insight:
		renderInsights(output, data)
		return nil
	}
	return renderGeneric(output, r.Data)
}

func renderPerformance(output *Output, p *analytics.PerformanceMetrics, currency string) {
	output.KV("Trades", fmt.Sprintf("%d (%d won, %d lost)", p.TotalTrades, p.WinningTrades, p.LosingTrades))
	output.KV("Win rate", utils.FormatRate(p.WinRate))
	output.KV("Total profit", output.PnL(p.TotalProfit, currency))
	output.KV("Average win", utils.FormatMoney(p.AverageWin, currency))
	output.KV("Average loss", utils.FormatMoney(p.AverageLoss, currency))
	output.KV("Largest win", utils.FormatMoney(p.LargestWin, currency))
	output.KV("Largest loss", utils.FormatMoney(p.LargestLoss, currency))
	output.KV("Profit factor", utils.FormatRatio(float64(p.ProfitFactor)))
	output.KV("Max drawdown", fmt.Sprintf("%s (%.2f%%)", utils.FormatMoney(p.MaxDrawdown, currency), p.MaxDrawdownPct))
	output.KV("Sharpe ratio", utils.FormatRatio(p.SharpeRatio))
	output.KV("Recovery factor", utils.FormatRatio(float64(p.RecoveryFactor)))
	output.KV("Expectancy", utils.FormatMoney(p.Expectancy, currency))
}

func renderInsights(output *Output, insights []models.Insight) {
	if len(insights) == 0 {
		output.Dim("No insights.")
		return
	}
	for i, in := range insights {
		label := output.Severity(string(in.Type))
		output.Printf("%2d. [%s] %s %s\n", i+1, label, in.Title, output.DimText("("+in.Category+", "+string(in.Impact)+" impact)"))
		output.Printf("    %s\n", in.Description)
		if in.Recommendation != "" {
			output.Printf("    → %s\n", in.Recommendation)
		}
	}
}

// renderGeneric prints any JSON-encodable value as an indented outline.
// Values stored in the database come back as generic maps, so this also
// covers results loaded by 'results show'.
func renderGeneric(output *Output, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	outline(output, v, 1)
	return nil
}

// maxListItems caps list output in outlines.
const maxListItems = 12

func outline(output *Output, v interface{}, depth int) {
	indent := strings.Repeat("  ", depth)
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if isScalar(t[k]) {
				output.Printf("%s%s: %s\n", indent, k, scalar(t[k]))
				continue
			}
			output.Printf("%s%s:\n", indent, output.Cyan(k))
			outline(output, t[k], depth+1)
		}
	case []interface{}:
		for i, item := range t {
			if i == maxListItems {
				output.Printf("%s%s\n", indent, output.DimText(fmt.Sprintf("... %d more", len(t)-maxListItems)))
				break
			}
			if isScalar(item) {
				output.Printf("%s- %s\n", indent, scalar(item))
				continue
			}
			output.Printf("%s-\n", indent)
			outline(output, item, depth+1)
		}
	default:
		output.Printf("%s%s\n", indent, scalar(t))
	}
}

func isScalar(v interface{}) bool {
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		return false
	}
	return true
}

func scalar(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "-"
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return fmt.Sprintf("%.0f", t)
		}
		return fmt.Sprintf("%.4f", t)
	default:
		return fmt.Sprint(t)
	}
}
