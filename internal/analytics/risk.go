package analytics

import (
	"fmt"
	"math"

	"forex-analyzer/internal/derive"
	"forex-analyzer/internal/errors"
	"forex-analyzer/internal/models"
)

// RiskParams configures RiskMetrics.
type RiskParams struct {
	ConfidenceLevel float64
	RollingWindow   int
}

// DefaultRiskParams returns 95% confidence and a 30-trade window.
func DefaultRiskParams() RiskParams {
	return RiskParams{ConfidenceLevel: 0.95, RollingWindow: 30}
}

// BasicRisk is the per-trade profit distribution summary.
type BasicRisk struct {
	ValueAtRisk          float64 `json:"value_at_risk" yaml:"value_at_risk"`
	ConditionalVaR       float64 `json:"conditional_var" yaml:"conditional_var"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses" yaml:"max_consecutive_losses"`
	Volatility           float64 `json:"volatility" yaml:"volatility"`
	Skewness             float64 `json:"skewness" yaml:"skewness"`
	Kurtosis             float64 `json:"kurtosis" yaml:"kurtosis"`
}

// DrawdownPeriod is a run of trades during which equity stayed below its
// previous peak. Start and End are trade indexes; Duration counts trades.
type DrawdownPeriod struct {
	Start     int     `json:"start" yaml:"start"`
	End       int     `json:"end" yaml:"end"`
	Duration  int     `json:"duration" yaml:"duration"`
	Depth     float64 `json:"depth" yaml:"depth"`
	Recovered bool    `json:"recovered" yaml:"recovered"`
}

// DrawdownAnalysis describes the underwater equity curve.
type DrawdownAnalysis struct {
	MaxDrawdown         float64          `json:"max_drawdown" yaml:"max_drawdown"`
	MaxDrawdownPct      float64          `json:"max_drawdown_pct" yaml:"max_drawdown_pct"`
	DrawdownPeriods     int              `json:"drawdown_periods" yaml:"drawdown_periods"`
	AvgDrawdownDuration float64          `json:"avg_drawdown_duration" yaml:"avg_drawdown_duration"`
	CurrentDrawdown     float64          `json:"current_drawdown" yaml:"current_drawdown"`
	Periods             []DrawdownPeriod `json:"periods" yaml:"periods"`
}

// RollingMetrics summarizes full trade-count windows. Windows without enough
// history are excluded, so every field is 0 when there are fewer trades than
// the window.
type RollingMetrics struct {
	Window             int     `json:"window" yaml:"window"`
	Windows            int     `json:"windows" yaml:"windows"`
	RollingProfitMean  float64 `json:"rolling_profit_mean" yaml:"rolling_profit_mean"`
	RollingProfitStd   float64 `json:"rolling_profit_std" yaml:"rolling_profit_std"`
	RollingWinRateMean float64 `json:"rolling_win_rate_mean" yaml:"rolling_win_rate_mean"`
	RollingWinRateStd  float64 `json:"rolling_win_rate_std" yaml:"rolling_win_rate_std"`
	BestPeriodProfit   float64 `json:"best_period_profit" yaml:"best_period_profit"`
	WorstPeriodProfit  float64 `json:"worst_period_profit" yaml:"worst_period_profit"`
}

// RiskAdjusted holds non-annualized per-trade ratios.
type RiskAdjusted struct {
	SharpeRatio       float64 `json:"sharpe_ratio" yaml:"sharpe_ratio"`
	SortinoRatio      float64 `json:"sortino_ratio" yaml:"sortino_ratio"`
	CalmarRatio       float64 `json:"calmar_ratio" yaml:"calmar_ratio"`
	DownsideDeviation float64 `json:"downside_deviation" yaml:"downside_deviation"`
}

// RiskMetrics is the output of AnalyzeRisk.
type RiskMetrics struct {
	Basic        BasicRisk        `json:"basic_metrics" yaml:"basic_metrics"`
	Drawdown     DrawdownAnalysis `json:"drawdown_analysis" yaml:"drawdown_analysis"`
	Rolling      RollingMetrics   `json:"rolling_metrics" yaml:"rolling_metrics"`
	RiskAdjusted RiskAdjusted     `json:"risk_adjusted_returns" yaml:"risk_adjusted_returns"`
	Insights     []string         `json:"insights" yaml:"insights"`
}

// AnalyzeRisk computes VaR, drawdown, rolling and risk-adjusted metrics over
// the per-trade profit series in trade order.
func AnalyzeRisk(trades []models.Trade, params RiskParams) (*RiskMetrics, error) {
	if len(trades) == 0 {
		return nil, errors.ErrNoTrades
	}
	if params.ConfidenceLevel <= 0 || params.ConfidenceLevel >= 1 {
		return nil, fmt.Errorf("confidence level %v outside (0, 1)", params.ConfidenceLevel)
	}
	if params.RollingWindow < 1 {
		return nil, fmt.Errorf("rolling window %d must be positive", params.RollingWindow)
	}

	profits := profitsOf(trades)
	rm := &RiskMetrics{
		Basic:        basicRisk(profits, params.ConfidenceLevel),
		Drawdown:     AnalyzeDrawdown(profits),
		Rolling:      rolling(profits, params.RollingWindow),
		RiskAdjusted: riskAdjusted(profits),
	}
	rm.Insights = riskInsights(rm)
	return rm, nil
}

// HistoricalVaR returns the (1-confidence) percentile of profits and the
// mean of the profits at or below it.
func HistoricalVaR(profits []float64, confidence float64) (valueAtRisk, shortfall float64) {
	valueAtRisk = derive.Percentile(profits, (1-confidence)*100)
	shortfall = derive.Mean(derive.Filter(profits, func(p float64) bool { return p <= valueAtRisk }))
	return valueAtRisk, shortfall
}

// MaxConsecutiveLosses returns the longest run of losing trades. Any
// non-negative profit ends a run.
func MaxConsecutiveLosses(profits []float64) int {
	run, longest := 0, 0
	for _, p := range profits {
		if p < 0 {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	return longest
}

func basicRisk(profits []float64, confidence float64) BasicRisk {
	v, cv := HistoricalVaR(profits, confidence)
	return BasicRisk{
		ValueAtRisk:          derive.Round(v, 2),
		ConditionalVaR:       derive.Round(cv, 2),
		MaxConsecutiveLosses: MaxConsecutiveLosses(profits),
		Volatility:           derive.Round(derive.StdDev(profits), 2),
		Skewness:             derive.Round(derive.Skew(profits), 2),
		Kurtosis:             derive.Round(derive.Kurtosis(profits), 2),
	}
}

// DrawdownPeriods finds the contiguous runs where the underwater curve is
// negative. A run still open at the last trade is reported unrecovered.
func DrawdownPeriods(profits []float64) []DrawdownPeriod {
	dd, _ := derive.Underwater(profits)
	var periods []DrawdownPeriod
	start := -1
	closeAt := func(end int, recovered bool) {
		periods = append(periods, DrawdownPeriod{
			Start:     start,
			End:       end,
			Duration:  end - start + 1,
			Depth:     derive.Round(derive.Min(dd[start:end+1]), 2),
			Recovered: recovered,
		})
		start = -1
	}
	for i, d := range dd {
		switch {
		case d < 0 && start < 0:
			start = i
		case d >= 0 && start >= 0:
			closeAt(i-1, true)
		}
	}
	if start >= 0 {
		closeAt(len(dd)-1, false)
	}
	return periods
}

// AnalyzeDrawdown summarizes the underwater equity curve of profits.
func AnalyzeDrawdown(profits []float64) DrawdownAnalysis {
	dd, runMax := derive.Underwater(profits)
	maxDD := derive.Min(dd)
	peak := derive.Max(runMax)

	a := DrawdownAnalysis{
		MaxDrawdown: derive.Round(maxDD, 2),
		Periods:     DrawdownPeriods(profits),
	}
	if a.Periods == nil {
		a.Periods = []DrawdownPeriod{}
	}
	if peak != 0 {
		a.MaxDrawdownPct = derive.Round(maxDD/peak*100, 2)
	}
	a.DrawdownPeriods = len(a.Periods)
	if len(a.Periods) > 0 {
		var total float64
		for _, p := range a.Periods {
			total += float64(p.Duration)
		}
		a.AvgDrawdownDuration = derive.Round(total/float64(len(a.Periods)), 2)
	}
	if len(dd) > 0 {
		a.CurrentDrawdown = derive.Round(dd[len(dd)-1], 2)
	}
	return a
}

func rolling(profits []float64, window int) RollingMetrics {
	sums := derive.Rolling(profits, window, derive.Sum)
	rates := derive.Rolling(profits, window, func(w []float64) float64 {
		return float64(len(derive.Filter(w, func(p float64) bool { return p > 0 }))) / float64(len(w))
	})
	return RollingMetrics{
		Window:             window,
		Windows:            len(sums),
		RollingProfitMean:  derive.Round(derive.Mean(sums), 2),
		RollingProfitStd:   derive.Round(derive.StdDev(sums), 2),
		RollingWinRateMean: derive.Round(derive.Mean(rates), 4),
		RollingWinRateStd:  derive.Round(derive.StdDev(rates), 4),
		BestPeriodProfit:   derive.Round(derive.Max(sums), 2),
		WorstPeriodProfit:  derive.Round(derive.Min(sums), 2),
	}
}

func riskAdjusted(profits []float64) RiskAdjusted {
	downside := derive.StdDev(derive.Filter(profits, func(p float64) bool { return p < 0 }))
	sortino := 0.0
	if downside != 0 {
		sortino = derive.Mean(profits) / downside
	}
	calmar := 0.0
	if maxDD := math.Abs(derive.MaxDrawdown(profits)); maxDD != 0 {
		calmar = derive.Sum(profits) / maxDD
	}
	return RiskAdjusted{
		SharpeRatio:       derive.Round(sharpe(profits), 2),
		SortinoRatio:      derive.Round(sortino, 2),
		CalmarRatio:       derive.Round(calmar, 2),
		DownsideDeviation: derive.Round(downside, 2),
	}
}

func riskInsights(rm *RiskMetrics) []string {
	out := []string{}
	if n := rm.Basic.MaxConsecutiveLosses; n > 5 {
		out = append(out, fmt.Sprintf("High consecutive loss streak: %d trades. Consider position sizing adjustments.", n))
	}
	if rm.Basic.Volatility > 50 {
		out = append(out, "High volatility detected. Consider reducing position sizes during volatile periods.")
	}
	if pct := rm.Drawdown.MaxDrawdownPct; math.Abs(pct) > 20 {
		out = append(out, fmt.Sprintf("Maximum drawdown of %.1f%% is high. Implement stricter risk management.", pct))
	}
	if rm.Drawdown.CurrentDrawdown < -50 {
		out = append(out, "Currently in significant drawdown. Consider reducing trading activity.")
	}
	return out
}
