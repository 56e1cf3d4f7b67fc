// Package risk implements the risk assessment analysis: multi-method VaR,
// Monte Carlo simulation of per-trade outcomes, risk-adjusted ratios, tail
// risk and attribution by symbol, direction and hour.
package risk

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat/distuv"

	"forex-analyzer/internal/config"
	"forex-analyzer/internal/derive"
	"forex-analyzer/internal/errors"
	"forex-analyzer/internal/models"
)

// TradingDaysPerYear converts the annual risk-free rate to a per-trade rate.
const TradingDaysPerYear = 252

// Options configures an assessment.
type Options struct {
	RiskFreeRate     float64
	ConfidenceLevels []float64
	Simulations      int
	Seed             int64
	MinTrades        int
}

// OptionsFrom builds assessment options from configuration.
func OptionsFrom(cfg config.RiskConfig) Options {
	return Options{
		RiskFreeRate:     cfg.RiskFreeRate,
		ConfidenceLevels: append([]float64(nil), cfg.ConfidenceLevels...),
		Simulations:      cfg.MonteCarloSimulations,
		Seed:             cfg.Seed,
		MinTrades:        cfg.MinTrades,
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if len(o.ConfidenceLevels) == 0 {
		return fmt.Errorf("at least one confidence level is required")
	}
	for _, c := range o.ConfidenceLevels {
		if c <= 0 || c >= 1 {
			return fmt.Errorf("confidence level %v outside (0, 1)", c)
		}
	}
	if o.Simulations < 1 {
		return fmt.Errorf("simulations must be positive, got %d", o.Simulations)
	}
	return nil
}

// BasicStats describes the per-trade profit distribution.
type BasicStats struct {
	Volatility        float64 `json:"volatility" yaml:"volatility"`
	MeanReturn        float64 `json:"mean_return" yaml:"mean_return"`
	Skewness          float64 `json:"skewness" yaml:"skewness"`
	Kurtosis          float64 `json:"kurtosis" yaml:"kurtosis"`
	MaxLoss           float64 `json:"max_loss" yaml:"max_loss"`
	MaxGain           float64 `json:"max_gain" yaml:"max_gain"`
	DownsideDeviation float64 `json:"downside_deviation" yaml:"downside_deviation"`
	UpsideDeviation   float64 `json:"upside_deviation" yaml:"upside_deviation"`
}

// Assessment is the full risk assessment of one dataset.
type Assessment struct {
	TradeCount   int              `json:"trade_count" yaml:"trade_count"`
	Basic        BasicStats       `json:"basic_metrics" yaml:"basic_metrics"`
	VaR          []VaRLevel       `json:"var_analysis" yaml:"var_analysis"`
	MonteCarlo   MonteCarlo       `json:"monte_carlo" yaml:"monte_carlo"`
	RiskAdjusted RiskAdjusted     `json:"risk_adjusted_returns" yaml:"risk_adjusted_returns"`
	TailRisk     TailRisk         `json:"tail_risk" yaml:"tail_risk"`
	Attribution  Attribution      `json:"risk_attribution" yaml:"risk_attribution"`
	Insights     []models.Insight `json:"insights" yaml:"insights"`
}

// Level returns the VaR row for confidence c.
func (a *Assessment) Level(c float64) (VaRLevel, bool) {
	for _, l := range a.VaR {
		if math.Abs(l.Confidence-c) < 1e-9 {
			return l, true
		}
	}
	return VaRLevel{}, false
}

// Assess runs every risk section. Trades whose profit is not a number are
// ignored; fewer than opts.MinTrades remaining is an InsufficientDataError.
func Assess(trades []models.Trade, opts Options) (*Assessment, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		return nil, errors.ErrNoTrades
	}

	var kept []models.Trade
	for i := range trades {
		if !math.IsNaN(trades[i].Profit) {
			kept = append(kept, trades[i])
		}
	}
	if len(kept) < opts.MinTrades {
		return nil, errors.NewInsufficientDataError("risk_assessment", opts.MinTrades, len(kept))
	}

	profits := make([]float64, len(kept))
	for i := range kept {
		profits[i] = kept[i].Profit
	}

	a := &Assessment{
		TradeCount:   len(kept),
		Basic:        basicStats(profits),
		VaR:          ValueAtRisk(profits, opts.ConfidenceLevels),
		MonteCarlo:   Simulate(profits, opts.Simulations, opts.Seed),
		RiskAdjusted: Ratios(profits, opts.RiskFreeRate),
		TailRisk:     Tail(profits),
		Attribution:  Attribute(kept),
	}
	a.Insights = Insights(a)
	return a, nil
}

func basicStats(profits []float64) BasicStats {
	return BasicStats{
		Volatility:        derive.StdDev(profits),
		MeanReturn:        derive.Mean(profits),
		Skewness:          derive.Skew(profits),
		Kurtosis:          derive.Kurtosis(profits),
		MaxLoss:           derive.Min(profits),
		MaxGain:           derive.Max(profits),
		DownsideDeviation: derive.StdDev(negatives(profits)),
		UpsideDeviation:   derive.StdDev(derive.Filter(profits, func(p float64) bool { return p > 0 })),
	}
}

// VaRLevel holds the VaR estimates at one confidence level. VaR is the
// historical estimate.
type VaRLevel struct {
	Confidence float64 `json:"confidence" yaml:"confidence"`
	VaR        float64 `json:"var" yaml:"var"`
	Historical float64 `json:"historical" yaml:"historical"`
	Parametric float64 `json:"parametric" yaml:"parametric"`
	Modified   float64 `json:"modified" yaml:"modified"`
	CVaR       float64 `json:"cvar" yaml:"cvar"`
}

// Label is the percentage form of the confidence level, e.g. "95".
func (l VaRLevel) Label() string {
	return strconv.Itoa(int(math.Round(l.Confidence * 100)))
}

// ValueAtRisk estimates VaR at each confidence level three ways: the
// historical percentile, a normal approximation and a Cornish-Fisher
// expansion that corrects the normal quantile for skew and excess kurtosis.
func ValueAtRisk(profits []float64, levels []float64) []VaRLevel {
	mean := derive.Mean(profits)
	sd := derive.StdDev(profits)
	s := derive.Skew(profits)
	k := derive.Kurtosis(profits)

	out := make([]VaRLevel, 0, len(levels))
	for _, c := range levels {
		alpha := 1 - c
		z := distuv.UnitNormal.Quantile(alpha)
		zcf := z + (z*z-1)*s/6 + (z*z*z-3*z)*k/24

		hist := derive.Percentile(profits, alpha*100)
		out = append(out, VaRLevel{
			Confidence: c,
			VaR:        hist,
			Historical: hist,
			Parametric: mean + sd*z,
			Modified:   mean + sd*zcf,
			CVaR:       derive.Mean(derive.Filter(profits, func(p float64) bool { return p <= hist })),
		})
	}
	return out
}

// RiskAdjusted holds per-trade risk-adjusted ratios. A ratio whose
// denominator is zero is 0.
type RiskAdjusted struct {
	SharpeRatio      float64 `json:"sharpe_ratio" yaml:"sharpe_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio" yaml:"sortino_ratio"`
	CalmarRatio      float64 `json:"calmar_ratio" yaml:"calmar_ratio"`
	InformationRatio float64 `json:"information_ratio" yaml:"information_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown" yaml:"max_drawdown"`
	ExcessReturnMean float64 `json:"excess_return_mean" yaml:"excess_return_mean"`
}

// Ratios computes Sharpe and Sortino over excess returns using the annual
// risk-free rate spread across trading days, Calmar as mean return over the
// drawdown magnitude, and the information ratio against a zero benchmark.
func Ratios(profits []float64, riskFreeRate float64) RiskAdjusted {
	perTrade := riskFreeRate / TradingDaysPerYear
	excess := make([]float64, len(profits))
	for i, p := range profits {
		excess[i] = p - perTrade
	}
	excessMean := derive.Mean(excess)
	mean := derive.Mean(profits)
	sd := derive.StdDev(profits)
	downside := derive.StdDev(negatives(profits))
	maxDD := math.Abs(derive.MaxDrawdown(profits))

	return RiskAdjusted{
		SharpeRatio:      ratio(excessMean, sd),
		SortinoRatio:     ratio(excessMean, downside),
		CalmarRatio:      ratio(mean, maxDD),
		InformationRatio: ratio(mean, sd),
		MaxDrawdown:      maxDD,
		ExcessReturnMean: excessMean,
	}
}

// TailRisk describes the worst 5% of outcomes and losing streaks.
type TailRisk struct {
	ExtremeLossThreshold   float64 `json:"extreme_loss_threshold" yaml:"extreme_loss_threshold"`
	ExtremeLossProbability float64 `json:"extreme_loss_probability" yaml:"extreme_loss_probability"`
	TailMean               float64 `json:"tail_mean" yaml:"tail_mean"`
	TailStd                float64 `json:"tail_std" yaml:"tail_std"`
	MaxConsecutiveLosses   int     `json:"max_consecutive_losses" yaml:"max_consecutive_losses"`
	AvgLossRunLength       float64 `json:"avg_loss_run_length" yaml:"avg_loss_run_length"`
	TotalLossRuns          int     `json:"total_loss_runs" yaml:"total_loss_runs"`
}

// Tail analyzes the 5th-percentile tail and every run of consecutive losses,
// including a run still open at the last trade.
func Tail(profits []float64) TailRisk {
	threshold := derive.Percentile(profits, 5)
	tail := derive.Filter(profits, func(p float64) bool { return p <= threshold })

	var runs []float64
	current := 0
	for _, p := range profits {
		if p < 0 {
			current++
			continue
		}
		if current > 0 {
			runs = append(runs, float64(current))
			current = 0
		}
	}
	if current > 0 {
		runs = append(runs, float64(current))
	}

	tr := TailRisk{
		ExtremeLossThreshold: threshold,
		TailMean:             derive.Mean(tail),
		TailStd:              derive.StdDev(tail),
		MaxConsecutiveLosses: int(derive.Max(runs)),
		AvgLossRunLength:     derive.Mean(runs),
		TotalLossRuns:        len(runs),
	}
	if len(profits) > 0 {
		tr.ExtremeLossProbability = float64(len(tail)) / float64(len(profits))
	}
	return tr
}

// AttributionEntry is the risk of one slice of the trades.
type AttributionEntry struct {
	Key          string  `json:"key" yaml:"key"`
	Trades       int     `json:"trades" yaml:"trades"`
	Volatility   float64 `json:"volatility" yaml:"volatility"`
	VaR95        float64 `json:"var_95" yaml:"var_95"`
	Contribution float64 `json:"contribution" yaml:"contribution"`
}

// Attribution breaks risk down by symbol, direction and open hour.
// Contribution is the slice's share of trades.
type Attribution struct {
	BySymbol []AttributionEntry `json:"by_symbol" yaml:"by_symbol"`
	ByType   []AttributionEntry `json:"by_type" yaml:"by_type"`
	ByHour   []AttributionEntry `json:"by_hour" yaml:"by_hour"`
}

// Attribute computes the attribution tables.
func Attribute(trades []models.Trade) Attribution {
	return Attribution{
		BySymbol: attribute(trades, func(t *models.Trade) string { return t.Symbol }, lexical),
		ByType:   attribute(trades, func(t *models.Trade) string { return string(t.Type) }, lexical),
		ByHour: attribute(trades, func(t *models.Trade) string {
			return strconv.Itoa(t.OpenTime.UTC().Hour())
		}, numeric),
	}
}

func lexical(a, b string) bool { return a < b }

func numeric(a, b string) bool {
	x, _ := strconv.Atoi(a)
	y, _ := strconv.Atoi(b)
	return x < y
}

func attribute(trades []models.Trade, key func(*models.Trade) string, less func(a, b string) bool) []AttributionEntry {
	groups := make(map[string][]float64)
	for i := range trades {
		k := key(&trades[i])
		groups[k] = append(groups[k], trades[i].Profit)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })

	out := make([]AttributionEntry, 0, len(keys))
	for _, k := range keys {
		ps := groups[k]
		out = append(out, AttributionEntry{
			Key:          k,
			Trades:       len(ps),
			Volatility:   derive.StdDev(ps),
			VaR95:        derive.Percentile(ps, 5),
			Contribution: float64(len(ps)) / float64(len(trades)),
		})
	}
	return out
}

func negatives(xs []float64) []float64 {
	return derive.Filter(xs, func(p float64) bool { return p < 0 })
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
