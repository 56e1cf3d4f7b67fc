// Package analytics computes performance, time-pattern and risk statistics
// over a trade collection. Every function is pure; empty input returns
// errors.ErrNoTrades and degenerate denominators resolve to 0 or models.Inf.
package analytics

import (
	"forex-analyzer/internal/derive"
	"forex-analyzer/internal/errors"
	"forex-analyzer/internal/models"
)

// PerformanceMetrics summarizes the outcome of a trade collection. Money
// values are rounded to cents and rates to four places.
type PerformanceMetrics struct {
	TotalTrades    int          `json:"total_trades" yaml:"total_trades"`
	WinningTrades  int          `json:"winning_trades" yaml:"winning_trades"`
	LosingTrades   int          `json:"losing_trades" yaml:"losing_trades"`
	WinRate        float64      `json:"win_rate" yaml:"win_rate"`
	TotalProfit    float64      `json:"total_profit" yaml:"total_profit"`
	AverageWin     float64      `json:"average_win" yaml:"average_win"`
	AverageLoss    float64      `json:"average_loss" yaml:"average_loss"`
	ProfitFactor   models.Ratio `json:"profit_factor" yaml:"profit_factor"`
	LargestWin     float64      `json:"largest_win" yaml:"largest_win"`
	LargestLoss    float64      `json:"largest_loss" yaml:"largest_loss"`
	MaxDrawdown    float64      `json:"max_drawdown" yaml:"max_drawdown"`
	MaxDrawdownPct float64      `json:"max_drawdown_pct" yaml:"max_drawdown_pct"`
	SharpeRatio    float64      `json:"sharpe_ratio" yaml:"sharpe_ratio"`
	RecoveryFactor models.Ratio `json:"recovery_factor" yaml:"recovery_factor"`
	Expectancy     float64      `json:"expectancy" yaml:"expectancy"`
}

// Performance computes the headline performance metrics. The profit factor
// is models.Inf when nothing lost, and the recovery factor is models.Inf
// when the equity curve never fell below a previous peak.
func Performance(trades []models.Trade) (*PerformanceMetrics, error) {
	if len(trades) == 0 {
		return nil, errors.ErrNoTrades
	}
	profits := profitsOf(trades)
	wins := derive.Filter(profits, func(p float64) bool { return p > 0 })
	losses := derive.Filter(profits, func(p float64) bool { return p < 0 })

	m := &PerformanceMetrics{
		TotalTrades:   len(profits),
		WinningTrades: len(wins),
		LosingTrades:  len(losses),
	}
	winRate := float64(len(wins)) / float64(len(profits))
	avgWin := derive.Mean(wins)
	avgLoss := derive.Mean(losses)
	total := derive.Sum(profits)

	pf := models.Inf
	if lossSum := derive.Sum(losses); lossSum != 0 {
		pf = models.Ratio(abs(derive.Sum(wins) / lossSum))
	}

	dd, runMax := derive.Underwater(profits)
	maxDD := derive.Min(dd)
	peak := derive.Max(runMax)
	maxDDPct := 0.0
	if peak != 0 {
		maxDDPct = maxDD / peak * 100
	}

	recovery := models.Inf
	if maxDD != 0 {
		recovery = models.Ratio(total / abs(maxDD))
	}

	m.WinRate = derive.Round(winRate, 4)
	m.TotalProfit = derive.Round(total, 2)
	m.AverageWin = derive.Round(avgWin, 2)
	m.AverageLoss = derive.Round(avgLoss, 2)
	m.ProfitFactor = models.Ratio(derive.Round(float64(pf), 2))
	m.LargestWin = derive.Round(derive.Max(profits), 2)
	m.LargestLoss = derive.Round(derive.Min(profits), 2)
	m.MaxDrawdown = derive.Round(maxDD, 2)
	m.MaxDrawdownPct = derive.Round(maxDDPct, 2)
	m.SharpeRatio = derive.Round(sharpe(profits), 2)
	m.RecoveryFactor = models.Ratio(derive.Round(float64(recovery), 2))
	m.Expectancy = derive.Round(winRate*avgWin+(1-winRate)*avgLoss, 2)
	return m, nil
}

// sharpe is the non-annualized mean over sample standard deviation.
func sharpe(xs []float64) float64 {
	sd := derive.StdDev(xs)
	if sd == 0 {
		return 0
	}
	return derive.Mean(xs) / sd
}

func profitsOf(trades []models.Trade) []float64 {
	out := make([]float64, len(trades))
	for i := range trades {
		out[i] = trades[i].Profit
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
