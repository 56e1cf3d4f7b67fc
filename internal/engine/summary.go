package engine

import (
	"forex-analyzer/internal/analytics"
	"forex-analyzer/internal/models"
)

// Summary is the headline statistics block reported after an upload.
type Summary struct {
	TotalTrades   int          `json:"total_trades" yaml:"total_trades"`
	WinningTrades int          `json:"winning_trades" yaml:"winning_trades"`
	LosingTrades  int          `json:"losing_trades" yaml:"losing_trades"`
	WinRate       float64      `json:"win_rate" yaml:"win_rate"`
	TotalProfit   float64      `json:"total_profit" yaml:"total_profit"`
	AverageWin    float64      `json:"average_win" yaml:"average_win"`
	AverageLoss   float64      `json:"average_loss" yaml:"average_loss"`
	ProfitFactor  models.Ratio `json:"profit_factor" yaml:"profit_factor"`
	LargestWin    float64      `json:"largest_win" yaml:"largest_win"`
	LargestLoss   float64      `json:"largest_loss" yaml:"largest_loss"`
}

// Summarize returns the summary of trades, or nil when there are none.
func Summarize(trades []models.Trade) *Summary {
	p, err := analytics.Performance(trades)
	if err != nil {
		return nil
	}
	return &Summary{
		TotalTrades:   p.TotalTrades,
		WinningTrades: p.WinningTrades,
		LosingTrades:  p.LosingTrades,
		WinRate:       p.WinRate,
		TotalProfit:   p.TotalProfit,
		AverageWin:    p.AverageWin,
		AverageLoss:   p.AverageLoss,
		ProfitFactor:  p.ProfitFactor,
		LargestWin:    p.LargestWin,
		LargestLoss:   p.LargestLoss,
	}
}
