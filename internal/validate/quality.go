package validate

import (
	"math"
	"sort"
	"time"

	"forex-analyzer/internal/models"
)

// QualitySummary holds the headline counts of a quality report.
type QualitySummary struct {
	TotalTrades   int     `json:"total_trades" yaml:"total_trades"`
	ClosedTrades  int     `json:"closed_trades" yaml:"closed_trades"`
	OpenTrades    int     `json:"open_trades" yaml:"open_trades"`
	WinningTrades int     `json:"winning_trades" yaml:"winning_trades"`
	LosingTrades  int     `json:"losing_trades" yaml:"losing_trades"`
	WinRate       float64 `json:"win_rate" yaml:"win_rate"`
	UniqueSymbols int     `json:"unique_symbols" yaml:"unique_symbols"`
	DateSpanDays  int     `json:"date_span_days" yaml:"date_span_days"`
}

// QualityReport describes how complete and trustworthy a dataset is.
type QualityReport struct {
	Summary      QualitySummary     `json:"summary" yaml:"summary"`
	Completeness map[string]float64 `json:"data_completeness" yaml:"data_completeness"`
	Symbols      []string           `json:"symbols" yaml:"symbols"`
	QualityScore float64            `json:"quality_score" yaml:"quality_score"`
	Validation   *Result            `json:"validation" yaml:"validation"`
}

var optionalTradeFields = []string{"close_time", "close_price", "stop_loss", "take_profit", "duration", "pips"}

// Quality builds the quality report. A dataset without trades scores 0.
func (v *Validator) Quality(ds *models.TradingDataset) *QualityReport {
	res := v.Validate(ds)
	rep := &QualityReport{
		Completeness: make(map[string]float64, len(optionalTradeFields)),
		Symbols:      []string{},
		Validation:   res,
	}
	if ds == nil || len(ds.Trades) == 0 {
		return rep
	}

	trades := ds.Trades
	total := len(trades)
	s := &rep.Summary
	s.TotalTrades = total

	present := make(map[string]int, len(optionalTradeFields))
	symbols := make(map[string]struct{})
	var first, last time.Time
	missing := 0
	for i := range trades {
		t := &trades[i]
		if t.IsClosed() {
			s.ClosedTrades++
		}
		switch {
		case t.Profit > 0:
			s.WinningTrades++
		case t.Profit < 0:
			s.LosingTrades++
		}
		symbols[t.Symbol] = struct{}{}
		if !t.OpenTime.IsZero() {
			if first.IsZero() || t.OpenTime.Before(first) {
				first = t.OpenTime
			}
			if t.OpenTime.After(last) {
				last = t.OpenTime
			}
		}

		if t.CloseTime != nil {
			present["close_time"]++
		}
		if t.ClosePrice != nil {
			present["close_price"]++
		}
		if t.StopLoss != nil {
			present["stop_loss"]++
		}
		if t.TakeProfit != nil {
			present["take_profit"]++
		}
		if t.Duration != nil {
			present["duration"]++
		}
		if t.Pips != nil {
			present["pips"]++
		}
		missing += len(missingTradeFields(t))
	}

	s.OpenTrades = total - s.ClosedTrades
	s.WinRate = float64(s.WinningTrades) / float64(total)
	s.UniqueSymbols = len(symbols)
	if !first.IsZero() {
		s.DateSpanDays = int(last.Sub(first).Hours() / 24)
	}
	for _, f := range optionalTradeFields {
		rep.Completeness[f] = float64(present[f]) / float64(total)
	}
	for sym := range symbols {
		rep.Symbols = append(rep.Symbols, sym)
	}
	sort.Strings(rep.Symbols)

	rep.QualityScore = Score(missing, total*len(requiredTradeFields), len(res.Errors), len(res.Warnings))
	return rep
}

// Score is the 0 to 100 quality score: up to 30 points for missing required
// fields, 10 per error and 2 per warning.
func Score(missingFields, totalFields, errs, warnings int) float64 {
	if totalFields == 0 {
		return 0
	}
	score := 100.0
	score -= float64(missingFields) / float64(totalFields) * 30
	score -= float64(errs) * 10
	score -= float64(warnings) * 2
	return math.Max(0, math.Min(100, score))
}
