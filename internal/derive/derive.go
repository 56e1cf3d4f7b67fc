// Package derive computes the fields that are never taken from a source
// export: duration, pips and risk/reward, plus equity-curve helpers.
package derive

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"forex-analyzer/internal/models"
)

var (
	jpyMultiplier = decimal.NewFromInt(100)
	stdMultiplier = decimal.NewFromInt(10000)
)

// PipMultiplier returns 100 for JPY and HUF quoted symbols and 10000 otherwise.
func PipMultiplier(symbol string) float64 {
	return multiplier(symbol).InexactFloat64()
}

func multiplier(symbol string) decimal.Decimal {
	s := strings.ToUpper(symbol)
	if strings.Contains(s, "JPY") || strings.Contains(s, "HUF") {
		return jpyMultiplier
	}
	return stdMultiplier
}

// finite reports whether every value is a real number. decimal panics on
// NaN and Inf, which stand for missing values on a Trade.
func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Pips returns the direction-aware price move in pips, or nil when the
// trade has no usable open or close price or an unknown direction.
func Pips(symbol string, typ models.TradeType, openPrice float64, closePrice *float64) *float64 {
	if closePrice == nil || !finite(openPrice, *closePrice) {
		return nil
	}
	open := decimal.NewFromFloat(openPrice)
	closed := decimal.NewFromFloat(*closePrice)

	var delta decimal.Decimal
	switch typ {
	case models.Buy:
		delta = closed.Sub(open)
	case models.Sell:
		delta = open.Sub(closed)
	default:
		return nil
	}
	v := delta.Mul(multiplier(symbol)).InexactFloat64()
	return &v
}

// DurationMinutes returns the whole minutes between open and close, or nil
// for an open position.
func DurationMinutes(open time.Time, closed *time.Time) *int {
	if closed == nil || open.IsZero() {
		return nil
	}
	m := int(closed.Sub(open) / time.Minute)
	return &m
}

// RiskReward returns reward/risk from the stop-loss and take-profit
// distances. Nil unless both levels are set, nonzero and finite, and risk
// is positive.
func RiskReward(typ models.TradeType, openPrice float64, stopLoss, takeProfit *float64) *float64 {
	if stopLoss == nil || takeProfit == nil || *stopLoss == 0 || *takeProfit == 0 {
		return nil
	}
	if !finite(openPrice, *stopLoss, *takeProfit) {
		return nil
	}
	open := decimal.NewFromFloat(openPrice)
	sl := decimal.NewFromFloat(*stopLoss)
	tp := decimal.NewFromFloat(*takeProfit)

	var risk, reward decimal.Decimal
	switch typ {
	case models.Buy:
		risk = open.Sub(sl)
		reward = tp.Sub(open)
	case models.Sell:
		risk = sl.Sub(open)
		reward = open.Sub(tp)
	default:
		return nil
	}
	if !risk.IsPositive() {
		return nil
	}
	v := reward.Div(risk).InexactFloat64()
	return &v
}

// Apply fills the derived fields of t in place.
func Apply(t *models.Trade) {
	t.Duration = DurationMinutes(t.OpenTime, t.CloseTime)
	t.Pips = Pips(t.Symbol, t.Type, t.OpenPrice, t.ClosePrice)
	t.RiskRewardRatio = RiskReward(t.Type, t.OpenPrice, t.StopLoss, t.TakeProfit)
}

// ApplyAll fills the derived fields of every trade.
func ApplyAll(trades []models.Trade) {
	for i := range trades {
		Apply(&trades[i])
	}
}

func roundDecimal(v float64, places int32) float64 {
	if !finite(v) {
		return v
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
