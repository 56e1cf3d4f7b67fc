package models

import (
	"encoding/json"
	"math"
	"time"
)

// Trade is one executed position in canonical form.
// Optional fields are pointers; nil means absent. Required numeric fields
// hold NaN when the source did not supply them.
type Trade struct {
	Ticket     string
	OpenTime   time.Time
	CloseTime  *time.Time
	Type       TradeType
	Size       float64
	Symbol     string
	OpenPrice  float64
	ClosePrice *float64
	StopLoss   *float64
	TakeProfit *float64
	Commission float64
	Swap       float64
	Profit     float64

	// Derived
	Duration        *int // minutes
	Pips            *float64
	RiskRewardRatio *float64
}

// IsClosed reports whether the position has a close time.
func (t *Trade) IsClosed() bool {
	return t.CloseTime != nil
}

// IsWin reports whether the trade made money.
func (t *Trade) IsWin() bool {
	return t.Profit > 0
}

// IsLoss reports whether the trade lost money.
func (t *Trade) IsLoss() bool {
	return t.Profit < 0
}

// NetProfit is profit after commission and swap.
func (t *Trade) NetProfit() float64 {
	return t.Profit + t.Commission + t.Swap
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Int returns a pointer to v.
func Int(v int) *int {
	return &v
}

// Time returns a pointer to v.
func Time(v time.Time) *time.Time {
	return &v
}

type tradeJSON struct {
	Ticket          string     `json:"ticket"`
	OpenTime        *time.Time `json:"open_time"`
	CloseTime       *time.Time `json:"close_time"`
	Type            TradeType  `json:"type"`
	Size            *float64   `json:"size"`
	Symbol          string     `json:"symbol"`
	OpenPrice       *float64   `json:"open_price"`
	ClosePrice      *float64   `json:"close_price"`
	StopLoss        *float64   `json:"stop_loss,omitempty"`
	TakeProfit      *float64   `json:"take_profit,omitempty"`
	Commission      float64    `json:"commission"`
	Swap            float64    `json:"swap"`
	Profit          *float64   `json:"profit"`
	Duration        *int       `json:"duration,omitempty"`
	Pips            *float64   `json:"pips,omitempty"`
	RiskRewardRatio *float64   `json:"risk_reward_ratio,omitempty"`
}

func (t Trade) MarshalJSON() ([]byte, error) {
	out := tradeJSON{
		Ticket:          t.Ticket,
		CloseTime:       t.CloseTime,
		Type:            t.Type,
		Size:            finite(t.Size),
		Symbol:          t.Symbol,
		OpenPrice:       finite(t.OpenPrice),
		ClosePrice:      t.ClosePrice,
		StopLoss:        t.StopLoss,
		TakeProfit:      t.TakeProfit,
		Commission:      t.Commission,
		Swap:            t.Swap,
		Profit:          finite(t.Profit),
		Duration:        t.Duration,
		Pips:            t.Pips,
		RiskRewardRatio: t.RiskRewardRatio,
	}
	if !t.OpenTime.IsZero() {
		out.OpenTime = &t.OpenTime
	}
	return json.Marshal(out)
}

func (t *Trade) UnmarshalJSON(b []byte) error {
	var in tradeJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*t = Trade{
		Ticket:          in.Ticket,
		CloseTime:       in.CloseTime,
		Type:            in.Type,
		Size:            orNaN(in.Size),
		Symbol:          in.Symbol,
		OpenPrice:       orNaN(in.OpenPrice),
		ClosePrice:      in.ClosePrice,
		StopLoss:        in.StopLoss,
		TakeProfit:      in.TakeProfit,
		Commission:      in.Commission,
		Swap:            in.Swap,
		Profit:          orNaN(in.Profit),
		Duration:        in.Duration,
		Pips:            in.Pips,
		RiskRewardRatio: in.RiskRewardRatio,
	}
	if in.OpenTime != nil {
		t.OpenTime = *in.OpenTime
	}
	return nil
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func orNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}
