// Package models provides the canonical trade, dataset and analysis types.
package models

import (
	"encoding/json"
	"math"
	"strings"
)

// TradeType is the direction of a position.
type TradeType string

const (
	Buy  TradeType = "buy"
	Sell TradeType = "sell"
)

// Valid reports whether t is buy or sell.
func (t TradeType) Valid() bool {
	return t == Buy || t == Sell
}

// Source names a trading platform export format.
type Source string

const (
	SourceAuto    Source = "auto"
	SourceMT4     Source = "MT4"
	SourceMT5     Source = "MT5"
	SourceCTrader Source = "cTrader"
	SourceGeneric Source = "generic"
)

// ParseSource maps a user-supplied source name onto a known Source.
// Unknown names map to SourceAuto.
func ParseSource(s string) Source {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mt4", "metatrader4", "metatrader 4":
		return SourceMT4
	case "mt5", "metatrader5", "metatrader 5":
		return SourceMT5
	case "ctrader", "c-trader":
		return SourceCTrader
	case "generic":
		return SourceGeneric
	default:
		return SourceAuto
	}
}

// Ratio is a float that survives JSON encoding when it holds the +Inf
// sentinel ("inf") or is not computable (null).
type Ratio float64

// Inf is the sentinel used for ratios with a zero denominator.
var Inf = Ratio(math.Inf(1))

// IsInf reports whether r is the +Inf sentinel.
func (r Ratio) IsInf() bool {
	return math.IsInf(float64(r), 1)
}

func (r Ratio) MarshalJSON() ([]byte, error) {
	f := float64(r)
	switch {
	case math.IsNaN(f):
		return []byte("null"), nil
	case math.IsInf(f, 1):
		return []byte(`"inf"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-inf"`), nil
	}
	return json.Marshal(f)
}

func (r *Ratio) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch s {
	case "null":
		*r = Ratio(math.NaN())
		return nil
	case `"inf"`, `"Infinity"`:
		*r = Inf
		return nil
	case `"-inf"`, `"-Infinity"`:
		*r = Ratio(math.Inf(-1))
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*r = Ratio(f)
	return nil
}

// MarshalYAML renders the sentinel the same way as JSON.
func (r Ratio) MarshalYAML() (interface{}, error) {
	f := float64(r)
	switch {
	case math.IsNaN(f):
		return nil, nil
	case math.IsInf(f, 1):
		return "inf", nil
	case math.IsInf(f, -1):
		return "-inf", nil
	}
	return f, nil
}
