package ingest

import (
	"strings"

	"forex-analyzer/internal/models"
)

var ctraderColumns = map[string]Field{
	"Position ID": FieldTicket,
	"Symbol":      FieldSymbol,
	"Side":        FieldType,
	"Volume":      FieldSize,
	"Entry Price": FieldOpenPrice,
	"Exit Price":  FieldClosePrice,
	"Entry Time":  FieldOpenTime,
	"Exit Time":   FieldCloseTime,
	"Gross P&L":   FieldProfit,
	"Commission":  FieldCommission,
	"Swap":        FieldSwap,
	"Net P&L":     FieldNetProfit,
	"Stop Loss":   FieldStopLoss,
	"Take Profit": FieldTakeProfit,
}

// Alternative names seen in broker-branded cTrader exports, in preference order.
var ctraderAlternatives = []struct {
	header string
	field  Field
}{
	{"Deal", FieldTicket},
	{"Deal ID", FieldTicket},
	{"Position", FieldTicket},
	{"Instrument", FieldSymbol},
	{"Currency Pair", FieldSymbol},
	{"Direction", FieldType},
	{"Trade Type", FieldType},
	{"Quantity", FieldSize},
	{"Amount", FieldSize},
	{"Open Price", FieldOpenPrice},
	{"Close Price", FieldClosePrice},
	{"Open Time", FieldOpenTime},
	{"Close Time", FieldCloseTime},
	{"Opening Time", FieldOpenTime},
	{"Closing Time", FieldCloseTime},
	{"P&L", FieldProfit},
	{"Profit/Loss", FieldProfit},
	{"PnL", FieldProfit},
	{"Fees", FieldCommission},
	{"Rollover", FieldSwap},
	{"Interest", FieldSwap},
}

var ctraderIndicators = []string{
	"Position ID", "Deal", "Deal ID",
	"Side", "Direction", "Trade Type",
	"Volume", "Quantity", "Amount",
	"Entry Price", "Entry Time", "Opening Time",
	"Gross P&L", "Net P&L",
}

var ctraderRules = []keywordRule{
	{FieldTicket, both(token("id"), anyOf("position", "deal"))},
	{FieldSymbol, anyOf("symbol", "instrument", "pair")},
	{FieldType, anyOf("side", "direction", "type")},
	{FieldSize, anyOf("volume", "quantity", "amount")},
	{FieldOpenPrice, both(anyOf("entry"), anyOf("price"))},
	{FieldClosePrice, both(anyOf("exit"), anyOf("price"))},
	{FieldOpenTime, both(anyOf("entry"), anyOf("time"))},
	{FieldCloseTime, both(anyOf("exit"), anyOf("time"))},
	{FieldProfit, anyOf("p&l", "pnl", "profit")},
}

// CTrader normalizes cTrader position history exports.
type CTrader struct{}

// NewCTrader returns the cTrader normalizer.
func NewCTrader() Normalizer {
	return CTrader{}
}

func (CTrader) Source() models.Source { return models.SourceCTrader }

func (CTrader) Coercion() Coercion {
	return Coercion{
		DayFirst:       true,
		Types:          CTraderTypes,
		ProfitFallback: FieldNetProfit,
	}
}

// Score counts the cTrader-specific headers present. Headers shared with
// MetaTrader exports (Symbol, Commission, Swap) are not indicators.
func (CTrader) Score(headers []string) int {
	return countPresent(headers, ctraderIndicators)
}

// Map applies exact names, then alternatives for fields still unmapped,
// then keyword rules for the remaining headers.
func (CTrader) Map(headers []string) Mapping {
	m := make(Mapping)
	claimed := make(map[Field]bool)
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
		if f, ok := ctraderColumns[h]; ok && !claimed[f] {
			m[h] = f
			claimed[f] = true
		}
	}
	for _, alt := range ctraderAlternatives {
		if present[alt.header] && !claimed[alt.field] {
			if _, done := m[alt.header]; done {
				continue
			}
			m[alt.header] = alt.field
			claimed[alt.field] = true
		}
	}

	var rest []string
	for _, h := range headers {
		if _, done := m[h]; !done && !strings.HasPrefix(h, "Unnamed:") {
			rest = append(rest, h)
		}
	}
	return fuzzyMap(rest, ctraderRules, m)
}
