package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"forex-analyzer/internal/models"
)

// Year-first layouts used by MetaTrader and ISO exports.
var timeLayouts = []string{
	"2006.01.02 15:04:05",
	"2006.01.02 15:04",
	"2006.01.02",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
}

// Day-first layouts used by cTrader and European locales.
var dayFirstLayouts = []string{
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
	"02-01-2006 15:04:05",
}

// Month-first layouts, tried only when day-first is not requested.
var monthFirstLayouts = []string{
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006 3:04:05 PM",
	"01/02/2006",
}

var thousandsPattern = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d+)?$`)

// ParseTime parses an export timestamp as UTC. Serial spreadsheet dates are
// accepted when serial is true. The second return is false when s is empty
// or unparseable.
func ParseTime(s string, dayFirst, serial bool) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	layouts := timeLayouts
	if dayFirst {
		layouts = append(append([]string{}, dayFirstLayouts...), timeLayouts...)
	} else {
		layouts = append(append([]string{}, timeLayouts...), monthFirstLayouts...)
		layouts = append(layouts, dayFirstLayouts...)
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}

	if serial {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
			if t, err := excelize.ExcelDateToTime(f, false); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// ParseNumber parses a monetary or price cell. It tolerates currency
// symbols, thousands separators, decimal commas and accounting-style
// negatives such as "(12.50)".
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '$', '€', '£', '¥', '\'':
			return -1
		}
		return r
	}, s)

	switch {
	case strings.Contains(s, ",") && strings.Contains(s, "."):
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			// 1.234,56
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case thousandsPattern.MatchString(s):
		s = strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ",") == 1:
		s = strings.ReplaceAll(s, ",", ".")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	v := d.InexactFloat64()
	if negative {
		v = -v
	}
	return v, true
}

// TypeSynonyms maps lowercased export direction values onto trade types.
type TypeSynonyms map[string]models.TradeType

// MetaTraderTypes is the direction table shared by MT4, MT5 and generic exports.
var MetaTraderTypes = TypeSynonyms{
	"buy": models.Buy, "long": models.Buy, "0": models.Buy, "op_buy": models.Buy,
	"sell": models.Sell, "short": models.Sell, "1": models.Sell, "op_sell": models.Sell,
}

// CTraderTypes adds the single-letter forms cTrader uses.
var CTraderTypes = TypeSynonyms{
	"buy": models.Buy, "long": models.Buy, "b": models.Buy,
	"sell": models.Sell, "short": models.Sell, "s": models.Sell,
}

// Lookup maps a raw direction cell. Unknown values return false.
func (s TypeSynonyms) Lookup(raw string) (models.TradeType, bool) {
	t, ok := s[strings.ToLower(strings.TrimSpace(raw))]
	return t, ok
}
