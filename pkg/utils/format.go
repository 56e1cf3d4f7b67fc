// Package utils provides shared formatting and retry helpers.
package utils

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

var symbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"CHF": "CHF ",
	"AUD": "A$",
	"CAD": "C$",
	"NZD": "NZ$",
}

// CurrencySymbol returns the display prefix for an ISO 4217 code. Known
// codes without a short symbol are prefixed with the code itself; anything
// that is not a valid code falls back to "$".
func CurrencySymbol(code string) string {
	unit, err := currency.ParseISO(strings.ToUpper(code))
	if err != nil {
		return "$"
	}
	if s, ok := symbols[unit.String()]; ok {
		return s
	}
	return unit.String() + " "
}

// FormatMoney formats amount with thousands separators and the symbol of
// code, e.g. "-$1,234.50".
func FormatMoney(amount float64, code string) string {
	switch {
	case math.IsNaN(amount):
		return "n/a"
	case math.IsInf(amount, 1):
		return "∞"
	case math.IsInf(amount, -1):
		return "-∞"
	}
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return sign + CurrencySymbol(code) + printer.Sprintf("%.2f", amount)
}

// FormatPnL formats a profit with an explicit sign.
func FormatPnL(pnl float64, code string) string {
	if pnl > 0 {
		return "+" + FormatMoney(pnl, code)
	}
	return FormatMoney(pnl, code)
}

// FormatPercent formats a percentage value with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatRate formats a fraction in [0, 1] as a percentage.
func FormatRate(fraction float64) string {
	if math.IsNaN(fraction) {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", fraction*100)
}

// FormatRatio formats a ratio to two decimals; +Inf renders as "∞".
func FormatRatio(r float64) string {
	switch {
	case math.IsNaN(r):
		return "n/a"
	case math.IsInf(r, 1):
		return "∞"
	case math.IsInf(r, -1):
		return "-∞"
	}
	return fmt.Sprintf("%.2f", r)
}

// FormatCount formats an integer with thousands separators.
func FormatCount(n int) string {
	return printer.Sprintf("%d", n)
}

// FormatMinutes renders a duration given in minutes, e.g. "2h 05m".
func FormatMinutes(minutes int) string {
	switch {
	case minutes < 60:
		return fmt.Sprintf("%dm", minutes)
	case minutes < 24*60:
		return fmt.Sprintf("%dh %02dm", minutes/60, minutes%60)
	default:
		return fmt.Sprintf("%dd %dh", minutes/(24*60), minutes%(24*60)/60)
	}
}

// Truncate shortens s to max runes, ending with "...".
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
