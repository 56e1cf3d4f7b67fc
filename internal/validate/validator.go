// Package validate checks canonical datasets for structural, per-trade,
// metadata and consistency problems and scores their quality.
package validate

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"

	"forex-analyzer/internal/config"
	"forex-analyzer/internal/errors"
	"forex-analyzer/internal/models"
)

// Result is the outcome of validating one dataset. Warnings never affect
// IsValid.
type Result struct {
	IsValid  bool     `json:"is_valid" yaml:"is_valid"`
	Errors   []string `json:"errors" yaml:"errors"`
	Warnings []string `json:"warnings" yaml:"warnings"`

	issues []error
}

// Err returns the errors as a ValidationError, or nil when the dataset is valid.
func (r *Result) Err() error {
	return errors.NewValidationError(r.issues...)
}

func (r *Result) fail(trade int, field string, value interface{}, format string, args ...interface{}) {
	fe := errors.NewFieldError(trade, field, value, fmt.Sprintf(format, args...))
	r.issues = append(r.issues, fe)
	r.Errors = append(r.Errors, fe.Error())
}

func (r *Result) warn(trade int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if trade > 0 {
		msg = fmt.Sprintf("Trade %d: %s", trade, msg)
	}
	r.Warnings = append(r.Warnings, msg)
}

// Validator applies the dataset rules with configurable thresholds.
type Validator struct {
	cfg     config.ValidationConfig
	structs *validator.Validate
	now     func() time.Time
}

// New creates a validator.
func New(cfg config.ValidationConfig) *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{cfg: cfg, structs: v, now: time.Now}
}

// Validate runs every rule and reports all violations. Structural failures
// stop validation before the per-trade checks.
func (v *Validator) Validate(ds *models.TradingDataset) *Result {
	res := &Result{Errors: []string{}, Warnings: []string{}}

	switch {
	case ds == nil || ds.Trades == nil:
		res.fail(0, "trades", nil, "Missing 'trades' field")
	case len(ds.Trades) == 0:
		res.fail(0, "trades", nil, "No trades found in data")
	}
	if ds == nil || ds.Metadata == nil {
		res.fail(0, "metadata", nil, "Missing 'metadata' field")
	}
	if len(res.Errors) > 0 {
		return res
	}

	for i := range ds.Trades {
		v.checkTrade(res, i+1, &ds.Trades[i])
	}
	v.checkMetadata(res, ds.Metadata)
	v.checkConsistency(res, ds)

	res.IsValid = len(res.Errors) == 0
	return res
}

var requiredTradeFields = []string{"ticket", "open_time", "type", "size", "symbol", "open_price", "profit"}

func missingTradeFields(t *models.Trade) []string {
	var missing []string
	for _, f := range requiredTradeFields {
		absent := false
		switch f {
		case "ticket":
			absent = strings.TrimSpace(t.Ticket) == ""
		case "open_time":
			absent = t.OpenTime.IsZero()
		case "type":
			absent = t.Type == ""
		case "size":
			absent = math.IsNaN(t.Size)
		case "symbol":
			absent = strings.TrimSpace(t.Symbol) == ""
		case "open_price":
			absent = math.IsNaN(t.OpenPrice)
		case "profit":
			absent = math.IsNaN(t.Profit)
		}
		if absent {
			missing = append(missing, f)
		}
	}
	return missing
}

func (v *Validator) checkTrade(res *Result, n int, t *models.Trade) {
	for _, f := range missingTradeFields(t) {
		res.fail(n, f, nil, "Missing required field '%s'", f)
	}

	if t.Type != "" && !t.Type.Valid() {
		res.fail(n, "type", t.Type, "Invalid trade type '%s'. Must be 'buy' or 'sell'", t.Type)
	}

	if !math.IsNaN(t.Size) {
		switch {
		case math.IsInf(t.Size, 0):
			res.fail(n, "size", t.Size, "Trade size must be numeric")
		case t.Size < v.cfg.MinTradeSize:
			res.fail(n, "size", t.Size, "Trade size too small (%s)", num(t.Size))
		case t.Size > v.cfg.MaxTradeSize:
			res.warn(n, "Very large trade size (%s)", num(t.Size))
		}
	}

	prices := []struct {
		field string
		value *float64
	}{
		{"open_price", nanToNil(t.OpenPrice)},
		{"close_price", t.ClosePrice},
		{"stop_loss", t.StopLoss},
		{"take_profit", t.TakeProfit},
	}
	for _, p := range prices {
		if p.value == nil {
			continue
		}
		switch x := *p.value; {
		case math.IsInf(x, 0) || math.IsNaN(x):
			res.fail(n, p.field, x, "%s must be numeric", p.field)
		case x < v.cfg.MinPrice:
			res.fail(n, p.field, x, "%s too low (%s)", p.field, num(x))
		case x > v.cfg.MaxPrice:
			res.warn(n, "Very high %s (%s)", p.field, num(x))
		}
	}

	if !t.OpenTime.IsZero() && t.OpenTime.After(v.now()) {
		res.warn(n, "Open time is in the future")
	}
	if t.CloseTime != nil && !t.OpenTime.IsZero() && t.CloseTime.Before(t.OpenTime) {
		res.fail(n, "close_time", *t.CloseTime, "Close time before open time")
	}

	if expected, ok := v.expectedProfit(t); ok {
		actual := t.Profit
		if math.IsNaN(actual) {
			actual = 0
		}
		tolerance := math.Max(math.Abs(expected*v.cfg.ProfitTolerancePct), v.cfg.ProfitToleranceMin)
		if math.Abs(actual-expected) > tolerance {
			res.warn(n, "Profit inconsistency. Expected ~%.2f, got %.2f", expected, actual)
		}
	}

	if t.Symbol != "" {
		symbol := strings.ToUpper(t.Symbol)
		if l := len([]rune(symbol)); l < 6 || l > 8 {
			res.warn(n, "Unusual symbol format '%s'", symbol)
		}
		if !isAlpha(strings.NewReplacer("/", "", ".", "").Replace(symbol)) {
			res.warn(n, "Symbol contains non-alphabetic characters")
		}
	}
}

// expectedProfit recomputes profit with a fixed contract size and a pip value
// quoted in the close price. Cross-currency conversion is ignored.
func (v *Validator) expectedProfit(t *models.Trade) (float64, bool) {
	if math.IsNaN(t.OpenPrice) || t.ClosePrice == nil || math.IsNaN(t.Size) || !t.Type.Valid() || *t.ClosePrice == 0 {
		return 0, false
	}
	pipSize := 0.0001
	if strings.Contains(strings.ToUpper(t.Symbol), "JPY") {
		pipSize = 0.01
	}
	closePrice := *t.ClosePrice
	pipValue := (pipSize / closePrice) * v.cfg.ContractSize * t.Size

	pips := (closePrice - t.OpenPrice) / pipSize
	if t.Type == models.Sell {
		pips = -pips
	}
	return pips * pipValue, true
}

func (v *Validator) checkMetadata(res *Result, md *models.DatasetMetadata) {
	if err := v.structs.Struct(md); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				res.fail(0, fe.Field(), fe.Value(), "%s", metadataMessage(fe))
			}
		} else {
			res.fail(0, "metadata", nil, "%v", err)
		}
	}
	if md.DateRange != nil && md.DateRange.Start.After(md.DateRange.End) {
		res.fail(0, "date_range", *md.DateRange, "date_range start is after end")
	}
}

func metadataMessage(fe validator.FieldError) string {
	switch {
	case fe.Tag() == "required":
		return fmt.Sprintf("Missing metadata field '%s'", fe.Field())
	case fe.Field() == "total_trades":
		return "total_trades cannot be negative"
	case fe.Field() == "leverage":
		return "leverage must be positive"
	default:
		return fmt.Sprintf("Metadata field '%s' failed '%s'", fe.Field(), fe.Tag())
	}
}

func (v *Validator) checkConsistency(res *Result, ds *models.TradingDataset) {
	md := ds.Metadata
	if md.TotalTrades != len(ds.Trades) {
		res.fail(0, "total_trades", md.TotalTrades,
			"Metadata total_trades (%d) doesn't match actual trade count (%d)", md.TotalTrades, len(ds.Trades))
	}

	if md.DateRange == nil {
		return
	}
	var start, end time.Time
	for i := range ds.Trades {
		t := &ds.Trades[i]
		for _, ts := range []*time.Time{&t.OpenTime, t.CloseTime} {
			if ts == nil || ts.IsZero() {
				continue
			}
			if start.IsZero() || ts.Before(start) {
				start = *ts
			}
			if ts.After(end) {
				end = *ts
			}
		}
	}
	if start.IsZero() {
		return
	}
	if absDuration(start.Sub(md.DateRange.Start)) > v.cfg.DateTolerance {
		res.fail(0, "date_range", md.DateRange.Start, "Metadata date range start doesn't match actual trade dates")
	}
	if absDuration(end.Sub(md.DateRange.End)) > v.cfg.DateTolerance {
		res.fail(0, "date_range", md.DateRange.End, "Metadata date range end doesn't match actual trade dates")
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func nanToNil(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
