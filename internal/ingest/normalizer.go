package ingest

import (
	"sort"
	"strings"
	"unicode"

	"forex-analyzer/internal/errors"
	"forex-analyzer/internal/models"
	"forex-analyzer/internal/registry"
)

// Field is a canonical trade field name.
type Field string

const (
	FieldTicket     Field = "ticket"
	FieldOpenTime   Field = "open_time"
	FieldCloseTime  Field = "close_time"
	FieldType       Field = "type"
	FieldSize       Field = "size"
	FieldSymbol     Field = "symbol"
	FieldOpenPrice  Field = "open_price"
	FieldClosePrice Field = "close_price"
	FieldStopLoss   Field = "stop_loss"
	FieldTakeProfit Field = "take_profit"
	FieldCommission Field = "commission"
	FieldSwap       Field = "swap"
	FieldProfit     Field = "profit"
	FieldNetProfit  Field = "net_profit"
)

// RequiredFields must be mapped for a parse attempt to succeed.
var RequiredFields = []Field{
	FieldTicket, FieldOpenTime, FieldType, FieldSize, FieldSymbol, FieldOpenPrice, FieldProfit,
}

// MinDetectionScore is the number of indicator headers a platform must
// match to be chosen by auto-detection.
const MinDetectionScore = 3

// Mapping assigns export headers to canonical fields. Several headers may
// feed one numeric field (MT4 Taxes and Swap); their values are summed.
type Mapping map[string]Field

// Headers returns the headers mapped to f, in table order.
func (m Mapping) Headers(f Field, order []string) []string {
	var out []string
	for _, h := range order {
		if m[h] == f {
			out = append(out, h)
		}
	}
	return out
}

func (m Mapping) has(f Field) bool {
	for _, v := range m {
		if v == f {
			return true
		}
	}
	return false
}

// Coercion holds platform-specific parsing conventions.
type Coercion struct {
	DayFirst bool
	Types    TypeSynonyms
	// ProfitFallback fills a missing profit cell from this field.
	ProfitFallback Field
}

// Normalizer maps one platform's export layout onto canonical fields.
// Alternate implementations can be registered with a Normalizers registry.
type Normalizer interface {
	// Source names the platform.
	Source() models.Source
	// Score counts how many of the platform's indicator headers are present.
	Score(headers []string) int
	// Map assigns headers to fields.
	Map(headers []string) Mapping
	// Coercion returns the platform's parsing conventions.
	Coercion() Coercion
}

// Record is one canonical row: the raw cell values for each mapped field.
type Record map[Field][]string

// First returns the first non-empty value for f.
func (r Record) First(f Field) string {
	for _, v := range r[f] {
		if v != "" {
			return v
		}
	}
	return ""
}

// Normalized is the output of Normalize.
type Normalized struct {
	Source   models.Source
	Mapping  Mapping
	Records  []Record
	Coercion Coercion
	RawDates bool
}

// Normalizers is the set of format normalizers consulted by Normalize, in
// detection priority order.
type Normalizers = registry.Registry[Normalizer]

// DefaultNormalizers returns the built-in normalizers: MT5, MT4, cTrader.
// Generic fuzzy mapping is the fallback and is not registered.
func DefaultNormalizers() *Normalizers {
	r := registry.New[Normalizer]()
	r.MustRegister(string(models.SourceMT5), NewMT5())
	r.MustRegister(string(models.SourceMT4), NewMT4())
	r.MustRegister(string(models.SourceCTrader), NewCTrader())
	return r
}

// Normalize maps a table onto canonical records. A declared source that is
// registered is applied directly; otherwise the source is detected from the
// headers, falling back to generic fuzzy mapping.
func Normalize(t *Table, declared models.Source, normalizers *Normalizers) (*Normalized, error) {
	if normalizers == nil {
		normalizers = DefaultNormalizers()
	}

	var n Normalizer
	if declared != models.SourceAuto && declared != models.SourceGeneric {
		n, _ = normalizers.Get(string(declared))
	}
	if n == nil && declared != models.SourceGeneric {
		n = Detect(t.Headers, normalizers)
	}
	if n == nil {
		n = Generic{}
	}

	mapping := n.Map(t.Headers)
	if missing := missingFields(mapping); len(missing) > 0 {
		return nil, errors.NewSchemaError(string(n.Source()), missing)
	}

	out := &Normalized{
		Source:   n.Source(),
		Mapping:  mapping,
		Coercion: n.Coercion(),
		RawDates: t.RawDates,
		Records:  make([]Record, 0, len(t.Rows)),
	}
	for i := range t.Rows {
		rec := make(Record, len(mapping))
		for j, h := range t.Headers {
			if f, ok := mapping[h]; ok {
				rec[f] = append(rec[f], t.Cell(i, j))
			}
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

// Detect returns the registered normalizer whose indicator headers best
// match, or nil when none reaches MinDetectionScore. Ties go to the earlier
// registration.
func Detect(headers []string, normalizers *Normalizers) Normalizer {
	var best Normalizer
	bestScore := 0
	for _, n := range normalizers.All() {
		if s := n.Score(headers); s > bestScore {
			best, bestScore = n, s
		}
	}
	if bestScore < MinDetectionScore {
		return nil
	}
	return best
}

func missingFields(m Mapping) []string {
	var missing []string
	for _, f := range RequiredFields {
		if !m.has(f) {
			missing = append(missing, string(f))
		}
	}
	sort.Strings(missing)
	return missing
}

// exactNormalizer applies a fixed header table with case-sensitive matches.
type exactNormalizer struct {
	source     models.Source
	columns    map[string]Field
	indicators []string
	coercion   Coercion
}

func (n *exactNormalizer) Source() models.Source { return n.source }
func (n *exactNormalizer) Coercion() Coercion    { return n.coercion }

func (n *exactNormalizer) Score(headers []string) int {
	return countPresent(headers, n.indicators)
}

func (n *exactNormalizer) Map(headers []string) Mapping {
	m := make(Mapping)
	for _, h := range headers {
		if f, ok := n.columns[h]; ok {
			m[h] = f
		}
	}
	return m
}

// NewMT5 returns the MetaTrader 5 history normalizer.
func NewMT5() Normalizer {
	return &exactNormalizer{
		source: models.SourceMT5,
		columns: map[string]Field{
			"Ticket":      FieldTicket,
			"Open Time":   FieldOpenTime,
			"Type":        FieldType,
			"Size":        FieldSize,
			"Symbol":      FieldSymbol,
			"Price":       FieldOpenPrice,
			"S/L":         FieldStopLoss,
			"T/P":         FieldTakeProfit,
			"Close Time":  FieldCloseTime,
			"Close Price": FieldClosePrice,
			"Commission":  FieldCommission,
			"Swap":        FieldSwap,
			"Profit":      FieldProfit,
		},
		indicators: []string{"Ticket", "Open Time", "Close Time", "Symbol", "Type"},
		coercion:   Coercion{Types: MetaTraderTypes},
	}
}

// NewMT4 returns the MetaTrader 4 statement normalizer. MT4 statements
// repeat Time and Price for the closing leg; the table reader suffixes the
// repeats with ".1".
func NewMT4() Normalizer {
	return &exactNormalizer{
		source: models.SourceMT4,
		columns: map[string]Field{
			"Order":      FieldTicket,
			"Time":       FieldOpenTime,
			"Type":       FieldType,
			"Size":       FieldSize,
			"Item":       FieldSymbol,
			"Price":      FieldOpenPrice,
			"S / L":      FieldStopLoss,
			"T / P":      FieldTakeProfit,
			"Time.1":     FieldCloseTime,
			"Price.1":    FieldClosePrice,
			"Commission": FieldCommission,
			"Taxes":      FieldSwap,
			"Swap":       FieldSwap,
			"Profit":     FieldProfit,
		},
		indicators: []string{"Order", "Time", "Item", "Type"},
		coercion:   Coercion{Types: MetaTraderTypes},
	}
}

func countPresent(headers, indicators []string) int {
	present := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		present[h] = struct{}{}
	}
	n := 0
	for _, ind := range indicators {
		if _, ok := present[ind]; ok {
			n++
		}
	}
	return n
}

// Generic maps unknown layouts with keyword rules.
type Generic struct{}

func (Generic) Source() models.Source     { return models.SourceGeneric }
func (Generic) Score(headers []string) int { return 0 }
func (Generic) Coercion() Coercion {
	return Coercion{Types: MetaTraderTypes}
}

func (Generic) Map(headers []string) Mapping {
	return fuzzyMap(headers, genericRules, nil)
}

// keywordRule assigns a header to Field when match accepts its lowercased form.
type keywordRule struct {
	field Field
	match func(h string) bool
}

func anyOf(words ...string) func(string) bool {
	return func(h string) bool {
		for _, w := range words {
			if strings.Contains(h, w) {
				return true
			}
		}
		return false
	}
}

func exactly(words ...string) func(string) bool {
	return func(h string) bool {
		for _, w := range words {
			if h == w {
				return true
			}
		}
		return false
	}
}

// token matches words that appear as a whole token, so "id" accepts
// "order id" and "position_id" but not "side" or "bid".
func token(words ...string) func(string) bool {
	return func(h string) bool {
		fields := strings.FieldsFunc(h, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, f := range fields {
			for _, w := range words {
				if f == w {
					return true
				}
			}
		}
		return false
	}
}

func either(a, b func(string) bool) func(string) bool {
	return func(h string) bool { return a(h) || b(h) }
}

func both(a, b func(string) bool) func(string) bool {
	return func(h string) bool { return a(h) && b(h) }
}

var genericRules = []keywordRule{
	{FieldTicket, either(anyOf("ticket", "order"), token("id"))},
	{FieldOpenTime, both(anyOf("open", "start"), anyOf("time", "date"))},
	{FieldCloseTime, both(anyOf("close", "end"), anyOf("time", "date"))},
	{FieldType, exactly("type", "direction", "side")},
	{FieldSize, anyOf("size", "volume", "lot")},
	{FieldSymbol, anyOf("symbol", "pair", "instrument")},
	{FieldOpenPrice, both(anyOf("open"), anyOf("price"))},
	{FieldClosePrice, both(anyOf("close"), anyOf("price"))},
	{FieldProfit, anyOf("profit", "pnl", "p&l")},
	{FieldCommission, anyOf("commission", "fee")},
	{FieldSwap, exactly("swap", "rollover")},
	{FieldStopLoss, anyOf("sl", "stop")},
	{FieldTakeProfit, anyOf("tp", "take")},
}

// canonicalName normalizes a header for exact canonical-name matching.
func canonicalName(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "_")
	return strings.ReplaceAll(h, "-", "_")
}

// fuzzyMap maps headers with ordered keyword rules. Headers whose name is
// already a canonical field name are claimed first. Every other header is
// decided by the first rule that matches it: the header takes that field if
// it is still unclaimed and stays unmapped otherwise, so each field is
// claimed at most once. Headers already present in seed are skipped.
func fuzzyMap(headers []string, rules []keywordRule, seed Mapping) Mapping {
	m := make(Mapping, len(headers))
	claimed := make(map[Field]bool)
	for h, f := range seed {
		m[h] = f
		claimed[f] = true
	}

	known := make(map[Field]bool, len(rules))
	for _, r := range rules {
		known[r.field] = true
	}
	for _, h := range headers {
		if _, done := m[h]; done {
			continue
		}
		f := Field(canonicalName(h))
		if known[f] && !claimed[f] {
			m[h] = f
			claimed[f] = true
		}
	}

	for _, h := range headers {
		if _, done := m[h]; done {
			continue
		}
		lower := strings.ToLower(strings.TrimSpace(h))
		for _, r := range rules {
			if !r.match(lower) {
				continue
			}
			if !claimed[r.field] {
				m[h] = r.field
				claimed[r.field] = true
			}
			break
		}
	}
	return m
}
