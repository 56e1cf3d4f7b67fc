package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"forex-analyzer/internal/derive"
	"forex-analyzer/internal/errors"
	"forex-analyzer/internal/logging"
	"forex-analyzer/internal/models"
)

// Options configures a Processor.
type Options struct {
	DefaultCurrency string
	DefaultLeverage float64
	ContractSize    float64
	MaxFileSize     int64 // bytes, 0 disables the check
}

// DefaultOptions returns the standard processing options.
func DefaultOptions() Options {
	return Options{
		DefaultCurrency: "USD",
		DefaultLeverage: 100,
		ContractSize:    100000,
		MaxFileSize:     50 << 20,
	}
}

// Result is the outcome of processing one export.
type Result struct {
	Dataset  *models.TradingDataset
	Source   models.Source
	Mapping  Mapping
	RowsRead int
	Dropped  map[string]int
	Warnings []string
}

// DroppedTotal returns the number of rows discarded during cleaning.
func (r *Result) DroppedTotal() int {
	n := 0
	for _, c := range r.Dropped {
		n += c
	}
	return n
}

// Processor turns raw export bytes into a canonical dataset.
type Processor struct {
	normalizers *Normalizers
	opts        Options
	logger      zerolog.Logger
}

// NewProcessor creates a processor. A nil registry uses DefaultNormalizers.
func NewProcessor(normalizers *Normalizers, opts Options, logger zerolog.Logger) *Processor {
	if normalizers == nil {
		normalizers = DefaultNormalizers()
	}
	return &Processor{
		normalizers: normalizers,
		opts:        opts,
		logger:      logging.WithOperation(logger, "ingest"),
	}
}

// Normalizers returns the registry consulted during detection.
func (p *Processor) Normalizers() *Normalizers {
	return p.normalizers
}

// Process reads, normalizes, cleans and enriches one export file. JSON
// files are taken as an already-canonical dataset.
func (p *Processor) Process(ctx context.Context, filename string, data []byte, declared models.Source) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.opts.MaxFileSize > 0 && int64(len(data)) > p.opts.MaxFileSize {
		return nil, errors.NewParseError(filename, 0, "", fmt.Errorf("file is %d bytes, limit is %d", len(data), p.opts.MaxFileSize))
	}

	format, err := FormatOf(filename)
	if err != nil {
		return nil, err
	}
	if format == FormatJSON {
		return p.processJSON(filename, data)
	}

	table, err := ReadTable(filename, data)
	if err != nil {
		return nil, err
	}
	p.logger.Debug().Str("file", filename).Int("rows", len(table.Rows)).Strs("headers", table.Headers).Msg("Table loaded")

	norm, err := Normalize(table, declared, p.normalizers)
	if err != nil {
		return nil, err
	}

	trades, dropped := p.toTrades(norm)
	res := &Result{
		Source:   norm.Source,
		Mapping:  norm.Mapping,
		RowsRead: len(table.Rows),
		Dropped:  dropped,
	}
	for _, reason := range sortedKeys(dropped) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("dropped %d row(s): %s", dropped[reason], reason))
	}
	if len(trades) == 0 {
		return nil, errors.Wrapf(errors.ErrNoTrades, "%s: no valid trades after cleaning", filename)
	}

	res.Dataset = &models.TradingDataset{
		Trades:   trades,
		Metadata: p.extractMetadata(trades, norm.Source, filename),
	}

	logging.LogIngest(p.logger, filename, string(norm.Source), res.RowsRead, len(trades))
	if res.DroppedTotal() > 0 {
		p.logger.Warn().Int("dropped", res.DroppedTotal()).Msg("Removed invalid trades")
	}
	return res, nil
}

func (p *Processor) processJSON(filename string, data []byte) (*Result, error) {
	var ds models.TradingDataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, errors.NewParseError(filename, 0, "", err)
	}
	derive.ApplyAll(ds.Trades)
	ds.ID = ""
	source := models.SourceGeneric
	if ds.Metadata != nil {
		if ds.Metadata.Filename == "" {
			ds.Metadata.Filename = filename
		}
		if s := models.ParseSource(ds.Metadata.Source); s != models.SourceAuto {
			source = s
		}
	}
	logging.LogIngest(p.logger, filename, "json", len(ds.Trades), len(ds.Trades))
	return &Result{
		Dataset:  &ds,
		Source:   source,
		RowsRead: len(ds.Trades),
		Dropped:  map[string]int{},
	}, nil
}

const (
	dropMissingTicket = "missing ticket"
	dropOpenTime      = "missing or unparseable open time"
	dropType          = "invalid trade type"
	dropSize          = "missing or non-positive size"
	dropSymbol        = "missing symbol"
	dropOpenPrice     = "missing or non-positive open price"
	dropProfit        = "missing or unparseable profit"
)

// toTrades coerces records and drops rows that cannot form a valid trade.
// The result is sorted by open time.
func (p *Processor) toTrades(norm *Normalized) ([]models.Trade, map[string]int) {
	dropped := make(map[string]int)
	trades := make([]models.Trade, 0, len(norm.Records))
	c := norm.Coercion

	for _, rec := range norm.Records {
		t, reason := p.coerce(rec, c, norm.RawDates)
		if reason != "" {
			dropped[reason]++
			continue
		}
		p.estimateClosePrice(&t)
		derive.Apply(&t)
		trades = append(trades, t)
	}

	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].OpenTime.Before(trades[j].OpenTime)
	})
	return trades, dropped
}

func (p *Processor) coerce(rec Record, c Coercion, rawDates bool) (models.Trade, string) {
	var t models.Trade

	t.Ticket = normalizeTicket(rec.First(FieldTicket))
	if t.Ticket == "" {
		return t, dropMissingTicket
	}

	open, ok := ParseTime(rec.First(FieldOpenTime), c.DayFirst, rawDates)
	if !ok {
		return t, dropOpenTime
	}
	t.OpenTime = open

	types := c.Types
	if types == nil {
		types = MetaTraderTypes
	}
	typ, ok := types.Lookup(rec.First(FieldType))
	if !ok {
		return t, dropType
	}
	t.Type = typ

	size, ok := ParseNumber(rec.First(FieldSize))
	if !ok || size <= 0 {
		return t, dropSize
	}
	t.Size = size

	t.Symbol = strings.ToUpper(strings.TrimSpace(rec.First(FieldSymbol)))
	if t.Symbol == "" {
		return t, dropSymbol
	}

	openPrice, ok := ParseNumber(rec.First(FieldOpenPrice))
	if !ok || openPrice <= 0 {
		return t, dropOpenPrice
	}
	t.OpenPrice = openPrice

	profit, ok := sumNumbers(rec[FieldProfit])
	if !ok && c.ProfitFallback != "" {
		profit, ok = sumNumbers(rec[c.ProfitFallback])
	}
	if !ok {
		return t, dropProfit
	}
	t.Profit = profit

	if ct, ok := ParseTime(rec.First(FieldCloseTime), c.DayFirst, rawDates); ok {
		t.CloseTime = &ct
	}
	if cp, ok := ParseNumber(rec.First(FieldClosePrice)); ok && cp > 0 {
		t.ClosePrice = &cp
	}
	if sl, ok := ParseNumber(rec.First(FieldStopLoss)); ok && sl != 0 {
		t.StopLoss = &sl
	}
	if tp, ok := ParseNumber(rec.First(FieldTakeProfit)); ok && tp != 0 {
		t.TakeProfit = &tp
	}
	t.Commission, _ = sumNumbers(rec[FieldCommission])
	t.Swap, _ = sumNumbers(rec[FieldSwap])

	return t, ""
}

// estimateClosePrice fills a missing close price on a closed trade from its
// profit, assuming one standard contract per lot and no currency conversion.
func (p *Processor) estimateClosePrice(t *models.Trade) {
	if t.CloseTime == nil || t.ClosePrice != nil || t.Profit == 0 || t.Size == 0 {
		return
	}
	contract := p.opts.ContractSize
	if contract <= 0 {
		contract = 100000
	}
	move := t.Profit / (t.Size * contract)
	cp := t.OpenPrice + move
	if t.Type == models.Sell {
		cp = t.OpenPrice - move
	}
	if cp > 0 {
		t.ClosePrice = &cp
	}
}

func (p *Processor) extractMetadata(trades []models.Trade, source models.Source, filename string) *models.DatasetMetadata {
	md := &models.DatasetMetadata{
		Source:      string(source),
		Filename:    filename,
		Account:     "unknown",
		Currency:    p.opts.DefaultCurrency,
		Leverage:    p.opts.DefaultLeverage,
		TotalTrades: len(trades),
	}
	if md.Currency == "" {
		md.Currency = "USD"
	}
	if md.Leverage <= 0 {
		md.Leverage = 100
	}

	hasUSD, hasEUR := false, false
	for i := range trades {
		hasUSD = hasUSD || strings.Contains(trades[i].Symbol, "USD")
		hasEUR = hasEUR || strings.Contains(trades[i].Symbol, "EUR")
	}
	switch {
	case hasUSD:
		md.Currency = "USD"
	case hasEUR:
		md.Currency = "EUR"
	}

	md.DateRange = DateRangeOf(trades)
	return md
}

// DateRangeOf returns min open time to max close time, or to max open time
// when no trade is closed. Nil for no trades.
func DateRangeOf(trades []models.Trade) *models.DateRange {
	if len(trades) == 0 {
		return nil
	}
	var start, maxOpen, maxClose time.Time
	for i := range trades {
		t := &trades[i]
		if start.IsZero() || t.OpenTime.Before(start) {
			start = t.OpenTime
		}
		if t.OpenTime.After(maxOpen) {
			maxOpen = t.OpenTime
		}
		if t.CloseTime != nil && t.CloseTime.After(maxClose) {
			maxClose = *t.CloseTime
		}
	}
	end := maxClose
	if end.IsZero() {
		end = maxOpen
	}
	return &models.DateRange{Start: start, End: end}
}

// normalizeTicket strips the ".0" that spreadsheets add to integer ids.
func normalizeTicket(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, ".0") && strings.Trim(s[:len(s)-2], "0123456789") == "" {
		return s[:len(s)-2]
	}
	return s
}

func sumNumbers(cells []string) (float64, bool) {
	var sum float64
	found := false
	for _, c := range cells {
		if v, ok := ParseNumber(c); ok && !math.IsNaN(v) {
			sum += v
			found = true
		}
	}
	return sum, found
}

func sortedKeys(m map[string]int) []string {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
