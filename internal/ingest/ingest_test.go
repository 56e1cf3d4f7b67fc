package ingest

import (
	"bytes"
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"forex-analyzer/internal/config"
	"forex-analyzer/internal/errors"
	"forex-analyzer/internal/models"
	"forex-analyzer/internal/validate"
)

const mt5CSV = `Ticket,Open Time,Type,Size,Symbol,Price,S/L,T/P,Close Time,Close Price,Commission,Swap,Profit
1001,2024.01.02 10:00:00,buy,1.00,EURUSD,1.1000,1.0950,1.1100,2024.01.02 12:00:00,1.1050,-7,0,50
1002,2024.01.02 14:00:00,sell,1.00,EURUSD,1.1050,0,0,2024.01.02 15:30:00,1.1100,-7,-1.2,-50
1003,2024.01.03 09:15:00,buy,1.00,USDJPY,110.00,,,2024.01.03 10:15:00,110.50,-7,0,45
1004,2024.01.03 11:00:00,balance,0,,0,,,,,,,1000
`

const mt4CSV = `Order,Time,Type,Size,Item,Price,S / L,T / P,Time,Price,Commission,Taxes,Swap,Profit
55,2024.02.01 08:00,buy,0.50,gbpusd,1.2700,0.0000,0.0000,2024.02.01 09:00,1.2720,0.00,-0.50,-1.00,100.00
56,2024.01.31 08:00,op_sell,0.50,gbpusd,1.2750,0.0000,0.0000,2024.01.31 12:00,1.2760,0.00,0.00,0.00,-50.00
`

const ctraderCSV = `Position ID,Symbol,Side,Volume,Entry Price,Exit Price,Entry Time,Exit Time,Gross P&L,Commission,Swap,Net P&L
9001,EURUSD,B,10000,1.1000,1.1010,02/01/2024 10:00:00,02/01/2024 11:00:00,10,-0.5,0,9.5
9002,EURUSD,S,10000,1.1010,1.1000,03/01/2024 10:00:00,03/01/2024 12:00:00,,-0.5,0,9.5
`

const genericCSV = `id,symbol,side,lots,open_time,close_time,open price,close price,pnl,fee
a1,AUDUSD,long,0.3,2024-03-01 10:00:00,2024-03-01 11:00:00,0.6500,0.6510,30,-1
a2,AUDUSD,short,0.3,2024-03-02 10:00:00,,0.6520,,0,-1
`

func newTestProcessor() *Processor {
	return NewProcessor(nil, DefaultOptions(), zerolog.Nop())
}

func TestProcessMT5(t *testing.T) {
	res, err := newTestProcessor().Process(context.Background(), "history.csv", []byte(mt5CSV), models.SourceAuto)
	require.NoError(t, err)

	assert.Equal(t, models.SourceMT5, res.Source)
	assert.Equal(t, 4, res.RowsRead)
	assert.Equal(t, 1, res.DroppedTotal(), "balance row is not a trade")

	ds := res.Dataset
	require.Len(t, ds.Trades, 3)
	first := ds.Trades[0]
	assert.Equal(t, "1001", first.Ticket)
	assert.Equal(t, models.Buy, first.Type)
	require.NotNil(t, first.Pips)
	assert.Equal(t, 50.0, *first.Pips)
	require.NotNil(t, first.Duration)
	assert.Equal(t, 120, *first.Duration)
	require.NotNil(t, first.RiskRewardRatio)
	assert.InDelta(t, 2.0, *first.RiskRewardRatio, 1e-9)

	second := ds.Trades[1]
	assert.Nil(t, second.StopLoss, "zero stop loss means absent")
	assert.Nil(t, second.RiskRewardRatio)

	third := ds.Trades[2]
	require.NotNil(t, third.Pips)
	assert.Equal(t, 50.0, *third.Pips)

	md := ds.Metadata
	assert.Equal(t, "MT5", md.Source)
	assert.Equal(t, "unknown", md.Account)
	assert.Equal(t, "USD", md.Currency)
	assert.Equal(t, 100.0, md.Leverage)
	assert.Equal(t, 3, md.TotalTrades)
	assert.Equal(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), md.DateRange.Start)
	assert.Equal(t, time.Date(2024, 1, 3, 10, 15, 0, 0, time.UTC), md.DateRange.End)
}

func TestProcessMT4DuplicateHeaders(t *testing.T) {
	res, err := newTestProcessor().Process(context.Background(), "statement.csv", []byte(mt4CSV), models.SourceAuto)
	require.NoError(t, err)
	assert.Equal(t, models.SourceMT4, res.Source)

	trades := res.Dataset.Trades
	require.Len(t, trades, 2)
	// sorted by open time
	assert.Equal(t, "56", trades[0].Ticket)
	assert.Equal(t, models.Sell, trades[0].Type)
	assert.Equal(t, "GBPUSD", trades[1].Symbol)
	require.NotNil(t, trades[1].ClosePrice)
	assert.Equal(t, 1.272, *trades[1].ClosePrice)
	assert.InDelta(t, -1.5, trades[1].Swap, 1e-9, "taxes and swap are summed")
}

func TestProcessCTrader(t *testing.T) {
	res, err := newTestProcessor().Process(context.Background(), "ctrader.csv", []byte(ctraderCSV), models.SourceAuto)
	require.NoError(t, err)
	assert.Equal(t, models.SourceCTrader, res.Source)

	trades := res.Dataset.Trades
	require.Len(t, trades, 2)
	assert.Equal(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), trades[0].OpenTime, "day-first dates")
	assert.Equal(t, models.Buy, trades[0].Type)
	assert.Equal(t, models.Sell, trades[1].Type)
	assert.Equal(t, 9.5, trades[1].Profit, "net P&L fills missing gross")
}

func TestProcessGenericFuzzy(t *testing.T) {
	res, err := newTestProcessor().Process(context.Background(), "export.csv", []byte(genericCSV), models.SourceAuto)
	require.NoError(t, err)
	assert.Equal(t, models.SourceGeneric, res.Source)
	assert.Equal(t, FieldOpenPrice, res.Mapping["open price"])
	assert.Equal(t, FieldProfit, res.Mapping["pnl"])
	assert.Equal(t, FieldCommission, res.Mapping["fee"])

	trades := res.Dataset.Trades
	require.Len(t, trades, 2)
	assert.False(t, trades[1].IsClosed())
	assert.Nil(t, trades[1].Pips)
	assert.Equal(t, time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC), res.Dataset.Metadata.DateRange.End,
		"end is the latest close time whenever any trade is closed")
}

func TestNormalizeSchemaError(t *testing.T) {
	table := &Table{
		Headers: []string{"Ticket", "Open Time", "Close Time", "Symbol", "Type"},
		Rows:    [][]string{{"1", "2024.01.01 00:00", "", "EURUSD", "buy"}},
	}
	_, err := Normalize(table, models.SourceAuto, nil)
	require.Error(t, err)

	var serr *errors.SchemaError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "MT5", serr.Source)
	assert.Equal(t, []string{"open_price", "profit", "size"}, serr.Missing)
}

func TestDetectPriority(t *testing.T) {
	regs := DefaultNormalizers()

	// Type matches both MetaTrader layouts; MT5 wins on its own indicators.
	n := Detect([]string{"Ticket", "Open Time", "Close Time", "Symbol", "Type"}, regs)
	require.NotNil(t, n)
	assert.Equal(t, models.SourceMT5, n.Source())

	n = Detect([]string{"Ticket", "Open Time", "Type", "Order", "Time", "Item"}, regs)
	require.NotNil(t, n)
	assert.Equal(t, models.SourceMT4, n.Source(), "MT4 scores 4, MT5 scores 3")

	// Three matches each: the tie goes to MT5.
	n = Detect([]string{"Ticket", "Open Time", "Type", "Order", "Time"}, regs)
	require.NotNil(t, n)
	assert.Equal(t, models.SourceMT5, n.Source())

	assert.Nil(t, Detect([]string{"Ticket", "Type"}, regs))
}

func TestFuzzyMapClaimsOnce(t *testing.T) {
	m := Generic{}.Map([]string{"Order ID", "Trade ID", "Open Date", "Side", "Volume", "Pair", "Entry", "Take Profit", "Profit", "Stop"})
	assert.Equal(t, FieldTicket, m["Order ID"])
	_, mapped := m["Trade ID"]
	assert.False(t, mapped, "ticket is already claimed")
	assert.Equal(t, FieldOpenTime, m["Open Date"])
	assert.Equal(t, FieldType, m["Side"])
	assert.Equal(t, FieldProfit, m["Profit"])
	_, mapped = m["Take Profit"]
	assert.False(t, mapped, "the profit rule decides and profit is taken")
	assert.Equal(t, FieldStopLoss, m["Stop"])
}

func TestFuzzyMapFirstMatchDecides(t *testing.T) {
	m := Generic{}.Map([]string{"Ticket", "Order Date", "Open Date", "Close Date"})
	assert.Equal(t, FieldTicket, m["Ticket"])
	_, mapped := m["Order Date"]
	assert.False(t, mapped, "the ticket rule matches first, so the header does not fall through to open_time")
	assert.Equal(t, FieldOpenTime, m["Open Date"])
	assert.Equal(t, FieldCloseTime, m["Close Date"])
}

func TestFuzzyMapIDIsAWholeToken(t *testing.T) {
	m := Generic{}.Map([]string{"Side", "Bid", "Mid", "Symbol"})
	assert.Equal(t, FieldType, m["Side"])
	assert.Equal(t, FieldSymbol, m["Symbol"])
	for _, h := range []string{"Bid", "Mid"} {
		assert.NotEqual(t, FieldTicket, m[h], h)
	}

	m = Generic{}.Map([]string{"position_id", "Side"})
	assert.Equal(t, FieldTicket, m["position_id"])
	assert.Equal(t, FieldType, m["Side"])
}

func TestDeclaredSourceSkipsDetection(t *testing.T) {
	table, err := ReadCSV("x.csv", strings.NewReader(mt5CSV))
	require.NoError(t, err)

	_, err = Normalize(table, models.SourceMT4, nil)
	var serr *errors.SchemaError
	require.True(t, errors.As(err, &serr), "MT4 map cannot read an MT5 export")
	assert.Equal(t, "MT4", serr.Source)
}

func TestNormalizeIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("same bytes give same canonical rows", prop.ForAll(
		func(export string) bool {
			p := newTestProcessor()
			a, errA := p.Process(context.Background(), "f.csv", []byte(export), models.SourceAuto)
			b, errB := p.Process(context.Background(), "f.csv", []byte(export), models.SourceAuto)
			if (errA == nil) != (errB == nil) {
				return false
			}
			if errA != nil {
				return errA.Error() == errB.Error()
			}
			return reflect.DeepEqual(a.Dataset, b.Dataset) && reflect.DeepEqual(a.Mapping, b.Mapping)
		},
		gen.OneConstOf(mt5CSV, mt4CSV, ctraderCSV, genericCSV, "a,b\n1,2\n"),
	))

	properties.TestingRun(t)
}

func TestProcessXLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	rows := [][]interface{}{
		{"Ticket", "Open Time", "Type", "Size", "Symbol", "Price", "Close Time", "Close Price", "Profit"},
		{7001, "2024.05.06 07:30:00", "sell", 0.2, "EURGBP", 0.8600, "2024.05.06 08:00:00", 0.8590, 23.1},
		{7002, 45419.5, "buy", 0.2, "EURGBP", 0.8590, nil, nil, 0},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	res, err := newTestProcessor().Process(context.Background(), "history.xlsx", buf.Bytes(), models.SourceAuto)
	require.NoError(t, err)
	assert.Equal(t, models.SourceMT5, res.Source)
	require.Len(t, res.Dataset.Trades, 2)
	assert.Equal(t, "7001", res.Dataset.Trades[0].Ticket)
	assert.Equal(t, 2024, res.Dataset.Trades[1].OpenTime.Year(), "serial date converted")
	assert.Equal(t, "EUR", res.Dataset.Metadata.Currency)
}

func TestProcessJSONImport(t *testing.T) {
	body := `{"trades":[{"ticket":"1","open_time":"2024-01-02T10:00:00Z","close_time":"2024-01-02T11:00:00Z","type":"buy","size":1,"symbol":"EURUSD","open_price":1.1,"close_price":1.101,"profit":10}],
	"metadata":{"source":"MT5","account":"x","currency":"USD","leverage":100,"total_trades":1,"date_range":{"start":"2024-01-02T10:00:00Z","end":"2024-01-02T11:00:00Z"}}}`
	res, err := newTestProcessor().Process(context.Background(), "ds.json", []byte(body), models.SourceAuto)
	require.NoError(t, err)
	assert.Equal(t, models.SourceMT5, res.Source)
	require.Len(t, res.Dataset.Trades, 1)
	require.NotNil(t, res.Dataset.Trades[0].Pips)
	assert.InDelta(t, 10.0, *res.Dataset.Trades[0].Pips, 1e-9)
}

func TestProcessJSONIncompleteTrades(t *testing.T) {
	body := `{"trades":[
	{"ticket":"1","open_time":"2024-01-02T10:00:00Z","close_time":"2024-01-02T11:00:00Z","type":"buy","size":1,"symbol":"EURUSD","close_price":1.101,"stop_loss":1.09,"take_profit":1.12,"profit":10},
	{"ticket":"2","open_time":"2024-01-02T12:00:00Z","close_time":"2024-01-02T13:00:00Z","type":"sell","size":null,"symbol":"EURUSD","open_price":1.1,"close_price":1.099,"profit":null}],
	"metadata":{"source":"MT5","account":"x","currency":"USD","leverage":100,"total_trades":2,"date_range":{"start":"2024-01-02T10:00:00Z","end":"2024-01-02T13:00:00Z"}}}`

	res, err := newTestProcessor().Process(context.Background(), "partial.json", []byte(body), models.SourceAuto)
	require.NoError(t, err)
	require.Len(t, res.Dataset.Trades, 2)
	assert.Nil(t, res.Dataset.Trades[0].Pips)
	assert.Nil(t, res.Dataset.Trades[0].RiskRewardRatio)
	require.NotNil(t, res.Dataset.Trades[1].Pips)

	v := validate.New(config.Default().Validation).Validate(res.Dataset)
	assert.False(t, v.IsValid)
	assert.Contains(t, v.Errors, "Trade 1: Missing required field 'open_price'")
	assert.Contains(t, v.Errors, "Trade 2: Missing required field 'size'")
	assert.Contains(t, v.Errors, "Trade 2: Missing required field 'profit'")

	var fe *errors.FieldError
	require.True(t, errors.As(v.Err(), &fe))
	assert.Equal(t, 1, fe.Trade)
	assert.Equal(t, "open_price", fe.Field)
}

func TestProcessRejects(t *testing.T) {
	p := newTestProcessor()
	_, err := p.Process(context.Background(), "a.pdf", []byte("x"), models.SourceAuto)
	assert.True(t, errors.Is(err, errors.ErrUnsupportedFormat))

	only := "Ticket,Open Time,Type,Size,Symbol,Price,Profit\n1,2024.01.01 00:00,hold,1,EURUSD,1.1,5\n"
	_, err = p.Process(context.Background(), "a.csv", []byte(only), models.SourceMT5)
	assert.True(t, errors.Is(err, errors.ErrNoTrades))
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1.1050", 1.105, true},
		{"-7", -7, true},
		{"1,234.50", 1234.5, true},
		{"1.234,50", 1234.5, true},
		{"12,5", 12.5, true},
		{"$ 100", 100, true},
		{"(12.50)", -12.5, true},
		{"", 0, false},
		{"n/a", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseNumber(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.InDelta(t, tt.want, got, 1e-9, tt.in)
		}
	}
}

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	for _, s := range []string{"2024.01.02 10:00:00", "2024-01-02T10:00:00Z", "2024-01-02 10:00:00", "2024.01.02 10:00"} {
		got, ok := ParseTime(s, false, false)
		assert.True(t, ok, s)
		assert.Equal(t, want, got, s)
	}

	got, ok := ParseTime("02/01/2024 10:00:00", true, false)
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, ok = ParseTime("45000", false, false)
	assert.False(t, ok, "serials only accepted from spreadsheets")
	_, ok = ParseTime("garbage", false, true)
	assert.False(t, ok)
}

func TestDedupeHeaders(t *testing.T) {
	assert.Equal(t, []string{"Time", "Price", "Time.1", "Price.1", "Time.2"},
		dedupeHeaders([]string{"Time", "Price", "Time", "Price", " Time "}))
}
