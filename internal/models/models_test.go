package models

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRatioJSON(t *testing.T) {
	b, err := json.Marshal(map[string]Ratio{"pf": Inf, "nan": Ratio(math.NaN()), "x": 1.5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"pf":"inf","nan":null,"x":1.5}`, string(b))

	var back map[string]Ratio
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, back["pf"].IsInf())
	assert.True(t, math.IsNaN(float64(back["nan"])))
	assert.Equal(t, Ratio(1.5), back["x"])
}

func TestTradeJSONMissingRequiredNumbers(t *testing.T) {
	var tr Trade
	require.NoError(t, json.Unmarshal([]byte(`{"ticket":"1","type":"buy","symbol":"EURUSD","open_time":"2024-01-02T10:00:00Z"}`), &tr))

	assert.True(t, math.IsNaN(tr.Size))
	assert.True(t, math.IsNaN(tr.OpenPrice))
	assert.True(t, math.IsNaN(tr.Profit))
	assert.Nil(t, tr.CloseTime)
	assert.Equal(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), tr.OpenTime.UTC())

	b, err := json.Marshal(tr)
	require.NoError(t, err, "NaN fields must encode as null")
	assert.Contains(t, string(b), `"profit":null`)
}

func TestTradeJSONRoundTrip(t *testing.T) {
	open := time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)
	in := Trade{
		Ticket:     "42",
		OpenTime:   open,
		CloseTime:  Time(open.Add(90 * time.Minute)),
		Type:       Sell,
		Size:       0.5,
		Symbol:     "GBPUSD",
		OpenPrice:  1.2650,
		ClosePrice: Float(1.2600),
		Profit:     250,
		Duration:   func() *int { d := 90; return &d }(),
	}
	b, err := json.Marshal(in)
	require.NoError(t, err)

	var out Trade
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in.Ticket, out.Ticket)
	assert.True(t, in.OpenTime.Equal(out.OpenTime))
	assert.True(t, in.CloseTime.Equal(*out.CloseTime))
	assert.Equal(t, 1.26, *out.ClosePrice)
	assert.Equal(t, 90, *out.Duration)
	assert.Nil(t, out.StopLoss)
}

func TestParseSource(t *testing.T) {
	assert.Equal(t, SourceMT5, ParseSource("mt5"))
	assert.Equal(t, SourceMT4, ParseSource(" MT4 "))
	assert.Equal(t, SourceCTrader, ParseSource("cTrader"))
	assert.Equal(t, SourceAuto, ParseSource("whatever"))
}
