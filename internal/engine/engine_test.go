package engine

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forex-analyzer/internal/config"
	"forex-analyzer/internal/errors"
	"forex-analyzer/internal/insights"
	"forex-analyzer/internal/metrics"
	"forex-analyzer/internal/models"
	"forex-analyzer/internal/store"
)

// mt5Export renders n closed trades in the MT5 history layout.
func mt5Export(n int) []byte {
	var b strings.Builder
	b.WriteString("Ticket,Open Time,Type,Size,Symbol,Price,S/L,T/P,Close Time,Close Price,Commission,Swap,Profit\n")
	start := time.Date(2024, 1, 2, 6, 0, 0, 0, time.UTC)
	symbols := []string{"EURUSD", "GBPUSD", "AUDUSD"}
	profits := []float64{42.5, -18, 25, -30, 61, 12, -44, 8}
	for i := 0; i < n; i++ {
		open := start.Add(time.Duration(i) * 5 * time.Hour)
		closed := open.Add(time.Duration(20+i*3) * time.Minute)
		typ := "buy"
		if i%3 == 1 {
			typ = "sell"
		}
		fmt.Fprintf(&b, "%d,%s,%s,%.2f,%s,1.1000,0,0,%s,1.1010,-0.7,0,%.2f\n",
			5000+i, open.Format("2006.01.02 15:04:05"), typ, 0.1+float64(i%4)*0.1, symbols[i%3],
			closed.Format("2006.01.02 15:04:05"), profits[i%len(profits)])
	}
	return []byte(b.String())
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	cfg.Risk.MonteCarloSimulations = 500
	cfg.ML.NEstimators = 10
	e := New(cfg, st, zerolog.Nop(), opts...)
	t.Cleanup(e.Close)
	return e
}

func upload(t *testing.T, e *Engine, n int) string {
	t.Helper()
	res, err := e.Upload(context.Background(), "history.csv", mt5Export(n), models.SourceAuto)
	require.NoError(t, err)
	require.NotEmpty(t, res.DatasetID)
	return res.DatasetID
}

func TestUpload(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.Upload(context.Background(), "history.csv", mt5Export(8), models.SourceAuto)
	require.NoError(t, err)

	assert.Equal(t, models.SourceMT5, res.Source)
	assert.Equal(t, 8, res.TradeCount)
	assert.True(t, res.Validation.IsValid)
	require.NotNil(t, res.Summary)
	assert.Equal(t, 8, res.Summary.TotalTrades)
	assert.Equal(t, 5, res.Summary.WinningTrades)

	ds, err := e.Dataset(context.Background(), res.DatasetID)
	require.NoError(t, err)
	assert.Len(t, ds.Trades, 8)
	assert.Equal(t, "history.csv", ds.Metadata.Filename)

	list, err := e.Datasets(context.Background(), store.DatasetFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, res.DatasetID, list[0].ID)
}

func TestUploadRejectsInvalidDataset(t *testing.T) {
	e := newTestEngine(t)
	body := `{"trades":[{"ticket":"1","open_time":"2024-01-02T10:00:00Z","close_time":"2024-01-02T11:00:00Z","type":"buy","size":1,"symbol":"EURUSD","open_price":1.1,"close_price":1.101,"profit":10}],
	"metadata":{"source":"MT5","account":"x","currency":"USD","leverage":100,"total_trades":5,"date_range":{"start":"2024-01-02T10:00:00Z","end":"2024-01-02T11:00:00Z"}}}`

	res, err := e.Upload(context.Background(), "ds.json", []byte(body), models.SourceAuto)
	require.Error(t, err)
	var verr *errors.ValidationError
	assert.True(t, errors.As(err, &verr))
	require.NotNil(t, res)
	assert.False(t, res.Validation.IsValid)
	assert.Contains(t, strings.Join(res.Validation.Errors, "\n"), "total_trades")
	assert.Empty(t, res.DatasetID)

	list, err := e.Datasets(context.Background(), store.DatasetFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUploadReportsMissingPrices(t *testing.T) {
	e := newTestEngine(t)
	body := `{"trades":[{"ticket":"1","open_time":"2024-01-02T10:00:00Z","close_time":"2024-01-02T11:00:00Z","type":"buy","symbol":"EURUSD","close_price":1.101,"profit":10}],
	"metadata":{"source":"MT5","account":"x","currency":"USD","leverage":100,"total_trades":1,"date_range":{"start":"2024-01-02T10:00:00Z","end":"2024-01-02T11:00:00Z"}}}`

	res, err := e.Upload(context.Background(), "ds.json", []byte(body), models.SourceAuto)
	var verr *errors.ValidationError
	require.True(t, errors.As(err, &verr))
	require.NotNil(t, res)
	assert.Contains(t, res.Validation.Errors, "Trade 1: Missing required field 'size'")
	assert.Contains(t, res.Validation.Errors, "Trade 1: Missing required field 'open_price'")
	assert.Empty(t, res.DatasetID)
}

func TestUploadUnsupportedFormat(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Upload(context.Background(), "statement.pdf", []byte("%PDF"), models.SourceAuto)
	assert.ErrorIs(t, err, errors.ErrUnsupportedFormat)
}

func TestAnalyzePerformance(t *testing.T) {
	e := newTestEngine(t)
	id := upload(t, e, 8)

	res, err := e.Analyze(context.Background(), id, TypePerformance, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, res.Status)
	assert.Equal(t, id, res.DatasetID)
	assert.Equal(t, 8, res.Metadata["trade_count"])
	assert.Empty(t, res.Error)

	stored, err := e.Result(context.Background(), res.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, TypePerformance, stored.AnalysisType)
	data, ok := stored.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(8), data["total_trades"])
}

func TestAnalyzeUnknownType(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Analyze(context.Background(), "any", "astrology", nil)
	assert.ErrorIs(t, err, errors.ErrUnknownAnalysis)
}

func TestAnalyzeMissingDataset(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Analyze(context.Background(), "missing", TypePerformance, nil)
	assert.ErrorIs(t, err, errors.ErrDataNotFound)
}

func TestAnalyzeInsufficientDataIsAResult(t *testing.T) {
	e := newTestEngine(t)
	id := upload(t, e, 3)

	res, err := e.Analyze(context.Background(), id, TypeClustering, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInsufficientData, res.Status)
	assert.Contains(t, res.Error, "clustering")
	assert.Nil(t, res.Data)

	res, err = e.Analyze(context.Background(), id, TypeRiskAssessment, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInsufficientData, res.Status)
}

func TestAnalyzeBadParameterFails(t *testing.T) {
	e := newTestEngine(t)
	id := upload(t, e, 5)

	_, err := e.Analyze(context.Background(), id, TypeTimePatterns, Params{"granularity": "fortnight"})
	assert.Error(t, err)

	_, err = e.Analyze(context.Background(), id, TypeRiskMetrics, Params{"rolling_window": "wide"})
	assert.Error(t, err)
}

func TestAnalyzeCachesAndInvalidates(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	id := upload(t, e, 12)

	first, err := e.Analyze(ctx, id, TypeRiskMetrics, Params{"rolling_window": "5"})
	require.NoError(t, err)
	again, err := e.Analyze(ctx, id, TypeRiskMetrics, Params{"rolling_window": "5"})
	require.NoError(t, err)
	assert.Equal(t, first.AnalysisID, again.AnalysisID)

	other, err := e.Analyze(ctx, id, TypeRiskMetrics, Params{"rolling_window": "6"})
	require.NoError(t, err)
	assert.NotEqual(t, first.AnalysisID, other.AnalysisID)

	require.NoError(t, e.DeleteDataset(ctx, id))
	_, err = e.Analyze(ctx, id, TypeRiskMetrics, Params{"rolling_window": "5"})
	assert.ErrorIs(t, err, errors.ErrDataNotFound)

	results, err := e.Results(ctx, store.ResultFilter{DatasetID: id})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAnalyzeCacheDisabled(t *testing.T) {
	e := newTestEngine(t)
	e.cfg.Storage.CacheTTL = 0
	id := upload(t, e, 6)

	a, err := e.Analyze(context.Background(), id, TypePerformance, nil)
	require.NoError(t, err)
	b, err := e.Analyze(context.Background(), id, TypePerformance, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.AnalysisID, b.AnalysisID)
}

func TestComprehensivePartial(t *testing.T) {
	e := newTestEngine(t)
	id := upload(t, e, 3)

	res, err := e.Analyze(context.Background(), id, TypeComprehensive, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPartial, res.Status)
	assert.Equal(t, comprehensiveSections, res.Metadata["sections"])

	c, ok := res.Data.(*Comprehensive)
	require.True(t, ok)
	assert.Equal(t, models.StatusCompleted, c.Sections[TypePerformance].Status)
	assert.Equal(t, models.StatusCompleted, c.Sections[TypeInsights].Status)
	assert.Equal(t, models.StatusInsufficientData, c.Sections[TypeMLQuick].Status)
	assert.NotEmpty(t, c.Sections[TypeMLQuick].Error)
}

func TestComprehensiveComplete(t *testing.T) {
	e := newTestEngine(t)
	id := upload(t, e, 30)

	res, err := e.Analyze(context.Background(), id, TypeComprehensive, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, res.Status)
	c := res.Data.(*Comprehensive)
	assert.Len(t, c.Sections, len(comprehensiveSections))
	assert.False(t, c.Partial())
}

func TestComprehensiveRecoversPanickingSection(t *testing.T) {
	e := newTestEngine(t)
	id := upload(t, e, 4)
	e.Providers().Replace(TypeTimePatterns, ProviderFunc{
		Type: TypeTimePatterns,
		Fn: func(context.Context, *models.TradingDataset, Params) (interface{}, error) {
			panic("boom")
		},
	})

	res, err := e.Analyze(context.Background(), id, TypeComprehensive, nil)
	require.NoError(t, err)
	c := res.Data.(*Comprehensive)
	assert.Equal(t, models.StatusFailed, c.Sections[TypeTimePatterns].Status)
	assert.Contains(t, c.Sections[TypeTimePatterns].Error, "boom")
	assert.Equal(t, models.StatusCompleted, c.Sections[TypePerformance].Status)
}

func TestCustomProvider(t *testing.T) {
	e := newTestEngine(t)
	id := upload(t, e, 4)

	require.NoError(t, e.Providers().Register("trade_count", ProviderFunc{
		Type: "trade_count",
		Desc: "Number of trades",
		Fn: func(_ context.Context, ds *models.TradingDataset, _ Params) (interface{}, error) {
			return len(ds.Trades), nil
		},
	}))

	res, err := e.Analyze(context.Background(), id, "trade_count", nil)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Data)
	assert.Contains(t, e.Providers().Names(), "trade_count")
}

func TestInsights(t *testing.T) {
	e := newTestEngine(t)
	id := upload(t, e, 16)

	ins, err := e.Insights(context.Background(), id)
	require.NoError(t, err)
	require.NotEmpty(t, ins)
	for i := 1; i < len(ins); i++ {
		assert.GreaterOrEqual(t, insights.PriorityScore(ins[i-1]), insights.PriorityScore(ins[i]))
	}
}

func TestQuality(t *testing.T) {
	e := newTestEngine(t)
	id := upload(t, e, 6)

	rep, err := e.Quality(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 6, rep.Summary.TotalTrades)
	assert.Greater(t, rep.QualityScore, 0.0)
}

func TestMetricsRecorded(t *testing.T) {
	c := metrics.NewCollector()
	e := newTestEngine(t, WithMetrics(c))
	id := upload(t, e, 5)
	_, err := e.Analyze(context.Background(), id, TypePerformance, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, c.WriteText(&buf))
	out := buf.String()
	assert.Contains(t, out, `fxanalyzer_uploads_total{outcome="ok",source="MT5"} 1`)
	assert.Contains(t, out, `fxanalyzer_analyses_total{status="completed",type="performance"} 1`)
	assert.Contains(t, out, `fxanalyzer_result_cache_requests_total{outcome="miss"} 1`)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want models.AnalysisStatus
	}{
		{nil, models.StatusCompleted},
		{errors.ErrNoTrades, models.StatusNoData},
		{fmt.Errorf("wrapped: %w", errors.ErrNoTrades), models.StatusNoData},
		{errors.NewInsufficientDataError("clustering", 5, 2), models.StatusInsufficientData},
		{errors.ErrNotComputable, models.StatusNotComputable},
		{fmt.Errorf("boom"), models.StatusFailed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), "%v", tt.err)
	}
}
