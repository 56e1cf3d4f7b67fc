package analytics

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forex-analyzer/internal/derive"
	"forex-analyzer/internal/errors"
	"forex-analyzer/internal/models"
)

func at(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}

func mk(typ models.TradeType, symbol string, open, closePrice, profit float64, openAt string) models.Trade {
	tr := models.Trade{
		Ticket:     openAt,
		OpenTime:   at(openAt),
		CloseTime:  models.Time(at(openAt).Add(time.Hour)),
		Type:       typ,
		Size:       0.1,
		Symbol:     symbol,
		OpenPrice:  open,
		ClosePrice: models.Float(closePrice),
		Profit:     profit,
	}
	derive.Apply(&tr)
	return tr
}

func scenarioTrades() []models.Trade {
	return []models.Trade{
		mk(models.Buy, "EURUSD", 1.1000, 1.1050, 50, "2024-03-04 09:00"),
		mk(models.Sell, "EURUSD", 1.1050, 1.1100, -50, "2024-03-05 14:00"),
		mk(models.Buy, "USDJPY", 110.00, 110.50, 45, "2024-03-06 22:00"),
	}
}

func fromProfits(profits []float64) []models.Trade {
	trades := make([]models.Trade, len(profits))
	base := at("2024-01-01 00:00")
	for i, p := range profits {
		trades[i] = models.Trade{
			Ticket:    "t",
			OpenTime:  base.Add(time.Duration(i) * 3 * time.Hour),
			Type:      models.Buy,
			Size:      1,
			Symbol:    "EURUSD",
			OpenPrice: 1.1,
			Profit:    p,
		}
	}
	return trades
}

func TestPerformanceScenario(t *testing.T) {
	trades := scenarioTrades()
	require.NotNil(t, trades[0].Pips)
	assert.Equal(t, 50.0, *trades[0].Pips)
	require.NotNil(t, trades[2].Pips)
	assert.Equal(t, 50.0, *trades[2].Pips)

	m, err := Performance(trades)
	require.NoError(t, err)
	assert.Equal(t, 3, m.TotalTrades)
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.InDelta(t, 0.667, m.WinRate, 0.001)
	assert.InDelta(t, 1.9, float64(m.ProfitFactor), 1e-9)
	assert.Equal(t, 45.0, m.TotalProfit)
	assert.Equal(t, 47.5, m.AverageWin)
	assert.Equal(t, -50.0, m.AverageLoss)
	assert.Equal(t, 50.0, m.LargestWin)
	assert.Equal(t, -50.0, m.LargestLoss)
	assert.Equal(t, -50.0, m.MaxDrawdown)
	assert.Equal(t, -100.0, m.MaxDrawdownPct)
	assert.Equal(t, 0.27, m.SharpeRatio)
	assert.InDelta(t, 0.9, float64(m.RecoveryFactor), 1e-9)
	assert.Equal(t, 15.0, m.Expectancy)
}

func TestPerformanceAllWinners(t *testing.T) {
	m, err := Performance(fromProfits([]float64{10, 20, 5}))
	require.NoError(t, err)
	assert.True(t, m.ProfitFactor.IsInf())
	assert.True(t, m.RecoveryFactor.IsInf())
	assert.Equal(t, 0.0, m.MaxDrawdown)
	assert.Equal(t, 1.0, m.WinRate)
}

func TestPerformanceFlat(t *testing.T) {
	m, err := Performance(fromProfits([]float64{0, 0, 0}))
	require.NoError(t, err)
	assert.Equal(t, 0.0, m.SharpeRatio)
	assert.Equal(t, 0.0, m.WinRate)
	assert.Equal(t, 0, m.WinningTrades+m.LosingTrades)
	assert.Equal(t, 0.0, m.MaxDrawdownPct)
}

func TestEmptyInputs(t *testing.T) {
	_, err := Performance(nil)
	assert.True(t, errors.Is(err, errors.ErrNoTrades))
	_, err = AnalyzeTimePatterns(nil, DefaultTimePatternParams())
	assert.True(t, errors.Is(err, errors.ErrNoTrades))
	_, err = AnalyzeRisk(nil, DefaultRiskParams())
	assert.True(t, errors.Is(err, errors.ErrNoTrades))
}

func TestWinRateBoundProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("win rate stays in [0,1] and zero-profit trades count as neither", prop.ForAll(
		func(units []int) bool {
			if len(units) == 0 {
				return true
			}
			profits := make([]float64, len(units))
			for i, u := range units {
				profits[i] = float64(u) * 25
			}
			m, err := Performance(fromProfits(profits))
			if err != nil {
				return false
			}
			return m.WinRate >= 0 && m.WinRate <= 1 &&
				m.WinningTrades+m.LosingTrades <= m.TotalTrades
		},
		gen.SliceOf(gen.IntRange(-5, 5)),
	))

	properties.Property("max drawdown is never positive", prop.ForAll(
		func(profits []float64) bool {
			if len(profits) == 0 {
				return true
			}
			m, err := Performance(fromProfits(profits))
			if err != nil {
				return false
			}
			d := AnalyzeDrawdown(profits)
			return m.MaxDrawdown <= 0 && d.MaxDrawdown <= 0 && d.CurrentDrawdown <= 0
		},
		gen.SliceOf(gen.Float64Range(-500, 500)),
	))

	properties.TestingRun(t)
}

func TestSessionFor(t *testing.T) {
	want := map[int]string{
		21: "Sydney", 22: "Sydney", 23: "Sydney", 0: "Sydney", 5: "Sydney",
		6: "Tokyo", 7: "Tokyo",
		8: "London", 12: "London", 15: "London",
		16: "New York", 20: "New York",
	}
	for hour, session := range want {
		assert.Equal(t, session, SessionFor(hour), "hour %d", hour)
	}
}

func TestSessionAssignmentProperty(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("hour goes to the first containing session", prop.ForAll(
		func(hour int) bool {
			got := SessionFor(hour)
			for _, s := range Sessions {
				if s.Contains(hour) {
					return got == s.Name
				}
			}
			return got == SessionOther
		},
		gen.IntRange(0, 23),
	))

	properties.Property("22 UTC is Sydney", prop.ForAll(
		func(day int) bool {
			tr := fromProfits([]float64{1})
			tr[0].OpenTime = time.Date(2024, 1, day, 22, 0, 0, 0, time.UTC)
			tp, err := AnalyzeTimePatterns(tr, DefaultTimePatternParams())
			return err == nil && tp.Sessions.Best == "Sydney"
		},
		gen.IntRange(1, 28),
	))

	properties.TestingRun(t)
}

func TestTimePatterns(t *testing.T) {
	tp, err := AnalyzeTimePatterns(scenarioTrades(), TimePatternParams{Granularity: GranularityAll, Sessions: true})
	require.NoError(t, err)

	require.NotNil(t, tp.Hourly)
	require.Len(t, tp.Hourly.Groups, 3)
	assert.Equal(t, []string{"9", "14", "22"}, []string{tp.Hourly.Groups[0].Key, tp.Hourly.Groups[1].Key, tp.Hourly.Groups[2].Key})
	assert.Equal(t, "9", tp.Hourly.Best)
	assert.Equal(t, 50.0, tp.Hourly.BestProfit)
	assert.Equal(t, "14", tp.Hourly.Worst)
	g, ok := tp.Hourly.Group("14")
	require.True(t, ok)
	assert.Equal(t, 0, g.BuyCount)
	assert.Equal(t, 1, g.SellCount)
	assert.Equal(t, 0.0, g.WinRate)

	require.NotNil(t, tp.Daily)
	assert.Equal(t, "Monday", tp.Daily.Groups[0].Key)
	assert.Equal(t, "Monday", tp.Daily.Best)
	assert.Equal(t, "Tuesday", tp.Daily.Worst)

	require.NotNil(t, tp.Monthly)
	require.Len(t, tp.Monthly.Groups, 1)
	assert.Equal(t, "March", tp.Monthly.Best)

	require.NotNil(t, tp.Sessions)
	london, ok := tp.Sessions.Group("London")
	require.True(t, ok)
	assert.Equal(t, 2, london.TradeCount)
	assert.Equal(t, 0.5, london.WinRate)
	assert.Equal(t, "Sydney", tp.Sessions.Best)
	assert.Equal(t, "London", tp.Sessions.Worst)

	assert.Contains(t, tp.Insights, "Best trading hour: 9:00 GMT ($50.00 profit)")
	assert.Contains(t, tp.Insights, "Worst trading hour: 14:00 GMT ($-50.00 profit)")
	// A gap of exactly 100 is not large enough to suggest avoiding an hour.
	assert.Len(t, tp.Insights, 6)
	assert.Contains(t, tp.Insights, "Most profitable session: Sydney")
}

func TestTimePatternsGranularity(t *testing.T) {
	tp, err := AnalyzeTimePatterns(scenarioTrades(), TimePatternParams{Granularity: GranularityMonth})
	require.NoError(t, err)
	assert.Nil(t, tp.Hourly)
	assert.Nil(t, tp.Daily)
	assert.Nil(t, tp.Sessions)
	assert.NotNil(t, tp.Monthly)

	_, err = AnalyzeTimePatterns(scenarioTrades(), TimePatternParams{Granularity: "year"})
	assert.Error(t, err)
}

func TestBreakdownTiesGoToFirst(t *testing.T) {
	trades := fromProfits([]float64{10, 10})
	trades[0].OpenTime = at("2024-01-01 05:00")
	trades[1].OpenTime = at("2024-01-01 03:00")
	tp, err := AnalyzeTimePatterns(trades, DefaultTimePatternParams())
	require.NoError(t, err)
	assert.Equal(t, "3", tp.Hourly.Best)
	assert.Equal(t, "3", tp.Hourly.Worst)
}

func TestAnalyzeRisk(t *testing.T) {
	profits := []float64{100, -20, -30, -40, 50, -10, -10, -10, -10, -10, -10, 200}
	rm, err := AnalyzeRisk(fromProfits(profits), RiskParams{ConfidenceLevel: 0.95, RollingWindow: 5})
	require.NoError(t, err)

	assert.Equal(t, 6, rm.Basic.MaxConsecutiveLosses)
	assert.LessOrEqual(t, rm.Basic.ConditionalVaR, rm.Basic.ValueAtRisk)

	d := rm.Drawdown
	assert.Equal(t, -100.0, d.MaxDrawdown)
	assert.Equal(t, -50.0, d.MaxDrawdownPct)
	require.Len(t, d.Periods, 1)
	assert.Equal(t, DrawdownPeriod{Start: 1, End: 10, Duration: 10, Depth: -100, Recovered: true}, d.Periods[0])
	assert.Equal(t, 10.0, d.AvgDrawdownDuration)
	assert.Equal(t, 0.0, d.CurrentDrawdown)

	assert.Equal(t, 8, rm.Rolling.Windows)
	assert.Equal(t, 5, rm.Rolling.Window)

	assert.Contains(t, rm.Insights, "High consecutive loss streak: 6 trades. Consider position sizing adjustments.")
	assert.Contains(t, rm.Insights, "High volatility detected. Consider reducing position sizes during volatile periods.")
	assert.Contains(t, rm.Insights, "Maximum drawdown of -50.0% is high. Implement stricter risk management.")
}

func TestDrawdownPeriodsTrailing(t *testing.T) {
	periods := DrawdownPeriods([]float64{10, -5, 20, -30, -1})
	require.Len(t, periods, 2)
	assert.Equal(t, DrawdownPeriod{Start: 1, End: 1, Duration: 1, Depth: -5, Recovered: true}, periods[0])
	assert.Equal(t, DrawdownPeriod{Start: 3, End: 4, Duration: 2, Depth: -31, Recovered: false}, periods[1])
}

func TestRollingExcludesShortHistory(t *testing.T) {
	rm, err := AnalyzeRisk(fromProfits([]float64{1, 2, 3}), DefaultRiskParams())
	require.NoError(t, err)
	assert.Equal(t, 0, rm.Rolling.Windows)
	assert.Equal(t, 0.0, rm.Rolling.RollingProfitMean)
}

func TestRiskAdjustedDegenerate(t *testing.T) {
	rm, err := AnalyzeRisk(fromProfits([]float64{5, 5, 5}), DefaultRiskParams())
	require.NoError(t, err)
	assert.Equal(t, RiskAdjusted{}, rm.RiskAdjusted)
}

func TestMaxConsecutiveLossesResetsOnZero(t *testing.T) {
	assert.Equal(t, 2, MaxConsecutiveLosses([]float64{-1, -1, 0, -1, 3, -1, -2}))
	assert.Equal(t, 0, MaxConsecutiveLosses(nil))
}
