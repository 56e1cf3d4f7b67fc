package analytics

import (
	"fmt"
	"strconv"
	"time"

	"forex-analyzer/internal/derive"
	"forex-analyzer/internal/errors"
	"forex-analyzer/internal/models"
)

// Session is a fixed UTC trading window. End is exclusive; a window whose
// start is after its end wraps past midnight.
type Session struct {
	Name  string
	Start int
	End   int
}

// Contains reports whether hour falls inside the window.
func (s Session) Contains(hour int) bool {
	if s.Start > s.End {
		return hour >= s.Start || hour < s.End
	}
	return hour >= s.Start && hour < s.End
}

// SessionOther labels hours outside every session window.
const SessionOther = "Other"

// Sessions lists the trading sessions in assignment priority order.
var Sessions = []Session{
	{Name: "Sydney", Start: 21, End: 6},
	{Name: "Tokyo", Start: 23, End: 8},
	{Name: "London", Start: 7, End: 16},
	{Name: "New York", Start: 12, End: 21},
}

// SessionFor returns the first session whose window contains hour. Hours in
// overlapping windows go to the earlier-listed session.
func SessionFor(hour int) string {
	for _, s := range Sessions {
		if s.Contains(hour) {
			return s.Name
		}
	}
	return SessionOther
}

// SessionNames returns the session labels in natural order, Other last.
func SessionNames() []string {
	names := make([]string, 0, len(Sessions)+1)
	for _, s := range Sessions {
		names = append(names, s.Name)
	}
	return append(names, SessionOther)
}

// Granularity selects which calendar breakdowns TimePatterns computes.
type Granularity string

const (
	GranularityHour  Granularity = "hour"
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
	GranularityAll   Granularity = "all"
)

// TimePatternParams configures TimePatterns.
type TimePatternParams struct {
	Granularity Granularity
	Sessions    bool
}

// DefaultTimePatternParams returns hourly granularity with sessions.
func DefaultTimePatternParams() TimePatternParams {
	return TimePatternParams{Granularity: GranularityHour, Sessions: true}
}

// GroupStats aggregates the trades sharing one time bucket.
type GroupStats struct {
	Key         string  `json:"key" yaml:"key"`
	TradeCount  int     `json:"trade_count" yaml:"trade_count"`
	TotalProfit float64 `json:"total_profit" yaml:"total_profit"`
	AvgProfit   float64 `json:"avg_profit" yaml:"avg_profit"`
	BuyCount    int     `json:"buy_count" yaml:"buy_count"`
	SellCount   int     `json:"sell_count" yaml:"sell_count"`
	WinRate     float64 `json:"win_rate" yaml:"win_rate"`
}

// Breakdown is a set of buckets in natural order plus the best and worst
// bucket by total profit. Ties go to the first bucket in natural order.
type Breakdown struct {
	Groups      []GroupStats `json:"breakdown" yaml:"breakdown"`
	Best        string       `json:"best" yaml:"best"`
	Worst       string       `json:"worst" yaml:"worst"`
	BestProfit  float64      `json:"best_profit" yaml:"best_profit"`
	WorstProfit float64      `json:"worst_profit" yaml:"worst_profit"`
}

// Group returns the bucket named key.
func (b *Breakdown) Group(key string) (GroupStats, bool) {
	for _, g := range b.Groups {
		if g.Key == key {
			return g, true
		}
	}
	return GroupStats{}, false
}

// TimePatterns holds the requested breakdowns and text observations.
type TimePatterns struct {
	Hourly   *Breakdown `json:"hourly_performance,omitempty" yaml:"hourly_performance,omitempty"`
	Daily    *Breakdown `json:"daily_performance,omitempty" yaml:"daily_performance,omitempty"`
	Monthly  *Breakdown `json:"monthly_performance,omitempty" yaml:"monthly_performance,omitempty"`
	Sessions *Breakdown `json:"session_performance,omitempty" yaml:"session_performance,omitempty"`
	Insights []string   `json:"insights" yaml:"insights"`
}

// AnalyzeTimePatterns groups trades by open hour (UTC), weekday, month and
// session according to params.
func AnalyzeTimePatterns(trades []models.Trade, params TimePatternParams) (*TimePatterns, error) {
	if len(trades) == 0 {
		return nil, errors.ErrNoTrades
	}
	if params.Granularity == "" {
		params.Granularity = GranularityHour
	}

	tp := &TimePatterns{}
	switch params.Granularity {
	case GranularityHour, GranularityDay, GranularityWeek, GranularityMonth, GranularityAll:
	default:
		return nil, fmt.Errorf("unknown granularity %q", params.Granularity)
	}

	g := params.Granularity
	if g == GranularityHour || g == GranularityAll {
		tp.Hourly = groupBy(trades, hourKey, hourOrder())
	}
	if g == GranularityDay || g == GranularityWeek || g == GranularityAll {
		tp.Daily = groupBy(trades, dayKey, dayOrder())
	}
	if g == GranularityMonth || g == GranularityAll {
		tp.Monthly = groupBy(trades, monthKey, monthOrder())
	}
	if params.Sessions {
		tp.Sessions = groupBy(trades, sessionKey, SessionNames())
	}
	tp.Insights = timeInsights(tp)
	return tp, nil
}

func hourKey(t *models.Trade) string    { return strconv.Itoa(t.OpenTime.UTC().Hour()) }
func dayKey(t *models.Trade) string     { return t.OpenTime.UTC().Weekday().String() }
func monthKey(t *models.Trade) string   { return t.OpenTime.UTC().Month().String() }
func sessionKey(t *models.Trade) string { return SessionFor(t.OpenTime.UTC().Hour()) }

func hourOrder() []string {
	out := make([]string, 24)
	for h := range out {
		out[h] = strconv.Itoa(h)
	}
	return out
}

func dayOrder() []string {
	out := make([]string, 0, 7)
	for d := time.Monday; d <= time.Saturday; d++ {
		out = append(out, d.String())
	}
	return append(out, time.Sunday.String())
}

func monthOrder() []string {
	out := make([]string, 0, 12)
	for m := time.January; m <= time.December; m++ {
		out = append(out, m.String())
	}
	return out
}

// groupBy aggregates trades into the buckets of order that have trades.
func groupBy(trades []models.Trade, key func(*models.Trade) string, order []string) *Breakdown {
	type acc struct {
		profits []float64
		buys    int
	}
	buckets := make(map[string]*acc)
	for i := range trades {
		k := key(&trades[i])
		a, ok := buckets[k]
		if !ok {
			a = &acc{}
			buckets[k] = a
		}
		a.profits = append(a.profits, trades[i].Profit)
		if trades[i].Type == models.Buy {
			a.buys++
		}
	}

	b := &Breakdown{}
	for _, k := range order {
		a, ok := buckets[k]
		if !ok {
			continue
		}
		n := len(a.profits)
		wins := len(derive.Filter(a.profits, func(p float64) bool { return p > 0 }))
		b.Groups = append(b.Groups, GroupStats{
			Key:         k,
			TradeCount:  n,
			TotalProfit: derive.Round(derive.Sum(a.profits), 2),
			AvgProfit:   derive.Round(derive.Mean(a.profits), 2),
			BuyCount:    a.buys,
			SellCount:   n - a.buys,
			WinRate:     derive.Round(float64(wins)/float64(n), 4),
		})
	}

	for i, g := range b.Groups {
		if i == 0 || g.TotalProfit > b.BestProfit {
			b.Best, b.BestProfit = g.Key, g.TotalProfit
		}
		if i == 0 || g.TotalProfit < b.WorstProfit {
			b.Worst, b.WorstProfit = g.Key, g.TotalProfit
		}
	}
	return b
}

func timeInsights(tp *TimePatterns) []string {
	out := []string{}
	if h := tp.Hourly; h != nil && len(h.Groups) > 0 {
		out = append(out,
			fmt.Sprintf("Best trading hour: %s:00 GMT ($%.2f profit)", h.Best, h.BestProfit),
			fmt.Sprintf("Worst trading hour: %s:00 GMT ($%.2f profit)", h.Worst, h.WorstProfit),
		)
		if diff := h.BestProfit - h.WorstProfit; diff > 100 {
			out = append(out, fmt.Sprintf("Consider avoiding trading at %s:00 GMT - $%.2f difference from best hour", h.Worst, diff))
		}
	}
	if d := tp.Daily; d != nil && len(d.Groups) > 0 {
		out = append(out,
			fmt.Sprintf("Best trading day: %s ($%.2f profit)", d.Best, d.BestProfit),
			fmt.Sprintf("Worst trading day: %s ($%.2f profit)", d.Worst, d.WorstProfit),
		)
	}
	if s := tp.Sessions; s != nil && len(s.Groups) > 0 {
		out = append(out,
			fmt.Sprintf("Most profitable session: %s", s.Best),
			fmt.Sprintf("Least profitable session: %s", s.Worst),
		)
	}
	return out
}
