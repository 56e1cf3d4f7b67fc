// Package insights turns analytics output into ranked, human-readable
// observations about a trading history.
package insights

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"forex-analyzer/internal/analytics"
	"forex-analyzer/internal/config"
	"forex-analyzer/internal/derive"
	"forex-analyzer/internal/errors"
	"forex-analyzer/internal/models"
)

var impactWeights = map[models.Impact]float64{
	models.ImpactHigh:   3,
	models.ImpactMedium: 2,
	models.ImpactLow:    1,
}

var typeWeights = map[models.InsightType]float64{
	models.InsightCritical: 4,
	models.InsightWarning:  3,
	models.InsightInfo:     2,
	models.InsightSuccess:  1,
}

// PriorityScore weighs impact, severity and confidence. Unknown impacts and
// types weigh 1.
func PriorityScore(in models.Insight) float64 {
	impact, ok := impactWeights[in.Impact]
	if !ok {
		impact = 1
	}
	typ, ok := typeWeights[in.Type]
	if !ok {
		typ = 1
	}
	return 0.4*impact + 0.3*typ + 0.3*in.Confidence
}

// Rank sorts insights by descending priority. Equal scores keep their
// input order.
func Rank(ins []models.Insight) []models.Insight {
	out := append([]models.Insight(nil), ins...)
	sort.SliceStable(out, func(i, j int) bool {
		return PriorityScore(out[i]) > PriorityScore(out[j])
	})
	return out
}

// Generator applies the insight rules with thresholds from configuration.
type Generator struct {
	cfg   config.InsightsConfig
	now   func() time.Time
	newID func() string
}

// NewGenerator creates a generator.
func NewGenerator(cfg config.InsightsConfig) *Generator {
	return &Generator{
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Generate runs every rule over the dataset's trades and returns the
// insights ranked by priority. extra insights, such as those produced by a
// risk assessment, are ranked together with the generated ones.
func (g *Generator) Generate(ds *models.TradingDataset, extra ...models.Insight) ([]models.Insight, error) {
	if ds == nil || len(ds.Trades) == 0 {
		return nil, errors.ErrNoTrades
	}
	trades := ds.Trades

	perf, err := analytics.Performance(trades)
	if err != nil {
		return nil, err
	}
	tp, err := analytics.AnalyzeTimePatterns(trades, analytics.TimePatternParams{Granularity: analytics.GranularityAll})
	if err != nil {
		return nil, err
	}

	b := &builder{g: g, created: g.now()}
	b.performance(perf)
	b.timing(tp)
	b.risk(perf, trades)
	b.symbols(trades)
	b.behavior(trades)
	b.strategy(trades)
	return Rank(append(b.out, extra...)), nil
}

type builder struct {
	g       *Generator
	created time.Time
	out     []models.Insight
}

func (b *builder) add(typ models.InsightType, impact models.Impact, category string, confidence float64,
	title, description, recommendation string, data map[string]interface{}) {
	b.out = append(b.out, models.Insight{
		ID:             b.g.newID(),
		Type:           typ,
		Title:          title,
		Description:    description,
		Recommendation: recommendation,
		Confidence:     confidence,
		Impact:         impact,
		Category:       category,
		Data:           data,
		CreatedAt:      b.created,
	})
}

func (b *builder) performance(p *analytics.PerformanceMetrics) {
	cfg := b.g.cfg
	switch {
	case p.WinRate < cfg.LowWinRate:
		b.add(models.InsightCritical, models.ImpactHigh, models.CategoryPerformance, 0.9,
			"Low Win Rate Detected",
			fmt.Sprintf("Your win rate is %.1f%%, which is below the recommended minimum of %.0f%%.", p.WinRate*100, cfg.LowWinRate*100),
			"Focus on improving trade selection criteria and consider reducing trade frequency.",
			map[string]interface{}{"win_rate": p.WinRate, "threshold": cfg.LowWinRate})
	case p.WinRate > cfg.HighWinRate:
		b.add(models.InsightSuccess, models.ImpactMedium, models.CategoryPerformance, 0.85,
			"Excellent Win Rate",
			fmt.Sprintf("Your win rate of %.1f%% is excellent and above industry averages.", p.WinRate*100),
			"Maintain your current trade selection approach.",
			map[string]interface{}{"win_rate": p.WinRate})
	}

	if pf := float64(p.ProfitFactor); pf < cfg.MinProfitFactor {
		b.add(models.InsightWarning, models.ImpactHigh, models.CategoryPerformance, 0.8,
			"Low Profit Factor",
			fmt.Sprintf("Your profit factor of %.2f indicates poor risk-reward management.", pf),
			"Increase take profit targets or reduce stop loss distances to improve profit factor.",
			map[string]interface{}{"profit_factor": pf, "target": 1.5})
	}

	avgLoss := math.Abs(p.AverageLoss)
	if avgLoss > 0 && p.AverageWin/avgLoss < cfg.MinWinLossRatio {
		b.add(models.InsightWarning, models.ImpactMedium, models.CategoryRisk, 0.75,
			"Poor Risk-Reward Ratio",
			fmt.Sprintf("Your average win ($%.2f) vs average loss ($%.2f) ratio is suboptimal.", p.AverageWin, avgLoss),
			fmt.Sprintf("Aim for a minimum %.1f:1 reward-to-risk ratio on your trades.", cfg.MinWinLossRatio),
			map[string]interface{}{"avg_win": p.AverageWin, "avg_loss": avgLoss, "ratio": p.AverageWin / avgLoss})
	}
}

func (b *builder) timing(tp *analytics.TimePatterns) {
	if h := tp.Hourly; h != nil && len(h.Groups) > 0 && h.BestProfit-h.WorstProfit > b.g.cfg.HourProfitGap {
		b.add(models.InsightInfo, models.ImpactMedium, models.CategoryTiming, 0.7,
			"Optimal Trading Hours Identified",
			fmt.Sprintf("You perform best at %s:00 GMT ($%.2f) and worst at %s:00 GMT ($%.2f).", h.Best, h.BestProfit, h.Worst, h.WorstProfit),
			fmt.Sprintf("Focus trading activity around %s:00 GMT and avoid %s:00 GMT.", h.Best, h.Worst),
			map[string]interface{}{"best_hour": h.Best, "worst_hour": h.Worst, "profit_diff": h.BestProfit - h.WorstProfit})
	}

	if d := tp.Daily; d != nil && len(d.Groups) > 0 {
		b.add(models.InsightInfo, models.ImpactLow, models.CategoryTiming, 0.65,
			"Weekly Performance Pattern",
			fmt.Sprintf("Your best trading day is %s ($%.2f) and worst is %s ($%.2f).", d.Best, d.BestProfit, d.Worst, d.WorstProfit),
			fmt.Sprintf("Consider increasing position sizes on %s and reducing activity on %s.", d.Best, d.Worst),
			map[string]interface{}{"best_day": d.Best, "worst_day": d.Worst})
	}
}

func (b *builder) risk(p *analytics.PerformanceMetrics, trades []models.Trade) {
	cfg := b.g.cfg
	profits := make([]float64, len(trades))
	for i := range trades {
		profits[i] = trades[i].Profit
	}

	if streak := analytics.MaxConsecutiveLosses(profits); streak > cfg.MaxConsecutiveLosses {
		b.add(models.InsightWarning, models.ImpactHigh, models.CategoryRisk, 0.8,
			"High Consecutive Loss Streak",
			fmt.Sprintf("You experienced %d consecutive losses, indicating potential overtrading.", streak),
			"Implement position sizing rules and consider taking breaks after 3-4 consecutive losses.",
			map[string]interface{}{"max_consecutive_losses": streak})
	}

	if pct := p.MaxDrawdownPct; math.Abs(pct) > cfg.MaxDrawdownPct {
		b.add(models.InsightCritical, models.ImpactHigh, models.CategoryRisk, 0.9,
			"Excessive Drawdown Risk",
			fmt.Sprintf("Your maximum drawdown of %.1f%% is dangerously high.", math.Abs(pct)),
			"Reduce position sizes and implement stricter risk management rules.",
			map[string]interface{}{"max_drawdown_pct": pct})
	}
}

type symbolTotal struct {
	symbol string
	profit float64
	count  int
}

func (b *builder) symbols(trades []models.Trade) {
	totals := make(map[string]*symbolTotal)
	for i := range trades {
		s, ok := totals[trades[i].Symbol]
		if !ok {
			s = &symbolTotal{symbol: trades[i].Symbol}
			totals[trades[i].Symbol] = s
		}
		s.profit += trades[i].Profit
		s.count++
	}
	if len(totals) < 2 {
		return
	}

	keys := make([]string, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	best, worst := totals[keys[0]], totals[keys[0]]
	for _, k := range keys[1:] {
		if s := totals[k]; s.profit > best.profit {
			best = s
		}
		if s := totals[k]; s.profit < worst.profit {
			worst = s
		}
	}

	if best.profit > math.Abs(worst.profit) {
		b.add(models.InsightSuccess, models.ImpactMedium, models.CategorySymbols, 0.75,
			"Strong Symbol Performance",
			fmt.Sprintf("%s is your most profitable pair with $%.2f profit from %d trades.", best.symbol, best.profit, best.count),
			fmt.Sprintf("Consider increasing allocation to %s while maintaining proper risk management.", best.symbol),
			map[string]interface{}{"symbol": best.symbol, "profit": best.profit, "trade_count": best.count})
	}
	if worst.profit < b.g.cfg.WorstSymbolLoss {
		b.add(models.InsightWarning, models.ImpactMedium, models.CategorySymbols, 0.7,
			"Underperforming Symbol",
			fmt.Sprintf("%s is causing losses with $%.2f total loss.", worst.symbol, worst.profit),
			fmt.Sprintf("Review your strategy for %s or consider avoiding this pair.", worst.symbol),
			map[string]interface{}{"symbol": worst.symbol, "profit": worst.profit})
	}
}

func (b *builder) behavior(trades []models.Trade) {
	var short, long []float64
	for i := range trades {
		d := trades[i].Duration
		switch {
		case d == nil:
		case *d <= 60:
			short = append(short, trades[i].Profit)
		case *d > 240:
			long = append(long, trades[i].Profit)
		}
	}
	if len(short) > 5 && len(long) > 5 {
		shortRate, longRate := winRate(short), winRate(long)
		if longRate > shortRate+0.2 {
			b.add(models.InsightInfo, models.ImpactMedium, models.CategoryBehavior, 0.65,
				"Patience Pays Off",
				fmt.Sprintf("Longer trades (>4h) have %.1f%% win rate vs %.1f%% for short trades (<1h).", longRate*100, shortRate*100),
				"Consider holding profitable positions longer and avoid scalping strategies.",
				map[string]interface{}{"long_win_rate": longRate, "short_win_rate": shortRate})
		}
	}

	perDay := make(map[string]int)
	for i := range trades {
		perDay[trades[i].OpenTime.UTC().Format("2006-01-02")]++
	}
	if len(perDay) == 0 {
		return
	}
	avg := float64(len(trades)) / float64(len(perDay))
	if avg > b.g.cfg.MaxDailyTrades {
		b.add(models.InsightWarning, models.ImpactMedium, models.CategoryBehavior, 0.7,
			"Potential Overtrading",
			fmt.Sprintf("You average %.1f trades per day, which may indicate overtrading.", avg),
			"Focus on quality over quantity. Reduce trade frequency and improve selection criteria.",
			map[string]interface{}{"avg_daily_trades": avg})
	}
}

func (b *builder) strategy(trades []models.Trade) {
	var sizes, buys, sells []float64
	for i := range trades {
		t := &trades[i]
		if !math.IsNaN(t.Size) {
			sizes = append(sizes, t.Size)
		}
		switch t.Type {
		case models.Buy:
			buys = append(buys, t.Profit)
		case models.Sell:
			sells = append(sells, t.Profit)
		}
	}

	if mean := derive.Mean(sizes); mean != 0 {
		if cv := derive.StdDev(sizes) / mean; cv > b.g.cfg.SizeVariation {
			b.add(models.InsightInfo, models.ImpactMedium, models.CategoryStrategy, 0.6,
				"Inconsistent Position Sizing",
				"Your trade sizes vary significantly, which may indicate emotional trading.",
				"Implement consistent position sizing rules based on account risk percentage.",
				map[string]interface{}{"size_variation": cv})
		}
	}

	if len(buys) > 5 && len(sells) > 5 {
		buy, sell := derive.Sum(buys), derive.Sum(sells)
		if math.Abs(buy-sell) > b.g.cfg.DirectionalGap {
			better, worse := "buying", "selling"
			if sell > buy {
				better, worse = worse, better
			}
			b.add(models.InsightInfo, models.ImpactLow, models.CategoryStrategy, 0.65,
				"Directional Bias Performance",
				fmt.Sprintf("You perform significantly better when %s ($%.2f) vs %s ($%.2f).", better, math.Max(buy, sell), worse, math.Min(buy, sell)),
				fmt.Sprintf("Consider focusing more on %s opportunities or review your %s strategy.", better, worse),
				map[string]interface{}{"buy_profit": buy, "sell_profit": sell})
		}
	}
}

func winRate(profits []float64) float64 {
	if len(profits) == 0 {
		return 0
	}
	wins := 0
	for _, p := range profits {
		if p > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(profits))
}
