package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"forex-analyzer/internal/models"
)

// Insights turns an assessment into risk observations.
func Insights(a *Assessment) []models.Insight {
	now := time.Now().UTC()
	var out []models.Insight
	add := func(typ models.InsightType, impact models.Impact, category string, confidence float64, title, desc, rec string, data map[string]interface{}) {
		out = append(out, models.Insight{
			ID:             uuid.NewString(),
			Type:           typ,
			Title:          title,
			Description:    desc,
			Recommendation: rec,
			Confidence:     confidence,
			Impact:         impact,
			Category:       category,
			Data:           data,
			CreatedAt:      now,
		})
	}

	for _, l := range a.VaR {
		if math.Abs(l.VaR) <= 100 {
			continue
		}
		add(models.InsightWarning, models.ImpactHigh, models.CategoryRisk, 0.85,
			fmt.Sprintf("High Value at Risk (%s%%)", l.Label()),
			fmt.Sprintf("Your %s%% VaR is $%.2f, indicating potential for significant losses.", l.Label(), math.Abs(l.VaR)),
			"Consider reducing position sizes or implementing tighter stop-loss orders.",
			map[string]interface{}{"var_value": l.VaR, "confidence_level": l.Confidence})
	}

	if p := a.TailRisk.ExtremeLossProbability; p > 0.05 {
		add(models.InsightCritical, models.ImpactHigh, models.CategoryRisk, 0.9,
			"High Extreme Loss Probability",
			fmt.Sprintf("There's a %.1f%% probability of extreme losses.", p*100),
			"Implement portfolio diversification and consider position sizing based on Kelly Criterion.",
			map[string]interface{}{
				"extreme_loss_threshold":   a.TailRisk.ExtremeLossThreshold,
				"extreme_loss_probability": p,
				"tail_mean":                a.TailRisk.TailMean,
			})
	}

	switch s := a.RiskAdjusted.SharpeRatio; {
	case s < 0.5:
		add(models.InsightWarning, models.ImpactMedium, models.CategoryPerformance, 0.8,
			"Low Risk-Adjusted Returns",
			fmt.Sprintf("Your Sharpe ratio of %.2f indicates poor risk-adjusted performance.", s),
			"Focus on improving trade selection or reducing volatility through better risk management.",
			map[string]interface{}{"sharpe_ratio": s})
	case s > 1.0:
		add(models.InsightSuccess, models.ImpactMedium, models.CategoryPerformance, 0.85,
			"Excellent Risk-Adjusted Returns",
			fmt.Sprintf("Your Sharpe ratio of %.2f indicates strong risk-adjusted performance.", s),
			"Maintain your current risk management approach.",
			map[string]interface{}{"sharpe_ratio": s})
	}

	if p := a.MonteCarlo.ProbabilityOfLoss; p > 0.3 {
		add(models.InsightWarning, models.ImpactMedium, models.CategoryRisk, 0.75,
			"High Probability of Future Losses",
			fmt.Sprintf("Monte Carlo simulation shows %.1f%% probability of losses in similar conditions.", p*100),
			"Consider reducing risk exposure or implementing protective strategies.",
			map[string]interface{}{"probability_of_loss": p, "simulations": a.MonteCarlo.Simulations})
	}
	return out
}
