package risk

import (
	"sort"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"forex-analyzer/internal/derive"
)

// PercentileLadder is the fixed set of percentiles reported by Simulate.
var PercentileLadder = []int{1, 5, 10, 25, 50, 75, 90, 95, 99}

// PercentilePoint is one rung of the percentile ladder.
type PercentilePoint struct {
	Percentile int     `json:"percentile" yaml:"percentile"`
	Value      float64 `json:"value" yaml:"value"`
}

// MonteCarlo summarizes simulated per-trade outcomes.
type MonteCarlo struct {
	Simulations         int               `json:"simulations" yaml:"simulations"`
	Seed                int64             `json:"seed" yaml:"seed"`
	ProbabilityOfLoss   float64           `json:"probability_of_loss" yaml:"probability_of_loss"`
	ProbabilityOfProfit float64           `json:"probability_of_profit" yaml:"probability_of_profit"`
	ExpectedLoss        float64           `json:"expected_loss" yaml:"expected_loss"`
	ExpectedProfit      float64           `json:"expected_profit" yaml:"expected_profit"`
	Percentiles         []PercentilePoint `json:"percentiles" yaml:"percentiles"`
	WorstCase1Pct       float64           `json:"worst_case_1pct" yaml:"worst_case_1pct"`
	BestCase1Pct        float64           `json:"best_case_1pct" yaml:"best_case_1pct"`
}

// Percentile returns the simulated value at ladder rung p.
func (m MonteCarlo) Percentile(p int) (float64, bool) {
	for _, pt := range m.Percentiles {
		if pt.Percentile == p {
			return pt.Value, true
		}
	}
	return 0, false
}

// Simulate draws n i.i.d. normal outcomes with the sample mean and standard
// deviation of profits. The same seed always yields the same result.
func Simulate(profits []float64, n int, seed int64) MonteCarlo {
	dist := distuv.Normal{
		Mu:    derive.Mean(profits),
		Sigma: derive.StdDev(profits),
		Src:   rand.NewSource(uint64(seed)),
	}

	draws := make([]float64, n)
	var losses, gains []float64
	for i := range draws {
		x := dist.Rand()
		draws[i] = x
		switch {
		case x < 0:
			losses = append(losses, x)
		case x > 0:
			gains = append(gains, x)
		}
	}
	sort.Float64s(draws)

	mc := MonteCarlo{
		Simulations:    n,
		Seed:           seed,
		ExpectedLoss:   derive.Mean(losses),
		ExpectedProfit: derive.Mean(gains),
		Percentiles:    make([]PercentilePoint, 0, len(PercentileLadder)),
	}
	if n > 0 {
		mc.ProbabilityOfLoss = float64(len(losses)) / float64(n)
		mc.ProbabilityOfProfit = float64(len(gains)) / float64(n)
	}
	for _, p := range PercentileLadder {
		mc.Percentiles = append(mc.Percentiles, PercentilePoint{
			Percentile: p,
			Value:      derive.PercentileSorted(draws, float64(p)),
		})
	}
	mc.WorstCase1Pct = derive.PercentileSorted(draws, 1)
	mc.BestCase1Pct = derive.PercentileSorted(draws, 99)
	return mc
}
