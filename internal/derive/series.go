package derive

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Cumulative returns the running sum of xs (the equity curve for profits).
func Cumulative(xs []float64) []float64 {
	out := make([]float64, len(xs))
	var sum float64
	for i, x := range xs {
		sum += x
		out[i] = sum
	}
	return out
}

// RunningMax returns the running maximum of xs.
func RunningMax(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		if i == 0 || x > out[i-1] {
			out[i] = x
		} else {
			out[i] = out[i-1]
		}
	}
	return out
}

// Underwater returns equity minus its running maximum for each point of the
// equity curve built from profits. Every value is <= 0.
func Underwater(profits []float64) (drawdown, runningMax []float64) {
	equity := Cumulative(profits)
	runningMax = RunningMax(equity)
	drawdown = make([]float64, len(equity))
	for i := range equity {
		drawdown[i] = equity[i] - runningMax[i]
	}
	return drawdown, runningMax
}

// MaxDrawdown returns the minimum of the underwater curve, or 0 for no data.
func MaxDrawdown(profits []float64) float64 {
	dd, _ := Underwater(profits)
	return Min(dd)
}

// Rolling applies fn over each full window of size w. Windows without enough
// history are omitted, so the result has len(xs)-w+1 entries.
func Rolling(xs []float64, w int, fn func(window []float64) float64) []float64 {
	if w <= 0 || len(xs) < w {
		return nil
	}
	out := make([]float64, 0, len(xs)-w+1)
	for i := w; i <= len(xs); i++ {
		out = append(out, fn(xs[i-w:i]))
	}
	return out
}

// Sum returns the sum of xs.
func Sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

// Mean returns the arithmetic mean, or 0 for no data.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// StdDev returns the sample standard deviation, or 0 for fewer than two values.
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.StdDev(xs, nil)
}

// PopStdDev returns the population standard deviation.
func PopStdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	_, v := stat.PopMeanVariance(xs, nil)
	return math.Sqrt(v)
}

// Skew returns the bias-corrected sample skewness, or 0 when undefined.
func Skew(xs []float64) float64 {
	if len(xs) < 3 || StdDev(xs) == 0 {
		return 0
	}
	return stat.Skew(xs, nil)
}

// Kurtosis returns the bias-corrected excess kurtosis, or 0 when undefined.
func Kurtosis(xs []float64) float64 {
	if len(xs) < 4 || StdDev(xs) == 0 {
		return 0
	}
	return stat.ExKurtosis(xs, nil)
}

// Min returns the smallest value, or 0 for no data.
func Min(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

// Max returns the largest value, or 0 for no data.
func Max(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

// Percentile returns the p-th percentile (0..100) using linear interpolation
// between closest ranks.
func Percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	return PercentileSorted(sorted, p)
}

// PercentileSorted is Percentile for input that is already sorted ascending.
func PercentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}
	pos := p / 100 * float64(n-1)
	lo := int(math.Floor(pos))
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Filter returns the values for which keep returns true.
func Filter(xs []float64, keep func(float64) bool) []float64 {
	var out []float64
	for _, x := range xs {
		if keep(x) {
			out = append(out, x)
		}
	}
	return out
}

// Round rounds v to places decimal places, leaving NaN and Inf untouched.
func Round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return roundDecimal(v, places)
}
