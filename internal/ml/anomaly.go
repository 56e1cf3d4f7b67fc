package ml

import (
	"forex-analyzer/internal/derive"
)

// AnomalyReport counts IQR outliers per field and overall.
type AnomalyReport struct {
	ProfitOutliers   int     `json:"profit_outliers" yaml:"profit_outliers"`
	SizeOutliers     int     `json:"size_outliers" yaml:"size_outliers"`
	DurationOutliers int     `json:"duration_outliers" yaml:"duration_outliers"`
	TotalAnomalies   int     `json:"total_anomalies" yaml:"total_anomalies"`
	AnomalyRate      float64 `json:"anomaly_rate" yaml:"anomaly_rate"` // percent
	Trades           []int   `json:"anomalous_trades" yaml:"anomalous_trades"`
}

// IQRBounds returns q1 - k*iqr and q3 + k*iqr.
func IQRBounds(xs []float64, k float64) (lower, upper float64) {
	q1 := derive.Percentile(xs, 25)
	q3 := derive.Percentile(xs, 75)
	iqr := q3 - q1
	return q1 - k*iqr, q3 + k*iqr
}

// DetectAnomalies flags profit, size and duration values below the lower
// or above the upper IQR fence. Durations are fenced over trades with a
// known duration only. Trades lists the flagged input positions.
func DetectAnomalies(fs *FeatureSet, k float64) AnomalyReport {
	var rep AnomalyReport
	n := fs.Len()
	if n == 0 {
		return rep
	}
	flagged := make([]bool, n)

	// outside fences xs and flags rows[i] for each outlying xs[i].
	outside := func(xs []float64, rows []int) int {
		lo, hi := IQRBounds(xs, k)
		count := 0
		for i, v := range xs {
			if v < lo || v > hi {
				flagged[rows[i]] = true
				count++
			}
		}
		return count
	}

	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	rep.ProfitOutliers = outside(fs.Profit, all)
	rep.SizeOutliers = outside(fs.Column(colSize), all)

	var durations []float64
	var timed []int
	for i, row := range fs.X {
		if fs.Timed[i] {
			durations = append(durations, row[colDuration])
			timed = append(timed, i)
		}
	}
	if len(durations) > 0 {
		rep.DurationOutliers = outside(durations, timed)
	}

	for i, f := range flagged {
		if f {
			rep.TotalAnomalies++
			rep.Trades = append(rep.Trades, fs.Index[i])
		}
	}
	rep.AnomalyRate = derive.Round(float64(rep.TotalAnomalies)/float64(n)*100, 2)
	return rep
}
