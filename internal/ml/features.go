// Package ml implements the machine-learning analyses over a trade history:
// k-means and DBSCAN clustering, win/loss classification with decision trees
// and random forests, and IQR anomaly detection.
//
// Every call builds its own encoders and scaler from the trades it is given.
// Nothing fitted is kept between calls, so concurrent analyses of different
// datasets never share state.
package ml

import (
	"math"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"forex-analyzer/internal/analytics"
	"forex-analyzer/internal/models"
)

// FeatureNames lists the feature columns in matrix order.
var FeatureNames = []string{
	"hour",
	"day_of_week_encoded",
	"size",
	"duration_minutes",
	"pips",
	"session_encoded",
	"symbol_encoded",
}

// Feature column indices.
const (
	colHour = iota
	colDay
	colSize
	colDuration
	colPips
	colSession
	colSymbol
)

// LabelEncoder maps category names to integer codes in sorted order.
type LabelEncoder struct {
	Classes []string `json:"classes"`
	index   map[string]int
}

// FitLabelEncoder learns the distinct values, sorted lexically.
func FitLabelEncoder(values []string) *LabelEncoder {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	classes := maps.Keys(seen)
	slices.Sort(classes)

	e := &LabelEncoder{Classes: classes, index: make(map[string]int, len(classes))}
	for i, c := range classes {
		e.index[c] = i
	}
	return e
}

// Code returns the code for v and whether v was seen during fitting.
func (e *LabelEncoder) Code(v string) (int, bool) {
	i, ok := e.index[v]
	return i, ok
}

// FeatureSet is the per-call feature matrix with the categorical columns
// kept alongside for cluster descriptions.
type FeatureSet struct {
	X        [][]float64
	Profit   []float64
	Day      []string
	Session  []string
	Symbol   []string
	Type     []string
	Timed    []bool // whether the trade has a known duration
	Index    []int  // position of each row in the input trades
	Encoders map[string]*LabelEncoder
}

// Len returns the number of rows.
func (fs *FeatureSet) Len() int { return len(fs.X) }

// Column returns a copy of column j.
func (fs *FeatureSet) Column(j int) []float64 {
	out := make([]float64, len(fs.X))
	for i, row := range fs.X {
		out[i] = row[j]
	}
	return out
}

// Labels returns the binary win target: 1 when profit > 0.
func (fs *FeatureSet) Labels() []int {
	y := make([]int, len(fs.Profit))
	for i, p := range fs.Profit {
		if p > 0 {
			y[i] = 1
		}
	}
	return y
}

// BuildFeatures builds the feature matrix. Trades without an open time are
// skipped; missing numeric values become 0.
func BuildFeatures(trades []models.Trade) *FeatureSet {
	fs := &FeatureSet{}
	var durations []float64
	for i := range trades {
		t := &trades[i]
		if t.OpenTime.IsZero() {
			continue
		}
		open := t.OpenTime.UTC()

		var duration float64
		timed := true
		switch {
		case t.Duration != nil:
			duration = float64(*t.Duration)
		case t.CloseTime != nil:
			duration = t.CloseTime.Sub(t.OpenTime).Minutes()
		default:
			timed = false
		}
		var pips float64
		if t.Pips != nil {
			pips = *t.Pips
		}

		fs.Index = append(fs.Index, i)
		fs.Profit = append(fs.Profit, zeroNaN(t.Profit))
		fs.Day = append(fs.Day, open.Weekday().String())
		fs.Session = append(fs.Session, analytics.SessionFor(open.Hour()))
		fs.Symbol = append(fs.Symbol, t.Symbol)
		fs.Type = append(fs.Type, string(t.Type))
		fs.Timed = append(fs.Timed, timed && !math.IsNaN(duration))
		durations = append(durations, zeroNaN(duration))
		fs.X = append(fs.X, []float64{
			float64(open.Hour()),
			0,
			zeroNaN(t.Size),
			0,
			zeroNaN(pips),
			0,
			0,
		})
	}

	fs.Encoders = map[string]*LabelEncoder{
		"day_of_week": FitLabelEncoder(fs.Day),
		"session":     FitLabelEncoder(fs.Session),
		"symbol":      FitLabelEncoder(fs.Symbol),
		"type":        FitLabelEncoder(fs.Type),
	}
	for i, row := range fs.X {
		day, _ := fs.Encoders["day_of_week"].Code(fs.Day[i])
		session, _ := fs.Encoders["session"].Code(fs.Session[i])
		symbol, _ := fs.Encoders["symbol"].Code(fs.Symbol[i])
		row[colDay] = float64(day)
		row[colDuration] = durations[i]
		row[colSession] = float64(session)
		row[colSymbol] = float64(symbol)
	}
	return fs
}

func zeroNaN(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// StandardScaler standardizes columns to zero mean and unit population
// variance. Constant columns are centred but not scaled.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// FitScaler learns column means and scales.
func FitScaler(X [][]float64) *StandardScaler {
	if len(X) == 0 {
		return &StandardScaler{}
	}
	d := len(X[0])
	s := &StandardScaler{Mean: make([]float64, d), Scale: make([]float64, d)}
	n := float64(len(X))
	for _, row := range X {
		for j, v := range row {
			s.Mean[j] += v
		}
	}
	for j := range s.Mean {
		s.Mean[j] /= n
	}
	for _, row := range X {
		for j, v := range row {
			dv := v - s.Mean[j]
			s.Scale[j] += dv * dv
		}
	}
	for j := range s.Scale {
		s.Scale[j] = math.Sqrt(s.Scale[j] / n)
		if s.Scale[j] == 0 {
			s.Scale[j] = 1
		}
	}
	return s
}

// Transform returns a scaled copy of X.
func (s *StandardScaler) Transform(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		r := make([]float64, len(row))
		for j, v := range row {
			r[j] = (v - s.Mean[j]) / s.Scale[j]
		}
		out[i] = r
	}
	return out
}

// FitTransform fits a scaler on X and returns the scaled copy.
func FitTransform(X [][]float64) ([][]float64, *StandardScaler) {
	s := FitScaler(X)
	return s.Transform(X), s
}

func subset(X [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = X[j]
	}
	return out
}

func subsetInt(y []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, j := range idx {
		out[i] = y[j]
	}
	return out
}

func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}
