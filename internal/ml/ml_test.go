package ml

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forex-analyzer/internal/config"
	"forex-analyzer/internal/errors"
	"forex-analyzer/internal/models"
	"forex-analyzer/internal/performance"
)

var base = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC) // Monday

// history builds n trades where morning trades win and afternoon trades lose.
func history(n int) []models.Trade {
	symbols := []string{"EURUSD", "GBPUSD", "USDJPY"}
	out := make([]models.Trade, n)
	for i := 0; i < n; i++ {
		hour := (i * 5) % 24
		open := base.AddDate(0, 0, i).Add(time.Duration(hour) * time.Hour)
		closed := open.Add(time.Duration(30+i*7) * time.Minute)
		profit := -20.0 - float64(i%4)
		if hour < 12 {
			profit = 35.0 + float64(i%3)
		}
		typ := models.Buy
		if i%3 == 0 {
			typ = models.Sell
		}
		pips := profit / 10
		out[i] = models.Trade{
			Ticket:    "t",
			OpenTime:  open,
			CloseTime: &closed,
			Type:      typ,
			Size:      0.1 + float64(i%5)*0.1,
			Symbol:    symbols[i%3],
			OpenPrice: 1.1,
			Profit:    profit,
			Pips:      &pips,
		}
	}
	return out
}

func newAnalyzer(pool *performance.WorkerPool) *Analyzer {
	return NewAnalyzer(config.Default().ML, pool)
}

func TestBuildFeatures(t *testing.T) {
	closed := base.Add(9*time.Hour + 30*time.Minute)
	trades := []models.Trade{
		{OpenTime: base.Add(8 * time.Hour), CloseTime: &closed, Type: models.Buy, Size: 0.5, Symbol: "GBPUSD", Profit: 10},
		{Type: models.Sell, Size: 1, Symbol: "EURUSD"},
		{OpenTime: base.AddDate(0, 0, 1).Add(22 * time.Hour), Type: models.Sell, Size: math.NaN(), Symbol: "EURUSD", Profit: math.NaN()},
	}

	fs := BuildFeatures(trades)
	require.Equal(t, 2, fs.Len())
	assert.Equal(t, []int{0, 2}, fs.Index)
	assert.Equal(t, []string{"EURUSD", "GBPUSD"}, fs.Encoders["symbol"].Classes)
	assert.Equal(t, []string{"Monday", "Tuesday"}, fs.Encoders["day_of_week"].Classes)
	assert.Equal(t, []string{"London", "Sydney"}, fs.Encoders["session"].Classes)

	// hour, day, size, duration, pips, session, symbol
	assert.Equal(t, []float64{8, 0, 0.5, 90, 0, 0, 1}, fs.X[0])
	assert.Equal(t, []float64{22, 1, 0, 0, 0, 1, 0}, fs.X[1])
	assert.Equal(t, []float64{10, 0}, fs.Profit)
	assert.Equal(t, []int{1, 0}, fs.Labels())
}

func TestEncodersAreFreshPerCall(t *testing.T) {
	a := BuildFeatures(history(6))
	b := BuildFeatures(history(1))
	assert.Len(t, a.Encoders["symbol"].Classes, 3)
	assert.Equal(t, []string{"EURUSD"}, b.Encoders["symbol"].Classes)
	code, ok := b.Encoders["symbol"].Code("EURUSD")
	assert.True(t, ok)
	assert.Equal(t, 0, code)
	_, ok = b.Encoders["symbol"].Code("USDJPY")
	assert.False(t, ok)
}

func TestScalerConstantColumn(t *testing.T) {
	X := [][]float64{{1, 5}, {3, 5}, {5, 5}}
	Xs, s := FitTransform(X)
	assert.Equal(t, 1.0, s.Scale[1])
	assert.InDelta(t, math.Sqrt(8.0/3), s.Scale[0], 1e-12)
	for _, row := range Xs {
		assert.Equal(t, 0.0, row[1])
	}
	assert.InDelta(t, 0.0, Xs[1][0], 1e-12)
	assert.InDelta(t, -Xs[0][0], Xs[2][0], 1e-12)
}

func blobs() [][]float64 {
	return [][]float64{
		{0, 0}, {0.1, 0}, {0, 0.1}, {0.1, 0.1},
		{10, 10}, {10.1, 10}, {10, 10.1}, {10.1, 10.1},
	}
}

func TestKMeansSeparatesBlobs(t *testing.T) {
	X := blobs()
	res := KMeans{K: 2, NInit: 10, Seed: 42}.Fit(X)
	for i := 1; i < 4; i++ {
		assert.Equal(t, res.Labels[0], res.Labels[i])
		assert.Equal(t, res.Labels[4], res.Labels[4+i])
	}
	assert.NotEqual(t, res.Labels[0], res.Labels[4])
	assert.InDelta(t, 8*0.005, res.Inertia, 1e-9)
	assert.Greater(t, Silhouette(X, res.Labels), 0.9)

	again := KMeans{K: 2, NInit: 10, Seed: 42}.Fit(X)
	assert.Equal(t, res.Labels, again.Labels)
}

func TestDBSCAN(t *testing.T) {
	X := append(blobs(), []float64{5, 5})
	labels, clusters := DBSCAN(X, 0.5, 3)
	assert.Equal(t, 2, clusters)
	assert.Equal(t, Noise, labels[8])
	assert.Equal(t, []int{0, 0, 0, 0, 1, 1, 1, 1}, labels[:8])

	_, clusters = DBSCAN(X, 0.01, 3)
	assert.Equal(t, 0, clusters)
}

func TestSilhouetteDegenerate(t *testing.T) {
	X := blobs()
	assert.Equal(t, 0.0, Silhouette(X, make([]int, len(X))))
	assert.Equal(t, 0.0, Silhouette(X[:2], []int{0, 1}))
}

func TestHeuristicClusters(t *testing.T) {
	assert.Equal(t, 2, HeuristicClusters(5))
	assert.Equal(t, 2, HeuristicClusters(14))
	assert.Equal(t, 5, HeuristicClusters(25))
	assert.Equal(t, 8, HeuristicClusters(500))
}

func TestClusterInsufficientData(t *testing.T) {
	_, err := newAnalyzer(nil).Cluster(context.Background(), history(4), ClusterParams{})
	var ide *errors.InsufficientDataError
	require.True(t, errors.As(err, &ide))
	assert.Equal(t, 5, ide.Required)
	assert.Equal(t, 4, ide.Actual)
}

func TestClusterKMeans(t *testing.T) {
	trades := history(25)
	c, err := newAnalyzer(nil).Cluster(context.Background(), trades, ClusterParams{})
	require.NoError(t, err)
	assert.Equal(t, AlgorithmKMeans, c.Algorithm)
	assert.Equal(t, 5, c.NClusters)
	require.NotNil(t, c.Inertia)
	assert.Len(t, c.Assignments, 25)
	assert.GreaterOrEqual(t, c.Silhouette, -1.0)
	assert.LessOrEqual(t, c.Silhouette, 1.0)

	total := 0
	for _, s := range c.Clusters {
		total += s.Size
		assert.GreaterOrEqual(t, s.WinRate, 0.0)
		assert.LessOrEqual(t, s.WinRate, 1.0)
		assert.NotEmpty(t, s.DominantSymbol)
	}
	assert.Equal(t, 25, total)

	_, err = newAnalyzer(nil).Cluster(context.Background(), trades, ClusterParams{NClusters: 40})
	assert.True(t, errors.Is(err, errors.ErrNotComputable))
	_, err = newAnalyzer(nil).Cluster(context.Background(), trades, ClusterParams{Algorithm: "spectral"})
	assert.Error(t, err)
}

func TestClusterDBSCANTooFewClusters(t *testing.T) {
	_, err := newAnalyzer(nil).Cluster(context.Background(), history(25),
		ClusterParams{Algorithm: AlgorithmDBSCAN, Eps: 0.001, MinSamples: 5})
	assert.True(t, errors.Is(err, errors.ErrNotComputable))
}

func TestZeroVarianceDoesNotCrash(t *testing.T) {
	trades := make([]models.Trade, 25)
	for i := range trades {
		trades[i] = models.Trade{
			OpenTime: base.Add(9 * time.Hour),
			Type:     models.Buy,
			Size:     1,
			Symbol:   "EURUSD",
			Profit:   float64(10 * (i%2*2 - 1)),
		}
	}
	a := newAnalyzer(nil)
	ctx := context.Background()

	c, err := a.Cluster(ctx, trades, ClusterParams{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, c.Silhouette)

	cl, err := a.Classify(ctx, trades, ClassifyParams{Model: ModelDecisionTree, CrossValidation: true})
	require.NoError(t, err)
	for _, fi := range cl.FeatureImportance {
		assert.Equal(t, 0.0, fi.Importance)
	}
}

func TestClassifyRandomForestWithCV(t *testing.T) {
	pool := performance.NewWorkerPool(4)
	pool.Start()
	defer pool.Stop()

	res, err := newAnalyzer(pool).Classify(context.Background(), history(25),
		ClassifyParams{Model: ModelRandomForest, CrossValidation: true})
	require.NoError(t, err)

	assert.Equal(t, ModelRandomForest, res.ModelType)
	assert.Equal(t, 20, res.TrainSize)
	assert.Equal(t, 5, res.TestSize)
	assert.True(t, res.Stratified)
	assert.GreaterOrEqual(t, res.TrainAccuracy, 0.0)
	assert.LessOrEqual(t, res.TrainAccuracy, 1.0)
	assert.GreaterOrEqual(t, res.TestAccuracy, 0.0)
	assert.LessOrEqual(t, res.TestAccuracy, 1.0)
	require.NotEmpty(t, res.CVScores)
	assert.LessOrEqual(t, len(res.CVScores), 5)
	for _, s := range res.CVScores {
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
	assert.Len(t, res.FeatureImportance, len(FeatureNames))

	var sum float64
	for _, fi := range res.FeatureImportance {
		sum += fi.Importance
	}
	assert.InDelta(t, 1.0, sum, 1e-3)
}

func TestClassifyDeterministicAcrossPools(t *testing.T) {
	pool := performance.NewWorkerPool(4)
	pool.Start()
	defer pool.Stop()

	params := ClassifyParams{Model: ModelRandomForest, CrossValidation: true}
	a, err := newAnalyzer(pool).Classify(context.Background(), history(30), params)
	require.NoError(t, err)
	b, err := newAnalyzer(nil).Classify(context.Background(), history(30), params)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestClassifyFallbackAndInsufficient(t *testing.T) {
	a := newAnalyzer(nil)
	res, err := a.Classify(context.Background(), history(22), ClassifyParams{Model: "xgboost"})
	require.NoError(t, err)
	assert.Equal(t, ModelRandomForest, res.ModelType)
	assert.Equal(t, "xgboost", res.RequestedModel)
	assert.Empty(t, res.CVScores)

	_, err = a.Classify(context.Background(), history(19), ClassifyParams{})
	var ide *errors.InsufficientDataError
	require.True(t, errors.As(err, &ide))
	assert.Equal(t, 20, ide.Required)
}

func TestDecisionTreeLearnsThreshold(t *testing.T) {
	X := [][]float64{{1}, {2}, {3}, {4}, {5}, {6}}
	y := []int{0, 0, 0, 1, 1, 1}
	tree := FitTree(X, y, []int{0, 1, 2, 3, 4, 5}, TreeParams{MaxDepth: 3}, nil)
	for i := range X {
		assert.Equal(t, y[i], tree.Predict(X[i]))
	}
	assert.Equal(t, []float64{1}, tree.Importances())
	assert.Equal(t, 0, tree.Predict([]float64{3.4}))
	assert.Equal(t, 1, tree.Predict([]float64{3.6}))
}

func TestTrainTestSplit(t *testing.T) {
	y := make([]int, 25)
	for i := 0; i < 15; i++ {
		y[i] = 1
	}
	train, test, stratified := trainTestSplit(y, 0.2, rand.New(rand.NewSource(42)))
	assert.True(t, stratified)
	assert.Len(t, test, 5)
	assert.Len(t, train, 20)
	wins := 0
	for _, r := range test {
		wins += y[r]
	}
	assert.Equal(t, 3, wins)

	y = []int{1, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	train, test, stratified = trainTestSplit(y, 0.2, rand.New(rand.NewSource(42)))
	assert.False(t, stratified)
	assert.Len(t, test, 2)
	assert.Len(t, train, 8)
}

func TestClassificationReport(t *testing.T) {
	rep := classificationReport([]int{1, 1, 0, 0}, []int{1, 0, 0, 0})
	assert.Equal(t, 0.75, rep.Accuracy)
	assert.Equal(t, ClassMetrics{Precision: 1, Recall: 0.5, F1: 2.0 / 3, Support: 2}, rep.Classes["1"])
	assert.InDelta(t, 2.0/3, rep.Classes["0"].Precision, 1e-12)
	assert.Equal(t, 1.0, rep.Classes["0"].Recall)
	assert.Equal(t, 4, rep.WeightedAvg.Support)
}

func TestDetectAnomalies(t *testing.T) {
	trades := make([]models.Trade, 10)
	for i := range trades {
		trades[i] = models.Trade{OpenTime: base.Add(time.Duration(i) * time.Hour), Type: models.Buy, Size: 0.1, Symbol: "EURUSD", Profit: 10}
	}
	trades[7].Profit = 1000
	trades[3].Size = 5

	rep, err := newAnalyzer(nil).Anomalies(trades)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.ProfitOutliers)
	assert.Equal(t, 1, rep.SizeOutliers)
	assert.Equal(t, 0, rep.DurationOutliers)
	assert.Equal(t, 2, rep.TotalAnomalies)
	assert.Equal(t, 20.0, rep.AnomalyRate)
	assert.Equal(t, []int{3, 7}, rep.Trades)

	_, err = newAnalyzer(nil).Anomalies(nil)
	assert.True(t, errors.Is(err, errors.ErrNoTrades))
}

func TestDetectAnomaliesFencesDurationBothWays(t *testing.T) {
	trades := make([]models.Trade, 12)
	for i := range trades {
		open := base.Add(time.Duration(i) * time.Hour)
		closed := open.Add(time.Duration(300+i) * time.Minute)
		trades[i] = models.Trade{OpenTime: open, CloseTime: &closed, Type: models.Buy, Size: 0.1, Symbol: "EURUSD", Profit: 10}
	}
	short := trades[4].OpenTime.Add(time.Minute)
	trades[4].CloseTime = &short
	long := trades[9].OpenTime.Add(5000 * time.Minute)
	trades[9].CloseTime = &long
	// open positions take no part in the duration fences
	trades[10].CloseTime = nil
	trades[11].CloseTime = nil

	rep, err := newAnalyzer(nil).Anomalies(trades)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.DurationOutliers)
	assert.Equal(t, []int{4, 9}, rep.Trades)
}

func TestQuick(t *testing.T) {
	a := newAnalyzer(nil)
	ctx := context.Background()

	_, err := a.Quick(ctx, history(9))
	var ide *errors.InsufficientDataError
	require.True(t, errors.As(err, &ide))

	q, err := a.Quick(ctx, history(12))
	require.NoError(t, err)
	assert.NotNil(t, q.Clustering)
	assert.Nil(t, q.FeatureImportance)

	q, err = a.Quick(ctx, history(25))
	require.NoError(t, err)
	require.NotNil(t, q.FeatureImportance)
	assert.Len(t, q.FeatureImportance.Features, len(FeatureNames))
	assert.Equal(t, q.FeatureImportance.Features[0].Feature, q.FeatureImportance.MostImportant)
	for i := 1; i < len(q.FeatureImportance.Features); i++ {
		assert.GreaterOrEqual(t, q.FeatureImportance.Features[i-1].Importance, q.FeatureImportance.Features[i].Importance)
	}
}

func TestStratifiedFoldsPartitionProperty(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("folds cover every row exactly once", prop.ForAll(
		func(y []int, k int) bool {
			rows := make([]int, len(y))
			for i := range rows {
				rows[i] = i
			}
			seen := make(map[int]int)
			for _, f := range stratifiedFolds(rows, y, k) {
				for _, r := range f {
					seen[r]++
				}
			}
			if len(seen) != len(y) {
				return false
			}
			for _, c := range seen {
				if c != 1 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1)),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}
