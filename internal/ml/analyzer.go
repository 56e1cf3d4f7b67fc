package ml

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"forex-analyzer/internal/config"
	"forex-analyzer/internal/derive"
	"forex-analyzer/internal/errors"
	"forex-analyzer/internal/logging"
	"forex-analyzer/internal/models"
	"forex-analyzer/internal/performance"
)

// Clustering algorithms.
const (
	AlgorithmKMeans = "kmeans"
	AlgorithmDBSCAN = "dbscan"
)

// Classifier models.
const (
	ModelRandomForest = "random_forest"
	ModelDecisionTree = "decision_tree"
)

// Analyzer runs the ML analyses with thresholds from configuration. Forest
// training fans out over pool.
type Analyzer struct {
	cfg  config.MLConfig
	pool *performance.WorkerPool
}

// NewAnalyzer creates an analyzer. A nil pool trains trees on the caller's
// goroutine.
func NewAnalyzer(cfg config.MLConfig, pool *performance.WorkerPool) *Analyzer {
	if pool == nil {
		pool = performance.NewWorkerPool(1)
	}
	return &Analyzer{cfg: cfg, pool: pool}
}

// ClusterParams selects the clustering algorithm. NClusters 0 picks
// HeuristicClusters; zero Eps or MinSamples use the configured defaults.
type ClusterParams struct {
	Algorithm  string
	NClusters  int
	Eps        float64
	MinSamples int
}

// ClusterStats describes one cluster.
type ClusterStats struct {
	Label           string  `json:"label" yaml:"label"`
	Size            int     `json:"size" yaml:"size"`
	AvgProfit       float64 `json:"avg_profit" yaml:"avg_profit"`
	TotalProfit     float64 `json:"total_profit" yaml:"total_profit"`
	WinRate         float64 `json:"win_rate" yaml:"win_rate"`
	DominantSession string  `json:"dominant_session,omitempty" yaml:"dominant_session,omitempty"`
	DominantSymbol  string  `json:"dominant_symbol,omitempty" yaml:"dominant_symbol,omitempty"`
	DominantType    string  `json:"dominant_type,omitempty" yaml:"dominant_type,omitempty"`
	AvgSize         float64 `json:"avg_size" yaml:"avg_size"`
	AvgDuration     float64 `json:"avg_duration" yaml:"avg_duration"`
}

// Clustering is the result of a clustering run.
type Clustering struct {
	Algorithm   string         `json:"algorithm" yaml:"algorithm"`
	NClusters   int            `json:"n_clusters" yaml:"n_clusters"`
	Silhouette  float64        `json:"silhouette_score" yaml:"silhouette_score"`
	Inertia     *float64       `json:"inertia,omitempty" yaml:"inertia,omitempty"`
	NNoise      *int           `json:"n_noise,omitempty" yaml:"n_noise,omitempty"`
	Eps         float64        `json:"eps,omitempty" yaml:"eps,omitempty"`
	MinSamples  int            `json:"min_samples,omitempty" yaml:"min_samples,omitempty"`
	Clusters    []ClusterStats `json:"cluster_analysis" yaml:"cluster_analysis"`
	Noise       *ClusterStats  `json:"noise,omitempty" yaml:"noise,omitempty"`
	Assignments []int          `json:"trade_clusters" yaml:"trade_clusters"`
}

// Cluster groups trades by their standardized features.
func (a *Analyzer) Cluster(ctx context.Context, trades []models.Trade, params ClusterParams) (*Clustering, error) {
	fs := BuildFeatures(trades)
	if fs.Len() < a.cfg.MinClusterTrades {
		return nil, errors.NewInsufficientDataError("clustering", a.cfg.MinClusterTrades, fs.Len())
	}
	X, _ := FitTransform(fs.X)

	algorithm := params.Algorithm
	if algorithm == "" {
		algorithm = AlgorithmKMeans
	}

	switch algorithm {
	case AlgorithmKMeans:
		k := params.NClusters
		if k == 0 {
			k = HeuristicClusters(fs.Len())
		}
		if k < 2 || k > fs.Len() {
			return nil, errors.Wrapf(errors.ErrNotComputable, "n_clusters must be between 2 and %d, got %d", fs.Len(), k)
		}
		res := KMeans{K: k, NInit: a.cfg.NInit, Seed: a.cfg.Seed}.Fit(X)
		out := describeClusters(fs, res.Labels, k)
		out.Algorithm = AlgorithmKMeans
		out.Silhouette = derive.Round(Silhouette(X, res.Labels), 3)
		inertia := derive.Round(res.Inertia, 4)
		out.Inertia = &inertia
		logger := logging.FromContext(ctx)
		logger.Debug().
			Int("k", k).
			Float64("inertia", inertia).
			Msg("k-means clustering complete")
		return out, nil

	case AlgorithmDBSCAN:
		eps := params.Eps
		if eps <= 0 {
			eps = a.cfg.DBSCANEps
		}
		minSamples := params.MinSamples
		if minSamples <= 0 {
			minSamples = a.cfg.DBSCANMinSamples
		}
		labels, k := DBSCAN(X, eps, minSamples)
		if k < 2 {
			return nil, errors.Wrapf(errors.ErrNotComputable,
				"DBSCAN found %d clusters, need at least 2; try adjusting eps or min_samples", k)
		}
		out := describeClusters(fs, labels, k)
		out.Algorithm = AlgorithmDBSCAN
		out.Silhouette = derive.Round(Silhouette(X, labels), 3)
		out.Eps = eps
		out.MinSamples = minSamples
		noise := 0
		if out.Noise != nil {
			noise = out.Noise.Size
		}
		out.NNoise = &noise
		return out, nil

	default:
		return nil, fmt.Errorf("unknown clustering algorithm: %s", algorithm)
	}
}

func describeClusters(fs *FeatureSet, labels []int, k int) *Clustering {
	members := make(map[int][]int, k+1)
	for i, l := range labels {
		members[l] = append(members[l], i)
	}

	out := &Clustering{NClusters: k, Assignments: append([]int(nil), labels...)}
	for c := 0; c < k; c++ {
		rows := members[c]
		if len(rows) == 0 {
			continue
		}
		out.Clusters = append(out.Clusters, clusterStats(fs, fmt.Sprintf("cluster_%d", c), rows))
	}
	if rows := members[Noise]; len(rows) > 0 {
		s := clusterStats(fs, "noise", rows)
		out.Noise = &s
	}
	return out
}

func clusterStats(fs *FeatureSet, label string, rows []int) ClusterStats {
	var total, size, duration float64
	wins := 0
	sessions := make([]string, len(rows))
	symbols := make([]string, len(rows))
	types := make([]string, len(rows))
	for i, r := range rows {
		total += fs.Profit[r]
		if fs.Profit[r] > 0 {
			wins++
		}
		size += fs.X[r][colSize]
		duration += fs.X[r][colDuration]
		sessions[i] = fs.Session[r]
		symbols[i] = fs.Symbol[r]
		types[i] = fs.Type[r]
	}
	n := float64(len(rows))
	return ClusterStats{
		Label:           label,
		Size:            len(rows),
		AvgProfit:       derive.Round(total/n, 2),
		TotalProfit:     derive.Round(total, 2),
		WinRate:         derive.Round(float64(wins)/n, 4),
		DominantSession: mode(sessions),
		DominantSymbol:  mode(symbols),
		DominantType:    mode(types),
		AvgSize:         derive.Round(size/n, 4),
		AvgDuration:     derive.Round(duration/n, 2),
	}
}

// mode returns the most frequent value, preferring the lexically smallest
// on ties.
func mode(values []string) string {
	counts := make(map[string]int)
	for _, v := range values {
		counts[v]++
	}
	best, bestN := "", 0
	for v, c := range counts {
		if c > bestN || (c == bestN && v < best) {
			best, bestN = v, c
		}
	}
	return best
}

// ClassifyParams selects the classifier. Unknown models fall back to a
// random forest.
type ClassifyParams struct {
	Model           string
	CrossValidation bool
}

// FeatureImportance is one feature's share of the total impurity decrease.
type FeatureImportance struct {
	Feature    string  `json:"feature" yaml:"feature"`
	Importance float64 `json:"importance" yaml:"importance"`
}

// Classification is the result of training a win/loss classifier.
type Classification struct {
	ModelType         string              `json:"model_type" yaml:"model_type"`
	RequestedModel    string              `json:"requested_model,omitempty" yaml:"requested_model,omitempty"`
	TrainSize         int                 `json:"train_size" yaml:"train_size"`
	TestSize          int                 `json:"test_size" yaml:"test_size"`
	Stratified        bool                `json:"stratified" yaml:"stratified"`
	TrainAccuracy     float64             `json:"train_accuracy" yaml:"train_accuracy"`
	TestAccuracy      float64             `json:"test_accuracy" yaml:"test_accuracy"`
	Accuracy          float64             `json:"accuracy" yaml:"accuracy"`
	CVScores          []float64           `json:"cv_scores" yaml:"cv_scores"`
	CVMean            float64             `json:"cv_mean" yaml:"cv_mean"`
	CVStd             float64             `json:"cv_std" yaml:"cv_std"`
	Report            Report              `json:"classification_report" yaml:"classification_report"`
	FeatureImportance []FeatureImportance `json:"feature_importance" yaml:"feature_importance"`
}

// Classify trains a classifier that predicts whether a trade wins.
func (a *Analyzer) Classify(ctx context.Context, trades []models.Trade, params ClassifyParams) (*Classification, error) {
	fs := BuildFeatures(trades)
	if fs.Len() < a.cfg.MinClassifyTrades {
		return nil, errors.NewInsufficientDataError("classification", a.cfg.MinClassifyTrades, fs.Len())
	}
	logger := logging.FromContext(ctx)

	model := params.Model
	if model != ModelDecisionTree && model != ModelRandomForest {
		if model != "" {
			logger.Debug().Str("model", model).Msg("unsupported classifier, using random forest")
		}
		model = ModelRandomForest
	}

	y := fs.Labels()
	train, test, stratified := trainTestSplit(y, 0.2, rand.New(rand.NewSource(a.cfg.Seed)))
	X := FitScaler(subset(fs.X, train)).Transform(fs.X)

	clf, err := a.fit(ctx, model, X, y, train)
	if err != nil {
		return nil, err
	}

	truth := subsetInt(y, test)
	pred := make([]int, len(test))
	for i, r := range test {
		pred[i] = clf.Predict(X[r])
	}

	out := &Classification{
		ModelType:     model,
		TrainSize:     len(train),
		TestSize:      len(test),
		Stratified:    stratified,
		TrainAccuracy: derive.Round(accuracy(clf, X, y, train), 3),
		TestAccuracy:  derive.Round(accuracy(clf, X, y, test), 3),
		CVScores:      []float64{},
		Report:        classificationReport(truth, pred),
	}
	out.Accuracy = out.TestAccuracy
	if params.Model != "" && params.Model != model {
		out.RequestedModel = params.Model
	}

	if params.CrossValidation && len(train) > 10 {
		k := len(train) / 2
		if k > 5 {
			k = 5
		}
		scores, err := a.crossValidate(ctx, model, X, y, train, k)
		if err != nil {
			return nil, err
		}
		for _, s := range scores {
			out.CVScores = append(out.CVScores, derive.Round(s, 3))
		}
		out.CVMean = derive.Round(derive.Mean(scores), 3)
		out.CVStd = derive.Round(derive.PopStdDev(scores), 3)
	}

	out.FeatureImportance = importances(clf.Importances(), false)
	logger.Debug().
		Str("model", model).
		Int("train", len(train)).
		Float64("test_accuracy", out.TestAccuracy).
		Msg("classifier trained")
	return out, nil
}

func (a *Analyzer) fit(ctx context.Context, model string, X [][]float64, y []int, rows []int) (Classifier, error) {
	if model == ModelDecisionTree {
		return FitTree(X, y, rows, TreeParams{MaxDepth: a.cfg.MaxDepth}, nil), nil
	}
	return FitForest(ctx, a.pool, X, y, rows, ForestParams{NEstimators: a.cfg.NEstimators, Seed: a.cfg.Seed})
}

func (a *Analyzer) crossValidate(ctx context.Context, model string, X [][]float64, y []int, rows []int, k int) ([]float64, error) {
	folds := stratifiedFolds(rows, y, k)
	scores := make([]float64, 0, k)
	for i, held := range folds {
		var fitRows []int
		for j, f := range folds {
			if j != i {
				fitRows = append(fitRows, f...)
			}
		}
		clf, err := a.fit(ctx, model, X, y, fitRows)
		if err != nil {
			return nil, err
		}
		scores = append(scores, accuracy(clf, X, y, held))
	}
	return scores, nil
}

func importances(values []float64, sorted bool) []FeatureImportance {
	out := make([]FeatureImportance, len(values))
	for j, v := range values {
		out[j] = FeatureImportance{Feature: FeatureNames[j], Importance: derive.Round(v, 4)}
	}
	if sorted {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	}
	return out
}

// Importance ranks features by random-forest importance.
type Importance struct {
	Features       []FeatureImportance `json:"feature_importance" yaml:"feature_importance"`
	MostImportant  string              `json:"most_important" yaml:"most_important"`
	LeastImportant string              `json:"least_important" yaml:"least_important"`
}

// FeatureImportance trains a forest on every row of the unscaled matrix and
// ranks the features.
func (a *Analyzer) FeatureImportance(ctx context.Context, fs *FeatureSet) (*Importance, error) {
	if fs.Len() == 0 {
		return nil, errors.ErrNoTrades
	}
	rows := make([]int, fs.Len())
	for i := range rows {
		rows[i] = i
	}
	forest, err := FitForest(ctx, a.pool, fs.X, fs.Labels(), rows,
		ForestParams{NEstimators: a.cfg.NEstimators, Seed: a.cfg.Seed})
	if err != nil {
		return nil, err
	}
	ranked := importances(forest.Importances(), true)
	return &Importance{
		Features:       ranked,
		MostImportant:  ranked[0].Feature,
		LeastImportant: ranked[len(ranked)-1].Feature,
	}, nil
}

// Anomalies runs IQR anomaly detection.
func (a *Analyzer) Anomalies(trades []models.Trade) (*AnomalyReport, error) {
	fs := BuildFeatures(trades)
	if fs.Len() == 0 {
		return nil, errors.ErrNoTrades
	}
	rep := DetectAnomalies(fs, a.cfg.IQRMultiplier)
	return &rep, nil
}

// QuickAnalysis bundles the light-weight ML sections.
type QuickAnalysis struct {
	Clustering        *Clustering   `json:"clustering,omitempty" yaml:"clustering,omitempty"`
	FeatureImportance *Importance   `json:"feature_importance,omitempty" yaml:"feature_importance,omitempty"`
	Anomalies         AnomalyReport `json:"anomalies" yaml:"anomalies"`
}

// Quick runs heuristic k-means, feature importance and anomaly detection,
// each only when there are enough trades for it.
func (a *Analyzer) Quick(ctx context.Context, trades []models.Trade) (*QuickAnalysis, error) {
	fs := BuildFeatures(trades)
	if fs.Len() < a.cfg.MinQuickTrades {
		return nil, errors.NewInsufficientDataError("ml_quick", a.cfg.MinQuickTrades, fs.Len())
	}

	out := &QuickAnalysis{Anomalies: DetectAnomalies(fs, a.cfg.IQRMultiplier)}
	if fs.Len() >= a.cfg.MinClusterTrades {
		c, err := a.Cluster(ctx, trades, ClusterParams{Algorithm: AlgorithmKMeans})
		if err != nil && !errors.Is(err, errors.ErrNotComputable) {
			return nil, err
		}
		out.Clustering = c
	}
	if fs.Len() >= a.cfg.MinClassifyTrades {
		imp, err := a.FeatureImportance(ctx, fs)
		if err != nil {
			return nil, err
		}
		out.FeatureImportance = imp
	}
	return out, nil
}
