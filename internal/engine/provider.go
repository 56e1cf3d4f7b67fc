package engine

import (
	"context"

	"forex-analyzer/internal/analytics"
	"forex-analyzer/internal/models"
	"forex-analyzer/internal/ml"
	"forex-analyzer/internal/registry"
	"forex-analyzer/internal/risk"
)

// Built-in analysis types.
const (
	TypePerformance    = "performance"
	TypeTimePatterns   = "time_patterns"
	TypeRiskMetrics    = "risk_metrics"
	TypeRiskAssessment = "risk_assessment"
	TypeClustering     = "clustering"
	TypeClassification = "classification"
	TypeAnomalies      = "anomalies"
	TypeMLQuick        = "ml_quick"
	TypeInsights       = "insights"
	TypeComprehensive  = "comprehensive"
)

// AnalysisProvider computes one analysis type over a dataset. Providers
// must not mutate the dataset.
type AnalysisProvider interface {
	Name() string
	Description() string
	Analyze(ctx context.Context, ds *models.TradingDataset, params Params) (interface{}, error)
}

// Providers is the registry of analysis providers keyed by analysis type.
type Providers = registry.Registry[AnalysisProvider]

// ProviderFunc adapts a function to AnalysisProvider.
type ProviderFunc struct {
	Type string
	Desc string
	Fn   func(ctx context.Context, ds *models.TradingDataset, params Params) (interface{}, error)
}

func (p ProviderFunc) Name() string        { return p.Type }
func (p ProviderFunc) Description() string { return p.Desc }
func (p ProviderFunc) Analyze(ctx context.Context, ds *models.TradingDataset, params Params) (interface{}, error) {
	return p.Fn(ctx, ds, params)
}

// builtinProviders registers the standard analyses in display order.
func (e *Engine) builtinProviders() *Providers {
	reg := registry.New[AnalysisProvider]()
	for _, p := range []ProviderFunc{
		{TypePerformance, "Win rate, profit factor, drawdown, Sharpe, expectancy", e.performance},
		{TypeTimePatterns, "Hourly, daily, monthly and session breakdowns", e.timePatterns},
		{TypeRiskMetrics, "Historical VaR, streaks, drawdown periods, rolling metrics", e.riskMetrics},
		{TypeRiskAssessment, "Three-way VaR, Monte Carlo, risk-adjusted ratios, tail risk, attribution", e.riskAssessment},
		{TypeClustering, "K-means or DBSCAN clustering of trades", e.clustering},
		{TypeClassification, "Win/loss classifier with feature importances", e.classification},
		{TypeAnomalies, "IQR outliers in profit, size and duration", e.anomalies},
		{TypeMLQuick, "Clustering, feature importance and anomalies in one pass", e.mlQuick},
		{TypeInsights, "Ranked rule-based insights", e.insightsProvider},
		{TypeComprehensive, "Performance, time patterns, risk, ML and insights together", e.comprehensive},
	} {
		reg.MustRegister(p.Type, p)
	}
	return reg
}

func (e *Engine) performance(_ context.Context, ds *models.TradingDataset, _ Params) (interface{}, error) {
	return analytics.Performance(ds.Trades)
}

func (e *Engine) timePatterns(_ context.Context, ds *models.TradingDataset, params Params) (interface{}, error) {
	granularity, err := params.String("granularity", e.cfg.Analysis.Granularity)
	if err != nil {
		return nil, err
	}
	sessions, err := params.Bool("sessions", true)
	if err != nil {
		return nil, err
	}
	return analytics.AnalyzeTimePatterns(ds.Trades, analytics.TimePatternParams{
		Granularity: analytics.Granularity(granularity),
		Sessions:    sessions,
	})
}

func (e *Engine) riskMetrics(_ context.Context, ds *models.TradingDataset, params Params) (interface{}, error) {
	confidence, err := params.Float("confidence_level", e.cfg.Analysis.ConfidenceLevel)
	if err != nil {
		return nil, err
	}
	window, err := params.Int("rolling_window", e.cfg.Analysis.RollingWindow)
	if err != nil {
		return nil, err
	}
	return analytics.AnalyzeRisk(ds.Trades, analytics.RiskParams{ConfidenceLevel: confidence, RollingWindow: window})
}

func (e *Engine) riskOptions(params Params) (risk.Options, error) {
	opts := risk.OptionsFrom(e.cfg.Risk)
	var err error
	if opts.RiskFreeRate, err = params.Float("risk_free_rate", opts.RiskFreeRate); err != nil {
		return opts, err
	}
	if opts.ConfidenceLevels, err = params.Floats("confidence_levels", opts.ConfidenceLevels); err != nil {
		return opts, err
	}
	if opts.Simulations, err = params.Int("simulations", opts.Simulations); err != nil {
		return opts, err
	}
	seed, err := params.Int("seed", int(opts.Seed))
	if err != nil {
		return opts, err
	}
	opts.Seed = int64(seed)
	return opts, opts.Validate()
}

func (e *Engine) riskAssessment(_ context.Context, ds *models.TradingDataset, params Params) (interface{}, error) {
	opts, err := e.riskOptions(params)
	if err != nil {
		return nil, err
	}
	return risk.Assess(ds.Trades, opts)
}

func (e *Engine) clustering(ctx context.Context, ds *models.TradingDataset, params Params) (interface{}, error) {
	var p ml.ClusterParams
	var err error
	if p.Algorithm, err = params.String("algorithm", ml.AlgorithmKMeans); err != nil {
		return nil, err
	}
	if p.NClusters, err = params.Int("n_clusters", 0); err != nil {
		return nil, err
	}
	if p.Eps, err = params.Float("eps", 0); err != nil {
		return nil, err
	}
	if p.MinSamples, err = params.Int("min_samples", 0); err != nil {
		return nil, err
	}
	return e.ml.Cluster(ctx, ds.Trades, p)
}

func (e *Engine) classification(ctx context.Context, ds *models.TradingDataset, params Params) (interface{}, error) {
	var p ml.ClassifyParams
	var err error
	if p.Model, err = params.String("model", ml.ModelRandomForest); err != nil {
		return nil, err
	}
	if p.CrossValidation, err = params.Bool("cross_validation", true); err != nil {
		return nil, err
	}
	return e.ml.Classify(ctx, ds.Trades, p)
}

func (e *Engine) anomalies(_ context.Context, ds *models.TradingDataset, _ Params) (interface{}, error) {
	return e.ml.Anomalies(ds.Trades)
}

func (e *Engine) mlQuick(ctx context.Context, ds *models.TradingDataset, _ Params) (interface{}, error) {
	return e.ml.Quick(ctx, ds.Trades)
}

func (e *Engine) insightsProvider(ctx context.Context, ds *models.TradingDataset, _ Params) (interface{}, error) {
	return e.generateInsights(ctx, ds)
}
