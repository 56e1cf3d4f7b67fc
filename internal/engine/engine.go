// Package engine is the library facade over ingest, validation, analytics
// and storage. It dispatches analyses through a registry of providers and
// records each run as an AnalysisResult.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"forex-analyzer/internal/config"
	"forex-analyzer/internal/errors"
	"forex-analyzer/internal/ingest"
	"forex-analyzer/internal/insights"
	"forex-analyzer/internal/logging"
	"forex-analyzer/internal/metrics"
	"forex-analyzer/internal/ml"
	"forex-analyzer/internal/models"
	"forex-analyzer/internal/performance"
	"forex-analyzer/internal/risk"
	"forex-analyzer/internal/store"
	"forex-analyzer/internal/validate"
	"forex-analyzer/pkg/utils"
)

// Engine wires the pipeline stages to a store.
type Engine struct {
	cfg       *config.Config
	store     store.DataStore
	processor *ingest.Processor
	validator *validate.Validator
	providers *Providers
	ml        *ml.Analyzer
	pool      *performance.WorkerPool
	insights  *insights.Generator
	cache     *cache.Cache
	metrics   *metrics.Collector
	logger    zerolog.Logger
	now       func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithMetrics records uploads, analyses and cache lookups on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// WithNormalizers replaces the format normalizer registry.
func WithNormalizers(n *ingest.Normalizers) Option {
	return func(e *Engine) {
		e.processor = ingest.NewProcessor(n, processorOptions(e.cfg), e.logger)
	}
}

// WithClock overrides the time source used for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine and starts its training worker pool. Call Close to
// stop the pool.
func New(cfg *config.Config, st store.DataStore, logger zerolog.Logger, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	logger = logging.WithOperation(logger, "engine")

	pool := performance.NewWorkerPool(cfg.ML.Workers)
	pool.Start()

	e := &Engine{
		cfg:       cfg,
		store:     st,
		validator: validate.New(cfg.Validation),
		pool:      pool,
		ml:        ml.NewAnalyzer(cfg.ML, pool),
		insights:  insights.NewGenerator(cfg.Insights),
		cache:     cache.New(cfg.Storage.CacheTTL, 2*cfg.Storage.CacheTTL),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	e.processor = ingest.NewProcessor(nil, processorOptions(cfg), logger)
	for _, opt := range opts {
		opt(e)
	}
	e.providers = e.builtinProviders()
	return e
}

func processorOptions(cfg *config.Config) ingest.Options {
	opts := ingest.DefaultOptions()
	opts.DefaultCurrency = cfg.Ingest.DefaultCurrency
	opts.DefaultLeverage = float64(cfg.Ingest.DefaultLeverage)
	opts.ContractSize = cfg.Validation.ContractSize
	opts.MaxFileSize = int64(cfg.Ingest.MaxFileSizeMB) << 20
	return opts
}

// Close stops the worker pool.
func (e *Engine) Close() {
	e.pool.Stop()
}

// Config returns the engine configuration.
func (e *Engine) Config() *config.Config { return e.cfg }

// Providers returns the analysis provider registry. Callers may register
// additional providers.
func (e *Engine) Providers() *Providers { return e.providers }

// Normalizers returns the format normalizer registry. Callers may register
// additional normalizers.
func (e *Engine) Normalizers() *ingest.Normalizers { return e.processor.Normalizers() }

// Metrics returns the collector, which may be nil.
func (e *Engine) Metrics() *metrics.Collector { return e.metrics }

// UploadResult reports the outcome of one upload.
type UploadResult struct {
	DatasetID  string           `json:"dataset_id,omitempty" yaml:"dataset_id,omitempty"`
	Filename   string           `json:"filename" yaml:"filename"`
	Source     models.Source    `json:"source" yaml:"source"`
	RowsRead   int              `json:"rows_read" yaml:"rows_read"`
	TradeCount int              `json:"trade_count" yaml:"trade_count"`
	Dropped    map[string]int   `json:"dropped,omitempty" yaml:"dropped,omitempty"`
	Warnings   []string         `json:"warnings" yaml:"warnings"`
	Validation *validate.Result `json:"validation" yaml:"validation"`
	Summary    *Summary         `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// Upload normalizes, validates and stores one export. Validation errors
// block storage and are returned as a ValidationError alongside the result;
// warnings do not.
func (e *Engine) Upload(ctx context.Context, filename string, data []byte, source models.Source) (*UploadResult, error) {
	logger := e.logger.With().Str("file", filename).Logger()
	ctx = logging.WithLogger(ctx, logger)

	res, err := e.processor.Process(ctx, filename, data, source)
	if err != nil {
		e.metrics.ObserveUpload("", 0, 0, err)
		return nil, err
	}

	out := &UploadResult{
		Filename:   filename,
		Source:     res.Source,
		RowsRead:   res.RowsRead,
		TradeCount: len(res.Dataset.Trades),
		Dropped:    res.Dropped,
		Warnings:   append([]string{}, res.Warnings...),
	}

	v := e.validator.Validate(res.Dataset)
	out.Validation = v
	out.Warnings = append(out.Warnings, v.Warnings...)
	logging.LogValidation(logger, "", len(v.Errors), len(v.Warnings))
	if !v.IsValid {
		err := v.Err()
		e.metrics.ObserveUpload(string(res.Source), res.RowsRead, len(res.Dataset.Trades), err)
		return out, err
	}

	if err := e.retryBusy(ctx, func() error { return e.store.SaveDataset(ctx, res.Dataset) }); err != nil {
		e.metrics.ObserveUpload(string(res.Source), res.RowsRead, len(res.Dataset.Trades), err)
		return out, err
	}
	out.DatasetID = res.Dataset.ID
	out.Summary = Summarize(res.Dataset.Trades)

	e.metrics.ObserveUpload(string(res.Source), res.RowsRead, len(res.Dataset.Trades), nil)
	logger.Info().
		Str("dataset_id", out.DatasetID).
		Str("source", string(out.Source)).
		Int("trades", out.TradeCount).
		Int("warnings", len(out.Warnings)).
		Msg("Dataset uploaded")
	return out, nil
}

// Dataset loads a stored dataset.
func (e *Engine) Dataset(ctx context.Context, id string) (*models.TradingDataset, error) {
	return e.store.GetDataset(ctx, id)
}

// Datasets lists stored datasets.
func (e *Engine) Datasets(ctx context.Context, filter store.DatasetFilter) ([]models.DatasetInfo, error) {
	return e.store.ListDatasets(ctx, filter)
}

// DeleteDataset removes a dataset, its stored results and its cached
// analyses.
func (e *Engine) DeleteDataset(ctx context.Context, id string) error {
	if err := e.store.DeleteDataset(ctx, id); err != nil {
		return err
	}
	prefix := id + "|"
	for key := range e.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			e.cache.Delete(key)
		}
	}
	return nil
}

// Quality builds the quality report of a stored dataset.
func (e *Engine) Quality(ctx context.Context, id string) (*validate.QualityReport, error) {
	ds, err := e.store.GetDataset(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.validator.Quality(ds), nil
}

// Result loads a stored analysis result.
func (e *Engine) Result(ctx context.Context, id string) (*models.AnalysisResult, error) {
	return e.store.GetResult(ctx, id)
}

// Results lists stored analysis results.
func (e *Engine) Results(ctx context.Context, filter store.ResultFilter) ([]models.AnalysisInfo, error) {
	return e.store.ListResults(ctx, filter)
}

// Analyze runs one analysis type over a stored dataset and stores the
// result. Insufficient, empty and degenerate inputs produce a result with
// the matching status rather than an error. Identical requests within the
// cache TTL return the cached result.
func (e *Engine) Analyze(ctx context.Context, datasetID, analysisType string, params Params) (*models.AnalysisResult, error) {
	provider, ok := e.providers.Get(analysisType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownAnalysis, analysisType)
	}
	if params == nil {
		params = Params{}
	}

	key := datasetID + "|" + analysisType + "|" + params.Key()
	if e.cacheEnabled() {
		if cached, ok := e.cache.Get(key); ok {
			e.metrics.ObserveCache(true)
			return cached.(*models.AnalysisResult), nil
		}
		e.metrics.ObserveCache(false)
	}

	ds, err := e.store.GetDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	logger := logging.WithAnalysis(logging.WithDataset(e.logger, datasetID), analysisType)
	ctx = logging.WithLogger(ctx, logger)

	start := time.Now()
	data, runErr := provider.Analyze(ctx, ds, params)
	elapsed := time.Since(start)

	status := statusFor(runErr)
	if status == models.StatusFailed {
		e.metrics.ObserveAnalysis(analysisType, status, elapsed)
		logging.LogAnalysis(logger, datasetID, analysisType, string(status), elapsed, runErr)
		return nil, runErr
	}

	result := &models.AnalysisResult{
		AnalysisID:    uuid.NewString(),
		AnalysisType:  analysisType,
		DatasetID:     datasetID,
		Timestamp:     e.now(),
		ExecutionTime: elapsed.Seconds(),
		Status:        status,
		Metadata: map[string]interface{}{
			"trade_count": len(ds.Trades),
			"duration_ms": elapsed.Milliseconds(),
			"parameters":  map[string]interface{}(params),
		},
	}
	if runErr != nil {
		result.Error = runErr.Error()
	} else {
		result.Data = data
	}
	if c, ok := data.(*Comprehensive); ok && runErr == nil {
		result.Metadata["sections"] = c.SectionNames()
		if c.Partial() {
			result.Status = models.StatusPartial
		}
	}

	if err := e.retryBusy(ctx, func() error { return e.store.SaveResult(ctx, result) }); err != nil {
		return nil, err
	}
	if e.cacheEnabled() {
		e.cache.SetDefault(key, result)
	}
	e.metrics.ObserveAnalysis(analysisType, result.Status, elapsed)
	logging.LogAnalysis(logger, datasetID, analysisType, string(result.Status), elapsed, runErr)
	return result, nil
}

// retryBusy retries store writes that fail on SQLite lock contention, which
// concurrent uploads can hit.
func (e *Engine) retryBusy(ctx context.Context, fn func() error) error {
	cfg := utils.DefaultRetryConfig()
	cfg.Retryable = store.IsBusy
	return utils.Retry(ctx, cfg, fn)
}

// cacheEnabled reports whether results are cached. A zero TTL disables the
// cache.
func (e *Engine) cacheEnabled() bool {
	return e.cfg.Storage.CacheTTL > 0
}

// Insights returns the ranked insights for a stored dataset.
func (e *Engine) Insights(ctx context.Context, datasetID string) ([]models.Insight, error) {
	ds, err := e.store.GetDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	return e.generateInsights(ctx, ds)
}

// generateInsights merges the rule-based insights with those of a risk
// assessment when the dataset is large enough for one.
func (e *Engine) generateInsights(_ context.Context, ds *models.TradingDataset) ([]models.Insight, error) {
	var extra []models.Insight
	if opts, err := e.riskOptions(Params{}); err == nil {
		if a, err := risk.Assess(ds.Trades, opts); err == nil {
			extra = a.Insights
		}
	}
	return e.insights.Generate(ds, extra...)
}

// statusFor maps an analysis error onto a result status.
func statusFor(err error) models.AnalysisStatus {
	var insufficient *errors.InsufficientDataError
	switch {
	case err == nil:
		return models.StatusCompleted
	case errors.Is(err, errors.ErrNoTrades):
		return models.StatusNoData
	case errors.As(err, &insufficient):
		return models.StatusInsufficientData
	case errors.Is(err, errors.ErrNotComputable):
		return models.StatusNotComputable
	default:
		return models.StatusFailed
	}
}
