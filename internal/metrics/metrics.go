// Package metrics records ingest and analysis facts as Prometheus metrics.
package metrics

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"forex-analyzer/internal/models"
)

const namespace = "fxanalyzer"

// Collector owns a private registry so several engines can coexist in one
// process. A nil *Collector discards every observation.
type Collector struct {
	registry    *prometheus.Registry
	uploads     *prometheus.CounterVec
	rowsRead    prometheus.Counter
	rowsDropped prometheus.Counter
	analyses    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	cache       *prometheus.CounterVec
}

// NewCollector creates and registers the metric set.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Uploaded files by detected source and outcome.",
		}, []string{"source", "outcome"}),
		rowsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_read_total",
			Help:      "Rows read from uploaded files.",
		}),
		rowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Rows dropped during cleaning.",
		}),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Analysis runs by type and status.",
		}, []string{"type", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Analysis execution time.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"type"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_cache_requests_total",
			Help:      "Analysis result cache lookups by outcome.",
		}, []string{"outcome"}),
	}
	c.registry.MustRegister(c.uploads, c.rowsRead, c.rowsDropped, c.analyses, c.latency, c.cache)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveUpload records one processed file.
func (c *Collector) ObserveUpload(source string, read, kept int, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if source == "" {
		source = "unknown"
	}
	c.uploads.WithLabelValues(source, outcome).Inc()
	c.rowsRead.Add(float64(read))
	if dropped := read - kept; dropped > 0 {
		c.rowsDropped.Add(float64(dropped))
	}
}

// ObserveAnalysis records one analysis run.
func (c *Collector) ObserveAnalysis(analysisType string, status models.AnalysisStatus, d time.Duration) {
	if c == nil {
		return
	}
	c.analyses.WithLabelValues(analysisType, string(status)).Inc()
	c.latency.WithLabelValues(analysisType).Observe(d.Seconds())
}

// ObserveCache records a result cache lookup.
func (c *Collector) ObserveCache(hit bool) {
	if c == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	c.cache.WithLabelValues(outcome).Inc()
}

// WriteText writes every metric family in the Prometheus text format.
func (c *Collector) WriteText(w io.Writer) error {
	if c == nil {
		return nil
	}
	families, err := c.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
