package metrics

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forex-analyzer/internal/models"
)

func TestObserveUpload(t *testing.T) {
	c := NewCollector()
	c.ObserveUpload("MT4", 10, 8, nil)
	c.ObserveUpload("MT4", 5, 5, nil)
	c.ObserveUpload("", 0, 0, errors.New("bad file"))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.uploads.WithLabelValues("MT4", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.uploads.WithLabelValues("unknown", "error")))
	assert.Equal(t, 15.0, testutil.ToFloat64(c.rowsRead))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.rowsDropped))
}

func TestObserveAnalysisAndCache(t *testing.T) {
	c := NewCollector()
	c.ObserveAnalysis("performance", models.StatusCompleted, 3*time.Millisecond)
	c.ObserveAnalysis("clustering", models.StatusInsufficientData, time.Millisecond)
	c.ObserveCache(true)
	c.ObserveCache(false)
	c.ObserveCache(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.analyses.WithLabelValues("clustering", "insufficient_data")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.cache.WithLabelValues("miss")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.latency))

	var buf bytes.Buffer
	require.NoError(t, c.WriteText(&buf))
	assert.Contains(t, buf.String(), `fxanalyzer_analyses_total{status="completed",type="performance"} 1`)
	assert.Contains(t, buf.String(), "fxanalyzer_analysis_duration_seconds_bucket")
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.ObserveUpload("MT5", 1, 1, nil)
	c.ObserveAnalysis("performance", models.StatusCompleted, time.Second)
	c.ObserveCache(true)
	assert.Nil(t, c.Registry())
	assert.NoError(t, c.WriteText(&bytes.Buffer{}))
}
