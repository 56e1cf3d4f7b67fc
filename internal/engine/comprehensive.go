package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"forex-analyzer/internal/models"
)

// comprehensiveSections are the analyses bundled by the comprehensive type.
var comprehensiveSections = []string{TypePerformance, TypeTimePatterns, TypeRiskMetrics, TypeMLQuick, TypeInsights}

// Section is one part of a comprehensive analysis.
type Section struct {
	Status models.AnalysisStatus `json:"status" yaml:"status"`
	Data   interface{}           `json:"data,omitempty" yaml:"data,omitempty"`
	Error  string                `json:"error,omitempty" yaml:"error,omitempty"`
}

// Comprehensive holds every section keyed by analysis type. A section that
// fails leaves the others intact.
type Comprehensive struct {
	Sections map[string]Section `json:"sections" yaml:"sections"`
}

// Partial reports whether any section did not complete.
func (c *Comprehensive) Partial() bool {
	for _, s := range c.Sections {
		if s.Status != models.StatusCompleted {
			return true
		}
	}
	return false
}

// SectionNames lists the sections in their fixed order.
func (c *Comprehensive) SectionNames() []string {
	out := make([]string, 0, len(c.Sections))
	for _, name := range comprehensiveSections {
		if _, ok := c.Sections[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

func (e *Engine) comprehensive(ctx context.Context, ds *models.TradingDataset, params Params) (interface{}, error) {
	out := &Comprehensive{Sections: make(map[string]Section, len(comprehensiveSections))}
	var mu sync.Mutex

	var wg conc.WaitGroup
	for _, name := range comprehensiveSections {
		name := name
		provider, ok := e.providers.Get(name)
		if !ok {
			continue
		}
		wg.Go(func() {
			var data interface{}
			var err error
			var pc panics.Catcher
			pc.Try(func() { data, err = provider.Analyze(ctx, ds, params) })
			if r := pc.Recovered(); r != nil {
				err = fmt.Errorf("%s panicked: %v", name, r.Value)
			}

			s := Section{Status: statusFor(err)}
			if err != nil {
				s.Error = err.Error()
			} else {
				s.Data = data
			}
			mu.Lock()
			out.Sections[name] = s
			mu.Unlock()
		})
	}
	wg.Wait()
	return out, nil
}
