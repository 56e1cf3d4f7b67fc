// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"forex-analyzer/internal/models"
)

// DataStore persists datasets and analysis results as JSON documents keyed
// by id.
type DataStore interface {
	// Datasets
	SaveDataset(ctx context.Context, ds *models.TradingDataset) error
	GetDataset(ctx context.Context, id string) (*models.TradingDataset, error)
	ListDatasets(ctx context.Context, filter DatasetFilter) ([]models.DatasetInfo, error)
	DeleteDataset(ctx context.Context, id string) error

	// Analysis results
	SaveResult(ctx context.Context, result *models.AnalysisResult) error
	SaveResults(ctx context.Context, results []*models.AnalysisResult) error
	GetResult(ctx context.Context, id string) (*models.AnalysisResult, error)
	ListResults(ctx context.Context, filter ResultFilter) ([]models.AnalysisInfo, error)

	// Lifecycle
	Close() error
}

// DatasetFilter narrows a dataset listing. Zero values match everything.
type DatasetFilter struct {
	Source string
	Since  time.Time
	Limit  int
}

// ResultFilter narrows a result listing. Zero values match everything.
type ResultFilter struct {
	DatasetID    string
	AnalysisType string
	Status       models.AnalysisStatus
	Limit        int
}
