package models

import "time"

// AnalysisStatus is the outcome of one analysis run.
type AnalysisStatus string

const (
	StatusCompleted        AnalysisStatus = "completed"
	StatusPartial          AnalysisStatus = "partial"
	StatusNoData           AnalysisStatus = "no_data"
	StatusInsufficientData AnalysisStatus = "insufficient_data"
	StatusNotComputable    AnalysisStatus = "not_computable"
	StatusFailed           AnalysisStatus = "failed"
)

// AnalysisResult is the immutable record of one analysis invocation.
type AnalysisResult struct {
	AnalysisID    string                 `json:"analysis_id" yaml:"analysis_id"`
	AnalysisType  string                 `json:"analysis_type" yaml:"analysis_type"`
	DatasetID     string                 `json:"dataset_id" yaml:"dataset_id"`
	Timestamp     time.Time              `json:"timestamp" yaml:"timestamp"`
	Data          interface{}            `json:"data" yaml:"data"`
	Metadata      map[string]interface{} `json:"metadata" yaml:"metadata"`
	ExecutionTime float64                `json:"execution_time" yaml:"execution_time"` // seconds
	Status        AnalysisStatus         `json:"status" yaml:"status"`
	Error         string                 `json:"error,omitempty" yaml:"error,omitempty"`
}

// AnalysisInfo is the listing view of a stored analysis result.
type AnalysisInfo struct {
	AnalysisID   string         `json:"analysis_id" yaml:"analysis_id"`
	AnalysisType string         `json:"analysis_type" yaml:"analysis_type"`
	DatasetID    string         `json:"dataset_id" yaml:"dataset_id"`
	Status       AnalysisStatus `json:"status" yaml:"status"`
	Timestamp    time.Time      `json:"timestamp" yaml:"timestamp"`
}
