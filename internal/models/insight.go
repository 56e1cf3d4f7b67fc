package models

import "time"

// InsightType is the severity of an insight.
type InsightType string

const (
	InsightInfo     InsightType = "info"
	InsightSuccess  InsightType = "success"
	InsightWarning  InsightType = "warning"
	InsightCritical InsightType = "critical"
)

// Impact is the expected effect of acting on an insight.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// Insight categories.
const (
	CategoryPerformance = "performance"
	CategoryTiming      = "timing"
	CategoryRisk        = "risk"
	CategorySymbols     = "symbols"
	CategoryBehavior    = "behavior"
	CategoryStrategy    = "strategy"
)

// Insight is a generated, data-backed observation about a dataset.
type Insight struct {
	ID             string                 `json:"id" yaml:"id"`
	Type           InsightType            `json:"type" yaml:"type"`
	Title          string                 `json:"title" yaml:"title"`
	Description    string                 `json:"description" yaml:"description"`
	Recommendation string                 `json:"recommendation,omitempty" yaml:"recommendation,omitempty"`
	Confidence     float64                `json:"confidence" yaml:"confidence"`
	Impact         Impact                 `json:"impact" yaml:"impact"`
	Category       string                 `json:"category" yaml:"category"`
	Data           map[string]interface{} `json:"data,omitempty" yaml:"data,omitempty"`
	CreatedAt      time.Time              `json:"created_at" yaml:"created_at"`
}
