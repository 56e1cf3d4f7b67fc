package models

import (
	"time"
)

// DateRange bounds the open and close times of a dataset's trades.
type DateRange struct {
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
}

// Days returns the span of the range in fractional days.
func (r DateRange) Days() float64 {
	return r.End.Sub(r.Start).Hours() / 24
}

// DatasetMetadata describes one parsed upload.
type DatasetMetadata struct {
	Source      string     `json:"source" yaml:"source" validate:"required"`
	Filename    string     `json:"filename,omitempty" yaml:"filename,omitempty"`
	Account     string     `json:"account" yaml:"account"`
	Currency    string     `json:"currency" yaml:"currency"`
	Leverage    float64    `json:"leverage" yaml:"leverage" validate:"omitempty,gt=0"`
	TotalTrades int        `json:"total_trades" yaml:"total_trades" validate:"gte=0"`
	DateRange   *DateRange `json:"date_range" yaml:"date_range" validate:"required"`
	Balance     *float64   `json:"balance,omitempty" yaml:"balance,omitempty"`
	Equity      *float64   `json:"equity,omitempty" yaml:"equity,omitempty"`
}

// TradingDataset is the aggregate root: trades plus their metadata.
type TradingDataset struct {
	ID        string           `json:"id,omitempty"`
	Trades    []Trade          `json:"trades"`
	Metadata  *DatasetMetadata `json:"metadata"`
	CreatedAt time.Time        `json:"created_at,omitempty"`
}

// DatasetInfo is the listing view of a stored dataset.
type DatasetInfo struct {
	ID          string    `json:"id" yaml:"id"`
	Source      string    `json:"source" yaml:"source"`
	Filename    string    `json:"filename" yaml:"filename"`
	TotalTrades int       `json:"total_trades" yaml:"total_trades"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// Info returns the listing view of the dataset.
func (d *TradingDataset) Info() DatasetInfo {
	info := DatasetInfo{
		ID:          d.ID,
		TotalTrades: len(d.Trades),
		CreatedAt:   d.CreatedAt,
	}
	if d.Metadata != nil {
		info.Source = d.Metadata.Source
		info.Filename = d.Metadata.Filename
	}
	return info
}

// Profits returns the per-trade profit series in dataset order.
func (d *TradingDataset) Profits() []float64 {
	out := make([]float64, len(d.Trades))
	for i := range d.Trades {
		out[i] = d.Trades[i].Profit
	}
	return out
}
