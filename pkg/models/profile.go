package models

import (
	"time"

	"github.com/google/uuid"
)

// SemanticType is the effective type of a column inferred from its values.
type SemanticType string

// Semantic types, in inference priority order.
const (
	SemanticNumeric     SemanticType = "numeric"
	SemanticDate        SemanticType = "date"
	SemanticCategorical SemanticType = "categorical"
	SemanticString      SemanticType = "string"
	SemanticUnknown     SemanticType = "unknown"
)

// Histogram holds equal-width bin counts and their len(Counts)+1 edges.
type Histogram struct {
	Counts []int     `json:"counts"`
	Bins   []float64 `json:"bins"`
}

// ColumnProfile is the computed statistical snapshot of one column.
// Numeric fields are nil when the column is not numeric or has no valid numbers.
type ColumnProfile struct {
	ColumnName       string     `json:"column_name"`
	DataType         DataType   `json:"data_type"`
	RowCount         int        `json:"row_count"`
	NullCount        int        `json:"null_count"`
	NullPercentage   float64    `json:"null_percentage"`
	UniqueCount      int        `json:"unique_count"`
	UniquePercentage float64    `json:"unique_percentage"`
	MinValue         *string    `json:"min_value,omitempty"`
	MaxValue         *string    `json:"max_value,omitempty"`
	MeanValue        *float64   `json:"mean_value,omitempty"`
	MedianValue      *float64   `json:"median_value,omitempty"`
	StdDev           *float64   `json:"std_dev,omitempty"`
	Histogram        *Histogram `json:"histogram_bins,omitempty"`
	OutlierCount     *int       `json:"outlier_count,omitempty"`
	SampleValues     []string   `json:"sample_values"`
}

// AsMap mirrors the profile into a generic payload for audit storage.
func (p *ColumnProfile) AsMap() map[string]any {
	m := map[string]any{
		"column_name":       p.ColumnName,
		"data_type":         string(p.DataType),
		"row_count":         p.RowCount,
		"null_count":        p.NullCount,
		"null_percentage":   p.NullPercentage,
		"unique_count":      p.UniqueCount,
		"unique_percentage": p.UniquePercentage,
		"sample_values":     p.SampleValues,
	}
	if p.MinValue != nil {
		m["min_value"] = *p.MinValue
	}
	if p.MaxValue != nil {
		m["max_value"] = *p.MaxValue
	}
	if p.MeanValue != nil {
		m["mean_value"] = *p.MeanValue
	}
	if p.MedianValue != nil {
		m["median_value"] = *p.MedianValue
	}
	if p.StdDev != nil {
		m["std_dev"] = *p.StdDev
	}
	if p.Histogram != nil {
		m["histogram_bins"] = map[string]any{
			"counts": p.Histogram.Counts,
			"bins":   p.Histogram.Bins,
		}
	}
	if p.OutlierCount != nil {
		m["outlier_count"] = *p.OutlierCount
	}
	return m
}

// TableProfile aggregates the column profiles of one profiling pass.
type TableProfile struct {
	TableID          uuid.UUID        `json:"table_id"`
	TableName        string           `json:"table_name"`
	ProfileTimestamp time.Time        `json:"profile_timestamp"`
	RowCount         int              `json:"row_count"`
	ColumnCount      int              `json:"column_count"`
	ColumnProfiles   []*ColumnProfile `json:"column_profiles"`
}

// Profile is a persisted ColumnProfile tied to a (table, column).
type Profile struct {
	ID               uuid.UUID      `json:"id"`
	TableID          uuid.UUID      `json:"table_id"`
	ColumnID         uuid.UUID      `json:"column_id"`
	ProfileTimestamp time.Time      `json:"profile_timestamp"`
	RowCount         int            `json:"row_count"`
	NullCount        int            `json:"null_count"`
	NullPercentage   float64        `json:"null_percentage"`
	UniqueCount      int            `json:"unique_count"`
	UniquePercentage float64        `json:"unique_percentage"`
	MinValue         *string        `json:"min_value,omitempty"`
	MaxValue         *string        `json:"max_value,omitempty"`
	MeanValue        *float64       `json:"mean_value,omitempty"`
	MedianValue      *float64       `json:"median_value,omitempty"`
	StdDev           *float64       `json:"std_dev,omitempty"`
	SampleValues     []string       `json:"sample_values,omitempty"`
	Histogram        *Histogram     `json:"histogram_bins,omitempty"`
	DataType         DataType       `json:"data_type"`
	ProfileData      map[string]any `json:"profile_data,omitempty"`
}

// NewProfileRecord converts a computed column profile into a persistable record.
func NewProfileRecord(tableID, columnID uuid.UUID, ts time.Time, cp *ColumnProfile) *Profile {
	return &Profile{
		TableID:          tableID,
		ColumnID:         columnID,
		ProfileTimestamp: ts,
		RowCount:         cp.RowCount,
		NullCount:        cp.NullCount,
		NullPercentage:   cp.NullPercentage,
		UniqueCount:      cp.UniqueCount,
		UniquePercentage: cp.UniquePercentage,
		MinValue:         cp.MinValue,
		MaxValue:         cp.MaxValue,
		MeanValue:        cp.MeanValue,
		MedianValue:      cp.MedianValue,
		StdDev:           cp.StdDev,
		SampleValues:     cp.SampleValues,
		Histogram:        cp.Histogram,
		DataType:         cp.DataType,
		ProfileData:      cp.AsMap(),
	}
}
