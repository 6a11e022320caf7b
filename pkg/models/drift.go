package models

import (
	"time"

	"github.com/google/uuid"
)

// Schema change types.
const (
	ChangeTypeColumnAdded   = "column_added"
	ChangeTypeColumnRemoved = "column_removed"
	ChangeTypeTypeChanged   = "type_changed"
)

// DetectedByDriftDetector marks schema changes produced by the drift detector.
const DetectedByDriftDetector = "drift_detector"

// SchemaChange records one column-level difference between two schema snapshots.
type SchemaChange struct {
	ID            uuid.UUID      `json:"id"`
	TableID       uuid.UUID      `json:"table_id"`
	ChangeType    string         `json:"change_type"`
	ChangeDetails map[string]any `json:"change_details"`
	DetectedAt    time.Time      `json:"detected_at"`
	DetectedBy    string         `json:"detected_by"`
}

// Drift metric names.
const (
	DriftMetricNullPercentage = "null_percentage"
	DriftMetricMeanValue      = "mean_value"
	DriftMetricUniqueCount    = "unique_count"
)

// MetricDrift is one metric whose relative change exceeded the threshold.
type MetricDrift struct {
	Metric     string  `json:"metric"`
	Previous   float64 `json:"previous"`
	Current    float64 `json:"current"`
	ChangeRate float64 `json:"change_rate"`
}

// DriftReport summarizes data drift of one column between two profiles.
type DriftReport struct {
	TableID           uuid.UUID     `json:"table_id"`
	ColumnID          uuid.UUID     `json:"column_id"`
	ColumnName        string        `json:"column_name,omitempty"`
	PreviousProfileID uuid.UUID     `json:"previous_profile_id"`
	Drifts            []MetricDrift `json:"drifts"`
	Severity          Severity      `json:"severity"`
	IssueID           uuid.UUID     `json:"issue_id"`
}
