package models

import (
	"time"

	"github.com/google/uuid"
)

// IssueType is the closed vocabulary of detected data-quality defects.
type IssueType string

// Issue types emitted by the quality analyzer and drift detector.
const (
	IssueTypeMissingValues       IssueType = "missing_values"
	IssueTypeDuplicates          IssueType = "duplicates"
	IssueTypeInvalidNumeric      IssueType = "invalid_numeric"
	IssueTypeNegativeValues      IssueType = "negative_values"
	IssueTypeOutliers            IssueType = "outliers"
	IssueTypeMixedDateFormats    IssueType = "mixed_date_formats"
	IssueTypeCaseSensitivity     IssueType = "case_sensitivity"
	IssueTypeWhitespaceIssues    IssueType = "whitespace_issues"
	IssueTypeSpecialCharacters   IssueType = "special_characters"
	IssueTypeUnusuallyLongValues IssueType = "unusually_long_values"
	IssueTypeDataDrift           IssueType = "data_drift"
)

// Severity ranks an issue.
type Severity string

// Severity levels, lowest first.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities; invalid values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// IsValid reports whether s is one of the four severity levels.
func (s Severity) IsValid() bool {
	return s.Rank() > 0
}

// Issue is a detected data-quality defect. Issues are append-only facts;
// only ResolvedAt is ever updated.
type Issue struct {
	ID               uuid.UUID  `json:"id"`
	TableID          uuid.UUID  `json:"table_id"`
	ColumnID         *uuid.UUID `json:"column_id,omitempty"`
	ColumnName       string     `json:"column_name,omitempty"`
	IssueType        IssueType  `json:"issue_type"`
	Severity         Severity   `json:"severity"`
	Description      string     `json:"description"`
	SuggestedFix     string     `json:"suggested_fix,omitempty"`
	AffectedRowCount int        `json:"count"`
	Percentage       float64    `json:"percentage"`
	Examples         []string   `json:"examples,omitempty"`
	DetectedAt       time.Time  `json:"detected_at"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
}

// IsOpen reports whether the issue has not been resolved.
func (i *Issue) IsOpen() bool {
	return i.ResolvedAt == nil
}
