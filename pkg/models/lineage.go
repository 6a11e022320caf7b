package models

import (
	"time"

	"github.com/google/uuid"
)

// LineageType describes how a target column derives from its source.
type LineageType string

// Lineage relationship types.
const (
	LineageTypeDirect     LineageType = "direct"
	LineageTypeDerived    LineageType = "derived"
	LineageTypeAggregated LineageType = "aggregated"
)

// IsValid reports whether t is a known lineage type.
func (t LineageType) IsValid() bool {
	switch t {
	case LineageTypeDirect, LineageTypeDerived, LineageTypeAggregated:
		return true
	}
	return false
}

// LineageEdge is a directed dependency from a source column to a target column.
// At most one edge exists per (source, target) pair.
type LineageEdge struct {
	ID                  uuid.UUID   `json:"id"`
	SourceColumnID      uuid.UUID   `json:"source_column_id"`
	TargetColumnID      uuid.UUID   `json:"target_column_id"`
	LineageType         LineageType `json:"lineage_type"`
	TransformationLogic string      `json:"transformation_logic,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
}

// Lineage run statuses.
const (
	LineageRunSuccess = "success"
	LineageRunFailed  = "failed"
	LineageRunPartial = "partial"
)

// LineageRun is an audit record of one pipeline execution between two tables.
type LineageRun struct {
	ID             uuid.UUID `json:"id"`
	SourceTableID  uuid.UUID `json:"source_table_id"`
	TargetTableID  uuid.UUID `json:"target_table_id"`
	RunTimestamp   time.Time `json:"run_timestamp"`
	RowCountSource int64     `json:"row_count_source"`
	RowCountTarget int64     `json:"row_count_target"`
	Status         string    `json:"status"`
}

// LineageNeighbor is an edge joined with the column on its far end.
type LineageNeighbor struct {
	Edge       *LineageEdge
	ColumnID   uuid.UUID
	ColumnName string
	TableName  string
}

// LineageNode is a column reached during a lineage traversal.
type LineageNode struct {
	ColumnID    uuid.UUID   `json:"column_id"`
	ColumnName  string      `json:"column_name"`
	TableName   string      `json:"table_name"`
	Label       string      `json:"label"`
	LineageType LineageType `json:"type"`
	Depth       int         `json:"depth"`
	ViaColumnID uuid.UUID   `json:"via_column_id"`
}

// Lineage traversal directions.
const (
	LineageUpstream   = "upstream"
	LineageDownstream = "downstream"
)

// LineageResult is the reachable set of a traversal from one column.
type LineageResult struct {
	ColumnID  uuid.UUID     `json:"column_id"`
	Direction string        `json:"direction"`
	MaxDepth  int           `json:"max_depth"`
	Count     int           `json:"count"`
	Columns   []LineageNode `json:"columns"`
}

// LineageGraphEdge is an edge of the exported lineage graph.
type LineageGraphEdge struct {
	Source string      `json:"source"`
	Target string      `json:"target"`
	Type   LineageType `json:"type"`
}

// LineageGraph is the full lineage edge set labeled as "table.column".
type LineageGraph struct {
	Nodes []string           `json:"nodes"`
	Edges []LineageGraphEdge `json:"edges"`
}

// QualifiedColumnName joins a table and column into the "table.column" label.
func QualifiedColumnName(table, column string) string {
	return table + "." + column
}
