package models

import (
	"time"

	"github.com/google/uuid"
)

// DataType is the declared storage type of a catalog column.
type DataType string

// Declared column types.
const (
	DataTypeInteger   DataType = "INTEGER"
	DataTypeFloat     DataType = "FLOAT"
	DataTypeText      DataType = "TEXT"
	DataTypeTimestamp DataType = "TIMESTAMP"
	DataTypeBoolean   DataType = "BOOLEAN"
)

// IsNumeric reports whether numeric statistics apply to the type.
func (t DataType) IsNumeric() bool {
	return t == DataTypeInteger || t == DataTypeFloat
}

// IsValid reports whether t is one of the declared column types.
func (t DataType) IsValid() bool {
	switch t {
	case DataTypeInteger, DataTypeFloat, DataTypeText, DataTypeTimestamp, DataTypeBoolean:
		return true
	}
	return false
}

// Source type constants for registered tables.
const (
	SourceTypeCSV      = "csv"
	SourceTypeXLSX     = "xlsx"
	SourceTypePostgres = "postgres"
	SourceTypeMSSQL    = "mssql"
	SourceTypeManual   = "manual"
)

// Table is a registered dataset in the catalog.
type Table struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	SourceType  string    `json:"source_type,omitempty"`
	SourcePath  string    `json:"source_path,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Columns     []*Column `json:"columns,omitempty"`
}

// Column is a registered column of a Table.
// Position is zero-based and unique among the table's active columns.
type Column struct {
	ID          uuid.UUID  `json:"id"`
	TableID     uuid.UUID  `json:"table_id"`
	Name        string     `json:"name"`
	DataType    DataType   `json:"data_type"`
	Nullable    bool       `json:"nullable"`
	Position    int        `json:"position"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// ColumnSchema is the observed name and type of a column in a dataset.
type ColumnSchema struct {
	Name     string   `json:"name"`
	DataType DataType `json:"data_type"`
}
