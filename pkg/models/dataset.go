package models

// DatasetColumn is one ordered column of a materialized dataset.
// A nil value is a null. DeclaredType is empty when the caller has not fixed
// a schema type for the column.
type DatasetColumn struct {
	Name         string   `json:"name"`
	DeclaredType DataType `json:"declared_type,omitempty"`
	Values       []any    `json:"values"`
}

// Dataset is an already-materialized table handed to the engine.
type Dataset struct {
	Name       string          `json:"name"`
	SourceType string          `json:"source_type,omitempty"`
	SourcePath string          `json:"source_path,omitempty"`
	Columns    []DatasetColumn `json:"columns"`
}

// RowCount returns the length of the longest column.
func (d *Dataset) RowCount() int {
	n := 0
	for _, c := range d.Columns {
		if len(c.Values) > n {
			n = len(c.Values)
		}
	}
	return n
}

// Column returns the column with the given name, or nil.
func (d *Dataset) Column(name string) *DatasetColumn {
	for i := range d.Columns {
		if d.Columns[i].Name == name {
			return &d.Columns[i]
		}
	}
	return nil
}
