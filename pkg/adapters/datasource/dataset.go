package datasource

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-quality/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-quality/pkg/models"
)

// DatasetBuilder collects rows into the column-major layout of a Dataset.
type DatasetBuilder struct {
	dataset *models.Dataset
}

// NewDatasetBuilder starts a dataset with the given column names. types may
// be nil or shorter than names; missing entries are left for inference.
func NewDatasetBuilder(name, sourceType, sourcePath string, names []string, types []models.DataType) *DatasetBuilder {
	columns := make([]models.DatasetColumn, len(names))
	for i, n := range names {
		columns[i] = models.DatasetColumn{Name: n, Values: []any{}}
		if i < len(types) {
			columns[i].DeclaredType = types[i]
		}
	}
	return &DatasetBuilder{dataset: &models.Dataset{
		Name:       name,
		SourceType: sourceType,
		SourcePath: sourcePath,
		Columns:    columns,
	}}
}

// AppendRow adds one row. The row must have one value per column.
func (b *DatasetBuilder) AppendRow(values []any) error {
	if len(values) != len(b.dataset.Columns) {
		return fmt.Errorf("row has %d values, expected %d", len(values), len(b.dataset.Columns))
	}
	for i, v := range values {
		b.dataset.Columns[i].Values = append(b.dataset.Columns[i].Values, v)
	}
	return nil
}

// Build applies declared type overrides and returns the dataset. An override
// naming a column the source did not return is an input error.
func (b *DatasetBuilder) Build(declared map[string]models.DataType) (*models.Dataset, error) {
	if err := ApplyDeclaredTypes(b.dataset, declared); err != nil {
		return nil, err
	}
	return b.dataset, nil
}

// ParseDeclaredTypes parses "column=TYPE" pairs. Type names are
// case-insensitive and must be one of the catalog data types.
func ParseDeclaredTypes(pairs []string) (map[string]models.DataType, error) {
	out := make(map[string]models.DataType, len(pairs))
	for _, p := range pairs {
		name, typ, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q is not column=TYPE", apperrors.ErrInvalidInput, p)
		}
		dt := models.DataType(strings.ToUpper(strings.TrimSpace(typ)))
		if !dt.IsValid() {
			return nil, fmt.Errorf("%w: unknown data type %q for column %s", apperrors.ErrInvalidInput, typ, name)
		}
		out[name] = dt
	}
	return out, nil
}

// NormalizeValue converts driver values the engine does not handle natively.
// Byte slices become strings; everything else passes through.
func NormalizeValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}

// ApplyDeclaredTypes sets DeclaredType on the named columns. An override
// naming a column the dataset lacks is an input error.
func ApplyDeclaredTypes(ds *models.Dataset, declared map[string]models.DataType) error {
	for name, dt := range declared {
		col := ds.Column(name)
		if col == nil {
			return fmt.Errorf("%w: declared type for unknown column %q", apperrors.ErrInvalidInput, name)
		}
		col.DeclaredType = dt
	}
	return nil
}
