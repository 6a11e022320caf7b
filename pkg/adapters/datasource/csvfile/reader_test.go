package csvfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-quality/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-quality/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-quality/pkg/models"
)

const employeesCSV = "id,salary,name,joined\n" +
	"1,50000,Ann,2024-01-01\n" +
	"2,60000.5,Bob,01/15/2024\n" +
	"3,,Cy,\n" +
	"4,70000,,2024-02-01\n"

func TestParse_CoercesPerColumn(t *testing.T) {
	ds, err := Parse(context.Background(), strings.NewReader(employeesCSV), "employees", ',', 0)

	require.NoError(t, err)
	assert.Equal(t, "employees", ds.Name)
	assert.Equal(t, models.SourceTypeCSV, ds.SourceType)
	require.Len(t, ds.Columns, 4)

	assert.Equal(t, []any{int64(1), int64(2), int64(3), int64(4)}, ds.Column("id").Values)
	assert.Equal(t, []any{50000.0, 60000.5, nil, 70000.0}, ds.Column("salary").Values)
	assert.Equal(t, []any{"Ann", "Bob", "Cy", nil}, ds.Column("name").Values)
	assert.Equal(t, []any{"2024-01-01", "01/15/2024", nil, "2024-02-01"}, ds.Column("joined").Values)
}

func TestParse_Limit(t *testing.T) {
	ds, err := Parse(context.Background(), strings.NewReader(employeesCSV), "employees", ',', 2)

	require.NoError(t, err)
	assert.Equal(t, 2, ds.RowCount())
}

func TestParse_HeaderOnly(t *testing.T) {
	ds, err := Parse(context.Background(), strings.NewReader("a,b\n"), "t", ',', 0)

	require.NoError(t, err)
	require.Len(t, ds.Columns, 2)
	assert.Equal(t, 0, ds.RowCount())
	assert.NotNil(t, ds.Columns[0].Values)
}

func TestParse_EmptyInput(t *testing.T) {
	_, err := Parse(context.Background(), strings.NewReader(""), "t", ',', 0)

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestParse_StripsByteOrderMark(t *testing.T) {
	ds, err := Parse(context.Background(), strings.NewReader("\ufeffid;name\n1;x\n"), "t", ';', 0)

	require.NoError(t, err)
	assert.Equal(t, "id", ds.Columns[0].Name)
	assert.Equal(t, []any{int64(1)}, ds.Columns[0].Values)
}

func TestParse_RaggedRow(t *testing.T) {
	_, err := Parse(context.Background(), strings.NewReader("a,b\n1\n"), "t", ',', 0)

	assert.Error(t, err)
}

func TestReader_Read(t *testing.T) {
	path := filepath.Join(t.TempDir(), "employees.csv")
	require.NoError(t, os.WriteFile(path, []byte(employeesCSV), 0o600))
	r := NewReader(&Config{Path: path}, zap.NewNop())
	defer r.Close()

	ds, err := r.Read(context.Background(), datasource.ReadRequest{
		DeclaredTypes: map[string]models.DataType{"id": models.DataTypeText},
	})

	require.NoError(t, err)
	assert.Equal(t, "employees", ds.Name, "name defaults to the file stem")
	assert.Equal(t, path, ds.SourcePath)
	assert.Equal(t, models.DataTypeText, ds.Column("id").DeclaredType)

	_, err = r.Read(context.Background(), datasource.ReadRequest{Query: "SELECT 1"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = r.Read(context.Background(), datasource.ReadRequest{
		DeclaredTypes: map[string]models.DataType{"nope": models.DataTypeText},
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestFromMap(t *testing.T) {
	cfg, err := FromMap(map[string]any{"path": "x.csv", "delimiter": "\t"})
	require.NoError(t, err)
	assert.Equal(t, '\t', cfg.Delimiter)

	_, err = FromMap(map[string]any{})
	assert.Error(t, err)

	_, err = FromMap(map[string]any{"path": "x.csv", "delimiter": ";;"})
	assert.Error(t, err)
}

func TestRegistered(t *testing.T) {
	assert.True(t, datasource.IsRegistered(models.SourceTypeCSV))
}
