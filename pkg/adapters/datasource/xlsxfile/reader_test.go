package xlsxfile

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-quality/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-quality/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-quality/pkg/models"
)

var employeesRows = [][]any{
	{"id", "salary", "name", "joined"},
	{1, 50000, "Ann", "2024-01-01"},
	{2, 60000.5, "Bob", "01/15/2024"},
	{3, nil, "Cy"},
	{4, 70000, nil, "2024-02-01"},
}

// newWorkbook writes rows into Sheet1 of a fresh workbook plus any extra
// sheets, and returns the encoded file.
func newWorkbook(t *testing.T, rows [][]any, extra map[string][][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	write := func(sheet string, rows [][]any) {
		for i, row := range rows {
			r := row
			require.NoError(t, f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+1), &r))
		}
	}
	write("Sheet1", rows)
	for name, rows := range extra {
		_, err := f.NewSheet(name)
		require.NoError(t, err)
		write(name, rows)
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParse_CoercesPerColumn(t *testing.T) {
	wb := newWorkbook(t, employeesRows, nil)

	ds, err := Parse(context.Background(), bytes.NewReader(wb), "employees", "", 0)

	require.NoError(t, err)
	assert.Equal(t, "employees", ds.Name)
	assert.Equal(t, models.SourceTypeXLSX, ds.SourceType)
	require.Len(t, ds.Columns, 4)

	assert.Equal(t, []any{int64(1), int64(2), int64(3), int64(4)}, ds.Column("id").Values)
	assert.Equal(t, []any{50000.0, 60000.5, nil, 70000.0}, ds.Column("salary").Values)
	assert.Equal(t, []any{"Ann", "Bob", "Cy", nil}, ds.Column("name").Values)
	assert.Equal(t, []any{"2024-01-01", "01/15/2024", nil, "2024-02-01"}, ds.Column("joined").Values,
		"short rows are padded to the header")
}

func TestParse_Limit(t *testing.T) {
	wb := newWorkbook(t, employeesRows, nil)

	ds, err := Parse(context.Background(), bytes.NewReader(wb), "employees", "", 2)

	require.NoError(t, err)
	assert.Equal(t, 2, ds.RowCount())
}

func TestParse_NamedSheet(t *testing.T) {
	wb := newWorkbook(t, employeesRows, map[string][][]any{
		"Regions": {{"code", "label"}, {"EU", "Europe"}, {"US", ""}},
	})

	ds, err := Parse(context.Background(), bytes.NewReader(wb), "regions", "Regions", 0)

	require.NoError(t, err)
	require.Len(t, ds.Columns, 2)
	assert.Equal(t, []any{"EU", "US"}, ds.Column("code").Values)
	assert.Equal(t, []any{"Europe", nil}, ds.Column("label").Values)

	_, err = Parse(context.Background(), bytes.NewReader(wb), "x", "Missing", 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestParse_BlankHeaderCell(t *testing.T) {
	wb := newWorkbook(t, [][]any{{"id", "", "note"}, {1, 2, "a"}}, nil)

	ds, err := Parse(context.Background(), bytes.NewReader(wb), "t", "", 0)

	require.NoError(t, err)
	require.NotNil(t, ds.Column("column_2"))
	assert.Equal(t, []any{int64(2)}, ds.Column("column_2").Values)
}

func TestParse_HeaderOnly(t *testing.T) {
	wb := newWorkbook(t, [][]any{{"a", "b"}}, nil)

	ds, err := Parse(context.Background(), bytes.NewReader(wb), "t", "", 0)

	require.NoError(t, err)
	require.Len(t, ds.Columns, 2)
	assert.Equal(t, 0, ds.RowCount())
}

func TestParse_EmptySheet(t *testing.T) {
	wb := newWorkbook(t, nil, nil)

	_, err := Parse(context.Background(), bytes.NewReader(wb), "t", "", 0)

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestParse_NotAWorkbook(t *testing.T) {
	_, err := Parse(context.Background(), bytes.NewReader([]byte("id,name\n1,a\n")), "t", "", 0)

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestReader_Read(t *testing.T) {
	path := filepath.Join(t.TempDir(), "employees.xlsx")
	require.NoError(t, os.WriteFile(path, newWorkbook(t, employeesRows, nil), 0o600))
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
}

func TestFromMap(t *testing.T) {
	cfg, err := FromMap(map[string]any{"path": "x.xlsx", "sheet": "Data"})
	require.NoError(t, err)
	assert.Equal(t, "Data", cfg.Sheet)

	_, err = FromMap(map[string]any{})
	assert.Error(t, err)
}

func TestRegistered(t *testing.T) {
	assert.True(t, datasource.IsRegistered(models.SourceTypeXLSX))
}
