package datasource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-quality/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-quality/pkg/models"
)

func TestEffectiveLimit(t *testing.T) {
	assert.Equal(t, DefaultRowLimit, EffectiveLimit(0))
	assert.Equal(t, DefaultRowLimit, EffectiveLimit(-5))
	assert.Equal(t, DefaultRowLimit, EffectiveLimit(DefaultRowLimit+1))
	assert.Equal(t, 25, EffectiveLimit(25))
}

func TestDatasetBuilder(t *testing.T) {
	b := NewDatasetBuilder("orders", models.SourceTypePostgres, "public.orders",
		[]string{"id", "amount"}, []models.DataType{models.DataTypeInteger})

	require.NoError(t, b.AppendRow([]any{int64(1), 9.5}))
	require.NoError(t, b.AppendRow([]any{int64(2), nil}))
	assert.Error(t, b.AppendRow([]any{int64(3)}))

	ds, err := b.Build(map[string]models.DataType{"amount": models.DataTypeFloat})
	require.NoError(t, err)

	assert.Equal(t, "orders", ds.Name)
	assert.Equal(t, 2, ds.RowCount())
	assert.Equal(t, models.DataTypeInteger, ds.Columns[0].DeclaredType)
	assert.Equal(t, models.DataTypeFloat, ds.Columns[1].DeclaredType)
	assert.Equal(t, []any{9.5, nil}, ds.Columns[1].Values)
}

func TestDatasetBuilder_EmptyResultKeepsColumns(t *testing.T) {
	ds, err := NewDatasetBuilder("t", "", "", []string{"a"}, nil).Build(nil)

	require.NoError(t, err)
	require.Len(t, ds.Columns, 1)
	assert.NotNil(t, ds.Columns[0].Values)
	assert.Equal(t, 0, ds.RowCount())
}

func TestDatasetBuilder_UnknownDeclaredColumn(t *testing.T) {
	_, err := NewDatasetBuilder("t", "", "", []string{"a"}, nil).
		Build(map[string]models.DataType{"b": models.DataTypeText})

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestParseDeclaredTypes(t *testing.T) {
	types, err := ParseDeclaredTypes([]string{"zip=text", " amount = FLOAT "})

	require.NoError(t, err)
	assert.Equal(t, map[string]models.DataType{
		"zip":    models.DataTypeText,
		"amount": models.DataTypeFloat,
	}, types)

	for _, bad := range []string{"zip", "=TEXT", "zip=VARCHAR"} {
		_, err := ParseDeclaredTypes([]string{bad})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput, bad)
	}
}

func TestNormalizeValue(t *testing.T) {
	assert.Equal(t, "abc", NormalizeValue([]byte("abc")))
	assert.Equal(t, float64(float32(1.5)), NormalizeValue(float32(1.5)))
	assert.Equal(t, int64(7), NormalizeValue(int64(7)))
	assert.Nil(t, NormalizeValue(nil))
}

type nopReader struct{}

func (nopReader) Read(context.Context, ReadRequest) (*models.Dataset, error) {
	return &models.Dataset{}, nil
}
func (nopReader) Close() error { return nil }

func TestRegistryFactory(t *testing.T) {
	Register(ReaderRegistration{
		Info: ReaderInfo{Type: "test-nop", DisplayName: "No-op"},
		Factory: func(ctx context.Context, config map[string]any, logger *zap.Logger) (DatasetReader, error) {
			return nopReader{}, nil
		},
	})
	f := NewReaderFactory(zap.NewNop())

	r, err := f.NewReader(context.Background(), "test-nop", nil)
	require.NoError(t, err)
	assert.NotNil(t, r)
	assert.True(t, IsRegistered("test-nop"))

	types := f.ListTypes()
	found := false
	for _, info := range types {
		found = found || info.Type == "test-nop"
	}
	assert.True(t, found)

	_, err = f.NewReader(context.Background(), "parquet", nil)
	assert.ErrorContains(t, err, "unsupported source type: parquet")
}

func TestCoerceTextColumn(t *testing.T) {
	assert.Equal(t, []any{int64(1), nil, int64(-3)}, CoerceTextColumn([]string{"1", "", " -3 "}))
	assert.Equal(t, []any{1.0, 2.5}, CoerceTextColumn([]string{"1", "2.5"}))
	assert.Equal(t, []any{"1", "x", nil}, CoerceTextColumn([]string{"1", "x", ""}))
}

func TestFileSourceType(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"data/orders.csv", models.SourceTypeCSV},
		{"Orders.CSV", models.SourceTypeCSV},
		{"/tmp/regions.xlsx", models.SourceTypeXLSX},
	}
	for _, tt := range tests {
		got, err := FileSourceType(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}

	for _, bad := range []string{"orders.json", "orders.xls", "orders"} {
		_, err := FileSourceType(bad)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput, bad)
		assert.ErrorContains(t, err, "unsupported file format", bad)
	}
}

func TestFileDatasetName(t *testing.T) {
	assert.Equal(t, "orders", FileDatasetName("/data/orders.xlsx"))
}
