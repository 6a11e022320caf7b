//go:build integration

package repositories

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-quality/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-quality/pkg/models"
	"github.com/ekaya-inc/ekaya-quality/pkg/testhelpers"
)

// repoTestContext holds test dependencies shared by repository tests.
type repoTestContext struct {
	t       *testing.T
	qdb     *testhelpers.QualityDB
	catalog CatalogRepository
}

// setupRepoTest truncates the catalog and returns a scoped context.
func setupRepoTest(t *testing.T) (*repoTestContext, context.Context) {
	qdb := testhelpers.GetQualityDB(t)
	qdb.Truncate(t)
	tc := &repoTestContext{
		t:       t,
		qdb:     qdb,
		catalog: NewCatalogRepository(),
	}
	return tc, qdb.CreateScopedContext(t)
}

// createTable registers a table with the given TEXT/INTEGER columns.
func (tc *repoTestContext) createTable(ctx context.Context, name string, columns ...models.ColumnSchema) *models.Table {
	tc.t.Helper()
	table := &models.Table{Name: name, SourceType: models.SourceTypeManual}
	for i, c := range columns {
		table.Columns = append(table.Columns, &models.Column{
			Name:     c.Name,
			DataType: c.DataType,
			Nullable: true,
			Position: i,
		})
	}
	require.NoError(tc.t, tc.catalog.CreateTable(ctx, table))
	return table
}

func TestCatalogRepository_CreateAndGetTable(t *testing.T) {
	tc, ctx := setupRepoTest(t)

	table := tc.createTable(ctx, "orders",
		models.ColumnSchema{Name: "id", DataType: models.DataTypeInteger},
		models.ColumnSchema{Name: "status", DataType: models.DataTypeText},
	)

	got, err := tc.catalog.GetTableByName(ctx, "orders")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, table.ID, got.ID)
	assert.Equal(t, models.SourceTypeManual, got.SourceType)

	columns, err := tc.catalog.ListColumns(ctx, table.ID)
	require.NoError(t, err)
	require.Len(t, columns, 2)
	assert.Equal(t, "id", columns[0].Name)
	assert.Equal(t, 0, columns[0].Position)
	assert.Equal(t, "status", columns[1].Name)
	assert.Equal(t, models.DataTypeText, columns[1].DataType)
}

func TestCatalogRepository_DuplicateNameConflicts(t *testing.T) {
	tc, ctx := setupRepoTest(t)
	tc.createTable(ctx, "orders")

	err := tc.catalog.CreateTable(ctx, &models.Table{Name: "orders"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
}

func TestCatalogRepository_GetMissingReturnsNil(t *testing.T) {
	tc, ctx := setupRepoTest(t)

	got, err := tc.catalog.GetTableByName(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	col, err := tc.catalog.GetColumnByName(ctx, "missing", "id")
	require.NoError(t, err)
	assert.Nil(t, col)
}

func TestCatalogRepository_UpsertAndSoftDeleteColumns(t *testing.T) {
	tc, ctx := setupRepoTest(t)
	table := tc.createTable(ctx, "orders",
		models.ColumnSchema{Name: "id", DataType: models.DataTypeInteger},
		models.ColumnSchema{Name: "amount", DataType: models.DataTypeInteger},
		models.ColumnSchema{Name: "legacy", DataType: models.DataTypeText},
	)
	columns, err := tc.catalog.ListColumns(ctx, table.ID)
	require.NoError(t, err)
	amountID := columns[1].ID

	// type change keeps the column identity
	amount := &models.Column{TableID: table.ID, Name: "amount", DataType: models.DataTypeFloat, Nullable: true, Position: 1}
	require.NoError(t, tc.catalog.UpsertColumn(ctx, amount))
	assert.Equal(t, amountID, amount.ID)

	deleted, err := tc.catalog.SoftDeleteColumns(ctx, table.ID, []string{"legacy"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	columns, err = tc.catalog.ListColumns(ctx, table.ID)
	require.NoError(t, err)
	require.Len(t, columns, 2)
	assert.Equal(t, models.DataTypeFloat, columns[1].DataType)

	// a removed column can be re-added as a new active column
	readded := &models.Column{TableID: table.ID, Name: "legacy", DataType: models.DataTypeText, Nullable: true, Position: 2}
	require.NoError(t, tc.catalog.UpsertColumn(ctx, readded))

	byName, err := tc.catalog.GetColumnByName(ctx, "orders", "legacy")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, readded.ID, byName.ID)
}
