//go:build integration

package repositories

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-quality/pkg/models"
)

func TestProfileRepository_GetPreviousIsSecondMostRecent(t *testing.T) {
	tc, ctx := setupRepoTest(t)
	repo := NewProfileRepository()

	table := tc.createTable(ctx, "metrics", models.ColumnSchema{Name: "value", DataType: models.DataTypeFloat})
	columns, err := tc.catalog.ListColumns(ctx, table.ID)
	require.NoError(t, err)
	columnID := columns[0].ID

	previous, err := repo.GetPrevious(ctx, table.ID, columnID)
	require.NoError(t, err)
	assert.Nil(t, previous, "no history yet")

	base := time.Now().UTC().Add(-time.Hour)
	mean := 10.0
	for i := 0; i < 3; i++ {
		p := &models.Profile{
			TableID:          table.ID,
			ColumnID:         columnID,
			ProfileTimestamp: base.Add(time.Duration(i) * time.Minute),
			RowCount:         100,
			NullCount:        i,
			NullPercentage:   float64(i),
			UniqueCount:      50 + i,
			UniquePercentage: 50,
			MeanValue:        &mean,
			SampleValues:     []string{"1.5", "2.5"},
			Histogram:        &models.Histogram{Counts: []int{1, 2}, Bins: []float64{0, 1, 2}},
			DataType:         models.DataTypeFloat,
			ProfileData:      map[string]any{"row_count": 100},
		}
		require.NoError(t, repo.Create(ctx, p))
	}

	previous, err = repo.GetPrevious(ctx, table.ID, columnID)
	require.NoError(t, err)
	require.NotNil(t, previous)
	assert.Equal(t, 1, previous.NullCount, "second newest profile")
	assert.Equal(t, []string{"1.5", "2.5"}, previous.SampleValues)
	require.NotNil(t, previous.Histogram)
	assert.Equal(t, []int{1, 2}, previous.Histogram.Counts)
	require.NotNil(t, previous.MeanValue)
	assert.Equal(t, 10.0, *previous.MeanValue)
	assert.Nil(t, previous.MedianValue)

	history, err := repo.ListByColumn(ctx, table.ID, columnID, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, 2, history[0].NullCount)

	limited, err := repo.ListByColumn(ctx, table.ID, columnID, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
