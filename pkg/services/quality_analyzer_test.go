package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-quality/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-quality/pkg/models"
)

func newTestAnalyzer(store *memStore, deduplicate bool) QualityAnalyzerService {
	return NewQualityAnalyzerService(memCatalogRepo{store}, memIssueRepo{store}, &memTx{store}, deduplicate, zap.NewNop())
}

func issueTypes(issues []*models.Issue) []models.IssueType {
	out := make([]models.IssueType, len(issues))
	for i, issue := range issues {
		out[i] = issue.IssueType
	}
	return out
}

func findIssue(issues []*models.Issue, issueType models.IssueType) *models.Issue {
	for _, issue := range issues {
		if issue.IssueType == issueType {
			return issue
		}
	}
	return nil
}

func TestAnalyze_SalaryWithOneMissingValue(t *testing.T) {
	a := newTestAnalyzer(newMemStore(), true)

	issues, err := a.Analyze(context.Background(), salaryDataset(), uuid.Nil)

	require.NoError(t, err)
	require.Len(t, issues, 1)
	issue := issues[0]
	assert.Equal(t, models.IssueTypeMissingValues, issue.IssueType)
	assert.Equal(t, "salary", issue.ColumnName)
	assert.Equal(t, 1, issue.AffectedRowCount)
	assert.Equal(t, 20.0, issue.Percentage)
	assert.Equal(t, models.SeverityMedium, issue.Severity)
	assert.Equal(t, "1 null/missing values (20.0%)", issue.Description)
	assert.Equal(t, []string{"2"}, issue.Examples)
	assert.Equal(t, "DELETE FROM employees WHERE salary IS NULL; -- or impute with median/mode", issue.SuggestedFix)
	assert.False(t, issue.DetectedAt.IsZero())
}

func TestAnalyzeColumn_MixedDateFormats(t *testing.T) {
	issues := AnalyzeColumn("events", models.DatasetColumn{
		Name:   "created",
		Values: []any{"2023-01-01", "01/15/2023"},
	})

	require.Len(t, issues, 1)
	issue := issues[0]
	assert.Equal(t, models.IssueTypeMixedDateFormats, issue.IssueType)
	assert.Equal(t, models.SeverityHigh, issue.Severity)
	assert.Equal(t, "Mixed date formats: ['YYYY-MM-DD', 'MM/DD/YYYY']", issue.Description)
	assert.Equal(t, 2, issue.AffectedRowCount)
	assert.Equal(t, 100.0, issue.Percentage)
}

func TestAnalyzeColumn_SingleDateFormatIsClean(t *testing.T) {
	issues := AnalyzeColumn("events", models.DatasetColumn{
		Name:   "created",
		Values: []any{"2023-01-01", "2023-01-02", "2023-01-03"},
	})
	assert.Empty(t, issues)
}

func TestAnalyzeColumn_MissingValueSeverityBands(t *testing.T) {
	tests := []struct {
		nulls int
		want  models.Severity
	}{
		{1, models.SeverityMedium},   // 10% is not above 10
		{2, models.SeverityHigh},     // 20%
		{3, models.SeverityHigh},     // 30% is not above 30
		{4, models.SeverityCritical}, // 40%
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d of 10", tt.nulls), func(t *testing.T) {
			values := make([]any, 10)
			for i := tt.nulls; i < 10; i++ {
				values[i] = i
			}
			issue := findIssue(AnalyzeColumn("t", models.DatasetColumn{Name: "c", Values: values}), models.IssueTypeMissingValues)
			require.NotNil(t, issue)
			assert.Equal(t, tt.want, issue.Severity)
			assert.Equal(t, tt.nulls, issue.AffectedRowCount)
		})
	}
}

func TestAnalyzeColumn_DuplicateSeverity(t *testing.T) {
	high := findIssue(AnalyzeColumn("t", models.DatasetColumn{
		Name:   "c",
		Values: []any{"a", "a", "b", "c", "d"},
	}), models.IssueTypeDuplicates)
	require.NotNil(t, high)
	assert.Equal(t, models.SeverityHigh, high.Severity)
	assert.Equal(t, 1, high.AffectedRowCount)
	assert.Equal(t, 20.0, high.Percentage)
	assert.Equal(t, []string{"a"}, high.Examples)

	medium := findIssue(AnalyzeColumn("t", models.DatasetColumn{
		Name:   "c",
		Values: []any{"a", "a", "b", "c", "d", "e", "f", "g", "h", "i", nil},
	}), models.IssueTypeDuplicates)
	require.NotNil(t, medium)
	assert.Equal(t, models.SeverityMedium, medium.Severity)
	assert.Equal(t, 10.0, medium.Percentage, "duplicates are counted over non-null values")
}

func TestAnalyzeColumn_InvalidNumericWithDeclaredType(t *testing.T) {
	issues := AnalyzeColumn("orders", models.DatasetColumn{
		Name:         "qty",
		DeclaredType: models.DataTypeInteger,
		Values:       []any{"1", "2", "abc", "3"},
	})

	issue := findIssue(issues, models.IssueTypeInvalidNumeric)
	require.NotNil(t, issue)
	assert.Equal(t, models.SeverityCritical, issue.Severity)
	assert.Equal(t, 1, issue.AffectedRowCount)
	assert.Equal(t, "Non-numeric values in numeric column: abc", issue.Description)
	assert.Equal(t, []string{"abc"}, issue.Examples)
}

func TestAnalyzeColumn_NegativeValues(t *testing.T) {
	issues := AnalyzeColumn("accounts", models.DatasetColumn{
		Name:   "balance",
		Values: []any{5, -3, 10, 7},
	})

	require.Equal(t, []models.IssueType{models.IssueTypeNegativeValues}, issueTypes(issues))
	issue := issues[0]
	assert.Equal(t, models.SeverityHigh, issue.Severity)
	assert.Equal(t, "1 negative values in balance", issue.Description)
	assert.Equal(t, []string{"-3"}, issue.Examples)
	assert.Equal(t, 25.0, issue.Percentage)
}

func TestAnalyzeColumn_Outliers(t *testing.T) {
	issues := AnalyzeColumn("orders", models.DatasetColumn{
		Name:   "amount",
		Values: []any{10, 12, 11, 13, 12, 100},
	})

	assert.Equal(t, []models.IssueType{models.IssueTypeDuplicates, models.IssueTypeOutliers}, issueTypes(issues))
	issue := findIssue(issues, models.IssueTypeOutliers)
	require.NotNil(t, issue)
	assert.Equal(t, models.SeverityMedium, issue.Severity)
	assert.Equal(t, "1 outlier values detected", issue.Description)
	assert.Equal(t, []string{"100"}, issue.Examples)
	assert.Equal(t, "DELETE FROM orders WHERE amount < 9.0 OR amount > 15.0;", issue.SuggestedFix)
}

func TestAnalyzeColumn_FewOutliersAreLowSeverity(t *testing.T) {
	values := make([]any, 0, 25)
	for i := 1; i <= 24; i++ {
		values = append(values, i)
	}
	values = append(values, 1000)

	issue := findIssue(AnalyzeColumn("t", models.DatasetColumn{Name: "c", Values: values}), models.IssueTypeOutliers)
	require.NotNil(t, issue)
	assert.Equal(t, models.SeverityLow, issue.Severity)
	assert.Equal(t, 4.0, issue.Percentage)
}

func TestAnalyzeColumn_CaseSensitivity(t *testing.T) {
	issues := AnalyzeColumn("products", models.DatasetColumn{
		Name:   "color",
		Values: []any{"Red", "red", "Blue", "blue"},
	})

	require.Equal(t, []models.IssueType{models.IssueTypeCaseSensitivity}, issueTypes(issues))
	assert.Equal(t, models.SeverityMedium, issues[0].Severity)
	assert.Equal(t, []string{"Red", "red", "Blue"}, issues[0].Examples)
	assert.Equal(t, "UPDATE products SET color = LOWER(color);", issues[0].SuggestedFix)
}

func TestAnalyzeColumn_Whitespace(t *testing.T) {
	issues := AnalyzeColumn("stores", models.DatasetColumn{
		Name:   "city",
		Values: []any{"NY", " NY", "LA ", "LA"},
	})

	require.Equal(t, []models.IssueType{models.IssueTypeWhitespaceIssues}, issueTypes(issues))
	assert.Equal(t, []string{"' NY'", "'LA '"}, issues[0].Examples)
	assert.Equal(t, 2, issues[0].AffectedRowCount)
}

func TestAnalyzeColumn_SpecialCharacters(t *testing.T) {
	issues := AnalyzeColumn("users", models.DatasetColumn{
		Name:   "handle",
		Values: []any{"ok", "bad#value", "fine-name", "dot.ted", "ünïcode"},
	})

	require.Equal(t, []models.IssueType{models.IssueTypeSpecialCharacters}, issueTypes(issues))
	assert.Equal(t, models.SeverityLow, issues[0].Severity)
	assert.Equal(t, []string{"bad#value"}, issues[0].Examples)
}

func TestAnalyzeColumn_UnusuallyLongValues(t *testing.T) {
	long := strings.Repeat("x", 1500)
	issues := AnalyzeColumn("docs", models.DatasetColumn{
		Name:   "body",
		Values: []any{long, "short"},
	})

	require.Equal(t, []models.IssueType{models.IssueTypeUnusuallyLongValues}, issueTypes(issues))
	issue := issues[0]
	assert.Equal(t, "Very long string values (max: 1500 chars)", issue.Description)
	assert.Equal(t, 1, issue.AffectedRowCount)
	assert.Equal(t, []string{strings.Repeat("x", 100) + "..."}, issue.Examples)
}

func TestAnalyzeColumn_AllNull(t *testing.T) {
	issues := AnalyzeColumn("t", models.DatasetColumn{Name: "c", Values: []any{nil, nil}})

	require.Len(t, issues, 1)
	assert.Equal(t, models.IssueTypeMissingValues, issues[0].IssueType)
	assert.Equal(t, models.SeverityCritical, issues[0].Severity)
}

func TestAnalyze_ResolvesColumnIDsByPosition(t *testing.T) {
	store := newMemStore()
	table := seedTable(t, store, "employees",
		models.ColumnSchema{Name: "id", DataType: models.DataTypeInteger},
		models.ColumnSchema{Name: "pay", DataType: models.DataTypeFloat})
	a := newTestAnalyzer(store, true)

	// "salary" sits where the catalog has "pay": position wins over name.
	issues, err := a.Analyze(context.Background(), salaryDataset(), table.ID)

	require.NoError(t, err)
	require.Len(t, issues, 1)
	require.NotNil(t, issues[0].ColumnID)
	assert.Equal(t, table.Columns[1].ID, *issues[0].ColumnID)
	assert.Equal(t, table.ID, issues[0].TableID)
}

func TestAnalyze_ColumnWithoutCatalogPositionHasNoID(t *testing.T) {
	store := newMemStore()
	table := seedTable(t, store, "employees",
		models.ColumnSchema{Name: "id", DataType: models.DataTypeInteger})
	a := newTestAnalyzer(store, true)

	issues, err := a.Analyze(context.Background(), salaryDataset(), table.ID)

	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Nil(t, issues[0].ColumnID)
}

func TestSaveIssues_DeduplicatesOpenIssues(t *testing.T) {
	store := newMemStore()
	table := seedTable(t, store, "employees",
		models.ColumnSchema{Name: "id", DataType: models.DataTypeInteger},
		models.ColumnSchema{Name: "salary", DataType: models.DataTypeFloat})
	a := newTestAnalyzer(store, true)
	ctx := context.Background()

	issues, err := a.Analyze(ctx, salaryDataset(), table.ID)
	require.NoError(t, err)
	first, err := a.SaveIssues(ctx, issues)
	require.NoError(t, err)
	assert.Len(t, first.Saved, 1)

	issues, err = a.Analyze(ctx, salaryDataset(), table.ID)
	require.NoError(t, err)
	second, err := a.SaveIssues(ctx, issues)
	require.NoError(t, err)
	assert.Empty(t, second.Saved)
	require.Len(t, second.Skipped, 1)
	assert.Equal(t, first.Saved[0].ID, second.Skipped[0].ID)
	assert.Len(t, store.issues, 1)

	// Once resolved, the defect is reported again.
	_, err = a.ResolveIssue(ctx, first.Saved[0].ID)
	require.NoError(t, err)
	third, err := a.SaveIssues(ctx, issues)
	require.NoError(t, err)
	assert.Len(t, third.Saved, 1)
}

func TestSaveIssues_DeduplicatesByColumnID(t *testing.T) {
	store := newMemStore()
	a := newTestAnalyzer(store, true)
	ctx := context.Background()
	tableID := uuid.New()
	oldColumn, newColumn := uuid.New(), uuid.New()
	newIssue := func(columnID uuid.UUID, name string) *models.Issue {
		return &models.Issue{TableID: tableID, ColumnID: &columnID, ColumnName: name,
			IssueType: models.IssueTypeMissingValues, Severity: models.SeverityMedium}
	}

	_, err := a.SaveIssues(ctx, []*models.Issue{newIssue(oldColumn, "salary")})
	require.NoError(t, err)

	// Same name, different column: the open issue belongs to the old column.
	readded, err := a.SaveIssues(ctx, []*models.Issue{newIssue(newColumn, "salary")})
	require.NoError(t, err)
	assert.Len(t, readded.Saved, 1)

	// Same column under a new name still deduplicates.
	renamed, err := a.SaveIssues(ctx, []*models.Issue{newIssue(oldColumn, "base_salary")})
	require.NoError(t, err)
	assert.Empty(t, renamed.Saved)
	assert.Len(t, renamed.Skipped, 1)
	assert.Len(t, store.issues, 2)
}

func TestSaveIssues_AppendOnlyWithoutDeduplication(t *testing.T) {
	store := newMemStore()
	a := newTestAnalyzer(store, false)
	ctx := context.Background()
	tableID := uuid.New()

	for i := 0; i < 2; i++ {
		issues, err := a.Analyze(ctx, salaryDataset(), uuid.Nil)
		require.NoError(t, err)
		for _, issue := range issues {
			issue.TableID = tableID
		}
		_, err = a.SaveIssues(ctx, issues)
		require.NoError(t, err)
	}
	assert.Len(t, store.issues, 2)
}

func TestSaveIssues_DataDriftIsNeverDeduplicated(t *testing.T) {
	store := newMemStore()
	a := newTestAnalyzer(store, true)
	tableID := uuid.New()
	newDrift := func() *models.Issue {
		return &models.Issue{TableID: tableID, ColumnName: "age", IssueType: models.IssueTypeDataDrift, Severity: models.SeverityMedium}
	}

	_, err := a.SaveIssues(context.Background(), []*models.Issue{newDrift()})
	require.NoError(t, err)
	result, err := a.SaveIssues(context.Background(), []*models.Issue{newDrift()})
	require.NoError(t, err)

	assert.Len(t, result.Saved, 1)
	assert.Len(t, store.issues, 2)
}

func TestSaveIssues_InvalidSeverityRollsBack(t *testing.T) {
	store := newMemStore()
	a := newTestAnalyzer(store, true)
	tableID := uuid.New()

	_, err := a.SaveIssues(context.Background(), []*models.Issue{
		{TableID: tableID, ColumnName: "a", IssueType: models.IssueTypeDuplicates, Severity: models.SeverityLow},
		{TableID: tableID, ColumnName: "b", IssueType: models.IssueTypeDuplicates, Severity: "urgent"},
	})

	require.Error(t, err)
	var pe *apperrors.PersistenceError
	assert.True(t, errors.As(err, &pe))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Empty(t, store.issues)
}

func TestSaveIssues_StoreFailure(t *testing.T) {
	store := newMemStore()
	store.issueCreateErr = errors.New("connection reset")
	a := newTestAnalyzer(store, false)

	issues, err := a.Analyze(context.Background(), salaryDataset(), uuid.Nil)
	require.NoError(t, err)
	_, err = a.SaveIssues(context.Background(), issues)

	require.Error(t, err)
	var pe *apperrors.PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "save issues", pe.Op)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestSaveIssues_Empty(t *testing.T) {
	a := newTestAnalyzer(newMemStore(), true)

	result, err := a.SaveIssues(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, result.Saved)
}

func TestResolveIssue(t *testing.T) {
	store := newMemStore()
	a := newTestAnalyzer(store, true)
	ctx := context.Background()
	tableID := uuid.New()

	result, err := a.SaveIssues(ctx, []*models.Issue{
		{TableID: tableID, ColumnName: "a", IssueType: models.IssueTypeDuplicates, Severity: models.SeverityLow},
		{TableID: tableID, ColumnName: "b", IssueType: models.IssueTypeDuplicates, Severity: models.SeverityLow},
	})
	require.NoError(t, err)
	target := result.Saved[0]

	resolved, err := a.ResolveIssue(ctx, target.ID)
	require.NoError(t, err)
	require.NotNil(t, resolved.ResolvedAt)
	firstResolution := *resolved.ResolvedAt

	again, err := a.ResolveIssue(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, firstResolution, *again.ResolvedAt)

	open, err := a.ListIssues(ctx, tableID, true)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "b", open[0].ColumnName)

	all, err := a.ListIssues(ctx, tableID, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestResolveIssue_NotFound(t *testing.T) {
	a := newTestAnalyzer(newMemStore(), true)

	_, err := a.ResolveIssue(context.Background(), uuid.New())

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
