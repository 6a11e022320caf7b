package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-quality/pkg/models"
)

func TestRecorder_ObserveScan(t *testing.T) {
	r, err := NewRecorder()
	require.NoError(t, err)

	r.ObserveScan("employees", 5, 20*time.Millisecond, nil)
	r.ObserveScan("employees", 0, time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.scansTotal.WithLabelValues("employees", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.scansTotal.WithLabelValues("employees", OutcomeFailed)))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.tableRows.WithLabelValues("employees")))
}

func TestRecorder_AddIssues(t *testing.T) {
	r, err := NewRecorder()
	require.NoError(t, err)

	r.AddIssues("employees", []*models.Issue{
		{IssueType: models.IssueTypeMissingValues, Severity: models.SeverityCritical},
		{IssueType: models.IssueTypeMissingValues, Severity: models.SeverityCritical},
		{IssueType: models.IssueTypeOutliers, Severity: models.SeverityLow},
	}, 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.issuesDetected.WithLabelValues("employees", "missing_values", "critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.issuesDetected.WithLabelValues("employees", "outliers", "low")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.issuesSkipped.WithLabelValues("employees")))
}

func TestRecorder_DriftAndSchemaChanges(t *testing.T) {
	r, err := NewRecorder()
	require.NoError(t, err)

	r.AddSchemaChanges("employees", []*models.SchemaChange{
		{ChangeType: models.ChangeTypeColumnAdded},
		{ChangeType: models.ChangeTypeColumnRemoved},
	})
	r.AddDrift("employees", &models.DriftReport{Severity: models.SeverityHigh})
	r.AddDrift("employees", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.schemaChanges.WithLabelValues("employees", models.ChangeTypeColumnAdded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.driftedColumns.WithLabelValues("employees", "high")))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder

	assert.NotPanics(t, func() {
		r.ObserveScan("t", 1, time.Second, nil)
		r.AddIssues("t", []*models.Issue{{}}, 1)
		r.AddSchemaChanges("t", []*models.SchemaChange{{}})
		r.AddDrift("t", &models.DriftReport{})
		r.ObserveFixSuggestion("stub", nil)
	})
	assert.Nil(t, r.Registry())
	assert.NoError(t, r.WriteToTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestRecorder_WriteToTextfile(t *testing.T) {
	r, err := NewRecorder()
	require.NoError(t, err)
	r.ObserveFixSuggestion("stub", nil)

	path := filepath.Join(t.TempDir(), "ekaya_quality.prom")
	require.NoError(t, r.WriteToTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `ekaya_quality_fix_suggestions_total{model="stub",outcome="success"} 1`))

	assert.NoError(t, r.WriteToTextfile(""))
}
