// Package metrics exposes scan, issue and drift counters in Prometheus format.
// The CLI is short-lived, so the registry is written to a node-exporter
// textfile after each command instead of being served over HTTP.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ekaya-inc/ekaya-quality/pkg/models"
)

const namespace = "ekaya_quality"

// Scan outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Recorder holds the engine's collectors on a private registry.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	scansTotal          *prometheus.CounterVec
	scanDuration        *prometheus.HistogramVec
	tableRows           *prometheus.GaugeVec
	issuesDetected      *prometheus.CounterVec
	issuesSkipped       *prometheus.CounterVec
	schemaChanges       *prometheus.CounterVec
	driftedColumns      *prometheus.CounterVec
	lastScanTimestamp   *prometheus.GaugeVec
	fixSuggestionsTotal *prometheus.CounterVec
}

// NewRecorder creates a Recorder with all collectors registered.
func NewRecorder() (*Recorder, error) {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		scansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Number of table scans by outcome",
		}, []string{"table", "outcome"}),
		scanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Duration of table scans",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"table"}),
		tableRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "table_rows",
			Help:      "Row count observed by the last scan",
		}, []string{"table"}),
		issuesDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_detected_total",
			Help:      "Quality issues persisted, by type and severity",
		}, []string{"table", "issue_type", "severity"}),
		issuesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_skipped_total",
			Help:      "Detected issues suppressed because an identical one is still open",
		}, []string{"table"}),
		schemaChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_changes_total",
			Help:      "Schema changes detected, by change type",
		}, []string{"table", "change_type"}),
		driftedColumns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drifted_columns_total",
			Help:      "Columns with data drift, by severity",
		}, []string{"table", "severity"}),
		lastScanTimestamp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_scan_timestamp_seconds",
			Help:      "Unix time of the last successful scan",
		}, []string{"table"}),
		fixSuggestionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fix_suggestions_total",
			Help:      "Fix suggestions generated, by model and outcome",
		}, []string{"model", "outcome"}),
	}

	for _, c := range []prometheus.Collector{
		r.scansTotal,
		r.scanDuration,
		r.tableRows,
		r.issuesDetected,
		r.issuesSkipped,
		r.schemaChanges,
		r.driftedColumns,
		r.lastScanTimestamp,
		r.fixSuggestionsTotal,
	} {
		if err := r.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return r, nil
}

// Registry returns the registry holding the engine's collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveScan records one scan of table.
func (r *Recorder) ObserveScan(table string, rows int, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailed
	}
	r.scansTotal.WithLabelValues(table, outcome).Inc()
	r.scanDuration.WithLabelValues(table).Observe(elapsed.Seconds())
	if err == nil {
		r.tableRows.WithLabelValues(table).Set(float64(rows))
		r.lastScanTimestamp.WithLabelValues(table).SetToCurrentTime()
	}
}

// AddIssues counts persisted issues and the duplicates that were skipped.
func (r *Recorder) AddIssues(table string, saved []*models.Issue, skipped int) {
	if r == nil {
		return
	}
	for _, issue := range saved {
		r.issuesDetected.WithLabelValues(table, string(issue.IssueType), string(issue.Severity)).Inc()
	}
	if skipped > 0 {
		r.issuesSkipped.WithLabelValues(table).Add(float64(skipped))
	}
}

// AddSchemaChanges counts detected schema changes by type.
func (r *Recorder) AddSchemaChanges(table string, changes []*models.SchemaChange) {
	if r == nil {
		return
	}
	for _, c := range changes {
		r.schemaChanges.WithLabelValues(table, c.ChangeType).Inc()
	}
}

// AddDrift counts a drifted column.
func (r *Recorder) AddDrift(table string, report *models.DriftReport) {
	if r == nil || report == nil {
		return
	}
	r.driftedColumns.WithLabelValues(table, string(report.Severity)).Inc()
}

// ObserveFixSuggestion records one fix-suggestion generation.
func (r *Recorder) ObserveFixSuggestion(model string, err error) {
	if r == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailed
	}
	r.fixSuggestionsTotal.WithLabelValues(model, outcome).Inc()
}

// WriteToTextfile writes the registry in text exposition format for the
// node exporter textfile collector. An empty path is a no-op.
func (r *Recorder) WriteToTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
