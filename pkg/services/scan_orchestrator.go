package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-quality/pkg/metrics"
	"github.com/ekaya-inc/ekaya-quality/pkg/models"
)

// ScanService runs the full pipeline for one dataset: catalog registration,
// schema drift, profiling, data drift and quality analysis.
type ScanService interface {
	// Scan processes dataset. Scans of the same table name are serialized;
	// different tables may be scanned concurrently.
	Scan(ctx context.Context, dataset *models.Dataset) (*ScanResult, error)
}

// ScanResult is everything one scan produced and persisted.
type ScanResult struct {
	Table         *models.Table          `json:"table"`
	Registered    bool                   `json:"registered"`
	SchemaChanges []*models.SchemaChange `json:"schema_changes"`
	Profile       *models.TableProfile   `json:"profile"`
	DriftReports  []*models.DriftReport  `json:"drift_reports"`
	Issues        []*models.Issue        `json:"issues"`
	SkippedIssues int                    `json:"skipped_issues"`
	Duration      time.Duration          `json:"duration_ns"`
}

type scanService struct {
	catalog  CatalogService
	profiler ProfilerService
	drift    DriftDetectorService
	analyzer QualityAnalyzerService
	metrics  *metrics.Recorder
	logger   *zap.Logger

	tableLocks sync.Map // table name -> *sync.Mutex
}

// NewScanService creates a new scan orchestrator. recorder may be nil.
func NewScanService(
	catalog CatalogService,
	profiler ProfilerService,
	drift DriftDetectorService,
	analyzer QualityAnalyzerService,
	recorder *metrics.Recorder,
	logger *zap.Logger,
) ScanService {
	return &scanService{
		catalog:  catalog,
		profiler: profiler,
		drift:    drift,
		analyzer: analyzer,
		metrics:  recorder,
		logger:   logger.Named("scan"),
	}
}

var _ ScanService = (*scanService)(nil)

func (s *scanService) lock(table string) func() {
	mu, _ := s.tableLocks.LoadOrStore(table, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

func (s *scanService) Scan(ctx context.Context, dataset *models.Dataset) (*ScanResult, error) {
	unlock := s.lock(dataset.Name)
	defer unlock()

	start := time.Now()
	result, err := s.scan(ctx, dataset)
	elapsed := time.Since(start)
	s.metrics.ObserveScan(dataset.Name, dataset.RowCount(), elapsed, err)
	if err != nil {
		s.logger.Error("Scan failed",
			zap.String("table", dataset.Name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, err
	}
	result.Duration = elapsed

	s.logger.Info("Scan complete",
		zap.String("table", dataset.Name),
		zap.Int("rows", dataset.RowCount()),
		zap.Int("schema_changes", len(result.SchemaChanges)),
		zap.Int("drifted_columns", len(result.DriftReports)),
		zap.Int("issues", len(result.Issues)),
		zap.Duration("elapsed", elapsed))
	return result, nil
}

func (s *scanService) scan(ctx context.Context, dataset *models.Dataset) (*ScanResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	table, created, err := s.catalog.RegisterTable(ctx, dataset, "")
	if err != nil {
		return nil, fmt.Errorf("failed to register table: %w", err)
	}
	result := &ScanResult{
		Table:         table,
		Registered:    created,
		SchemaChanges: []*models.SchemaChange{},
		DriftReports:  []*models.DriftReport{},
		Issues:        []*models.Issue{},
	}

	if !created {
		schema := SchemaOf(dataset)
		changes, err := s.drift.DetectSchemaDrift(ctx, table.ID, schema)
		if err != nil {
			return nil, fmt.Errorf("failed to detect schema drift: %w", err)
		}
		if len(changes) > 0 {
			result.SchemaChanges = changes
			s.metrics.AddSchemaChanges(table.Name, changes)
		}
		// Positions can move without any add/remove/type change, so the
		// catalog is always brought in line with the dataset order.
		if _, err := s.catalog.SyncColumns(ctx, table.ID, schema); err != nil {
			return nil, fmt.Errorf("failed to sync columns: %w", err)
		}
	}

	profile := s.profiler.ProfileTable(dataset, table.ID)
	result.Profile = profile
	saved, err := s.profiler.SaveProfile(ctx, table.ID, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}

	// saved is in column order, one record per column profile.
	for i, record := range saved {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cp := profile.ColumnProfiles[i]
		report, err := s.drift.DetectDataDrift(ctx, table.ID, record.ColumnID, cp)
		if err != nil {
			s.logger.Warn("Data drift check failed, continuing",
				zap.String("table", table.Name),
				zap.String("column", cp.ColumnName),
				zap.Error(err))
			continue
		}
		if report != nil {
			result.DriftReports = append(result.DriftReports, report)
			s.metrics.AddDrift(table.Name, report)
		}
	}

	issues, err := s.analyzer.Analyze(ctx, dataset, table.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze table: %w", err)
	}
	saveResult, err := s.analyzer.SaveIssues(ctx, issues)
	if err != nil {
		return nil, fmt.Errorf("failed to save issues: %w", err)
	}
	if saveResult.Saved != nil {
		result.Issues = saveResult.Saved
	}
	result.SkippedIssues = len(saveResult.Skipped)
	s.metrics.AddIssues(table.Name, saveResult.Saved, result.SkippedIssues)

	return result, nil
}
