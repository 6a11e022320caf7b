package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-quality/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-quality/pkg/database"
	"github.com/ekaya-inc/ekaya-quality/pkg/models"
	"github.com/ekaya-inc/ekaya-quality/pkg/repositories"
)

// DefaultDriftThreshold is the relative change above which a metric drifts.
const DefaultDriftThreshold = 0.2

// highSeverityDriftMetrics is the number of drifted metrics above which
// data drift is high severity.
const highSeverityDriftMetrics = 2

// DriftDetectorService compares the current schema and profiles of a table
// against what was stored before.
type DriftDetectorService interface {
	// DetectSchemaDrift diffs the observed columns against the registered
	// ones and persists every difference as a SchemaChange. It does not
	// modify the catalog.
	DetectSchemaDrift(ctx context.Context, tableID uuid.UUID, current []models.ColumnSchema) ([]*models.SchemaChange, error)

	// DetectDataDrift compares current against the second most recent stored
	// profile of the column (the most recent being the one just written).
	// Returns nil when there is no earlier profile or nothing drifted.
	DetectDataDrift(ctx context.Context, tableID, columnID uuid.UUID, current *models.ColumnProfile) (*models.DriftReport, error)
}

type driftDetectorService struct {
	catalogRepo      repositories.CatalogRepository
	profileRepo      repositories.ProfileRepository
	issueRepo        repositories.IssueRepository
	schemaChangeRepo repositories.SchemaChangeRepository
	tx               database.Transactor
	threshold        float64
	logger           *zap.Logger
}

// NewDriftDetectorService creates a new drift detector. A non-positive
// threshold selects DefaultDriftThreshold.
func NewDriftDetectorService(
	catalogRepo repositories.CatalogRepository,
	profileRepo repositories.ProfileRepository,
	issueRepo repositories.IssueRepository,
	schemaChangeRepo repositories.SchemaChangeRepository,
	tx database.Transactor,
	threshold float64,
	logger *zap.Logger,
) DriftDetectorService {
	if threshold <= 0 {
		threshold = DefaultDriftThreshold
	}
	return &driftDetectorService{
		catalogRepo:      catalogRepo,
		profileRepo:      profileRepo,
		issueRepo:        issueRepo,
		schemaChangeRepo: schemaChangeRepo,
		tx:               tx,
		threshold:        threshold,
		logger:           logger.Named("drift"),
	}
}

var _ DriftDetectorService = (*driftDetectorService)(nil)

// ============================================================================
// Schema drift
// ============================================================================

func (s *driftDetectorService) DetectSchemaDrift(ctx context.Context, tableID uuid.UUID, current []models.ColumnSchema) ([]*models.SchemaChange, error) {
	table, err := s.catalogRepo.GetTableByID(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to get table: %w", err)
	}
	if table == nil {
		return nil, fmt.Errorf("table %s: %w", tableID, apperrors.ErrNotFound)
	}

	previous, err := s.catalogRepo.ListColumns(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns: %w", err)
	}

	changes := DiffSchemas(tableID, previous, current)
	if len(changes) == 0 {
		return nil, nil
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		for _, change := range changes {
			if err := s.schemaChangeRepo.Create(ctx, change); err != nil {
				return fmt.Errorf("%s %v: %w", change.ChangeType, change.ChangeDetails["column_name"], err)
			}
		}
		return nil
	})
	if err != nil {
		err = asPersistenceError("save schema changes", err)
		s.logger.Error("Failed to save schema changes",
			zap.String("table", table.Name),
			zap.Error(err))
		return nil, err
	}

	for _, change := range changes {
		s.logger.Warn("Schema change detected",
			zap.String("table", table.Name),
			zap.String("change_type", change.ChangeType),
			zap.Any("details", change.ChangeDetails))
	}
	return changes, nil
}

// DiffSchemas classifies the differences between registered columns and
// observed ones: removals in registered order, then additions and type
// changes in observed order.
func DiffSchemas(tableID uuid.UUID, previous []*models.Column, current []models.ColumnSchema) []*models.SchemaChange {
	now := time.Now().UTC()
	newChange := func(changeType string, details map[string]any) *models.SchemaChange {
		return &models.SchemaChange{
			TableID:       tableID,
			ChangeType:    changeType,
			ChangeDetails: details,
			DetectedAt:    now,
			DetectedBy:    models.DetectedByDriftDetector,
		}
	}

	currentTypes := make(map[string]models.DataType, len(current))
	for _, c := range current {
		currentTypes[c.Name] = c.DataType
	}
	previousTypes := make(map[string]models.DataType, len(previous))
	for _, c := range previous {
		previousTypes[c.Name] = c.DataType
	}

	var changes []*models.SchemaChange
	for _, c := range previous {
		if _, ok := currentTypes[c.Name]; !ok {
			changes = append(changes, newChange(models.ChangeTypeColumnRemoved, map[string]any{
				"column_name":   c.Name,
				"previous_type": string(c.DataType),
			}))
		}
	}
	for _, c := range current {
		prevType, ok := previousTypes[c.Name]
		switch {
		case !ok:
			changes = append(changes, newChange(models.ChangeTypeColumnAdded, map[string]any{
				"column_name": c.Name,
				"new_type":    string(c.DataType),
			}))
		case prevType != c.DataType:
			changes = append(changes, newChange(models.ChangeTypeTypeChanged, map[string]any{
				"column_name":   c.Name,
				"previous_type": string(prevType),
				"new_type":      string(c.DataType),
			}))
		}
	}
	return changes
}

// ============================================================================
// Data drift
// ============================================================================

func (s *driftDetectorService) DetectDataDrift(ctx context.Context, tableID, columnID uuid.UUID, current *models.ColumnProfile) (*models.DriftReport, error) {
	previous, err := s.profileRepo.GetPrevious(ctx, tableID, columnID)
	if err != nil {
		return nil, fmt.Errorf("failed to get previous profile: %w", err)
	}
	if previous == nil {
		s.logger.Debug("No previous profile, baseline established",
			zap.String("column_id", columnID.String()))
		return nil, nil
	}

	drifts := CompareProfiles(previous, current, s.threshold)
	if len(drifts) == 0 {
		return nil, nil
	}

	column, err := s.catalogRepo.GetColumnByID(ctx, columnID)
	if err != nil {
		return nil, fmt.Errorf("failed to get column: %w", err)
	}
	columnName, label := "", "unknown"
	if column != nil {
		columnName, label = column.Name, column.Name
	}

	report := &models.DriftReport{
		TableID:           tableID,
		ColumnID:          columnID,
		ColumnName:        columnName,
		PreviousProfileID: previous.ID,
		Drifts:            drifts,
		Severity:          models.SeverityMedium,
	}
	if len(drifts) > highSeverityDriftMetrics {
		report.Severity = models.SeverityHigh
	}

	examples := make([]string, 0, len(drifts))
	for _, d := range drifts {
		examples = append(examples, fmt.Sprintf("%s: %s -> %s", d.Metric, formatFloat(d.Previous), formatFloat(d.Current)))
	}

	issue := &models.Issue{
		TableID:          tableID,
		ColumnID:         &columnID,
		ColumnName:       columnName,
		IssueType:        models.IssueTypeDataDrift,
		Severity:         report.Severity,
		Description:      fmt.Sprintf("Data drift detected in %s: %s changed", label, countNoun(len(drifts), "metric")),
		SuggestedFix:     SuggestedFix(models.IssueTypeDataDrift, "", columnName),
		AffectedRowCount: current.RowCount,
		Examples:         firstN(examples, maxExamples),
		DetectedAt:       time.Now().UTC(),
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		return s.issueRepo.Create(ctx, issue)
	})
	if err != nil {
		return nil, asPersistenceError("save drift issue", err)
	}
	report.IssueID = issue.ID

	s.logger.Warn("Data drift detected",
		zap.String("column", label),
		zap.Int("metrics", len(drifts)),
		zap.String("severity", string(report.Severity)))
	return report, nil
}

// CompareProfiles returns the metrics whose relative change
// |current - previous| / (|previous| + 1) exceeds threshold. The mean is
// only compared when both profiles have one.
func CompareProfiles(previous *models.Profile, current *models.ColumnProfile, threshold float64) []models.MetricDrift {
	var drifts []models.MetricDrift
	check := func(metric string, prev, cur float64) {
		rate := math.Abs(cur-prev) / (math.Abs(prev) + 1)
		if rate > threshold {
			drifts = append(drifts, models.MetricDrift{
				Metric:     metric,
				Previous:   prev,
				Current:    cur,
				ChangeRate: rate,
			})
		}
	}

	check(models.DriftMetricNullPercentage, previous.NullPercentage, current.NullPercentage)
	if previous.MeanValue != nil && current.MeanValue != nil {
		check(models.DriftMetricMeanValue, *previous.MeanValue, *current.MeanValue)
	}
	check(models.DriftMetricUniqueCount, float64(previous.UniqueCount), float64(current.UniqueCount))

	return drifts
}
