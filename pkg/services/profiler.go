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

// Profiler defaults.
const (
	DefaultHistogramBins  = 10
	DefaultSampleValueCap = 10
)

// ProfilerOptions tunes the statistics a profile carries.
type ProfilerOptions struct {
	HistogramBins  int
	SampleValueCap int
}

// DefaultProfilerOptions returns 10 histogram bins and 10 sample values.
func DefaultProfilerOptions() ProfilerOptions {
	return ProfilerOptions{
		HistogramBins:  DefaultHistogramBins,
		SampleValueCap: DefaultSampleValueCap,
	}
}

// ProfilerService computes column statistics and persists profile snapshots.
type ProfilerService interface {
	// ProfileColumn computes the statistics of one column. Numeric moments,
	// histogram and outlier count are only computed for INTEGER and FLOAT.
	ProfileColumn(values []any, name string, declaredType models.DataType) *models.ColumnProfile

	// ProfileTable profiles every column of the dataset, inferring declared
	// types for columns the dataset leaves untyped.
	ProfileTable(dataset *models.Dataset, tableID uuid.UUID) *models.TableProfile

	// SaveProfile writes one Profile per column in a single transaction.
	// Any column failure rolls back the whole snapshot and is reported in a
	// *apperrors.PersistenceError together with every other failure.
	SaveProfile(ctx context.Context, tableID uuid.UUID, profile *models.TableProfile) ([]*models.Profile, error)
}

type profilerService struct {
	catalogRepo repositories.CatalogRepository
	profileRepo repositories.ProfileRepository
	tx          database.Transactor
	opts        ProfilerOptions
	logger      *zap.Logger
}

// NewProfilerService creates a new profiler service.
func NewProfilerService(
	catalogRepo repositories.CatalogRepository,
	profileRepo repositories.ProfileRepository,
	tx database.Transactor,
	opts ProfilerOptions,
	logger *zap.Logger,
) ProfilerService {
	if opts.HistogramBins <= 0 {
		opts.HistogramBins = DefaultHistogramBins
	}
	if opts.SampleValueCap <= 0 {
		opts.SampleValueCap = DefaultSampleValueCap
	}
	return &profilerService{
		catalogRepo: catalogRepo,
		profileRepo: profileRepo,
		tx:          tx,
		opts:        opts,
		logger:      logger.Named("profiler"),
	}
}

var _ ProfilerService = (*profilerService)(nil)

func (s *profilerService) ProfileColumn(values []any, name string, declaredType models.DataType) *models.ColumnProfile {
	present := nonNull(values)
	unique := distinct(present)

	p := &models.ColumnProfile{
		ColumnName:   name,
		DataType:     declaredType,
		RowCount:     len(values),
		NullCount:    len(values) - len(present),
		UniqueCount:  len(unique),
		SampleValues: stringifyAll(firstN(unique, s.opts.SampleValueCap)),
	}
	if len(values) > 0 {
		p.NullPercentage = float64(p.NullCount) / float64(len(values)) * 100
		p.UniquePercentage = float64(p.UniqueCount) / float64(len(values)) * 100
	}

	if declaredType.IsNumeric() {
		s.addNumericStats(p, values)
	}

	return p
}

// addNumericStats fills min/max/moments/histogram/outliers from the values
// that cast to finite numbers; unparseable cells are skipped, not fatal.
func (s *profilerService) addNumericStats(p *models.ColumnProfile, values []any) {
	series := coerceNumeric(values)
	outliers := countOutliers(series.values)
	p.OutlierCount = &outliers

	if len(series.values) == 0 {
		return
	}

	sorted := sortedCopy(series.values)
	minValue := series.format(sorted[0])
	maxValue := series.format(sorted[len(sorted)-1])
	meanValue := mean(series.values)
	medianValue := quantile(sorted, 0.5)
	p.MinValue = &minValue
	p.MaxValue = &maxValue
	p.MeanValue = &meanValue
	p.MedianValue = &medianValue
	if std := sampleStdDev(series.values); !math.IsNaN(std) {
		p.StdDev = &std
	}
	p.Histogram = histogram(series.values, s.opts.HistogramBins)
}

func (s *profilerService) ProfileTable(dataset *models.Dataset, tableID uuid.UUID) *models.TableProfile {
	tp := &models.TableProfile{
		TableID:          tableID,
		TableName:        dataset.Name,
		ProfileTimestamp: time.Now().UTC(),
		RowCount:         dataset.RowCount(),
		ColumnCount:      len(dataset.Columns),
		ColumnProfiles:   make([]*models.ColumnProfile, 0, len(dataset.Columns)),
	}

	for _, col := range dataset.Columns {
		tp.ColumnProfiles = append(tp.ColumnProfiles, s.ProfileColumn(col.Values, col.Name, declaredTypeOf(col)))
	}

	s.logger.Info("Profiled table",
		zap.String("table", dataset.Name),
		zap.Int("rows", tp.RowCount),
		zap.Int("columns", tp.ColumnCount))

	return tp
}

// declaredTypeOf returns the column's fixed type, inferring one when unset.
func declaredTypeOf(col models.DatasetColumn) models.DataType {
	if col.DeclaredType.IsValid() {
		return col.DeclaredType
	}
	return InferDeclaredType(col.Values)
}

func (s *profilerService) SaveProfile(ctx context.Context, tableID uuid.UUID, tp *models.TableProfile) ([]*models.Profile, error) {
	columns, err := s.catalogRepo.ListColumns(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns: %w", err)
	}
	byName := make(map[string]*models.Column, len(columns))
	for _, c := range columns {
		byName[c.Name] = c
	}

	ts := tp.ProfileTimestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	var saved []*models.Profile
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		var failures []error
		for _, cp := range tp.ColumnProfiles {
			column, ok := byName[cp.ColumnName]
			if !ok {
				failures = append(failures, fmt.Errorf("column %q: %w", cp.ColumnName, apperrors.ErrNotFound))
				continue
			}

			record := models.NewProfileRecord(tableID, column.ID, ts, cp)
			// Each insert runs in its own savepoint so one failure does not
			// abort the transaction before the others are attempted.
			if err := s.tx.WithTx(ctx, func(ctx context.Context) error {
				return s.profileRepo.Create(ctx, record)
			}); err != nil {
				failures = append(failures, fmt.Errorf("column %q: %w", cp.ColumnName, err))
				continue
			}
			saved = append(saved, record)
		}
		return apperrors.NewPersistenceError("save profile", failures...)
	})
	if err != nil {
		err = asPersistenceError("save profile", err)
		s.logger.Error("Failed to save profile",
			zap.String("table_id", tableID.String()),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Saved column profiles",
		zap.String("table_id", tableID.String()),
		zap.Int("count", len(saved)))
	return saved, nil
}
