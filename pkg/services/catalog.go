package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-quality/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-quality/pkg/database"
	"github.com/ekaya-inc/ekaya-quality/pkg/models"
	"github.com/ekaya-inc/ekaya-quality/pkg/repositories"
)

// CatalogService registers datasets as tables and keeps their columns in
// step with what scans observe.
type CatalogService interface {
	// RegisterTable creates a table with the dataset's columns in order.
	// When the name is already registered the existing table is returned
	// and created is false; its columns are left as they are.
	RegisterTable(ctx context.Context, dataset *models.Dataset, description string) (table *models.Table, created bool, err error)

	GetTable(ctx context.Context, name string) (*models.Table, error)
	ListTables(ctx context.Context) ([]*models.Table, error)
	ListColumns(ctx context.Context, tableID uuid.UUID) ([]*models.Column, error)

	// SyncColumns makes the table's active columns match schema: removed
	// columns are soft-deleted, the rest are upserted at their new positions.
	SyncColumns(ctx context.Context, tableID uuid.UUID, schema []models.ColumnSchema) ([]*models.Column, error)
}

type catalogService struct {
	catalogRepo repositories.CatalogRepository
	tx          database.Transactor
	logger      *zap.Logger
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(catalogRepo repositories.CatalogRepository, tx database.Transactor, logger *zap.Logger) CatalogService {
	return &catalogService{
		catalogRepo: catalogRepo,
		tx:          tx,
		logger:      logger.Named("catalog"),
	}
}

var _ CatalogService = (*catalogService)(nil)

// SchemaOf returns the observed name and declared type of every column. A
// column without a valid declared type gets the one inferred from its values.
func SchemaOf(dataset *models.Dataset) []models.ColumnSchema {
	schema := make([]models.ColumnSchema, len(dataset.Columns))
	for i, col := range dataset.Columns {
		schema[i] = models.ColumnSchema{Name: col.Name, DataType: declaredTypeOf(col)}
	}
	return schema
}

func (s *catalogService) RegisterTable(ctx context.Context, dataset *models.Dataset, description string) (*models.Table, bool, error) {
	if dataset.Name == "" {
		return nil, false, fmt.Errorf("table name is required: %w", apperrors.ErrInvalidInput)
	}
	if err := checkColumnNames(dataset); err != nil {
		return nil, false, err
	}

	existing, err := s.catalogRepo.GetTableByName(ctx, dataset.Name)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get table: %w", err)
	}
	if existing != nil {
		s.logger.Debug("Table already registered",
			zap.String("table", dataset.Name),
			zap.String("table_id", existing.ID.String()))
		return existing, false, nil
	}

	table := &models.Table{
		Name:        dataset.Name,
		SourceType:  dataset.SourceType,
		SourcePath:  dataset.SourcePath,
		Description: description,
	}
	for i, col := range dataset.Columns {
		table.Columns = append(table.Columns, &models.Column{
			Name:     col.Name,
			DataType: declaredTypeOf(col),
			Nullable: true,
			Position: i,
		})
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		return s.catalogRepo.CreateTable(ctx, table)
	})
	if err != nil {
		// Lost a race with a concurrent registration of the same name.
		if errors.Is(err, apperrors.ErrConflict) {
			existing, getErr := s.catalogRepo.GetTableByName(ctx, dataset.Name)
			if getErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, asPersistenceError("register table", err)
	}

	s.logger.Info("Registered table",
		zap.String("table", table.Name),
		zap.String("table_id", table.ID.String()),
		zap.Int("columns", len(table.Columns)))
	return table, true, nil
}

func checkColumnNames(dataset *models.Dataset) error {
	seen := make(map[string]struct{}, len(dataset.Columns))
	for _, col := range dataset.Columns {
		if col.Name == "" {
			return fmt.Errorf("table %q has an unnamed column: %w", dataset.Name, apperrors.ErrInvalidInput)
		}
		if _, dup := seen[col.Name]; dup {
			return fmt.Errorf("table %q has duplicate column %q: %w", dataset.Name, col.Name, apperrors.ErrInvalidInput)
		}
		seen[col.Name] = struct{}{}
	}
	return nil
}

func (s *catalogService) GetTable(ctx context.Context, name string) (*models.Table, error) {
	table, err := s.catalogRepo.GetTableByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get table: %w", err)
	}
	if table == nil {
		return nil, fmt.Errorf("table %q: %w", name, apperrors.ErrNotFound)
	}
	return table, nil
}

func (s *catalogService) ListTables(ctx context.Context) ([]*models.Table, error) {
	tables, err := s.catalogRepo.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return tables, nil
}

func (s *catalogService) ListColumns(ctx context.Context, tableID uuid.UUID) ([]*models.Column, error) {
	columns, err := s.catalogRepo.ListColumns(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns: %w", err)
	}
	return columns, nil
}

func (s *catalogService) SyncColumns(ctx context.Context, tableID uuid.UUID, schema []models.ColumnSchema) ([]*models.Column, error) {
	var synced []*models.Column
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.catalogRepo.ListColumns(ctx, tableID)
		if err != nil {
			return fmt.Errorf("failed to list columns: %w", err)
		}

		keep := make(map[string]struct{}, len(schema))
		for _, c := range schema {
			keep[c.Name] = struct{}{}
		}
		var removed []string
		for _, c := range existing {
			if _, ok := keep[c.Name]; !ok {
				removed = append(removed, c.Name)
			}
		}
		if _, err := s.catalogRepo.SoftDeleteColumns(ctx, tableID, removed); err != nil {
			return err
		}

		synced = make([]*models.Column, 0, len(schema))
		for i, c := range schema {
			col := &models.Column{
				TableID:  tableID,
				Name:     c.Name,
				DataType: c.DataType,
				Nullable: true,
				Position: i,
			}
			if err := s.catalogRepo.UpsertColumn(ctx, col); err != nil {
				return err
			}
			synced = append(synced, col)
		}
		return s.catalogRepo.TouchTable(ctx, tableID)
	})
	if err != nil {
		return nil, asPersistenceError("sync columns", err)
	}

	s.logger.Info("Synchronized columns",
		zap.String("table_id", tableID.String()),
		zap.Int("columns", len(synced)))
	return synced, nil
}
