package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-quality/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-quality/pkg/database"
	"github.com/ekaya-inc/ekaya-quality/pkg/models"
)

// CatalogRepository provides data access for registered tables and their columns.
type CatalogRepository interface {
	CreateTable(ctx context.Context, table *models.Table) error
	GetTableByID(ctx context.Context, tableID uuid.UUID) (*models.Table, error)
	GetTableByName(ctx context.Context, name string) (*models.Table, error)
	ListTables(ctx context.Context) ([]*models.Table, error)
	TouchTable(ctx context.Context, tableID uuid.UUID) error

	ListColumns(ctx context.Context, tableID uuid.UUID) ([]*models.Column, error)
	GetColumnByID(ctx context.Context, columnID uuid.UUID) (*models.Column, error)
	GetColumnByName(ctx context.Context, tableName, columnName string) (*models.Column, error)
	UpsertColumn(ctx context.Context, column *models.Column) error
	SoftDeleteColumns(ctx context.Context, tableID uuid.UUID, names []string) (int64, error)
}

type catalogRepository struct{}

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository() CatalogRepository {
	return &catalogRepository{}
}

var _ CatalogRepository = (*catalogRepository)(nil)

// ============================================================================
// Tables
// ============================================================================

func (r *catalogRepository) CreateTable(ctx context.Context, table *models.Table) error {
	conn, err := database.MustScope(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO dq_tables (name, source_type, source_path, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id, created_at, updated_at`

	err = conn.QueryRow(ctx, query,
		table.Name,
		nullString(table.SourceType),
		nullString(table.SourcePath),
		nullString(table.Description),
		now,
	).Scan(&table.ID, &table.CreatedAt, &table.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("table %q: %w", table.Name, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create table: %w", err)
	}

	for _, col := range table.Columns {
		col.TableID = table.ID
		if err := r.UpsertColumn(ctx, col); err != nil {
			return err
		}
	}

	return nil
}

const tableColumns = `id, name, source_type, source_path, description, created_at, updated_at`

func (r *catalogRepository) GetTableByID(ctx context.Context, tableID uuid.UUID) (*models.Table, error) {
	conn, err := database.MustScope(ctx)
	if err != nil {
		return nil, err
	}

	row := conn.QueryRow(ctx, `SELECT `+tableColumns+` FROM dq_tables WHERE id = $1`, tableID)
	table, err := scanTable(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return table, nil
}

func (r *catalogRepository) GetTableByName(ctx context.Context, name string) (*models.Table, error) {
	conn, err := database.MustScope(ctx)
	if err != nil {
		return nil, err
	}

	row := conn.QueryRow(ctx, `SELECT `+tableColumns+` FROM dq_tables WHERE name = $1`, name)
	table, err := scanTable(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return table, nil
}

func (r *catalogRepository) ListTables(ctx context.Context) ([]*models.Table, error) {
	conn, err := database.MustScope(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := conn.Query(ctx, `SELECT `+tableColumns+` FROM dq_tables ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var tables []*models.Table
	for rows.Next() {
		table, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}

	return tables, nil
}

func (r *catalogRepository) TouchTable(ctx context.Context, tableID uuid.UUID) error {
	conn, err := database.MustScope(ctx)
	if err != nil {
		return err
	}

	result, err := conn.Exec(ctx, `UPDATE dq_tables SET updated_at = $2 WHERE id = $1`, tableID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to touch table: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ============================================================================
// Columns
// ============================================================================

const columnColumns = `id, table_id, name, data_type, nullable, position, description, created_at, deleted_at`

func (r *catalogRepository) ListColumns(ctx context.Context, tableID uuid.UUID) ([]*models.Column, error) {
	conn, err := database.MustScope(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + columnColumns + `
		FROM dq_columns
		WHERE table_id = $1 AND deleted_at IS NULL
		ORDER BY position`

	rows, err := conn.Query(ctx, query, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []*models.Column
	for rows.Next() {
		col, err := scanColumn(rows)
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}

	return columns, nil
}

func (r *catalogRepository) GetColumnByID(ctx context.Context, columnID uuid.UUID) (*models.Column, error) {
	conn, err := database.MustScope(ctx)
	if err != nil {
		return nil, err
	}

	row := conn.QueryRow(ctx, `SELECT `+columnColumns+` FROM dq_columns WHERE id = $1`, columnID)
	col, err := scanColumn(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return col, nil
}

func (r *catalogRepository) GetColumnByName(ctx context.Context, tableName, columnName string) (*models.Column, error) {
	conn, err := database.MustScope(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT c.id, c.table_id, c.name, c.data_type, c.nullable, c.position,
		       c.description, c.created_at, c.deleted_at
		FROM dq_columns c
		JOIN dq_tables t ON t.id = c.table_id
		WHERE t.name = $1 AND c.name = $2 AND c.deleted_at IS NULL`

	col, err := scanColumn(conn.QueryRow(ctx, query, tableName, columnName))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return col, nil
}

// UpsertColumn inserts an active column or updates the type and position of
// the active column with the same name.
func (r *catalogRepository) UpsertColumn(ctx context.Context, column *models.Column) error {
	conn, err := database.MustScope(ctx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO dq_columns (table_id, name, data_type, nullable, position, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (table_id, name) WHERE deleted_at IS NULL
		DO UPDATE SET data_type = EXCLUDED.data_type,
		              nullable = EXCLUDED.nullable,
		              position = EXCLUDED.position
		RETURNING id, created_at`

	err = conn.QueryRow(ctx, query,
		column.TableID,
		column.Name,
		string(column.DataType),
		column.Nullable,
		column.Position,
		nullString(column.Description),
		time.Now().UTC(),
	).Scan(&column.ID, &column.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert column %q: %w", column.Name, err)
	}
	return nil
}

func (r *catalogRepository) SoftDeleteColumns(ctx context.Context, tableID uuid.UUID, names []string) (int64, error) {
	if len(names) == 0 {
		return 0, nil
	}
	conn, err := database.MustScope(ctx)
	if err != nil {
		return 0, err
	}

	query := `
		UPDATE dq_columns
		SET deleted_at = $3
		WHERE table_id = $1 AND name = ANY($2) AND deleted_at IS NULL`

	result, err := conn.Exec(ctx, query, tableID, names, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to soft-delete columns: %w", err)
	}
	return result.RowsAffected(), nil
}

// ============================================================================
// Helper Functions
// ============================================================================

func scanTable(row pgx.Row) (*models.Table, error) {
	var t models.Table
	var sourceType, sourcePath, description *string

	err := row.Scan(&t.ID, &t.Name, &sourceType, &sourcePath, &description, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan table: %w", err)
	}

	t.SourceType = derefString(sourceType)
	t.SourcePath = derefString(sourcePath)
	t.Description = derefString(description)
	return &t, nil
}

func scanColumn(row pgx.Row) (*models.Column, error) {
	var c models.Column
	var dataType string
	var description *string

	err := row.Scan(&c.ID, &c.TableID, &c.Name, &dataType, &c.Nullable, &c.Position,
		&description, &c.CreatedAt, &c.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan column: %w", err)
	}

	c.DataType = models.DataType(dataType)
	c.Description = derefString(description)
	return &c, nil
}
