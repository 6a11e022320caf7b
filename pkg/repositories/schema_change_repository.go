package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-quality/pkg/database"
	"github.com/ekaya-inc/ekaya-quality/pkg/models"
)

// SchemaChangeRepository provides data access for detected schema changes.
type SchemaChangeRepository interface {
	Create(ctx context.Context, change *models.SchemaChange) error
	ListByTable(ctx context.Context, tableID uuid.UUID) ([]*models.SchemaChange, error)
}

type schemaChangeRepository struct{}

// NewSchemaChangeRepository creates a new SchemaChangeRepository.
func NewSchemaChangeRepository() SchemaChangeRepository {
	return &schemaChangeRepository{}
}

var _ SchemaChangeRepository = (*schemaChangeRepository)(nil)

func (r *schemaChangeRepository) Create(ctx context.Context, change *models.SchemaChange) error {
	conn, err := database.MustScope(ctx)
	if err != nil {
		return err
	}

	if change.DetectedAt.IsZero() {
		change.DetectedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO dq_schema_changes (table_id, change_type, change_details, detected_at, detected_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err = conn.QueryRow(ctx, query,
		change.TableID,
		change.ChangeType,
		change.ChangeDetails,
		change.DetectedAt,
		change.DetectedBy,
	).Scan(&change.ID)
	if err != nil {
		return fmt.Errorf("failed to create schema change: %w", err)
	}

	return nil
}

func (r *schemaChangeRepository) ListByTable(ctx context.Context, tableID uuid.UUID) ([]*models.SchemaChange, error) {
	conn, err := database.MustScope(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, table_id, change_type, change_details, detected_at, detected_by
		FROM dq_schema_changes
		WHERE table_id = $1
		ORDER BY detected_at DESC`

	rows, err := conn.Query(ctx, query, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to query schema changes: %w", err)
	}
	defer rows.Close()

	var changes []*models.SchemaChange
	for rows.Next() {
		c, err := scanSchemaChange(rows)
		if err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schema changes: %w", err)
	}

	return changes, nil
}

func scanSchemaChange(row pgx.Row) (*models.SchemaChange, error) {
	var c models.SchemaChange
	var details []byte

	if err := row.Scan(&c.ID, &c.TableID, &c.ChangeType, &details, &c.DetectedAt, &c.DetectedBy); err != nil {
		return nil, fmt.Errorf("failed to scan schema change: %w", err)
	}
	if err := jsonUnmarshal(details, &c.ChangeDetails); err != nil {
		return nil, fmt.Errorf("failed to unmarshal change_details: %w", err)
	}
	return &c, nil
}
