package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-quality/pkg/database"
	"github.com/ekaya-inc/ekaya-quality/pkg/models"
)

// LineageRepository provides data access for column lineage edges and pipeline runs.
type LineageRepository interface {
	// CreateEdge inserts the edge unless one already exists for the same
	// (source, target) pair, in which case edge is filled from the stored row.
	CreateEdge(ctx context.Context, edge *models.LineageEdge) (created bool, err error)
	GetEdge(ctx context.Context, sourceColumnID, targetColumnID uuid.UUID) (*models.LineageEdge, error)
	// ListUpstream returns edges whose target is columnID joined with their source column.
	ListUpstream(ctx context.Context, columnID uuid.UUID) ([]*models.LineageNeighbor, error)
	// ListDownstream returns edges whose source is columnID joined with their target column.
	ListDownstream(ctx context.Context, columnID uuid.UUID) ([]*models.LineageNeighbor, error)
	ListEdges(ctx context.Context) ([]models.LineageGraphEdge, error)

	CreateRun(ctx context.Context, run *models.LineageRun) error
	ListRuns(ctx context.Context, tableID uuid.UUID) ([]*models.LineageRun, error)
}

type lineageRepository struct{}

// NewLineageRepository creates a new LineageRepository.
func NewLineageRepository() LineageRepository {
	return &lineageRepository{}
}

var _ LineageRepository = (*lineageRepository)(nil)

// ============================================================================
// Edges
// ============================================================================

const edgeColumns = `id, source_column_id, target_column_id, lineage_type, transformation_logic, created_at`

func (r *lineageRepository) CreateEdge(ctx context.Context, edge *models.LineageEdge) (bool, error) {
	conn, err := database.MustScope(ctx)
	if err != nil {
		return false, err
	}

	query := `
		INSERT INTO dq_lineage_edges (source_column_id, target_column_id, lineage_type, transformation_logic, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_column_id, target_column_id) DO NOTHING
		RETURNING ` + edgeColumns

	inserted, err := scanEdge(conn.QueryRow(ctx, query,
		edge.SourceColumnID,
		edge.TargetColumnID,
		string(edge.LineageType),
		nullString(edge.TransformationLogic),
		time.Now().UTC(),
	))
	if err == nil {
		*edge = *inserted
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("failed to create lineage edge: %w", err)
	}

	existing, err := r.GetEdge(ctx, edge.SourceColumnID, edge.TargetColumnID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, fmt.Errorf("lineage edge %s -> %s vanished after conflict", edge.SourceColumnID, edge.TargetColumnID)
	}
	*edge = *existing
	return false, nil
}

func (r *lineageRepository) GetEdge(ctx context.Context, sourceColumnID, targetColumnID uuid.UUID) (*models.LineageEdge, error) {
	conn, err := database.MustScope(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + edgeColumns + ` FROM dq_lineage_edges WHERE source_column_id = $1 AND target_column_id = $2`
	edge, err := scanEdge(conn.QueryRow(ctx, query, sourceColumnID, targetColumnID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return edge, nil
}

func (r *lineageRepository) ListUpstream(ctx context.Context, columnID uuid.UUID) ([]*models.LineageNeighbor, error) {
	query := `
		SELECT e.id, e.source_column_id, e.target_column_id, e.lineage_type,
		       e.transformation_logic, e.created_at,
		       c.id, c.name, t.name
		FROM dq_lineage_edges e
		JOIN dq_columns c ON c.id = e.source_column_id
		JOIN dq_tables t ON t.id = c.table_id
		WHERE e.target_column_id = $1
		ORDER BY t.name, c.name`
	return r.listNeighbors(ctx, query, columnID)
}

func (r *lineageRepository) ListDownstream(ctx context.Context, columnID uuid.UUID) ([]*models.LineageNeighbor, error) {
	query := `
		SELECT e.id, e.source_column_id, e.target_column_id, e.lineage_type,
		       e.transformation_logic, e.created_at,
		       c.id, c.name, t.name
		FROM dq_lineage_edges e
		JOIN dq_columns c ON c.id = e.target_column_id
		JOIN dq_tables t ON t.id = c.table_id
		WHERE e.source_column_id = $1
		ORDER BY t.name, c.name`
	return r.listNeighbors(ctx, query, columnID)
}

func (r *lineageRepository) listNeighbors(ctx context.Context, query string, columnID uuid.UUID) ([]*models.LineageNeighbor, error) {
	conn, err := database.MustScope(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := conn.Query(ctx, query, columnID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lineage neighbors: %w", err)
	}
	defer rows.Close()

	var neighbors []*models.LineageNeighbor
	for rows.Next() {
		var n models.LineageNeighbor
		var e models.LineageEdge
		var lineageType string
		var transform *string
		if err := rows.Scan(&e.ID, &e.SourceColumnID, &e.TargetColumnID, &lineageType,
			&transform, &e.CreatedAt, &n.ColumnID, &n.ColumnName, &n.TableName); err != nil {
			return nil, fmt.Errorf("failed to scan lineage neighbor: %w", err)
		}
		e.LineageType = models.LineageType(lineageType)
		e.TransformationLogic = derefString(transform)
		n.Edge = &e
		neighbors = append(neighbors, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lineage neighbors: %w", err)
	}

	return neighbors, nil
}

func (r *lineageRepository) ListEdges(ctx context.Context) ([]models.LineageGraphEdge, error) {
	conn, err := database.MustScope(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT st.name, sc.name, tt.name, tc.name, e.lineage_type
		FROM dq_lineage_edges e
		JOIN dq_columns sc ON sc.id = e.source_column_id
		JOIN dq_tables st ON st.id = sc.table_id
		JOIN dq_columns tc ON tc.id = e.target_column_id
		JOIN dq_tables tt ON tt.id = tc.table_id
		ORDER BY st.name, sc.name, tt.name, tc.name`

	rows, err := conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query lineage edges: %w", err)
	}
	defer rows.Close()

	var edges []models.LineageGraphEdge
	for rows.Next() {
		var sourceTable, sourceColumn, targetTable, targetColumn, lineageType string
		if err := rows.Scan(&sourceTable, &sourceColumn, &targetTable, &targetColumn, &lineageType); err != nil {
			return nil, fmt.Errorf("failed to scan lineage edge: %w", err)
		}
		edges = append(edges, models.LineageGraphEdge{
			Source: models.QualifiedColumnName(sourceTable, sourceColumn),
			Target: models.QualifiedColumnName(targetTable, targetColumn),
			Type:   models.LineageType(lineageType),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lineage edges: %w", err)
	}

	return edges, nil
}

// ============================================================================
// Runs
// ============================================================================

func (r *lineageRepository) CreateRun(ctx context.Context, run *models.LineageRun) error {
	conn, err := database.MustScope(ctx)
	if err != nil {
		return err
	}

	if run.RunTimestamp.IsZero() {
		run.RunTimestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO dq_lineage_runs (source_table_id, target_table_id, run_timestamp,
		                             row_count_source, row_count_target, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err = conn.QueryRow(ctx, query,
		run.SourceTableID,
		run.TargetTableID,
		run.RunTimestamp,
		run.RowCountSource,
		run.RowCountTarget,
		run.Status,
	).Scan(&run.ID)
	if err != nil {
		return fmt.Errorf("failed to create lineage run: %w", err)
	}
	return nil
}

func (r *lineageRepository) ListRuns(ctx context.Context, tableID uuid.UUID) ([]*models.LineageRun, error) {
	conn, err := database.MustScope(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, source_table_id, target_table_id, run_timestamp,
		       row_count_source, row_count_target, status
		FROM dq_lineage_runs
		WHERE source_table_id = $1 OR target_table_id = $1
		ORDER BY run_timestamp DESC`

	rows, err := conn.Query(ctx, query, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lineage runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.LineageRun
	for rows.Next() {
		var run models.LineageRun
		if err := rows.Scan(&run.ID, &run.SourceTableID, &run.TargetTableID, &run.RunTimestamp,
			&run.RowCountSource, &run.RowCountTarget, &run.Status); err != nil {
			return nil, fmt.Errorf("failed to scan lineage run: %w", err)
		}
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lineage runs: %w", err)
	}

	return runs, nil
}

func scanEdge(row pgx.Row) (*models.LineageEdge, error) {
	var e models.LineageEdge
	var lineageType string
	var transform *string

	err := row.Scan(&e.ID, &e.SourceColumnID, &e.TargetColumnID, &lineageType, &transform, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan lineage edge: %w", err)
	}

	e.LineageType = models.LineageType(lineageType)
	e.TransformationLogic = derefString(transform)
	return &e, nil
}
