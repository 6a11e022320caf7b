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

// IssueRepository provides data access for detected data-quality issues.
// Issues are append-only; Resolve is the only mutation.
type IssueRepository interface {
	Create(ctx context.Context, issue *models.Issue) error
	GetByID(ctx context.Context, issueID uuid.UUID) (*models.Issue, error)
	ListByTable(ctx context.Context, tableID uuid.UUID, openOnly bool) ([]*models.Issue, error)
	// FindOpen returns the open issue of the given type on (table, column), or
	// nil. Issues are matched by column ID; columnName is only compared when
	// columnID is nil.
	FindOpen(ctx context.Context, tableID uuid.UUID, columnID *uuid.UUID, columnName string, issueType models.IssueType) (*models.Issue, error)
	Resolve(ctx context.Context, issueID uuid.UUID, resolvedAt time.Time) (*models.Issue, error)
}

type issueRepository struct{}

// NewIssueRepository creates a new IssueRepository.
func NewIssueRepository() IssueRepository {
	return &issueRepository{}
}

var _ IssueRepository = (*issueRepository)(nil)

const issueColumns = `
	id, table_id, column_id, column_name, issue_type, severity, description,
	suggested_fix, affected_row_count, percentage, examples, detected_at, resolved_at`

func (r *issueRepository) Create(ctx context.Context, issue *models.Issue) error {
	conn, err := database.MustScope(ctx)
	if err != nil {
		return err
	}

	if issue.DetectedAt.IsZero() {
		issue.DetectedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO dq_issues (
			table_id, column_id, column_name, issue_type, severity, description,
			suggested_fix, affected_row_count, percentage, examples, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	err = conn.QueryRow(ctx, query,
		issue.TableID,
		issue.ColumnID,
		nullString(issue.ColumnName),
		string(issue.IssueType),
		string(issue.Severity),
		issue.Description,
		nullString(issue.SuggestedFix),
		issue.AffectedRowCount,
		issue.Percentage,
		jsonbValue(issue.Examples),
		issue.DetectedAt,
	).Scan(&issue.ID)
	if err != nil {
		return fmt.Errorf("failed to create issue: %w", err)
	}

	return nil
}

func (r *issueRepository) GetByID(ctx context.Context, issueID uuid.UUID) (*models.Issue, error) {
	conn, err := database.MustScope(ctx)
	if err != nil {
		return nil, err
	}

	row := conn.QueryRow(ctx, `SELECT `+issueColumns+` FROM dq_issues WHERE id = $1`, issueID)
	issue, err := scanIssue(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return issue, nil
}

func (r *issueRepository) ListByTable(ctx context.Context, tableID uuid.UUID, openOnly bool) ([]*models.Issue, error) {
	conn, err := database.MustScope(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + issueColumns + `
		FROM dq_issues
		WHERE table_id = $1 AND (NOT $2 OR resolved_at IS NULL)
		ORDER BY detected_at DESC, column_name, issue_type`

	rows, err := conn.Query(ctx, query, tableID, openOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to query issues: %w", err)
	}
	defer rows.Close()

	var issues []*models.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating issues: %w", err)
	}

	return issues, nil
}

func (r *issueRepository) FindOpen(ctx context.Context, tableID uuid.UUID, columnID *uuid.UUID, columnName string, issueType models.IssueType) (*models.Issue, error) {
	conn, err := database.MustScope(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + issueColumns + `
		FROM dq_issues
		WHERE table_id = $1
		  AND column_id IS NOT DISTINCT FROM $2::uuid
		  AND ($2::uuid IS NOT NULL OR column_name IS NOT DISTINCT FROM $3)
		  AND issue_type = $4
		  AND resolved_at IS NULL
		ORDER BY detected_at DESC
		LIMIT 1`

	issue, err := scanIssue(conn.QueryRow(ctx, query, tableID, columnID, nullString(columnName), string(issueType)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return issue, nil
}

// Resolve sets resolved_at on an open issue. Resolving an already resolved
// issue returns it unchanged.
func (r *issueRepository) Resolve(ctx context.Context, issueID uuid.UUID, resolvedAt time.Time) (*models.Issue, error) {
	conn, err := database.MustScope(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE dq_issues
		SET resolved_at = COALESCE(resolved_at, $2)
		WHERE id = $1
		RETURNING ` + issueColumns

	issue, err := scanIssue(conn.QueryRow(ctx, query, issueID, resolvedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return issue, nil
}

func scanIssue(row pgx.Row) (*models.Issue, error) {
	var i models.Issue
	var columnName, suggestedFix *string
	var issueType, severity string
	var examples []byte

	err := row.Scan(
		&i.ID,
		&i.TableID,
		&i.ColumnID,
		&columnName,
		&issueType,
		&severity,
		&i.Description,
		&suggestedFix,
		&i.AffectedRowCount,
		&i.Percentage,
		&examples,
		&i.DetectedAt,
		&i.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan issue: %w", err)
	}

	i.ColumnName = derefString(columnName)
	i.SuggestedFix = derefString(suggestedFix)
	i.IssueType = models.IssueType(issueType)
	i.Severity = models.Severity(severity)
	if err := jsonUnmarshal(examples, &i.Examples); err != nil {
		return nil, fmt.Errorf("failed to unmarshal examples: %w", err)
	}

	return &i, nil
}
