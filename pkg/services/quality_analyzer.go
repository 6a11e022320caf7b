package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-quality/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-quality/pkg/database"
	"github.com/ekaya-inc/ekaya-quality/pkg/models"
	"github.com/ekaya-inc/ekaya-quality/pkg/repositories"
)

// QualityAnalyzerService detects data-quality issues and manages their lifecycle.
type QualityAnalyzerService interface {
	// Analyze runs the rule battery over every column of the dataset, in
	// column order. Column IDs are resolved by position through the catalog;
	// a uuid.Nil tableID analyzes without touching the store.
	Analyze(ctx context.Context, dataset *models.Dataset, tableID uuid.UUID) ([]*models.Issue, error)

	// SaveIssues appends issues in one transaction. With deduplication on,
	// quality issues that are still open for the same (table, column, type)
	// are skipped instead of inserted again.
	SaveIssues(ctx context.Context, issues []*models.Issue) (*SaveIssuesResult, error)

	// ListIssues returns a table's issues, newest first.
	ListIssues(ctx context.Context, tableID uuid.UUID, openOnly bool) ([]*models.Issue, error)

	// ResolveIssue marks an issue resolved. Resolving twice keeps the first
	// resolution time.
	ResolveIssue(ctx context.Context, issueID uuid.UUID) (*models.Issue, error)
}

// SaveIssuesResult reports which issues were written and which were
// suppressed as duplicates of open ones.
type SaveIssuesResult struct {
	Saved   []*models.Issue `json:"saved"`
	Skipped []*models.Issue `json:"skipped,omitempty"`
}

type qualityAnalyzerService struct {
	catalogRepo repositories.CatalogRepository
	issueRepo   repositories.IssueRepository
	tx          database.Transactor
	deduplicate bool
	logger      *zap.Logger
}

// NewQualityAnalyzerService creates a new quality analyzer.
func NewQualityAnalyzerService(
	catalogRepo repositories.CatalogRepository,
	issueRepo repositories.IssueRepository,
	tx database.Transactor,
	deduplicate bool,
	logger *zap.Logger,
) QualityAnalyzerService {
	return &qualityAnalyzerService{
		catalogRepo: catalogRepo,
		issueRepo:   issueRepo,
		tx:          tx,
		deduplicate: deduplicate,
		logger:      logger.Named("quality"),
	}
}

var _ QualityAnalyzerService = (*qualityAnalyzerService)(nil)

func (s *qualityAnalyzerService) Analyze(ctx context.Context, dataset *models.Dataset, tableID uuid.UUID) ([]*models.Issue, error) {
	columnIDs, err := s.columnIDsByPosition(ctx, tableID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var issues []*models.Issue
	for pos, col := range dataset.Columns {
		found := AnalyzeColumn(dataset.Name, col)
		var columnID *uuid.UUID
		if id, ok := columnIDs[pos]; ok {
			columnID = &id
		} else if tableID != uuid.Nil {
			s.logger.Warn("No catalog column at position, issues carry no column id",
				zap.String("table", dataset.Name),
				zap.String("column", col.Name),
				zap.Int("position", pos))
		}
		for _, issue := range found {
			issue.TableID = tableID
			issue.ColumnID = columnID
			issue.DetectedAt = now
		}
		issues = append(issues, found...)
	}

	s.logger.Info("Analyzed table",
		zap.String("table", dataset.Name),
		zap.Int("columns", len(dataset.Columns)),
		zap.Int("issues", len(issues)))

	return issues, nil
}

func (s *qualityAnalyzerService) columnIDsByPosition(ctx context.Context, tableID uuid.UUID) (map[int]uuid.UUID, error) {
	ids := make(map[int]uuid.UUID)
	if tableID == uuid.Nil {
		return ids, nil
	}
	columns, err := s.catalogRepo.ListColumns(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns: %w", err)
	}
	for _, c := range columns {
		ids[c.Position] = c.ID
	}
	return ids, nil
}

// AnalyzeColumn runs the checks for one column: missing values and
// duplicates, then the checks of its inferred semantic type. Categorical
// columns also get the string checks. A numeric declared type forces the
// numeric checks so unparseable cells surface as invalid_numeric.
func AnalyzeColumn(table string, col models.DatasetColumn) []*models.Issue {
	c := newColumnData(table, col.Name, col.Values)

	var issues []*models.Issue
	if issue := checkMissingValues(c); issue != nil {
		issues = append(issues, issue)
	}
	if issue := checkDuplicates(c); issue != nil {
		issues = append(issues, issue)
	}

	semantic := InferSemanticType(col.Values)
	if col.DeclaredType.IsNumeric() && semantic != models.SemanticUnknown {
		semantic = models.SemanticNumeric
	}

	switch semantic {
	case models.SemanticNumeric:
		issues = append(issues, checkNumeric(c)...)
	case models.SemanticDate:
		if issue := checkMixedDateFormats(c); issue != nil {
			issues = append(issues, issue)
		}
	case models.SemanticCategorical:
		issues = append(issues, checkCategorical(c)...)
		issues = append(issues, checkStrings(c)...)
	default:
		issues = append(issues, checkStrings(c)...)
	}

	return issues
}

func (s *qualityAnalyzerService) SaveIssues(ctx context.Context, issues []*models.Issue) (*SaveIssuesResult, error) {
	result := &SaveIssuesResult{}
	if len(issues) == 0 {
		return result, nil
	}

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var failures []error
		for _, issue := range issues {
			if !issue.Severity.IsValid() {
				failures = append(failures, fmt.Errorf("%s on %q: severity %q: %w",
					issue.IssueType, issue.ColumnName, issue.Severity, apperrors.ErrInvalidInput))
				continue
			}

			if s.deduplicate && issue.IssueType != models.IssueTypeDataDrift {
				existing, err := s.issueRepo.FindOpen(ctx, issue.TableID, issue.ColumnID, issue.ColumnName, issue.IssueType)
				if err != nil {
					failures = append(failures, fmt.Errorf("%s on %q: %w", issue.IssueType, issue.ColumnName, err))
					continue
				}
				if existing != nil {
					result.Skipped = append(result.Skipped, existing)
					continue
				}
			}

			if err := s.tx.WithTx(ctx, func(ctx context.Context) error {
				return s.issueRepo.Create(ctx, issue)
			}); err != nil {
				failures = append(failures, fmt.Errorf("%s on %q: %w", issue.IssueType, issue.ColumnName, err))
				continue
			}
			result.Saved = append(result.Saved, issue)
		}
		return apperrors.NewPersistenceError("save issues", failures...)
	})
	if err != nil {
		err = asPersistenceError("save issues", err)
		s.logger.Error("Failed to save issues", zap.Error(err))
		return nil, err
	}

	s.logger.Info("Saved quality issues",
		zap.Int("saved", len(result.Saved)),
		zap.Int("skipped_open_duplicates", len(result.Skipped)))
	return result, nil
}

func (s *qualityAnalyzerService) ListIssues(ctx context.Context, tableID uuid.UUID, openOnly bool) ([]*models.Issue, error) {
	issues, err := s.issueRepo.ListByTable(ctx, tableID, openOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	return issues, nil
}

func (s *qualityAnalyzerService) ResolveIssue(ctx context.Context, issueID uuid.UUID) (*models.Issue, error) {
	issue, err := s.issueRepo.Resolve(ctx, issueID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve issue %s: %w", issueID, err)
	}
	s.logger.Info("Resolved issue",
		zap.String("issue_id", issueID.String()),
		zap.String("issue_type", string(issue.IssueType)))
	return issue, nil
}
