package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-quality/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-quality/pkg/llm"
	"github.com/ekaya-inc/ekaya-quality/pkg/metrics"
	"github.com/ekaya-inc/ekaya-quality/pkg/models"
	"github.com/ekaya-inc/ekaya-quality/pkg/repositories"
	"github.com/ekaya-inc/ekaya-quality/pkg/retry"
)

// FixSuggestion is remediation for one stored issue.
type FixSuggestion struct {
	IssueID   uuid.UUID        `json:"issue_id"`
	IssueType models.IssueType `json:"issue_type"`
	Table     string           `json:"table"`
	Column    string           `json:"column,omitempty"`
	SQL       string           `json:"sql"`
	Advice    string           `json:"advice,omitempty"`
	Model     string           `json:"model"`
	// AdviceError is set when the model could not be reached; SQL is
	// still returned.
	AdviceError string `json:"advice_error,omitempty"`
}

// FixSuggestionService turns a stored issue into reviewable remediation.
type FixSuggestionService interface {
	Suggest(ctx context.Context, issueID uuid.UUID) (*FixSuggestion, error)
}

type fixSuggestionService struct {
	catalogRepo repositories.CatalogRepository
	issueRepo   repositories.IssueRepository
	generator   llm.Generator
	retryConfig *retry.Config
	metrics     *metrics.Recorder
	logger      *zap.Logger
}

// NewFixSuggestionService creates a new fix suggester. recorder may be nil.
func NewFixSuggestionService(
	catalogRepo repositories.CatalogRepository,
	issueRepo repositories.IssueRepository,
	generator llm.Generator,
	recorder *metrics.Recorder,
	logger *zap.Logger,
) FixSuggestionService {
	return &fixSuggestionService{
		catalogRepo: catalogRepo,
		issueRepo:   issueRepo,
		generator:   generator,
		retryConfig: retry.LLMConfig(),
		metrics:     recorder,
		logger:      logger.Named("fix-suggestion"),
	}
}

var _ FixSuggestionService = (*fixSuggestionService)(nil)

func (s *fixSuggestionService) Suggest(ctx context.Context, issueID uuid.UUID) (*FixSuggestion, error) {
	issue, err := s.issueRepo.GetByID(ctx, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}
	if issue == nil {
		return nil, fmt.Errorf("issue %s: %w", issueID, apperrors.ErrNotFound)
	}

	tableName := ""
	table, err := s.catalogRepo.GetTableByID(ctx, issue.TableID)
	if err != nil {
		return nil, fmt.Errorf("failed to get table: %w", err)
	}
	if table != nil {
		tableName = table.Name
	}

	suggestion := &FixSuggestion{
		IssueID:   issue.ID,
		IssueType: issue.IssueType,
		Table:     tableName,
		Column:    issue.ColumnName,
		SQL:       RemediationPlaybook(issue.IssueType, tableName, issue.ColumnName),
		Model:     s.generator.GetModel(),
	}

	prompt := buildFixPrompt(issue, tableName)
	advice, err := retry.DoWithResultIfRetryable(ctx, s.retryConfig, func() (string, error) {
		return s.generator.Generate(ctx, prompt)
	})
	s.metrics.ObserveFixSuggestion(suggestion.Model, err)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("Fix advice unavailable, returning SQL only",
			zap.String("issue_id", issueID.String()),
			zap.String("model", suggestion.Model),
			zap.Error(err))
		suggestion.AdviceError = err.Error()
		return suggestion, nil
	}
	suggestion.Advice = advice

	s.logger.Info("Generated fix suggestion",
		zap.String("issue_id", issueID.String()),
		zap.String("issue_type", string(issue.IssueType)),
		zap.String("model", suggestion.Model))
	return suggestion, nil
}

// buildFixPrompt describes the issue using only its stored fields. Example
// values are left out so row data never leaves the process.
func buildFixPrompt(issue *models.Issue, table string) string {
	var b strings.Builder
	b.WriteString("A data quality issue was detected.\n\n")
	if table != "" {
		fmt.Fprintf(&b, "Table: %s\n", table)
	}
	if issue.ColumnName != "" {
		fmt.Fprintf(&b, "Column: %s\n", issue.ColumnName)
	}
	fmt.Fprintf(&b, "Issue type: %s\n", issue.IssueType)
	fmt.Fprintf(&b, "Severity: %s\n", issue.Severity)
	fmt.Fprintf(&b, "Description: %s\n", issue.Description)
	if issue.AffectedRowCount > 0 {
		fmt.Fprintf(&b, "Affected rows: %d (%.1f%%)\n", issue.AffectedRowCount, issue.Percentage)
	}
	if issue.SuggestedFix != "" {
		fmt.Fprintf(&b, "Suggested fix: %s\n", issue.SuggestedFix)
	}
	b.WriteString("\nExplain the likely cause and how to remediate it safely.")
	return b.String()
}
