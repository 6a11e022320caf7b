package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-quality/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-quality/pkg/models"
)

func newIssuesCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issues",
		Short: "List, resolve and remediate stored quality issues",
	}
	cmd.AddCommand(
		newIssuesListCmd(opts),
		newIssuesResolveCmd(opts),
		newIssuesSuggestCmd(opts),
	)
	return cmd
}

func newIssuesListCmd(opts *globalOptions) *cobra.Command {
	var (
		table string
		all   bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a table's issues, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithCatalog(cmd, opts, func(ctx context.Context, a *app) error {
				t, err := a.catalogService().GetTable(ctx, table)
				if err != nil {
					return err
				}
				issues, err := a.analyzerService().ListIssues(ctx, t.ID, !all)
				if err != nil {
					return err
				}
				if opts.output == outputTable {
					return printIssues(cmd.OutOrStdout(), issues)
				}
				return printJSON(cmd.OutOrStdout(), issues)
			})
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "Catalog table name")
	cmd.Flags().BoolVar(&all, "all", false, "Include resolved issues")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

func newIssuesResolveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <issue-id>",
		Short: "Mark an issue resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIssueID(args[0])
			if err != nil {
				return err
			}
			return runWithCatalog(cmd, opts, func(ctx context.Context, a *app) error {
				issue, err := a.analyzerService().ResolveIssue(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), issue)
			})
		},
	}
}

func newIssuesSuggestCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <issue-id>",
		Short: "Propose remediation SQL and advice for an issue",
		Long: "Renders a remediation SQL template for the issue and, when an LLM provider " +
			"is configured, asks the model for advice. Nothing is executed.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIssueID(args[0])
			if err != nil {
				return err
			}
			return runWithCatalog(cmd, opts, func(ctx context.Context, a *app) error {
				svc, err := a.fixSuggestionService()
				if err != nil {
					return err
				}
				suggestion, err := svc.Suggest(ctx, id)
				if err != nil {
					return err
				}
				if opts.output == outputTable {
					w := cmd.OutOrStdout()
					fmt.Fprintf(w, "-- %s on %s\n%s\n", suggestion.IssueType, suggestion.Table, suggestion.SQL)
					if suggestion.Advice != "" {
						fmt.Fprintf(w, "\n%s\n", suggestion.Advice)
					}
					return nil
				}
				return printJSON(cmd.OutOrStdout(), suggestion)
			})
		},
	}
}

func parseIssueID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid issue id %q", apperrors.ErrInvalidInput, s)
	}
	return id, nil
}

func printIssues(w io.Writer, issues []*models.Issue) error {
	rows := make([][]string, 0, len(issues))
	for _, i := range issues {
		id := "-"
		if i.ID != uuid.Nil {
			id = i.ID.String()
		}
		rows = append(rows, []string{
			id,
			orDash(i.ColumnName),
			string(i.IssueType),
			string(i.Severity),
			strconv.Itoa(i.AffectedRowCount),
			strconv.FormatFloat(i.Percentage, 'f', 1, 64),
			formatTime(i.ResolvedAt),
		})
	}
	return printTable(w, []string{"id", "column", "type", "severity", "count", "pct", "resolved"}, rows)
}
