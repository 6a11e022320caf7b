package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-quality/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-quality/pkg/models"
	"github.com/ekaya-inc/ekaya-quality/pkg/services"
)

func newLineageCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lineage",
		Short: "Record and traverse column-level lineage",
		Long:  "Columns are addressed as table.column labels of registered tables.",
	}
	cmd.AddCommand(
		newLineageAddCmd(opts),
		newLineageImportCmd(opts),
		newLineageTraverseCmd(opts, models.LineageUpstream),
		newLineageTraverseCmd(opts, models.LineageDownstream),
		newLineageGraphCmd(opts),
		newLineageRunCmd(opts),
	)
	return cmd
}

func newLineageAddCmd(opts *globalOptions) *cobra.Command {
	var source, target, lineageType, transform string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record that a target column is produced from a source column",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithCatalog(cmd, opts, func(ctx context.Context, a *app) error {
				svc := a.lineageService()
				src, err := svc.ResolveColumn(ctx, source)
				if err != nil {
					return err
				}
				dst, err := svc.ResolveColumn(ctx, target)
				if err != nil {
					return err
				}
				edge, err := svc.AddEdge(ctx, src.ID, dst.ID, models.LineageType(lineageType), transform)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), edge)
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "Source column as table.column")
	cmd.Flags().StringVar(&target, "target", "", "Target column as table.column")
	cmd.Flags().StringVar(&lineageType, "type", string(models.LineageTypeDirect), "Lineage type (direct, derived, aggregated)")
	cmd.Flags().StringVar(&transform, "transform", "", "Transformation logic, e.g. the SQL expression")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func newLineageImportCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Add the edges listed in a lineage YAML file (- reads stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open lineage file: %w", err)
				}
				defer f.Close()
				in = f
			}
			return runWithCatalog(cmd, opts, func(ctx context.Context, a *app) error {
				var result *services.ImportResult
				err := a.db.WithTx(ctx, func(ctx context.Context) error {
					var err error
					result, err = a.lineageService().ImportEdges(ctx, in)
					return err
				})
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
				if len(result.Failed) > 0 {
					return fmt.Errorf("%d of %d edges failed to import",
						len(result.Failed), len(result.Failed)+len(result.Added)+len(result.Existing))
				}
				return nil
			})
		},
	}
}

func newLineageTraverseCmd(opts *globalOptions, direction string) *cobra.Command {
	var depth int
	short := "List the columns a column depends on"
	if direction == models.LineageDownstream {
		short = "List the columns that depend on a column"
	}
	cmd := &cobra.Command{
		Use:   direction + " <table.column>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithCatalog(cmd, opts, func(ctx context.Context, a *app) error {
				svc := a.lineageService()
				col, err := svc.ResolveColumn(ctx, args[0])
				if err != nil {
					return err
				}
				if !cmd.Flags().Changed("depth") {
					depth = a.cfg.Analysis.LineageMaxDepth
				}
				var result *models.LineageResult
				if direction == models.LineageUpstream {
					result, err = svc.GetUpstream(ctx, col.ID, depth)
				} else {
					result, err = svc.GetDownstream(ctx, col.ID, depth)
				}
				if err != nil {
					return err
				}
				if opts.output == outputTable {
					return printLineageNodes(cmd.OutOrStdout(), result.Columns)
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "Maximum hops to follow (default: analysis.lineage_max_depth)")
	return cmd
}

func newLineageGraphCmd(opts *globalOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Export the full lineage graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "json" && format != "dot" {
				return fmt.Errorf("%w: unsupported graph format %q: use 'json' or 'dot'", apperrors.ErrInvalidInput, format)
			}
			return runWithCatalog(cmd, opts, func(ctx context.Context, a *app) error {
				graph, err := a.lineageService().GetGraph(ctx)
				if err != nil {
					return err
				}
				if format == "dot" {
					return services.RenderDOT(cmd.OutOrStdout(), graph)
				}
				return printJSON(cmd.OutOrStdout(), graph)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "Graph format (json, dot)")
	return cmd
}

func newLineageRunCmd(opts *globalOptions) *cobra.Command {
	var (
		sourceTable, targetTable, status string
		sourceRows, targetRows           int64
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Record one pipeline execution between two tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithCatalog(cmd, opts, func(ctx context.Context, a *app) error {
				catalog := a.catalogService()
				src, err := catalog.GetTable(ctx, sourceTable)
				if err != nil {
					return err
				}
				dst, err := catalog.GetTable(ctx, targetTable)
				if err != nil {
					return err
				}
				run, err := a.lineageService().RecordRun(ctx, &models.LineageRun{
					SourceTableID:  src.ID,
					TargetTableID:  dst.ID,
					RowCountSource: sourceRows,
					RowCountTarget: targetRows,
					Status:         status,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), run)
			})
		},
	}
	cmd.Flags().StringVar(&sourceTable, "source-table", "", "Source table name")
	cmd.Flags().StringVar(&targetTable, "target-table", "", "Target table name")
	cmd.Flags().Int64Var(&sourceRows, "source-rows", 0, "Rows read from the source")
	cmd.Flags().Int64Var(&targetRows, "target-rows", 0, "Rows written to the target")
	cmd.Flags().StringVar(&status, "status", models.LineageRunSuccess, "Run status (success, failed, partial)")
	_ = cmd.MarkFlagRequired("source-table")
	_ = cmd.MarkFlagRequired("target-table")
	return cmd
}

func printLineageNodes(w io.Writer, nodes []models.LineageNode) error {
	rows := make([][]string, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, []string{n.Label, string(n.LineageType), strconv.Itoa(n.Depth)})
	}
	return printTable(w, []string{"column", "type", "depth"}, rows)
}
