package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-quality/pkg/models"
	"github.com/ekaya-inc/ekaya-quality/pkg/services"
)

func newScanCmd(opts *globalOptions) *cobra.Command {
	src := &sourceFlags{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Register, profile, drift-check and analyze a dataset",
		Long: "Reads a dataset, registers it in the catalog, stores a profile snapshot, " +
			"records schema and data drift against earlier scans and saves quality issues.",
		Example: "  ekaya-quality scan --csv orders.csv\n" +
			"  ekaya-quality scan --postgres-dsn postgres://reader@db/sales --table public.orders",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithCatalog(cmd, opts, func(ctx context.Context, a *app) error {
				ds, err := readDataset(ctx, src, a.logger)
				if err != nil {
					return err
				}
				result, err := a.scanService().Scan(ctx, ds)
				if err != nil {
					return err
				}
				if opts.output == outputTable {
					return printIssues(cmd.OutOrStdout(), result.Issues)
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	src.register(cmd)
	return cmd
}

func newProfileCmd(opts *globalOptions) *cobra.Command {
	src := &sourceFlags{}
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Profile a dataset without touching the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOffline(cmd, opts, func(ctx context.Context, a *app) error {
				ds, err := readDataset(ctx, src, a.logger)
				if err != nil {
					return err
				}
				profiler := services.NewProfilerService(nil, nil, nil, a.profilerOptions(), a.logger)
				profile := profiler.ProfileTable(ds, uuid.Nil)
				if opts.output == outputTable {
					return printProfile(cmd, profile)
				}
				return printJSON(cmd.OutOrStdout(), profile)
			})
		},
	}
	src.register(cmd)
	return cmd
}

func newAnalyzeCmd(opts *globalOptions) *cobra.Command {
	src := &sourceFlags{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Report quality issues in a dataset without saving them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOffline(cmd, opts, func(ctx context.Context, a *app) error {
				ds, err := readDataset(ctx, src, a.logger)
				if err != nil {
					return err
				}
				analyzer := services.NewQualityAnalyzerService(nil, nil, nil, false, a.logger)
				issues, err := analyzer.Analyze(ctx, ds, uuid.Nil)
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
	src.register(cmd)
	return cmd
}

func printProfile(cmd *cobra.Command, profile *models.TableProfile) error {
	rows := make([][]string, 0, len(profile.ColumnProfiles))
	for _, c := range profile.ColumnProfiles {
		rows = append(rows, []string{
			c.ColumnName,
			string(c.DataType),
			strconv.Itoa(c.NullCount),
			strconv.Itoa(c.UniqueCount),
			formatFloat(c.MeanValue),
			formatFloat(c.StdDev),
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows\n", profile.TableName, profile.RowCount)
	return printTable(cmd.OutOrStdout(), []string{"column", "type", "nulls", "unique", "mean", "stddev"}, rows)
}

func formatFloat(f *float64) string {
	if f == nil {
		return "-"
	}
	return strconv.FormatFloat(*f, 'g', 6, 64)
}
