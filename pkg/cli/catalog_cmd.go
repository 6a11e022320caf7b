package cli

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-quality/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-quality/pkg/database"
	"github.com/ekaya-inc/ekaya-quality/pkg/models"
)

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending catalog database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOffline(cmd, opts, func(_ context.Context, a *app) error {
				db, err := sql.Open("pgx", a.cfg.Database.URL())
				if err != nil {
					return fmt.Errorf("failed to open database: %w", err)
				}
				defer db.Close()
				result, err := database.RunMigrations(db, a.logger)
				if err != nil {
					return err
				}
				if result.Applied {
					fmt.Fprintf(cmd.OutOrStdout(), "catalog schema migrated to version %d\n", result.Version)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "catalog schema is up to date (version %d)\n", result.Version)
				}
				return nil
			})
		},
	}
}

func newTablesCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Inspect registered tables",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List registered tables",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runWithCatalog(cmd, opts, func(ctx context.Context, a *app) error {
					tables, err := a.catalogService().ListTables(ctx)
					if err != nil {
						return err
					}
					if opts.output == outputTable {
						rows := make([][]string, 0, len(tables))
						for _, t := range tables {
							rows = append(rows, []string{t.Name, orDash(t.SourceType), orDash(t.SourcePath), formatTime(&t.UpdatedAt)})
						}
						return printTable(cmd.OutOrStdout(), []string{"name", "source", "path", "updated"}, rows)
					}
					return printJSON(cmd.OutOrStdout(), tables)
				})
			},
		},
		&cobra.Command{
			Use:   "show <table>",
			Short: "Show a table and its active columns",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runWithCatalog(cmd, opts, func(ctx context.Context, a *app) error {
					catalog := a.catalogService()
					table, err := catalog.GetTable(ctx, args[0])
					if err != nil {
						return err
					}
					if table.Columns, err = catalog.ListColumns(ctx, table.ID); err != nil {
						return err
					}
					if opts.output == outputTable {
						return printColumns(cmd, table.Columns)
					}
					return printJSON(cmd.OutOrStdout(), table)
				})
			},
		},
	)
	return cmd
}

func printColumns(cmd *cobra.Command, columns []*models.Column) error {
	rows := make([][]string, 0, len(columns))
	for _, c := range columns {
		rows = append(rows, []string{strconv.Itoa(c.Position), c.Name, string(c.DataType), strconv.FormatBool(c.Nullable)})
	}
	return printTable(cmd.OutOrStdout(), []string{"pos", "name", "type", "nullable"}, rows)
}

func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the dataset readers compiled into this binary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows := [][]string{}
			for _, info := range datasource.RegisteredReaders() {
				rows = append(rows, []string{info.Type, info.DisplayName, info.Description})
			}
			return printTable(cmd.OutOrStdout(), []string{"type", "name", "description"}, rows)
		},
	}
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "ekaya-quality version %s\n", version)
			return err
		},
	}
}
