// Package cli implements the ekaya-quality command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-quality/pkg/config"

	// Readers register themselves with the datasource registry.
	_ "github.com/ekaya-inc/ekaya-quality/pkg/adapters/datasource/csvfile"
	_ "github.com/ekaya-inc/ekaya-quality/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/ekaya-quality/pkg/adapters/datasource/postgres"
	_ "github.com/ekaya-inc/ekaya-quality/pkg/adapters/datasource/xlsxfile"
)

// Execute runs the CLI and returns the process exit code.
func Execute(version string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd(version)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(version string) *cobra.Command {
	opts := &globalOptions{version: version}

	rootCmd := &cobra.Command{
		Use:   "ekaya-quality",
		Short: "Data quality engine",
		Long: "Profiles datasets, detects schema and data drift, reports quality issues " +
			"and tracks column-level lineage in a PostgreSQL catalog.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOutputFormat(opts.output)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile on exit")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "json", "Output format (json, table)")

	rootCmd.AddCommand(
		newMigrateCmd(opts),
		newScanCmd(opts),
		newBatchCmd(opts),
		newProfileCmd(opts),
		newAnalyzeCmd(opts),
		newTablesCmd(opts),
		newIssuesCmd(opts),
		newLineageCmd(opts),
		newSourcesCmd(),
		newVersionCmd(version),
	)

	return rootCmd
}
