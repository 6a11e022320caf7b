package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-quality/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-quality/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-quality/pkg/config"
	"github.com/ekaya-inc/ekaya-quality/pkg/models"
)

// sourceFlags select the dataset a command reads.
type sourceFlags struct {
	table       string
	csvPath     string
	filePath    string
	sheet       string
	delimiter   string
	postgresDSN string
	mssqlDSN    string
	query       string
	limit       int
	types       []string
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.table, "table", "", "Catalog table name (defaults to the file name)")
	flags.StringVar(&f.csvPath, "csv", "", "Read a CSV file with a header row")
	flags.StringVar(&f.filePath, "file", "", "Read a .csv or .xlsx file, chosen by extension")
	flags.StringVar(&f.sheet, "sheet", "", "Worksheet to read from an .xlsx file (defaults to the first)")
	flags.StringVar(&f.delimiter, "delimiter", ",", "CSV field delimiter")
	flags.StringVar(&f.postgresDSN, "postgres-dsn", "", "Read from a PostgreSQL database")
	flags.StringVar(&f.mssqlDSN, "mssql-dsn", "", "Read from a SQL Server database")
	flags.StringVar(&f.query, "query", "", "SELECT to read instead of the whole table (databases only)")
	flags.IntVar(&f.limit, "limit", datasource.DefaultRowLimit, "Maximum number of rows to read")
	flags.StringSliceVar(&f.types, "types", nil, "Declared column types as column=TYPE, overriding inference")

	cmd.MarkFlagsMutuallyExclusive("csv", "file", "postgres-dsn", "mssql-dsn")
	cmd.MarkFlagsOneRequired("csv", "file", "postgres-dsn", "mssql-dsn")
}

// reader returns the registered reader type and its configuration. A --file
// path is dispatched on its extension.
func (f *sourceFlags) reader() (string, map[string]any, error) {
	switch {
	case f.postgresDSN != "":
		return models.SourceTypePostgres, map[string]any{"dsn": config.ResolveDSNForDocker(f.postgresDSN)}, nil
	case f.mssqlDSN != "":
		return models.SourceTypeMSSQL, map[string]any{"dsn": config.ResolveDSNForDocker(f.mssqlDSN)}, nil
	case f.filePath != "":
		sourceType, err := datasource.FileSourceType(f.filePath)
		if err != nil {
			return "", nil, err
		}
		if sourceType == models.SourceTypeXLSX {
			return sourceType, map[string]any{"path": f.filePath, "sheet": f.sheet}, nil
		}
		return sourceType, map[string]any{"path": f.filePath, "delimiter": f.delimiter}, nil
	default:
		return models.SourceTypeCSV, map[string]any{"path": f.csvPath, "delimiter": f.delimiter}, nil
	}
}

func (f *sourceFlags) request() (datasource.ReadRequest, error) {
	declared, err := datasource.ParseDeclaredTypes(f.types)
	if err != nil {
		return datasource.ReadRequest{}, err
	}
	if f.limit < 1 {
		return datasource.ReadRequest{}, fmt.Errorf("%w: --limit must be at least 1", apperrors.ErrInvalidInput)
	}
	return datasource.ReadRequest{
		Table:         f.table,
		Query:         f.query,
		Limit:         f.limit,
		DeclaredTypes: declared,
	}, nil
}

// readDataset opens the selected source and materializes the dataset.
func readDataset(ctx context.Context, f *sourceFlags, logger *zap.Logger) (*models.Dataset, error) {
	req, err := f.request()
	if err != nil {
		return nil, err
	}
	sourceType, readerCfg, err := f.reader()
	if err != nil {
		return nil, err
	}

	reader, err := datasource.NewReaderFactory(logger).NewReader(ctx, sourceType, readerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s source: %w", sourceType, err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			logger.Warn("Failed to close reader", zap.String("source_type", sourceType), zap.Error(err))
		}
	}()

	ds, err := reader.Read(ctx, req)
	if err != nil {
		return nil, err
	}
	logger.Info("Read dataset",
		zap.String("table", ds.Name),
		zap.String("source_type", sourceType),
		zap.Int("columns", len(ds.Columns)),
		zap.Int("rows", ds.RowCount()))
	return ds, nil
}
