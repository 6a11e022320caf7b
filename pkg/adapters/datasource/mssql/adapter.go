package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/microsoft/go-mssqldb/azuread" // Azure AD support
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-quality/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-quality/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-quality/pkg/logging"
	"github.com/ekaya-inc/ekaya-quality/pkg/models"
	"github.com/ekaya-inc/ekaya-quality/pkg/sqlguard"
)

// Reader materializes SQL Server tables and query results.
// Supports SQL Authentication and Azure AD Service Principal.
type Reader struct {
	config *Config
	db     *sql.DB
	logger *zap.Logger
}

// NewReader opens a connection and tests it immediately.
func NewReader(ctx context.Context, cfg *Config, logger *zap.Logger) (*Reader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	driver, connStr := connectionString(cfg)
	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("create connection: %s", logging.SanitizeError(err))
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connection test failed: %s", logging.SanitizeError(err))
	}

	return &Reader{
		config: cfg,
		db:     db,
		logger: logger.Named("mssql-reader"),
	}, nil
}

// connectionString returns the driver name and DSN for the configured auth
// method. Service principals go through the azuresql driver with fedauth.
func connectionString(cfg *Config) (string, string) {
	if cfg.DSN != "" {
		return "sqlserver", cfg.DSN
	}

	query := url.Values{}
	query.Add("database", cfg.Database)
	if cfg.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}
	if cfg.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if cfg.ConnectionTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", cfg.ConnectionTimeout))
	}

	if cfg.AuthMethod == AuthServicePrincipal {
		query.Add("fedauth", "ActiveDirectoryServicePrincipal")
		query.Add("user id", cfg.ClientID)
		query.Add("password", cfg.ClientSecret)
		query.Add("tenant id", cfg.TenantID)
		return "azuresql", fmt.Sprintf("sqlserver://%s:%d?%s", cfg.Host, cfg.Port, query.Encode())
	}

	return "sqlserver", fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(cfg.Username),
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		query.Encode(),
	)
}

// Read runs the table scan or wrapped query and collects every row.
func (r *Reader) Read(ctx context.Context, req datasource.ReadRequest) (*models.Dataset, error) {
	query, source, err := buildSelect(req)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	names := make([]string, len(columnTypes))
	dbTypes := make([]string, len(columnTypes))
	types := make([]models.DataType, len(columnTypes))
	for i, ct := range columnTypes {
		names[i] = ct.Name()
		dbTypes[i] = ct.DatabaseTypeName()
		types[i] = declaredType(dbTypes[i])
	}

	b := datasource.NewDatasetBuilder(req.Table, models.SourceTypeMSSQL, source, names, types)
	for rows.Next() {
		values := make([]any, len(names))
		valuePtrs := make([]any, len(names))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i := range values {
			values[i] = convertValue(values[i], dbTypes[i])
		}
		if err := b.AppendRow(values); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	ds, err := b.Build(req.DeclaredTypes)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("Read mssql dataset",
		zap.String("table", req.Table),
		zap.String("source", source),
		zap.Int("columns", len(ds.Columns)),
		zap.Int("rows", ds.RowCount()))
	return ds, nil
}

// Close releases the connection.
func (r *Reader) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

var _ datasource.DatasetReader = (*Reader)(nil)

// buildSelect returns the bounded statement to run and the source label
// recorded on the dataset, using SQL Server's TOP clause.
func buildSelect(req datasource.ReadRequest) (string, string, error) {
	if strings.TrimSpace(req.Table) == "" {
		return "", "", fmt.Errorf("%w: table name is required", apperrors.ErrInvalidInput)
	}
	limit := datasource.EffectiveLimit(req.Limit)

	if strings.TrimSpace(req.Query) != "" {
		q, err := sqlguard.ValidateReadQuery(req.Query)
		if err != nil {
			return "", "", fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
		}
		// T-SQL does not allow a CTE inside a derived table.
		if strings.EqualFold(sqlguard.FirstKeyword(q), "WITH") {
			return "", "", fmt.Errorf("%w: queries starting with WITH cannot be limited on SQL Server; select from a view instead",
				apperrors.ErrInvalidInput)
		}
		return fmt.Sprintf("SELECT TOP (%d) * FROM (%s) AS _limited", limit, q), logging.SanitizeQuery(q), nil
	}

	schema, table := parseSchemaTable(req.Table)
	return fmt.Sprintf("SELECT TOP (%d) * FROM %s", limit, buildFullyQualifiedName(schema, table)), schema + "." + table, nil
}
