package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-quality/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-quality/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-quality/pkg/logging"
	"github.com/ekaya-inc/ekaya-quality/pkg/models"
	"github.com/ekaya-inc/ekaya-quality/pkg/sqlguard"
)

// Reader materializes PostgreSQL tables and query results.
type Reader struct {
	config *Config
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewReader connects to PostgreSQL and verifies the server answers.
func NewReader(ctx context.Context, cfg *Config, logger *zap.Logger) (*Reader, error) {
	pool, err := pgxpool.New(ctx, cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %s", logging.SanitizeError(err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping failed: %s", logging.SanitizeError(err))
	}

	return &Reader{
		config: cfg,
		pool:   pool,
		logger: logger.Named("postgres-reader"),
	}, nil
}

// Read runs the table scan or wrapped query and collects every row.
func (r *Reader) Read(ctx context.Context, req datasource.ReadRequest) (*models.Dataset, error) {
	query, source, err := buildSelect(req)
	if err != nil {
		return nil, err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	types := make([]models.DataType, len(fields))
	for i, fd := range fields {
		names[i] = fd.Name
		types[i] = declaredTypeFromOID(fd.DataTypeOID)
	}

	b := datasource.NewDatasetBuilder(req.Table, models.SourceTypePostgres, source, names, types)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}
		for i := range values {
			values[i] = normalizeValue(values[i])
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
	r.logger.Debug("Read postgres dataset",
		zap.String("table", req.Table),
		zap.String("source", source),
		zap.Int("columns", len(ds.Columns)),
		zap.Int("rows", ds.RowCount()))
	return ds, nil
}

// Close releases the pool.
func (r *Reader) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}

var _ datasource.DatasetReader = (*Reader)(nil)

// buildSelect returns the bounded statement to run and the source label
// recorded on the dataset. A query must pass sqlguard and is ALWAYS
// wrapped: SELECT * FROM (query) AS _q LIMIT n.
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
		return fmt.Sprintf("SELECT * FROM (%s) AS _q LIMIT %d", q, limit), logging.SanitizeQuery(q), nil
	}

	ident := pgx.Identifier(strings.Split(req.Table, ".")).Sanitize()
	return fmt.Sprintf("SELECT * FROM %s LIMIT %d", ident, limit), req.Table, nil
}

// declaredTypeFromOID maps result column OIDs to catalog types. Types
// without a mapping are left for inference.
func declaredTypeFromOID(oid uint32) models.DataType {
	switch oid {
	case pgtype.Int2OID, pgtype.Int4OID, pgtype.Int8OID:
		return models.DataTypeInteger
	case pgtype.Float4OID, pgtype.Float8OID, pgtype.NumericOID:
		return models.DataTypeFloat
	case pgtype.BoolOID:
		return models.DataTypeBoolean
	case pgtype.DateOID, pgtype.TimestampOID, pgtype.TimestamptzOID:
		return models.DataTypeTimestamp
	case pgtype.TextOID, pgtype.VarcharOID, pgtype.BPCharOID, pgtype.UUIDOID:
		return models.DataTypeText
	default:
		return ""
	}
}

// normalizeValue converts pgx's decoded values into the plain Go values the
// profiler understands.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case pgtype.Numeric:
		if !x.Valid {
			return nil
		}
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(x).String()
	case pgtype.Time:
		if !x.Valid {
			return nil
		}
		return time.Time{}.Add(time.Duration(x.Microseconds) * time.Microsecond).Format("15:04:05.999999")
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return datasource.NormalizeValue(v)
	}
}
