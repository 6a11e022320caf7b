package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-quality/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-quality/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-quality/pkg/models"
)

// Config contains CSV file options.
type Config struct {
	Path      string
	Delimiter rune
}

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{Delimiter: ','}

	if path, ok := config["path"].(string); ok && path != "" {
		cfg.Path = path
	} else {
		return nil, fmt.Errorf("path is required")
	}

	if d, ok := config["delimiter"].(string); ok && d != "" {
		r := []rune(d)
		if len(r) != 1 {
			return nil, fmt.Errorf("delimiter must be a single character, got %q", d)
		}
		cfg.Delimiter = r[0]
	}

	return cfg, nil
}

// Reader loads a CSV file with a header row.
type Reader struct {
	config *Config
	logger *zap.Logger
}

// NewReader creates a CSV reader. The file is opened on Read.
func NewReader(cfg *Config, logger *zap.Logger) *Reader {
	if cfg.Delimiter == 0 {
		cfg.Delimiter = ','
	}
	return &Reader{config: cfg, logger: logger.Named("csv")}
}

// Read loads the file. Query is not supported; Table names the dataset and
// defaults to the file name without its extension.
func (r *Reader) Read(ctx context.Context, req datasource.ReadRequest) (*models.Dataset, error) {
	if req.Query != "" {
		return nil, fmt.Errorf("%w: csv source does not accept a query", apperrors.ErrInvalidInput)
	}

	f, err := os.Open(r.config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer f.Close()

	name := req.Table
	if name == "" {
		name = datasource.FileDatasetName(r.config.Path)
	}

	ds, err := Parse(ctx, f, name, r.config.Delimiter, req.Limit)
	if err != nil {
		return nil, err
	}
	ds.SourcePath = r.config.Path
	if err := datasource.ApplyDeclaredTypes(ds, req.DeclaredTypes); err != nil {
		return nil, err
	}

	r.logger.Debug("Read csv file",
		zap.String("path", r.config.Path),
		zap.Int("columns", len(ds.Columns)),
		zap.Int("rows", ds.RowCount()))
	return ds, nil
}

// Close implements datasource.DatasetReader.
func (r *Reader) Close() error {
	return nil
}

var _ datasource.DatasetReader = (*Reader)(nil)

// Parse reads CSV with a header row into a dataset. Columns are typed by
// datasource.CoerceTextColumn.
func Parse(ctx context.Context, in io.Reader, name string, delimiter rune, limit int) (*models.Dataset, error) {
	cr := csv.NewReader(in)
	cr.Comma = delimiter
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: csv input is empty", apperrors.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	limit = datasource.EffectiveLimit(limit)
	cells := make([][]string, len(header))
	for rows := 0; rows < limit; rows++ {
		if rows%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row: %w", err)
		}
		for i := range header {
			cells[i] = append(cells[i], record[i])
		}
	}

	ds := &models.Dataset{
		Name:       name,
		SourceType: models.SourceTypeCSV,
		Columns:    make([]models.DatasetColumn, len(header)),
	}
	for i, h := range header {
		ds.Columns[i] = models.DatasetColumn{Name: h, Values: datasource.CoerceTextColumn(cells[i])}
	}
	return ds, nil
}
