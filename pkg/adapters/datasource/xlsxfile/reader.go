// Package xlsxfile reads one worksheet of an Excel workbook.
package xlsxfile

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-quality/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-quality/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-quality/pkg/models"
)

// Config contains workbook options. An empty Sheet selects the first sheet.
type Config struct {
	Path  string
	Sheet string
}

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	path, _ := config["path"].(string)
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	sheet, _ := config["sheet"].(string)
	return &Config{Path: path, Sheet: sheet}, nil
}

// Reader loads a worksheet whose first row is the header.
type Reader struct {
	config *Config
	logger *zap.Logger
}

// NewReader creates an xlsx reader. The workbook is opened on Read.
func NewReader(cfg *Config, logger *zap.Logger) *Reader {
	return &Reader{config: cfg, logger: logger.Named("xlsx")}
}

// Read loads the sheet. Query is not supported; Table names the dataset and
// defaults to the file name without its extension.
func (r *Reader) Read(ctx context.Context, req datasource.ReadRequest) (*models.Dataset, error) {
	if req.Query != "" {
		return nil, fmt.Errorf("%w: xlsx source does not accept a query", apperrors.ErrInvalidInput)
	}

	f, err := os.Open(r.config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx file: %w", err)
	}
	defer f.Close()

	name := req.Table
	if name == "" {
		name = datasource.FileDatasetName(r.config.Path)
	}

	ds, err := Parse(ctx, f, name, r.config.Sheet, req.Limit)
	if err != nil {
		return nil, err
	}
	ds.SourcePath = r.config.Path
	if err := datasource.ApplyDeclaredTypes(ds, req.DeclaredTypes); err != nil {
		return nil, err
	}

	r.logger.Debug("Read xlsx file",
		zap.String("path", r.config.Path),
		zap.String("sheet", r.config.Sheet),
		zap.Int("columns", len(ds.Columns)),
		zap.Int("rows", ds.RowCount()))
	return ds, nil
}

// Close implements datasource.DatasetReader.
func (r *Reader) Close() error {
	return nil
}

var _ datasource.DatasetReader = (*Reader)(nil)

// Parse reads a worksheet into a dataset. Cells are read as their displayed
// text and typed per column by datasource.CoerceTextColumn. Blank header
// cells are named column_<n>; cells beyond the header are ignored.
func Parse(ctx context.Context, in io.Reader, name, sheet string, limit int) (*models.Dataset, error) {
	wb, err := excelize.OpenReader(in)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open workbook: %v", apperrors.ErrInvalidInput, err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	switch {
	case len(sheets) == 0:
		return nil, fmt.Errorf("%w: workbook has no sheets", apperrors.ErrInvalidInput)
	case sheet == "":
		sheet = sheets[0]
	case !slices.Contains(sheets, sheet):
		return nil, fmt.Errorf("%w: sheet %q not found (have %s)",
			apperrors.ErrInvalidInput, sheet, strings.Join(sheets, ", "))
	}

	rows, err := wb.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Error(); err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}
		return nil, fmt.Errorf("%w: sheet %q is empty", apperrors.ErrInvalidInput, sheet)
	}
	header, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of sheet %q: %w", sheet, err)
	}
	for i, h := range header {
		if strings.TrimSpace(h) == "" {
			header[i] = fmt.Sprintf("column_%d", i+1)
		}
	}

	limit = datasource.EffectiveLimit(limit)
	cells := make([][]string, len(header))
	for n := 0; n < limit && rows.Next(); n++ {
		if n%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		record, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d of sheet %q: %w", n+2, sheet, err)
		}
		// Trailing empty cells are not returned.
		for i := range header {
			v := ""
			if i < len(record) {
				v = record[i]
			}
			cells[i] = append(cells[i], v)
		}
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}

	ds := &models.Dataset{
		Name:       name,
		SourceType: models.SourceTypeXLSX,
		Columns:    make([]models.DatasetColumn, len(header)),
	}
	for i, h := range header {
		ds.Columns[i] = models.DatasetColumn{Name: h, Values: datasource.CoerceTextColumn(cells[i])}
	}
	return ds, nil
}
