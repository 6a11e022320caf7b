package datasource

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-quality/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-quality/pkg/models"
)

// CoerceTextColumn types a column of text cells as a whole: integers if every
// non-empty cell parses as one, else floats if every non-empty cell parses as
// one, else text. Empty cells are nulls.
func CoerceTextColumn(cells []string) []any {
	if ints, ok := parseAll(cells, func(s string) (any, error) { return strconv.ParseInt(s, 10, 64) }); ok {
		return ints
	}
	if floats, ok := parseAll(cells, func(s string) (any, error) { return strconv.ParseFloat(s, 64) }); ok {
		return floats
	}
	out := make([]any, len(cells))
	for i, c := range cells {
		if c != "" {
			out[i] = c
		}
	}
	return out
}

// parseAll converts every non-empty cell with parse, failing on the first
// cell that does not parse. Empty cells become nil.
func parseAll(cells []string, parse func(string) (any, error)) ([]any, bool) {
	out := make([]any, len(cells))
	for i, c := range cells {
		if c == "" {
			continue
		}
		v, err := parse(strings.TrimSpace(c))
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// FileSourceType picks the file reader for path by its extension.
func FileSourceType(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return models.SourceTypeCSV, nil
	case ".xlsx":
		return models.SourceTypeXLSX, nil
	default:
		return "", fmt.Errorf("%w: unsupported file format: %s", apperrors.ErrInvalidInput, path)
	}
}

// FileDatasetName is the default dataset name for a file: its base name
// without the extension.
func FileDatasetName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
