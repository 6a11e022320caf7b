package datasource

import (
	"context"

	"github.com/ekaya-inc/ekaya-quality/pkg/models"
)

// DefaultRowLimit is the hard cap on rows a reader materializes.
// Datasets are held in memory, so every read is bounded.
const DefaultRowLimit = 100000

// ReadRequest selects what a reader materializes.
type ReadRequest struct {
	// Table names the dataset. Without Query it is also the table that is
	// read; a schema prefix ("sales.orders") is allowed.
	Table string

	// Query is an optional SELECT whose result becomes the dataset. It is
	// always wrapped with a dialect-specific limit.
	Query string

	// Limit behavior:
	//   - limit <= 0: uses DefaultRowLimit
	//   - limit > DefaultRowLimit: capped to DefaultRowLimit
	Limit int

	// DeclaredTypes overrides the type reported by the source per column.
	DeclaredTypes map[string]models.DataType
}

// EffectiveLimit applies the DefaultRowLimit cap to limit.
func EffectiveLimit(limit int) int {
	if limit <= 0 || limit > DefaultRowLimit {
		return DefaultRowLimit
	}
	return limit
}

// DatasetReader materializes a table or query result as a Dataset.
// Each implementation owns its connection and must be closed when done.
type DatasetReader interface {
	// Read loads at most the effective limit of rows. Column order follows
	// the source; nulls become nil values.
	Read(ctx context.Context, req ReadRequest) (*models.Dataset, error)

	// Close releases the connection.
	Close() error
}
