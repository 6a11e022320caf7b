package datasource

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ReaderFactory creates dataset readers from the registry.
type ReaderFactory interface {
	// NewReader creates a reader for the given source type.
	NewReader(ctx context.Context, sourceType string, config map[string]any) (DatasetReader, error)

	// ListTypes returns info for all registered reader types.
	ListTypes() []ReaderInfo
}

type registryFactory struct {
	logger *zap.Logger
}

// NewReaderFactory returns a factory that uses the global registry.
func NewReaderFactory(logger *zap.Logger) ReaderFactory {
	return &registryFactory{
		logger: logger,
	}
}

func (f *registryFactory) NewReader(ctx context.Context, sourceType string, config map[string]any) (DatasetReader, error) {
	factory := GetFactory(sourceType)
	if factory == nil {
		return nil, fmt.Errorf("unsupported source type: %s (not compiled in)", sourceType)
	}
	return factory(ctx, config, f.logger)
}

func (f *registryFactory) ListTypes() []ReaderInfo {
	return RegisteredReaders()
}

// Ensure registryFactory implements ReaderFactory at compile time.
var _ ReaderFactory = (*registryFactory)(nil)
