package datasource

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ReaderInfo describes a registered reader for CLI help and listings.
type ReaderInfo struct {
	Type        string `json:"type"`         // "csv", "postgres", "mssql"
	DisplayName string `json:"display_name"` // "PostgreSQL", "Microsoft SQL Server"
	Description string `json:"description"`
}

// ReaderFactoryFunc builds a reader from a generic config map.
type ReaderFactoryFunc func(ctx context.Context, config map[string]any, logger *zap.Logger) (DatasetReader, error)

// ReaderRegistration contains info + factory for creating readers.
type ReaderRegistration struct {
	Info    ReaderInfo
	Factory ReaderFactoryFunc
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]ReaderRegistration)
)

// Register is called by each reader's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg ReaderRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredReaders returns info for all registered readers, sorted by type.
func RegisteredReaders() []ReaderInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]ReaderInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// GetFactory returns the factory for a source type.
// Returns nil if type is not registered.
func GetFactory(sourceType string) ReaderFactoryFunc {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[sourceType]; ok {
		return reg.Factory
	}
	return nil
}

// IsRegistered checks if a reader type is available.
func IsRegistered(sourceType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[sourceType]
	return ok
}
