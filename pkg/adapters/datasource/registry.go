package datasource

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// DatasourceAdapterInfo describes a registered adapter.
type DatasourceAdapterInfo struct {
	Type        string `json:"type"`         // "postgres", "sqlserver", "mysql", "sqlite"
	DisplayName string `json:"display_name"` // "PostgreSQL", "Microsoft SQL Server"
	Description string `json:"description"`
	DefaultPort int    `json:"default_port,omitempty"`
}

// Factory opens a connection for a config. Failures are wrapped into
// ConnectivityError by the ConnectionRegistry.
type Factory func(ctx context.Context, cfg ConnectionConfig, pool PoolOptions, logger *zap.Logger) (Connection, error)

// DatasourceAdapterRegistration contains info + factory for an adapter.
type DatasourceAdapterRegistration struct {
	Info    DatasourceAdapterInfo
	Factory Factory
	// Aliases are extra type names resolving to this adapter ("postgresql", "mssql").
	Aliases []string
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]DatasourceAdapterRegistration)
	aliases    = make(map[string]string)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg DatasourceAdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
	for _, alias := range reg.Aliases {
		aliases[alias] = reg.Info.Type
	}
}

// RegisteredAdapters returns info for all registered adapters, sorted by type.
func RegisteredAdapters() []DatasourceAdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]DatasourceAdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// CanonicalType resolves aliases to the registered type name.
func CanonicalType(dsType string) string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if canonical, ok := aliases[dsType]; ok {
		return canonical
	}
	return dsType
}

// GetFactory returns the factory for a datasource type.
// Returns nil if type is not registered.
func GetFactory(dsType string) Factory {
	dsType = CanonicalType(dsType)

	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[dsType]; ok {
		return reg.Factory
	}
	return nil
}

// IsRegistered reports whether an adapter exists for dsType.
func IsRegistered(dsType string) bool {
	return GetFactory(dsType) != nil
}
