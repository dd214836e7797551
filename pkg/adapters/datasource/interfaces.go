package datasource

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// ConnectionConfig is the record a connection provider turns into a live
// connection. It is opaque to the engine apart from its serialized key.
type ConnectionConfig struct {
	Type     string            `json:"type"`
	Host     string            `json:"host,omitempty"`
	Port     int               `json:"port,omitempty"`
	User     string            `json:"user,omitempty"`
	Password string            `json:"password,omitempty"`
	Database string            `json:"database"`
	SSL      bool              `json:"ssl"`
	Options  map[string]string `json:"options,omitempty"`
}

// Key serializes the config deterministically and hashes it, so two
// equal configs share a pool and the password never appears in map keys or logs.
func (c ConnectionConfig) Key() string {
	// encoding/json sorts map keys; struct fields keep declaration order.
	raw, err := json.Marshal(c)
	if err != nil {
		raw = []byte(fmt.Sprintf("%#v", c))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Option returns an adapter-specific option or def when unset.
func (c ConnectionConfig) Option(name, def string) string {
	if v, ok := c.Options[name]; ok && v != "" {
		return v
	}
	return def
}

// PoolOptions bound each adapter's connection pool.
type PoolOptions struct {
	MaxConns int32
	MinConns int32
	IdleTTL  time.Duration
}

// SchemaDiscoverer enumerates tables, columns and declared foreign keys.
type SchemaDiscoverer interface {
	// DiscoverTables returns user tables in a deterministic order.
	DiscoverTables(ctx context.Context) ([]TableMetadata, error)

	// DiscoverColumns returns columns for a table in ordinal order.
	DiscoverColumns(ctx context.Context, schemaName, tableName string) ([]ColumnMetadata, error)

	// DiscoverForeignKeys returns one entry per constrained column.
	// Composite constraints share a ConstraintName.
	DiscoverForeignKeys(ctx context.Context) ([]ForeignKeyMetadata, error)
}

// QueryExecutor runs SQL against a datasource.
type QueryExecutor interface {
	// Query runs a statement as given and returns every row it produces.
	// Statements that return no rows yield an empty result.
	Query(ctx context.Context, sqlQuery string) (*QueryExecutionResult, error)

	// QueryWithParams runs a statement with placeholders built by Placeholder.
	QueryWithParams(ctx context.Context, sqlQuery string, params []any) (*QueryExecutionResult, error)

	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, sqlStatement string) (int64, error)
}

// Dialect covers the syntax differences the engine has to generate.
type Dialect interface {
	// QuoteIdentifier safely quotes a table or column name.
	QuoteIdentifier(name string) string

	// Placeholder returns the n-th (1-based) bind parameter marker.
	Placeholder(n int) string

	// LimitQuery bounds a SELECT statement to n rows.
	LimitQuery(selectSQL string, n int) string
}

// Connection is a live handle to one datasource.
type Connection interface {
	PoolConnector
	SchemaDiscoverer
	QueryExecutor
	Dialect
}

// ColumnInfo describes a result column with database-agnostic type information.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"` // Database type name (e.g., "TEXT", "INT4", "VARCHAR")
}

// QueryExecutionResult holds the results from executing a query.
type QueryExecutionResult struct {
	Columns  []ColumnInfo     `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// ColumnNames returns result column names in select-list order.
func (r *QueryExecutionResult) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}
