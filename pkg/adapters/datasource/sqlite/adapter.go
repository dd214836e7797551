package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-querykit/pkg/adapters/datasource"
)

// Adapter provides SQLite connectivity over database/sql.
type Adapter struct {
	datasource.SQLDB
	config *Config
	logger *zap.Logger
}

// NewAdapter opens the database and verifies it with a ping.
// In-memory databases are pinned to a single connection that never idles out,
// since every new connection would see an empty database.
func NewAdapter(ctx context.Context, cfg *Config, opts datasource.PoolOptions, logger *zap.Logger) (*Adapter, error) {
	db, err := sql.Open("sqlite3", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if cfg.InMemory() {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxIdleTime(0)
		db.SetConnMaxLifetime(0)
	} else {
		datasource.ApplyPoolOptions(db, opts)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &Adapter{
		SQLDB:  datasource.SQLDB{DB: db, DBType: "sqlite"},
		config: cfg,
		logger: logger.Named("sqlite"),
	}, nil
}

// QuoteIdentifier double-quotes a SQLite identifier.
func (a *Adapter) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Placeholder returns ?NNN so parameters can be reused by position.
func (a *Adapter) Placeholder(n int) string {
	return fmt.Sprintf("?%d", n)
}

// LimitQuery appends a LIMIT clause.
func (a *Adapter) LimitQuery(selectSQL string, n int) string {
	return datasource.AppendLimit(selectSQL, n)
}

// Ensure Adapter implements datasource.Connection at compile time.
var _ datasource.Connection = (*Adapter)(nil)
