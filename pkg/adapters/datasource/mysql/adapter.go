package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-querykit/pkg/adapters/datasource"
)

// Adapter provides MySQL and MariaDB connectivity over database/sql.
type Adapter struct {
	datasource.SQLDB
	config *Config
	logger *zap.Logger
}

// NewAdapter opens a pool for cfg and verifies it with a ping.
func NewAdapter(ctx context.Context, cfg *Config, opts datasource.PoolOptions, logger *zap.Logger) (*Adapter, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}
	datasource.ApplyPoolOptions(db, opts)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	return &Adapter{
		SQLDB:  datasource.SQLDB{DB: db, DBType: "mysql"},
		config: cfg,
		logger: logger.Named("mysql"),
	}, nil
}

// QuoteIdentifier wraps a MySQL identifier in backticks.
func (a *Adapter) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// Placeholder returns ?; MySQL parameters are positional without numbering.
func (a *Adapter) Placeholder(int) string {
	return "?"
}

// LimitQuery appends a LIMIT clause.
func (a *Adapter) LimitQuery(selectSQL string, n int) string {
	return datasource.AppendLimit(selectSQL, n)
}

// Ensure Adapter implements datasource.Connection at compile time.
var _ datasource.Connection = (*Adapter)(nil)
