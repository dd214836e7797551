package sqlite

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-querykit/pkg/adapters/datasource"
)

// Config contains SQLite connection options. Database is a file path,
// ":memory:", or a file: URI.
type Config struct {
	Database string
}

// FromConnectionConfig maps the generic connection record onto a Config.
func FromConnectionConfig(c datasource.ConnectionConfig) (*Config, error) {
	if c.Database == "" {
		return nil, fmt.Errorf("database is required")
	}
	return &Config{Database: c.Database}, nil
}

// InMemory reports whether the database lives only inside the process.
func (c *Config) InMemory() bool {
	return c.Database == ":memory:" || strings.Contains(c.Database, "mode=memory")
}

// DSN returns the driver connection string with foreign key enforcement on.
func (c *Config) DSN() string {
	dsn := c.Database
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		dsn = "file:" + dsn
	}
	return dsn + sep + "_foreign_keys=on"
}
