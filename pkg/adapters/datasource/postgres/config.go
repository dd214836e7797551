package postgres

import (
	"fmt"

	"github.com/ekaya-inc/ekaya-querykit/pkg/adapters/datasource"
)

// Config contains PostgreSQL-specific connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // "disable", "require", "verify-ca", "verify-full"
	Schema   string // schema whose tables form the catalog
}

// DefaultPort returns the default PostgreSQL port.
func DefaultPort() int {
	return 5432
}

// DefaultSchema returns the schema introspected when none is configured.
func DefaultSchema() string {
	return "public"
}

// FromConnectionConfig maps the generic connection record onto a Config.
// The "sslmode" and "schema" options override the derived values.
func FromConnectionConfig(c datasource.ConnectionConfig) (*Config, error) {
	if c.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return nil, fmt.Errorf("database is required")
	}

	cfg := &Config{
		Host:     c.Host,
		Port:     c.Port,
		User:     c.User,
		Password: c.Password,
		Database: c.Database,
		SSLMode:  "disable",
		Schema:   c.Option("schema", DefaultSchema()),
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort()
	}
	if c.SSL {
		cfg.SSLMode = "require"
	}
	cfg.SSLMode = c.Option("sslmode", cfg.SSLMode)

	return cfg, nil
}
