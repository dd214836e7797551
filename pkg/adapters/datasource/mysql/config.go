package mysql

import (
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/ekaya-inc/ekaya-querykit/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-querykit/pkg/config"
)

// Config contains MySQL-specific connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	TLS      string // "false", "true", "skip-verify", "preferred"
	Charset  string
}

// DefaultPort returns the default MySQL port.
func DefaultPort() int {
	return 3306
}

// FromConnectionConfig maps the generic connection record onto a Config.
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
		TLS:      "false",
		Charset:  c.Option("charset", "utf8mb4"),
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort()
	}
	if c.SSL {
		cfg.TLS = "true"
	}
	cfg.TLS = c.Option("tls", cfg.TLS)

	return cfg, nil
}

// DSN formats the driver connection string. The driver's own formatter
// handles escaping of credentials.
func (c *Config) DSN() string {
	dc := mysql.NewConfig()
	dc.User = c.User
	dc.Passwd = c.Password
	dc.Net = "tcp"
	dc.Addr = fmt.Sprintf("%s:%d", config.ResolveHostForDocker(c.Host), c.Port)
	dc.DBName = c.Database
	dc.TLSConfig = c.TLS
	dc.ParseTime = true
	dc.Loc = time.UTC
	dc.Params = map[string]string{"charset": c.Charset}
	return dc.FormatDSN()
}
