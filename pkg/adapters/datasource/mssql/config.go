package mssql

import (
	"fmt"
	"strconv"

	"github.com/ekaya-inc/ekaya-querykit/pkg/adapters/datasource"
)

// Config contains SQL Server-specific connection options.
type Config struct {
	Host     string
	Port     int
	Database string
	Schema   string

	// AuthMethod is "sql" or "service_principal".
	AuthMethod string

	// SQL Authentication fields
	Username string
	Password string

	// Service Principal (Azure AD) fields
	TenantID     string
	ClientID     string
	ClientSecret string

	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// DefaultConnectionTimeout returns the default connection timeout in seconds.
func DefaultConnectionTimeout() int {
	return 30
}

// DefaultSchema returns the schema introspected when none is configured.
func DefaultSchema() string {
	return "dbo"
}

// FromConnectionConfig maps the generic connection record onto a Config.
// Azure AD service principals are selected by the "auth_method" option or
// detected from a "client_id" option.
func FromConnectionConfig(c datasource.ConnectionConfig) (*Config, error) {
	cfg := &Config{
		Host:                   c.Host,
		Port:                   c.Port,
		Database:               c.Database,
		Schema:                 c.Option("schema", DefaultSchema()),
		Username:               c.User,
		Password:               c.Password,
		TenantID:               c.Option("tenant_id", ""),
		ClientID:               c.Option("client_id", ""),
		ClientSecret:           c.Option("client_secret", ""),
		Encrypt:                c.SSL,
		TrustServerCertificate: c.Option("trust_server_certificate", "false") == "true",
		ConnectionTimeout:      DefaultConnectionTimeout(),
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort()
	}

	if raw := c.Option("connection_timeout", ""); raw != "" {
		timeout, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid connection_timeout %q: %w", raw, err)
		}
		cfg.ConnectionTimeout = timeout
	}

	// Auto-detect auth method unless explicitly provided
	cfg.AuthMethod = c.Option("auth_method", "")
	if cfg.AuthMethod == "" {
		if cfg.ClientID != "" {
			cfg.AuthMethod = "service_principal"
		} else {
			cfg.AuthMethod = "sql"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the config has all required fields for the selected auth method.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	switch c.AuthMethod {
	case "sql":
		if c.Username == "" {
			return fmt.Errorf("username is required for SQL authentication")
		}
	case "service_principal":
		if c.TenantID == "" {
			return fmt.Errorf("tenant_id is required for service principal")
		}
		if c.ClientID == "" {
			return fmt.Errorf("client_id is required for service principal")
		}
		if c.ClientSecret == "" {
			return fmt.Errorf("client_secret is required for service principal")
		}
	default:
		return fmt.Errorf("invalid auth method: %s (must be sql or service_principal)", c.AuthMethod)
	}

	return nil
}
