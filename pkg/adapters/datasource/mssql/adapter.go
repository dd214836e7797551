package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	_ "github.com/microsoft/go-mssqldb"         // SQL Server driver
	_ "github.com/microsoft/go-mssqldb/azuread" // Azure AD support
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-querykit/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-querykit/pkg/config"
)

// Adapter provides SQL Server connectivity with SQL or Azure AD authentication.
type Adapter struct {
	datasource.SQLDB
	config *Config
	logger *zap.Logger
}

// NewAdapter opens a pool for cfg and verifies it with a ping.
func NewAdapter(ctx context.Context, cfg *Config, opts datasource.PoolOptions, logger *zap.Logger) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	driver, connStr := buildConnectionString(cfg)
	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", cfg.AuthMethod, err)
	}
	datasource.ApplyPoolOptions(db, opts)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connection test failed: %w", err)
	}

	return &Adapter{
		SQLDB:  datasource.SQLDB{DB: db, DBType: "sqlserver"},
		config: cfg,
		logger: logger.Named("mssql"),
	}, nil
}

// buildConnectionString returns the driver name and DSN for the auth method.
// Service principals go through the azuresql driver with fedauth.
func buildConnectionString(cfg *Config) (string, string) {
	query := url.Values{}
	query.Add("database", cfg.Database)
	if cfg.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}
	if cfg.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if cfg.ConnectionTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", cfg.ConnectionTimeout))
	}

	host := config.ResolveHostForDocker(cfg.Host)

	if cfg.AuthMethod == "service_principal" {
		query.Add("fedauth", "ActiveDirectoryServicePrincipal")
		query.Add("user id", cfg.ClientID+"@"+cfg.TenantID)
		query.Add("password", cfg.ClientSecret)
		return "azuresql", fmt.Sprintf("sqlserver://%s:%d?%s", host, cfg.Port, query.Encode())
	}

	return "sqlserver", fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(cfg.Username),
		url.QueryEscape(cfg.Password),
		host,
		cfg.Port,
		query.Encode(),
	)
}

// QuoteIdentifier brackets a SQL Server identifier.
func (a *Adapter) QuoteIdentifier(name string) string {
	return quoteName(name)
}

// Placeholder returns @pN, the go-mssqldb positional parameter form.
func (a *Adapter) Placeholder(n int) string {
	return fmt.Sprintf("@p%d", n)
}

var selectHead = regexp.MustCompile(`(?i)^\s*SELECT\s+(DISTINCT\s+)?`)

// LimitQuery bounds a SELECT with TOP n since SQL Server has no LIMIT.
func (a *Adapter) LimitQuery(selectSQL string, n int) string {
	return limitWithTop(selectSQL, n)
}

func limitWithTop(selectSQL string, n int) string {
	trimmed := strings.TrimRight(strings.TrimSpace(selectSQL), ";")
	loc := selectHead.FindStringIndex(trimmed)
	if loc == nil {
		return trimmed
	}
	head := strings.TrimRight(trimmed[:loc[1]], " \t\r\n")
	return fmt.Sprintf("%s TOP %d %s", head, n, trimmed[loc[1]:])
}

// Ensure Adapter implements datasource.Connection at compile time.
var _ datasource.Connection = (*Adapter)(nil)
