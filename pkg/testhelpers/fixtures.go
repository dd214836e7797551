// Package testhelpers provides database fixtures for querykit tests.
package testhelpers

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-querykit/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-querykit/pkg/adapters/datasource/sqlite"
)

// HRSchema creates the employees/departments fixture. The DDL is portable
// between SQLite and PostgreSQL.
var HRSchema = []string{
	`CREATE TABLE departments (
		id INTEGER PRIMARY KEY,
		dept_name VARCHAR(100) NOT NULL,
		location VARCHAR(100)
	)`,
	`CREATE TABLE employees (
		id INTEGER PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		job_title VARCHAR(100),
		salary INTEGER,
		department_id INTEGER REFERENCES departments(id)
	)`,
}

// HRSeed loads three departments and four employees. Engineering has id 1.
var HRSeed = []string{
	`INSERT INTO departments (id, dept_name, location) VALUES
		(1, 'Engineering', 'Building A'),
		(2, 'Marketing', 'Building B'),
		(3, 'Sales', 'Building C')`,
	`INSERT INTO employees (id, name, job_title, salary, department_id) VALUES
		(1, 'John Smith', 'Senior Engineer', 120000, 1),
		(2, 'Jane Doe', 'Marketing Manager', 95000, 2),
		(3, 'Carol White', 'Engineer', 105000, 1),
		(4, 'Dan Brown', 'Account Executive', 70000, 3)`,
}

// SQLiteFixture is an in-memory database seeded with the HR schema.
type SQLiteFixture struct {
	Conn   datasource.Connection
	Config datasource.ConnectionConfig
}

// HRConnectionConfig returns a config naming a fresh shared in-memory
// SQLite database. Each call yields a distinct database.
func HRConnectionConfig() datasource.ConnectionConfig {
	name := strings.ReplaceAll(uuid.NewString(), "-", "")
	return datasource.ConnectionConfig{
		Type:     "sqlite",
		Database: fmt.Sprintf("file:hr_%s?mode=memory&cache=shared", name),
	}
}

// NewSQLiteFixture opens a seeded in-memory SQLite database, closed on test cleanup.
func NewSQLiteFixture(t *testing.T) *SQLiteFixture {
	t.Helper()

	cfg := HRConnectionConfig()
	sc, err := sqlite.FromConnectionConfig(cfg)
	if err != nil {
		t.Fatalf("sqlite config: %v", err)
	}

	conn, err := sqlite.NewAdapter(context.Background(), sc, datasource.PoolOptions{}, zap.NewNop())
	if err != nil {
		t.Fatalf("open sqlite fixture: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	if err := SeedHR(context.Background(), conn); err != nil {
		t.Fatalf("seed sqlite fixture: %v", err)
	}

	return &SQLiteFixture{Conn: conn, Config: cfg}
}

// SeedHR creates and populates the HR tables through any connection.
func SeedHR(ctx context.Context, conn datasource.QueryExecutor) error {
	for _, stmt := range append(append([]string{}, HRSchema...), HRSeed...) {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", strings.Fields(stmt)[0:3], err)
		}
	}
	return nil
}
