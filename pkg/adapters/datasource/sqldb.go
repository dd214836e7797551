package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLDB implements the execution half of Connection on top of database/sql.
// The mssql, mysql and sqlite adapters embed it.
type SQLDB struct {
	DB     *sql.DB
	DBType string
}

// ApplyPoolOptions configures the database/sql pool from registry settings.
func ApplyPoolOptions(db *sql.DB, opts PoolOptions) {
	if opts.MaxConns > 0 {
		db.SetMaxOpenConns(int(opts.MaxConns))
	}
	if opts.MinConns > 0 {
		db.SetMaxIdleConns(int(opts.MinConns))
	}
	if opts.IdleTTL > 0 {
		db.SetConnMaxIdleTime(opts.IdleTTL)
	}
}

// Ping verifies the connection is alive
func (s *SQLDB) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// Close closes all connections in the pool
func (s *SQLDB) Close() error {
	return s.DB.Close()
}

// GetType returns the database type
func (s *SQLDB) GetType() string {
	return s.DBType
}

// Query runs a statement as given and collects all rows.
func (s *SQLDB) Query(ctx context.Context, sqlQuery string) (*QueryExecutionResult, error) {
	return s.QueryWithParams(ctx, sqlQuery, nil)
}

// QueryWithParams runs a parameterized statement and collects all rows.
func (s *SQLDB) QueryWithParams(ctx context.Context, sqlQuery string, params []any) (*QueryExecutionResult, error) {
	rows, err := s.DB.QueryContext(ctx, sqlQuery, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	return ScanRows(rows)
}

// Exec runs a statement that returns no rows.
func (s *SQLDB) Exec(ctx context.Context, sqlStatement string) (int64, error) {
	res, err := s.DB.ExecContext(ctx, sqlStatement)
	if err != nil {
		return 0, fmt.Errorf("failed to execute statement: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		// Some drivers don't report affected rows for DDL.
		return 0, nil
	}
	return affected, nil
}

// ScanRows drains rows into a QueryExecutionResult, preserving column order.
// Text returned as []byte is converted to string; binary columns stay []byte.
func ScanRows(rows *sql.Rows) (*QueryExecutionResult, error) {
	columnNames, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	columns := make([]ColumnInfo, len(columnNames))
	for i, name := range columnNames {
		columns[i] = ColumnInfo{Name: name, Type: strings.ToUpper(columnTypes[i].DatabaseTypeName())}
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columnNames))
		valuePtrs := make([]any, len(columnNames))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		rowMap := make(map[string]any, len(columnNames))
		for i, col := range columnNames {
			val := values[i]
			if b, ok := val.([]byte); ok && !isBinaryType(columns[i].Type) {
				val = string(b)
			}
			rowMap[col] = val
		}
		resultRows = append(resultRows, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &QueryExecutionResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

func isBinaryType(dbType string) bool {
	switch dbType {
	case "BINARY", "VARBINARY", "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "IMAGE", "BYTEA":
		return true
	}
	return false
}

// AppendLimit bounds a SELECT with a trailing LIMIT clause, replacing a
// trailing semicolon if present.
func AppendLimit(selectSQL string, n int) string {
	trimmed := strings.TrimRight(strings.TrimSpace(selectSQL), ";")
	return fmt.Sprintf("%s LIMIT %d", trimmed, n)
}
