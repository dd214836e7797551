package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-querykit/pkg/adapters/datasource"
)

// mainSchema is the name SQLite gives the primary database.
const mainSchema = "main"

// DiscoverTables returns user tables ordered by name. Internal sqlite_ tables are skipped.
func (a *Adapter) DiscoverTables(ctx context.Context) ([]datasource.TableMetadata, error) {
	const query = `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`

	rows, err := a.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []datasource.TableMetadata
	for rows.Next() {
		t := datasource.TableMetadata{SchemaName: mainSchema}
		if err := rows.Scan(&t.TableName); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	return tables, nil
}

// DiscoverColumns returns columns for a table from PRAGMA table_info.
func (a *Adapter) DiscoverColumns(ctx context.Context, _ string, tableName string) ([]datasource.ColumnMetadata, error) {
	query := fmt.Sprintf("PRAGMA table_info(%s)", a.QuoteIdentifier(tableName))

	rows, err := a.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var columns []datasource.ColumnMetadata
	for rows.Next() {
		var (
			cid       int
			name      string
			dataType  sql.NullString
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, datasource.ColumnMetadata{
			ColumnName:      name,
			DataType:        strings.ToUpper(dataType.String),
			IsNullable:      notNull == 0 && pk == 0,
			IsPrimaryKey:    pk > 0,
			OrdinalPosition: cid + 1,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	return columns, nil
}

// DiscoverForeignKeys walks PRAGMA foreign_key_list for every table.
// A reference without an explicit target column points at the target's primary key.
func (a *Adapter) DiscoverForeignKeys(ctx context.Context) ([]datasource.ForeignKeyMetadata, error) {
	tables, err := a.DiscoverTables(ctx)
	if err != nil {
		return nil, err
	}

	var fks []datasource.ForeignKeyMetadata
	for _, t := range tables {
		tableFKs, err := a.foreignKeysFor(ctx, t.TableName)
		if err != nil {
			return nil, err
		}
		fks = append(fks, tableFKs...)
	}
	return fks, nil
}

func (a *Adapter) foreignKeysFor(ctx context.Context, table string) ([]datasource.ForeignKeyMetadata, error) {
	query := fmt.Sprintf("PRAGMA foreign_key_list(%s)", a.QuoteIdentifier(table))

	rows, err := a.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys of %s: %w", table, err)
	}

	var fks []datasource.ForeignKeyMetadata
	for rows.Next() {
		var (
			id, seq                     int
			target, from                string
			to                          sql.NullString
			onUpdate, onDelete, matchFn string
		)
		if err := rows.Scan(&id, &seq, &target, &from, &to, &onUpdate, &onDelete, &matchFn); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		fks = append(fks, datasource.ForeignKeyMetadata{
			ConstraintName: fmt.Sprintf("fk_%s_%d", table, id),
			SourceSchema:   mainSchema,
			SourceTable:    table,
			SourceColumn:   from,
			TargetSchema:   mainSchema,
			TargetTable:    target,
			TargetColumn:   to.String,
		})
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("iterate foreign keys: %w", err)
	}

	// Resolve implicit primary key references after the cursor is closed;
	// in-memory databases only have one connection.
	for i := range fks {
		if fks[i].TargetColumn != "" {
			continue
		}
		pk, err := a.primaryKeyOf(ctx, fks[i].TargetTable)
		if err != nil {
			return nil, err
		}
		fks[i].TargetColumn = pk
	}

	return fks, nil
}

func (a *Adapter) primaryKeyOf(ctx context.Context, table string) (string, error) {
	cols, err := a.DiscoverColumns(ctx, mainSchema, table)
	if err != nil {
		return "", err
	}
	for _, c := range cols {
		if c.IsPrimaryKey {
			return c.ColumnName, nil
		}
	}
	return "id", nil
}
