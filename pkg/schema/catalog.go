// Package schema holds the introspected catalog of a datasource.
package schema

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-querykit/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-querykit/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-querykit/pkg/models"
)

// Catalog is an immutable snapshot of tables, columns and explicit foreign keys.
type Catalog struct {
	order    []string
	tables   map[string]*models.TableInfo
	loadedAt time.Time
}

// NewCatalog builds a catalog from already-introspected tables, keeping their order.
func NewCatalog(tables []models.TableInfo) *Catalog {
	c := &Catalog{
		order:    make([]string, 0, len(tables)),
		tables:   make(map[string]*models.TableInfo, len(tables)),
		loadedAt: time.Now(),
	}
	for i := range tables {
		t := &tables[i]
		if _, dup := c.tables[t.Name]; dup {
			continue
		}
		c.order = append(c.order, t.Name)
		c.tables[t.Name] = t.Clone()
	}
	return c
}

// Load introspects every table through d. Any failure aborts the load and is
// returned as a ConnectivityError; a partial catalog is never produced.
func Load(ctx context.Context, d datasource.SchemaDiscoverer) (*Catalog, error) {
	discovered, err := d.DiscoverTables(ctx)
	if err != nil {
		return nil, apperrors.NewConnectivityError("discover tables", err)
	}

	tables := make([]models.TableInfo, 0, len(discovered))
	index := make(map[string]int, len(discovered))
	for _, dt := range discovered {
		columns, err := d.DiscoverColumns(ctx, dt.SchemaName, dt.TableName)
		if err != nil {
			return nil, apperrors.NewConnectivityError(fmt.Sprintf("discover columns for %s", dt.TableName), err)
		}

		info := models.TableInfo{
			Name:        dt.TableName,
			Columns:     make([]models.ColumnInfo, 0, len(columns)),
			PrimaryKeys: []string{},
			ForeignKeys: []models.ForeignKey{},
		}
		for _, col := range columns {
			info.Columns = append(info.Columns, models.ColumnInfo{
				Name:     col.ColumnName,
				Type:     col.DataType,
				Nullable: col.IsNullable,
			})
			if col.IsPrimaryKey {
				info.PrimaryKeys = append(info.PrimaryKeys, col.ColumnName)
			}
		}
		index[dt.TableName] = len(tables)
		tables = append(tables, info)
	}

	fks, err := d.DiscoverForeignKeys(ctx)
	if err != nil {
		return nil, apperrors.NewConnectivityError("discover foreign keys", err)
	}
	attachForeignKeys(tables, index, fks)

	return NewCatalog(tables), nil
}

// attachForeignKeys groups per-column foreign key rows into constraints,
// preserving discovery order.
func attachForeignKeys(tables []models.TableInfo, index map[string]int, fks []datasource.ForeignKeyMetadata) {
	type constraintKey struct{ table, name string }
	positions := make(map[constraintKey]int)

	for _, fk := range fks {
		i, ok := index[fk.SourceTable]
		if !ok {
			continue
		}
		key := constraintKey{fk.SourceTable, fk.ConstraintName}
		if fk.ConstraintName == "" {
			key.name = fk.SourceColumn + "->" + fk.TargetTable
		}

		pos, seen := positions[key]
		if !seen {
			pos = len(tables[i].ForeignKeys)
			positions[key] = pos
			tables[i].ForeignKeys = append(tables[i].ForeignKeys, models.ForeignKey{ReferredTable: fk.TargetTable})
		}
		c := &tables[i].ForeignKeys[pos]
		c.LocalColumns = append(c.LocalColumns, fk.SourceColumn)
		c.ReferredColumns = append(c.ReferredColumns, fk.TargetColumn)
	}
}

// LoadedAt is when the snapshot was built.
func (c *Catalog) LoadedAt() time.Time {
	return c.loadedAt
}

// Tables returns table names in the adapter's enumeration order.
func (c *Catalog) Tables() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Table returns a copy of the table with exactly this name.
func (c *Catalog) Table(name string) (*models.TableInfo, bool) {
	t, ok := c.tables[name]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// HasTable reports whether a table with exactly this name exists.
func (c *Catalog) HasTable(name string) bool {
	_, ok := c.tables[name]
	return ok
}

// Columns returns a table's column names in ordinal order, or nil.
func (c *Catalog) Columns(table string) []string {
	t, ok := c.tables[table]
	if !ok {
		return nil
	}
	return t.ColumnNames()
}

// PrimaryKey returns a copy of a table's primary-key columns.
func (c *Catalog) PrimaryKey(table string) []string {
	t, ok := c.tables[table]
	if !ok {
		return nil
	}
	return slices.Clone(t.PrimaryKeys)
}

// ForeignKeys returns a copy of a table's explicit foreign keys.
func (c *Catalog) ForeignKeys(table string) []models.ForeignKey {
	t, ok := c.tables[table]
	if !ok {
		return nil
	}
	return t.Clone().ForeignKeys
}

// Len is the number of tables.
func (c *Catalog) Len() int {
	return len(c.order)
}

// String summarizes the catalog for logs.
func (c *Catalog) String() string {
	return fmt.Sprintf("catalog(%d tables: %s)", len(c.order), strings.Join(c.order, ", "))
}
