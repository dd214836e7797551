package models

import (
	"slices"
	"strings"
)

// ColumnInfo is a single introspected column.
type ColumnInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// ForeignKey is an explicit, database-declared constraint.
// LocalColumns and ReferredColumns are positionally paired.
type ForeignKey struct {
	LocalColumns    []string `json:"local_columns"`
	ReferredTable   string   `json:"referred_table"`
	ReferredColumns []string `json:"referred_columns"`
}

// ReferredColumnFor returns the referred column paired with local, if any.
func (fk ForeignKey) ReferredColumnFor(local string) (string, bool) {
	for i, c := range fk.LocalColumns {
		if c == local && i < len(fk.ReferredColumns) {
			return fk.ReferredColumns[i], true
		}
	}
	return "", false
}

// TableInfo is the immutable snapshot of one table.
type TableInfo struct {
	Name        string       `json:"name"`
	Columns     []ColumnInfo `json:"columns"`
	PrimaryKeys []string     `json:"primary_keys"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
}

// Clone returns a deep copy of t.
func (t *TableInfo) Clone() *TableInfo {
	out := &TableInfo{
		Name:        t.Name,
		Columns:     slices.Clone(t.Columns),
		PrimaryKeys: slices.Clone(t.PrimaryKeys),
		ForeignKeys: slices.Clone(t.ForeignKeys),
	}
	for i := range out.ForeignKeys {
		out.ForeignKeys[i].LocalColumns = slices.Clone(out.ForeignKeys[i].LocalColumns)
		out.ForeignKeys[i].ReferredColumns = slices.Clone(out.ForeignKeys[i].ReferredColumns)
	}
	return out
}

// HasColumn reports whether the table has a column with exactly this name.
func (t *TableInfo) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// ColumnNames returns column names in declaration order.
func (t *TableInfo) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// IsPrimaryKey reports whether name is part of the primary key.
func (t *TableInfo) IsPrimaryKey(name string) bool {
	for _, pk := range t.PrimaryKeys {
		if pk == name {
			return true
		}
	}
	return false
}

// PrimaryKey returns the first primary-key column, falling back to "id"
// when the table declares none.
func (t *TableInfo) PrimaryKey() string {
	if len(t.PrimaryKeys) > 0 {
		return t.PrimaryKeys[0]
	}
	return "id"
}

// IsIdentifierColumn reports whether a column name looks like a key or
// bookkeeping column rather than descriptive data.
func IsIdentifierColumn(name string) bool {
	lower := strings.ToLower(name)
	return lower == "id" || strings.HasSuffix(lower, "_id")
}

// IsTimestampColumn reports whether a column name looks like a timestamp.
func IsTimestampColumn(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, "_at") || strings.HasSuffix(lower, "_date") ||
		strings.HasSuffix(lower, "_time") || lower == "created" || lower == "updated" || lower == "timestamp"
}
