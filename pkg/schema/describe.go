package schema

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-querykit/pkg/models"
)

// Describe renders the catalog for a language model prompt: every table with
// its typed columns and key markers, then the known relationships.
func Describe(cat *Catalog, rels []models.Relationship) string {
	var b strings.Builder
	b.WriteString("The database contains the following tables:")

	for _, name := range cat.Tables() {
		t, _ := cat.Table(name)
		fmt.Fprintf(&b, "\n\nTable '%s':\nColumns:", name)
		for _, col := range t.Columns {
			fmt.Fprintf(&b, "\n  - %s: %s", col.Name, col.Type)
			if t.IsPrimaryKey(col.Name) {
				b.WriteString(" (Primary Key)")
			}
			for _, fk := range t.ForeignKeys {
				if ref, ok := fk.ReferredColumnFor(col.Name); ok {
					fmt.Fprintf(&b, " (Foreign Key to %s.%s)", fk.ReferredTable, ref)
					break
				}
			}
		}
	}

	b.WriteString("\n\nRelationships between tables:")
	if len(rels) == 0 {
		b.WriteString("\n  No foreign key relationships detected.")
	}
	for _, r := range rels {
		fmt.Fprintf(&b, "\n  - %s.%s references %s.%s", r.SourceTable, r.SourceColumn, r.TargetTable, r.TargetColumn)
		if r.Confidence != models.ConfidenceExplicit {
			fmt.Fprintf(&b, " (inferred, %s confidence)", r.Confidence)
		}
	}
	return b.String()
}

// JoinHints lists one JOIN template per explicit foreign key.
func JoinHints(cat *Catalog) string {
	var lines []string
	for _, name := range cat.Tables() {
		for _, fk := range cat.ForeignKeys(name) {
			if len(fk.LocalColumns) == 0 || len(fk.ReferredColumns) == 0 {
				continue
			}
			lines = append(lines, fmt.Sprintf("- JOIN %s ON %s.%s = %s.%s",
				fk.ReferredTable, name, fk.LocalColumns[0], fk.ReferredTable, fk.ReferredColumns[0]))
		}
	}
	if len(lines) == 0 {
		return "No foreign key relationships detected in the schema."
	}
	return "When creating JOIN queries, consider these relationships:\n" + strings.Join(lines, "\n")
}
