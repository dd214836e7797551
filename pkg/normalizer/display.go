package normalizer

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-querykit/pkg/matcher"
	"github.com/ekaya-inc/ekaya-querykit/pkg/models"
)

// displayCandidates are tried in order; "{table}" expands to the table name
// and its singular.
var displayCandidates = []string{
	"name", "title", "label", "display_name", "{table}_name",
	"description", "full_name", "username", "email", "code", "number",
}

// PickDisplayField returns the human-readable label of a row: the first
// non-empty candidate field, else the first non-empty field that is not an
// id or timestamp, else the id.
func PickDisplayField(table string, columns []string, row map[string]any) string {
	lookup := make(map[string]string, len(columns))
	for _, col := range columns {
		lookup[strings.ToLower(col)] = col
	}
	nonEmpty := func(col string) (string, bool) {
		v := row[col]
		if v == nil {
			return "", false
		}
		s := models.FormatValue(v)
		return s, strings.TrimSpace(s) != ""
	}

	for _, candidate := range displayCandidates {
		names := []string{candidate}
		if strings.Contains(candidate, "{table}") {
			t := strings.ToLower(table)
			names = []string{
				strings.ReplaceAll(candidate, "{table}", t),
				strings.ReplaceAll(candidate, "{table}", strings.ToLower(matcher.Singular(t))),
			}
		}
		for _, name := range names {
			if col, ok := lookup[name]; ok {
				if s, ok := nonEmpty(col); ok {
					return s
				}
			}
		}
	}

	for _, col := range columns {
		if models.IsIdentifierColumn(col) || models.IsTimestampColumn(col) {
			continue
		}
		if s, ok := nonEmpty(col); ok {
			return s
		}
	}

	if col, ok := lookup["id"]; ok {
		return models.FormatValue(row[col])
	}
	return ""
}

// FormatRelated flattens records for display: a foreign-key column becomes
// "value (Label)", an entity attached under its own key becomes
// "table: Label", and related collections become label lists.
func FormatRelated(records []models.NormalizedRecord) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		row := make(map[string]any, len(rec.Columns)+len(rec.References)+1)
		for _, col := range rec.Columns {
			v := rec.Values[col]
			if label, ok := rec.Values[col+"_display"]; ok {
				row[col] = fmt.Sprintf("%s (%s)", models.FormatValue(v), models.FormatValue(label))
				continue
			}
			row[col] = v
		}

		for key, entity := range rec.References {
			if _, isColumn := row[key]; isColumn {
				continue
			}
			row[key] = entity.Table + ": " + entity.DisplayLabel
		}

		if len(rec.RelatedCollections) > 0 {
			collections := make(map[string][]string, len(rec.RelatedCollections))
			for table, entities := range rec.RelatedCollections {
				labels := make([]string, 0, len(entities))
				for _, e := range entities {
					labels = append(labels, e.DisplayLabel)
				}
				collections[table] = labels
			}
			row["related_collections"] = collections
		}
		out = append(out, row)
	}
	return out
}
