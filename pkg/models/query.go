package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// QueryResult is the outcome of one safe execution.
// Rows preserve the executed statement's column order through Columns.
type QueryResult struct {
	SQL      string           `json:"sql"`
	Report   string           `json:"result"`
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"data"`
	Warnings []string         `json:"warnings"`
	// Fallback is set when Rows came from the fallback query.
	Fallback bool `json:"fallback"`
	// Failed is set when neither the statement nor a fallback could run.
	Failed bool `json:"failed,omitempty"`
	// Related holds entities the fallback query joined in, one per row.
	Related []NormalizedRecord `json:"related_data,omitempty"`
}

// Warn appends an advisory message.
func (r *QueryResult) Warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// HasData reports whether any rows were returned.
func (r *QueryResult) HasData() bool {
	return len(r.Rows) > 0
}

// FormatReport renders rows as a pipe-separated text table:
// header, a dash separator of the header's length, then one line per row.
func FormatReport(columns []string, rows []map[string]any) string {
	header := strings.Join(columns, " | ")
	var b strings.Builder
	b.WriteString(header)
	b.WriteByte('\n')
	b.WriteString(strings.Repeat("-", len(header)))
	for _, row := range rows {
		values := make([]string, len(columns))
		for i, col := range columns {
			values[i] = FormatValue(row[col])
		}
		b.WriteByte('\n')
		b.WriteString(strings.Join(values, " | "))
	}
	return b.String()
}

// FormatValue renders a scanned database value for display.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case []byte:
		return string(val)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// RelatedEntity is a referenced row resolved to a human-readable label.
type RelatedEntity struct {
	ID           any            `json:"id"`
	Table        string         `json:"table"`
	DisplayLabel string         `json:"display_label"`
	Fields       map[string]any `json:"fields"`
}

// NormalizedRecord is a result row enriched with resolved references.
type NormalizedRecord struct {
	Columns []string
	Values  map[string]any
	// References are keyed by the source column with its _id suffix stripped.
	References map[string]*RelatedEntity
	// RelatedCollections holds referencing rows keyed by the referencing table.
	RelatedCollections map[string][]RelatedEntity
}

// NewNormalizedRecord copies row so enrichment never mutates the input.
func NewNormalizedRecord(columns []string, row map[string]any) NormalizedRecord {
	values := make(map[string]any, len(row))
	for k, v := range row {
		values[k] = v
	}
	return NormalizedRecord{
		Columns:            columns,
		Values:             values,
		References:         make(map[string]*RelatedEntity),
		RelatedCollections: make(map[string][]RelatedEntity),
	}
}

// ReferenceKey derives the attachment key for a foreign-key column.
func ReferenceKey(column string) string {
	if strings.HasSuffix(strings.ToLower(column), "_id") && len(column) > 3 {
		return column[:len(column)-3]
	}
	return column
}

// Attach stores entity under the key derived from column and sets the flat
// <column>_display convenience value.
func (n *NormalizedRecord) Attach(column string, entity *RelatedEntity) {
	n.References[ReferenceKey(column)] = entity
	n.Values[column+"_display"] = entity.DisplayLabel
}

// AttachAs stores entity under an explicit key, for references whose
// attachment name is the referenced table rather than the column.
func (n *NormalizedRecord) AttachAs(key, column string, entity *RelatedEntity) {
	n.References[key] = entity
	n.Values[column+"_display"] = entity.DisplayLabel
}

// AsMap flattens the record: row values, nested references and
// related_collections when present.
func (n NormalizedRecord) AsMap() map[string]any {
	out := make(map[string]any, len(n.Values)+len(n.References)+1)
	for k, v := range n.Values {
		out[k] = v
	}
	for k, ref := range n.References {
		out[k] = ref
	}
	if len(n.RelatedCollections) > 0 {
		out["related_collections"] = n.RelatedCollections
	}
	return out
}

// MarshalJSON renders the flattened form.
func (n NormalizedRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.AsMap())
}
