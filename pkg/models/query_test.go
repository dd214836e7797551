package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatReport(t *testing.T) {
	rows := []map[string]any{
		{"id": int64(1), "name": "John Smith"},
		{"id": int64(2), "name": nil},
	}

	got := FormatReport([]string{"id", "name"}, rows)

	assert.Equal(t, "id | name\n---------\n1 | John Smith\n2 | None", got)
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "None"},
		{"bytes", []byte("abc"), "abc"},
		{"string", "x", "x"},
		{"int", 42, "42"},
		{"float", 1.5, "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.in))
		})
	}
}

func TestReferenceKey(t *testing.T) {
	assert.Equal(t, "department", ReferenceKey("department_id"))
	assert.Equal(t, "Owner", ReferenceKey("Owner_ID"))
	assert.Equal(t, "_id", ReferenceKey("_id"))
	assert.Equal(t, "manager", ReferenceKey("manager"))
}

func TestNormalizedRecord_Attach(t *testing.T) {
	row := map[string]any{"id": 1, "department_id": 1}
	rec := NewNormalizedRecord([]string{"id", "department_id"}, row)

	rec.Attach("department_id", &RelatedEntity{ID: 1, Table: "departments", DisplayLabel: "Engineering"})

	assert.Equal(t, "Engineering", rec.Values["department_id_display"])
	assert.NotContains(t, row, "department_id_display", "input row must not be mutated")
	require.Contains(t, rec.References, "department")
	assert.Equal(t, "departments", rec.References["department"].Table)
}

func TestNormalizedRecord_MarshalJSON(t *testing.T) {
	rec := NewNormalizedRecord([]string{"id"}, map[string]any{"id": 7})
	rec.AttachAs("departments", "dept", &RelatedEntity{ID: 3, Table: "departments", DisplayLabel: "Sales"})
	rec.RelatedCollections["projects"] = []RelatedEntity{{ID: 9, Table: "projects", DisplayLabel: "Apollo"}}

	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.EqualValues(t, 7, got["id"])
	assert.Equal(t, "Sales", got["dept_display"])
	ref, ok := got["departments"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Sales", ref["display_label"])
	assert.Contains(t, got, "related_collections")
}

func TestQueryResult_Warn(t *testing.T) {
	var r QueryResult
	assert.False(t, r.HasData())
	r.Warn("table %q resolved to %q", "employee", "employees")
	assert.Equal(t, []string{`table "employee" resolved to "employees"`}, r.Warnings)
}
