package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/ekaya-querykit/pkg/models"
)

func TestPickDisplayField(t *testing.T) {
	tests := []struct {
		name     string
		table    string
		columns  []string
		row      map[string]any
		expected string
	}{
		{
			name:     "first non-id field",
			table:    "departments",
			columns:  []string{"id", "dept_name", "location"},
			row:      map[string]any{"id": 1, "dept_name": "Engineering", "location": "Building A"},
			expected: "Engineering",
		},
		{
			name:     "candidate order",
			table:    "customers",
			columns:  []string{"id", "email", "full_name"},
			row:      map[string]any{"id": 1, "email": "ann@example.com", "full_name": "Ann Lee"},
			expected: "Ann Lee",
		},
		{
			name:     "empty candidates skipped",
			table:    "staff",
			columns:  []string{"id", "name", "title"},
			row:      map[string]any{"id": 3, "name": "  ", "title": "Boss"},
			expected: "Boss",
		},
		{
			name:     "singular table name column",
			table:    "categories",
			columns:  []string{"id", "sku", "category_name"},
			row:      map[string]any{"id": 9, "sku": "X1", "category_name": "Books"},
			expected: "Books",
		},
		{
			name:     "case-insensitive column names",
			table:    "Employees",
			columns:  []string{"ID", "Name"},
			row:      map[string]any{"ID": 2, "Name": "Jane"},
			expected: "Jane",
		},
		{
			name:     "falls back to id",
			table:    "events",
			columns:  []string{"id", "owner_id", "created_at"},
			row:      map[string]any{"id": 7, "owner_id": 2, "created_at": "2024-01-01"},
			expected: "7",
		},
		{
			name:     "nothing usable",
			table:    "links",
			columns:  []string{"a_id", "b_id"},
			row:      map[string]any{"a_id": nil, "b_id": nil},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PickDisplayField(tt.table, tt.columns, tt.row))
		})
	}
}

func TestFormatRelated(t *testing.T) {
	rec := models.NewNormalizedRecord([]string{"id", "name", "department_id"},
		map[string]any{"id": 1, "name": "John", "department_id": 1})
	rec.Attach("department_id", &models.RelatedEntity{ID: 1, Table: "departments", DisplayLabel: "Engineering"})
	rec.AttachAs("managers", "manager_ref", &models.RelatedEntity{ID: 4, Table: "managers", DisplayLabel: "Dana"})
	rec.RelatedCollections["projects"] = []models.RelatedEntity{
		{ID: 1, Table: "projects", DisplayLabel: "Apollo"},
		{ID: 2, Table: "projects", DisplayLabel: "Gemini"},
	}

	got := FormatRelated([]models.NormalizedRecord{rec})

	assert.Equal(t, []map[string]any{{
		"id":                  1,
		"name":                "John",
		"department_id":       "1 (Engineering)",
		"department":          "departments: Engineering",
		"managers":            "managers: Dana",
		"related_collections": map[string][]string{"projects": {"Apollo", "Gemini"}},
	}}, got)
}
