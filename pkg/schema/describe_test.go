package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/ekaya-querykit/pkg/models"
	"github.com/ekaya-inc/ekaya-querykit/pkg/schema"
	"github.com/ekaya-inc/ekaya-querykit/pkg/testhelpers"
)

func TestDescribe(t *testing.T) {
	cat := schema.NewCatalog(testhelpers.HRTables())
	rels := []models.Relationship{{
		SourceTable: "employees", SourceColumn: "department_id",
		TargetTable: "departments", TargetColumn: "id",
		Confidence: models.ConfidenceExplicit,
	}}

	desc := schema.Describe(cat, rels)

	assert.Contains(t, desc, "Table 'departments':\nColumns:\n  - id: INTEGER (Primary Key)\n  - dept_name: VARCHAR(100)")
	assert.Contains(t, desc, "  - department_id: INTEGER (Foreign Key to departments.id)")
	assert.Contains(t, desc, "Relationships between tables:\n  - employees.department_id references departments.id")
	assert.NotContains(t, desc, "inferred")
}

func TestDescribe_NoRelationships(t *testing.T) {
	cat := schema.NewCatalog(testhelpers.StoreTables())
	desc := schema.Describe(cat, nil)
	assert.Contains(t, desc, "No foreign key relationships detected.")
}

func TestJoinHints(t *testing.T) {
	cat := schema.NewCatalog(testhelpers.HRTables())
	assert.Equal(t,
		"When creating JOIN queries, consider these relationships:\n- JOIN departments ON employees.department_id = departments.id",
		schema.JoinHints(cat))

	empty := schema.NewCatalog(testhelpers.StoreTables())
	assert.Equal(t, "No foreign key relationships detected in the schema.", schema.JoinHints(empty))
}
