package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSQLPrompt(t *testing.T) {
	prompt := BuildSQLPrompt(SQLContext{
		Description: "The database contains the following tables:\n\nTable 'employees':",
		JoinHints:   "When creating JOIN queries, consider these relationships:\n- JOIN departments ON employees.department_id = departments.id",
		Dialect:     "sqlite",
	}, "  Who works in Engineering? ")

	assert.True(t, strings.HasPrefix(prompt, "Database information:\nThe database contains the following tables:"))
	assert.Contains(t, prompt, "- JOIN departments ON employees.department_id = departments.id\n\n")
	assert.Contains(t, prompt, "SQL dialect: sqlite\n")
	assert.Contains(t, prompt, "User's question: Who works in Engineering?\n")
	assert.Contains(t, prompt, "1. Think step by step")
	assert.Contains(t, prompt, "9. ONLY provide the SQL query")
	assert.True(t, strings.HasSuffix(prompt, "for the user's question above."))
}

func TestBuildSQLPrompt_OmitsEmptySections(t *testing.T) {
	prompt := BuildSQLPrompt(SQLContext{Description: "tables"}, "count rows")

	assert.NotContains(t, prompt, "SQL dialect")
	assert.NotContains(t, prompt, "JOIN queries")
	assert.Contains(t, prompt, "Database information:\ntables\n\nUser's question: count rows")
}
