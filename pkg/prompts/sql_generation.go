// Package prompts builds the language model prompts used by the assistant.
package prompts

import (
	"fmt"
	"strings"
)

// SQLSystemMessage frames the model as a SQL generator.
const SQLSystemMessage = "You are a helpful SQL assistant. Your job is to convert a natural language question into a valid SQL query."

// SQLContext is the schema knowledge handed to the model.
type SQLContext struct {
	// Description is the rendered table and relationship listing.
	Description string
	// JoinHints lists JOIN templates for declared foreign keys.
	JoinHints string
	// Dialect names the target database, e.g. "postgres".
	Dialect string
}

var sqlInstructions = []string{
	"Think step by step about what SQL query would best answer this question.",
	"Always use only the tables that actually exist in the database.",
	"When the query involves multiple tables, use appropriate JOIN clauses based on the relationships described.",
	"Always use table aliases when joining tables (e.g., 'projects AS p').",
	"Always qualify column names with their table aliases (e.g., 'p.id', not just 'id').",
	"Use LEFT JOIN instead of INNER JOIN by default to ensure all primary table records are included.",
	"Identify the main table the user is asking about and make that the base of your query.",
	"Write exactly one statement and end it with a semicolon.",
	"ONLY provide the SQL query itself without any markdown formatting, explanations, or additional text.",
}

// BuildSQLPrompt creates the user prompt for turning question into SQL.
func BuildSQLPrompt(ctx SQLContext, question string) string {
	var prompt strings.Builder

	prompt.WriteString("Database information:\n")
	prompt.WriteString(strings.TrimSpace(ctx.Description))
	prompt.WriteString("\n\n")

	if hints := strings.TrimSpace(ctx.JoinHints); hints != "" {
		prompt.WriteString(hints)
		prompt.WriteString("\n\n")
	}

	if ctx.Dialect != "" {
		prompt.WriteString(fmt.Sprintf("SQL dialect: %s\n\n", ctx.Dialect))
	}

	prompt.WriteString(fmt.Sprintf("User's question: %s\n\n", strings.TrimSpace(question)))

	prompt.WriteString("IMPORTANT INSTRUCTIONS:\n")
	for i, line := range sqlInstructions {
		prompt.WriteString(fmt.Sprintf("%d. %s\n", i+1, line))
	}

	prompt.WriteString("\nNow, provide ONLY the SQL query for the user's question above.")
	return prompt.String()
}
