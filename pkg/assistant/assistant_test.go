package assistant

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-querykit/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-querykit/pkg/engine"
	"github.com/ekaya-inc/ekaya-querykit/pkg/llm"
	"github.com/ekaya-inc/ekaya-querykit/pkg/prompts"
	"github.com/ekaya-inc/ekaya-querykit/pkg/testhelpers"
)

func newHRAssistant(t *testing.T, response string, opts ...Option) (*Assistant, *llm.Mock) {
	t.Helper()
	fixture := testhelpers.NewSQLiteFixture(t)
	logger := zaptest.NewLogger(t)
	e, err := engine.New(context.Background(), fixture.Conn, logger, engine.Options{})
	require.NoError(t, err)
	mock := &llm.Mock{Response: response}
	return New(e, mock, logger, opts...), mock
}

func names(rows []map[string]any) []any {
	out := make([]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, r["name"])
	}
	return out
}

func TestAsk_PromptCarriesSchema(t *testing.T) {
	var system, prompt string
	a, mock := newHRAssistant(t, "")
	mock.GenerateFunc = func(ctx context.Context, s, p string) (string, error) {
		system, prompt = s, p
		return "SELECT COUNT(*) AS n FROM employees;", nil
	}

	answer, err := a.Ask(context.Background(), "How many employees are there?")
	require.NoError(t, err)

	assert.Equal(t, prompts.SQLSystemMessage, system)
	assert.Contains(t, prompt, "Table 'employees':")
	assert.Contains(t, prompt, "JOIN departments ON employees.department_id = departments.id")
	assert.Contains(t, prompt, "SQL dialect: sqlite")
	assert.Contains(t, prompt, "User's question: How many employees are there?")
	assert.Equal(t, "SELECT COUNT(*) AS n FROM employees", answer.GeneratedSQL)
	require.Len(t, answer.Result.Rows, 1)
	assert.Equal(t, int64(4), answer.Result.Rows[0]["n"])
}

func TestAsk_AdaptsGeneratedSQL(t *testing.T) {
	a, _ := newHRAssistant(t,
		"Here is the query:\n```sql\nSELECT name FROM employe WHERE id = 1;\n```",
		WithJoinEnrichment(false))

	answer, err := a.Ask(context.Background(), "Who has id 1?")
	require.NoError(t, err)

	assert.Equal(t, "SELECT name FROM employe WHERE id = 1", answer.GeneratedSQL)
	assert.Equal(t, "SELECT name FROM employees WHERE id = 1", answer.SQL)
	assert.Equal(t, EnhancedNote, answer.Note)
	assert.Contains(t, answer.Warnings, "Query was automatically adapted to: SELECT name FROM employees WHERE id = 1")
	assert.Equal(t, []any{"John Smith"}, names(answer.Result.Rows))
	assert.Len(t, answer.Records, 1)
}

func TestAsk_EnrichesSingleTableSelect(t *testing.T) {
	a, _ := newHRAssistant(t, "SELECT * FROM employees WHERE salary > 100000;")

	answer, err := a.Ask(context.Background(), "Who earns more than 100k?")
	require.NoError(t, err)

	assert.Contains(t, answer.SQL, "LEFT JOIN departments AS d ON e.department_id = d.id")
	assert.Contains(t, answer.SQL, "WHERE e.salary > 100000")
	assert.Equal(t, EnhancedNote, answer.Note)
	assert.ElementsMatch(t, []any{"John Smith", "Carol White"}, names(answer.Result.Rows))
	for _, row := range answer.Result.Rows {
		assert.Equal(t, "Engineering", row["departments_dept_name"])
	}
	require.Len(t, answer.Records, 2)
	for _, rec := range answer.Records {
		require.Contains(t, rec.References, "department")
		assert.Equal(t, "departments", rec.References["department"].Table)
	}
}

func TestAsk_EnrichmentKeepsBareColumnFilters(t *testing.T) {
	tests := []struct {
		name  string
		sql   string
		names []any
	}{
		{"where on shared column", "SELECT name FROM employees WHERE id = 1", []any{"John Smith"}},
		{"shared column selected", "SELECT id, name FROM employees WHERE salary < 100000", []any{"Jane Doe", "Dan Brown"}},
		{"order by shared column", "SELECT id, name FROM employees ORDER BY id DESC LIMIT 2", []any{"Dan Brown", "Carol White"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newHRAssistant(t, tt.sql)

			answer, err := a.Ask(context.Background(), "question")
			require.NoError(t, err)

			assert.Contains(t, answer.SQL, "LEFT JOIN departments AS d")
			assert.False(t, answer.Result.Fallback, answer.Result.Report)
			assert.False(t, answer.Result.Failed, answer.Result.Report)
			assert.NotContains(t, answer.Warnings, RewriteFailedWarning)
			assert.Equal(t, tt.names, names(answer.Result.Rows))
		})
	}
}

// brokenMergeEngine wraps the real engine but splices an invalid query.
type brokenMergeEngine struct {
	*engine.Engine
}

func (brokenMergeEngine) MergeJoinQuery(original, generated string) (string, []string) {
	return "SELECT e.missing FROM employees AS e LEFT JOIN departments AS d ON e.department_id = d.id", []string{"merged"}
}

func TestAsk_FailedEnrichmentRunsGeneratedQuery(t *testing.T) {
	fixture := testhelpers.NewSQLiteFixture(t)
	logger := zaptest.NewLogger(t)
	e, err := engine.New(context.Background(), fixture.Conn, logger, engine.Options{})
	require.NoError(t, err)
	a := New(brokenMergeEngine{e}, &llm.Mock{Response: "SELECT name FROM employees WHERE id = 1"}, logger)

	answer, err := a.Ask(context.Background(), "Who has id 1?")
	require.NoError(t, err)

	assert.Equal(t, "SELECT name FROM employees WHERE id = 1", answer.SQL)
	assert.False(t, answer.Result.Fallback)
	assert.Equal(t, []string{RewriteFailedWarning}, answer.Warnings)
	assert.Empty(t, answer.Note)
	assert.Equal(t, []any{"John Smith"}, names(answer.Result.Rows))
}

func TestAsk_RepairsJoinConditions(t *testing.T) {
	a, _ := newHRAssistant(t,
		"SELECT e.name, d.dept_name FROM employees e JOIN departments d ON e.dept_id = d.id WHERE d.dept_name = 'Engineering';")

	answer, err := a.Ask(context.Background(), "Who works in Engineering?")
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT e.name, d.dept_name FROM employees e JOIN departments d ON e.department_id = d.id WHERE d.dept_name = 'Engineering'",
		answer.SQL)
	assert.Contains(t, answer.Warnings, "Join condition 'e.dept_id = d.id' was replaced with 'e.department_id = d.id'")
	assert.ElementsMatch(t, []any{"John Smith", "Carol White"}, names(answer.Result.Rows))
}

func TestAsk_LeavesNonSelectAlone(t *testing.T) {
	a, _ := newHRAssistant(t, "UPDATE employees SET salary = 99000 WHERE id = 4;")

	answer, err := a.Ask(context.Background(), "Give Dan a raise")
	require.NoError(t, err)

	assert.Equal(t, "UPDATE employees SET salary = 99000 WHERE id = 4", answer.SQL)
	assert.Empty(t, answer.Note)
	assert.Empty(t, answer.Records)
}

func TestAsk_Errors(t *testing.T) {
	t.Run("model failure", func(t *testing.T) {
		a, mock := newHRAssistant(t, "")
		boom := errors.New("connection refused")
		mock.GenerateFunc = func(ctx context.Context, s, p string) (string, error) {
			return "", boom
		}

		_, err := a.Ask(context.Background(), "anything")
		assert.ErrorIs(t, err, boom)
	})

	t.Run("empty response", func(t *testing.T) {
		a, _ := newHRAssistant(t, "```sql\n```")

		_, err := a.Ask(context.Background(), "anything")
		assert.ErrorIs(t, err, apperrors.ErrNoSQLInResponse)
	})
}
