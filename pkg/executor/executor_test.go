package executor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-querykit/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-querykit/pkg/matcher"
	"github.com/ekaya-inc/ekaya-querykit/pkg/metrics"
	"github.com/ekaya-inc/ekaya-querykit/pkg/models"
	"github.com/ekaya-inc/ekaya-querykit/pkg/relationships"
	"github.com/ekaya-inc/ekaya-querykit/pkg/rewriter"
	"github.com/ekaya-inc/ekaya-querykit/pkg/schema"
	"github.com/ekaya-inc/ekaya-querykit/pkg/testhelpers"
)

func newTestExecutor(t *testing.T, conn Conn, cat *schema.Catalog, opts ...Option) *Executor {
	t.Helper()
	logger := zaptest.NewLogger(t)
	graph := relationships.Discover(cat)
	m := matcher.New(cat)
	rw := rewriter.New(graph, m, logger, rewriter.WithQuoter(conn.QuoteIdentifier))
	return New(conn, graph, m, rw, logger, opts...)
}

func newHRExecutor(t *testing.T, opts ...Option) *Executor {
	t.Helper()
	fixture := testhelpers.NewSQLiteFixture(t)
	cat, err := schema.Load(context.Background(), fixture.Conn)
	require.NoError(t, err)
	return newTestExecutor(t, fixture.Conn, cat, opts...)
}

func rowByID(t *testing.T, records []models.NormalizedRecord, id int64) models.NormalizedRecord {
	t.Helper()
	for _, rec := range records {
		if rec.Values["id"] == id {
			return rec
		}
	}
	t.Fatalf("no record with id %d", id)
	return models.NormalizedRecord{}
}

func TestExecuteSafely_Success(t *testing.T) {
	ex := newHRExecutor(t)

	result, warnings := ex.ExecuteSafely(context.Background(), "SELECT name FROM employees WHERE id = 1")

	assert.Empty(t, warnings)
	assert.False(t, result.Fallback)
	assert.Equal(t, []string{"name"}, result.Columns)
	assert.Equal(t, "name\n----\nJohn Smith", result.Report)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "John Smith", result.Rows[0]["name"])
}

func TestExecuteSafely_NoRows(t *testing.T) {
	ex := newHRExecutor(t)

	result, warnings := ex.ExecuteSafely(context.Background(), "SELECT name FROM employees WHERE id = 99")

	assert.Empty(t, warnings)
	assert.Equal(t, "Query executed successfully. No rows returned.", result.Report)
	assert.Empty(t, result.Rows)
}

// Scenario B: a misspelled table is adapted before execution.
func TestExecuteSafely_AdaptedQuery(t *testing.T) {
	ex := newHRExecutor(t)

	result, warnings := ex.ExecuteSafely(context.Background(), "SELECT id, name FROM employe WHERE id = 2")

	assert.Equal(t, []string{
		"Table 'employe' was replaced with 'employees'",
		"Query was automatically adapted to: SELECT id, name FROM employees WHERE id = 2",
	}, warnings)
	assert.Equal(t, "SELECT id, name FROM employees WHERE id = 2", result.SQL)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "Jane Doe", result.Rows[0]["name"])
}

// Scenario A: an unresolvable column is reported, and the fallback still
// returns the rows of the table.
func TestExecuteSafely_UnresolvedColumnFallsBack(t *testing.T) {
	ex := newHRExecutor(t)

	result, warnings := ex.ExecuteSafely(context.Background(), "SELECT employees.id, employees.employee_name FROM employees")

	require.GreaterOrEqual(t, len(warnings), 3)
	assert.Equal(t, "Warning: Column 'employee_name' not found in table 'employees'", warnings[0])
	assert.True(t, strings.HasPrefix(warnings[1], "Error executing query: "))
	assert.Equal(t, "Automatically executed a fallback query to retrieve similar data", warnings[len(warnings)-1])
	assert.Equal(t, warnings, result.Warnings)

	assert.True(t, result.Fallback)
	assert.Len(t, result.Rows, 4)
	assert.Contains(t, result.Columns, "id")
}

// Scenario C: the fallback joins departments through the declared foreign
// key and labels each employee's department by dept_name.
func TestExecuteSafely_FallbackJoinsRelatedTables(t *testing.T) {
	ex := newHRExecutor(t)

	result, _ := ex.ExecuteSafely(context.Background(), "SELECT employees.id, employees.nonexistent_col FROM employees")

	require.True(t, result.Fallback)
	assert.Equal(t,
		"SELECT employees.id, employees.name, employees.job_title, employees.salary, employees.department_id, "+
			"fk_out_departments.id AS fk_out_departments_id, fk_out_departments.dept_name AS fk_out_departments_dept_name "+
			"FROM employees LEFT JOIN departments AS fk_out_departments ON employees.department_id = fk_out_departments.id LIMIT 5",
		result.SQL)

	assert.True(t, strings.HasPrefix(result.Report, "Fallback query executed instead of the original query.\n\nFallback query: SELECT"))
	assert.Contains(t, result.Report, "\n\nAvailable columns in employees:\n- id\n- name\n")
	assert.Contains(t, result.Report, "- employees.department_id → departments.id (Using descriptive fields: dept_name)")

	require.Len(t, result.Related, 4)
	john := rowByID(t, result.Related, 1)
	dept := john.References["departments"]
	require.NotNil(t, dept)
	assert.Equal(t, "Engineering", dept.DisplayLabel)
	assert.Equal(t, int64(1), dept.ID)
	assert.Equal(t, "Engineering", john.Values["department_id_display"])
	assert.Equal(t, "John Smith", john.Values["name"])
}

func TestExecuteSafely_IncomingRelationshipsBecomeCollections(t *testing.T) {
	ex := newHRExecutor(t)

	result, _ := ex.ExecuteSafely(context.Background(), "SELECT departments.budget FROM departments")

	require.True(t, result.Fallback)
	assert.Contains(t, result.SQL, "LEFT JOIN employees AS fk_in_employees ON departments.id = fk_in_employees.department_id")
	assert.Contains(t, result.SQL, "fk_in_employees.name AS fk_in_employees_name")
	assert.Contains(t, result.Report, "- employees.department_id → departments.id")

	var sawCollection bool
	for _, rec := range result.Related {
		if len(rec.RelatedCollections["employees"]) > 0 {
			sawCollection = true
		}
	}
	assert.True(t, sawCollection)
}

func TestExecuteSafely_UnknownTableDiagnostics(t *testing.T) {
	ex := newHRExecutor(t)

	result, warnings := ex.ExecuteSafely(context.Background(), "SELECT * FROM projects")

	assert.False(t, result.Fallback)
	assert.True(t, result.Failed)
	assert.Empty(t, result.Rows)
	assert.True(t, strings.HasPrefix(result.Report, "Error executing query: "))
	assert.Contains(t, result.Report, "no such table: projects")
	assert.Equal(t, "Warning: Table 'projects' not found in database", warnings[0])
	assert.Equal(t, "Available tables: departments, employees", warnings[len(warnings)-1])
}

func TestExecuteSafely_LiteralInjectionWarning(t *testing.T) {
	ex := newHRExecutor(t)

	result, warnings := ex.ExecuteSafely(context.Background(), "SELECT name FROM employees WHERE name = '1 UNION SELECT * FROM users'")

	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "looks like SQL injection")
	assert.Equal(t, "Query executed successfully. No rows returned.", result.Report)
}

func TestExecuteSafely_Metrics(t *testing.T) {
	m, err := metrics.New("test", nil)
	require.NoError(t, err)
	ex := newHRExecutor(t, WithMetrics(m))
	ctx := context.Background()

	ex.ExecuteSafely(ctx, "SELECT name FROM employe")
	ex.ExecuteSafely(ctx, "SELECT employees.bogus FROM employees")
	ex.ExecuteSafely(ctx, "SELECT * FROM projects")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Executions().WithLabelValues(metrics.OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Executions().WithLabelValues(metrics.OutcomeFallback)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Executions().WithLabelValues(metrics.OutcomeFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Adaptations()))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fallbacks().WithLabelValues("rows")))
}

// failingConn rejects every statement.
type failingConn struct {
	err     error
	queries []string
}

func (f *failingConn) Query(_ context.Context, q string) (*datasource.QueryExecutionResult, error) {
	f.queries = append(f.queries, q)
	return nil, f.err
}

func (f *failingConn) QueryWithParams(ctx context.Context, q string, _ []any) (*datasource.QueryExecutionResult, error) {
	return f.Query(ctx, q)
}

func (f *failingConn) Exec(context.Context, string) (int64, error) { return 0, f.err }
func (f *failingConn) QuoteIdentifier(name string) string          { return `"` + name + `"` }
func (f *failingConn) Placeholder(int) string                      { return "?" }
func (f *failingConn) LimitQuery(s string, n int) string           { return datasource.AppendLimit(s, n) }

func TestExecuteSafely_FallbackFailureRunsOnce(t *testing.T) {
	conn := &failingConn{err: errors.New("Error 1054 (42S22): Unknown column 'e.nme' in 'field list'")}
	m, err := metrics.New("test", nil)
	require.NoError(t, err)
	ex := newTestExecutor(t, conn, schema.NewCatalog(testhelpers.HRTables()), WithMetrics(m), WithFallbackLimit(3))

	result, warnings := ex.ExecuteSafely(context.Background(), "SELECT e.nme FROM employees e")

	require.Len(t, conn.queries, 2, "original plus exactly one fallback")
	assert.True(t, strings.HasSuffix(conn.queries[1], " LIMIT 3"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fallbacks().WithLabelValues("failed")))

	assert.False(t, result.Fallback)
	assert.Equal(t, "SELECT e.name FROM employees e", result.SQL)
	assert.Equal(t, []string{
		"Column 'e.nme' was replaced with 'e.name'",
		"Query was automatically adapted to: SELECT e.name FROM employees e",
		"Error executing query: Error 1054 (42S22): Unknown column 'e.nme' in 'field list'",
		"Table alias 'e' refers to table 'employees'",
		"Available columns in table 'employees': id, name, job_title, salary, department_id",
		"Suggestion: Column 'nme' might be 'name' in table 'employees'",
	}, warnings)
}

func TestPlanFallback_MinConfidence(t *testing.T) {
	cat := schema.NewCatalog(testhelpers.StoreTables())
	execErr := errors.New("no such column: totl")

	aliases := func(ex *Executor) []string {
		plan, ok := ex.planFallback("SELECT totl FROM orders", execErr)
		require.True(t, ok)
		var out []string
		for _, j := range plan.joins {
			out = append(out, j.alias)
		}
		return out
	}

	conn := &failingConn{}
	assert.Equal(t, []string{"fk_out_customers", "fk_in_order_items"}, aliases(newTestExecutor(t, conn, cat)))
	assert.Equal(t,
		[]string{"fk_out_customers", "fk_out_shipments", "fk_in_order_items", "fk_in_shipments"},
		aliases(newTestExecutor(t, conn, cat, WithFallbackMinConfidence(models.ConfidenceLow))))
	assert.Empty(t, aliases(newTestExecutor(t, conn, cat, WithFallbackMinConfidence(models.ConfidenceExplicit))))
}

func TestDiagnose(t *testing.T) {
	ex := newTestExecutor(t, &failingConn{}, schema.NewCatalog(testhelpers.HRTables()))

	tests := []struct {
		name     string
		query    string
		err      error
		expected []string
	}{
		{
			name:  "postgres unqualified column",
			query: "SELECT nme FROM employees",
			err:   errors.New(`ERROR: column "nme" does not exist (SQLSTATE 42703)`),
			expected: []string{
				"Available columns in table 'employees': id, name, job_title, salary, department_id",
				"Suggestion: Column 'nme' might be 'name' in table 'employees'",
			},
		},
		{
			name:  "sqlite qualified column without a close match",
			query: "SELECT d.budget FROM departments d",
			err:   errors.New("no such column: d.budget"),
			expected: []string{
				"Table alias 'd' refers to table 'departments'",
				"Available columns in table 'departments': id, dept_name, location",
			},
		},
		{
			name:  "mysql table with database prefix",
			query: "SELECT * FROM employe",
			err:   errors.New("Error 1146 (42S02): Table 'hr.employe' doesn't exist"),
			expected: []string{
				"Available tables: departments, employees",
				"Suggestion: Table 'employe' might be 'employees'",
			},
		},
		{
			name:  "sqlserver object name",
			query: "SELECT * FROM staff",
			err:   errors.New("mssql: Invalid object name 'staff'."),
			expected: []string{
				"Available tables: departments, employees",
			},
		},
		{
			name:  "unclassified error",
			query: "SELECT 1",
			err:   errors.New("permission denied"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ex.diagnose(tt.query, tt.err))
		})
	}
}

func TestDescriptiveColumns(t *testing.T) {
	tests := []struct {
		name     string
		columns  []string
		expected []string
	}{
		{"name-like columns", []string{"id", "dept_name", "location", "description"}, []string{"dept_name", "description"}},
		{"everything but keys and timestamps", []string{"id", "owner_id", "sku", "created_at", "is_active", "price"}, []string{"sku", "price"}},
		{"first non-id column", []string{"id", "order_id", "created_at"}, []string{"order_id"}},
		{"key-like names are not descriptive", []string{"id", "name_id", "title"}, []string{"title"}},
		{"dates and times are timestamps", []string{"id", "hire_date", "start_time", "salary"}, []string{"salary"}},
		{"only id", []string{"id"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DescriptiveColumns(tt.columns))
		})
	}
}
