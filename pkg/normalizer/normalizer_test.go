package normalizer

import (
	"context"
	"errors"
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
	"github.com/ekaya-inc/ekaya-querykit/pkg/schema"
	"github.com/ekaya-inc/ekaya-querykit/pkg/testhelpers"
)

// countingConn records parameterized lookups.
type countingConn struct {
	Conn
	lookups []string
	err     error
}

func (c *countingConn) QueryWithParams(ctx context.Context, q string, params []any) (*datasource.QueryExecutionResult, error) {
	c.lookups = append(c.lookups, q)
	if c.err != nil {
		return nil, c.err
	}
	return c.Conn.QueryWithParams(ctx, q, params)
}

func newHRNormalizer(t *testing.T, opts ...Option) (*Normalizer, *countingConn) {
	t.Helper()
	fixture := testhelpers.NewSQLiteFixture(t)
	cat, err := schema.Load(context.Background(), fixture.Conn)
	require.NoError(t, err)

	conn := &countingConn{Conn: fixture.Conn}
	return New(conn, relationships.Discover(cat), matcher.New(cat), zaptest.NewLogger(t), opts...), conn
}

// Scenario D: a department_id is resolved to its department's name.
func TestResolveForeignKeys_Outgoing(t *testing.T) {
	nz, _ := newHRNormalizer(t)
	row := map[string]any{"id": 1, "name": "John", "department_id": 1}

	records := nz.ResolveForeignKeys(context.Background(), []map[string]any{row}, "employees")

	require.Len(t, records, 1)
	rec := records[0]
	dept := rec.References["department"]
	require.NotNil(t, dept)
	assert.Equal(t, "Engineering", dept.DisplayLabel)
	assert.Equal(t, "departments", dept.Table)
	assert.Equal(t, 1, dept.ID)
	assert.Equal(t, "Building A", dept.Fields["location"])
	assert.Equal(t, "Engineering", rec.Values["department_id_display"])
	assert.Equal(t, []string{"id", "name", "department_id"}, rec.Columns)

	_, mutated := row["department_id_display"]
	assert.False(t, mutated, "input row must not change")
}

func TestResolveForeignKeys_NullAndMissingValues(t *testing.T) {
	nz, conn := newHRNormalizer(t)
	rows := []map[string]any{
		{"id": 5, "name": "Nobody", "department_id": nil},
		{"id": 6, "name": "Ghost", "department_id": 42},
		{"id": 7, "name": "No column"},
	}

	records := nz.ResolveForeignKeys(context.Background(), rows, "employees")

	require.Len(t, records, 3)
	for _, rec := range records {
		assert.Empty(t, rec.References)
	}
	assert.Len(t, conn.lookups, 1, "only the non-null value is looked up")
}

func TestResolveForeignKeys_RepeatedValuesLookedUpOnce(t *testing.T) {
	nz, conn := newHRNormalizer(t)
	rows := []map[string]any{
		{"id": 1, "department_id": 1},
		{"id": 3, "department_id": 1},
		{"id": 2, "department_id": 2},
	}

	records := nz.ResolveForeignKeys(context.Background(), rows, "employees")

	assert.Len(t, conn.lookups, 2)
	assert.Equal(t, "Engineering", records[1].Values["department_id_display"])
	assert.Equal(t, "Marketing", records[2].Values["department_id_display"])
	assert.Equal(t, "SELECT * FROM departments WHERE id = ?1 LIMIT 1", conn.lookups[0])
}

func TestResolveForeignKeys_IncomingCollections(t *testing.T) {
	nz, conn := newHRNormalizer(t, WithRelatedLimit(1))
	rows := []map[string]any{
		{"id": int64(1), "dept_name": "Engineering"},
		{"id": int64(3), "dept_name": "Sales"},
	}

	records := nz.ResolveForeignKeys(context.Background(), rows, "department")

	require.Len(t, records, 2)
	engineering := records[0].RelatedCollections["employees"]
	require.Len(t, engineering, 1, "capped by the related limit")
	assert.Equal(t, "employees", engineering[0].Table)
	assert.Contains(t, []string{"John Smith", "Carol White"}, engineering[0].DisplayLabel)

	sales := records[1].RelatedCollections["employees"]
	require.Len(t, sales, 1)
	assert.Equal(t, "Dan Brown", sales[0].DisplayLabel)
	assert.Equal(t, int64(4), sales[0].ID)
	assert.Equal(t, "SELECT * FROM employees WHERE department_id = ?1 LIMIT 1", conn.lookups[0])
}

func TestResolveForeignKeys_CollectionsFromOneTableShareTheLimit(t *testing.T) {
	fixture := testhelpers.NewSQLiteFixture(t)
	ctx := context.Background()
	for _, stmt := range []string{
		`CREATE TABLE transfers (
			id INTEGER PRIMARY KEY,
			from_department_id INTEGER REFERENCES departments(id),
			to_department_id INTEGER REFERENCES departments(id)
		)`,
		`INSERT INTO transfers (id, from_department_id, to_department_id) VALUES
			(1, 1, 2), (2, 1, 3), (3, 1, 2), (4, 2, 1), (5, 3, 1), (6, 1, 1)`,
	} {
		_, err := fixture.Conn.Exec(ctx, stmt)
		require.NoError(t, err)
	}
	cat, err := schema.Load(ctx, fixture.Conn)
	require.NoError(t, err)
	nz := New(fixture.Conn, relationships.Discover(cat), matcher.New(cat), zaptest.NewLogger(t), WithRelatedLimit(3))

	records := nz.ResolveForeignKeys(ctx, []map[string]any{{"id": int64(1), "dept_name": "Engineering"}}, "departments")

	require.Len(t, records, 1)
	transfers := records[0].RelatedCollections["transfers"]
	assert.Len(t, transfers, 3)
	ids := make(map[any]bool)
	for _, tr := range transfers {
		assert.False(t, ids[tr.ID], "transfer %v listed twice", tr.ID)
		ids[tr.ID] = true
	}
	assert.Len(t, records[0].RelatedCollections["employees"], 2)
}

func TestMergeRelated(t *testing.T) {
	entity := func(id any) models.RelatedEntity { return models.RelatedEntity{ID: id, Table: "transfers"} }

	got := mergeRelated(
		[]models.RelatedEntity{entity(1), entity(2)},
		[]models.RelatedEntity{entity(2), entity(3), entity(4)},
		3)

	assert.Equal(t, []models.RelatedEntity{entity(1), entity(2), entity(3)}, got)
	assert.Len(t, mergeRelated(nil, []models.RelatedEntity{entity(nil), entity(nil)}, 5), 2)
}

func TestResolveForeignKeys_LookupFailuresAreSwallowed(t *testing.T) {
	m, err := metrics.New("test", nil)
	require.NoError(t, err)
	nz, conn := newHRNormalizer(t, WithMetrics(m))
	conn.err = errors.New("connection reset by peer")

	records := nz.ResolveForeignKeys(context.Background(), []map[string]any{{"id": 1, "department_id": 1}}, "employees")

	require.Len(t, records, 1)
	assert.Empty(t, records[0].References)
	assert.Equal(t, 1, records[0].Values["id"])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Lookups().WithLabelValues("error")))
}

func TestResolveForeignKeys_UnknownTable(t *testing.T) {
	nz, conn := newHRNormalizer(t)

	records := nz.ResolveForeignKeys(context.Background(), []map[string]any{{"b": 2, "a": 1}}, "projects")

	require.Len(t, records, 1)
	assert.Equal(t, []string{"a", "b"}, records[0].Columns)
	assert.Empty(t, conn.lookups)
}
