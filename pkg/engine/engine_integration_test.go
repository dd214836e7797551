//go:build integration

package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-querykit/pkg/testhelpers"
)

func TestManager_Postgres(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	m := newTestManager(t)
	ctx := context.Background()

	_, e, err := m.Open(ctx, testDB.Config)
	require.NoError(t, err)
	assert.Equal(t, "postgres", e.DatabaseType())
	assert.ElementsMatch(t, []string{"departments", "employees"}, e.Catalog().Tables())

	rels, err := e.RelationshipsFor("employees")
	require.NoError(t, err)
	require.NotEmpty(t, rels)
	assert.Equal(t, "departments", rels[0].TargetTable)

	res, warnings := e.ExecuteSafely(ctx, "SELECT name FROM employee WHERE department_id = 1 ORDER BY name")
	assert.NotEmpty(t, warnings)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "Carol White", res.Rows[0]["name"])

	nt := e.NormalizedTable(ctx, "employees", 2)
	require.Len(t, nt.Records, 2)
	assert.NotNil(t, nt.Records[0].References["department"])
}
