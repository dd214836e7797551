package testhelpers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLiteFixture(t *testing.T) {
	fx := NewSQLiteFixture(t)
	ctx := context.Background()

	res, err := fx.Conn.Query(ctx, "SELECT dept_name FROM departments WHERE id = 1")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "Engineering", res.Rows[0]["dept_name"])

	tables, err := fx.Conn.DiscoverTables(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "departments", tables[0].TableName)
	assert.Equal(t, "employees", tables[1].TableName)
}

func TestHRConnectionConfig_Distinct(t *testing.T) {
	a, b := HRConnectionConfig(), HRConnectionConfig()
	assert.NotEqual(t, a.Key(), b.Key())
}
