package schema_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-querykit/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-querykit/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-querykit/pkg/schema"
)

func TestStore_RefreshSwapsSnapshot(t *testing.T) {
	d := compositeDiscoverer()
	store, err := schema.NewStore(context.Background(), d, zaptest.NewLogger(t))
	require.NoError(t, err)

	before := store.Current()
	require.Equal(t, 2, before.Len())

	d.tables = append(d.tables, datasource.TableMetadata{TableName: "carriers"})
	d.columns["carriers"] = []datasource.ColumnMetadata{{ColumnName: "id", IsPrimaryKey: true}}

	after, err := store.Refresh(context.Background())
	require.NoError(t, err)
	assert.Same(t, after, store.Current())
	assert.Equal(t, 3, after.Len())

	// A reader holding the old snapshot still sees it unchanged.
	assert.Equal(t, 2, before.Len())
	assert.False(t, before.HasTable("carriers"))
}

func TestStore_FailedRefreshKeepsSnapshot(t *testing.T) {
	d := compositeDiscoverer()
	store, err := schema.NewStore(context.Background(), d, zaptest.NewLogger(t))
	require.NoError(t, err)
	before := store.Current()

	d.failFKs = errors.New("connection reset by peer")
	_, err = store.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsConnectivity(err))
	assert.Same(t, before, store.Current())
}

func TestNewStore_InitialLoadFailure(t *testing.T) {
	d := compositeDiscoverer()
	d.failTables = errors.New("no route to host")

	store, err := schema.NewStore(context.Background(), d, zaptest.NewLogger(t))
	assert.Nil(t, store)
	assert.True(t, apperrors.IsConnectivity(err))
}

func TestStore_ConcurrentReaders(t *testing.T) {
	store, err := schema.NewStore(context.Background(), compositeDiscoverer(), zaptest.NewLogger(t))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				cat := store.Current()
				assert.True(t, cat.HasTable("shipments"))
			}
		}()
	}
	for i := 0; i < 5; i++ {
		_, err := store.Refresh(context.Background())
		require.NoError(t, err)
	}
	wg.Wait()
}
