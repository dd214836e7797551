package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-querykit/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-querykit/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-querykit/pkg/testhelpers"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	logger := zaptest.NewLogger(t)
	registry := datasource.NewConnectionRegistry(datasource.RegistryConfig{}, logger)
	t.Cleanup(func() { _ = registry.Close() })
	return NewManager(registry, logger, Options{})
}

func TestManager_OpenSharesEngine(t *testing.T) {
	fixture := testhelpers.NewSQLiteFixture(t)
	m := newTestManager(t)
	ctx := context.Background()

	h1, e1, err := m.Open(ctx, fixture.Config)
	require.NoError(t, err)
	h2, e2, err := m.Open(ctx, fixture.Config)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Same(t, e1, e2)
	assert.Equal(t, 1, m.Len())
	assert.True(t, e1.Catalog().HasTable("employees"))
}

func TestManager_ConcurrentFirstUse(t *testing.T) {
	fixture := testhelpers.NewSQLiteFixture(t)
	m := newTestManager(t)
	ctx := context.Background()

	h, err := m.registry.Open(ctx, fixture.Config)
	require.NoError(t, err)

	engines := make([]*Engine, 8)
	var wg sync.WaitGroup
	for i := range engines {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := m.Engine(ctx, h)
			assert.NoError(t, err)
			engines[i] = e
		}(i)
	}
	wg.Wait()

	for _, e := range engines[1:] {
		assert.Same(t, engines[0], e)
	}
}

func TestManager_EvictionDropsEngine(t *testing.T) {
	fixture := testhelpers.NewSQLiteFixture(t)
	m := newTestManager(t)
	ctx := context.Background()

	h, _, err := m.Open(ctx, fixture.Config)
	require.NoError(t, err)
	require.Equal(t, 1, m.Len())

	require.True(t, m.registry.Evict(h))

	assert.Equal(t, 0, m.Len())
	_, err = m.Engine(ctx, h)
	assert.ErrorIs(t, err, apperrors.ErrUnknownHandle)
}

func TestManager_EvictionDuringBuildIsNotCached(t *testing.T) {
	fixture := testhelpers.NewSQLiteFixture(t)
	m := newTestManager(t)
	ctx := context.Background()

	h, err := m.registry.Open(ctx, fixture.Config)
	require.NoError(t, err)

	build := m.newEngine
	m.newEngine = func(ctx context.Context, conn datasource.Connection) (*Engine, error) {
		e, err := build(ctx, conn)
		m.registry.Evict(h)
		return e, err
	}

	_, err = m.Engine(ctx, h)
	assert.ErrorIs(t, err, apperrors.ErrUnknownHandle)
	assert.Equal(t, 0, m.Len())
}
