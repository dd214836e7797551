package datasource

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-querykit/pkg/apperrors"
)

// fakeConn is a Connection whose health and lifecycle tests can observe.
type fakeConn struct {
	pingErr atomic.Value // error
	closed  atomic.Bool
}

func (f *fakeConn) Ping(context.Context) error {
	if err, ok := f.pingErr.Load().(error); ok && err != nil {
		return err
	}
	return nil
}
func (f *fakeConn) Close() error    { f.closed.Store(true); return nil }
func (f *fakeConn) GetType() string { return "fake" }
func (f *fakeConn) DiscoverTables(context.Context) ([]TableMetadata, error) {
	return nil, nil
}
func (f *fakeConn) DiscoverColumns(context.Context, string, string) ([]ColumnMetadata, error) {
	return nil, nil
}
func (f *fakeConn) DiscoverForeignKeys(context.Context) ([]ForeignKeyMetadata, error) {
	return nil, nil
}
func (f *fakeConn) Query(context.Context, string) (*QueryExecutionResult, error) {
	return &QueryExecutionResult{}, nil
}
func (f *fakeConn) QueryWithParams(context.Context, string, []any) (*QueryExecutionResult, error) {
	return &QueryExecutionResult{}, nil
}
func (f *fakeConn) Exec(context.Context, string) (int64, error) { return 0, nil }
func (f *fakeConn) QuoteIdentifier(name string) string          { return name }
func (f *fakeConn) Placeholder(int) string                      { return "?" }
func (f *fakeConn) LimitQuery(s string, n int) string           { return AppendLimit(s, n) }

// fakeFactory counts opens and remembers every connection it produced.
type fakeFactory struct {
	mu    sync.Mutex
	opens int
	conns []*fakeConn
	err   error
}

func (f *fakeFactory) open(context.Context, ConnectionConfig, PoolOptions, *zap.Logger) (Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.err != nil {
		return nil, f.err
	}
	c := &fakeConn{}
	f.conns = append(f.conns, c)
	return c, nil
}

func registerFake(t *testing.T, typ string) *fakeFactory {
	t.Helper()
	ff := &fakeFactory{}
	Register(DatasourceAdapterRegistration{
		Info:    DatasourceAdapterInfo{Type: typ, DisplayName: "Fake"},
		Factory: ff.open,
	})
	return ff
}

func newTestRegistry(t *testing.T) *ConnectionRegistry {
	t.Helper()
	r := NewConnectionRegistry(RegistryConfig{TTLMinutes: 1, CleanupInterval: time.Hour}, zap.NewNop())
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestConnectionRegistry_SharesConnectionPerConfig(t *testing.T) {
	ff := registerFake(t, "fake-share")
	r := newTestRegistry(t)
	ctx := context.Background()

	cfg := ConnectionConfig{Type: "fake-share", Host: "h", Database: "hr"}
	h1, err := r.Open(ctx, cfg)
	require.NoError(t, err)
	h2, err := r.Open(ctx, cfg)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Equal(t, 1, ff.opens)

	other := cfg
	other.Database = "sales"
	h3, err := r.Open(ctx, other)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
	assert.Equal(t, 2, ff.opens)
	assert.Equal(t, 2, r.GetStats().TotalConnections)
}

func TestConnectionRegistry_ConcurrentOpenCreatesOnce(t *testing.T) {
	ff := registerFake(t, "fake-concurrent")
	r := newTestRegistry(t)
	cfg := ConnectionConfig{Type: "fake-concurrent", Database: "hr"}

	var wg sync.WaitGroup
	handles := make([]Handle, 16)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := r.Open(context.Background(), cfg)
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()

	for _, h := range handles {
		assert.Equal(t, handles[0], h)
	}
	assert.Equal(t, 1, ff.opens)
}

func TestConnectionRegistry_UnsupportedType(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Open(context.Background(), ConnectionConfig{Type: "oracle", Database: "x"})

	var connErr *apperrors.ConnectivityError
	require.ErrorAs(t, err, &connErr)
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedType)
}

func TestConnectionRegistry_FactoryFailureIsConnectivityError(t *testing.T) {
	ff := registerFake(t, "fake-fail")
	ff.err = errors.New("dial tcp 10.0.0.1:5432: connection refused")
	r := newTestRegistry(t)

	_, err := r.Open(context.Background(), ConnectionConfig{Type: "fake-fail", Database: "hr"})

	assert.True(t, apperrors.IsConnectivity(err))
	assert.Equal(t, 1, ff.opens, "no retries by default")
}

func TestConnectionRegistry_GetAndEvict(t *testing.T) {
	ff := registerFake(t, "fake-evict")
	r := newTestRegistry(t)

	var evicted []Handle
	r.OnEvict(func(h Handle) { evicted = append(evicted, h) })

	h, err := r.Open(context.Background(), ConnectionConfig{Type: "fake-evict", Database: "hr"})
	require.NoError(t, err)

	conn, err := r.Get(h)
	require.NoError(t, err)
	assert.Equal(t, "fake", conn.GetType())

	assert.True(t, r.Evict(h))
	assert.False(t, r.Evict(h))
	assert.True(t, ff.conns[0].closed.Load())
	assert.Equal(t, []Handle{h}, evicted)

	_, err = r.Get(h)
	assert.ErrorIs(t, err, apperrors.ErrUnknownHandle)
}

func TestConnectionRegistry_UnhealthyConnectionRecreated(t *testing.T) {
	ff := registerFake(t, "fake-unhealthy")
	r := newTestRegistry(t)
	cfg := ConnectionConfig{Type: "fake-unhealthy", Database: "hr"}

	h1, err := r.Open(context.Background(), cfg)
	require.NoError(t, err)
	ff.conns[0].pingErr.Store(errors.New("broken pipe"))

	h2, err := r.Open(context.Background(), cfg)
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
	assert.Equal(t, 2, ff.opens)
	assert.True(t, ff.conns[0].closed.Load())
}

func TestConnectionRegistry_PerformCleanup(t *testing.T) {
	registerFake(t, "fake-ttl")
	r := newTestRegistry(t)

	var evicted atomic.Int32
	r.OnEvict(func(Handle) { evicted.Add(1) })

	h, err := r.Open(context.Background(), ConnectionConfig{Type: "fake-ttl", Database: "hr"})
	require.NoError(t, err)

	assert.Equal(t, 0, r.performCleanup(time.Now()))
	assert.Equal(t, 1, r.performCleanup(time.Now().Add(2*time.Minute)))
	assert.EqualValues(t, 1, evicted.Load())

	_, err = r.Get(h)
	assert.Error(t, err)
}

func TestConnectionRegistry_CloseIsIdempotent(t *testing.T) {
	ff := registerFake(t, "fake-close")
	r := NewConnectionRegistry(RegistryConfig{}, zap.NewNop())

	_, err := r.Open(context.Background(), ConnectionConfig{Type: "fake-close", Database: "hr"})
	require.NoError(t, err)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.True(t, ff.conns[0].closed.Load())

	_, err = r.Open(context.Background(), ConnectionConfig{Type: "fake-close", Database: "hr"})
	assert.ErrorIs(t, err, apperrors.ErrRegistryClosed)
}

func TestNewConnectionRegistry_Defaults(t *testing.T) {
	r := NewConnectionRegistry(RegistryConfig{}, zap.NewNop())
	defer r.Close()

	assert.Equal(t, DefaultConnectionTTLMinutes, r.GetStats().TTLMinutes)
	assert.Equal(t, int32(DefaultPoolMaxConns), r.pool.MaxConns)
	assert.Equal(t, 0, r.connectRetry.MaxRetries)
}
