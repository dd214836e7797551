package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ekaya-inc/ekaya-querykit/pkg/adapters/datasource"
)

// Manager caches one Engine per registered connection. Engines are dropped
// when the registry evicts their connection.
type Manager struct {
	registry *datasource.ConnectionRegistry
	opts     Options
	logger   *zap.Logger

	mu      sync.RWMutex
	engines map[datasource.Handle]*Engine
	group   singleflight.Group

	newEngine func(context.Context, datasource.Connection) (*Engine, error)
}

// NewManager wires a Manager to registry eviction.
func NewManager(registry *datasource.ConnectionRegistry, logger *zap.Logger, opts Options) *Manager {
	m := &Manager{
		registry: registry,
		opts:     opts,
		logger:   logger.Named("engine-manager"),
		engines:  make(map[datasource.Handle]*Engine),
	}
	m.newEngine = func(ctx context.Context, conn datasource.Connection) (*Engine, error) {
		return New(ctx, conn, m.logger, m.opts)
	}
	registry.OnEvict(m.forget)
	return m
}

// Open registers cfg and returns the engine for its connection.
func (m *Manager) Open(ctx context.Context, cfg datasource.ConnectionConfig) (datasource.Handle, *Engine, error) {
	h, err := m.registry.Open(ctx, cfg)
	if err != nil {
		return "", nil, err
	}
	e, err := m.Engine(ctx, h)
	if err != nil {
		return "", nil, err
	}
	return h, e, nil
}

// Engine returns the engine for h, introspecting the datasource on first use.
// Concurrent first calls for one handle share a single introspection. A
// connection evicted while its engine is being built yields
// apperrors.ErrUnknownHandle and nothing is cached.
func (m *Manager) Engine(ctx context.Context, h datasource.Handle) (*Engine, error) {
	m.mu.RLock()
	e, ok := m.engines[h]
	m.mu.RUnlock()
	if ok {
		return e, nil
	}

	v, err, _ := m.group.Do(string(h), func() (any, error) {
		m.mu.RLock()
		e, ok := m.engines[h]
		m.mu.RUnlock()
		if ok {
			return e, nil
		}

		conn, err := m.registry.Get(h)
		if err != nil {
			return nil, err
		}
		e, err = m.newEngine(ctx, conn)
		if err != nil {
			return nil, err
		}

		// Eviction removes the handle before calling forget, so checking
		// under m.mu either sees it gone or lets forget drop the entry.
		m.mu.Lock()
		if _, err := m.registry.Get(h); err != nil {
			m.mu.Unlock()
			return nil, err
		}
		m.engines[h] = e
		m.mu.Unlock()
		m.logger.Debug("Engine created", zap.String("handle", string(h)))
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Engine), nil
}

// Len returns the number of cached engines.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.engines)
}

func (m *Manager) forget(h datasource.Handle) {
	m.mu.Lock()
	_, ok := m.engines[h]
	delete(m.engines, h)
	m.mu.Unlock()
	if ok {
		m.logger.Debug("Engine dropped", zap.String("handle", string(h)))
	}
}
