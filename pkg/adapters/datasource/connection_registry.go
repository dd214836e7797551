package datasource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-querykit/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-querykit/pkg/logging"
	"github.com/ekaya-inc/ekaya-querykit/pkg/retry"
)

const (
	DefaultConnectionTTLMinutes = 5
	DefaultCleanupInterval      = 1 * time.Minute
	DefaultPoolMaxConns         = 10
	DefaultPoolMinConns         = 1
)

// Handle identifies a registered connection. It replaces object identity
// as the key for anything cached per connection.
type Handle string

// RegistryConfig holds configuration for the connection registry.
type RegistryConfig struct {
	TTLMinutes      int
	PoolMaxConns    int32
	PoolMinConns    int32
	ConnectRetries  int
	CleanupInterval time.Duration
}

// ConnectionRegistry shares one connection per distinct ConnectionConfig,
// evicting connections idle for longer than the TTL.
type ConnectionRegistry struct {
	mu              sync.RWMutex
	byKey           map[string]*ManagedConnection
	byHandle        map[Handle]*ManagedConnection
	ttl             time.Duration
	cleanupInterval time.Duration
	pool            PoolOptions
	connectRetry    *retry.Config
	onEvict         []func(Handle)
	stopped         bool
	stopChan        chan struct{}
	logger          *zap.Logger
}

// ManagedConnection is a registered connection with its idle bookkeeping.
type ManagedConnection struct {
	handle   Handle
	key      string
	dsType   string
	conn     Connection
	lastUsed time.Time
	mu       sync.Mutex
}

func (m *ManagedConnection) touch() {
	m.mu.Lock()
	m.lastUsed = time.Now()
	m.mu.Unlock()
}

func (m *ManagedConnection) idle(now time.Time) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return now.Sub(m.lastUsed)
}

// NewConnectionRegistry creates a registry with the given configuration.
// Starts a background cleanup goroutine that runs until Close() is called.
func NewConnectionRegistry(cfg RegistryConfig, logger *zap.Logger) *ConnectionRegistry {
	if cfg.TTLMinutes <= 0 {
		cfg.TTLMinutes = DefaultConnectionTTLMinutes
	}
	if cfg.PoolMaxConns <= 0 {
		cfg.PoolMaxConns = DefaultPoolMaxConns
	}
	if cfg.PoolMinConns <= 0 {
		cfg.PoolMinConns = DefaultPoolMinConns
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}

	ttl := time.Duration(cfg.TTLMinutes) * time.Minute
	r := &ConnectionRegistry{
		byKey:           make(map[string]*ManagedConnection),
		byHandle:        make(map[Handle]*ManagedConnection),
		ttl:             ttl,
		cleanupInterval: cfg.CleanupInterval,
		pool: PoolOptions{
			MaxConns: cfg.PoolMaxConns,
			MinConns: cfg.PoolMinConns,
			IdleTTL:  ttl,
		},
		connectRetry: retry.WithMaxRetries(cfg.ConnectRetries),
		stopChan:     make(chan struct{}),
		logger:       logger.Named("connection-registry"),
	}

	go r.cleanupExpiredConnections()
	return r
}

// OnEvict registers fn to be called after a connection leaves the registry,
// whether by TTL, explicit eviction, failed health check or Close.
func (r *ConnectionRegistry) OnEvict(fn func(Handle)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEvict = append(r.onEvict, fn)
}

// Open returns the handle for cfg, creating the connection on first use.
// An existing connection is health-checked before it is handed out again.
func (r *ConnectionRegistry) Open(ctx context.Context, cfg ConnectionConfig) (Handle, error) {
	key := cfg.Key()

	r.mu.RLock()
	managed, exists := r.byKey[key]
	stopped := r.stopped
	r.mu.RUnlock()

	if stopped {
		return "", apperrors.ErrRegistryClosed
	}

	if exists {
		err := retry.Do(ctx, r.connectRetry, func() error {
			return managed.conn.Ping(ctx)
		})
		if err == nil {
			managed.touch()
			return managed.handle, nil
		}

		r.logger.Warn("connection unhealthy, recreating",
			zap.String("type", managed.dsType),
			zap.String("handle", string(managed.handle)),
			zap.String("error", logging.SanitizeError(err)),
		)
		r.Evict(managed.handle)
	}

	return r.create(ctx, key, cfg)
}

// create opens a new connection.
// Caller must NOT hold any locks (this method acquires write lock).
func (r *ConnectionRegistry) create(ctx context.Context, key string, cfg ConnectionConfig) (Handle, error) {
	factory := GetFactory(cfg.Type)
	if factory == nil {
		return "", apperrors.NewConnectivityError("open",
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedType, cfg.Type))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return "", apperrors.ErrRegistryClosed
	}

	// Double-check after acquiring write lock (another goroutine may have created it)
	if managed, exists := r.byKey[key]; exists {
		managed.touch()
		return managed.handle, nil
	}

	conn, err := retry.DoWithResult(ctx, r.connectRetry, func() (Connection, error) {
		return factory(ctx, cfg, r.pool, r.logger)
	})
	if err != nil {
		r.logger.Error("failed to open connection",
			zap.String("type", cfg.Type),
			zap.String("host", cfg.Host),
			zap.String("database", cfg.Database),
			zap.String("error", logging.SanitizeError(err)),
		)
		return "", apperrors.NewConnectivityError("open", err)
	}

	managed := &ManagedConnection{
		handle:   Handle(uuid.NewString()),
		key:      key,
		dsType:   CanonicalType(cfg.Type),
		conn:     conn,
		lastUsed: time.Now(),
	}
	r.byKey[key] = managed
	r.byHandle[managed.handle] = managed

	r.logger.Info("opened connection",
		zap.String("type", managed.dsType),
		zap.String("handle", string(managed.handle)),
		zap.String("database", cfg.Database),
		zap.Int("total", len(r.byKey)),
	)

	return managed.handle, nil
}

// Get returns the live connection behind handle and marks it used.
func (r *ConnectionRegistry) Get(handle Handle) (Connection, error) {
	r.mu.RLock()
	managed, exists := r.byHandle[handle]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownHandle, handle)
	}
	managed.touch()
	return managed.conn, nil
}

// Evict closes and removes the connection behind handle.
// Returns false if the handle was not registered.
func (r *ConnectionRegistry) Evict(handle Handle) bool {
	r.mu.Lock()
	managed, exists := r.byHandle[handle]
	if exists {
		r.removeLocked(managed)
	}
	callbacks := r.onEvict
	r.mu.Unlock()

	if exists {
		notify(callbacks, handle)
	}
	return exists
}

// removeLocked closes and forgets a connection. Caller must hold r.mu.
func (r *ConnectionRegistry) removeLocked(managed *ManagedConnection) {
	if err := managed.conn.Close(); err != nil {
		r.logger.Warn("error closing connection",
			zap.String("handle", string(managed.handle)),
			zap.String("error", logging.SanitizeError(err)),
		)
	}
	delete(r.byKey, managed.key)
	delete(r.byHandle, managed.handle)
	r.logger.Debug("removed connection", zap.String("handle", string(managed.handle)))
}

func notify(callbacks []func(Handle), handles ...Handle) {
	for _, h := range handles {
		for _, fn := range callbacks {
			fn(h)
		}
	}
}

// cleanupExpiredConnections runs periodically to remove expired connections.
// Runs in a background goroutine until stopChan is closed.
func (r *ConnectionRegistry) cleanupExpiredConnections() {
	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.performCleanup(time.Now())
		case <-r.stopChan:
			return
		}
	}
}

// performCleanup removes connections that haven't been used within TTL.
// Lock ordering: registry lock, then connection lock.
func (r *ConnectionRegistry) performCleanup(now time.Time) int {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return 0
	}

	var expired []Handle
	for handle, managed := range r.byHandle {
		if idle := managed.idle(now); idle > r.ttl {
			expired = append(expired, handle)
			r.logger.Debug("marking connection for cleanup",
				zap.String("handle", string(handle)),
				zap.Duration("idleTime", idle),
				zap.Duration("ttl", r.ttl),
			)
		}
	}
	for _, handle := range expired {
		r.removeLocked(r.byHandle[handle])
	}
	remaining := len(r.byHandle)
	callbacks := r.onEvict
	r.mu.Unlock()

	if len(expired) > 0 {
		r.logger.Info("cleaned up expired connections",
			zap.Int("count", len(expired)),
			zap.Int("remaining", remaining),
		)
		notify(callbacks, expired...)
	}
	return len(expired)
}

// Close closes all connections and stops the cleanup goroutine.
// This method is idempotent and safe to call multiple times.
func (r *ConnectionRegistry) Close() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	close(r.stopChan)

	handles := make([]Handle, 0, len(r.byHandle))
	for handle, managed := range r.byHandle {
		r.removeLocked(managed)
		handles = append(handles, handle)
	}
	callbacks := r.onEvict
	r.mu.Unlock()

	notify(callbacks, handles...)
	r.logger.Info("connection registry closed")
	return nil
}

// GetStats returns statistics about the registry.
// Safe to call concurrently.
func (r *ConnectionRegistry) GetStats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	stats := RegistryStats{
		TotalConnections:  len(r.byHandle),
		TTLMinutes:        int(r.ttl.Minutes()),
		ConnectionsByType: make(map[string]int),
	}
	for _, managed := range r.byHandle {
		stats.ConnectionsByType[managed.dsType]++
		if idle := int(managed.idle(now).Seconds()); idle > stats.OldestIdleSeconds {
			stats.OldestIdleSeconds = idle
		}
	}
	return stats
}

// RegistryStats contains statistics about the registry state.
type RegistryStats struct {
	TotalConnections  int            `json:"total_connections"`
	TTLMinutes        int            `json:"ttl_minutes"`
	ConnectionsByType map[string]int `json:"connections_by_type"`
	OldestIdleSeconds int            `json:"oldest_idle_seconds"`
}
