package schema

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-querykit/pkg/adapters/datasource"
)

// Store publishes catalog snapshots. Readers call Current and keep the
// snapshot they got; Refresh swaps in a new one only after it fully loads.
type Store struct {
	discoverer datasource.SchemaDiscoverer
	current    atomic.Pointer[Catalog]
	refreshMu  sync.Mutex
	logger     *zap.Logger
}

// NewStore loads the first snapshot.
func NewStore(ctx context.Context, d datasource.SchemaDiscoverer, logger *zap.Logger) (*Store, error) {
	s := &Store{discoverer: d, logger: logger.Named("schema")}
	if _, err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Current returns the latest snapshot.
func (s *Store) Current() *Catalog {
	return s.current.Load()
}

// Refresh re-introspects the datasource. On failure the previous snapshot
// stays published and the error is returned.
func (s *Store) Refresh(ctx context.Context) (*Catalog, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	cat, err := Load(ctx, s.discoverer)
	if err != nil {
		s.logger.Error("Schema refresh failed", zap.Error(err))
		return nil, err
	}

	s.current.Store(cat)
	s.logger.Info("Schema loaded", zap.Int("tables", cat.Len()))
	return cat, nil
}
