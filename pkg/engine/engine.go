// Package engine ties the schema catalog, relationship graph, rewriter,
// executor and normalizer of one datasource into a single snapshot-based API.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-querykit/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-querykit/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-querykit/pkg/config"
	"github.com/ekaya-inc/ekaya-querykit/pkg/executor"
	"github.com/ekaya-inc/ekaya-querykit/pkg/matcher"
	"github.com/ekaya-inc/ekaya-querykit/pkg/metrics"
	"github.com/ekaya-inc/ekaya-querykit/pkg/models"
	"github.com/ekaya-inc/ekaya-querykit/pkg/normalizer"
	"github.com/ekaya-inc/ekaya-querykit/pkg/relationships"
	"github.com/ekaya-inc/ekaya-querykit/pkg/rewriter"
	"github.com/ekaya-inc/ekaya-querykit/pkg/schema"
)

// DefaultNormalizeLimit bounds NormalizedTable when no limit is given.
const DefaultNormalizeLimit = 100

// Options tune the executor and normalizer.
type Options struct {
	FallbackLimit  int
	RelatedLimit   int
	NormalizeLimit int
	// FallbackMinConfidence is the weakest relationship the fallback joins.
	// Zero keeps the executor default.
	FallbackMinConfidence models.Confidence
	Metrics               *metrics.Metrics
}

// OptionsFromConfig maps the engine config section onto Options. An
// unrecognised fallback confidence keeps the executor default.
func OptionsFromConfig(cfg config.EngineConfig, m *metrics.Metrics) Options {
	opts := Options{
		FallbackLimit:  cfg.FallbackLimit,
		RelatedLimit:   cfg.RelatedLimit,
		NormalizeLimit: cfg.NormalizeLimit,
		Metrics:        m,
	}
	if c, err := models.ParseConfidence(cfg.FallbackMinConfidence); err == nil {
		opts.FallbackMinConfidence = c
	}
	return opts
}

// snapshot is everything derived from one catalog. It is rebuilt, never
// mutated, when the catalog changes.
type snapshot struct {
	catalog    *schema.Catalog
	graph      *relationships.Graph
	matcher    *matcher.Matcher
	rewriter   *rewriter.Rewriter
	executor   *executor.Executor
	normalizer *normalizer.Normalizer
}

// Engine serves one datasource. It is safe for concurrent use: each call
// works on the snapshot current when it started.
type Engine struct {
	conn    datasource.Connection
	store   *schema.Store
	current atomic.Pointer[snapshot]
	opts    Options
	logger  *zap.Logger

	// refreshMu keeps the published snapshot in step with the store.
	refreshMu sync.Mutex
}

// New introspects conn and builds the first snapshot. Introspection
// failures are returned as *apperrors.ConnectivityError.
func New(ctx context.Context, conn datasource.Connection, logger *zap.Logger, opts Options) (*Engine, error) {
	if opts.NormalizeLimit <= 0 {
		opts.NormalizeLimit = DefaultNormalizeLimit
	}
	e := &Engine{conn: conn, opts: opts, logger: logger.Named("engine")}

	store, err := schema.NewStore(ctx, conn, logger)
	if err != nil {
		return nil, err
	}
	e.store = store
	e.current.Store(e.build(store.Current()))
	return e, nil
}

func (e *Engine) build(cat *schema.Catalog) *snapshot {
	graph := relationships.Discover(cat)
	m := matcher.New(cat)
	rw := rewriter.New(graph, m, e.logger, rewriter.WithQuoter(e.conn.QuoteIdentifier))
	return &snapshot{
		catalog:  cat,
		graph:    graph,
		matcher:  m,
		rewriter: rw,
		executor: executor.New(e.conn, graph, m, rw, e.logger,
			executor.WithFallbackLimit(e.opts.FallbackLimit),
			executor.WithFallbackMinConfidence(e.opts.FallbackMinConfidence),
			executor.WithMetrics(e.opts.Metrics)),
		normalizer: normalizer.New(e.conn, graph, m, e.logger,
			normalizer.WithRelatedLimit(e.opts.RelatedLimit),
			normalizer.WithMetrics(e.opts.Metrics)),
	}
}

func (e *Engine) snap() *snapshot {
	return e.current.Load()
}

// Refresh re-introspects the datasource and swaps in a new snapshot.
// In-flight calls finish on the snapshot they started with; on failure the
// current snapshot stays in place. Concurrent refreshes run one at a time.
func (e *Engine) Refresh(ctx context.Context) error {
	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	cat, err := e.store.Refresh(ctx)
	if err != nil {
		return err
	}
	next := e.build(cat)
	e.current.Store(next)
	e.logger.Info("Engine snapshot rebuilt",
		zap.Int("tables", cat.Len()),
		zap.Int("relationships", len(next.graph.All())))
	return nil
}

// Catalog returns the current catalog snapshot.
func (e *Engine) Catalog() *schema.Catalog {
	return e.snap().catalog
}

// DatabaseType names the datasource dialect, e.g. "postgres".
func (e *Engine) DatabaseType() string {
	return e.conn.GetType()
}

// ResolveTable resolves a table name through the identifier matcher.
func (e *Engine) ResolveTable(name string) (string, bool) {
	return e.snap().matcher.ResolveTable(name)
}

func (e *Engine) AdaptQuery(text string) (string, []string) {
	return e.snap().rewriter.AdaptQuery(text)
}

func (e *Engine) ExecuteSafely(ctx context.Context, text string) (*models.QueryResult, []string) {
	return e.snap().executor.ExecuteSafely(ctx, text)
}

func (e *Engine) ResolveForeignKeys(ctx context.Context, rows []map[string]any, table string) []models.NormalizedRecord {
	return e.snap().normalizer.ResolveForeignKeys(ctx, rows, table)
}

func (e *Engine) BuildJoinQuery(table string, includeColumns bool) (string, error) {
	return e.snap().rewriter.BuildJoinQuery(table, includeColumns)
}

func (e *Engine) SuggestJoinQuery(table string) (string, error) {
	return e.snap().rewriter.SuggestJoinQuery(table)
}

func (e *Engine) MergeJoinQuery(original, generated string) (string, []string) {
	return e.snap().rewriter.MergeJoinQuery(original, generated)
}

// ValidateJoinConditions repairs JOIN ... ON conditions that name columns
// the relationship graph knows better.
func (e *Engine) ValidateJoinConditions(text string) (string, []string) {
	return e.snap().graph.ValidateJoinConditions(text)
}

// RelationshipsFor returns the outgoing relationships of table, strongest
// first. The name goes through the matcher.
func (e *Engine) RelationshipsFor(table string) ([]models.Relationship, error) {
	s := e.snap()
	resolved, ok := s.matcher.ResolveTable(table)
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrTableNotFound, table)
	}
	return s.graph.RelationshipsFor(resolved), nil
}

// Incoming returns the relationships referencing table.
func (e *Engine) Incoming(table string) ([]models.Relationship, error) {
	s := e.snap()
	resolved, ok := s.matcher.ResolveTable(table)
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrTableNotFound, table)
	}
	return s.graph.Incoming(resolved), nil
}

// Relationships returns every discovered relationship.
func (e *Engine) Relationships() []models.Relationship {
	return e.snap().graph.All()
}

// Describe renders the schema for a language-model prompt.
func (e *Engine) Describe() string {
	s := e.snap()
	return schema.Describe(s.catalog, s.graph.All())
}

// JoinHints lists JOIN clauses for the declared foreign keys.
func (e *Engine) JoinHints() string {
	return schema.JoinHints(e.snap().catalog)
}

// NormalizedTable is the denormalized view of a table.
type NormalizedTable struct {
	SQL      string
	Result   *models.QueryResult
	Records  []models.NormalizedRecord
	Warnings []string
}

// NormalizedTable reads up to limit rows of table joined with its neighbours
// and resolves their foreign keys. A table the matcher cannot resolve is
// queried as named, so the executor's diagnostics explain the failure.
func (e *Engine) NormalizedTable(ctx context.Context, table string, limit int) *NormalizedTable {
	if limit <= 0 {
		limit = e.opts.NormalizeLimit
	}
	s := e.snap()

	query, err := s.rewriter.SuggestJoinQuery(table)
	if err != nil {
		if !errors.Is(err, apperrors.ErrTableNotFound) {
			e.logger.Warn("Join suggestion failed", zap.String("table", table), zap.Error(err))
		}
		query = "SELECT * FROM " + table
	}
	query = e.conn.LimitQuery(query, limit)

	result, warnings := s.executor.ExecuteSafely(ctx, query)
	out := &NormalizedTable{SQL: result.SQL, Result: result, Warnings: warnings}
	switch {
	case result.Fallback:
		out.Records = result.Related
	case result.HasData():
		main, ok := s.matcher.ResolveTable(table)
		if !ok {
			main = table
		}
		out.Records = s.normalizer.ResolveForeignKeys(ctx, result.Rows, main)
	}
	return out
}
