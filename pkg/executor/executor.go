// Package executor runs adapted SQL and recovers from failures with a single
// fallback query or, failing that, identifier diagnostics.
package executor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-querykit/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-querykit/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-querykit/pkg/logging"
	"github.com/ekaya-inc/ekaya-querykit/pkg/matcher"
	"github.com/ekaya-inc/ekaya-querykit/pkg/metrics"
	"github.com/ekaya-inc/ekaya-querykit/pkg/models"
	"github.com/ekaya-inc/ekaya-querykit/pkg/relationships"
	"github.com/ekaya-inc/ekaya-querykit/pkg/rewriter"
	"github.com/ekaya-inc/ekaya-querykit/pkg/schema"
	sqlparse "github.com/ekaya-inc/ekaya-querykit/pkg/sql"
)

const (
	// DefaultFallbackLimit bounds the rows a fallback query returns.
	DefaultFallbackLimit = 5

	noRowsReport = "Query executed successfully. No rows returned."
)

// Conn is the part of a datasource connection the executor needs.
type Conn interface {
	datasource.QueryExecutor
	datasource.Dialect
}

// Executor runs queries against one connection and catalog snapshot.
type Executor struct {
	conn          Conn
	catalog       *schema.Catalog
	graph         *relationships.Graph
	matcher       *matcher.Matcher
	rewriter      *rewriter.Rewriter
	metrics       *metrics.Metrics
	fallbackLimit int
	minJoin       models.Confidence
	logger        *zap.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithMetrics records executions, adaptations and fallbacks on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithFallbackLimit overrides DefaultFallbackLimit. Non-positive values are ignored.
func WithFallbackLimit(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.fallbackLimit = n
		}
	}
}

// WithFallbackMinConfidence sets the weakest relationship the fallback query
// joins. The default is models.ConfidenceMedium; models.ConfidenceLow joins
// every relationship.
func WithFallbackMinConfidence(c models.Confidence) Option {
	return func(e *Executor) {
		if c >= models.ConfidenceLow && c <= models.ConfidenceExplicit {
			e.minJoin = c
		}
	}
}

// New returns an executor. rw must have been built from graph and m.
func New(conn Conn, graph *relationships.Graph, m *matcher.Matcher, rw *rewriter.Rewriter, logger *zap.Logger, opts ...Option) *Executor {
	e := &Executor{
		conn:          conn,
		catalog:       graph.Catalog(),
		graph:         graph,
		matcher:       m,
		rewriter:      rw,
		fallbackLimit: DefaultFallbackLimit,
		minJoin:       models.ConfidenceMedium,
		logger:        logger.Named("executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteSafely adapts text, runs it and never returns an error. On failure
// it runs one fallback query built from the tables text names; when no
// fallback can run, the result carries the database error as its report and
// the warnings list the identifiers that do exist. The returned warnings are
// also stored on the result.
func (e *Executor) ExecuteSafely(ctx context.Context, text string) (*models.QueryResult, []string) {
	start := time.Now()

	adapted, warnings := e.rewriter.AdaptQuery(text)
	result := &models.QueryResult{SQL: adapted, Warnings: warnings, Rows: []map[string]any{}}
	if adapted != text {
		e.metrics.IncAdaptation()
		result.Warn("Query was automatically adapted to: %s", adapted)
	}
	for _, hit := range sqlparse.CheckLiterals(adapted) {
		result.Warn("Warning: string literal %s looks like SQL injection (fingerprint %s)", hit.ParamName, hit.Fingerprint)
	}

	res, err := e.conn.Query(ctx, adapted)
	if err == nil {
		result.Columns = res.ColumnNames()
		result.Rows = res.Rows
		result.Report = report(result.Columns, res.Rows)
		e.metrics.ObserveExecution(metrics.OutcomeSuccess, time.Since(start))
		return result, result.Warnings
	}

	execErr := &apperrors.ExecutionError{SQL: adapted, Err: err}
	e.logger.Info("Query failed, trying fallback",
		zap.String("query", logging.SanitizeQuery(adapted)),
		zap.String("error", logging.SanitizeError(execErr)))
	result.Warn("Error executing query: %s", err)

	if fb, ok := e.fallback(ctx, text, err); ok {
		fb.Warnings = append(result.Warnings, "Automatically executed a fallback query to retrieve similar data")
		e.metrics.ObserveExecution(metrics.OutcomeFallback, time.Since(start))
		return fb, fb.Warnings
	}

	result.Warnings = append(result.Warnings, e.diagnose(text, err)...)
	result.Report = "Error executing query: " + err.Error()
	result.Failed = true
	e.metrics.ObserveExecution(metrics.OutcomeFailed, time.Since(start))
	return result, result.Warnings
}

func report(columns []string, rows []map[string]any) string {
	if len(rows) == 0 {
		return noRowsReport
	}
	return models.FormatReport(columns, rows)
}
