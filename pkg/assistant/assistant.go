// Package assistant answers natural language questions: the model writes
// SQL, the engine repairs and runs it, and the rows come back normalized.
package assistant

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-querykit/pkg/llm"
	"github.com/ekaya-inc/ekaya-querykit/pkg/logging"
	"github.com/ekaya-inc/ekaya-querykit/pkg/models"
	"github.com/ekaya-inc/ekaya-querykit/pkg/prompts"
	sqlparse "github.com/ekaya-inc/ekaya-querykit/pkg/sql"
)

// EnhancedNote is set on answers whose SQL differs from what the model wrote.
const EnhancedNote = "The original query was enhanced based on actual database schema."

// RewriteFailedWarning replaces the rewrite warnings when the enriched or
// repaired query fails and the generated query runs instead.
const RewriteFailedWarning = "The enhanced query failed; the generated query was executed as written."

// Engine is the part of engine.Engine the assistant drives.
type Engine interface {
	DatabaseType() string
	Describe() string
	JoinHints() string
	ResolveTable(name string) (string, bool)
	RelationshipsFor(table string) ([]models.Relationship, error)
	BuildJoinQuery(table string, includeColumns bool) (string, error)
	MergeJoinQuery(original, generated string) (string, []string)
	ValidateJoinConditions(text string) (string, []string)
	ExecuteSafely(ctx context.Context, text string) (*models.QueryResult, []string)
	ResolveForeignKeys(ctx context.Context, rows []map[string]any, table string) []models.NormalizedRecord
}

// Answer is the outcome of one question.
type Answer struct {
	Question     string                    `json:"question"`
	GeneratedSQL string                    `json:"generated_sql"`
	SQL          string                    `json:"sql"`
	Result       *models.QueryResult       `json:"result"`
	Records      []models.NormalizedRecord `json:"related_data,omitempty"`
	Warnings     []string                  `json:"warnings,omitempty"`
	Note         string                    `json:"note,omitempty"`
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithJoinEnrichment controls whether a single-table SELECT is widened with
// LEFT JOINs to the tables it references. On by default.
func WithJoinEnrichment(enabled bool) Option {
	return func(a *Assistant) {
		a.enrichJoins = enabled
	}
}

// Assistant runs the question pipeline.
type Assistant struct {
	engine      Engine
	llm         llm.TextService
	enrichJoins bool
	logger      *zap.Logger
}

func New(engine Engine, svc llm.TextService, logger *zap.Logger, opts ...Option) *Assistant {
	a := &Assistant{
		engine:      engine,
		llm:         svc,
		enrichJoins: true,
		logger:      logger.Named("assistant"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ask turns question into SQL, executes it safely and normalizes the rows.
// Errors are returned only when no SQL could be obtained; execution
// problems are reported through the Answer's warnings.
func (a *Assistant) Ask(ctx context.Context, question string) (*Answer, error) {
	prompt := prompts.BuildSQLPrompt(prompts.SQLContext{
		Description: a.engine.Describe(),
		JoinHints:   a.engine.JoinHints(),
		Dialect:     a.engine.DatabaseType(),
	}, question)

	response, err := a.llm.Generate(ctx, prompts.SQLSystemMessage, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate sql: %w", err)
	}

	generated, err := sqlparse.ExtractSQL(response)
	if err != nil {
		return nil, err
	}
	validated := sqlparse.ValidateAndNormalize(generated)
	if validated.Error != nil {
		return nil, fmt.Errorf("generated sql rejected: %w", validated.Error)
	}

	answer := &Answer{Question: question, GeneratedSQL: validated.NormalizedSQL}
	query, main, warnings := a.enhance(validated.NormalizedSQL)
	answer.Warnings = append(answer.Warnings, warnings...)

	a.logger.Debug("Executing generated query",
		zap.String("sql", logging.SanitizeQuery(query)))

	result, execWarnings := a.engine.ExecuteSafely(ctx, query)
	if query != answer.GeneratedSQL && (result.Fallback || result.Failed) {
		a.logger.Info("Rewritten query failed, running the generated query",
			zap.String("sql", logging.SanitizeQuery(query)))
		answer.Warnings = []string{RewriteFailedWarning}
		result, execWarnings = a.engine.ExecuteSafely(ctx, answer.GeneratedSQL)
	}
	answer.Result = result
	answer.SQL = result.SQL
	answer.Warnings = append(answer.Warnings, execWarnings...)
	if answer.SQL != answer.GeneratedSQL {
		answer.Note = EnhancedNote
	}

	switch {
	case result.Fallback:
		answer.Records = result.Related
	case result.HasData() && main != "":
		answer.Records = a.engine.ResolveForeignKeys(ctx, result.Rows, main)
	}
	return answer, nil
}

// enhance repairs JOIN conditions of multi-table SELECTs and widens
// single-table SELECTs with the joins the relationship graph suggests.
// It also returns the resolved main table, or "" when there is none.
func (a *Assistant) enhance(query string) (string, string, []string) {
	stmt := sqlparse.ParseStatement(query)
	if stmt.Kind != sqlparse.KindSelect {
		return query, "", nil
	}

	var outer []sqlparse.TableRef
	for _, t := range stmt.Tables {
		if t.Depth == 0 {
			outer = append(outer, t)
		}
	}
	if len(outer) == 0 {
		return query, "", nil
	}
	main, ok := a.engine.ResolveTable(outer[0].Name)
	if !ok {
		return query, "", nil
	}

	if len(outer) > 1 {
		fixed, warnings := a.engine.ValidateJoinConditions(query)
		return fixed, main, warnings
	}

	if !a.enrichJoins {
		return query, main, nil
	}
	rels, err := a.engine.RelationshipsFor(main)
	if err != nil || len(rels) == 0 {
		return query, main, nil
	}
	generated, err := a.engine.BuildJoinQuery(main, true)
	if err != nil {
		return query, main, nil
	}
	merged, warnings := a.engine.MergeJoinQuery(query, generated)
	return merged, main, warnings
}
