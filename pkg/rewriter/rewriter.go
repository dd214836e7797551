// Package rewriter corrects identifiers in SQL text against the live schema
// and synthesizes join queries from the relationship graph.
package rewriter

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-querykit/pkg/matcher"
	"github.com/ekaya-inc/ekaya-querykit/pkg/relationships"
	"github.com/ekaya-inc/ekaya-querykit/pkg/schema"
	sqlparse "github.com/ekaya-inc/ekaya-querykit/pkg/sql"
)

// Rewriter works against one catalog snapshot and its relationship graph.
type Rewriter struct {
	catalog *schema.Catalog
	graph   *relationships.Graph
	matcher *matcher.Matcher
	quote   func(string) string
	logger  *zap.Logger
}

// Option configures a Rewriter.
type Option func(*Rewriter)

// WithQuoter sets how generated SQL quotes identifiers that are not plain
// lower-case words (keywords, mixed case, spaces). Adapters pass their
// Dialect.QuoteIdentifier.
func WithQuoter(quote func(string) string) Option {
	return func(r *Rewriter) {
		r.quote = quote
	}
}

// New returns a rewriter over graph's catalog.
func New(graph *relationships.Graph, m *matcher.Matcher, logger *zap.Logger, opts ...Option) *Rewriter {
	r := &Rewriter{
		catalog: graph.Catalog(),
		graph:   graph,
		matcher: m,
		quote:   ansiQuote,
		logger:  logger.Named("rewriter"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AliasMap maps each alias, or bare table name used as its own alias, to the
// catalog table it resolved to. Keys are lower-cased.
type AliasMap map[string]string

// Lookup resolves a qualifier case-insensitively.
func (a AliasMap) Lookup(qualifier string) (string, bool) {
	t, ok := a[strings.ToLower(qualifier)]
	return t, ok
}

func (a AliasMap) set(ref, table string) {
	a[strings.ToLower(ref)] = table
}

// tables returns the distinct resolved tables in insertion-independent,
// sorted order.
func (a AliasMap) tables() []string {
	seen := make(map[string]bool, len(a))
	out := make([]string, 0, len(a))
	for _, t := range a {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// edits collects token-offset substitutions and applies them in one pass.
type edits struct {
	byStart map[int]edit
}

type edit struct {
	start, end int
	text       string
}

func newEdits() *edits {
	return &edits{byStart: make(map[int]edit)}
}

// replace schedules text[start:end] → s. A second edit at the same offset
// is ignored.
func (e *edits) replace(start, end int, s string) {
	if _, exists := e.byStart[start]; exists {
		return
	}
	e.byStart[start] = edit{start: start, end: end, text: s}
}

func (e *edits) apply(text string) string {
	if len(e.byStart) == 0 {
		return text
	}
	list := make([]edit, 0, len(e.byStart))
	for _, ed := range e.byStart {
		list = append(list, ed)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].start > list[j].start })
	for _, ed := range list {
		text = text[:ed.start] + ed.text + text[ed.end:]
	}
	return text
}

// warnings is an ordered, de-duplicated message list.
type warnings struct {
	list []string
	seen map[string]bool
}

func (w *warnings) add(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if w.seen == nil {
		w.seen = make(map[string]bool)
	}
	if w.seen[msg] {
		return
	}
	w.seen[msg] = true
	w.list = append(w.list, msg)
}

// ident renders a generated identifier, quoting only when required.
func (r *Rewriter) ident(name string) string {
	return sqlparse.QuoteIfNeeded(name, r.quote)
}

func ansiQuote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
