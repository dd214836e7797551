package rewriter

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-querykit/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-querykit/pkg/models"
)

// aliasAllocator hands out first-letter aliases, adding a counter on collision.
type aliasAllocator struct {
	used     map[string]bool
	counters map[string]int
}

func newAliasAllocator() *aliasAllocator {
	return &aliasAllocator{used: make(map[string]bool), counters: make(map[string]int)}
}

func (a *aliasAllocator) next(table string) string {
	letter := "t"
	if table != "" {
		c := strings.ToLower(table[:1])
		if c[0] >= 'a' && c[0] <= 'z' {
			letter = c
		}
	}
	alias := letter
	for a.used[alias] {
		a.counters[letter]++
		alias = fmt.Sprintf("%s%d", letter, a.counters[letter])
	}
	a.used[alias] = true
	return alias
}

// joinSpec is one LEFT JOIN of a generated query.
type joinSpec struct {
	table      string
	alias      string
	localCol   string // column on the main table
	foreignCol string // column on the joined table
}

// BuildJoinQuery joins mainTable to every table it references, strongest
// relationship first, one LEFT JOIN per relationship so no main row is lost.
// With includeColumns each joined column except the join column is projected
// as <table>_<column>. A table without relationships yields SELECT *.
func (r *Rewriter) BuildJoinQuery(mainTable string, includeColumns bool) (string, error) {
	main, ok := r.matcher.ResolveTable(mainTable)
	if !ok {
		return "", fmt.Errorf("%w: %s", apperrors.ErrTableNotFound, mainTable)
	}

	var joins []joinSpec
	for _, rel := range r.graph.RelationshipsFor(main) {
		joins = append(joins, joinSpec{table: rel.TargetTable, localCol: rel.SourceColumn, foreignCol: rel.TargetColumn})
	}
	return r.renderJoinQuery(main, joins, includeColumns), nil
}

// SuggestJoinQuery is BuildJoinQuery with columns, plus one LEFT JOIN for
// every table that references mainTable: a denormalized view of the table
// and its neighbours in both directions.
func (r *Rewriter) SuggestJoinQuery(mainTable string) (string, error) {
	main, ok := r.matcher.ResolveTable(mainTable)
	if !ok {
		return "", fmt.Errorf("%w: %s", apperrors.ErrTableNotFound, mainTable)
	}

	var joins []joinSpec
	for _, rel := range r.graph.RelationshipsFor(main) {
		joins = append(joins, joinSpec{table: rel.TargetTable, localCol: rel.SourceColumn, foreignCol: rel.TargetColumn})
	}
	for _, rel := range r.graph.Incoming(main) {
		joins = append(joins, incomingJoin(rel))
	}
	return r.renderJoinQuery(main, joins, true), nil
}

func incomingJoin(rel models.Relationship) joinSpec {
	return joinSpec{table: rel.SourceTable, localCol: rel.TargetColumn, foreignCol: rel.SourceColumn}
}

func (r *Rewriter) renderJoinQuery(main string, joins []joinSpec, includeColumns bool) string {
	if len(joins) == 0 {
		return fmt.Sprintf("SELECT * FROM %s", r.ident(main))
	}

	aliases := newAliasAllocator()
	mainAlias := aliases.next(main)
	for i := range joins {
		joins[i].alias = aliases.next(joins[i].table)
	}

	selected := []string{mainAlias + ".*"}
	outputNames := make(map[string]bool)
	if includeColumns {
		for _, j := range joins {
			for _, col := range r.catalog.Columns(j.table) {
				if col == j.foreignCol {
					continue
				}
				name := j.table + "_" + col
				if outputNames[name] {
					name = j.alias + "_" + col
				}
				outputNames[name] = true
				selected = append(selected, fmt.Sprintf("%s.%s AS %s", j.alias, r.ident(col), r.ident(name)))
			}
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s\nFROM %s AS %s", strings.Join(selected, ", "), r.ident(main), mainAlias)
	for _, j := range joins {
		fmt.Fprintf(&b, "\nLEFT JOIN %s AS %s ON %s.%s = %s.%s",
			r.ident(j.table), j.alias, mainAlias, r.ident(j.localCol), j.alias, r.ident(j.foreignCol))
	}
	return b.String()
}
