package rewriter

import (
	"strings"

	"github.com/ekaya-inc/ekaya-querykit/pkg/matcher"
	sqlparse "github.com/ekaya-inc/ekaya-querykit/pkg/sql"
)

// MergeJoinQuery carries a caller's SELECT list and trailing clauses over to
// a generated join query. This is a textual splice, not a semantic merge:
//
//   - a SELECT list other than * replaces the generated one verbatim
//   - text after the original main-table reference, from its first
//     WHERE/GROUP BY/HAVING/ORDER BY/LIMIT on, is appended; other leftover
//     text is appended behind WHERE
//   - the original JOINs are dropped in favour of the generated ones
//
// Qualifiers in the carried text are rewritten to the generated aliases where
// the table is joined; references to tables the generated query lacks are
// reported and may leave the result invalid. When the original reads a single
// table, its bare references to that table's columns are qualified with the
// generated main alias so they stay unambiguous next to the joined tables.
func (r *Rewriter) MergeJoinQuery(original, generated string) (string, []string) {
	orig := sqlparse.ParseStatement(original)
	gen := sqlparse.ParseStatement(generated)
	w := &warnings{}

	if orig.Kind != sqlparse.KindSelect || gen.Kind != sqlparse.KindSelect || len(gen.SelectItems) == 0 {
		return generated, nil
	}
	mainRef, ok := outerTable(orig, 0)
	if !ok {
		return generated, nil
	}

	origTables := make(map[string]string)
	for _, t := range orig.Tables {
		if t.Depth != 0 {
			continue
		}
		if resolved, ok := r.matcher.ResolveTable(t.Name); ok {
			origTables[strings.ToLower(t.Ref())] = resolved
		}
	}
	genAliases := make(map[string]string)
	for _, t := range gen.Tables {
		if _, seen := genAliases[t.Name]; !seen {
			genAliases[t.Name] = t.Ref()
		}
	}
	var bare map[int]string
	if _, multi := outerTable(orig, 1); !multi && len(gen.Tables) > 1 {
		main := origTables[strings.ToLower(mainRef.Ref())]
		if alias, ok := genAliases[main]; ok {
			bare = r.bareColumns(orig, main, alias)
		}
	}
	carry := func(start, end int) string {
		return r.realias(orig, start, end, origTables, genAliases, bare, w)
	}

	var b strings.Builder
	genSelStart := gen.SelectItems[0].Start
	genSelEnd := gen.SelectItems[len(gen.SelectItems)-1].End
	b.WriteString(generated[:genSelStart])
	if items := orig.SelectItems; len(items) > 0 && !(len(items) == 1 && items[0].Star && items[0].Text == "*") {
		b.WriteString(carry(items[0].Start, items[len(items)-1].End))
	} else {
		b.WriteString(generated[genSelStart:genSelEnd])
	}
	b.WriteString(strings.TrimRight(generated[genSelEnd:], " \t\r\n;"))

	if trailing := r.trailingClauses(orig, mainRef, carry); trailing != "" {
		b.WriteString("\n")
		b.WriteString(trailing)
	}
	return b.String(), w.list
}

// outerTable returns the n-th table reference of the outer statement.
func outerTable(stmt *sqlparse.Statement, n int) (sqlparse.TableRef, bool) {
	for _, t := range stmt.Tables {
		if t.Depth != 0 {
			continue
		}
		if n == 0 {
			return t, true
		}
		n--
	}
	return sqlparse.TableRef{}, false
}

var trailingClauses = []sqlparse.Clause{
	sqlparse.ClauseWhere, sqlparse.ClauseGroupBy, sqlparse.ClauseHaving,
	sqlparse.ClauseOrderBy, sqlparse.ClauseLimit,
}

func (r *Rewriter) trailingClauses(orig *sqlparse.Statement, mainRef sqlparse.TableRef, carry func(int, int) string) string {
	end := len(orig.Text)
	for _, t := range orig.Tokens {
		if t.Kind == sqlparse.TokenSemicolon {
			end = t.Start
			break
		}
	}

	if start, ok := orig.ClauseStart(mainRef.End, trailingClauses...); ok {
		return strings.TrimSpace(carry(start, end))
	}
	if _, joined := outerTable(orig, 1); joined {
		return ""
	}

	leftover := strings.TrimSpace(carry(mainRef.End, end))
	if leftover == "" {
		return ""
	}
	return "WHERE " + leftover
}

// bareColumns maps the offset of every unqualified reference to a column of
// main onto the alias the generated query gives main. Output aliases outside
// the SELECT list and references inside subqueries are left alone.
func (r *Rewriter) bareColumns(orig *sqlparse.Statement, main, alias string) map[int]string {
	out := make(map[int]string)
	outputs := orig.SelectAliases()
	nested := subquerySpans(orig)
	for _, ref := range orig.Columns {
		if ref.Qualified() || nested(ref.NameToken.Start) {
			continue
		}
		if ref.Clause != sqlparse.ClauseSelect && outputs[strings.ToLower(ref.Name)] {
			continue
		}
		match, ok := r.matcher.MatchColumn(main, ref.Name)
		if !ok || match.Method > matcher.MethodCaseInsensitive {
			continue
		}
		out[ref.NameToken.Start] = alias
	}
	return out
}

// subquerySpans reports whether an offset lies inside a parenthesized SELECT.
func subquerySpans(stmt *sqlparse.Statement) func(int) bool {
	type span struct{ start, end int }
	var spans []span
	var open []int
	toks := stmt.Tokens
	for i, t := range toks {
		switch t.Kind {
		case sqlparse.TokenLParen:
			if i+1 < len(toks) && toks[i+1].Is("SELECT") {
				open = append(open, t.Start)
			} else {
				open = append(open, -1)
			}
		case sqlparse.TokenRParen:
			if n := len(open); n > 0 {
				if open[n-1] >= 0 {
					spans = append(spans, span{open[n-1], t.End})
				}
				open = open[:n-1]
			}
		}
	}
	return func(offset int) bool {
		for _, s := range spans {
			if offset >= s.start && offset < s.end {
				return true
			}
		}
		return false
	}
}

// realias returns orig.Text[start:end] with qualifiers mapped from the
// original query's aliases to the generated query's, and with the bare
// references in bare prefixed by their alias.
func (r *Rewriter) realias(orig *sqlparse.Statement, start, end int, origTables, genAliases map[string]string, bare map[int]string, w *warnings) string {
	ed := newEdits()
	toks := orig.Tokens
	for i, tok := range toks {
		if tok.Start < start || tok.End > end || !tok.IsIdentifier() {
			continue
		}
		if alias, ok := bare[tok.Start]; ok {
			ed.replace(tok.Start-start, tok.End-start, alias+"."+tok.Text)
			continue
		}
		if i+1 >= len(toks) || toks[i+1].Kind != sqlparse.TokenDot {
			continue
		}
		if i > 0 && toks[i-1].Kind == sqlparse.TokenDot {
			continue
		}

		table, ok := origTables[strings.ToLower(tok.Name())]
		if !ok {
			continue
		}
		alias, joined := genAliases[table]
		if !joined {
			w.add("Warning: '%s' refers to table '%s', which the generated query does not join", tok.Name(), table)
			continue
		}
		if alias != tok.Name() {
			ed.replace(tok.Start-start, tok.End-start, alias)
			w.add("Qualifier '%s' was rewritten to '%s' to match the generated query", tok.Name(), alias)
		}
	}
	return ed.apply(orig.Text[start:end])
}
