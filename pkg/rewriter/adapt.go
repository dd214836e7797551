package rewriter

import (
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-querykit/pkg/logging"
	sqlparse "github.com/ekaya-inc/ekaya-querykit/pkg/sql"
)

// adaptation carries the per-call state of one AdaptQuery run.
type adaptation struct {
	stmt    *sqlparse.Statement
	aliases AliasMap
	// renamed maps a bare table reference that was corrected to its new name,
	// so qualifiers using the old name follow it.
	renamed map[string]string
	// refFor is how the statement refers to each resolved table.
	refFor map[string]string
	edits  *edits
	warn   *warnings
}

// AdaptQuery rewrites table and column identifiers to the names that exist in
// the catalog. It returns the rewritten text and one warning per substitution
// or unresolved identifier. Statements other than SELECT, INSERT, UPDATE and
// DELETE are returned unchanged. Adapting an adapted query is a no-op.
func (r *Rewriter) AdaptQuery(text string) (string, []string) {
	stmt := sqlparse.ParseStatement(text)
	a := &adaptation{
		stmt:    stmt,
		aliases: AliasMap{},
		renamed: make(map[string]string),
		refFor:  make(map[string]string),
		edits:   newEdits(),
		warn:    &warnings{},
	}

	switch stmt.Kind {
	case sqlparse.KindSelect:
		r.resolveTables(a)
		r.adaptQualifiedColumns(a)
		r.checkUnqualifiedSelectList(a)
	case sqlparse.KindInsert, sqlparse.KindUpdate, sqlparse.KindDelete:
		r.resolveTables(a)
		r.adaptTargetColumns(a)
	default:
		return text, nil
	}

	adapted := a.edits.apply(text)
	if adapted != text {
		r.logger.Debug("Query adapted",
			zap.String("original", logging.SanitizeQuery(text)),
			zap.String("adapted", logging.SanitizeQuery(adapted)),
			zap.Int("warnings", len(a.warn.list)))
	}
	return adapted, a.warn.list
}

// AliasesFor returns the alias map AdaptQuery would build for text.
func (r *Rewriter) AliasesFor(text string) AliasMap {
	a := &adaptation{
		stmt:    sqlparse.ParseStatement(text),
		aliases: AliasMap{},
		renamed: make(map[string]string),
		refFor:  make(map[string]string),
		edits:   newEdits(),
		warn:    &warnings{},
	}
	r.resolveTables(a)
	return a.aliases
}

func (r *Rewriter) requote(tok sqlparse.Token, name string) string {
	if tok.Kind == sqlparse.TokenQuotedIdent {
		return tok.Requote(name)
	}
	return r.ident(name)
}

// resolveTables resolves every FROM/JOIN reference (or the DML target) and
// builds the alias map from the resolved names.
func (r *Rewriter) resolveTables(a *adaptation) {
	for _, ref := range a.stmt.Tables {
		resolved, ok := r.matcher.ResolveTable(ref.Name)
		if !ok {
			a.warn.add("Warning: Table '%s' not found in database", ref.Name)
			continue
		}

		refText := ref.Ref()
		if resolved != ref.Name {
			a.edits.replace(ref.NameToken.Start, ref.NameToken.End, r.requote(ref.NameToken, resolved))
			a.warn.add("Table '%s' was replaced with '%s'", ref.Name, resolved)
			if ref.Alias == "" {
				a.renamed[strings.ToLower(ref.Name)] = resolved
				refText = resolved
			}
		}

		a.aliases.set(ref.Ref(), resolved)
		if _, seen := a.refFor[resolved]; !seen {
			a.refFor[resolved] = refText
		}
	}
}

// qualifierTable resolves the table a qualifier stands for, correcting the
// qualifier token when it used a renamed table or a near-miss table name.
func (r *Rewriter) qualifierTable(a *adaptation, tok sqlparse.Token) (string, bool) {
	q := tok.Name()
	if table, ok := a.aliases.Lookup(q); ok {
		if newName, renamed := a.renamed[strings.ToLower(q)]; renamed {
			a.edits.replace(tok.Start, tok.End, r.requote(tok, newName))
		}
		return table, true
	}

	resolved, ok := r.matcher.ResolveTable(q)
	if !ok {
		return "", false
	}
	ref, referenced := a.refFor[resolved]
	if !referenced {
		return "", false
	}
	a.edits.replace(tok.Start, tok.End, r.requote(tok, ref))
	a.warn.add("Table alias '%s' was replaced with '%s'", q, ref)
	return resolved, true
}

func adaptedClause(c sqlparse.Clause) bool {
	switch c {
	case sqlparse.ClauseSelect, sqlparse.ClauseWhere, sqlparse.ClauseOn,
		sqlparse.ClauseGroupBy, sqlparse.ClauseHaving, sqlparse.ClauseOrderBy:
		return true
	}
	return false
}

// adaptQualifiedColumns resolves alias.column references against the
// aliased table.
func (r *Rewriter) adaptQualifiedColumns(a *adaptation) {
	for _, col := range a.stmt.Columns {
		if !col.Qualified() || !adaptedClause(col.Clause) {
			continue
		}
		table, ok := r.qualifierTable(a, *col.QualifierToken)
		if !ok {
			continue
		}

		where := col.Clause == sqlparse.ClauseWhere
		q := col.Qualifier
		resolved, found := r.matcher.ResolveColumn(table, col.Name)
		switch {
		case !found && where:
			a.warn.add("Warning: Column '%s' in WHERE clause not found in table '%s'", col.Name, table)
		case !found:
			a.warn.add("Warning: Column '%s' not found in table '%s'", col.Name, table)
		case resolved != col.Name:
			a.edits.replace(col.NameToken.Start, col.NameToken.End, r.requote(col.NameToken, resolved))
			if where {
				a.warn.add("Column '%s.%s' in WHERE clause was replaced with '%s.%s'", q, col.Name, q, resolved)
			} else {
				a.warn.add("Column '%s.%s' was replaced with '%s.%s'", q, col.Name, q, resolved)
			}
		}
	}
}

// checkUnqualifiedSelectList reports bare SELECT-list columns that no
// referenced table contains. They are never rewritten: with several tables
// in scope the right owner is ambiguous.
func (r *Rewriter) checkUnqualifiedSelectList(a *adaptation) {
	tables := a.aliases.tables()
	outputNames := a.stmt.SelectAliases()

	for _, item := range a.stmt.SelectItems {
		if item.Column == nil || item.Column.Qualified() {
			continue
		}
		name := item.Column.Name
		if outputNames[strings.ToLower(name)] && !strings.EqualFold(item.Alias, name) {
			continue
		}

		found := false
		for _, t := range tables {
			if _, ok := r.matcher.ResolveColumn(t, name); ok {
				found = true
				break
			}
		}
		if !found {
			a.warn.add("Warning: Unqualified column '%s' not found in any referenced table", name)
		}
	}
}

// adaptTargetColumns handles the INSERT column list and UPDATE SET targets.
func (r *Rewriter) adaptTargetColumns(a *adaptation) {
	if a.stmt.Target == nil {
		return
	}
	table, ok := a.aliases.Lookup(a.stmt.Target.Ref())
	if !ok {
		return
	}

	var columns []sqlparse.ColumnRef
	switch a.stmt.Kind {
	case sqlparse.KindInsert:
		columns = a.stmt.InsertColumns
	case sqlparse.KindUpdate:
		columns = a.stmt.SetColumns
	}

	for _, col := range columns {
		resolved, found := r.matcher.ResolveColumn(table, col.Name)
		switch {
		case !found:
			a.warn.add("Warning: Column '%s' not found in table '%s'", col.Name, table)
		case resolved != col.Name:
			a.edits.replace(col.NameToken.Start, col.NameToken.End, r.requote(col.NameToken, resolved))
			a.warn.add("Column '%s' was replaced with '%s'", col.Name, resolved)
		}
	}
}
