package sql

import "strings"

// StatementKind is the statement class decided by the leading keyword.
type StatementKind int

const (
	KindOther StatementKind = iota
	KindSelect
	KindInsert
	KindUpdate
	KindDelete
)

func (k StatementKind) String() string {
	switch k {
	case KindSelect:
		return "SELECT"
	case KindInsert:
		return "INSERT"
	case KindUpdate:
		return "UPDATE"
	case KindDelete:
		return "DELETE"
	}
	return "OTHER"
}

// Clause names the statement section a token belongs to.
type Clause int

const (
	ClauseNone Clause = iota
	ClauseSelect
	ClauseFrom
	ClauseOn
	ClauseWhere
	ClauseGroupBy
	ClauseHaving
	ClauseOrderBy
	ClauseLimit
	ClauseSet
	ClauseValues
	ClauseReturning
)

// TableRef is a table named in FROM/JOIN or as a DML target.
type TableRef struct {
	Schema    string
	Name      string
	Alias     string
	NameToken Token
	// Start is the offset of the first name part; End is past the alias if any.
	Start int
	End   int
	// Depth is the parenthesis depth; zero for the outer statement.
	Depth int
}

// Ref is how the query refers to the table: its alias, or its name.
func (t TableRef) Ref() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.Name
}

// ColumnRef is a column reference, optionally qualified by a table or alias.
type ColumnRef struct {
	Qualifier      string
	QualifierToken *Token
	Name           string
	NameToken      Token
	Clause         Clause
}

// Qualified reports whether the reference carries a qualifier.
func (c ColumnRef) Qualified() bool {
	return c.QualifierToken != nil
}

// SelectItem is one expression of the outer SELECT list.
type SelectItem struct {
	Text  string
	Start int
	End   int
	Star  bool
	Alias string
	// Column is set when the item is a plain (possibly qualified) column.
	Column *ColumnRef
}

// ClauseMark records where a top-level clause keyword begins.
type ClauseMark struct {
	Clause Clause
	Start  int
}

// Statement is the shallow structure of a single SQL statement.
type Statement struct {
	Text          string
	Tokens        []Token
	Kind          StatementKind
	Tables        []TableRef
	Target        *TableRef
	Columns       []ColumnRef
	SelectItems   []SelectItem
	InsertColumns []ColumnRef
	SetColumns    []ColumnRef
	Clauses       []ClauseMark
}

// SelectAliases returns the output names the SELECT list defines.
func (s *Statement) SelectAliases() map[string]bool {
	aliases := make(map[string]bool)
	for _, item := range s.SelectItems {
		if item.Alias != "" {
			aliases[strings.ToLower(item.Alias)] = true
		}
	}
	return aliases
}

// ClauseStart returns the offset of the first top-level clause of any of the
// given kinds that begins at or after offset.
func (s *Statement) ClauseStart(offset int, clauses ...Clause) (int, bool) {
	for _, m := range s.Clauses {
		if m.Start < offset {
			continue
		}
		for _, c := range clauses {
			if m.Clause == c {
				return m.Start, true
			}
		}
	}
	return 0, false
}

// ClassifyStatement returns the statement kind from its leading keyword.
// WITH, DDL and SHOW statements are KindOther.
func ClassifyStatement(text string) StatementKind {
	tokens := Tokenize(text)
	for _, t := range tokens {
		if t.Kind == TokenLParen {
			continue
		}
		return kindOf(t)
	}
	return KindOther
}

func kindOf(t Token) StatementKind {
	switch {
	case t.Is("SELECT"):
		return KindSelect
	case t.Is("INSERT"):
		return KindInsert
	case t.Is("UPDATE"):
		return KindUpdate
	case t.Is("DELETE"):
		return KindDelete
	}
	return KindOther
}

type frame struct {
	clause      Clause
	expectTable bool
}

type parser struct {
	stmt   *Statement
	tokens []Token
	pos    int
	frames []frame
	// selectDone is set once the outer SELECT list has been closed.
	selectDone bool
	inSelect   bool
	itemStart  int
	// expectTarget is set after UPDATE / INSERT INTO / DELETE FROM.
	expectTarget bool
}

// ParseStatement extracts table references, column references and clause
// boundaries from a single statement. It is a shallow scan over tokens, not
// a grammar: unrecognized syntax is skipped rather than rejected.
func ParseStatement(text string) *Statement {
	tokens := Tokenize(text)
	stmt := &Statement{Text: text, Tokens: tokens}
	if len(tokens) == 0 {
		return stmt
	}
	stmt.Kind = kindOf(tokens[0])
	if stmt.Kind == KindOther {
		return stmt
	}

	p := &parser{stmt: stmt, tokens: tokens, frames: []frame{{}}, itemStart: -1}
	p.run()
	return stmt
}

func (p *parser) top() *frame {
	return &p.frames[len(p.frames)-1]
}

func (p *parser) depth() int {
	return len(p.frames) - 1
}

func (p *parser) peek(offset int) (Token, bool) {
	i := p.pos + offset
	if i < 0 || i >= len(p.tokens) {
		return Token{}, false
	}
	return p.tokens[i], true
}

func (p *parser) mark(c Clause, t Token) {
	p.top().clause = c
	p.top().expectTable = false
	if p.depth() == 0 {
		p.stmt.Clauses = append(p.stmt.Clauses, ClauseMark{Clause: c, Start: t.Start})
	}
}

func (p *parser) run() {
	for p.pos < len(p.tokens) {
		t := p.tokens[p.pos]

		if p.inSelect && p.depth() == 0 && p.endsSelectList(t) {
			p.closeSelectItem()
			p.inSelect = false
			p.selectDone = true
		}

		switch t.Kind {
		case TokenKeyword:
			p.keyword(t)
			continue
		case TokenLParen:
			p.trackItem()
			p.frames = append(p.frames, frame{clause: p.top().clause})
			p.pos++
			continue
		case TokenRParen:
			p.trackItem()
			if len(p.frames) > 1 {
				p.frames = p.frames[:len(p.frames)-1]
				if p.top().clause == ClauseFrom {
					p.skipAlias()
					continue
				}
			}
			p.pos++
			continue
		case TokenComma:
			if p.inSelect && p.depth() == 0 {
				p.closeSelectItem()
			} else if p.top().clause == ClauseFrom {
				p.top().expectTable = true
			}
			p.pos++
			continue
		case TokenSemicolon:
			if p.inSelect {
				p.closeSelectItem()
				p.inSelect = false
			}
			p.pos = len(p.tokens)
			continue
		}

		if t.IsIdentifier() {
			if p.expectTarget {
				p.expectTarget = false
				ref := p.tableRef()
				p.stmt.Target = &ref
				p.stmt.Tables = append(p.stmt.Tables, ref)
				if p.stmt.Kind == KindInsert {
					p.insertColumns()
				}
				continue
			}
			if p.top().clause == ClauseFrom && p.top().expectTable {
				p.top().expectTable = false
				p.stmt.Tables = append(p.stmt.Tables, p.tableRef())
				continue
			}
			p.trackItem()
			p.column()
			continue
		}

		p.trackItem()
		p.pos++
	}

	if p.inSelect {
		p.closeSelectItem()
	}
}

func (p *parser) endsSelectList(t Token) bool {
	if t.Kind != TokenKeyword {
		return false
	}
	switch strings.ToUpper(t.Text) {
	case "FROM", "INTO", "WHERE", "GROUP", "HAVING", "ORDER", "LIMIT", "UNION", "INTERSECT", "EXCEPT", "FETCH", "OFFSET":
		return true
	}
	return false
}

func (p *parser) keyword(t Token) {
	word := strings.ToUpper(t.Text)
	f := p.top()

	switch word {
	case "SELECT":
		p.mark(ClauseSelect, t)
		if p.depth() == 0 && !p.selectDone && !p.inSelect {
			p.inSelect = true
			p.itemStart = -1
		}
	case "FROM":
		if p.stmt.Kind == KindDelete && p.depth() == 0 && p.stmt.Target == nil {
			p.mark(ClauseFrom, t)
			p.expectTarget = true
		} else {
			p.mark(ClauseFrom, t)
			f.expectTable = true
		}
	case "JOIN":
		p.mark(ClauseFrom, t)
		f.expectTable = true
	case "USING":
		if p.stmt.Kind == KindDelete && p.depth() == 0 {
			p.mark(ClauseFrom, t)
			f.expectTable = true
		} else {
			p.mark(ClauseOn, t)
		}
	case "ON":
		p.mark(ClauseOn, t)
	case "WHERE":
		p.mark(ClauseWhere, t)
	case "GROUP":
		p.mark(ClauseGroupBy, t)
	case "HAVING":
		p.mark(ClauseHaving, t)
	case "ORDER":
		p.mark(ClauseOrderBy, t)
	case "LIMIT", "OFFSET", "FETCH":
		p.mark(ClauseLimit, t)
	case "SET":
		if p.stmt.Kind == KindUpdate && p.depth() == 0 {
			p.mark(ClauseSet, t)
		}
	case "VALUES":
		p.mark(ClauseValues, t)
	case "RETURNING":
		p.mark(ClauseReturning, t)
	case "UNION", "INTERSECT", "EXCEPT":
		p.mark(ClauseNone, t)
	case "UPDATE":
		if p.pos == 0 {
			p.expectTarget = true
		}
	case "INTO":
		if p.stmt.Kind == KindInsert && p.depth() == 0 && p.stmt.Target == nil {
			p.expectTarget = true
		}
	case "AS":
		if f.clause != ClauseFrom {
			// An output alias is a name, not a column reference.
			p.trackItem()
			p.pos++
			if next, ok := p.peek(0); ok && next.IsIdentifier() {
				p.trackItem()
				p.pos++
			}
			return
		}
	case "DISTINCT", "ALL":
		if p.inSelect && p.itemStart < 0 {
			p.pos++
			return
		}
	case "TOP":
		if p.inSelect && p.itemStart < 0 {
			p.pos++
			if next, ok := p.peek(0); ok && next.Kind == TokenNumber {
				p.pos++
			}
			return
		}
	default:
		p.trackItem()
	}
	p.pos++
}

// tableRef consumes [schema.]name [[AS] alias] starting at the current token.
func (p *parser) tableRef() TableRef {
	first := p.tokens[p.pos]
	ref := TableRef{NameToken: first, Name: first.Name(), Start: first.Start, End: first.End, Depth: p.depth()}
	p.pos++

	for {
		dot, ok1 := p.peek(0)
		part, ok2 := p.peek(1)
		if !ok1 || !ok2 || dot.Kind != TokenDot || !part.IsIdentifier() {
			break
		}
		ref.Schema = ref.Name
		ref.NameToken = part
		ref.Name = part.Name()
		ref.End = part.End
		p.pos += 2
	}

	if next, ok := p.peek(0); ok {
		switch {
		case next.Is("AS"):
			if alias, ok := p.peek(1); ok && alias.IsIdentifier() {
				ref.Alias = alias.Name()
				ref.End = alias.End
				p.pos += 2
			}
		case next.IsIdentifier():
			ref.Alias = next.Name()
			ref.End = next.End
			p.pos++
		}
	}
	return ref
}

// skipAlias steps over ") [AS] alias" after a derived table.
func (p *parser) skipAlias() {
	p.pos++
	if next, ok := p.peek(0); ok && next.Is("AS") {
		p.pos++
	}
	if next, ok := p.peek(0); ok && next.IsIdentifier() {
		p.pos++
	}
}

// insertColumns consumes an explicit "(a, b, c)" column list after the INSERT target.
func (p *parser) insertColumns() {
	open, ok := p.peek(0)
	if !ok || open.Kind != TokenLParen {
		return
	}
	p.pos++
	for p.pos < len(p.tokens) {
		t := p.tokens[p.pos]
		p.pos++
		switch {
		case t.Kind == TokenRParen:
			return
		case t.IsIdentifier():
			p.stmt.InsertColumns = append(p.stmt.InsertColumns, ColumnRef{Name: t.Name(), NameToken: t, Clause: ClauseValues})
		}
	}
}

// column consumes an identifier outside table position: a function name,
// a qualified reference, an alias, or an unqualified column.
func (p *parser) column() {
	t := p.tokens[p.pos]
	clause := p.top().clause

	if next, ok := p.peek(1); ok && next.Kind == TokenLParen {
		p.pos++
		return
	}

	if next, ok := p.peek(1); ok && next.Kind == TokenDot {
		p.qualifiedColumn(clause)
		return
	}

	if prev, ok := p.peek(-1); ok && isAliasPredecessor(prev) && clause != ClauseSet && clause != ClauseValues {
		if top, ok := p.peek(-2); !ok || !top.Is("TOP") {
			p.pos++
			return
		}
	}

	ref := ColumnRef{Name: t.Name(), NameToken: t, Clause: clause}
	p.pos++

	if clause == ClauseSet && p.depth() == 0 && p.isAssignment() {
		p.stmt.SetColumns = append(p.stmt.SetColumns, ref)
		return
	}
	if clause == ClauseValues || clause == ClauseNone || clause == ClauseLimit {
		return
	}
	p.stmt.Columns = append(p.stmt.Columns, ref)
}

// qualifiedColumn consumes a.b, a.b.c or a.* at the current position.
func (p *parser) qualifiedColumn(clause Clause) {
	parts := []Token{p.tokens[p.pos]}
	p.pos++
	for {
		dot, ok1 := p.peek(0)
		part, ok2 := p.peek(1)
		if !ok1 || !ok2 || dot.Kind != TokenDot {
			break
		}
		if part.Kind == TokenOperator && part.Text == "*" {
			p.pos += 2
			p.trackItemAt(part)
			return
		}
		if !part.IsIdentifier() {
			break
		}
		parts = append(parts, part)
		p.pos += 2
	}
	p.trackItemAt(parts[len(parts)-1])

	if len(parts) < 2 {
		return
	}
	qualifier := parts[len(parts)-2]
	name := parts[len(parts)-1]
	ref := ColumnRef{
		Qualifier:      qualifier.Name(),
		QualifierToken: &qualifier,
		Name:           name.Name(),
		NameToken:      name,
		Clause:         clause,
	}

	if clause == ClauseSet && p.depth() == 0 && p.isAssignment() {
		p.stmt.SetColumns = append(p.stmt.SetColumns, ref)
		return
	}
	if clause == ClauseValues || clause == ClauseNone {
		return
	}
	p.stmt.Columns = append(p.stmt.Columns, ref)
}

// isAssignment reports whether the current token is "=" (the left side of SET x = ...).
func (p *parser) isAssignment() bool {
	next, ok := p.peek(0)
	if !ok || next.Kind != TokenOperator || next.Text != "=" {
		return false
	}
	prev, ok := p.peek(-2)
	return !ok || prev.Is("SET") || prev.Kind == TokenComma || prev.Kind == TokenDot
}

func isAliasPredecessor(t Token) bool {
	switch t.Kind {
	case TokenIdent, TokenQuotedIdent, TokenString, TokenNumber, TokenRParen:
		return true
	}
	return t.Is("END")
}

// trackItem extends the current SELECT item with the token at the cursor.
func (p *parser) trackItem() {
	if p.pos < len(p.tokens) {
		p.trackItemAt(p.tokens[p.pos])
	}
}

func (p *parser) trackItemAt(t Token) {
	if !p.inSelect {
		return
	}
	if p.itemStart < 0 {
		p.itemStart = t.Start
	}
}

// closeSelectItem finalizes the item spanning itemStart to the previous token.
func (p *parser) closeSelectItem() {
	if p.itemStart < 0 {
		return
	}
	end := p.itemStart
	for i := p.pos - 1; i >= 0; i-- {
		if p.tokens[i].Start >= p.itemStart {
			end = p.tokens[i].End
			break
		}
	}
	p.stmt.SelectItems = append(p.stmt.SelectItems, buildSelectItem(p.stmt, p.itemStart, end))
	p.itemStart = -1
}

func buildSelectItem(stmt *Statement, start, end int) SelectItem {
	item := SelectItem{Text: stmt.Text[start:end], Start: start, End: end}

	var toks []Token
	for _, t := range stmt.Tokens {
		if t.Start >= start && t.End <= end {
			toks = append(toks, t)
		}
	}

	// Trailing alias: "expr AS name" or "expr name".
	if n := len(toks); n >= 2 && toks[n-1].IsIdentifier() {
		prev := toks[n-2]
		if prev.Is("AS") {
			item.Alias = toks[n-1].Name()
			toks = toks[:n-2]
		} else if isAliasPredecessor(prev) {
			item.Alias = toks[n-1].Name()
			toks = toks[:n-1]
		}
	}

	switch {
	case len(toks) == 1 && toks[0].Kind == TokenOperator && toks[0].Text == "*":
		item.Star = true
	case len(toks) == 3 && toks[1].Kind == TokenDot && toks[2].Text == "*":
		item.Star = true
	case len(toks) == 1 && toks[0].IsIdentifier():
		item.Column = &ColumnRef{Name: toks[0].Name(), NameToken: toks[0], Clause: ClauseSelect}
	case len(toks) == 3 && toks[0].IsIdentifier() && toks[1].Kind == TokenDot && toks[2].IsIdentifier():
		q := toks[0]
		item.Column = &ColumnRef{Qualifier: q.Name(), QualifierToken: &q, Name: toks[2].Name(), NameToken: toks[2], Clause: ClauseSelect}
	}
	return item
}
