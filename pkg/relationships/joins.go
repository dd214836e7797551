package relationships

import (
	"fmt"
	"sort"
	"strings"

	sqlparse "github.com/ekaya-inc/ekaya-querykit/pkg/sql"
)

type splice struct {
	start, end int
	text       string
}

// ValidateJoinConditions checks "ON a.x = b.y" conditions against the
// catalog. A condition naming a missing column is replaced by the strongest
// relationship between the two tables, keeping the original qualifiers.
// Conditions between unknown tables, or tables with no relationship, are left
// unchanged.
func (g *Graph) ValidateJoinConditions(sqlText string) (string, []string) {
	stmt := sqlparse.ParseStatement(sqlText)
	if len(stmt.Tables) < 2 {
		return sqlText, nil
	}

	aliases := make(map[string]string, len(stmt.Tables))
	for _, t := range stmt.Tables {
		if g.catalog.HasTable(t.Name) {
			aliases[strings.ToLower(t.Ref())] = t.Name
		}
	}

	var warnings []string
	var splices []splice
	toks := stmt.Tokens
	for i := 0; i+8 <= len(toks); i++ {
		if !toks[i].Is("ON") {
			continue
		}
		cond := toks[i+1 : i+8]
		if !isEquiJoin(cond) {
			continue
		}
		q1, c1, q2, c2 := cond[0], cond[2], cond[4], cond[6]
		t1, ok1 := aliases[strings.ToLower(q1.Name())]
		t2, ok2 := aliases[strings.ToLower(q2.Name())]
		if !ok1 || !ok2 {
			continue
		}
		tab1, _ := g.catalog.Table(t1)
		tab2, _ := g.catalog.Table(t2)
		if tab1.HasColumn(c1.Name()) && tab2.HasColumn(c2.Name()) {
			continue
		}

		rel, ok := g.Between(t1, t2)
		if !ok {
			continue
		}
		left, right := rel.SourceColumn, rel.TargetColumn
		if rel.SourceTable != t1 {
			left, right = rel.TargetColumn, rel.SourceColumn
		}

		original := sqlText[cond[0].Start:cond[6].End]
		fixed := fmt.Sprintf("%s.%s = %s.%s", q1.Text, left, q2.Text, right)
		splices = append(splices, splice{start: cond[0].Start, end: cond[6].End, text: fixed})
		warnings = append(warnings, fmt.Sprintf("Join condition '%s' was replaced with '%s'", original, fixed))
	}

	return applySplices(sqlText, splices), warnings
}

// isEquiJoin matches: ident . ident = ident . ident
func isEquiJoin(t []sqlparse.Token) bool {
	return t[0].IsIdentifier() && t[1].Kind == sqlparse.TokenDot && t[2].IsIdentifier() &&
		t[3].Kind == sqlparse.TokenOperator && t[3].Text == "=" &&
		t[4].IsIdentifier() && t[5].Kind == sqlparse.TokenDot && t[6].IsIdentifier()
}

func applySplices(text string, splices []splice) string {
	if len(splices) == 0 {
		return text
	}
	sort.Slice(splices, func(i, j int) bool { return splices[i].start > splices[j].start })
	for _, s := range splices {
		text = text[:s.start] + s.text + text[s.end:]
	}
	return text
}
