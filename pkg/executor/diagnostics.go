package executor

import (
	"fmt"
	"regexp"
	"strings"

	sqlparse "github.com/ekaya-inc/ekaya-querykit/pkg/sql"
)

// Driver phrasings of "unknown column", lower-cased: mysql, sqlite,
// generic, postgres and sqlserver.
var unknownColumnPatterns = []*regexp.Regexp{
	regexp.MustCompile(`unknown column '([^']+)'`),
	regexp.MustCompile(`no such column[:]? ([^\s]+)`),
	regexp.MustCompile(`column '([^']+)' not found`),
	regexp.MustCompile(`column "?([^"\s]+)"? does not exist`),
	regexp.MustCompile(`invalid column name '([^']+)'`),
}

var unknownTablePatterns = []*regexp.Regexp{
	regexp.MustCompile(`table ['"]?([^'"\s]+)['"]?(?:\S+)? (?:not found|doesn't exist)`),
	regexp.MustCompile(`no such table[:]? ([^\s]+)`),
	regexp.MustCompile(`relation "?([^"\s]+)"? does not exist`),
	regexp.MustCompile(`invalid object name '([^']+)'`),
}

func firstMatch(patterns []*regexp.Regexp, err error) (string, bool) {
	if err == nil {
		return "", false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if m := p.FindStringSubmatch(msg); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// unknownColumn extracts the column a database error complains about.
func unknownColumn(err error) (string, bool) {
	return firstMatch(unknownColumnPatterns, err)
}

// unknownTable extracts the table a database error complains about,
// without any database or schema prefix.
func unknownTable(err error) (string, bool) {
	name, ok := firstMatch(unknownTablePatterns, err)
	if !ok {
		return "", false
	}
	if i := strings.LastIndex(name, "."); i >= 0 && i < len(name)-1 {
		name = name[i+1:]
	}
	return name, true
}

// columnDetail lists the main table's columns after an unknown-column error.
func (e *Executor) columnDetail(main string, err error) string {
	if _, ok := unknownColumn(err); !ok {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "\n\nAvailable columns in %s:", main)
	for _, col := range e.catalog.Columns(main) {
		b.WriteString("\n- ")
		b.WriteString(col)
	}
	return b.String()
}

// diagnose explains an execution error in terms of identifiers that exist.
func (e *Executor) diagnose(original string, err error) []string {
	var out []string

	if column, ok := unknownColumn(err); ok {
		if qualifier, name, qualified := strings.Cut(column, "."); qualified {
			table, found := e.rewriter.AliasesFor(original).Lookup(qualifier)
			if !found {
				return out
			}
			out = append(out, fmt.Sprintf("Table alias '%s' refers to table '%s'", qualifier, table))
			return append(out, e.columnHints(table, name)...)
		}

		for _, table := range e.referencedTables(original) {
			out = append(out, e.columnHints(table, column)...)
		}
		return out
	}

	if table, ok := unknownTable(err); ok {
		out = append(out, fmt.Sprintf("Available tables: %s", strings.Join(e.catalog.Tables(), ", ")))
		if actual, found := e.matcher.ResolveTable(table); found {
			out = append(out, fmt.Sprintf("Suggestion: Table '%s' might be '%s'", table, actual))
		}
	}
	return out
}

func (e *Executor) columnHints(table, column string) []string {
	out := []string{fmt.Sprintf("Available columns in table '%s': %s", table, strings.Join(e.catalog.Columns(table), ", "))}
	if actual, ok := e.matcher.ResolveColumn(table, column); ok {
		out = append(out, fmt.Sprintf("Suggestion: Column '%s' might be '%s' in table '%s'", column, actual, table))
	}
	return out
}

// referencedTables resolves the FROM/JOIN tables of text in query order.
func (e *Executor) referencedTables(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ref := range sqlparse.ParseStatement(text).Tables {
		if t, ok := e.matcher.ResolveTable(ref.Name); ok && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
