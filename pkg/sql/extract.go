package sql

import (
	"regexp"
	"strings"

	"github.com/ekaya-inc/ekaya-querykit/pkg/apperrors"
)

var (
	sqlFencePattern  = regexp.MustCompile("(?is)```\\s*sql\\s*\\n?(.*?)(```|$)")
	anyFencePattern  = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n?(.*?)```")
	statementPattern = regexp.MustCompile(`(?im)^\s*(SELECT|INSERT|UPDATE|DELETE|WITH)\b`)
)

// ExtractSQL pulls a single SQL statement out of a model response.
// A ```sql fence wins, then any fenced block, then the first line starting
// with a statement keyword. Leading prose is dropped and the statement ends at
// its first top-level semicolon.
func ExtractSQL(response string) (string, error) {
	text := response

	if m := sqlFencePattern.FindStringSubmatch(text); m != nil {
		text = m[1]
	} else if m := anyFencePattern.FindStringSubmatch(text); m != nil {
		text = m[1]
	} else {
		text = strings.ReplaceAll(text, "```", "")
	}

	if loc := statementPattern.FindStringIndex(text); loc != nil {
		text = text[loc[0]:]
	}

	for _, t := range Tokenize(text) {
		if t.Kind == TokenSemicolon {
			text = text[:t.End]
			break
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperrors.ErrNoSQLInResponse
	}
	return text, nil
}
