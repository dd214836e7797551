// Package sql provides the tokenizer, statement scanner and input cleaning
// used by the query rewriter.
package sql

import (
	"strings"

	"github.com/ekaya-inc/ekaya-querykit/pkg/apperrors"
)

// ValidationResult contains the normalized SQL and any validation errors.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize strips the trailing semicolon and rejects input that
// holds more than one statement. Semicolons inside literals, quoted
// identifiers and comments don't count.
func ValidateAndNormalize(sqlQuery string) ValidationResult {
	sqlQuery = strings.TrimSpace(sqlQuery)
	if sqlQuery == "" {
		return ValidationResult{Error: apperrors.ErrEmptyQuery}
	}

	tokens := Tokenize(sqlQuery)
	if len(tokens) == 0 {
		return ValidationResult{Error: apperrors.ErrEmptyQuery}
	}

	normalized := sqlQuery
	last := tokens[len(tokens)-1]
	if last.Kind == TokenSemicolon {
		normalized = strings.TrimRight(sqlQuery[:last.Start], " \t\n\r")
		tokens = tokens[:len(tokens)-1]
	}

	for _, t := range tokens {
		if t.Kind == TokenSemicolon {
			return ValidationResult{Error: apperrors.ErrMultipleStatements}
		}
	}

	if len(tokens) == 0 {
		return ValidationResult{Error: apperrors.ErrEmptyQuery}
	}

	return ValidationResult{NormalizedSQL: normalized}
}
