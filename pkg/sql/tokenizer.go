package sql

import (
	"regexp"
	"strings"
)

// TokenKind classifies a lexical token.
type TokenKind int

const (
	TokenIdent TokenKind = iota
	TokenQuotedIdent
	TokenKeyword
	TokenString
	TokenNumber
	TokenParam
	TokenOperator
	TokenComma
	TokenDot
	TokenLParen
	TokenRParen
	TokenSemicolon
)

// Token is a lexeme with its byte offsets in the source text.
// Comments and whitespace produce no tokens.
type Token struct {
	Kind  TokenKind
	Text  string
	Start int
	End   int
}

// Is reports whether the token is the given keyword, case-insensitively.
func (t Token) Is(keyword string) bool {
	return t.Kind == TokenKeyword && strings.EqualFold(t.Text, keyword)
}

// IsIdentifier reports whether the token names something (bare or quoted).
func (t Token) IsIdentifier() bool {
	return t.Kind == TokenIdent || t.Kind == TokenQuotedIdent
}

// Name returns the identifier with any quoting removed.
func (t Token) Name() string {
	if t.Kind != TokenQuotedIdent || len(t.Text) < 2 {
		return t.Text
	}
	open, body := t.Text[0], t.Text[1:len(t.Text)-1]
	switch open {
	case '"':
		return strings.ReplaceAll(body, `""`, `"`)
	case '`':
		return strings.ReplaceAll(body, "``", "`")
	case '[':
		return strings.ReplaceAll(body, "]]", "]")
	}
	return body
}

// Requote renders name with the same quoting style as the token.
func (t Token) Requote(name string) string {
	if t.Kind != TokenQuotedIdent || len(t.Text) < 2 {
		return name
	}
	switch t.Text[0] {
	case '"':
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	case '`':
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	case '[':
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	}
	return name
}

var keywords = map[string]bool{
	"ALL": true, "ALTER": true, "AND": true, "AS": true, "ASC": true,
	"BETWEEN": true, "BY": true, "CASE": true, "CREATE": true, "CROSS": true,
	"DELETE": true, "DESC": true, "DESCRIBE": true, "DISTINCT": true, "DROP": true,
	"ELSE": true, "END": true, "EXCEPT": true, "EXISTS": true, "EXPLAIN": true,
	"FALSE": true, "FETCH": true, "FROM": true, "FULL": true, "GROUP": true,
	"HAVING": true, "ILIKE": true, "IN": true, "INNER": true, "INSERT": true,
	"INTERSECT": true, "INTO": true, "IS": true, "JOIN": true, "LEFT": true,
	"LIKE": true, "LIMIT": true, "NATURAL": true, "NOT": true, "NULL": true,
	"OFFSET": true, "ON": true, "OR": true, "ORDER": true, "OUTER": true,
	"RETURNING": true, "RIGHT": true, "SELECT": true, "SET": true, "SHOW": true,
	"THEN": true, "TOP": true, "TRUE": true, "TRUNCATE": true, "UNION": true,
	"UPDATE": true, "USING": true, "VALUES": true, "WHEN": true, "WHERE": true,
	"WITH": true,
}

// IsKeyword reports whether word is reserved by the tokenizer.
func IsKeyword(word string) bool {
	return keywords[strings.ToUpper(word)]
}

// Tokenize splits SQL text into tokens. It is quote- and comment-aware and
// never fails: unterminated strings or quoted identifiers run to the end of input.
func Tokenize(text string) []Token {
	var tokens []Token
	n := len(text)
	i := 0

	emit := func(kind TokenKind, start, end int) {
		tokens = append(tokens, Token{Kind: kind, Text: text[start:end], Start: start, End: end})
	}

	for i < n {
		c := text[i]
		switch {
		case isSpace(c):
			i++

		case c == '-' && i+1 < n && text[i+1] == '-':
			for i < n && text[i] != '\n' {
				i++
			}

		case c == '/' && i+1 < n && text[i+1] == '*':
			end := strings.Index(text[i+2:], "*/")
			if end < 0 {
				i = n
			} else {
				i += end + 4
			}

		case c == '\'':
			start := i
			i = scanQuoted(text, i, '\'', true)
			emit(TokenString, start, i)

		case c == '"' || c == '`':
			start := i
			i = scanQuoted(text, i, c, false)
			emit(TokenQuotedIdent, start, i)

		case c == '[':
			start := i
			i = scanQuoted(text, i, ']', false)
			emit(TokenQuotedIdent, start, i)

		case isDigit(c) || (c == '.' && i+1 < n && isDigit(text[i+1]) && !prevIsName(tokens, i)):
			start := i
			for i < n && (isDigit(text[i]) || text[i] == '.' ||
				((text[i] == 'e' || text[i] == 'E') && i+1 < n && (isDigit(text[i+1]) || text[i+1] == '-' || text[i+1] == '+'))) {
				if text[i] == 'e' || text[i] == 'E' {
					i++
				}
				i++
			}
			emit(TokenNumber, start, i)

		case isWordStart(c):
			start := i
			for i < n && isWordPart(text[i]) {
				i++
			}
			kind := TokenIdent
			if keywords[strings.ToUpper(text[start:i])] {
				kind = TokenKeyword
			}
			emit(kind, start, i)

		case c == '?' || (c == '$' && i+1 < n && isDigit(text[i+1])) ||
			(c == '@' && i+1 < n && isWordStart(text[i+1])) ||
			(c == ':' && i+1 < n && isWordStart(text[i+1]) && !prevIsColon(text, i)):
			start := i
			i++
			for i < n && isWordPart(text[i]) {
				i++
			}
			emit(TokenParam, start, i)

		case c == ',':
			emit(TokenComma, i, i+1)
			i++
		case c == '.':
			emit(TokenDot, i, i+1)
			i++
		case c == '(':
			emit(TokenLParen, i, i+1)
			i++
		case c == ')':
			emit(TokenRParen, i, i+1)
			i++
		case c == ';':
			emit(TokenSemicolon, i, i+1)
			i++

		default:
			start := i
			i++
			if i < n && isTwoCharOperator(text[start:i+1]) {
				i++
			}
			emit(TokenOperator, start, i)
		}
	}
	return tokens
}

// scanQuoted returns the offset just past a quoted run starting at i.
// A doubled closing character is an escaped literal; backslash escapes are
// honoured in string literals.
func scanQuoted(text string, i int, closing byte, backslash bool) int {
	n := len(text)
	i++
	for i < n {
		switch {
		case backslash && text[i] == '\\' && i+1 < n:
			i += 2
		case text[i] == closing:
			if i+1 < n && text[i+1] == closing {
				i += 2
				continue
			}
			return i + 1
		default:
			i++
		}
	}
	return n
}

func isTwoCharOperator(s string) bool {
	switch s {
	case "<=", ">=", "<>", "!=", "||", "::", "->", "=>":
		return true
	}
	return false
}

func prevIsName(tokens []Token, offset int) bool {
	if len(tokens) == 0 {
		return false
	}
	last := tokens[len(tokens)-1]
	return last.End == offset && (last.IsIdentifier() || last.Kind == TokenRParen)
}

func prevIsColon(text string, i int) bool {
	return i > 0 && text[i-1] == ':'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isWordStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isWordPart(c byte) bool {
	return isWordStart(c) || isDigit(c) || c == '$'
}

var plainIdentifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// QuoteIfNeeded returns name unchanged when it is a lower-case word that is
// not a keyword, and quote(name) otherwise.
func QuoteIfNeeded(name string, quote func(string) string) string {
	if plainIdentifier.MatchString(name) && !IsKeyword(name) {
		return name
	}
	return quote(name)
}
