package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a value libinjection flagged.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	ParamName   string // Parameter name, or the literal's position for literals
	ParamValue  any    // The value that was checked
}

// CheckParameterForInjection uses libinjection to detect SQL injection patterns
// in a parameter value.
//
// Only string values are checked. Returns nil when nothing is detected.
func CheckParameterForInjection(paramName string, value any) *InjectionCheckResult {
	strValue, ok := value.(string)
	if !ok {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(strValue)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			ParamName:   paramName,
			ParamValue:  value,
		}
	}

	return nil
}

// CheckLiterals runs every string literal of sqlText through libinjection.
// The result is advisory; statements are never rejected because of it.
func CheckLiterals(sqlText string) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for _, t := range Tokenize(sqlText) {
		if t.Kind != TokenString {
			continue
		}
		if result := CheckParameterForInjection(t.Text, UnquoteLiteral(t.Text)); result != nil {
			results = append(results, result)
		}
	}
	return results
}

// UnquoteLiteral strips the quotes of a single-quoted literal and undoubles
// embedded quotes.
func UnquoteLiteral(literal string) string {
	if len(literal) < 2 || literal[0] != '\'' {
		return literal
	}
	body := literal[1:]
	if body[len(body)-1] == '\'' {
		body = body[:len(body)-1]
	}
	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		out = append(out, body[i])
		if body[i] == '\'' && i+1 < len(body) && body[i+1] == '\'' {
			i++
		}
	}
	return string(out)
}
