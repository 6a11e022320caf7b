// Package sqlguard checks user-supplied queries before a reader wraps them.
package sqlguard

import (
	"errors"
	"strings"
	"unicode"
)

var (
	// ErrEmptyQuery indicates the query has no statement text.
	ErrEmptyQuery = errors.New("query is empty")

	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")

	// ErrNotReadOnly indicates the statement does not start with SELECT or WITH.
	ErrNotReadOnly = errors.New("only SELECT queries (optionally starting with WITH) can be read")
)

// ValidateReadQuery checks that query is one SELECT statement and returns it
// without surrounding whitespace or a trailing semicolon.
//
// The checks run in order:
// 1. Strip whitespace and one trailing semicolon
// 2. Reject any remaining semicolon outside literals and comments
// 3. Require SELECT or WITH as the first keyword after comments
//
// This is not a security boundary. Data-modifying CTEs still pass; readers
// run queries in read-only transactions where the driver allows it.
func ValidateReadQuery(query string) (string, error) {
	normalized := stripTrailingSemicolon(strings.TrimSpace(query))
	if normalized == "" {
		return "", ErrEmptyQuery
	}

	if hasSemicolonOutsideStrings(normalized) {
		return "", ErrMultipleStatements
	}

	switch strings.ToUpper(FirstKeyword(normalized)) {
	case "SELECT", "WITH":
		return normalized, nil
	case "":
		return "", ErrEmptyQuery
	default:
		return "", ErrNotReadOnly
	}
}

// hasSemicolonOutsideStrings returns true if the SQL contains a semicolon
// outside of string literals, quoted identifiers and comments.
func hasSemicolonOutsideStrings(query string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
		stateBracket
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	runes := []rune(query)

	for i := 0; i < len(runes); i++ {
		char := runes[i]
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch state {
		case stateNormal:
			switch {
			case char == ';':
				return true
			case char == '\'':
				state = stateSingleQuote
			case char == '"':
				state = stateDoubleQuote
			case char == '[':
				state = stateBracket
			case char == '-' && next == '-':
				state = stateLineComment
				i++
			case char == '/' && next == '*':
				state = stateBlockComment
				i++
			}
		case stateSingleQuote:
			// A doubled quote ('') exits and immediately re-enters.
			if char == '\'' && (i == 0 || runes[i-1] != '\\') {
				state = stateNormal
			}
		case stateDoubleQuote:
			if char == '"' {
				state = stateNormal
			}
		case stateBracket:
			if char == ']' {
				state = stateNormal
			}
		case stateLineComment:
			if char == '\n' {
				state = stateNormal
			}
		case stateBlockComment:
			if char == '*' && next == '/' {
				state = stateNormal
				i++
			}
		}
	}

	return false
}

// FirstKeyword returns the first word of query after leading comments and
// opening parentheses, or "" when there is none.
func FirstKeyword(query string) string {
	s := query
	for {
		s = strings.TrimLeftFunc(s, func(r rune) bool { return unicode.IsSpace(r) || r == '(' })
		switch {
		case strings.HasPrefix(s, "--"):
			end := strings.IndexByte(s, '\n')
			if end < 0 {
				return ""
			}
			s = s[end+1:]
		case strings.HasPrefix(s, "/*"):
			end := strings.Index(s, "*/")
			if end < 0 {
				return ""
			}
			s = s[end+2:]
		default:
			end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
			if end < 0 {
				return s
			}
			return s[:end]
		}
	}
}

// stripTrailingSemicolon removes a trailing semicolon and any whitespace after it.
func stripTrailingSemicolon(query string) string {
	query = strings.TrimRight(query, " \t\n\r")
	if strings.HasSuffix(query, ";") {
		query = strings.TrimSuffix(query, ";")
		query = strings.TrimRight(query, " \t\n\r")
	}
	return query
}
