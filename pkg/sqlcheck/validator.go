// Package sqlcheck performs structural validation of generated SQL
// before the quality gate scores it. It never executes anything.
package sqlcheck

import (
	"regexp"
	"strings"
)

// Issue is one structural problem found in a statement.
type Issue string

const (
	IssueEmpty              Issue = "empty statement"
	IssueNotSelect          Issue = "not a SELECT statement"
	IssueMultipleStatements Issue = "multiple statements"
	IssueUnbalancedParens   Issue = "unbalanced parentheses"
	IssueUnbalancedQuotes   Issue = "unterminated string literal"
	IssueForbiddenKeyword   Issue = "forbidden keyword"
	IssueInjectionPattern   Issue = "injection-shaped content"
)

// Result is the outcome of structural validation.
type Result struct {
	Normalized string
	Issues     []Issue
}

// Valid reports whether no issues were found.
func (r Result) Valid() bool { return len(r.Issues) == 0 }

var forbiddenKeywords = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|truncate|alter|create|grant|revoke|exec|execute)\b`)

// Validate normalizes a generated statement and collects structural
// issues. Only single SELECT statements are acceptable output; anything
// mutating is rejected outright.
func Validate(sql string) Result {
	normalized := normalize(sql)
	var issues []Issue

	if normalized == "" {
		return Result{Issues: []Issue{IssueEmpty}}
	}
	upper := strings.ToUpper(normalized)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		issues = append(issues, IssueNotSelect)
	}
	if hasSemicolonOutsideStrings(normalized) {
		issues = append(issues, IssueMultipleStatements)
	}
	if !balancedParens(normalized) {
		issues = append(issues, IssueUnbalancedParens)
	}
	if !balancedQuotes(normalized) {
		issues = append(issues, IssueUnbalancedQuotes)
	}
	if forbiddenKeywords.MatchString(normalized) {
		issues = append(issues, IssueForbiddenKeyword)
	}
	if injectionShaped(normalized) {
		issues = append(issues, IssueInjectionPattern)
	}

	return Result{Normalized: normalized, Issues: issues}
}

// normalize strips markdown fences the models like to wrap SQL in, plus
// surrounding whitespace and a trailing semicolon.
func normalize(sql string) string {
	s := strings.TrimSpace(sql)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```sql")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	s = strings.TrimSuffix(s, ";")
	return strings.TrimSpace(s)
}

// hasSemicolonOutsideStrings detects additional statements after the
// trailing semicolon was stripped.
func hasSemicolonOutsideStrings(sql string) bool {
	inSingle, inDouble := false, false
	var prev rune
	for _, ch := range sql {
		switch {
		case inSingle:
			if ch == '\'' && prev != '\\' {
				inSingle = false
			}
		case inDouble:
			if ch == '"' && prev != '\\' {
				inDouble = false
			}
		default:
			switch ch {
			case ';':
				return true
			case '\'':
				inSingle = true
			case '"':
				inDouble = true
			}
		}
		prev = ch
	}
	return false
}

func balancedParens(sql string) bool {
	depth := 0
	inSingle := false
	var prev rune
	for _, ch := range sql {
		if inSingle {
			if ch == '\'' && prev != '\\' {
				inSingle = false
			}
			prev = ch
			continue
		}
		switch ch {
		case '\'':
			inSingle = true
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
		prev = ch
	}
	return depth == 0
}

func balancedQuotes(sql string) bool {
	inSingle := false
	var prev rune
	for _, ch := range sql {
		if ch == '\'' && prev != '\\' {
			inSingle = !inSingle
		}
		prev = ch
	}
	return !inSingle
}

// ReferencedIdentifiers extracts lowercase table/column-looking tokens
// for semantic plausibility scoring against the schema selection.
var identifierPattern = regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*)?`)

var sqlKeywords = map[string]bool{
	"select": true, "from": true, "where": true, "join": true, "inner": true,
	"left": true, "right": true, "outer": true, "on": true, "group": true,
	"by": true, "order": true, "having": true, "limit": true, "offset": true,
	"as": true, "and": true, "or": true, "not": true, "in": true, "is": true,
	"null": true, "sum": true, "count": true, "avg": true, "min": true,
	"max": true, "distinct": true, "case": true, "when": true, "then": true,
	"else": true, "end": true, "between": true, "like": true, "asc": true,
	"desc": true, "with": true, "union": true, "all": true, "date": true,
	"interval": true, "extract": true, "cast": true, "coalesce": true,
}

// ReferencedIdentifiers returns the non-keyword identifiers in the SQL.
func ReferencedIdentifiers(sql string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tok := range identifierPattern.FindAllString(sql, -1) {
		lower := strings.ToLower(tok)
		if sqlKeywords[lower] || seen[lower] {
			continue
		}
		seen[lower] = true
		out = append(out, lower)
	}
	return out
}
