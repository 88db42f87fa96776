package sqlcheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_AcceptsWellFormedSelect(t *testing.T) {
	result := Validate("SELECT player_id, SUM(bet_amount) FROM bet_transactions GROUP BY player_id")
	assert.True(t, result.Valid(), "issues: %v", result.Issues)
}

func TestValidate_StripsMarkdownFences(t *testing.T) {
	result := Validate("```sql\nSELECT 1 FROM games;\n```")
	assert.True(t, result.Valid(), "issues: %v", result.Issues)
	assert.Equal(t, "SELECT 1 FROM games", result.Normalized)
}

func TestValidate_RejectsMutations(t *testing.T) {
	for _, sql := range []string{
		"DELETE FROM players",
		"SELECT 1; DROP TABLE players",
		"UPDATE players SET balance = 0",
	} {
		result := Validate(sql)
		assert.False(t, result.Valid(), "must reject %q", sql)
	}
}

func TestValidate_Issues(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want Issue
	}{
		{"empty", "   ", IssueEmpty},
		{"not select", "EXPLAIN SELECT 1", IssueNotSelect},
		{"second statement", "SELECT 1; SELECT 2", IssueMultipleStatements},
		{"unbalanced parens", "SELECT SUM(x FROM t", IssueUnbalancedParens},
		{"unterminated literal", "SELECT * FROM t WHERE name = 'abc", IssueUnbalancedQuotes},
		{"forbidden keyword", "SELECT * FROM t; TRUNCATE t2", IssueForbiddenKeyword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.sql)
			assert.Contains(t, result.Issues, tt.want)
		})
	}
}

func TestValidate_SemicolonInsideLiteralIsFine(t *testing.T) {
	result := Validate("SELECT * FROM games WHERE name = 'a;b'")
	assert.True(t, result.Valid(), "issues: %v", result.Issues)
}

func TestValidate_WithCTEAccepted(t *testing.T) {
	result := Validate("WITH daily AS (SELECT 1 AS x) SELECT x FROM daily")
	assert.True(t, result.Valid(), "issues: %v", result.Issues)
}

func TestValidate_InjectionShapedLiteral(t *testing.T) {
	result := Validate("SELECT * FROM players WHERE name = '1 OR 1=1 UNION SELECT password FROM users --'")
	assert.Contains(t, result.Issues, IssueInjectionPattern)
}

func TestReferencedIdentifiers(t *testing.T) {
	ids := ReferencedIdentifiers("SELECT p.player_id, SUM(bet_amount) FROM bet_transactions AS p GROUP BY p.player_id")

	assert.Contains(t, ids, "p.player_id")
	assert.Contains(t, ids, "bet_amount")
	assert.Contains(t, ids, "bet_transactions")
	assert.NotContains(t, ids, "select")
	assert.NotContains(t, ids, "sum")
}
