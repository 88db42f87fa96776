package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/wagerworks/sqlgen/pkg/config"
	"github.com/wagerworks/sqlgen/pkg/models"
)

func testSchema() models.SchemaSelection {
	return models.SchemaSelection{
		Tables: []models.RelevanceScore{
			{Subject: "bet_transactions"},
			{Subject: "players"},
		},
		Columns: []models.RelevanceScore{
			{Subject: "bet_transactions.bet_amount"},
			{Subject: "bet_transactions.player_id"},
			{Subject: "players.player_id"},
			{Subject: "players.country"},
		},
	}
}

func newTestScorer() *Scorer {
	return NewScorer(config.QualityConfig{
		MinSyntaxScore:   0.7,
		MinSemanticScore: 0.6,
		MinOverallScore:  0.75,
	}, zap.NewNop())
}

func TestScorer_CleanSQLOverSelectedSchema(t *testing.T) {
	score := newTestScorer().Score(
		"SELECT players.country, SUM(bet_transactions.bet_amount) FROM bet_transactions JOIN players ON bet_transactions.player_id = players.player_id GROUP BY players.country",
		testSchema())

	assert.Equal(t, 1.0, score.Syntax)
	assert.Equal(t, 1.0, score.Semantic)
	assert.True(t, score.Passes(0.75))
}

func TestScorer_UnknownIdentifiersLowerSemantic(t *testing.T) {
	schema := testSchema()
	clean := newTestScorer().Score("SELECT bet_amount FROM bet_transactions", schema)
	hallucinated := newTestScorer().Score("SELECT bonus_multiplier FROM loyalty_ledger", schema)

	assert.Greater(t, clean.Semantic, hallucinated.Semantic)
	assert.False(t, hallucinated.Passes(0.75))
}

func TestScorer_StructuralIssuesLowerSyntax(t *testing.T) {
	score := newTestScorer().Score("DELETE FROM players", testSchema())
	assert.Less(t, score.Syntax, 0.7)
	assert.False(t, score.Passes(0.75))
}

func TestScorer_SyntaxFloorIsZero(t *testing.T) {
	score := newTestScorer().Score("DROP TABLE a; DROP TABLE b; SELECT (", testSchema())
	assert.GreaterOrEqual(t, score.Syntax, 0.0)
}

func TestScorer_MinOverall(t *testing.T) {
	assert.Equal(t, 0.75, newTestScorer().MinOverall())
}

func TestScorer_AcceptRequiresEveryMinimum(t *testing.T) {
	s := newTestScorer()

	assert.True(t, s.Accept(models.QualityScore{Syntax: 1.0, Semantic: 0.8, Overall: 0.92}))
	assert.False(t, s.Accept(models.QualityScore{Syntax: 1.0, Semantic: 0.5, Overall: 0.8}),
		"overall above the gate does not excuse a weak semantic score")
	assert.False(t, s.Accept(models.QualityScore{Syntax: 0.65, Semantic: 1.0, Overall: 0.79}))
	assert.False(t, s.Accept(models.QualityScore{Syntax: 0.8, Semantic: 0.7, Overall: 0.74}))
}

func TestScorer_ConfigurableBlendAndPenalty(t *testing.T) {
	even := NewScorer(config.QualityConfig{
		SyntaxWeight:   0.5,
		SemanticWeight: 0.5,
	}, zap.NewNop())
	// Clean syntax, zero schema overlap: the blend decides the overall.
	score := even.Score("SELECT foo FROM bar", models.SchemaSelection{})
	assert.Equal(t, 1.0, score.Syntax)
	assert.Equal(t, 0.0, score.Semantic)
	assert.InDelta(t, 0.5, score.Overall, 1e-9)

	harsh := NewScorer(config.QualityConfig{IssuePenalty: 1.0}, zap.NewNop())
	score = harsh.Score("DELETE FROM players", testSchema())
	assert.Equal(t, 0.0, score.Syntax, "a single issue zeroes syntax at full penalty")
}
