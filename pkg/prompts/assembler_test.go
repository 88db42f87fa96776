package prompts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wagerworks/sqlgen/pkg/apperrors"
	"github.com/wagerworks/sqlgen/pkg/models"
)

type mapStore map[string]string

func (s mapStore) TemplateByKey(_ context.Context, key string) (string, error) {
	text, ok := s[key]
	if !ok {
		return "", errors.New("template not found")
	}
	return text, nil
}

func testRequest() Request {
	return Request{
		Query:  models.NewQuery("total GGR last month", "u", "s", time.Now()),
		Intent: models.IntentAggregate,
		Schema: models.SchemaSelection{
			Tables: []models.RelevanceScore{{Subject: "revenue_summary", Score: 0.8}},
			Columns: []models.RelevanceScore{
				{Subject: "revenue_summary.ggr", Score: 0.9},
			},
			TableMeta: map[string]models.TableMetadata{
				"revenue_summary": {Name: "revenue_summary", Enrichment: &models.SemanticEnrichment{
					BusinessPurpose: "Daily revenue rollup per brand",
				}},
			},
			ColumnsByTable: map[string][]models.ColumnMetadata{
				"revenue_summary": {{Table: "revenue_summary", Name: "ggr", DataType: "numeric"}},
			},
		},
	}
}

func newTestAssembler(store TemplateStore, maxChars int) *Assembler {
	return NewAssembler(store, maxChars, zap.NewNop())
}

func TestAssemble_RendersAllPlaceholders(t *testing.T) {
	store := mapStore{"sql_generation": "Schema:\n{SCHEMA_DEFINITION}\nQuestion: {QUERY}\nIntent: {INTENT}"}
	a := newTestAssembler(store, 0)

	prompt, err := a.Assemble(context.Background(), "sql_generation", testRequest())
	require.NoError(t, err)

	assert.Contains(t, prompt, "total GGR last month")
	assert.Contains(t, prompt, "revenue_summary (relevance 0.80)")
	assert.Contains(t, prompt, "Daily revenue rollup per brand")
	assert.Contains(t, prompt, "ggr (numeric)")
	assert.Contains(t, prompt, "Intent: aggregate")
	assert.NotContains(t, prompt, "{", "no unresolved placeholders may remain")
}

// TestAssemble_SeededDefaultTemplate renders the template the catalog
// migration seeds, proving every placeholder it uses has a resolver.
func TestAssemble_SeededDefaultTemplate(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("..", "..", "migrations", "002_domain_knowledge.up.sql"))
	require.NoError(t, err)

	start := strings.Index(string(raw), "$tpl$")
	end := strings.LastIndex(string(raw), "$tpl$")
	require.True(t, start >= 0 && end > start, "seeded template present in the migration")
	template := string(raw)[start+len("$tpl$") : end]

	a := newTestAssembler(mapStore{"sql_generation": template}, 0)
	prompt, err := a.Assemble(context.Background(), "sql_generation", testRequest())
	require.NoError(t, err)
	assert.Contains(t, prompt, "total GGR last month")
	assert.NotContains(t, prompt, "{", "no unresolved placeholders may remain")
}

func TestAssemble_FailsClosedListingAllMissingKeys(t *testing.T) {
	store := mapStore{"k": "{QUERY} {UNKNOWN_ONE} {UNKNOWN_TWO} {SCHEMA_DEFINITION}"}
	a := newTestAssembler(store, 0)

	req := testRequest()
	req.Schema = models.SchemaSelection{} // mandatory resolver yields empty

	_, err := a.Assemble(context.Background(), "k", req)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindPromptValidation, apperrors.KindOf(err))

	var failure *ValidationFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, []string{"SCHEMA_DEFINITION", "UNKNOWN_ONE", "UNKNOWN_TWO"}, failure.MissingKeys,
		"every unresolved key reported, sorted")
}

func TestAssemble_OptionalPlaceholdersMayBeEmpty(t *testing.T) {
	store := mapStore{"k": "{QUERY}\n{SCHEMA_DEFINITION}\n{JOIN_PATH}{DOMAIN_RULES}{EXAMPLES}"}
	a := newTestAssembler(store, 0)

	prompt, err := a.Assemble(context.Background(), "k", testRequest())
	require.NoError(t, err, "optional sections resolve to empty, not failure")
	assert.NotContains(t, prompt, "{JOIN_PATH}")
}

func TestAssemble_EnforcesBudget(t *testing.T) {
	store := mapStore{"k": "{QUERY} {SCHEMA_DEFINITION}"}
	a := newTestAssembler(store, 10)

	_, err := a.Assemble(context.Background(), "k", testRequest())
	require.Error(t, err)

	var failure *ValidationFailure
	require.ErrorAs(t, err, &failure)
	assert.True(t, failure.OverBudget)
	assert.Equal(t, 10, failure.Budget)
	assert.Greater(t, failure.Size, failure.Budget)
}

func TestAssemble_MissingTemplate(t *testing.T) {
	a := newTestAssembler(mapStore{}, 0)
	_, err := a.Assemble(context.Background(), "nope", testRequest())
	require.Error(t, err)
	assert.Equal(t, apperrors.KindPromptValidation, apperrors.KindOf(err))
}

func TestResolveJoinPath(t *testing.T) {
	req := testRequest()
	req.Path = &models.JoinPath{
		Tables: []string{"players", "bet_transactions"},
		Edges: []models.JoinEdge{{
			LeftTable:   "players",
			LeftColumn:  "player_id",
			RightTable:  "bet_transactions",
			RightColumn: "player_id",
			Type:        models.JoinInner,
			Confidence:  0.95,
		}},
	}
	out, err := resolveJoinPath(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, out, "INNER JOIN bet_transactions ON players.player_id = bet_transactions.player_id")
}

func TestResolveJoinPath_TrivialIsEmpty(t *testing.T) {
	req := testRequest()
	req.Path = &models.JoinPath{Tables: []string{"players"}}
	out, err := resolveJoinPath(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestResolveBusinessContext_IncludesDateRanges(t *testing.T) {
	req := testRequest()
	req.Entities = []models.EntityMention{{
		Type:       models.EntityTemporal,
		Text:       "last month",
		Normalized: "last month",
		DateRange: &models.DateRange{
			From: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		},
	}}
	out, err := resolveBusinessContext(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, out, "[2025-02-01 .. 2025-03-01)")
}

func TestResolveExamples_FiltersByIntentAndComplexity(t *testing.T) {
	req := testRequest()
	req.Query.Complexity = models.ComplexityMedium
	req.Examples = []ExamplePair{
		{Question: "matching", SQL: "SELECT 1", Intent: models.IntentAggregate, Complexity: models.ComplexitySimple},
		{Question: "wrong intent", SQL: "SELECT 2", Intent: models.IntentTrend, Complexity: models.ComplexitySimple},
		{Question: "too complex", SQL: "SELECT 3", Intent: models.IntentAggregate, Complexity: models.ComplexityVeryComplex},
	}
	out, err := resolveExamples(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, out, "matching")
	assert.NotContains(t, out, "wrong intent")
	assert.NotContains(t, out, "too complex")
}
