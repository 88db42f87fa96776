package joins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wagerworks/sqlgen/pkg/models"
)

func edge(left, leftCol, right, rightCol string, confidence float64) models.JoinEdge {
	return models.JoinEdge{
		LeftTable:   left,
		LeftColumn:  leftCol,
		RightTable:  right,
		RightColumn: rightCol,
		Type:        models.JoinInner,
		Confidence:  confidence,
	}
}

// The test graph mirrors a small wagering schema:
//
//	players -- bet_transactions -- games
//	players -- payment_transactions
//	sessions (isolated)
func testGraph() *Graph {
	return NewGraph([]models.JoinEdge{
		edge("players", "player_id", "bet_transactions", "player_id", 0.95),
		edge("bet_transactions", "game_id", "games", "game_id", 0.9),
		edge("players", "player_id", "payment_transactions", "player_id", 0.9),
	})
}

func newTestResolver(g *Graph) *Resolver {
	return NewResolver(g, zap.NewNop())
}

func TestResolvePath_TrivialCases(t *testing.T) {
	r := newTestResolver(testGraph())

	res := r.ResolvePath(nil)
	require.NotNil(t, res.Path)
	assert.True(t, res.Path.Trivial())

	res = r.ResolvePath([]string{"players"})
	require.NotNil(t, res.Path)
	assert.True(t, res.Path.Trivial())
	assert.Equal(t, []string{"players"}, res.Path.Tables)

	res = r.ResolvePath([]string{"players", "players", ""})
	require.NotNil(t, res.Path)
	assert.True(t, res.Path.Trivial(), "duplicates and blanks collapse to one table")
}

func TestResolvePath_DirectEdge(t *testing.T) {
	r := newTestResolver(testGraph())

	res := r.ResolvePath([]string{"players", "bet_transactions"})
	require.NotNil(t, res.Path)
	require.Nil(t, res.Ambiguity)
	require.Len(t, res.Path.Edges, 1)

	e := res.Path.Edges[0]
	assert.Equal(t, "players", e.LeftTable, "direction metadata preserved")
	assert.Equal(t, "bet_transactions", e.RightTable)
	assert.Equal(t, "player_id", e.LeftColumn)
	assert.InDelta(t, 0.95, res.Path.Score, 1e-9)
}

func TestResolvePath_IntermediateTableWhenNecessary(t *testing.T) {
	r := newTestResolver(testGraph())

	// games and players only connect through bet_transactions.
	res := r.ResolvePath([]string{"games", "players"})
	require.NotNil(t, res.Path)
	assert.Len(t, res.Path.Edges, 2)
	assert.Contains(t, res.Path.Tables, "bet_transactions")
}

func TestResolvePath_Acyclic(t *testing.T) {
	// A triangle: the resolver must pick a spanning tree, never all
	// three edges.
	g := NewGraph([]models.JoinEdge{
		edge("a", "id", "b", "a_id", 0.9),
		edge("b", "c_id", "c", "id", 0.9),
		edge("a", "id", "c", "a_id", 0.5),
	})
	res := newTestResolver(g).ResolvePath([]string{"a", "b", "c"})

	require.NotNil(t, res.Path)
	assert.Len(t, res.Path.Edges, 2, "tree over 3 tables has 2 edges")
	assert.Len(t, res.Path.Tables, 3)
}

func TestResolvePath_PrefersHighConfidenceRoute(t *testing.T) {
	// Two routes a->c: direct low-confidence edge (weight 0.7) versus
	// a->b->c (combined weight 0.1+0.1=0.2). The indirect route wins.
	g := NewGraph([]models.JoinEdge{
		edge("a", "id", "c", "a_id", 0.3),
		edge("a", "id", "b", "a_id", 0.9),
		edge("b", "id", "c", "b_id", 0.9),
	})
	res := newTestResolver(g).ResolvePath([]string{"a", "c"})

	require.NotNil(t, res.Path)
	require.Len(t, res.Path.Edges, 2)
	assert.Contains(t, res.Path.Tables, "b", "cheaper indirect route preferred")
}

func TestResolvePath_DisconnectedGroups(t *testing.T) {
	g := NewGraph([]models.JoinEdge{
		edge("players", "player_id", "bet_transactions", "player_id", 0.9),
		edge("sessions", "session_id", "events", "session_id", 0.9),
	})
	res := newTestResolver(g).ResolvePath([]string{"players", "sessions"})

	require.Nil(t, res.Path)
	require.NotNil(t, res.Ambiguity)
	assert.Equal(t, "disconnected_tables", res.Ambiguity.Kind)
	assert.Equal(t, [][]string{{"players"}, {"sessions"}}, res.Ambiguity.Groups)
	assert.Contains(t, res.Ambiguity.Message, "players")
	assert.Contains(t, res.Ambiguity.Message, "sessions")
}

func TestResolvePath_UnknownTableIsItsOwnGroup(t *testing.T) {
	res := newTestResolver(testGraph()).ResolvePath([]string{"players", "made_up_table"})

	require.Nil(t, res.Path)
	require.NotNil(t, res.Ambiguity)
	assert.Contains(t, res.Ambiguity.Groups, []string{"made_up_table"})
}

func TestResolvePath_Deterministic(t *testing.T) {
	// Two equal-weight routes between a and d; the tie must break the
	// same way on every run.
	g := NewGraph([]models.JoinEdge{
		edge("a", "id", "b", "a_id", 0.8),
		edge("b", "id", "d", "b_id", 0.8),
		edge("a", "id", "c", "a_id", 0.8),
		edge("c", "id", "d", "c_id", 0.8),
	})
	r := newTestResolver(g)

	first := r.ResolvePath([]string{"a", "d"})
	require.NotNil(t, first.Path)
	for i := 0; i < 10; i++ {
		again := r.ResolvePath([]string{"a", "d"})
		require.NotNil(t, again.Path)
		assert.Equal(t, first.Path.Edges, again.Path.Edges)
		assert.Equal(t, first.Path.Tables, again.Path.Tables)
	}
}

func TestResolvePath_OrderedFromFirstRequiredTable(t *testing.T) {
	r := newTestResolver(testGraph())
	res := r.ResolvePath([]string{"payment_transactions", "bet_transactions"})

	require.NotNil(t, res.Path)
	// Required tables sort lexically; the walk starts at the first.
	assert.Equal(t, "bet_transactions", res.Path.Tables[0])
}
