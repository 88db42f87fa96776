package joins

import (
	"sort"

	"github.com/wagerworks/sqlgen/pkg/models"
)

// Graph is the relationship graph as an explicit edge list plus an
// adjacency index, so graph algorithms never chase object references.
type Graph struct {
	edges []models.JoinEdge
	// adjacency maps table -> indexes into edges
	adjacency map[string][]int
	tables    map[string]bool
}

// NewGraph builds the adjacency index from declared relationship edges.
// Edge confidences are clamped to [0,1].
func NewGraph(edges []models.JoinEdge) *Graph {
	g := &Graph{
		edges:     make([]models.JoinEdge, len(edges)),
		adjacency: make(map[string][]int),
		tables:    make(map[string]bool),
	}
	for i, e := range edges {
		e.Confidence = models.Clamp01(e.Confidence)
		g.edges[i] = e
		g.adjacency[e.LeftTable] = append(g.adjacency[e.LeftTable], i)
		g.adjacency[e.RightTable] = append(g.adjacency[e.RightTable], i)
		g.tables[e.LeftTable] = true
		g.tables[e.RightTable] = true
	}
	// Deterministic neighbor order: cheapest edge first, then pair name.
	for table := range g.adjacency {
		idxs := g.adjacency[table]
		sort.SliceStable(idxs, func(a, b int) bool {
			ea, eb := g.edges[idxs[a]], g.edges[idxs[b]]
			if ea.Confidence != eb.Confidence {
				return ea.Confidence > eb.Confidence
			}
			return ea.PairKey() < eb.PairKey()
		})
	}
	return g
}

// Has reports whether a table appears in any declared relationship.
func (g *Graph) Has(table string) bool { return g.tables[table] }

// weight converts confidence into a path cost: high-confidence
// relationships are cheap.
func weight(e models.JoinEdge) float64 { return 1 - e.Confidence }

// other returns the opposite endpoint of an edge.
func other(e models.JoinEdge, table string) string {
	if e.LeftTable == table {
		return e.RightTable
	}
	return e.LeftTable
}
