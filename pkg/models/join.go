package models

// JoinType mirrors the declared relationship kind.
type JoinType string

const (
	JoinInner JoinType = "inner"
	JoinLeft  JoinType = "left"
)

// JoinEdge is one declared relationship between two tables. Static,
// derived from relationship metadata; the full set forms a graph.
type JoinEdge struct {
	LeftTable   string
	LeftColumn  string
	RightTable  string
	RightColumn string
	Type        JoinType
	Confidence  float64 // [0,1]; weight in the graph is 1 - Confidence
}

// PairKey returns the lexicographically ordered "a|b" table pair, used
// for deterministic tie-breaking between equal-weight paths.
func (e JoinEdge) PairKey() string {
	if e.LeftTable <= e.RightTable {
		return e.LeftTable + "|" + e.RightTable
	}
	return e.RightTable + "|" + e.LeftTable
}

// JoinPath is an acyclic, ordered set of tables and the edges connecting
// them. Edge direction (left/right) is preserved so a consumer can render
// FROM ... JOIN ... without re-deriving it.
type JoinPath struct {
	Tables []string
	Edges  []JoinEdge
	Score  float64 // sum of edge confidences
}

// Trivial reports whether the path needs no join at all.
func (p JoinPath) Trivial() bool { return len(p.Edges) == 0 }

// Length returns the number of joins in the path.
func (p JoinPath) Length() int { return len(p.Edges) }

// Ambiguity is an explicit marker attached to a result instead of
// aborting the pipeline: unknown terms, disconnected table groups, or a
// low-scoring ranking the caller may want to re-validate.
type Ambiguity struct {
	Kind    string // "disconnected_tables", "unknown_term", "low_relevance"
	Message string
	Groups  [][]string // populated for disconnected table groups
	Terms   []string   // populated for unknown terms
}
