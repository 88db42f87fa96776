package models

// TableMetadata is the business-annotated description of one table.
// Loaded once per session from the metadata repository and read-only
// within a request.
type TableMetadata struct {
	Name       string
	Schema     string
	RowCount   int64
	Enrichment *SemanticEnrichment // optional, keyed by table name
}

// ColumnMetadata describes one column of a table.
type ColumnMetadata struct {
	Table      string
	Name       string
	DataType   string
	IsPrimary  bool
	Enrichment *SemanticEnrichment // optional, keyed by table.column
}

// SemanticEnrichment carries the business-layer annotations that may be
// attached to a table or column. Kept as a separate record (composition,
// not inheritance) so base metadata and enrichment can each be absent
// independently.
type SemanticEnrichment struct {
	BusinessPurpose string
	Domain          string    // e.g. "wagering", "payments", "player"
	Importance      float64   // business-assigned, static, clamped to [0,1]
	Embedding       []float32 // precomputed vector for the description
	Keywords        []string
	Synonyms        []string
}

// Importance returns the static business importance, zero when no
// enrichment record exists.
func (t TableMetadata) Importance() float64 {
	if t.Enrichment == nil {
		return 0
	}
	return clamp01(t.Enrichment.Importance)
}

// Importance returns the column's static importance, zero without enrichment.
func (c ColumnMetadata) Importance() float64 {
	if c.Enrichment == nil {
		return 0
	}
	return clamp01(c.Enrichment.Importance)
}

// QualifiedName returns "table.column".
func (c ColumnMetadata) QualifiedName() string {
	return c.Table + "." + c.Name
}

// SignalBreakdown records the contribution of each ranking signal so a
// score can be explained without re-running the ranker.
type SignalBreakdown struct {
	SemanticSimilarity float64
	KeywordOverlap     float64
	Importance         float64
	EntityTypeBonus    float64
}

// RelevanceScore is the composite rank of one table or column.
type RelevanceScore struct {
	Subject   string // table name or table.column
	Score     float64
	Signals   SignalBreakdown
	Reasoning string
}

// SchemaSelection is the ranked schema context handed to prompt assembly
// and the quality gate.
type SchemaSelection struct {
	Tables      []RelevanceScore
	Columns     []RelevanceScore
	TableMeta   map[string]TableMetadata
	ColumnsByTable map[string][]ColumnMetadata
}

// TableNames returns ranked table names in order.
func (s SchemaSelection) TableNames() []string {
	names := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		names[i] = t.Subject
	}
	return names
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Clamp01 bounds a score or confidence to [0,1].
func Clamp01(v float64) float64 { return clamp01(v) }
