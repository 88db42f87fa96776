package models

import "time"

// IntentType classifies what shape of SQL a question calls for.
type IntentType string

const (
	IntentSelect       IntentType = "select"
	IntentAggregate    IntentType = "aggregate"
	IntentTrend        IntentType = "trend"
	IntentComparison   IntentType = "comparison"
	IntentTopN         IntentType = "top_n"
	IntentDistribution IntentType = "distribution"
	IntentCorrelation  IntentType = "correlation"
	IntentForecast     IntentType = "forecast"
	IntentAnomaly      IntentType = "anomaly"
	IntentDrill        IntentType = "drill"
)

// AllIntents lists the taxonomy in lexical order, which doubles as the
// final tie-break order during intent classification.
var AllIntents = []IntentType{
	IntentAggregate,
	IntentAnomaly,
	IntentComparison,
	IntentCorrelation,
	IntentDistribution,
	IntentDrill,
	IntentForecast,
	IntentSelect,
	IntentTopN,
	IntentTrend,
}

// EntityType categorizes extracted mentions.
type EntityType string

const (
	EntityMetric    EntityType = "metric"
	EntityTemporal  EntityType = "temporal"
	EntityFinancial EntityType = "financial"
	EntityPlayer    EntityType = "player"
	EntityGame      EntityType = "game"
)

// EntityMention is a typed span found in the query text. Immutable after
// extraction; downstream stages only read it.
type EntityMention struct {
	Type       EntityType
	Text       string // surface text as it appeared
	Start      int    // byte offset into the normalized query
	End        int    // exclusive
	Confidence float64
	Normalized string   // canonical term, e.g. "ggr" for "gross gaming revenue"
	Synonyms   []string // dictionary synonyms that matched
	// RelatedTables is the dictionary-declared list of tables this term
	// maps to; the ranker uses it for the entity-type bonus.
	RelatedTables []string
	// DateRange is populated for temporal mentions only.
	DateRange *DateRange
}

// DateRange is a resolved temporal expression, always anchored to the
// request timestamp rather than extraction time.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Overlaps reports whether two mentions cover intersecting spans.
func (m EntityMention) Overlaps(other EntityMention) bool {
	return m.Start < other.End && other.Start < m.End
}

// Span returns the mention length in bytes.
func (m EntityMention) Span() int {
	return m.End - m.Start
}
