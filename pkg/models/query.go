package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// QueryComplexity estimates how demanding a query is for SQL generation.
// Providers declare which complexity levels they support.
type QueryComplexity string

const (
	ComplexitySimple      QueryComplexity = "simple"
	ComplexityMedium      QueryComplexity = "medium"
	ComplexityComplex     QueryComplexity = "complex"
	ComplexityVeryComplex QueryComplexity = "very_complex"
)

// Query is an immutable natural-language question plus request context.
// NormalizedText is the canonical form used for fingerprinting and matching.
type Query struct {
	ID         uuid.UUID
	RawText    string
	Normalized string
	UserID     string
	SessionID  string
	ReceivedAt time.Time
	Complexity QueryComplexity
}

// NewQuery normalizes the raw text and estimates complexity.
// ReceivedAt anchors all relative temporal resolution for this request.
func NewQuery(raw, userID, sessionID string, receivedAt time.Time) Query {
	normalized := NormalizeQueryText(raw)
	return Query{
		ID:         uuid.New(),
		RawText:    raw,
		Normalized: normalized,
		UserID:     userID,
		SessionID:  sessionID,
		ReceivedAt: receivedAt,
		Complexity: estimateComplexity(normalized),
	}
}

// NormalizeQueryText lowercases, collapses whitespace and strips trailing
// punctuation so that trivially different phrasings share a fingerprint.
func NormalizeQueryText(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimRight(s, "?!. ")
	return strings.Join(strings.Fields(s), " ")
}

// complexitySignals groups markers by the analysis they indicate, so
// "compare X versus Y" counts as one comparison signal, not two.
var complexitySignals = [][]string{
	{"compare", "versus", " vs "},
	{"trend", "by month", "by week"},
	{"correlat"},
	{"forecast", "predict"},
	{"cohort"},
	{"breakdown"},
	{"group"},
}

// estimateComplexity is a cheap word-count and signal-group heuristic.
// It only needs to be good enough for provider selection, not analysis.
func estimateComplexity(normalized string) QueryComplexity {
	words := strings.Fields(normalized)
	signals := 0
	for _, group := range complexitySignals {
		for _, marker := range group {
			if strings.Contains(normalized, marker) {
				signals++
				break
			}
		}
	}
	switch {
	case len(words) > 25 || signals >= 3:
		return ComplexityVeryComplex
	case len(words) > 15 || signals == 2:
		return ComplexityComplex
	case len(words) > 8 || signals == 1:
		return ComplexityMedium
	default:
		return ComplexitySimple
	}
}
