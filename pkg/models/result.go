package models

import "time"

// Rule is a formatted business or compliance rule supplied by the domain
// knowledge collaborator, included verbatim in prompts.
type Rule struct {
	Category string
	Intent   IntentType
	Text     string
}

// GenerationResult is the end-to-end outcome of one request. Partial
// diagnostics (ranked schema, attempts, ambiguities) are populated even
// on failure so callers can troubleshoot without re-running the pipeline.
type GenerationResult struct {
	Success     bool
	ErrorKind   string
	Message     string
	Query       Query
	Intent      IntentType
	Entities    []EntityMention
	Schema      SchemaSelection
	Path        *JoinPath
	Ambiguities []Ambiguity
	Prompt      string
	SQL         string
	Confidence  float64
	ProviderID  string
	Attempts    []ProviderAttempt
	// BestRejected carries the highest-quality candidate when every
	// provider was rejected by the quality gate.
	BestRejected string
	CacheStatus  CacheStatus
	Elapsed      time.Duration
}

// CacheStatus distinguishes how a result was satisfied.
type CacheStatus string

const (
	CacheMiss        CacheStatus = "miss"
	CacheHitExact    CacheStatus = "exact_hit"
	CacheHitSemantic CacheStatus = "semantic_hit"
)
