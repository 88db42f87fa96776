package models

import "time"

// ProviderKind selects the wire client used for a provider.
type ProviderKind string

const (
	ProviderOpenAI    ProviderKind = "openai"
	ProviderAnthropic ProviderKind = "anthropic"
	ProviderMock      ProviderKind = "mock"
)

// ProviderDescriptor is the declarative configuration of one LLM provider.
type ProviderDescriptor struct {
	ID          string          `yaml:"id"`
	Kind        ProviderKind    `yaml:"kind"`
	Endpoint    string          `yaml:"endpoint"`
	Model       string          `yaml:"model"`
	APIKey      string          `yaml:"-"` // injected from env, never from YAML
	Priority    float64         `yaml:"priority"` // higher = tried first
	Available   bool            `yaml:"available"`
	MaxTokens   int             `yaml:"max_tokens"`
	Temperature float64         `yaml:"temperature"`
	// Complexities this provider is allowed to serve; empty means all.
	Complexities []QueryComplexity `yaml:"complexities"`
}

// Supports reports whether the provider serves the given complexity.
func (d ProviderDescriptor) Supports(c QueryComplexity) bool {
	if len(d.Complexities) == 0 {
		return true
	}
	for _, lvl := range d.Complexities {
		if lvl == c {
			return true
		}
	}
	return false
}

// AttemptOutcome is the terminal state of one provider call.
type AttemptOutcome string

const (
	OutcomeSuccess     AttemptOutcome = "success"
	OutcomeTimeout     AttemptOutcome = "timeout"
	OutcomeError       AttemptOutcome = "error"
	OutcomeRateLimited AttemptOutcome = "rate_limited"
	OutcomeRejected    AttemptOutcome = "rejected" // below quality gate
)

// ProviderAttempt records one call for diagnostics.
type ProviderAttempt struct {
	ProviderID string
	StartedAt  time.Time
	EndedAt    time.Time
	Outcome    AttemptOutcome
	Error      string
	TokensUsed int
	Quality    *QualityScore // set when a response was scored
}

// Latency returns the wall-clock duration of the attempt.
func (a ProviderAttempt) Latency() time.Duration {
	return a.EndedAt.Sub(a.StartedAt)
}

// QualityScore gates generated SQL before it is accepted.
type QualityScore struct {
	Syntax   float64
	Semantic float64
	Overall  float64
}

// Passes reports whether the response clears the configured minimum.
func (q QualityScore) Passes(minOverall float64) bool {
	return q.Overall >= minOverall
}
