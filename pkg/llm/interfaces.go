// Package llm provides the provider clients used for SQL generation:
// OpenAI-compatible and Anthropic endpoints behind one interface, with
// structured error classification and a per-provider circuit breaker.
package llm

import (
	"context"
	"time"
)

// GenerateRequest is one prompt invocation.
type GenerateRequest struct {
	Prompt      string
	System      string
	Temperature float64
	MaxTokens   int
}

// GenerateResult is a provider response plus usage stats.
type GenerateResult struct {
	Text       string
	TokensUsed int
	Latency    time.Duration
}

// Client is the interface every provider backend implements. Use it for
// dependency injection so tests can substitute mocks.
type Client interface {
	// Generate produces a completion for the prompt.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)

	// ProviderID returns the descriptor id this client was built from.
	ProviderID() string
}
