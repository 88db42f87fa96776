package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wagerworks/sqlgen/pkg/apperrors"
	"github.com/wagerworks/sqlgen/pkg/config"
	"github.com/wagerworks/sqlgen/pkg/llm"
	"github.com/wagerworks/sqlgen/pkg/models"
	"github.com/wagerworks/sqlgen/pkg/quality"
)

const goodSQL = "SELECT SUM(bet_amount) FROM bet_transactions"

func testSchema() models.SchemaSelection {
	return models.SchemaSelection{
		Tables:  []models.RelevanceScore{{Subject: "bet_transactions"}},
		Columns: []models.RelevanceScore{{Subject: "bet_transactions.bet_amount"}},
	}
}

func fastRetry() config.RetryConfig {
	return config.RetryConfig{
		MaxRetries:        2,
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2.0,
		AttemptTimeout:    time.Second,
	}
}

func descriptor(id string, priority float64) models.ProviderDescriptor {
	return models.ProviderDescriptor{
		ID:        id,
		Kind:      models.ProviderMock,
		Priority:  priority,
		Available: true,
	}
}

func newTestScorer() *quality.Scorer {
	return quality.NewScorer(config.QualityConfig{MinOverallScore: 0.75}, zap.NewNop())
}

// buildOrchestrator wires mock clients keyed by descriptor id.
func buildOrchestrator(t *testing.T, descriptors []models.ProviderDescriptor, clients map[string]*llm.MockClient, bestEffort bool) *Orchestrator {
	t.Helper()
	factory := func(d models.ProviderDescriptor) (llm.Client, error) {
		c, ok := clients[d.ID]
		if !ok {
			return nil, errors.New("no mock for " + d.ID)
		}
		return c, nil
	}
	o, err := NewWithFactory(descriptors, factory, fastRetry(), newTestScorer(), bestEffort, zap.NewNop())
	require.NoError(t, err)
	return o
}

func succeeding(sql string) *llm.MockClient {
	c := llm.NewMockClient("")
	c.GenerateFunc = func(context.Context, llm.GenerateRequest) (*llm.GenerateResult, error) {
		return &llm.GenerateResult{Text: sql, TokensUsed: 42}, nil
	}
	return c
}

func failing(err error) *llm.MockClient {
	c := llm.NewMockClient("")
	c.GenerateFunc = func(context.Context, llm.GenerateRequest) (*llm.GenerateResult, error) {
		return nil, err
	}
	return c
}

func TestGenerate_AcceptsPassingResponse(t *testing.T) {
	clients := map[string]*llm.MockClient{"primary": succeeding(goodSQL)}
	o := buildOrchestrator(t, []models.ProviderDescriptor{descriptor("primary", 100)}, clients, false)

	outcome, err := o.Generate(context.Background(), "prompt", models.ComplexitySimple, testSchema())
	require.NoError(t, err)
	assert.Equal(t, goodSQL, outcome.SQL)
	assert.Equal(t, "primary", outcome.ProviderID)
	assert.False(t, outcome.BestEffort)
	require.Len(t, outcome.Attempts, 1)
	assert.Equal(t, models.OutcomeSuccess, outcome.Attempts[0].Outcome)
	assert.NotNil(t, outcome.Attempts[0].Quality)
}

func TestGenerate_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	c := llm.NewMockClient("")
	c.GenerateFunc = func(context.Context, llm.GenerateRequest) (*llm.GenerateResult, error) {
		calls++
		if calls < 3 {
			return nil, &llm.Error{Type: llm.ErrorTypeRateLimit, Message: "slow down", Retryable: true}
		}
		return &llm.GenerateResult{Text: goodSQL}, nil
	}
	clients := map[string]*llm.MockClient{"primary": c}
	o := buildOrchestrator(t, []models.ProviderDescriptor{descriptor("primary", 100)}, clients, false)

	outcome, err := o.Generate(context.Background(), "prompt", models.ComplexitySimple, testSchema())
	require.NoError(t, err)
	assert.Equal(t, 3, calls, "two retries then success")
	require.Len(t, outcome.Attempts, 3)
	assert.Equal(t, models.OutcomeRateLimited, outcome.Attempts[0].Outcome)
	assert.Equal(t, models.OutcomeSuccess, outcome.Attempts[2].Outcome)
}

func TestGenerate_NonRetryableFallsBackImmediately(t *testing.T) {
	primary := failing(&llm.Error{Type: llm.ErrorTypeAuth, Message: "bad key", Retryable: false})
	secondary := succeeding(goodSQL)
	clients := map[string]*llm.MockClient{"primary": primary, "secondary": secondary}
	o := buildOrchestrator(t, []models.ProviderDescriptor{
		descriptor("primary", 100),
		descriptor("secondary", 50),
	}, clients, false)

	outcome, err := o.Generate(context.Background(), "prompt", models.ComplexitySimple, testSchema())
	require.NoError(t, err)
	assert.Equal(t, "secondary", outcome.ProviderID)
	assert.Equal(t, 1, primary.GenerateCalls(), "auth failure must not be retried")
}

func TestGenerate_QualityRejectionFallsBack(t *testing.T) {
	// Primary returns hallucinated identifiers that fail the semantic
	// gate; secondary returns clean SQL.
	primary := succeeding("SELECT made_up FROM nowhere_table")
	secondary := succeeding(goodSQL)
	clients := map[string]*llm.MockClient{"primary": primary, "secondary": secondary}
	o := buildOrchestrator(t, []models.ProviderDescriptor{
		descriptor("primary", 100),
		descriptor("secondary", 50),
	}, clients, false)

	outcome, err := o.Generate(context.Background(), "prompt", models.ComplexitySimple, testSchema())
	require.NoError(t, err)
	assert.Equal(t, "secondary", outcome.ProviderID)

	var rejected int
	for _, a := range outcome.Attempts {
		if a.Outcome == models.OutcomeRejected {
			rejected++
		}
	}
	assert.Equal(t, 1, rejected, "rejected attempt stays in the diagnostics")
}

func TestGenerate_ExhaustedCarriesBestRejected(t *testing.T) {
	clients := map[string]*llm.MockClient{
		"a": succeeding("SELECT made_up FROM nowhere_table"),
		"b": succeeding("SELECT ghost_a, ghost_b, ghost_c FROM bet_transactions"),
	}
	o := buildOrchestrator(t, []models.ProviderDescriptor{
		descriptor("a", 100),
		descriptor("b", 50),
	}, clients, false)

	_, err := o.Generate(context.Background(), "prompt", models.ComplexitySimple, testSchema())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrProvidersExhausted)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.NotEmpty(t, exhausted.BestRejected)
	assert.Equal(t, "SELECT ghost_a, ghost_b, ghost_c FROM bet_transactions", exhausted.BestRejected,
		"the partially-grounded candidate scores higher")
	assert.Len(t, exhausted.Attempts, 2)
}

func TestGenerate_BestEffortPromotesTopRejected(t *testing.T) {
	clients := map[string]*llm.MockClient{"a": succeeding("SELECT ghost_a, ghost_b, ghost_c FROM bet_transactions")}
	o := buildOrchestrator(t, []models.ProviderDescriptor{descriptor("a", 100)}, clients, true)

	outcome, err := o.Generate(context.Background(), "prompt", models.ComplexitySimple, testSchema())
	require.NoError(t, err)
	assert.True(t, outcome.BestEffort)
	assert.NotEmpty(t, outcome.SQL)
	assert.Less(t, outcome.Quality.Overall, 0.75)
}

func TestGenerate_PriorityOrder(t *testing.T) {
	primary := succeeding(goodSQL)
	secondary := succeeding(goodSQL)
	clients := map[string]*llm.MockClient{"low": secondary, "high": primary}
	o := buildOrchestrator(t, []models.ProviderDescriptor{
		descriptor("low", 10),
		descriptor("high", 90),
	}, clients, false)

	outcome, err := o.Generate(context.Background(), "prompt", models.ComplexitySimple, testSchema())
	require.NoError(t, err)
	assert.Equal(t, "high", outcome.ProviderID)
	assert.Zero(t, secondary.GenerateCalls(), "lower priority untouched on success")
}

func TestGenerate_ComplexityFiltering(t *testing.T) {
	simpleOnly := descriptor("simple-only", 100)
	simpleOnly.Complexities = []models.QueryComplexity{models.ComplexitySimple}
	full := descriptor("full", 10)

	clients := map[string]*llm.MockClient{
		"simple-only": succeeding(goodSQL),
		"full":        succeeding(goodSQL),
	}
	o := buildOrchestrator(t, []models.ProviderDescriptor{simpleOnly, full}, clients, false)

	outcome, err := o.Generate(context.Background(), "prompt", models.ComplexityVeryComplex, testSchema())
	require.NoError(t, err)
	assert.Equal(t, "full", outcome.ProviderID, "unsupported complexity is filtered out")
}

func TestGenerate_RoundRobinAcrossEqualPriority(t *testing.T) {
	clients := map[string]*llm.MockClient{
		"a": succeeding(goodSQL),
		"b": succeeding(goodSQL),
	}
	o := buildOrchestrator(t, []models.ProviderDescriptor{
		descriptor("a", 100),
		descriptor("b", 100),
	}, clients, false)

	var seen []string
	for i := 0; i < 4; i++ {
		outcome, err := o.Generate(context.Background(), "prompt", models.ComplexitySimple, testSchema())
		require.NoError(t, err)
		seen = append(seen, outcome.ProviderID)
	}
	assert.NotEqual(t, seen[0], seen[1], "successive requests rotate the tier")
	assert.Equal(t, seen[0], seen[2])
}

func TestGenerate_CircuitBreakerSkipsDeadProvider(t *testing.T) {
	dead := failing(&llm.Error{Type: llm.ErrorTypeEndpoint, Message: "down", Retryable: false})
	alive := succeeding(goodSQL)
	clients := map[string]*llm.MockClient{"dead": dead, "alive": alive}
	o := buildOrchestrator(t, []models.ProviderDescriptor{
		descriptor("dead", 100),
		descriptor("alive", 50),
	}, clients, false)

	// Trip the breaker (threshold 5 consecutive failures).
	for i := 0; i < 6; i++ {
		_, err := o.Generate(context.Background(), "prompt", models.ComplexitySimple, testSchema())
		require.NoError(t, err)
	}
	before := dead.GenerateCalls()

	_, err := o.Generate(context.Background(), "prompt", models.ComplexitySimple, testSchema())
	require.NoError(t, err)
	assert.Equal(t, before, dead.GenerateCalls(), "open breaker skips the provider entirely")
}

func TestGenerate_NoEligibleProviders(t *testing.T) {
	d := descriptor("only", 100)
	d.Complexities = []models.QueryComplexity{models.ComplexitySimple}
	clients := map[string]*llm.MockClient{"only": succeeding(goodSQL)}
	o := buildOrchestrator(t, []models.ProviderDescriptor{d}, clients, false)

	_, err := o.Generate(context.Background(), "prompt", models.ComplexityComplex, testSchema())
	require.Error(t, err)
	assert.Equal(t, apperrors.KindProvider, apperrors.KindOf(err))
}

func TestNewWithFactory_SkipsMisconfiguredProviders(t *testing.T) {
	built := atomic.Int32{}
	factory := func(d models.ProviderDescriptor) (llm.Client, error) {
		if d.ID == "broken" {
			return nil, errors.New("bad config")
		}
		built.Add(1)
		return succeeding(goodSQL), nil
	}
	o, err := NewWithFactory([]models.ProviderDescriptor{
		descriptor("broken", 100),
		descriptor("ok", 50),
	}, factory, fastRetry(), newTestScorer(), false, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, int32(1), built.Load())

	_, err = NewWithFactory([]models.ProviderDescriptor{descriptor("broken", 1)}, factory,
		fastRetry(), newTestScorer(), false, zap.NewNop())
	assert.Error(t, err, "zero usable providers is fatal")
}
