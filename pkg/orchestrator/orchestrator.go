// Package orchestrator drives provider selection, retry, fallback and
// quality gating for one generation request:
// SELECT -> ATTEMPT -> {SUCCESS | RETRY | FALLBACK} -> ACCEPT | EXHAUSTED.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wagerworks/sqlgen/pkg/apperrors"
	"github.com/wagerworks/sqlgen/pkg/config"
	"github.com/wagerworks/sqlgen/pkg/llm"
	"github.com/wagerworks/sqlgen/pkg/models"
	"github.com/wagerworks/sqlgen/pkg/quality"
	"github.com/wagerworks/sqlgen/pkg/retry"
	"github.com/wagerworks/sqlgen/pkg/sqlcheck"
)

// provider bundles a descriptor with its client and circuit breaker.
type provider struct {
	descriptor models.ProviderDescriptor
	client     llm.Client
	breaker    *llm.CircuitBreaker
}

// Outcome is the accepted (or best-effort) generation.
type Outcome struct {
	SQL        string
	ProviderID string
	Quality    models.QualityScore
	Attempts   []models.ProviderAttempt
	// BestEffort marks a sub-threshold response promoted to success
	// because quality.return_best_effort is enabled.
	BestEffort bool
}

// ExhaustedError is returned when every provider was tried and none was
// accepted. The best rejected candidate rides along for diagnostics and
// is never silently promoted to success.
type ExhaustedError struct {
	Attempts     []models.ProviderAttempt
	BestRejected string
	BestQuality  models.QualityScore
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all providers exhausted after %d attempts (best overall %.2f)",
		len(e.Attempts), e.BestQuality.Overall)
}

func (e *ExhaustedError) Unwrap() error { return apperrors.ErrProvidersExhausted }

// Orchestrator selects and invokes providers with fallback.
type Orchestrator struct {
	providers  []provider
	scorer     *quality.Scorer
	policy     retry.Policy
	attemptTO  time.Duration
	bestEffort bool
	logger     *zap.Logger

	// rrCounter spreads successive independent requests across
	// equally-prioritized providers. Never consulted within a single
	// request's fallback chain.
	rrCounter atomic.Uint64
}

// ClientFactory builds the wire client for one descriptor. Tests inject
// their own to substitute mock clients.
type ClientFactory func(models.ProviderDescriptor) (llm.Client, error)

// New wires descriptors into clients and breakers using the default
// client factory.
func New(descriptors []models.ProviderDescriptor, retryCfg config.RetryConfig, scorer *quality.Scorer, bestEffort bool, logger *zap.Logger) (*Orchestrator, error) {
	factory := func(d models.ProviderDescriptor) (llm.Client, error) {
		return llm.NewClientFromDescriptor(d, logger)
	}
	return NewWithFactory(descriptors, factory, retryCfg, scorer, bestEffort, logger)
}

// NewWithFactory wires descriptors into clients and breakers. Descriptors
// whose client cannot be constructed are skipped with a warning, not
// fatal: a misconfigured secondary must not take down the primary.
func NewWithFactory(descriptors []models.ProviderDescriptor, factory ClientFactory, retryCfg config.RetryConfig, scorer *quality.Scorer, bestEffort bool, logger *zap.Logger) (*Orchestrator, error) {
	log := logger.Named("orchestrator")
	providers := make([]provider, 0, len(descriptors))
	for _, d := range descriptors {
		client, err := factory(d)
		if err != nil {
			log.Warn("skipping misconfigured provider",
				zap.String("provider", d.ID), zap.Error(err))
			continue
		}
		providers = append(providers, provider{
			descriptor: d,
			client:     client,
			breaker:    llm.NewCircuitBreaker(d.ID, llm.DefaultCircuitBreakerConfig()),
		})
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no usable providers configured")
	}

	return &Orchestrator{
		providers: providers,
		scorer:    scorer,
		policy: retry.Policy{
			MaxRetries:        retryCfg.MaxRetries,
			InitialDelay:      retryCfg.InitialDelay,
			MaxDelay:          retryCfg.MaxDelay,
			BackoffMultiplier: retryCfg.BackoffMultiplier,
			JitterFactor:      0.1,
		},
		attemptTO:  retryCfg.AttemptTimeout,
		bestEffort: bestEffort,
		logger:     log,
	}, nil
}

// Generate runs the full state machine for one assembled prompt.
func (o *Orchestrator) Generate(ctx context.Context, prompt string, complexity models.QueryComplexity, schema models.SchemaSelection) (*Outcome, error) {
	chain := o.selectChain(complexity)
	if len(chain) == 0 {
		return nil, apperrors.New(apperrors.KindProvider,
			fmt.Sprintf("no available provider supports complexity %q", complexity), nil)
	}

	var attempts []models.ProviderAttempt
	bestRejected := ""
	var bestQuality models.QualityScore

	for _, p := range chain {
		if ok, err := p.breaker.Allow(); !ok {
			o.logger.Warn("provider skipped by circuit breaker",
				zap.String("provider", p.descriptor.ID), zap.Error(err))
			continue
		}

		result, attemptLog, err := o.attemptWithRetry(ctx, p, prompt)
		attempts = append(attempts, attemptLog...)
		if err != nil {
			p.breaker.RecordFailure()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue // FALLBACK
		}
		p.breaker.RecordSuccess()

		score := o.scorer.Score(result.Text, schema)
		attempts[len(attempts)-1].Quality = &score

		if o.scorer.Accept(score) {
			normalized := sqlcheck.Validate(result.Text).Normalized
			return &Outcome{
				SQL:        normalized,
				ProviderID: p.descriptor.ID,
				Quality:    score,
				Attempts:   attempts,
			}, nil
		}

		// Below the gate: treat as failure and continue the fallback
		// sequence, keeping the best candidate for diagnostics.
		attempts[len(attempts)-1].Outcome = models.OutcomeRejected
		o.logger.Warn("response rejected by quality gate",
			zap.String("provider", p.descriptor.ID),
			zap.Float64("overall", score.Overall),
			zap.Float64("min", o.scorer.MinOverall()))
		if score.Overall > bestQuality.Overall {
			bestQuality = score
			bestRejected = sqlcheck.Validate(result.Text).Normalized
		}
	}

	if bestRejected != "" && o.bestEffort {
		o.logger.Warn("returning best-effort sub-threshold response",
			zap.Float64("overall", bestQuality.Overall))
		return &Outcome{
			SQL:        bestRejected,
			Quality:    bestQuality,
			Attempts:   attempts,
			BestEffort: true,
		}, nil
	}

	return nil, &ExhaustedError{
		Attempts:     attempts,
		BestRejected: bestRejected,
		BestQuality:  bestQuality,
	}
}

// selectChain orders available providers by descending priority,
// filtered to those supporting the complexity. Providers sharing a
// priority rotate round-robin across requests so load spreads without
// affecting any single request's fallback order.
func (o *Orchestrator) selectChain(complexity models.QueryComplexity) []provider {
	var eligible []provider
	for _, p := range o.providers {
		if p.descriptor.Available && p.descriptor.Supports(complexity) {
			eligible = append(eligible, p)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].descriptor.Priority != eligible[j].descriptor.Priority {
			return eligible[i].descriptor.Priority > eligible[j].descriptor.Priority
		}
		return eligible[i].descriptor.ID < eligible[j].descriptor.ID
	})

	// Rotate within each equal-priority tier.
	offset := int(o.rrCounter.Add(1) - 1)
	rotated := make([]provider, 0, len(eligible))
	for i := 0; i < len(eligible); {
		j := i
		for j < len(eligible) && eligible[j].descriptor.Priority == eligible[i].descriptor.Priority {
			j++
		}
		tier := eligible[i:j]
		n := len(tier)
		for k := 0; k < n; k++ {
			rotated = append(rotated, tier[(k+offset)%n])
		}
		i = j
	}
	return rotated
}

// attemptWithRetry invokes one provider, retrying transient failures up
// to MaxRetries with exponential backoff. Every attempt is logged so
// diagnostics show the complete call history.
func (o *Orchestrator) attemptWithRetry(ctx context.Context, p provider, prompt string) (*llm.GenerateResult, []models.ProviderAttempt, error) {
	var attempts []models.ProviderAttempt

	result, err := retry.DoWithResult(ctx, o.policy, func(attempt int) (*llm.GenerateResult, error) {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if o.attemptTO > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, o.attemptTO)
			defer cancel()
		}

		record := models.ProviderAttempt{
			ProviderID: p.descriptor.ID,
			StartedAt:  time.Now(),
		}
		res, err := p.client.Generate(attemptCtx, llm.GenerateRequest{
			Prompt:      prompt,
			System:      systemMessage,
			Temperature: p.descriptor.Temperature,
			MaxTokens:   p.descriptor.MaxTokens,
		})
		record.EndedAt = time.Now()

		if err != nil {
			record.Outcome = classifyOutcome(err)
			record.Error = err.Error()
			attempts = append(attempts, record)
			return nil, err
		}
		record.Outcome = models.OutcomeSuccess
		record.TokensUsed = res.TokensUsed
		attempts = append(attempts, record)
		return res, nil
	})

	return result, attempts, err
}

func classifyOutcome(err error) models.AttemptOutcome {
	switch llm.TypeOf(err) {
	case llm.ErrorTypeTimeout:
		return models.OutcomeTimeout
	case llm.ErrorTypeRateLimit:
		return models.OutcomeRateLimited
	default:
		if errors.Is(err, context.DeadlineExceeded) {
			return models.OutcomeTimeout
		}
		return models.OutcomeError
	}
}

const systemMessage = "You are a SQL generation assistant for a gaming analytics warehouse. " +
	"Return exactly one SELECT statement answering the question, using only the tables and columns provided. " +
	"Do not explain; do not modify data."
