// Package pipeline runs the end-to-end generation flow in strict stage
// order: extract -> rank -> resolve joins -> assemble prompt -> cache
// lookup -> orchestrate providers -> quality gate -> cache write. Schema
// ambiguities are attached to the result, never aborting the run; partial
// diagnostics survive every failure path.
package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/wagerworks/sqlgen/pkg/apperrors"
	"github.com/wagerworks/sqlgen/pkg/cache"
	"github.com/wagerworks/sqlgen/pkg/config"
	"github.com/wagerworks/sqlgen/pkg/embedding"
	"github.com/wagerworks/sqlgen/pkg/extract"
	"github.com/wagerworks/sqlgen/pkg/joins"
	"github.com/wagerworks/sqlgen/pkg/logging"
	"github.com/wagerworks/sqlgen/pkg/models"
	"github.com/wagerworks/sqlgen/pkg/orchestrator"
	"github.com/wagerworks/sqlgen/pkg/prompts"
	"github.com/wagerworks/sqlgen/pkg/ranking"
	"github.com/wagerworks/sqlgen/pkg/repositories"
)

// templateKey names the generation prompt template.
const templateKey = "sql_generation"

// Pipeline wires the stages together. The schema catalog and relationship
// graph are loaded once at construction and read-only afterwards; call
// Reload to pick up catalog changes.
type Pipeline struct {
	cfg       *config.Config
	extractor *extract.Extractor
	ranker    *ranking.Ranker
	embedder  *embedding.Service
	assembler *prompts.Assembler
	orch      *orchestrator.Orchestrator
	cache     *cache.SemanticCache
	metadata  repositories.MetadataRepository
	rules     repositories.RuleRepository
	logger    *zap.Logger

	// requests bounds concurrent in-flight queries.
	requests *semaphore.Weighted

	catalog  ranking.Catalog
	resolver *joins.Resolver
	examples []prompts.ExamplePair
}

// Deps are the constructed collaborators the pipeline composes.
type Deps struct {
	Extractor *extract.Extractor
	Ranker    *ranking.Ranker
	Embedder  *embedding.Service
	Assembler *prompts.Assembler
	Orch      *orchestrator.Orchestrator
	Cache     *cache.SemanticCache
	Metadata  repositories.MetadataRepository
	Rules     repositories.RuleRepository
	Examples  []prompts.ExamplePair
}

// New loads the catalog and relationship graph and returns a ready
// pipeline.
func New(ctx context.Context, cfg *config.Config, deps Deps, logger *zap.Logger) (*Pipeline, error) {
	p := &Pipeline{
		cfg:       cfg,
		extractor: deps.Extractor,
		ranker:    deps.Ranker,
		embedder:  deps.Embedder,
		assembler: deps.Assembler,
		orch:      deps.Orch,
		cache:     deps.Cache,
		metadata:  deps.Metadata,
		rules:     deps.Rules,
		examples:  deps.Examples,
		logger:    logger.Named("pipeline"),
		requests:  semaphore.NewWeighted(int64(cfg.Concurrency.MaxConcurrentQueries)),
	}
	if err := p.Reload(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload refreshes the schema catalog and relationship graph from the
// metadata repository.
func (p *Pipeline) Reload(ctx context.Context) error {
	tables, err := p.metadata.ListTables(ctx)
	if err != nil {
		return err
	}
	columns, err := p.metadata.ListColumns(ctx)
	if err != nil {
		return err
	}
	edges, err := p.metadata.ListJoinEdges(ctx)
	if err != nil {
		return err
	}

	p.catalog = ranking.Catalog{Tables: tables, Columns: columns}
	p.resolver = joins.NewResolver(joins.NewGraph(edges), p.logger)
	p.logger.Info("schema catalog loaded",
		zap.Int("tables", len(tables)),
		zap.Int("relationships", len(edges)))
	return nil
}

// Process runs one natural-language question through the full pipeline.
// The returned result is always non-nil: failures carry the error kind
// plus whatever diagnostics the completed stages produced.
func (p *Pipeline) Process(ctx context.Context, rawQuery, userID, sessionID string) *models.GenerationResult {
	started := time.Now()
	query := models.NewQuery(rawQuery, userID, sessionID, started)
	result := &models.GenerationResult{Query: query, CacheStatus: models.CacheMiss}

	if err := p.requests.Acquire(ctx, 1); err != nil {
		return p.fail(result, apperrors.KindProvider, "request admission cancelled", err, started)
	}
	defer p.requests.Release(1)

	timeout := p.cfg.Concurrency.QueryTimeout
	if timeout <= 0 || timeout > config.QueryTimeoutCeiling {
		timeout = config.QueryTimeoutCeiling
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Stage 1: intent + entities.
	intent, entities, err := p.extractor.Extract(ctx, query)
	if err != nil {
		return p.fail(result, apperrors.KindExtraction, "entity extraction failed", err, started)
	}
	result.Intent = intent
	result.Entities = entities

	// Stage 2: schema relevance.
	schema, err := p.ranker.Rank(ctx, query, intent, entities, p.catalog)
	if err != nil {
		if errors.Is(err, apperrors.ErrNoRelevantSchema) {
			result.Ambiguities = append(result.Ambiguities, models.Ambiguity{
				Kind:    "unknown_term",
				Message: "no schema object scored above the relevance floor",
				Terms:   mentionTexts(entities),
			})
		}
		return p.fail(result, apperrors.KindSchemaResolution, "schema ranking failed", err, started)
	}
	result.Schema = schema

	// Stage 3: join resolution over the strongly-relevant tables only.
	// Ambiguity is attached, not fatal; the prompt proceeds without a
	// join hint.
	resolution := p.resolver.ResolvePath(joinCandidates(schema))
	result.Path = resolution.Path
	if resolution.Ambiguity != nil {
		result.Ambiguities = append(result.Ambiguities, *resolution.Ambiguity)
	}

	// Stage 4: prompt assembly. Rules degrade to empty on collaborator
	// outage; only the mandatory placeholders can fail assembly.
	domainRules, complianceRules := p.loadRules(ctx, schema)
	prompt, err := p.assembler.Assemble(ctx, templateKey, prompts.Request{
		Query:           query,
		Intent:          intent,
		Entities:        entities,
		Schema:          schema,
		Path:            resolution.Path,
		DomainRules:     domainRules,
		ComplianceRules: complianceRules,
		Examples:        p.examples,
	})
	if err != nil {
		return p.fail(result, apperrors.KindPromptValidation, "prompt assembly failed", err, started)
	}
	result.Prompt = prompt

	// Stage 5-8: cache lookup, generation, quality gate, cache write.
	// Identical concurrent fingerprints share one generation.
	fingerprint := cache.Fingerprint(query.Normalized, templateKey, string(intent))
	queryVec, embErr := p.embedder.Embed(ctx, query.Normalized)
	if embErr != nil {
		queryVec = nil // exact-match-only lookup
	}

	var outcome *orchestrator.Outcome
	lookup, err := p.cache.GetOrGenerate(ctx, fingerprint, queryVec, cache.PolicySliding,
		func(genCtx context.Context) (cache.Payload, error) {
			out, genErr := p.orch.Generate(genCtx, prompt, query.Complexity, schema)
			if genErr != nil {
				return cache.Payload{}, genErr
			}
			outcome = out
			confidence := out.Quality.Overall
			if out.BestEffort {
				confidence = out.Quality.Overall * 0.5
			}
			return cache.Payload{
				Prompt:     prompt,
				SQL:        out.SQL,
				Confidence: confidence,
				Intent:     string(intent),
				Tables:     schema.TableNames(),
				ProviderID: out.ProviderID,
			}, nil
		})
	if err != nil {
		var exhausted *orchestrator.ExhaustedError
		if errors.As(err, &exhausted) {
			result.Attempts = exhausted.Attempts
			result.BestRejected = exhausted.BestRejected
			result.Confidence = exhausted.BestQuality.Overall
			return p.fail(result, apperrors.KindQualityGate, "no provider response accepted", err, started)
		}
		return p.fail(result, apperrors.KindProvider, "generation failed", err, started)
	}

	if outcome != nil {
		result.Attempts = outcome.Attempts
	}
	result.Success = true
	result.SQL = lookup.Payload.SQL
	result.Confidence = lookup.Payload.Confidence
	result.ProviderID = lookup.Payload.ProviderID
	result.CacheStatus = cacheStatus(lookup.Kind)
	result.Elapsed = time.Since(started)

	p.logger.Info("query processed",
		zap.String("query_id", query.ID.String()),
		zap.String("intent", string(intent)),
		zap.String("cache", string(result.CacheStatus)),
		zap.String("provider", result.ProviderID),
		zap.Float64("confidence", result.Confidence),
		zap.Duration("elapsed", result.Elapsed))
	return result
}

// loadRules fetches domain rules for the top-ranked table's domain plus
// the always-on compliance rules. Collaborator failures log and degrade
// to empty; the prompt's rule sections are optional.
func (p *Pipeline) loadRules(ctx context.Context, schema models.SchemaSelection) ([]models.Rule, []models.Rule) {
	var domainRules, complianceRules []models.Rule

	if p.rules == nil {
		return nil, nil
	}
	if domain := topDomain(schema); domain != "" {
		rules, err := p.rules.RulesByCategory(ctx, domain)
		if err != nil {
			p.logger.Warn("domain rules unavailable", zap.Error(err))
		} else {
			domainRules = rules
		}
	}
	rules, err := p.rules.ComplianceRules(ctx)
	if err != nil {
		p.logger.Warn("compliance rules unavailable", zap.Error(err))
	} else {
		complianceRules = rules
	}
	return domainRules, complianceRules
}

// topDomain returns the business domain of the highest-ranked table.
func topDomain(schema models.SchemaSelection) string {
	if len(schema.Tables) == 0 {
		return ""
	}
	meta, ok := schema.TableMeta[schema.Tables[0].Subject]
	if !ok || meta.Enrichment == nil {
		return ""
	}
	return meta.Enrichment.Domain
}

func (p *Pipeline) fail(result *models.GenerationResult, kind apperrors.Kind, message string, err error, started time.Time) *models.GenerationResult {
	result.Success = false
	result.ErrorKind = string(kind)
	result.Message = message
	result.Elapsed = time.Since(started)
	p.logger.Warn("query failed",
		zap.String("query_id", result.Query.ID.String()),
		zap.String("kind", string(kind)),
		zap.String("error", logging.SanitizeError(err)))
	return result
}

// maxJoinTables bounds how many ranked tables join resolution considers.
const maxJoinTables = 6

// joinCandidates narrows the ranked selection to tables that plausibly
// belong in the same statement: everything within half the top score, up
// to maxJoinTables. Weakly-relevant context tables stay in the prompt
// but do not force spurious disconnected-graph ambiguities.
func joinCandidates(schema models.SchemaSelection) []string {
	if len(schema.Tables) == 0 {
		return nil
	}
	floor := schema.Tables[0].Score * 0.5
	names := make([]string, 0, maxJoinTables)
	for _, t := range schema.Tables {
		if t.Score < floor || len(names) == maxJoinTables {
			break
		}
		names = append(names, t.Subject)
	}
	return names
}

func mentionTexts(entities []models.EntityMention) []string {
	texts := make([]string, 0, len(entities))
	for _, e := range entities {
		texts = append(texts, e.Text)
	}
	return texts
}

func cacheStatus(kind cache.HitKind) models.CacheStatus {
	switch kind {
	case cache.ExactHit:
		return models.CacheHitExact
	case cache.SemanticHit:
		return models.CacheHitSemantic
	default:
		return models.CacheMiss
	}
}
