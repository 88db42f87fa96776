// Package extract classifies query intent and finds typed entity
// mentions (metric, temporal, financial, player, game) in the question.
package extract

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/wagerworks/sqlgen/pkg/apperrors"
	"github.com/wagerworks/sqlgen/pkg/embedding"
	"github.com/wagerworks/sqlgen/pkg/models"
)

// Extractor resolves intent and entities for a query. Its only side
// effect is populating the embedding cache.
type Extractor struct {
	dicts      *Dictionaries
	categories []compiledCategory
	embedder   *embedding.Service
	logger     *zap.Logger
}

// compiledCategory holds one dictionary category with its synonym
// patterns compiled once at construction, keyed back to the owning term.
type compiledCategory struct {
	entityType models.EntityType
	patterns   []synonymPattern
}

type synonymPattern struct {
	term    Term
	synonym string
	re      *regexp.Regexp
}

// NewExtractor builds an extractor over the loaded dictionaries,
// compiling every synonym matcher up front.
func NewExtractor(dicts *Dictionaries, embedder *embedding.Service, logger *zap.Logger) *Extractor {
	return &Extractor{
		dicts: dicts,
		categories: []compiledCategory{
			{entityType: models.EntityMetric, patterns: compileTerms(dicts.Metrics)},
			{entityType: models.EntityPlayer, patterns: compileTerms(dicts.Players)},
			{entityType: models.EntityGame, patterns: compileTerms(dicts.Games)},
		},
		embedder: embedder,
		logger:   logger.Named("extract"),
	}
}

func compileTerms(terms []Term) []synonymPattern {
	var patterns []synonymPattern
	for _, term := range terms {
		for _, syn := range term.Synonyms {
			patterns = append(patterns, synonymPattern{
				term:    term,
				synonym: syn,
				re:      regexp.MustCompile(`\b` + regexp.QuoteMeta(syn) + `s?\b`),
			})
		}
	}
	return patterns
}

// Extract classifies the query intent and returns deduplicated entity
// mentions. An empty query is an extraction error.
func (e *Extractor) Extract(ctx context.Context, query models.Query) (models.IntentType, []models.EntityMention, error) {
	if strings.TrimSpace(query.Normalized) == "" {
		return "", nil, apperrors.New(apperrors.KindExtraction, "query is empty", apperrors.ErrEmptyQuery)
	}

	intent, err := e.classifyIntent(ctx, query.Normalized)
	if err != nil {
		return "", nil, err
	}

	// Each category is extracted independently, then merged.
	var mentions []models.EntityMention
	for _, cat := range e.categories {
		mentions = append(mentions, matchTerms(query.Normalized, cat)...)
	}
	mentions = append(mentions, extractTemporal(query.Normalized, query.ReceivedAt)...)
	mentions = append(mentions, extractFinancial(query.Normalized)...)

	merged := dedupeOverlaps(mentions)
	e.logger.Debug("extraction complete",
		zap.String("intent", string(intent)),
		zap.Int("mentions", len(merged)))
	return intent, merged, nil
}

// classifyIntent combines keyword hits with embedding similarity against
// the exemplar phrases of each intent. Ties break on the highest single
// exemplar match, then lexical intent order, for full determinism.
func (e *Extractor) classifyIntent(ctx context.Context, normalized string) (models.IntentType, error) {
	type candidate struct {
		intent       models.IntentType
		score        float64
		bestExemplar float64
	}

	queryVec, embedErr := e.embedder.Embed(ctx, normalized)
	if embedErr != nil && !errors.Is(embedErr, apperrors.ErrEmbeddingUnavailable) {
		return "", embedErr
	}
	if embedErr != nil {
		e.logger.Warn("intent classification degraded to keywords only")
	}

	candidates := make([]candidate, 0, len(e.dicts.Intents))
	for _, ex := range e.dicts.Intents {
		c := candidate{intent: models.IntentType(ex.Intent)}

		hits := 0
		for _, kw := range ex.Keywords {
			if strings.Contains(normalized, kw) {
				hits++
			}
		}
		if len(ex.Keywords) > 0 {
			c.score = float64(hits) / float64(len(ex.Keywords))
		}

		if queryVec != nil && len(ex.Phrases) > 0 {
			vecs, err := e.embedder.EmbedBatch(ctx, ex.Phrases)
			if err == nil {
				for _, v := range vecs {
					sim := embedding.CosineSimilarity(queryVec, v)
					if sim > c.bestExemplar {
						c.bestExemplar = sim
					}
				}
				c.score = 0.5*c.score + 0.5*c.bestExemplar
			}
		}
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].bestExemplar != candidates[j].bestExemplar {
			return candidates[i].bestExemplar > candidates[j].bestExemplar
		}
		return candidates[i].intent < candidates[j].intent
	})

	if len(candidates) == 0 || candidates[0].score == 0 {
		return models.IntentSelect, nil
	}
	return candidates[0].intent, nil
}

// matchTerms finds dictionary synonyms in the text as whole-word matches
// using the category's precompiled patterns. Plural surface forms match
// their singular dictionary entries.
func matchTerms(normalized string, cat compiledCategory) []models.EntityMention {
	var mentions []models.EntityMention
	for _, p := range cat.patterns {
		for _, loc := range p.re.FindAllStringIndex(normalized, -1) {
			confidence := 0.7
			matched := normalized[loc[0]:loc[1]]
			if inflection.Singular(matched) == p.synonym || matched == p.synonym {
				confidence = 0.9
			}
			if p.synonym == p.term.Canonical {
				confidence += 0.05
			}
			mentions = append(mentions, models.EntityMention{
				Type:          cat.entityType,
				Text:          matched,
				Start:         loc[0],
				End:           loc[1],
				Confidence:    models.Clamp01(confidence),
				Normalized:    p.term.Canonical,
				Synonyms:      p.term.Synonyms,
				RelatedTables: p.term.RelatedTables,
			})
		}
	}
	return mentions
}

// dedupeOverlaps drops overlapping mentions of the same type, keeping
// the highest confidence; equal confidence keeps the longer span.
func dedupeOverlaps(mentions []models.EntityMention) []models.EntityMention {
	sort.SliceStable(mentions, func(i, j int) bool {
		if mentions[i].Confidence != mentions[j].Confidence {
			return mentions[i].Confidence > mentions[j].Confidence
		}
		if mentions[i].Span() != mentions[j].Span() {
			return mentions[i].Span() > mentions[j].Span()
		}
		return mentions[i].Start < mentions[j].Start
	})

	var kept []models.EntityMention
	for _, m := range mentions {
		conflict := false
		for _, k := range kept {
			if k.Type == m.Type && k.Overlaps(m) {
				conflict = true
				break
			}
		}
		if !conflict {
			kept = append(kept, m)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}
