// Package ranking scores tables and columns against a query using
// semantic similarity, keyword overlap, static business importance and
// entity-type bonuses, and keeps the signal breakdown for explainability.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/wagerworks/sqlgen/pkg/apperrors"
	"github.com/wagerworks/sqlgen/pkg/config"
	"github.com/wagerworks/sqlgen/pkg/embedding"
	"github.com/wagerworks/sqlgen/pkg/models"
	"github.com/wagerworks/sqlgen/pkg/workpool"
)

// Catalog is the read-only metadata snapshot for one request.
type Catalog struct {
	Tables  []models.TableMetadata
	Columns map[string][]models.ColumnMetadata // keyed by table name
}

// Ranker scores schema objects against queries.
type Ranker struct {
	cfg      config.RankingConfig
	embedder *embedding.Service
	pool     *workpool.Pool
	logger   *zap.Logger
}

// NewRanker builds a ranker; pool bounds parallel table scoring.
func NewRanker(cfg config.RankingConfig, embedder *embedding.Service, pool *workpool.Pool, logger *zap.Logger) *Ranker {
	return &Ranker{cfg: cfg, embedder: embedder, pool: pool, logger: logger.Named("ranking")}
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "by": true, "for": true,
	"from": true, "how": true, "in": true, "is": true, "of": true, "on": true,
	"or": true, "show": true, "the": true, "to": true, "was": true, "were": true,
	"what": true, "when": true, "which": true, "with": true, "me": true,
}

// queryKeywords tokenizes the normalized query, drops stopwords and
// singularizes each term so plural phrasings match dictionary keywords.
func queryKeywords(normalized string) []string {
	var kws []string
	for _, w := range strings.Fields(normalized) {
		w = strings.Trim(w, ",.;:()'\"")
		if w == "" || stopwords[w] {
			continue
		}
		kws = append(kws, inflection.Singular(w))
	}
	return kws
}

// Rank scores the catalog against the query. Deterministic for a fixed
// catalog and query: ties break on static importance, then name.
func (r *Ranker) Rank(ctx context.Context, query models.Query, intent models.IntentType, entities []models.EntityMention, catalog Catalog) (models.SchemaSelection, error) {
	if len(catalog.Tables) == 0 {
		return models.SchemaSelection{}, apperrors.New(apperrors.KindSchemaResolution,
			"catalog is empty", apperrors.ErrNoRelevantSchema)
	}

	keywords := queryKeywords(query.Normalized)

	queryVec, err := r.embedder.Embed(ctx, query.Normalized)
	semanticAvailable := err == nil
	if err != nil && !errors.Is(err, apperrors.ErrEmbeddingUnavailable) {
		return models.SchemaSelection{}, err
	}
	if !semanticAvailable {
		r.logger.Warn("ranking degraded to keyword-only scoring")
	}

	// Tables related to an extracted entity get the bonus signal.
	bonusTables := make(map[string]bool)
	for _, ent := range entities {
		for _, t := range ent.RelatedTables {
			bonusTables[t] = true
		}
	}

	tableScores := r.scoreTables(ctx, catalog.Tables, queryVec, keywords, bonusTables, semanticAvailable)

	sort.SliceStable(tableScores, func(i, j int) bool {
		if tableScores[i].score.Score != tableScores[j].score.Score {
			return tableScores[i].score.Score > tableScores[j].score.Score
		}
		if tableScores[i].meta.Importance() != tableScores[j].meta.Importance() {
			return tableScores[i].meta.Importance() > tableScores[j].meta.Importance()
		}
		return tableScores[i].meta.Name < tableScores[j].meta.Name
	})

	if tableScores[0].score.Score < r.cfg.RelevanceFloor {
		return models.SchemaSelection{}, apperrors.New(apperrors.KindSchemaResolution,
			fmt.Sprintf("top table score %.3f below floor %.3f", tableScores[0].score.Score, r.cfg.RelevanceFloor),
			apperrors.ErrNoRelevantSchema)
	}

	topK := r.cfg.TopTables
	if topK <= 0 || topK > len(tableScores) {
		topK = len(tableScores)
	}
	selected := tableScores[:topK]

	selection := models.SchemaSelection{
		TableMeta:      make(map[string]models.TableMetadata, topK),
		ColumnsByTable: make(map[string][]models.ColumnMetadata, topK),
	}
	for _, ts := range selected {
		selection.Tables = append(selection.Tables, ts.score)
		selection.TableMeta[ts.meta.Name] = ts.meta
		selection.ColumnsByTable[ts.meta.Name] = catalog.Columns[ts.meta.Name]
	}

	selection.Columns = r.scoreColumns(ctx, selected, catalog, queryVec, keywords, semanticAvailable)
	return selection, nil
}

type scoredTable struct {
	meta  models.TableMetadata
	score models.RelevanceScore
}

// scoreTables scores all tables in parallel batches; scoring is pure per
// table so completion order does not affect the result.
func (r *Ranker) scoreTables(ctx context.Context, tables []models.TableMetadata, queryVec []float32, keywords []string, bonusTables map[string]bool, semantic bool) []scoredTable {
	items := make([]workpool.Item[scoredTable], len(tables))
	for i, table := range tables {
		table := table
		items[i] = workpool.Item[scoredTable]{
			ID: table.Name,
			Execute: func(context.Context) (scoredTable, error) {
				return scoredTable{meta: table, score: r.scoreTable(table, queryVec, keywords, bonusTables, semantic)}, nil
			},
		}
	}

	results := workpool.Process(ctx, r.pool, items)
	scored := make([]scoredTable, 0, len(results))
	for _, res := range results {
		if res.Err == nil {
			scored = append(scored, res.Value)
		}
	}
	return scored
}

func (r *Ranker) scoreTable(table models.TableMetadata, queryVec []float32, keywords []string, bonusTables map[string]bool, semantic bool) models.RelevanceScore {
	var signals models.SignalBreakdown

	if semantic && table.Enrichment != nil {
		signals.SemanticSimilarity = embedding.CosineSimilarity(queryVec, table.Enrichment.Embedding)
	}
	signals.KeywordOverlap = keywordOverlap(keywords, tableKeywords(table))
	signals.Importance = table.Importance()
	if bonusTables[table.Name] {
		signals.EntityTypeBonus = 1
	}

	score := r.cfg.SemanticWeight*signals.SemanticSimilarity +
		r.cfg.KeywordWeight*signals.KeywordOverlap +
		r.cfg.ImportanceWeight*signals.Importance +
		r.cfg.EntityBonus*signals.EntityTypeBonus

	return models.RelevanceScore{
		Subject:   table.Name,
		Score:     score,
		Signals:   signals,
		Reasoning: explain(table.Name, signals),
	}
}

// scoreColumns scores columns of the selected tables with column-level
// signals (business meaning and synonym overlap), capped at MaxColumns
// across all tables.
func (r *Ranker) scoreColumns(ctx context.Context, selected []scoredTable, catalog Catalog, queryVec []float32, keywords []string, semantic bool) []models.RelevanceScore {
	type scoredColumn struct {
		meta  models.ColumnMetadata
		score models.RelevanceScore
	}

	var all []scoredColumn
	for _, ts := range selected {
		for _, col := range catalog.Columns[ts.meta.Name] {
			var signals models.SignalBreakdown
			if semantic && col.Enrichment != nil {
				signals.SemanticSimilarity = embedding.CosineSimilarity(queryVec, col.Enrichment.Embedding)
			}
			signals.KeywordOverlap = keywordOverlap(keywords, columnKeywords(col))
			signals.Importance = col.Importance()

			score := r.cfg.SemanticWeight*signals.SemanticSimilarity +
				r.cfg.KeywordWeight*signals.KeywordOverlap +
				r.cfg.ImportanceWeight*signals.Importance

			all = append(all, scoredColumn{meta: col, score: models.RelevanceScore{
				Subject:   col.QualifiedName(),
				Score:     score,
				Signals:   signals,
				Reasoning: explain(col.QualifiedName(), signals),
			}})
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].score.Score != all[j].score.Score {
			return all[i].score.Score > all[j].score.Score
		}
		if all[i].meta.Importance() != all[j].meta.Importance() {
			return all[i].meta.Importance() > all[j].meta.Importance()
		}
		return all[i].score.Subject < all[j].score.Subject
	})

	limit := r.cfg.MaxColumns
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	scores := make([]models.RelevanceScore, limit)
	for i := 0; i < limit; i++ {
		scores[i] = all[i].score
	}
	return scores
}

// keywordOverlap = |matched query keywords| / |query keywords|.
func keywordOverlap(queryKws, subjectKws []string) float64 {
	if len(queryKws) == 0 {
		return 0
	}
	subject := make(map[string]bool, len(subjectKws))
	for _, kw := range subjectKws {
		subject[inflection.Singular(strings.ToLower(kw))] = true
	}
	matched := 0
	for _, kw := range queryKws {
		if subject[kw] {
			matched++
		}
	}
	return float64(matched) / float64(len(queryKws))
}

func tableKeywords(table models.TableMetadata) []string {
	kws := strings.Split(table.Name, "_")
	if table.Enrichment != nil {
		kws = append(kws, table.Enrichment.Keywords...)
		kws = append(kws, table.Enrichment.Synonyms...)
	}
	return kws
}

func columnKeywords(col models.ColumnMetadata) []string {
	kws := strings.Split(col.Name, "_")
	if col.Enrichment != nil {
		kws = append(kws, col.Enrichment.Keywords...)
		kws = append(kws, col.Enrichment.Synonyms...)
		kws = append(kws, strings.Fields(strings.ToLower(col.Enrichment.BusinessPurpose))...)
	}
	return kws
}

func explain(subject string, s models.SignalBreakdown) string {
	return fmt.Sprintf("%s: semantic=%.2f keywords=%.2f importance=%.2f entity_bonus=%.2f",
		subject, s.SemanticSimilarity, s.KeywordOverlap, s.Importance, s.EntityTypeBonus)
}
