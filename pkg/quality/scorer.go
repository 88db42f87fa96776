// Package quality gates generated SQL: structural syntax checks plus
// semantic plausibility against the schema selection the prompt carried.
package quality

import (
	"strings"

	"go.uber.org/zap"

	"github.com/wagerworks/sqlgen/pkg/config"
	"github.com/wagerworks/sqlgen/pkg/models"
	"github.com/wagerworks/sqlgen/pkg/sqlcheck"
)

// Scorer computes QualityScores for generated SQL.
type Scorer struct {
	cfg    config.QualityConfig
	logger *zap.Logger
}

// NewScorer builds a scorer with the configured thresholds. A zero-value
// blend falls back to the standard 0.6/0.4 weights and 0.35 penalty.
func NewScorer(cfg config.QualityConfig, logger *zap.Logger) *Scorer {
	if cfg.SyntaxWeight == 0 && cfg.SemanticWeight == 0 {
		cfg.SyntaxWeight, cfg.SemanticWeight = 0.6, 0.4
	}
	if cfg.IssuePenalty == 0 {
		cfg.IssuePenalty = 0.35
	}
	return &Scorer{cfg: cfg, logger: logger.Named("quality")}
}

// Score validates the SQL structurally and checks that the identifiers
// it references come from the selected schema. Overall blends syntax and
// semantic scores with the configured weights.
func (s *Scorer) Score(sql string, schema models.SchemaSelection) models.QualityScore {
	result := sqlcheck.Validate(sql)

	syntax := 1.0 - s.cfg.IssuePenalty*float64(len(result.Issues))
	if syntax < 0 {
		syntax = 0
	}

	semantic := s.semanticScore(result.Normalized, schema)
	overall := s.cfg.SyntaxWeight*syntax + s.cfg.SemanticWeight*semantic

	score := models.QualityScore{
		Syntax:   syntax,
		Semantic: semantic,
		Overall:  overall,
	}
	s.logger.Debug("response scored",
		zap.Float64("syntax", syntax),
		zap.Float64("semantic", semantic),
		zap.Float64("overall", overall),
		zap.Int("issues", len(result.Issues)))
	return score
}

// semanticScore is the fraction of referenced identifiers that resolve
// to a selected table, column, or alias-looking derivative.
func (s *Scorer) semanticScore(sql string, schema models.SchemaSelection) float64 {
	identifiers := sqlcheck.ReferencedIdentifiers(sql)
	if len(identifiers) == 0 {
		return 0
	}

	known := make(map[string]bool)
	for _, t := range schema.Tables {
		known[strings.ToLower(t.Subject)] = true
	}
	for _, c := range schema.Columns {
		lower := strings.ToLower(c.Subject)
		known[lower] = true
		if idx := strings.LastIndex(lower, "."); idx >= 0 {
			known[lower[idx+1:]] = true
		}
	}

	matched := 0
	for _, id := range identifiers {
		if known[id] {
			matched++
			continue
		}
		// table.column where the column half is known
		if idx := strings.LastIndex(id, "."); idx >= 0 && known[id[idx+1:]] {
			matched++
		}
	}
	return float64(matched) / float64(len(identifiers))
}

// MinOverall returns the configured acceptance threshold.
func (s *Scorer) MinOverall() float64 { return s.cfg.MinOverallScore }

// Accept applies the full gate: both per-axis minima and the overall
// threshold must clear.
func (s *Scorer) Accept(score models.QualityScore) bool {
	return score.Syntax >= s.cfg.MinSyntaxScore &&
		score.Semantic >= s.cfg.MinSemanticScore &&
		score.Passes(s.cfg.MinOverallScore)
}
