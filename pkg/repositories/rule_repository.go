package repositories

import (
	"context"

	"github.com/wagerworks/sqlgen/pkg/database"
	"github.com/wagerworks/sqlgen/pkg/models"
)

// RuleRepository supplies formatted business and compliance rules for
// prompt assembly.
type RuleRepository interface {
	// RulesByCategory returns domain rules for a category ("wagering",
	// "payments", ...), optionally filtered by intent.
	RulesByCategory(ctx context.Context, category string) ([]models.Rule, error)

	// ComplianceRules returns the regulatory rules included in every
	// prompt regardless of intent.
	ComplianceRules(ctx context.Context) ([]models.Rule, error)
}

type ruleRepository struct {
	db *database.DB
}

// NewRuleRepository creates a RuleRepository over the catalog pool.
func NewRuleRepository(db *database.DB) RuleRepository {
	return &ruleRepository{db: db}
}

var _ RuleRepository = (*ruleRepository)(nil)

func (r *ruleRepository) RulesByCategory(ctx context.Context, category string) ([]models.Rule, error) {
	query := `
		SELECT category, intent, rule_text
		FROM domain_rules
		WHERE category = $1
		ORDER BY id`

	rows, err := r.db.Query(ctx, query, category)
	if err != nil {
		return nil, metadataErr("list domain rules", err)
	}
	defer rows.Close()

	var rules []models.Rule
	for rows.Next() {
		var rule models.Rule
		var intent string
		if err := rows.Scan(&rule.Category, &intent, &rule.Text); err != nil {
			return nil, metadataErr("scan rule row", err)
		}
		rule.Intent = models.IntentType(intent)
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, metadataErr("iterate rules", err)
	}
	return rules, nil
}

func (r *ruleRepository) ComplianceRules(ctx context.Context) ([]models.Rule, error) {
	query := `
		SELECT category, intent, rule_text
		FROM compliance_rules
		ORDER BY id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, metadataErr("list compliance rules", err)
	}
	defer rows.Close()

	var rules []models.Rule
	for rows.Next() {
		var rule models.Rule
		var intent string
		if err := rows.Scan(&rule.Category, &intent, &rule.Text); err != nil {
			return nil, metadataErr("scan compliance rule row", err)
		}
		rule.Intent = models.IntentType(intent)
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, metadataErr("iterate compliance rules", err)
	}
	return rules, nil
}
