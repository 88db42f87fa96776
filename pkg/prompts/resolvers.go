package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/wagerworks/sqlgen/pkg/models"
)

func resolveQuery(_ context.Context, req Request) (string, error) {
	return req.Query.RawText, nil
}

func resolveIntent(_ context.Context, req Request) (string, error) {
	return string(req.Intent), nil
}

// resolveSchemaDefinition renders the ranked tables with their relevant
// columns, most relevant first, including the score reasoning so the
// model sees why each table was chosen.
func resolveSchemaDefinition(_ context.Context, req Request) (string, error) {
	if len(req.Schema.Tables) == 0 {
		return "", nil
	}

	columnsFor := make(map[string][]models.RelevanceScore)
	for _, col := range req.Schema.Columns {
		table := col.Subject[:strings.LastIndex(col.Subject, ".")]
		columnsFor[table] = append(columnsFor[table], col)
	}

	var b strings.Builder
	for i, table := range req.Schema.Tables {
		fmt.Fprintf(&b, "### %s (relevance %.2f)\n", table.Subject, table.Score)
		if meta, ok := req.Schema.TableMeta[table.Subject]; ok && meta.Enrichment != nil && meta.Enrichment.BusinessPurpose != "" {
			fmt.Fprintf(&b, "Purpose: %s\n", meta.Enrichment.BusinessPurpose)
		}
		if cols := columnsFor[table.Subject]; len(cols) > 0 {
			b.WriteString("Columns:\n")
			for _, col := range cols {
				name := col.Subject[strings.LastIndex(col.Subject, ".")+1:]
				fmt.Fprintf(&b, "  - %s", name)
				if full := lookupColumn(req.Schema, table.Subject, name); full != nil {
					fmt.Fprintf(&b, " (%s)", full.DataType)
					if full.Enrichment != nil && full.Enrichment.BusinessPurpose != "" {
						fmt.Fprintf(&b, " — %s", full.Enrichment.BusinessPurpose)
					}
				}
				b.WriteString("\n")
			}
		}
		if i < len(req.Schema.Tables)-1 {
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

func lookupColumn(s models.SchemaSelection, table, name string) *models.ColumnMetadata {
	for _, col := range s.ColumnsByTable[table] {
		if col.Name == name {
			return &col
		}
	}
	return nil
}

// resolveJoinPath renders the resolved path as JOIN hints.
func resolveJoinPath(_ context.Context, req Request) (string, error) {
	if req.Path == nil || req.Path.Trivial() {
		return "", nil
	}
	var b strings.Builder
	b.WriteString("Join the tables as follows:\n")
	for _, e := range req.Path.Edges {
		fmt.Fprintf(&b, "  %s JOIN %s ON %s.%s = %s.%s (confidence %.2f)\n",
			strings.ToUpper(string(e.Type)), e.RightTable,
			e.LeftTable, e.LeftColumn, e.RightTable, e.RightColumn, e.Confidence)
	}
	return b.String(), nil
}

// resolveBusinessContext summarizes the extracted entities.
func resolveBusinessContext(_ context.Context, req Request) (string, error) {
	if len(req.Entities) == 0 {
		return "", nil
	}
	var b strings.Builder
	for _, ent := range req.Entities {
		fmt.Fprintf(&b, "- %s: %q -> %s", ent.Type, ent.Text, ent.Normalized)
		if ent.DateRange != nil {
			fmt.Fprintf(&b, " [%s .. %s)",
				ent.DateRange.From.Format("2006-01-02"), ent.DateRange.To.Format("2006-01-02"))
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

func resolveDomainRules(_ context.Context, req Request) (string, error) {
	return renderRules(req.DomainRules), nil
}

func resolveComplianceRules(_ context.Context, req Request) (string, error) {
	return renderRules(req.ComplianceRules), nil
}

func renderRules(rules []models.Rule) string {
	if len(rules) == 0 {
		return ""
	}
	var b strings.Builder
	for _, r := range rules {
		fmt.Fprintf(&b, "- %s\n", r.Text)
	}
	return b.String()
}

// resolveExamples includes only examples matching the detected intent
// and at most the query's complexity.
func resolveExamples(_ context.Context, req Request) (string, error) {
	rank := map[models.QueryComplexity]int{
		models.ComplexitySimple:      0,
		models.ComplexityMedium:      1,
		models.ComplexityComplex:     2,
		models.ComplexityVeryComplex: 3,
	}
	var b strings.Builder
	for _, ex := range req.Examples {
		if ex.Intent != req.Intent {
			continue
		}
		if rank[ex.Complexity] > rank[req.Query.Complexity] {
			continue
		}
		fmt.Fprintf(&b, "Q: %s\nSQL: %s\n\n", ex.Question, ex.SQL)
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}
