// Package repositories provides read-only data access over the annotated
// metadata catalog: table/column metadata with semantic enrichment,
// declared relationships, domain rules and prompt templates. Collaborator
// outages surface as classified metadata errors and are never retried
// here; retry policy belongs to the caller.
package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wagerworks/sqlgen/pkg/apperrors"
	"github.com/wagerworks/sqlgen/pkg/database"
	"github.com/wagerworks/sqlgen/pkg/models"
)

// MetadataRepository supplies the schema catalog the ranker and join
// resolver consume.
type MetadataRepository interface {
	// ListTables returns every annotated table.
	ListTables(ctx context.Context) ([]models.TableMetadata, error)

	// ListColumns returns every annotated column, grouped by table.
	ListColumns(ctx context.Context) (map[string][]models.ColumnMetadata, error)

	// ListJoinEdges returns the declared relationships between tables.
	ListJoinEdges(ctx context.Context) ([]models.JoinEdge, error)

	// SearchTables returns tables whose name, purpose or keywords match
	// the term.
	SearchTables(ctx context.Context, term string) ([]models.TableMetadata, error)
}

type metadataRepository struct {
	db *database.DB
}

// NewMetadataRepository creates a MetadataRepository over the catalog pool.
func NewMetadataRepository(db *database.DB) MetadataRepository {
	return &metadataRepository{db: db}
}

var _ MetadataRepository = (*metadataRepository)(nil)

func (r *metadataRepository) ListTables(ctx context.Context) ([]models.TableMetadata, error) {
	query := `
		SELECT table_name, schema_name, row_count,
		       business_purpose, domain, importance, embedding, keywords, synonyms
		FROM schema_tables
		ORDER BY table_name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, metadataErr("list tables", err)
	}
	defer rows.Close()

	var tables []models.TableMetadata
	for rows.Next() {
		var t models.TableMetadata
		enrichment, scan := enrichmentScanner()
		if err := rows.Scan(append([]any{&t.Name, &t.Schema, &t.RowCount}, scan...)...); err != nil {
			return nil, metadataErr("scan table row", err)
		}
		t.Enrichment = enrichment()
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, metadataErr("iterate tables", err)
	}
	return tables, nil
}

func (r *metadataRepository) ListColumns(ctx context.Context) (map[string][]models.ColumnMetadata, error) {
	query := `
		SELECT table_name, column_name, data_type, is_primary,
		       business_purpose, domain, importance, embedding, keywords, synonyms
		FROM schema_columns
		ORDER BY table_name, column_name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, metadataErr("list columns", err)
	}
	defer rows.Close()

	columns := make(map[string][]models.ColumnMetadata)
	for rows.Next() {
		var c models.ColumnMetadata
		enrichment, scan := enrichmentScanner()
		if err := rows.Scan(append([]any{&c.Table, &c.Name, &c.DataType, &c.IsPrimary}, scan...)...); err != nil {
			return nil, metadataErr("scan column row", err)
		}
		c.Enrichment = enrichment()
		columns[c.Table] = append(columns[c.Table], c)
	}
	if err := rows.Err(); err != nil {
		return nil, metadataErr("iterate columns", err)
	}
	return columns, nil
}

func (r *metadataRepository) ListJoinEdges(ctx context.Context) ([]models.JoinEdge, error) {
	query := `
		SELECT left_table, left_column, right_table, right_column, join_type, confidence
		FROM schema_relationships
		ORDER BY left_table, right_table`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, metadataErr("list relationships", err)
	}
	defer rows.Close()

	var edges []models.JoinEdge
	for rows.Next() {
		var e models.JoinEdge
		var joinType string
		if err := rows.Scan(&e.LeftTable, &e.LeftColumn, &e.RightTable, &e.RightColumn, &joinType, &e.Confidence); err != nil {
			return nil, metadataErr("scan relationship row", err)
		}
		e.Type = models.JoinType(joinType)
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, metadataErr("iterate relationships", err)
	}
	return edges, nil
}

func (r *metadataRepository) SearchTables(ctx context.Context, term string) ([]models.TableMetadata, error) {
	query := `
		SELECT table_name, schema_name, row_count,
		       business_purpose, domain, importance, embedding, keywords, synonyms
		FROM schema_tables
		WHERE table_name ILIKE '%' || $1 || '%'
		   OR business_purpose ILIKE '%' || $1 || '%'
		   OR $1 = ANY(keywords)
		ORDER BY table_name`

	rows, err := r.db.Query(ctx, query, term)
	if err != nil {
		return nil, metadataErr("search tables", err)
	}
	defer rows.Close()

	var tables []models.TableMetadata
	for rows.Next() {
		var t models.TableMetadata
		enrichment, scan := enrichmentScanner()
		if err := rows.Scan(append([]any{&t.Name, &t.Schema, &t.RowCount}, scan...)...); err != nil {
			return nil, metadataErr("scan table row", err)
		}
		t.Enrichment = enrichment()
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, metadataErr("iterate tables", err)
	}
	return tables, nil
}

// enrichmentScanner returns scan targets for the nullable enrichment
// columns and a closure assembling them into a SemanticEnrichment, nil
// when the row carries no annotations at all.
func enrichmentScanner() (func() *models.SemanticEnrichment, []any) {
	var purpose, domain *string
	var importance *float64
	var vector []float32
	var keywords, synonyms []string

	build := func() *models.SemanticEnrichment {
		if purpose == nil && domain == nil && importance == nil &&
			len(vector) == 0 && len(keywords) == 0 && len(synonyms) == 0 {
			return nil
		}
		e := &models.SemanticEnrichment{
			Embedding: vector,
			Keywords:  keywords,
			Synonyms:  synonyms,
		}
		if purpose != nil {
			e.BusinessPurpose = *purpose
		}
		if domain != nil {
			e.Domain = *domain
		}
		if importance != nil {
			e.Importance = models.Clamp01(*importance)
		}
		return e
	}
	return build, []any{&purpose, &domain, &importance, &vector, &keywords, &synonyms}
}

// metadataErr classifies a catalog failure. pgx.ErrNoRows is passed
// through untouched; everything else is a collaborator outage.
func metadataErr(op string, err error) error {
	if err == pgx.ErrNoRows {
		return err
	}
	return apperrors.New(apperrors.KindMetadata,
		fmt.Sprintf("%s: %v", op, err), apperrors.ErrMetadataUnavailable)
}
