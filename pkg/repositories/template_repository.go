package repositories

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"gopkg.in/yaml.v3"

	"github.com/wagerworks/sqlgen/pkg/database"
)

// TemplateRepository supplies prompt template text by key. It satisfies
// the assembler's TemplateStore contract.
type TemplateRepository interface {
	TemplateByKey(ctx context.Context, key string) (string, error)
}

type templateRepository struct {
	db *database.DB
}

// NewTemplateRepository creates a TemplateRepository over the catalog pool.
func NewTemplateRepository(db *database.DB) TemplateRepository {
	return &templateRepository{db: db}
}

var _ TemplateRepository = (*templateRepository)(nil)

func (r *templateRepository) TemplateByKey(ctx context.Context, key string) (string, error) {
	query := `SELECT template_text FROM prompt_templates WHERE template_key = $1`

	var text string
	err := r.db.QueryRow(ctx, query, key).Scan(&text)
	if err == pgx.ErrNoRows {
		return "", fmt.Errorf("template %q not found", key)
	}
	if err != nil {
		return "", metadataErr("load template", err)
	}
	return text, nil
}

// StaticTemplateStore serves templates from memory, loaded from YAML or
// built in code. Used for local runs and tests where no catalog exists.
type StaticTemplateStore struct {
	templates map[string]string
}

// NewStaticTemplateStore wraps a key-to-text map.
func NewStaticTemplateStore(templates map[string]string) *StaticTemplateStore {
	return &StaticTemplateStore{templates: templates}
}

// LoadTemplateStore reads a YAML file of the form
// `templates: {key: text}` into a StaticTemplateStore.
func LoadTemplateStore(path string) (*StaticTemplateStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates file %s: %w", path, err)
	}
	var doc struct {
		Templates map[string]string `yaml:"templates"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse templates file %s: %w", path, err)
	}
	return NewStaticTemplateStore(doc.Templates), nil
}

// TemplateByKey returns the template or an error for unknown keys.
func (s *StaticTemplateStore) TemplateByKey(_ context.Context, key string) (string, error) {
	text, ok := s.templates[key]
	if !ok {
		return "", fmt.Errorf("template %q not found", key)
	}
	return text, nil
}
