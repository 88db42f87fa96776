package repositories

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticTemplateStore_TemplateByKey(t *testing.T) {
	store := NewStaticTemplateStore(map[string]string{
		"sql_generation": "Question: {QUERY}",
	})

	text, err := store.TemplateByKey(context.Background(), "sql_generation")
	require.NoError(t, err)
	assert.Equal(t, "Question: {QUERY}", text)

	_, err = store.TemplateByKey(context.Background(), "missing")
	assert.Error(t, err)
}

func TestLoadTemplateStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	doc := "templates:\n  sql_generation: |\n    Schema: {SCHEMA_DEFINITION}\n    Question: {QUERY}\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	store, err := LoadTemplateStore(path)
	require.NoError(t, err)

	text, err := store.TemplateByKey(context.Background(), "sql_generation")
	require.NoError(t, err)
	assert.Contains(t, text, "{SCHEMA_DEFINITION}")
}

func TestLoadTemplateStore_MissingFile(t *testing.T) {
	_, err := LoadTemplateStore(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
