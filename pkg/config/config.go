// Package config loads the immutable engine configuration from
// config.yaml with environment variable overrides. Secrets (API keys,
// database password) come from the environment only.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"

	"github.com/wagerworks/sqlgen/pkg/models"
)

// Config holds all engine configuration. Loaded once at startup and
// threaded explicitly through constructors; nothing reads it as ambient
// global state.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"`

	Database    DatabaseConfig    `yaml:"database"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Ranking     RankingConfig     `yaml:"ranking"`
	Prompt      PromptConfig      `yaml:"prompt"`
	Retry       RetryConfig       `yaml:"retry"`
	Quality     QualityConfig     `yaml:"quality"`
	Cache       CacheConfig       `yaml:"cache"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`

	// ProvidersFile points at the declarative provider list.
	ProvidersFile string `yaml:"providers_file" env:"PROVIDERS_FILE" env-default:"providers.yaml"`
	// DictionariesFile points at domain term dictionaries and intent
	// exemplars, consumed as data.
	DictionariesFile string `yaml:"dictionaries_file" env:"DICTIONARIES_FILE" env-default:"dictionaries.yaml"`

	Providers []models.ProviderDescriptor `yaml:"-"`
}

// DatabaseConfig holds the PostgreSQL metadata catalog connection.
type DatabaseConfig struct {
	Host     string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User     string `yaml:"user" env:"PGUSER" env-default:"sqlgen"`
	Password string `yaml:"-" env:"PGPASSWORD"` // secret, env only
	Database string `yaml:"database" env:"PGDATABASE" env-default:"sqlgen_metadata"`
	SSLMode  string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConns int32  `yaml:"max_conns" env:"PGMAX_CONNS" env-default:"10"`
	// MigrationsPath points at the catalog migration directory; empty
	// skips migrations at startup.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:""`
}

// ConnectionString renders a pgx-compatible DSN.
func (c DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// EmbeddingConfig configures the embedding backend and its cache.
type EmbeddingConfig struct {
	Endpoint  string        `yaml:"endpoint" env:"EMBEDDING_ENDPOINT" env-default:""`
	Model     string        `yaml:"model" env:"EMBEDDING_MODEL" env-default:"text-embedding-3-small"`
	APIKey    string        `yaml:"-" env:"EMBEDDING_API_KEY"`
	Dimension int           `yaml:"dimension" env:"EMBEDDING_DIMENSION" env-default:"384"`
	CacheTTL  time.Duration `yaml:"cache_ttl" env:"EMBEDDING_CACHE_TTL" env-default:"24h"`
}

// RankingConfig holds schema relevance weights and limits. Weights should
// sum to 1.0 but are not forced to; the ranker uses them as given.
type RankingConfig struct {
	SemanticWeight   float64 `yaml:"semantic_weight" env-default:"0.4"`
	KeywordWeight    float64 `yaml:"keyword_weight" env-default:"0.25"`
	ImportanceWeight float64 `yaml:"importance_weight" env-default:"0.2"`
	EntityBonus      float64 `yaml:"entity_bonus" env-default:"0.15"`
	TopTables        int     `yaml:"top_tables" env-default:"50"`
	MaxColumns       int     `yaml:"max_columns" env-default:"200"`
	// RelevanceFloor is the minimum top-table score; everything below it
	// is reported as NoRelevantSchema.
	RelevanceFloor float64 `yaml:"relevance_floor" env-default:"0.15"`
}

// PromptConfig bounds assembled prompt size.
type PromptConfig struct {
	MaxChars int `yaml:"max_chars" env-default:"24000"`
}

// RetryConfig mirrors retry.Policy in configuration form.
type RetryConfig struct {
	MaxRetries        int           `yaml:"max_retries" env-default:"3"`
	InitialDelay      time.Duration `yaml:"initial_delay" env-default:"500ms"`
	MaxDelay          time.Duration `yaml:"max_delay" env-default:"10s"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" env-default:"2.0"`
	AttemptTimeout    time.Duration `yaml:"attempt_timeout" env-default:"30s"`
}

// QualityConfig holds response quality gate thresholds and scoring
// weights. Acceptance requires all three minima.
type QualityConfig struct {
	SyntaxWeight     float64 `yaml:"syntax_weight" env-default:"0.6"`
	SemanticWeight   float64 `yaml:"semantic_weight" env-default:"0.4"`
	IssuePenalty     float64 `yaml:"issue_penalty" env-default:"0.35"`
	MinSyntaxScore   float64 `yaml:"min_syntax_score" env-default:"0.7"`
	MinSemanticScore float64 `yaml:"min_semantic_score" env-default:"0.6"`
	MinOverallScore  float64 `yaml:"min_overall_score" env-default:"0.75"`
	// ReturnBestEffort controls what happens when every provider's
	// response scores below the gate: false (default) returns a hard
	// failure with the best candidate attached as diagnostics; true
	// promotes that candidate to a low-confidence success.
	ReturnBestEffort bool `yaml:"return_best_effort" env-default:"false"`
}

// CacheConfig configures the semantic result cache.
type CacheConfig struct {
	SimilarityThreshold float64       `yaml:"similarity_threshold" env-default:"0.85"`
	MaxEntries          int           `yaml:"max_entries" env-default:"10000"`
	DefaultTTL          time.Duration `yaml:"default_ttl" env-default:"1h"`
	// Redis is optional; when Host is empty the in-process store is used.
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds the optional remote cache backing store.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// ConcurrencyConfig bounds request and in-request parallelism.
type ConcurrencyConfig struct {
	MaxConcurrentQueries int           `yaml:"max_concurrent_queries" env-default:"100"`
	MaxParallelTasks     int           `yaml:"max_parallel_tasks" env-default:"4"`
	QueryTimeout         time.Duration `yaml:"query_timeout" env-default:"2m"`
}

// QueryTimeoutCeiling is the hard upper bound on any request, enforced
// regardless of configuration (security policy).
const QueryTimeoutCeiling = 5 * time.Minute

// Load reads config.yaml with env overrides, then the provider list.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}
	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("read config.yaml: %w", err)
	}
	if cfg.Concurrency.QueryTimeout > QueryTimeoutCeiling {
		cfg.Concurrency.QueryTimeout = QueryTimeoutCeiling
	}

	providers, err := LoadProviders(cfg.ProvidersFile)
	if err != nil {
		return nil, err
	}
	cfg.Providers = providers
	return cfg, nil
}

// LoadProviders reads the declarative provider list and injects API keys
// from the environment (PROVIDER_<ID>_API_KEY, uppercased, dashes to
// underscores).
func LoadProviders(path string) ([]models.ProviderDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers file %s: %w", path, err)
	}
	var doc struct {
		Providers []models.ProviderDescriptor `yaml:"providers"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse providers file %s: %w", path, err)
	}
	for i := range doc.Providers {
		envKey := "PROVIDER_" + strings.ReplaceAll(strings.ToUpper(doc.Providers[i].ID), "-", "_") + "_API_KEY"
		doc.Providers[i].APIKey = os.Getenv(envKey)
	}
	return doc.Providers, nil
}
