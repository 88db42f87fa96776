package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/wagerworks/sqlgen/pkg/cache"
	"github.com/wagerworks/sqlgen/pkg/config"
	"github.com/wagerworks/sqlgen/pkg/database"
	"github.com/wagerworks/sqlgen/pkg/embedding"
	"github.com/wagerworks/sqlgen/pkg/extract"
	"github.com/wagerworks/sqlgen/pkg/logging"
	"github.com/wagerworks/sqlgen/pkg/models"
	"github.com/wagerworks/sqlgen/pkg/orchestrator"
	"github.com/wagerworks/sqlgen/pkg/pipeline"
	"github.com/wagerworks/sqlgen/pkg/prompts"
	"github.com/wagerworks/sqlgen/pkg/quality"
	"github.com/wagerworks/sqlgen/pkg/ranking"
	"github.com/wagerworks/sqlgen/pkg/repositories"
	"github.com/wagerworks/sqlgen/pkg/workpool"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting sqlgen",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env),
		zap.Int("providers", len(cfg.Providers)))

	ctx := context.Background()

	if cfg.Database.MigrationsPath != "" {
		if err := database.RunMigrations(cfg.Database, cfg.Database.MigrationsPath, logger); err != nil {
			logger.Fatal("catalog migrations failed", zap.Error(err))
		}
	}

	db, err := database.NewConnection(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("metadata catalog connection failed", zap.Error(err))
	}
	defer db.Close()

	p, err := buildPipeline(ctx, cfg, db, logger)
	if err != nil {
		logger.Fatal("pipeline construction failed", zap.Error(err))
	}

	// Read one question per line from stdin, emit one JSON result per line.
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	encoder := json.NewEncoder(os.Stdout)
	for scanner.Scan() {
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		result := p.Process(ctx, question, "cli", "cli-session")
		if err := encoder.Encode(resultView(result)); err != nil {
			logger.Error("encode result", zap.Error(err))
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Fatal("read stdin", zap.Error(err))
	}
}

func buildPipeline(ctx context.Context, cfg *config.Config, db *database.DB, logger *zap.Logger) (*pipeline.Pipeline, error) {
	backend := embedding.NewOpenAIBackend(cfg.Embedding.Endpoint, cfg.Embedding.Model, cfg.Embedding.APIKey)
	embedder := embedding.NewService(backend, cfg.Embedding, logger)

	dicts, err := extract.LoadDictionaries(cfg.DictionariesFile)
	if err != nil {
		logger.Warn("dictionaries file not loaded, using built-in defaults", zap.Error(err))
		dicts = extract.DefaultDictionaries()
	}
	extractor := extract.NewExtractor(dicts, embedder, logger)

	pool := workpool.New(cfg.Concurrency.MaxParallelTasks, logger)
	ranker := ranking.NewRanker(cfg.Ranking, embedder, pool, logger)

	assembler := prompts.NewAssembler(repositories.NewTemplateRepository(db), cfg.Prompt.MaxChars, logger)

	scorer := quality.NewScorer(cfg.Quality, logger)
	orch, err := orchestrator.New(cfg.Providers, cfg.Retry, scorer, cfg.Quality.ReturnBestEffort, logger)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	var store cache.Store = cache.NewMemoryStore()
	redisClient, err := database.NewRedisClient(cfg.Cache.Redis)
	if err != nil {
		logger.Warn("redis unavailable, using in-process cache store", zap.Error(err))
	} else if redisClient != nil {
		store = cache.NewRedisStore(redisClient)
	}
	semanticCache := cache.New(store, cfg.Cache, logger)

	return pipeline.New(ctx, cfg, pipeline.Deps{
		Extractor: extractor,
		Ranker:    ranker,
		Embedder:  embedder,
		Assembler: assembler,
		Orch:      orch,
		Cache:     semanticCache,
		Metadata:  repositories.NewMetadataRepository(db),
		Rules:     repositories.NewRuleRepository(db),
	}, logger)
}

// resultView flattens the result for line-oriented output, trimming the
// internals a CLI consumer has no use for.
type view struct {
	Success     bool     `json:"success"`
	SQL         string   `json:"sql,omitempty"`
	Confidence  float64  `json:"confidence"`
	Provider    string   `json:"provider,omitempty"`
	Intent      string   `json:"intent,omitempty"`
	Tables      []string `json:"tables,omitempty"`
	CacheStatus string   `json:"cache_status"`
	ErrorKind   string   `json:"error_kind,omitempty"`
	Message     string   `json:"message,omitempty"`
	Ambiguities []string `json:"ambiguities,omitempty"`
	ElapsedMS   int64    `json:"elapsed_ms"`
}

func resultView(r *models.GenerationResult) view {
	v := view{
		Success:     r.Success,
		SQL:         r.SQL,
		Confidence:  r.Confidence,
		Provider:    r.ProviderID,
		Intent:      string(r.Intent),
		Tables:      r.Schema.TableNames(),
		CacheStatus: string(r.CacheStatus),
		ErrorKind:   r.ErrorKind,
		Message:     r.Message,
		ElapsedMS:   r.Elapsed.Milliseconds(),
	}
	for _, a := range r.Ambiguities {
		v.Ambiguities = append(v.Ambiguities, a.Kind+": "+a.Message)
	}
	return v
}
