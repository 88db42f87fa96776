// Package embedding produces fixed-dimension vectors for text, cached by
// content hash, with cosine similarity helpers for the ranker and cache.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wagerworks/sqlgen/pkg/apperrors"
	"github.com/wagerworks/sqlgen/pkg/config"
)

// Backend is the raw embeddings endpoint. The OpenAI-compatible client
// implements it; tests inject a deterministic fake.
type Backend interface {
	CreateEmbedding(ctx context.Context, input string) ([]float32, error)
	CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error)
}

type cachedVector struct {
	vector    []float32
	expiresAt time.Time
}

// Service caches vectors by a sha256 of the input text. Identical input
// always yields an identical vector within the cache TTL; when the
// backend is down a stale cached vector is served instead of failing.
type Service struct {
	backend Backend
	ttl     time.Duration
	logger  *zap.Logger

	mu    sync.RWMutex
	cache map[string]cachedVector
}

// NewService creates an embedding service over the given backend.
func NewService(backend Backend, cfg config.EmbeddingConfig, logger *zap.Logger) *Service {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		backend: backend,
		ttl:     ttl,
		logger:  logger.Named("embedding"),
		cache:   make(map[string]cachedVector),
	}
}

// HashText returns the cache key for a piece of text.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Embed returns the vector for text, from cache when fresh. On backend
// failure it falls back to a previously computed vector if one exists
// (even expired), else returns ErrEmbeddingUnavailable so the caller can
// degrade to keyword-only scoring.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	key := HashText(text)

	s.mu.RLock()
	entry, ok := s.cache[key]
	s.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.vector, nil
	}

	vector, err := s.backend.CreateEmbedding(ctx, text)
	if err != nil {
		if ok {
			s.logger.Warn("embedding backend failed, serving stale vector",
				zap.String("hash", key[:12]), zap.Error(err))
			return entry.vector, nil
		}
		return nil, apperrors.New(apperrors.KindSchemaResolution, "embed text",
			apperrors.ErrEmbeddingUnavailable)
	}

	s.store(key, vector)
	return vector, nil
}

// EmbedBatch embeds a sequence, preserving order. Cached entries are not
// re-requested; only misses hit the backend.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	now := time.Now()
	s.mu.RLock()
	for i, text := range texts {
		if entry, ok := s.cache[HashText(text)]; ok && now.Before(entry.expiresAt) {
			results[i] = entry.vector
		} else {
			missing = append(missing, text)
			missingIdx = append(missingIdx, i)
		}
	}
	s.mu.RUnlock()

	if len(missing) == 0 {
		return results, nil
	}

	vectors, err := s.backend.CreateEmbeddings(ctx, missing)
	if err != nil {
		return nil, apperrors.New(apperrors.KindSchemaResolution, "embed batch",
			apperrors.ErrEmbeddingUnavailable)
	}
	for j, vector := range vectors {
		results[missingIdx[j]] = vector
		s.store(HashText(missing[j]), vector)
	}
	return results, nil
}

func (s *Service) store(key string, vector []float32) {
	s.mu.Lock()
	s.cache[key] = cachedVector{vector: vector, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()
}

// CacheSize returns the number of cached vectors.
func (s *Service) CacheSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}
