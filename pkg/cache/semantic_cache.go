// Package cache is the similarity-aware result cache: exact fingerprint
// hits, embedding-similarity "semantic" hits, TTL and size-bounded
// eviction, and a per-fingerprint lock so concurrent identical requests
// trigger exactly one generation.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wagerworks/sqlgen/pkg/config"
	"github.com/wagerworks/sqlgen/pkg/embedding"
)

// Policy selects TTL behavior.
type Policy string

const (
	// PolicyAbsolute expires an entry TTL after creation regardless of use.
	PolicyAbsolute Policy = "absolute"
	// PolicySliding renews the expiry on every hit.
	PolicySliding Policy = "sliding"
)

// HitKind distinguishes how a lookup was satisfied.
type HitKind int

const (
	Miss HitKind = iota
	ExactHit
	// SemanticHit matched by embedding similarity, not fingerprint;
	// callers may re-validate these lower-confidence results.
	SemanticHit
)

// Lookup is the result of Get.
type Lookup struct {
	Kind       HitKind
	Payload    *Payload
	Similarity float64 // set for semantic hits
}

type indexEntry struct {
	fingerprint string
	embedding   []float32
	createdAt   time.Time
	expiresAt   time.Time
	ttl         time.Duration
	policy      Policy
	hitCount    int64
	lastAccess  time.Time
	relevance   float64 // generation confidence at write time
}

// Fingerprint hashes the normalized query plus the request context that
// affects generation, producing the deterministic cache key.
func Fingerprint(normalizedQuery string, contextParts ...string) string {
	h := sha256.New()
	h.Write([]byte(normalizedQuery))
	for _, part := range contextParts {
		h.Write([]byte{0})
		h.Write([]byte(strings.ToLower(part)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SemanticCache layers the similarity index and eviction policy over a
// backing Store. Store failures degrade to a miss; they never fail the
// request.
type SemanticCache struct {
	store      Store
	cfg        config.CacheConfig
	logger     *zap.Logger
	generation singleflight.Group

	mu    sync.Mutex
	index map[string]*indexEntry
}

// New creates a cache over the given backing store.
func New(store Store, cfg config.CacheConfig, logger *zap.Logger) *SemanticCache {
	return &SemanticCache{
		store:  store,
		cfg:    cfg,
		logger: logger.Named("cache"),
		index:  make(map[string]*indexEntry),
	}
}

// Get looks up an exact fingerprint hit first, then scans for the most
// similar non-expired entry at or above the similarity threshold. An
// expired entry is never served, even on an exact match.
func (c *SemanticCache) Get(ctx context.Context, fingerprint string, queryEmbedding []float32) Lookup {
	now := time.Now()

	c.mu.Lock()
	entry, ok := c.index[fingerprint]
	if ok && now.After(entry.expiresAt) {
		delete(c.index, fingerprint)
		ok = false
	}
	var best *indexEntry
	bestSim := 0.0
	if !ok && len(queryEmbedding) > 0 {
		for _, candidate := range c.index {
			if now.After(candidate.expiresAt) {
				continue
			}
			sim := embedding.CosineSimilarity(queryEmbedding, candidate.embedding)
			if sim >= c.cfg.SimilarityThreshold && sim > bestSim {
				best, bestSim = candidate, sim
			}
		}
	}
	var slideFP string
	var slideTTL time.Duration
	if ok {
		if c.touch(entry, now) {
			slideFP, slideTTL = entry.fingerprint, entry.ttl
		}
	} else if best != nil {
		if c.touch(best, now) {
			slideFP, slideTTL = best.fingerprint, best.ttl
		}
	}
	c.mu.Unlock()

	switch {
	case ok:
		payload, err := c.store.Get(ctx, fingerprint)
		if err != nil || payload == nil {
			c.warnStore(err)
			return Lookup{Kind: Miss}
		}
		c.renewStore(ctx, slideFP, slideTTL)
		return Lookup{Kind: ExactHit, Payload: payload}
	case best != nil:
		payload, err := c.store.Get(ctx, best.fingerprint)
		if err != nil || payload == nil {
			c.warnStore(err)
			return Lookup{Kind: Miss}
		}
		c.renewStore(ctx, slideFP, slideTTL)
		c.logger.Debug("semantic cache hit", zap.Float64("similarity", bestSim))
		return Lookup{Kind: SemanticHit, Payload: payload, Similarity: bestSim}
	default:
		return Lookup{Kind: Miss}
	}
}

// touch updates hit stats and slides the index expiry when the policy
// says so, reporting whether it slid. Caller holds c.mu.
func (c *SemanticCache) touch(entry *indexEntry, now time.Time) bool {
	entry.hitCount++
	entry.lastAccess = now
	if entry.policy != PolicySliding {
		return false
	}
	entry.expiresAt = now.Add(entry.ttl)
	return true
}

// renewStore extends the backing store TTL after a sliding hit so the
// payload outlives its original write deadline along with the index
// entry. Failures degrade like any other store error.
func (c *SemanticCache) renewStore(ctx context.Context, fingerprint string, ttl time.Duration) {
	if fingerprint == "" {
		return
	}
	if err := c.store.Touch(ctx, fingerprint, ttl); err != nil {
		c.warnStore(err)
	}
}

// Set writes the payload under its exact fingerprint along with the
// query embedding, evicting if the store exceeds the size bound.
func (c *SemanticCache) Set(ctx context.Context, fingerprint string, queryEmbedding []float32, payload Payload, policy Policy) {
	ttl := c.cfg.DefaultTTL
	now := time.Now()

	if err := c.store.Set(ctx, fingerprint, payload, ttl); err != nil {
		c.warnStore(err)
		return
	}

	c.mu.Lock()
	c.index[fingerprint] = &indexEntry{
		fingerprint: fingerprint,
		embedding:   queryEmbedding,
		createdAt:   now,
		expiresAt:   now.Add(ttl),
		ttl:         ttl,
		policy:      policy,
		lastAccess:  now,
		relevance:   payload.Confidence,
	}
	evicted := c.evictLocked(now)
	c.mu.Unlock()

	for _, fp := range evicted {
		if err := c.store.Delete(ctx, fp); err != nil {
			c.warnStore(err)
		}
	}
}

// evictLocked removes expired entries, then drops the entries with the
// lowest recency-times-relevance score until the cache fits: least
// recently used among the least relevant go first. Caller holds c.mu.
func (c *SemanticCache) evictLocked(now time.Time) []string {
	var evicted []string
	for fp, entry := range c.index {
		if now.After(entry.expiresAt) {
			delete(c.index, fp)
			evicted = append(evicted, fp)
		}
	}

	limit := c.cfg.MaxEntries
	if limit <= 0 {
		return evicted
	}
	for len(c.index) > limit {
		worstScore := 0.0
		worstFP := ""
		first := true
		for fp, entry := range c.index {
			idle := now.Sub(entry.lastAccess).Seconds()
			score := entry.relevance / (1 + idle)
			if first || score < worstScore || (score == worstScore && fp < worstFP) {
				worstScore, worstFP, first = score, fp, false
			}
		}
		delete(c.index, worstFP)
		evicted = append(evicted, worstFP)
	}
	return evicted
}

// GetOrGenerate returns the cached payload or runs generate exactly once
// per fingerprint: concurrent callers for the same fingerprint share the
// single in-flight computation. A cancelled computation propagates its
// error to all waiters and releases the flight, so duplicates are never
// starved by a dangling lock.
func (c *SemanticCache) GetOrGenerate(ctx context.Context, fingerprint string, queryEmbedding []float32, policy Policy, generate func(ctx context.Context) (Payload, error)) (Lookup, error) {
	if lookup := c.Get(ctx, fingerprint, queryEmbedding); lookup.Kind != Miss {
		return lookup, nil
	}

	result, err, shared := c.generation.Do(fingerprint, func() (any, error) {
		// Re-check: another flight may have populated the entry
		// between our miss and acquiring the flight.
		if lookup := c.Get(ctx, fingerprint, queryEmbedding); lookup.Kind != Miss {
			return lookup, nil
		}
		payload, err := generate(ctx)
		if err != nil {
			return Lookup{}, err
		}
		c.Set(ctx, fingerprint, queryEmbedding, payload, policy)
		return Lookup{Kind: Miss, Payload: &payload}, nil
	})
	if err != nil {
		return Lookup{Kind: Miss}, err
	}
	if shared {
		c.logger.Debug("duplicate request joined in-flight generation",
			zap.String("fingerprint", fingerprint[:12]))
	}
	return result.(Lookup), nil
}

func (c *SemanticCache) warnStore(err error) {
	if err != nil {
		c.logger.Warn("cache store degraded to miss", zap.Error(err))
	}
}

// Size returns the number of indexed entries.
func (c *SemanticCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}
