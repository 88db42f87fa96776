package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wagerworks/sqlgen/pkg/config"
)

func testCacheConfig() config.CacheConfig {
	return config.CacheConfig{
		SimilarityThreshold: 0.85,
		MaxEntries:          100,
		DefaultTTL:          time.Hour,
	}
}

func newTestCache(cfg config.CacheConfig) *SemanticCache {
	return New(NewMemoryStore(), cfg, zap.NewNop())
}

func payload(sql string) Payload {
	return Payload{SQL: sql, Confidence: 0.9, Intent: "aggregate", ProviderID: "p1"}
}

func TestFingerprint_ContextSensitive(t *testing.T) {
	a := Fingerprint("total ggr last month", "sql_generation")
	b := Fingerprint("total ggr last month", "sql_generation")
	c := Fingerprint("total ggr last month", "other_template")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, Fingerprint("different question", "sql_generation"))
}

func TestSemanticCache_ExactHit(t *testing.T) {
	c := newTestCache(testCacheConfig())
	fp := Fingerprint("total ggr", "k")
	vec := []float32{1, 0}

	c.Set(context.Background(), fp, vec, payload("SELECT 1"), PolicyAbsolute)

	lookup := c.Get(context.Background(), fp, vec)
	assert.Equal(t, ExactHit, lookup.Kind)
	require.NotNil(t, lookup.Payload)
	assert.Equal(t, "SELECT 1", lookup.Payload.SQL)
}

func TestSemanticCache_SemanticHitTagged(t *testing.T) {
	c := newTestCache(testCacheConfig())
	c.Set(context.Background(), Fingerprint("total ggr last month", "k"),
		[]float32{1, 0.05}, payload("SELECT 1"), PolicyAbsolute)

	// Different fingerprint, nearly identical embedding.
	lookup := c.Get(context.Background(), Fingerprint("overall ggr for last month", "k"), []float32{1, 0})
	assert.Equal(t, SemanticHit, lookup.Kind)
	assert.GreaterOrEqual(t, lookup.Similarity, 0.85)
	require.NotNil(t, lookup.Payload)
}

func TestSemanticCache_BelowThresholdIsMiss(t *testing.T) {
	c := newTestCache(testCacheConfig())
	c.Set(context.Background(), Fingerprint("q1", "k"), []float32{1, 0}, payload("SELECT 1"), PolicyAbsolute)

	lookup := c.Get(context.Background(), Fingerprint("q2", "k"), []float32{0, 1})
	assert.Equal(t, Miss, lookup.Kind)
}

func TestSemanticCache_ExpiredNeverServed(t *testing.T) {
	cfg := testCacheConfig()
	cfg.DefaultTTL = 5 * time.Millisecond
	c := newTestCache(cfg)
	fp := Fingerprint("q", "k")
	vec := []float32{1, 0}

	c.Set(context.Background(), fp, vec, payload("SELECT 1"), PolicyAbsolute)
	time.Sleep(20 * time.Millisecond)

	lookup := c.Get(context.Background(), fp, vec)
	assert.Equal(t, Miss, lookup.Kind, "expired exact match must not be served")

	lookup = c.Get(context.Background(), Fingerprint("q2", "k"), vec)
	assert.Equal(t, Miss, lookup.Kind, "expired entries excluded from the semantic scan")
}

func TestSemanticCache_EvictsAboveMaxEntries(t *testing.T) {
	cfg := testCacheConfig()
	cfg.MaxEntries = 2
	c := newTestCache(cfg)

	ctx := context.Background()
	low := payload("SELECT 1")
	low.Confidence = 0.1
	c.Set(ctx, "fp-low", []float32{1, 0}, low, PolicyAbsolute)
	c.Set(ctx, "fp-a", []float32{0, 1}, payload("SELECT 2"), PolicyAbsolute)
	c.Set(ctx, "fp-b", []float32{1, 1}, payload("SELECT 3"), PolicyAbsolute)

	assert.Equal(t, 2, c.Size())
	lookup := c.Get(ctx, "fp-low", nil)
	assert.Equal(t, Miss, lookup.Kind, "lowest relevance entry evicted first")
}

func TestSemanticCache_GetOrGenerate_SingleFlight(t *testing.T) {
	c := newTestCache(testCacheConfig())
	fp := Fingerprint("q", "k")

	var generations atomic.Int32
	generate := func(ctx context.Context) (Payload, error) {
		generations.Add(1)
		time.Sleep(10 * time.Millisecond)
		return payload("SELECT 1"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lookup, err := c.GetOrGenerate(context.Background(), fp, nil, PolicyAbsolute, generate)
			assert.NoError(t, err)
			assert.NotNil(t, lookup.Payload)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), generations.Load(), "concurrent identical requests share one generation")
}

func TestSemanticCache_GetOrGenerate_ErrorReleasesFlight(t *testing.T) {
	c := newTestCache(testCacheConfig())
	fp := Fingerprint("q", "k")
	boom := errors.New("provider exploded")

	_, err := c.GetOrGenerate(context.Background(), fp, nil, PolicyAbsolute,
		func(context.Context) (Payload, error) { return Payload{}, boom })
	require.ErrorIs(t, err, boom)

	// The failed flight must not wedge subsequent calls.
	lookup, err := c.GetOrGenerate(context.Background(), fp, nil, PolicyAbsolute,
		func(context.Context) (Payload, error) { return payload("SELECT 1"), nil })
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", lookup.Payload.SQL)
}

func TestSemanticCache_SlidingPolicyRenewsOnHit(t *testing.T) {
	cfg := testCacheConfig()
	cfg.DefaultTTL = 40 * time.Millisecond
	c := newTestCache(cfg)
	fp := Fingerprint("q", "k")

	c.Set(context.Background(), fp, nil, payload("SELECT 1"), PolicySliding)

	// Keep touching within the TTL; the sliding policy keeps it alive
	// past the original absolute expiry.
	for i := 0; i < 4; i++ {
		time.Sleep(20 * time.Millisecond)
		lookup := c.Get(context.Background(), fp, nil)
		require.Equal(t, ExactHit, lookup.Kind, "touch %d", i)
	}
}

func TestSemanticCache_SlidingHitRenewsBackingStore(t *testing.T) {
	cfg := testCacheConfig()
	cfg.DefaultTTL = 40 * time.Millisecond
	store := NewMemoryStore()
	c := New(store, cfg, zap.NewNop())
	fp := Fingerprint("q", "k")

	c.Set(context.Background(), fp, nil, payload("SELECT 1"), PolicySliding)

	// Touch past the original write deadline, then confirm the payload
	// itself survived in the store, not just the index entry.
	for i := 0; i < 4; i++ {
		time.Sleep(20 * time.Millisecond)
		lookup := c.Get(context.Background(), fp, nil)
		require.Equal(t, ExactHit, lookup.Kind, "touch %d", i)
	}
	got, err := store.Get(context.Background(), fp)
	require.NoError(t, err)
	require.NotNil(t, got, "store TTL renewed alongside the index")
	assert.Equal(t, "SELECT 1", got.SQL)
}

func TestMemoryStore_TouchRenewsTTL(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "fp", payload("SELECT 1"), 50*time.Millisecond))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, s.Touch(ctx, "fp", 200*time.Millisecond))
	time.Sleep(40 * time.Millisecond) // past the original deadline

	got, err := s.Get(ctx, "fp")
	require.NoError(t, err)
	require.NotNil(t, got)

	// Touching an absent key is a no-op, not an error.
	require.NoError(t, s.Touch(ctx, "missing", time.Hour))
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	got, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Set(ctx, "fp", payload("SELECT 1"), time.Hour))
	got, err = s.Get(ctx, "fp")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "SELECT 1", got.SQL)

	require.NoError(t, s.Delete(ctx, "fp"))
	got, err = s.Get(ctx, "fp")
	require.NoError(t, err)
	assert.Nil(t, got)
}
