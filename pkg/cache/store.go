package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Payload is the cached end-to-end result for one fingerprint.
type Payload struct {
	Prompt     string   `json:"prompt"`
	SQL        string   `json:"sql"`
	Confidence float64  `json:"confidence"`
	Intent     string   `json:"intent"`
	Tables     []string `json:"tables"`
	ProviderID string   `json:"provider_id"`
}

// Store is the backing key-value contract: in-process or remote, keyed
// by fingerprint with TTL support.
type Store interface {
	Get(ctx context.Context, fingerprint string) (*Payload, error)
	Set(ctx context.Context, fingerprint string, payload Payload, ttl time.Duration) error
	// Touch renews the TTL of an existing entry so sliding-policy hits
	// keep the stored payload alive past its original deadline.
	Touch(ctx context.Context, fingerprint string, ttl time.Duration) error
	Delete(ctx context.Context, fingerprint string) error
}

// MemoryStore is the in-process backing store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	payload   Payload
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// Get returns the payload or nil when absent/expired.
func (s *MemoryStore) Get(_ context.Context, fingerprint string) (*Payload, error) {
	s.mu.RLock()
	entry, ok := s.entries[fingerprint]
	s.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, nil
	}
	payload := entry.payload
	return &payload, nil
}

// Set stores the payload with the given TTL.
func (s *MemoryStore) Set(_ context.Context, fingerprint string, payload Payload, ttl time.Duration) error {
	s.mu.Lock()
	s.entries[fingerprint] = memoryEntry{payload: payload, expiresAt: time.Now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// Touch renews the expiry of an existing entry; missing entries are a
// no-op.
func (s *MemoryStore) Touch(_ context.Context, fingerprint string, ttl time.Duration) error {
	s.mu.Lock()
	if entry, ok := s.entries[fingerprint]; ok {
		entry.expiresAt = time.Now().Add(ttl)
		s.entries[fingerprint] = entry
	}
	s.mu.Unlock()
	return nil
}

// Delete removes the entry.
func (s *MemoryStore) Delete(_ context.Context, fingerprint string) error {
	s.mu.Lock()
	delete(s.entries, fingerprint)
	s.mu.Unlock()
	return nil
}

var _ Store = (*MemoryStore)(nil)

// RedisStore backs the cache with Redis, JSON-encoding payloads. TTL is
// delegated to Redis key expiry.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "sqlgen:cache:"}
}

// Get fetches and decodes the payload; a missing key is a nil payload,
// not an error.
func (s *RedisStore) Get(ctx context.Context, fingerprint string) (*Payload, error) {
	data, err := s.client.Get(ctx, s.prefix+fingerprint).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode cached payload: %w", err)
	}
	return &payload, nil
}

// Set encodes and stores the payload with TTL.
func (s *RedisStore) Set(ctx context.Context, fingerprint string, payload Payload, ttl time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+fingerprint, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Touch renews the key expiry.
func (s *RedisStore) Touch(ctx context.Context, fingerprint string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, s.prefix+fingerprint, ttl).Err(); err != nil {
		return fmt.Errorf("redis expire: %w", err)
	}
	return nil
}

// Delete removes the key.
func (s *RedisStore) Delete(ctx context.Context, fingerprint string) error {
	if err := s.client.Del(ctx, s.prefix+fingerprint).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
