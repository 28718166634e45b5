package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// KV is a session-scoped key-value store. Get reports ok=false for a missing
// key.
type KV interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	// Close ends the session and drops everything it stored.
	Close(ctx context.Context) error
}

// MemoryKV is an in-process KV.
type MemoryKV struct {
	data map[string][]byte
	mu   sync.RWMutex
}

// NewMemoryKV creates an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryKV) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryKV) Close(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
	return nil
}

// RedisKV stores keys under a per-session namespace with a TTL, so an
// abandoned session expires on its own.
type RedisKV struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration

	keys map[string]struct{}
	mu   sync.Mutex
}

// NewRedisKV creates a store namespaced by prefix and sessionID. A ttl <= 0
// stores keys without expiry.
func NewRedisKV(client *redis.Client, prefix, sessionID string, ttl time.Duration) *RedisKV {
	return &RedisKV{
		client:    client,
		namespace: fmt.Sprintf("%s:%s", prefix, sessionID),
		ttl:       ttl,
		keys:      make(map[string]struct{}),
	}
}

// Key returns the namespaced Redis key.
func (r *RedisKV) Key(key string) string {
	return r.namespace + ":" + key
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.client.Get(ctx, r.Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.Key(key), string(value), r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	r.mu.Lock()
	r.keys[key] = struct{}{}
	r.mu.Unlock()
	return nil
}

func (r *RedisKV) Remove(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.Key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	r.mu.Lock()
	delete(r.keys, key)
	r.mu.Unlock()
	return nil
}

// Close deletes every key this session wrote.
func (r *RedisKV) Close(ctx context.Context) error {
	r.mu.Lock()
	keys := make([]string, 0, len(r.keys))
	for k := range r.keys {
		keys = append(keys, r.Key(k))
	}
	r.keys = make(map[string]struct{})
	r.mu.Unlock()

	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis cleanup: %w", err)
	}
	return nil
}
