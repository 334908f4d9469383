package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Marker keys. These are the only two pieces of state the engine persists
// beyond the browsing session: enough to re-establish an offline identity on
// the next start, nothing more.
const (
	MarkerOfflineIdentity = "offline_identity"
	MarkerLastKnownRole   = "last_known_role"
)

// MarkerStore is scoped durable string-keyed storage for session bootstrap
// markers. Get returns "" for an absent key.
type MarkerStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// RedisMarkers stores markers in Redis under a scope prefix.
type RedisMarkers struct {
	rdb   *redis.Client
	scope string
}

// NewRedisMarkers connects to Redis and verifies the connection.
func NewRedisMarkers(addr, password string, db int, scope string) (*RedisMarkers, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisMarkers{rdb: rdb, scope: scope}, nil
}

// Close closes the Redis connection.
func (m *RedisMarkers) Close() error {
	return m.rdb.Close()
}

func (m *RedisMarkers) key(k string) string {
	return fmt.Sprintf("%s:markers:%s", m.scope, k)
}

func (m *RedisMarkers) Get(ctx context.Context, key string) (string, error) {
	val, err := m.rdb.Get(ctx, m.key(key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("marker get failed: %w", err)
	}
	return val, nil
}

func (m *RedisMarkers) Set(ctx context.Context, key, value string) error {
	if err := m.rdb.Set(ctx, m.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("marker set failed: %w", err)
	}
	return nil
}

func (m *RedisMarkers) Delete(ctx context.Context, keys ...string) error {
	scoped := make([]string, len(keys))
	for i, k := range keys {
		scoped[i] = m.key(k)
	}
	if err := m.rdb.Del(ctx, scoped...).Err(); err != nil {
		return fmt.Errorf("marker delete failed: %w", err)
	}
	return nil
}

// MemoryMarkers is the in-process MarkerStore used in tests and in runs
// without a Redis.
type MemoryMarkers struct {
	mu sync.Mutex
	m  map[string]string
}

func NewMemoryMarkers() *MemoryMarkers {
	return &MemoryMarkers{m: make(map[string]string)}
}

func (m *MemoryMarkers) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[key], nil
}

func (m *MemoryMarkers) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[key] = value
	return nil
}

func (m *MemoryMarkers) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.m, k)
	}
	return nil
}
