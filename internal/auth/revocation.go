package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
)

// RevocationStore remembers logged-out token IDs until the tokens would
// have expired anyway.
type RevocationStore interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	Close() error
}

// MemoryRevocationStore keeps revocations in process memory. Revocations do
// not survive a restart and are not shared between relay instances.
type MemoryRevocationStore struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

// NewMemoryRevocationStore creates an empty in-memory store.
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{revoked: make(map[string]time.Time)}
}

// Revoke records tokenID as revoked until the given time.
func (m *MemoryRevocationStore) Revoke(_ context.Context, tokenID string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneLocked(time.Now())
	if time.Until(until) > 0 {
		m.revoked[tokenID] = until
	}
	return nil
}

// IsRevoked reports whether tokenID has an unexpired revocation.
func (m *MemoryRevocationStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	until, ok := m.revoked[tokenID]
	if !ok {
		return false, nil
	}
	if !time.Now().Before(until) {
		delete(m.revoked, tokenID)
		return false, nil
	}
	return true, nil
}

// Close is a no-op.
func (m *MemoryRevocationStore) Close() error { return nil }

func (m *MemoryRevocationStore) pruneLocked(now time.Time) {
	for id, until := range m.revoked {
		if !now.Before(until) {
			delete(m.revoked, id)
		}
	}
}

// RedisRevocationStore shares revocations between relay instances. Each
// revoked jti is a key whose TTL is the token's remaining lifetime.
type RedisRevocationStore struct {
	client    *redis.Client
	keyPrefix string
}

const (
	defaultRevocationPrefix = "relay:revoked:"
	redisPingTimeout        = 5 * time.Second
)

// NewRedisRevocationStore connects to Redis and verifies it with PING.
func NewRedisRevocationStore(cfg config.RedisConfig) (*RedisRevocationStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultRevocationPrefix
	}

	return &RedisRevocationStore{client: client, keyPrefix: prefix}, nil
}

func (r *RedisRevocationStore) key(tokenID string) string {
	return r.keyPrefix + tokenID
}

// Revoke sets a key that expires when the token does.
func (r *RedisRevocationStore) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, r.key(tokenID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

// IsRevoked checks for the revocation key.
func (r *RedisRevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("checking revocation: %w", err)
	}
	return n > 0, nil
}

// HealthCheck pings Redis.
func (r *RedisRevocationStore) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (r *RedisRevocationStore) Close() error {
	return r.client.Close()
}
