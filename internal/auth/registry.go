package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Compile-time interface checks.
var (
	_ Registry = (*RedisRegistry)(nil)
	_ Registry = (*MemRegistry)(nil)
)

// RedisRegistry redeems tokens with SET NX so exactly one redeem per jti
// succeeds cluster-wide. The key expires with the token, keeping the set
// bounded.
type RedisRegistry struct {
	client *redis.Client
}

// NewRedisRegistry creates a registry on the given client.
func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

// Redeem implements [Registry].
func (r *RedisRegistry) Redeem(ctx context.Context, jti string, ttl time.Duration) error {
	ok, err := r.client.SetNX(ctx, "live_token:"+jti, 1, ttl).Result()
	if err != nil {
		return fmt.Errorf("auth: redeem token: %w", err)
	}
	if !ok {
		return ErrTokenUsed
	}
	return nil
}

// MemRegistry is an in-memory Registry for tests and single-node use.
// Entries are pruned lazily on each redeem.
type MemRegistry struct {
	mu       sync.Mutex
	redeemed map[string]time.Time
	now      func() time.Time
}

// NewMemRegistry returns an empty MemRegistry.
func NewMemRegistry() *MemRegistry {
	return &MemRegistry{
		redeemed: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Redeem implements [Registry].
func (r *MemRegistry) Redeem(_ context.Context, jti string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for id, expiry := range r.redeemed {
		if now.After(expiry) {
			delete(r.redeemed, id)
		}
	}

	if _, used := r.redeemed[jti]; used {
		return ErrTokenUsed
	}
	r.redeemed[jti] = now.Add(ttl)
	return nil
}
