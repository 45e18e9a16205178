// Package idempotency keeps track of client supplied idempotency keys so a
// retried purchase is applied at most once.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "tenantcart:idem:"

type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisGuard claims keys with SET NX so every API instance shares one view.
type RedisGuard struct {
	client redisClient
	ttl    time.Duration
}

// NewRedisGuard constructs a guard on an existing redis client.
func NewRedisGuard(client redisClient, ttl time.Duration) (*RedisGuard, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if ttl <= 0 {
		return nil, errors.New("idempotency ttl must be positive")
	}
	return &RedisGuard{client: client, ttl: ttl}, nil
}

func (g *RedisGuard) Claim(ctx context.Context, key string) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return false, errors.New("idempotency key is required")
	}
	return g.client.SetNX(ctx, keyPrefix+key, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	return g.client.Del(ctx, keyPrefix+key).Err()
}

// MemoryGuard is a process-local guard for single instance runs and tests.
type MemoryGuard struct {
	mu     sync.Mutex
	ttl    time.Duration
	claims map[string]time.Time
	now    func() time.Time
}

func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	return &MemoryGuard{
		ttl:    ttl,
		claims: make(map[string]time.Time),
		now:    time.Now,
	}
}

func (g *MemoryGuard) Claim(_ context.Context, key string) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return false, errors.New("idempotency key is required")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.evict(now)
	if _, ok := g.claims[key]; ok {
		return false, nil
	}
	g.claims[key] = now.Add(g.ttl)
	return true, nil
}

func (g *MemoryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	delete(g.claims, key)
	g.mu.Unlock()
	return nil
}

// evict drops expired claims. Caller holds g.mu.
func (g *MemoryGuard) evict(now time.Time) {
	if g.ttl <= 0 {
		return
	}
	for key, expires := range g.claims {
		if !now.Before(expires) {
			delete(g.claims, key)
		}
	}
}
