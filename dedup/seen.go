package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeenCache remembers identifiers already confirmed present in the event
// store, saving a round trip on later cycles. Absent identifiers are never
// cached.
type SeenCache interface {
	Seen(ctx context.Context, ivorn string) (bool, error)
	Remember(ctx context.Context, ivorn string) error
}

type nopCache struct{}

func (nopCache) Seen(context.Context, string) (bool, error) { return false, nil }
func (nopCache) Remember(context.Context, string) error { return nil }

// MemoryCache is a process-local SeenCache.
type MemoryCache struct {
	mu    sync.RWMutex
	ivorn map[string]struct{}
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{ivorn: make(map[string]struct{})}
}

// Seen reports whether ivorn was remembered.
func (c *MemoryCache) Seen(_ context.Context, ivorn string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.ivorn[ivorn]
	return ok, nil
}

// Remember records ivorn.
func (c *MemoryCache) Remember(_ context.Context, ivorn string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ivorn[ivorn] = struct{}{}
	return nil
}

// DefaultRedisKey is the SET holding remembered identifiers.
const DefaultRedisKey = "fourpisky:seen_ivorns"

// RedisCache keeps remembered identifiers in a Redis SET shared between
// scraper instances.
type RedisCache struct {
	client *redis.Client
	key    string
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, addr, key string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close() //nolint:errcheck // best effort cleanup
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}

	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisCache{client: client, key: key}, nil
}

// Seen reports whether ivorn is a member of the SET.
func (c *RedisCache) Seen(ctx context.Context, ivorn string) (bool, error) {
	ok, err := c.client.SIsMember(ctx, c.key, ivorn).Result()
	if err != nil {
		return false, fmt.Errorf("redis sismember: %w", err)
	}
	return ok, nil
}

// Remember adds ivorn to the SET.
func (c *RedisCache) Remember(ctx context.Context, ivorn string) error {
	if err := c.client.SAdd(ctx, c.key, ivorn).Err(); err != nil {
		return fmt.Errorf("redis sadd: %w", err)
	}
	return nil
}

// Close releases the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
