package timeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/humancuration/cpc-core/internal/models"
)

const feedKeyFmt = "users_feed:%s"

// RedisCache stores feed heads in Redis so multiple server replicas share
// one cache. Each user's head lives under users_feed:<id> as a single JSON
// document with a TTL.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache connects to Redis at addr and verifies the connection.
// A non-positive ttl falls back to DefaultCacheTTL.
func NewRedisCache(addr, password string, ttl time.Duration) (*RedisCache, error) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisCache{rdb: rdb, ttl: ttl}, nil
}

func feedKey(userID models.UUID) string {
	return fmt.Sprintf(feedKeyFmt, userID)
}

// Get returns the cached feed head for userID, or (nil, nil) on a miss.
// An undecodable value is dropped and treated as a miss.
func (c *RedisCache) Get(ctx context.Context, userID models.UUID) (*CachedFeed, error) {
	raw, err := c.rdb.Get(ctx, feedKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var feed CachedFeed
	if err := json.Unmarshal(raw, &feed); err != nil {
		c.rdb.Del(ctx, feedKey(userID))
		return nil, nil
	}
	return &feed, nil
}

// Set stores the feed head for userID with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, userID models.UUID, feed *CachedFeed) error {
	raw, err := json.Marshal(feed)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, feedKey(userID), raw, c.ttl).Err()
}

// Invalidate drops the cached feed head for userID.
func (c *RedisCache) Invalidate(ctx context.Context, userID models.UUID) error {
	return c.rdb.Del(ctx, feedKey(userID)).Err()
}

// Close releases the Redis connection.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
