// Package redis implements a small dedup cache consulted by the ingest path
// before the store. It is a fast path only: the event-id primary key in the
// store remains the source of truth for idempotency, so a cold or flushed
// cache is always safe.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupCache remembers recently applied event ids.
type DedupCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDedupCache connects to Redis and verifies the connection.
func NewDedupCache(addr, password string, db int, ttl time.Duration) (*DedupCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 10,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DedupCache{client: client, ttl: ttl}, nil
}

// Seen reports whether the event id was marked recently. Errors degrade to
// "not seen" so a Redis outage never drops events.
func (c *DedupCache) Seen(ctx context.Context, eventID string) bool {
	n, err := c.client.Exists(ctx, eventKey(eventID)).Result()
	return err == nil && n > 0
}

// MarkSeen records the event id with the cache TTL.
func (c *DedupCache) MarkSeen(ctx context.Context, eventID string) {
	// Best effort; the store dedups authoritatively.
	_ = c.client.Set(ctx, eventKey(eventID), 1, c.ttl).Err()
}

// Health pings the Redis server.
func (c *DedupCache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the client.
func (c *DedupCache) Close() error {
	return c.client.Close()
}

func eventKey(eventID string) string {
	return "event:seen:" + eventID
}
