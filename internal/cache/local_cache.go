// Package cache provides an in-process event id cache used as the dedup fast
// path when no Redis instance is configured. Single-node only; a multi-node
// deployment wants the Redis cache so all replicas share one view.
package cache

import (
	"context"
	"sync"
	"time"
)

// EventCache remembers recently applied event ids with a TTL. It satisfies
// the ingest service's DedupCache interface.
type EventCache struct {
	data sync.Map
	ttl  time.Duration
}

// NewEventCache creates the cache and starts its cleanup loop.
func NewEventCache(ttl time.Duration) *EventCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	c := &EventCache{ttl: ttl}
	go c.cleanupLoop()
	return c
}

// Seen reports whether the event id was applied recently. Expired entries
// count as unseen; the store remains the authority.
func (c *EventCache) Seen(_ context.Context, eventID string) bool {
	val, ok := c.data.Load(eventID)
	if !ok {
		return false
	}
	expiresAt := val.(time.Time)
	if time.Now().After(expiresAt) {
		c.data.Delete(eventID)
		return false
	}
	return true
}

// MarkSeen records an applied event id.
func (c *EventCache) MarkSeen(_ context.Context, eventID string) {
	c.data.Store(eventID, time.Now().Add(c.ttl))
}

// cleanupLoop evicts expired ids so the map does not grow unbounded.
func (c *EventCache) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		c.data.Range(func(key, value interface{}) bool {
			if now.After(value.(time.Time)) {
				c.data.Delete(key)
			}
			return true
		})
	}
}
