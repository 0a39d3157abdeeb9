package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventCache(t *testing.T) {
	ctx := context.Background()
	c := NewEventCache(time.Hour)

	assert.False(t, c.Seen(ctx, "evt-1"))

	c.MarkSeen(ctx, "evt-1")
	assert.True(t, c.Seen(ctx, "evt-1"))
	assert.False(t, c.Seen(ctx, "evt-2"))
}

func TestEventCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewEventCache(10 * time.Millisecond)

	c.MarkSeen(ctx, "evt-1")
	assert.True(t, c.Seen(ctx, "evt-1"))

	time.Sleep(20 * time.Millisecond)
	assert.False(t, c.Seen(ctx, "evt-1"))
}
