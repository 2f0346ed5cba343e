// Package cache implements a short-TTL replay cache over Redis. It lets the
// pipeline short-circuit obviously duplicated deliveries without a database
// round-trip. It is strictly advisory: the conditional status update in the
// store remains the synchronization point, and the pipeline behaves
// identically (just slower) when Redis is absent or unreachable.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayCache remembers recently processed provider transaction IDs.
type ReplayCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a ReplayCache. client may be nil, which disables the cache.
func New(client *redis.Client, ttl time.Duration, logger *slog.Logger) *ReplayCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplayCache{client: client, ttl: ttl, logger: logger}
}

func key(provider, transactionID string) string {
	return fmt.Sprintf("payhook:evt:%s:%s", provider, transactionID)
}

// Seen reports whether this provider transaction was processed recently.
// Errors degrade to "not seen" so Redis trouble never drops a payment.
func (c *ReplayCache) Seen(ctx context.Context, provider, transactionID string) bool {
	if c == nil || c.client == nil || transactionID == "" {
		return false
	}
	n, err := c.client.Exists(ctx, key(provider, transactionID)).Result()
	if err != nil {
		c.logger.Warn("replay cache read failed", "error", err)
		return false
	}
	return n > 0
}

// MarkSeen records a processed transaction. Best-effort.
func (c *ReplayCache) MarkSeen(ctx context.Context, provider, transactionID string) {
	if c == nil || c.client == nil || transactionID == "" {
		return
	}
	if err := c.client.Set(ctx, key(provider, transactionID), "1", c.ttl).Err(); err != nil {
		c.logger.Warn("replay cache write failed", "error", err)
	}
}
