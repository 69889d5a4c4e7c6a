package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payment-webhook-queue/internal/core/domain"

	goredis "github.com/redis/go-redis/v9"
)

// ActionCache implements ports.AppliedActionCache. A hit lets the dispatcher
// skip an entry without opening a transaction; a miss falls through to the
// order_actions ledger.
type ActionCache struct {
	client *goredis.Client
	prefix string
}

// NewActionCache creates a new Redis-backed applied-action cache.
func NewActionCache(client *goredis.Client) *ActionCache {
	return &ActionCache{
		client: client,
		prefix: keyPrefix + "applied:",
	}
}

func (c *ActionCache) key(orderID string, kind domain.EventKind, actionID string) string {
	return c.prefix + orderID + ":" + string(kind) + ":" + actionID
}

// Seen reports whether the action was marked as applied.
func (c *ActionCache) Seen(ctx context.Context, orderID string, kind domain.EventKind, actionID string) (bool, error) {
	err := c.client.Get(ctx, c.key(orderID, kind, actionID)).Err()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis applied-action get: %w", err)
	}
	return true, nil
}

// Mark records the action as applied for ttl.
func (c *ActionCache) Mark(ctx context.Context, orderID string, kind domain.EventKind, actionID string, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.key(orderID, kind, actionID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis applied-action set: %w", err)
	}
	return nil
}
