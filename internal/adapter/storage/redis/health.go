package redis

import (
"context"
"time"

goredis "github.com/redis/go-redis/v9"
)

// HealthCheck implements ports.HealthChecker for Redis.
type HealthCheck struct {
client *goredis.Client
}

// NewHealthCheck creates a Redis health checker.
func NewHealthCheck(client *goredis.Client) *HealthCheck {
return &HealthCheck{client: client}
}

// Ping checks Redis connectivity, bounded to two seconds.
func (h *HealthCheck) Ping(ctx context.Context) error {
ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
defer cancel()
return h.client.Ping(ctx).Err()
}

func (h *HealthCheck) Name() string {
return "redis"
}
