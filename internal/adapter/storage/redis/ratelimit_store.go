package redis

import (
"context"
"fmt"
"time"

goredis "github.com/redis/go-redis/v9"
)

// RateLimitStore keeps fixed-window request counters in Redis.
type RateLimitStore struct {
client *goredis.Client
prefix string
now    func() time.Time
}

// NewRateLimitStore creates a new Redis-backed rate limit store.
func NewRateLimitStore(client *goredis.Client) *RateLimitStore {
return &RateLimitStore{
client: client,
prefix: keyPrefix + "ratelimit:",
now:    time.Now,
}
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
Allowed   bool
Limit     int64
Remaining int64
ResetAt   int64 // Unix timestamp
}

// Allow counts one request for key in the current window.
// The window id is unix time divided by the window length.
func (s *RateLimitStore) Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error) {
windowSecs := int64(window.Seconds())
if windowSecs < 1 {
windowSecs = 1
}
windowID := s.now().Unix() / windowSecs
redisKey := fmt.Sprintf("%s%s:%d", s.prefix, key, windowID)

count, err := s.client.Incr(ctx, redisKey).Result()
if err != nil {
return nil, fmt.Errorf("redis rate limit incr: %w", err)
}

// first hit opens the window
if count == 1 {
if err := s.client.Expire(ctx, redisKey, window+time.Second).Err(); err != nil {
return nil, fmt.Errorf("redis rate limit expire: %w", err)
}
}

remaining := limit - count
if remaining < 0 {
remaining = 0
}

return &RateLimitResult{
Allowed:   count <= limit,
Limit:     limit,
Remaining: remaining,
ResetAt:   (windowID + 1) * windowSecs,
}, nil
}
