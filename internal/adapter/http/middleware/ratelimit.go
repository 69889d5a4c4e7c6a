package middleware

import (
"fmt"
"strconv"
"time"

redisStore "payment-webhook-queue/internal/adapter/storage/redis"
"payment-webhook-queue/pkg/apperror"
"payment-webhook-queue/pkg/response"

"github.com/gin-gonic/gin"
"github.com/rs/zerolog"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
Limit  int64
Window time.Duration
}

// DefaultRateLimitRules returns the per-group limits. The webhook limit is
// generous: a throttled processor simply redelivers later.
func DefaultRateLimitRules() map[string]RateLimitRule {
return map[string]RateLimitRule{
"webhooks":    {Limit: 600, Window: time.Minute},
"admin_login": {Limit: 10, Window: time.Minute},
"admin":       {Limit: 120, Window: time.Minute},
"orders":      {Limit: 300, Window: time.Minute},
}
}

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
func RateLimiter(store *redisStore.RateLimitStore, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
return func(c *gin.Context) {
identifier := extractIdentifier(c)
key := fmt.Sprintf("%s:%s", identifier, group)

result, err := store.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
if err != nil {
log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
c.Next()
return
}

c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

if !result.Allowed {
retryAfter := result.ResetAt - time.Now().Unix()
if retryAfter < 1 {
retryAfter = 1
}
c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
log.Warn().Str("group", group).Str("client", identifier).Msg("rate limit exceeded")
response.Error(c, apperror.ErrRateLimitExceeded())
c.Abort()
return
}

c.Next()
}
}

// extractIdentifier keys authenticated admins by subject, everyone else by IP.
func extractIdentifier(c *gin.Context) string {
if admin := c.GetString(CtxAdmin); admin != "" {
return "admin:" + admin
}
return c.ClientIP()
}
