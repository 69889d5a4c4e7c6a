package middleware_test

import (
"context"
"net/http"
"net/http/httptest"
"testing"
"time"

"payment-webhook-queue/internal/adapter/http/middleware"
redisStore "payment-webhook-queue/internal/adapter/storage/redis"

"github.com/alicebob/miniredis/v2"
"github.com/gin-gonic/gin"
goredis "github.com/redis/go-redis/v9"
"github.com/rs/zerolog"
"github.com/stretchr/testify/assert"
)

func setupRateLimitRouter(store *redisStore.RateLimitStore) *gin.Engine {
gin.SetMode(gin.TestMode)
r := gin.New()

rule := middleware.RateLimitRule{Limit: 3, Window: time.Minute}
log := zerolog.Nop()

r.POST("/webhooks/checkout", middleware.RateLimiter(store, "webhooks", rule, log), func(c *gin.Context) {
c.JSON(200, gin.H{"status": "ok"})
})
return r
}

func send(router *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
w := httptest.NewRecorder()
req, _ := http.NewRequestWithContext(context.Background(), "POST", "/webhooks/checkout", nil)
req.RemoteAddr = remoteAddr
router.ServeHTTP(w, req)
return w
}

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
mr := miniredis.RunT(t)
client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
defer client.Close()

router := setupRateLimitRouter(redisStore.NewRateLimitStore(client))

for i := 0; i < 3; i++ {
w := send(router, "10.0.0.1:5000")
assert.Equal(t, 200, w.Code, "request %d should succeed", i+1)
assert.NotEmpty(t, w.Header().Get("X-RateLimit-Limit"))
assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
mr := miniredis.RunT(t)
client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
defer client.Close()

router := setupRateLimitRouter(redisStore.NewRateLimitStore(client))

for i := 0; i < 3; i++ {
assert.Equal(t, 200, send(router, "10.0.0.1:5000").Code)
}

w := send(router, "10.0.0.1:5000")
assert.Equal(t, 429, w.Code)
assert.NotEmpty(t, w.Header().Get("Retry-After"))
assert.Contains(t, w.Body.String(), "RATE_001")
}

func TestRateLimiter_CountsPerClientIP(t *testing.T) {
mr := miniredis.RunT(t)
client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
defer client.Close()

router := setupRateLimitRouter(redisStore.NewRateLimitStore(client))

for i := 0; i < 3; i++ {
assert.Equal(t, 200, send(router, "10.0.0.1:5000").Code)
}
assert.Equal(t, 200, send(router, "10.0.0.2:5000").Code)
}

func TestRateLimiter_DegradesWhenRedisDown(t *testing.T) {
mr := miniredis.RunT(t)
client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
defer client.Close()

router := setupRateLimitRouter(redisStore.NewRateLimitStore(client))
mr.Close()

assert.Equal(t, 200, send(router, "10.0.0.1:5000").Code)
}

func TestDefaultRateLimitRules(t *testing.T) {
rules := middleware.DefaultRateLimitRules()
assert.Equal(t, int64(600), rules["webhooks"].Limit)
assert.Equal(t, int64(10), rules["admin_login"].Limit)
assert.Equal(t, int64(120), rules["admin"].Limit)
assert.Equal(t, int64(300), rules["orders"].Limit)
}
