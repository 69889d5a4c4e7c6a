package handler

import (
	"payment-webhook-queue/internal/adapter/http/middleware"
	redisStore "payment-webhook-queue/internal/adapter/storage/redis"
	"payment-webhook-queue/internal/core/ports"
	"payment-webhook-queue/pkg/observability"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Authenticator  ports.WebhookAuthenticator
	Receiver       ports.WebhookReceiver
	AdminSvc       ports.AdminService
	CleanupSvc     ports.CleanupService
	Dispatcher     ports.EventDispatcher
	OrderSvc       ports.OrderService
	TokenSvc       ports.TokenService
	RetentionDays  int
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	MetricsEnabled bool
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(middleware.DefaultMaxBody))
	if deps.MetricsEnabled {
		r.Use(observability.GinMiddleware())
		r.GET("/metrics", observability.Handler())
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	docs := r.Group("/docs")
	{
		docs.GET("", APIDocs)
		docs.GET("/openapi.yaml", APISpec)
	}

	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// --- Processor webhooks ---
	webhookHandler := NewWebhookHandler(deps.Receiver)
	r.POST("/webhooks/checkout",
		rl("webhooks"),
		middleware.WebhookAuth(deps.Authenticator, deps.Logger),
		webhookHandler.Receive,
	)

	v1 := r.Group("/api/v1")
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)

	// --- Admin inspection ---
	adminHandler := NewAdminHandler(deps.AdminSvc, deps.CleanupSvc, deps.Dispatcher, deps.RetentionDays)
	v1.POST("/admin/login", rl("admin_login"), adminHandler.Login)

	admin := v1.Group("/admin", jwtAuth, rl("admin"))
	{
		admin.GET("/webhooks/stats", adminHandler.Stats)
		admin.GET("/webhooks", adminHandler.ListWebhooks)
		admin.POST("/webhooks/cleanup", adminHandler.Cleanup)
		admin.POST("/webhooks/dispatch", adminHandler.Dispatch)
		admin.GET("/orders/:id", adminHandler.GetOrder)
	}

	// --- Order intake ---
	if deps.OrderSvc != nil {
		orderHandler := NewOrderHandler(deps.OrderSvc)
		v1.POST("/orders", jwtAuth, rl("orders"), orderHandler.Register)
	}

	return r
}
