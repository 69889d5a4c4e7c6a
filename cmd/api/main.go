package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payment-webhook-queue/config"
	httpHandler "payment-webhook-queue/internal/adapter/http/handler"
	"payment-webhook-queue/internal/adapter/storage/memory"
	pgStorage "payment-webhook-queue/internal/adapter/storage/postgres"
	redisStorage "payment-webhook-queue/internal/adapter/storage/redis"
	"payment-webhook-queue/internal/core/domain"
	"payment-webhook-queue/internal/core/ports"
	"payment-webhook-queue/internal/service"
	"payment-webhook-queue/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

// storage bundles the repositories of whichever driver is configured.
type storage struct {
	queue      ports.QueueRepository
	orders     ports.OrderRepository
	mappings   ports.PaymentMappingRepository
	actions    ports.OrderActionRepository
	refunds    ports.RefundRepository
	inventory  ports.InventoryRepository
	transactor ports.DBTransactor
	health     ports.HealthChecker
	close      func()
}

func main() {
	configPath := flag.StringP("config", "c", "", "path to config.yaml (defaults to ./config.yaml)")
	hashPassword := flag.String("hash-password", "", "print the argon2id hash of a password for admin.password_hash and exit")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := service.NewArgon2HashService().Hash(*hashPassword)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("driver", cfg.Database.Driver).
		Str("strategy", cfg.Webhook.Strategy).
		Msg("Starting Payment Webhook Queue")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer store.close()

	// Redis backs the applied-action cache, job locks and rate limits. The
	// memory driver can run without it.
	var (
		cache          ports.AppliedActionCache
		lock           ports.PassLock
		rateLimitStore *redisStorage.RateLimitStore
		checkers       = []ports.HealthChecker{store.health}
	)
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	switch {
	case err == nil:
		defer closeRedis(rdb, log)
		cache = redisStorage.NewActionCache(rdb)
		lock = redisStorage.NewPassLock(rdb)
		rateLimitStore = redisStorage.NewRateLimitStore(rdb)
		checkers = append(checkers, redisStorage.NewHealthCheck(rdb))
	case cfg.Database.Driver == config.DriverMemory:
		log.Warn().Err(err).Msg("Redis unavailable, running without cache, locks or rate limits")
	default:
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}

	// Core services
	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	authenticator := service.NewWebhookAuthenticator(
		domain.AccountMode(cfg.Webhook.Mode),
		cfg.Webhook.SecretKey,
		cfg.Webhook.SigningKey,
		sigSvc,
	)

	dispatcher := service.NewDispatcher(service.DispatcherDeps{
		Queue:      store.queue,
		Orders:     store.orders,
		Mappings:   store.mappings,
		Actions:    store.actions,
		Refunds:    store.refunds,
		Inventory:  store.inventory,
		Transactor: store.transactor,
		Cache:      cache,
	}, service.DispatcherConfig{
		BatchSize:     cfg.Dispatch.BatchSize,
		ClaimLease:    cfg.Dispatch.ClaimLease,
		EscalateAfter: cfg.Dispatch.EscalateAfter,
		CacheTTL:      cfg.Webhook.CacheTTL,
		Statuses:      statusMapping(cfg.OrderStatus),
	}, logger.WithComponent(log, "dispatcher"))

	var (
		strategy ports.DispatchStrategy
		notify   <-chan struct{}
	)
	if cfg.Webhook.Strategy == service.StrategyDeferred {
		deferred := service.NewDeferredStrategy()
		strategy, notify = deferred, deferred.Notify()
	} else {
		strategy = service.NewInlineStrategy(dispatcher, logger.WithComponent(log, "dispatcher"))
	}

	receiver := service.NewWebhookReceiver(store.queue, store.mappings, strategy, logger.WithComponent(log, "receiver"))
	cleanupSvc := service.NewCleanupService(
		store.queue,
		domain.UnprocessedPolicy(cfg.Cleanup.UnprocessedPolicy),
		cfg.Cleanup.RetentionDays,
		cfg.Cleanup.DeadLetterRetentionDays,
		logger.WithComponent(log, "cleanup"),
	)
	adminSvc := service.NewAdminService(store.queue, store.orders, store.refunds, hashSvc, tokenSvc, cfg.Admin.Username, cfg.Admin.PasswordHash)
	orderSvc := service.NewOrderService(store.orders, store.mappings, store.transactor, dispatcher, logger.WithComponent(log, "orders"))

	worker := service.NewWorker(dispatcher, cleanupSvc, lock, notify, service.WorkerConfig{
		DispatchInterval: cfg.Dispatch.Interval,
		CleanupInterval:  cfg.Cleanup.Interval,
	}, logger.WithComponent(log, "worker"))

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Authenticator:  authenticator,
		Receiver:       receiver,
		AdminSvc:       adminSvc,
		CleanupSvc:     cleanupSvc,
		Dispatcher:     dispatcher,
		OrderSvc:       orderSvc,
		TokenSvc:       tokenSvc,
		RetentionDays:  cfg.Cleanup.RetentionDays,
		RateLimitStore: rateLimitStore,
		HealthCheckers: checkers,
		MetricsEnabled: cfg.Metrics.Enabled,
		Logger:         log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("Server exited")
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storage, error) {
	if cfg.Database.Driver == config.DriverMemory {
		s := memory.NewStore()
		log.Warn().Msg("Using in-memory storage; queue contents are lost on restart")
		return &storage{
			queue:      s.Queue(),
			orders:     s.Orders(),
			mappings:   s.Mappings(),
			actions:    s.Actions(),
			refunds:    s.Refunds(),
			inventory:  s.Inventory(),
			transactor: s,
			health:     s,
			close:      func() {},
		}, nil
	}

	if cfg.Database.AutoMigrate {
		if err := pgStorage.Migrate(cfg.Database.MigrateURL(), log); err != nil {
			return nil, err
		}
	}

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("PostgreSQL connected")

	return &storage{
		queue:      pgStorage.NewQueueRepo(pool),
		orders:     pgStorage.NewOrderRepo(pool),
		mappings:   pgStorage.NewMappingRepo(pool),
		actions:    pgStorage.NewActionRepo(pool),
		refunds:    pgStorage.NewRefundRepo(pool),
		inventory:  pgStorage.NewInventoryRepo(pool),
		transactor: pgStorage.NewTransactor(pool),
		health:     pgStorage.NewHealthCheck(pool),
		close:      pool.Close,
	}, nil
}

func statusMapping(c config.OrderStatusConfig) service.StatusMapping {
	return service.StatusMapping{
		Authorized: domain.OrderStatus(c.Authorized),
		Flagged:    domain.OrderStatus(c.Flagged),
		Captured:   domain.OrderStatus(c.Captured),
		Void:       domain.OrderStatus(c.Void),
		Failed:     domain.OrderStatus(c.Failed),
		Refunded:   domain.OrderStatus(c.Refunded),
		Disputed:   domain.OrderStatus(c.Disputed),
	}
}

func closeRedis(rdb *goredis.Client, log zerolog.Logger) {
	if err := rdb.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close Redis client")
	}
}
