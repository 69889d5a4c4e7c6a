package service

import (
	"context"
	"time"

	"payment-webhook-queue/internal/core/ports"

	"github.com/rs/zerolog"
)

const (
	jobDispatch = "dispatch"
	jobCleanup  = "cleanup"
)

// WorkerConfig holds the background job schedule.
type WorkerConfig struct {
	DispatchInterval time.Duration
	CleanupInterval  time.Duration
	// LockTTL bounds how long a crashed replica can hold a job lock.
	LockTTL time.Duration
}

// Worker runs deferred dispatch passes and the cleanup sweep.
type Worker struct {
	dispatcher ports.EventDispatcher
	cleanup    ports.CleanupService
	lock       ports.PassLock
	notify     <-chan struct{}
	cfg        WorkerConfig
	log        zerolog.Logger
}

// NewWorker creates a new Worker. lock and notify may be nil.
func NewWorker(
	dispatcher ports.EventDispatcher,
	cleanup ports.CleanupService,
	lock ports.PassLock,
	notify <-chan struct{},
	cfg WorkerConfig,
	log zerolog.Logger,
) *Worker {
	if cfg.DispatchInterval <= 0 {
		cfg.DispatchInterval = 30 * time.Second
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 24 * time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	return &Worker{
		dispatcher: dispatcher,
		cleanup:    cleanup,
		lock:       lock,
		notify:     notify,
		cfg:        cfg,
		log:        log,
	}
}

// Run blocks until ctx is cancelled. It always returns nil.
func (w *Worker) Run(ctx context.Context) error {
	dispatchTicker := time.NewTicker(w.cfg.DispatchInterval)
	defer dispatchTicker.Stop()
	cleanupTicker := time.NewTicker(w.cfg.CleanupInterval)
	defer cleanupTicker.Stop()

	w.log.Info().
		Dur("dispatch_interval", w.cfg.DispatchInterval).
		Dur("cleanup_interval", w.cfg.CleanupInterval).
		Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping")
			return nil
		case <-dispatchTicker.C:
			w.DispatchOnce(ctx)
		case <-w.notify:
			w.DispatchOnce(ctx)
		case <-cleanupTicker.C:
			w.CleanupOnce(ctx)
		}
	}
}

// DispatchOnce runs one unscoped pass under the dispatch lock.
func (w *Worker) DispatchOnce(ctx context.Context) {
	w.withLock(ctx, jobDispatch, func(ctx context.Context) {
		if _, err := w.dispatcher.RunPass(ctx, ports.ClaimFilter{}); err != nil {
			w.log.Error().Err(err).Msg("Dispatch pass failed")
		}
	})
}

// CleanupOnce runs the retention sweep under the cleanup lock.
func (w *Worker) CleanupOnce(ctx context.Context) {
	w.withLock(ctx, jobCleanup, func(ctx context.Context) {
		if err := w.cleanup.Sweep(ctx); err != nil {
			w.log.Error().Err(err).Msg("Cleanup sweep failed")
		}
	})
}

// withLock runs fn if this replica wins the named lock. When the lock store
// is unreachable fn runs anyway; claim leases keep concurrent passes safe.
func (w *Worker) withLock(ctx context.Context, name string, fn func(context.Context)) {
	if w.lock == nil {
		fn(ctx)
		return
	}

	token, ok, err := w.lock.Acquire(ctx, name, w.cfg.LockTTL)
	if err != nil {
		w.log.Warn().Err(err).Str("job", name).Msg("Job lock unavailable, running unlocked")
		fn(ctx)
		return
	}
	if !ok {
		w.log.Debug().Str("job", name).Msg("Job held by another replica, skipping")
		return
	}

	defer func() {
		if err := w.lock.Release(context.WithoutCancel(ctx), name, token); err != nil {
			w.log.Warn().Err(err).Str("job", name).Msg("Failed to release job lock")
		}
	}()
	fn(ctx)
}
