package service

import (
	"context"

	"payment-webhook-queue/internal/core/domain"
	"payment-webhook-queue/internal/core/ports"

	"github.com/rs/zerolog"
)

// Dispatch strategy names accepted by configuration.
const (
	StrategyInline   = "inline"
	StrategyDeferred = "deferred"
)

// InlineStrategy dispatches the entry's order before the receiver responds.
// Outcomes are logged only; the processor always sees the enqueue result.
type InlineStrategy struct {
	dispatcher ports.EventDispatcher
	log        zerolog.Logger
}

// NewInlineStrategy creates a new InlineStrategy.
func NewInlineStrategy(dispatcher ports.EventDispatcher, log zerolog.Logger) *InlineStrategy {
	return &InlineStrategy{dispatcher: dispatcher, log: log}
}

// FilterFor scopes a pass to everything tied to the entry's order or payment.
func FilterFor(entry *domain.QueueEntry) ports.ClaimFilter {
	f := ports.ClaimFilter{PaymentID: entry.PaymentID}
	if entry.OrderID != nil {
		f.OrderID = *entry.OrderID
	}
	if entry.PaymentSessionID != nil {
		f.PaymentSessionID = *entry.PaymentSessionID
	}
	return f
}

func (s *InlineStrategy) AfterEnqueue(ctx context.Context, entry *domain.QueueEntry) {
	filter := FilterFor(entry)
	if !filter.IsScoped() {
		// Account-level events have nothing to scope to; the worker picks them up.
		return
	}

	res, err := s.dispatcher.RunPass(ctx, filter)
	if err != nil {
		s.log.Warn().Err(err).Int64("entry_id", entry.ID).Msg("Inline dispatch failed, entry stays queued")
		return
	}
	s.log.Debug().
		Int64("entry_id", entry.ID).
		Int("applied", res.Applied).
		Int("failed", res.Failed).
		Msg("Inline dispatch finished")
}

// DeferredStrategy only nudges the background worker.
type DeferredStrategy struct {
	notify chan struct{}
}

// NewDeferredStrategy creates a DeferredStrategy with a one-slot nudge channel.
func NewDeferredStrategy() *DeferredStrategy {
	return &DeferredStrategy{notify: make(chan struct{}, 1)}
}

func (s *DeferredStrategy) AfterEnqueue(_ context.Context, _ *domain.QueueEntry) {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Notify is received on by the worker. Nudges coalesce while one is pending.
func (s *DeferredStrategy) Notify() <-chan struct{} {
	return s.notify
}
