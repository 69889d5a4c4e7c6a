package service

import (
	"context"
	"errors"
	"strings"

	"payment-webhook-queue/internal/core/domain"
	"payment-webhook-queue/internal/core/ports"
	"payment-webhook-queue/pkg/apperror"
	"payment-webhook-queue/pkg/observability"

	"github.com/rs/zerolog"
)

// webhookReceiver implements ports.WebhookReceiver.
type webhookReceiver struct {
	queue    ports.QueueRepository
	mappings ports.PaymentMappingRepository
	strategy ports.DispatchStrategy
	log      zerolog.Logger
}

// NewWebhookReceiver creates a new webhook receiver.
func NewWebhookReceiver(
	queue ports.QueueRepository,
	mappings ports.PaymentMappingRepository,
	strategy ports.DispatchStrategy,
	log zerolog.Logger,
) ports.WebhookReceiver {
	return &webhookReceiver{
		queue:    queue,
		mappings: mappings,
		strategy: strategy,
		log:      log,
	}
}

// Receive parses body, stores it verbatim and hands the entry to the
// dispatch strategy. The entry is durable once Receive returns nil.
func (r *webhookReceiver) Receive(ctx context.Context, body []byte) (*domain.QueueEntry, error) {
	ev, err := ParseEvent(body)
	switch {
	case err == nil:
	case errors.Is(err, ErrPartialPayload):
		// Stored as-is so the processor stops redelivering; dispatch marks it terminal.
		r.log.Warn().
			Err(err).
			Str("webhook_type", ev.Type).
			Str("payment_id", ev.PaymentID).
			Msg("Webhook fields unreadable, storing for inspection")
	case errors.Is(err, ErrMissingEventType):
		observability.RecordWebhookRejected("missing_event_type")
		r.log.Warn().Int("body_size", len(body)).Msg("Webhook rejected: no event type")
		return nil, apperror.ErrMissingEventType()
	default:
		observability.RecordWebhookRejected("malformed")
		r.log.Warn().Err(err).Int("body_size", len(body)).Msg("Webhook rejected: malformed payload")
		return nil, apperror.ErrMalformedPayload(err)
	}

	entry := &domain.QueueEntry{
		PaymentID:   ev.PaymentID,
		WebhookType: ev.Type,
		Payload:     string(body),
	}
	if ev.SessionID != "" {
		session := ev.SessionID
		entry.PaymentSessionID = &session
	}
	if orderID := r.resolveOrderID(ctx, ev); orderID != "" {
		entry.OrderID = &orderID
	}

	if err := r.queue.Enqueue(ctx, entry); err != nil {
		r.log.Error().Err(err).Str("webhook_type", ev.Type).Str("payment_id", ev.PaymentID).Msg("Failed to enqueue webhook")
		return nil, apperror.ErrDatabaseError(err)
	}

	observability.RecordWebhookReceived(string(ev.Mode), ev.Type)
	log := r.log.Info().
		Int64("entry_id", entry.ID).
		Str("webhook_type", entry.WebhookType).
		Str("payment_id", entry.PaymentID)
	if entry.OrderID != nil {
		log = log.Str("order_id", *entry.OrderID)
	}
	if ev.Kind == domain.EventKindUnknown {
		log = log.Bool("unhandled_type", true)
	}
	log.Msg("Webhook enqueued")

	r.strategy.AfterEnqueue(ctx, entry)
	return entry, nil
}

// resolveOrderID prefers the order reference carried by the event and falls
// back to the payment mapping. Lookup errors leave the order unresolved.
func (r *webhookReceiver) resolveOrderID(ctx context.Context, ev *domain.Event) string {
	if ref := strings.TrimSpace(ev.OrderRef); ref != "" {
		return ref
	}
	if ev.PaymentID == "" && ev.SessionID == "" {
		return ""
	}
	orderID, err := r.mappings.Resolve(ctx, ev.PaymentID, ev.SessionID)
	if err != nil {
		r.log.Warn().Err(err).Str("payment_id", ev.PaymentID).Msg("Order lookup failed at enqueue, leaving unresolved")
		return ""
	}
	return orderID
}
