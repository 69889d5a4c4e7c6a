package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payment-webhook-queue/internal/core/domain"
	"payment-webhook-queue/internal/core/ports"
	"payment-webhook-queue/pkg/money"
	"payment-webhook-queue/pkg/observability"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// ErrDependencyPending marks an event that cannot apply yet because an
// earlier lifecycle stage has not been recorded (a refund before its capture).
var ErrDependencyPending = errors.New("dependency not yet applied")

// Dispatch outcomes, as reported in metrics.
const (
	outcomeApplied   = "applied"
	outcomeDuplicate = "duplicate"
	outcomeSkipped   = "skipped"
	outcomeFailed    = "failed"
)

// StatusMapping holds the operator-configured order status per outcome.
// An empty Disputed leaves the status unchanged on dispute.
type StatusMapping struct {
	Authorized domain.OrderStatus
	Flagged    domain.OrderStatus
	Captured   domain.OrderStatus
	Void       domain.OrderStatus
	Failed     domain.OrderStatus
	Refunded   domain.OrderStatus
	Disputed   domain.OrderStatus
}

// DispatcherConfig holds the dispatcher's tunables.
type DispatcherConfig struct {
	BatchSize     int
	ClaimLease    time.Duration
	EscalateAfter int
	CacheTTL      time.Duration
	Statuses      StatusMapping
}

// DispatcherDeps groups the dispatcher's collaborators. Cache may be nil.
type DispatcherDeps struct {
	Queue      ports.QueueRepository
	Orders     ports.OrderRepository
	Mappings   ports.PaymentMappingRepository
	Actions    ports.OrderActionRepository
	Refunds    ports.RefundRepository
	Inventory  ports.InventoryRepository
	Transactor ports.DBTransactor
	Cache      ports.AppliedActionCache
}

// handlerFunc applies one event to a locked order and returns the notes to add.
type handlerFunc func(ctx context.Context, tx pgx.Tx, o *domain.Order, ev *domain.Event) ([]string, error)

// Dispatcher implements ports.EventDispatcher.
type Dispatcher struct {
	deps     DispatcherDeps
	cfg      DispatcherConfig
	handlers map[domain.EventKind]handlerFunc
	log      zerolog.Logger
	now      func() time.Time
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(deps DispatcherDeps, cfg DispatcherConfig, log zerolog.Logger) *Dispatcher {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 50
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = 2 * time.Minute
	}
	d := &Dispatcher{
		deps: deps,
		cfg:  cfg,
		log:  log,
		now:  func() time.Time { return time.Now().UTC() },
	}
	d.handlers = map[domain.EventKind]handlerFunc{
		domain.EventKindAuthorizationSuccess: d.applyAuthorizationSuccess,
		domain.EventKindAuthorizationFailure: d.applyAuthorizationFailure,
		domain.EventKindCapture:              d.applyCapture,
		domain.EventKindRefund:               d.applyRefund,
		domain.EventKindVoid:                 d.applyVoid,
		domain.EventKindDispute:              d.applyDispute,
		domain.EventKindSourceUpdate:         d.applySourceUpdate,
		domain.EventKindNote:                 d.applyNote,
	}
	return d
}

// RunPass claims a batch and processes it in order. Per-entry failures are
// recorded on the entry and never abort the pass; only a failed claim
// returns an error.
func (d *Dispatcher) RunPass(ctx context.Context, filter ports.ClaimFilter) (*ports.PassResult, error) {
	start := time.Now()
	scope := "all"
	if filter.IsScoped() {
		scope = "scoped"
	}
	defer func() { observability.ObserveDispatchPass(scope, time.Since(start)) }()

	entries, err := d.deps.Queue.ClaimBatch(ctx, filter, d.cfg.BatchSize, d.cfg.ClaimLease)
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}

	res := &ports.PassResult{Claimed: len(entries)}
	blocked := make(map[string]bool)

	for i := range entries {
		e := &entries[i]

		if ctx.Err() != nil || isBlocked(blocked, e, "") {
			d.release(ctx, e)
			res.Deferred++
			continue
		}

		outcome, orderID, err := d.processEntry(ctx, e)
		switch outcome {
		case outcomeApplied:
			res.Applied++
		case outcomeDuplicate:
			res.Duplicates++
		case outcomeSkipped:
			res.Skipped++
		case outcomeFailed:
			res.Failed++
			// A pending dependency must not hold back the entry that satisfies it.
			if !errors.Is(err, ErrDependencyPending) {
				block(blocked, e, orderID)
			}
		}
	}

	if res.Claimed > 0 {
		d.log.Info().
			Str("scope", scope).
			Int("claimed", res.Claimed).
			Int("applied", res.Applied).
			Int("duplicates", res.Duplicates).
			Int("skipped", res.Skipped).
			Int("failed", res.Failed).
			Int("deferred", res.Deferred).
			Dur("duration", time.Since(start)).
			Msg("Dispatch pass finished")
	}
	return res, nil
}

func blockKeys(e *domain.QueueEntry, orderID string) []string {
	var keys []string
	if orderID != "" {
		keys = append(keys, "order:"+orderID)
	}
	if e.OrderID != nil && *e.OrderID != "" {
		keys = append(keys, "order:"+*e.OrderID)
	}
	if e.PaymentID != "" {
		keys = append(keys, "payment:"+e.PaymentID)
	}
	return keys
}

func isBlocked(blocked map[string]bool, e *domain.QueueEntry, orderID string) bool {
	for _, k := range blockKeys(e, orderID) {
		if blocked[k] {
			return true
		}
	}
	return false
}

func block(blocked map[string]bool, e *domain.QueueEntry, orderID string) {
	for _, k := range blockKeys(e, orderID) {
		blocked[k] = true
	}
}

func (d *Dispatcher) release(ctx context.Context, e *domain.QueueEntry) {
	if err := d.deps.Queue.ReleaseClaim(context.WithoutCancel(ctx), e.ID); err != nil {
		d.log.Warn().Err(err).Int64("entry_id", e.ID).Msg("Failed to release claim; lease will expire")
	}
}

// processEntry returns the outcome, the resolved order id (if any) and the
// error behind a failed outcome.
func (d *Dispatcher) processEntry(ctx context.Context, e *domain.QueueEntry) (string, string, error) {
	log := d.log.With().Int64("entry_id", e.ID).Str("webhook_type", e.WebhookType).Logger()

	ev, err := ParseEvent([]byte(e.Payload))
	if err != nil {
		// Partial events are terminal too; they never mutate the order.
		log.Error().Err(err).Msg("Stored payload does not parse, marking processed")
		return d.finishTerminal(ctx, e, nil, domain.EventKindUnknown, outcomeSkipped, log)
	}
	kind := ev.Kind

	handler, ok := d.handlers[kind]
	if !ok {
		log.Info().Msg("Unhandled webhook type, marking processed")
		return d.finishTerminal(ctx, e, nil, kind, outcomeSkipped, log)
	}

	orderID, err := d.resolveOrder(ctx, e, ev)
	if err != nil {
		return d.fail(ctx, e, "", kind, err, log)
	}
	if orderID == "" {
		log.Warn().Str("payment_id", e.PaymentID).Msg("No order resolved for webhook, marking processed")
		return d.finishTerminal(ctx, e, nil, kind, outcomeSkipped, log)
	}
	log = log.With().Str("order_id", orderID).Logger()

	actionID := ev.IdempotencyKey()
	if actionID != "" && d.deps.Cache != nil {
		seen, err := d.deps.Cache.Seen(ctx, orderID, kind, actionID)
		if err != nil {
			log.Debug().Err(err).Msg("Applied-action cache unavailable, using ledger only")
		} else if seen {
			log.Debug().Str("action_id", actionID).Msg("Action already applied (cache), marking processed")
			return d.finishTerminal(ctx, e, &orderID, kind, outcomeDuplicate, log)
		}
	}

	tx, err := d.deps.Transactor.Begin(ctx)
	if err != nil {
		return d.fail(ctx, e, orderID, kind, err, log)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	order, err := d.deps.Orders.GetByIDForUpdate(ctx, tx, orderID)
	if err != nil {
		_ = tx.Rollback(ctx)
		return d.fail(ctx, e, orderID, kind, err, log)
	}
	if order == nil {
		log.Warn().Msg("Order not found, marking processed")
		return d.commitTerminal(ctx, tx, e, orderID, kind, outcomeSkipped, log)
	}

	if actionID != "" {
		exists, err := d.deps.Actions.Exists(ctx, tx, orderID, kind, actionID)
		if err != nil {
			_ = tx.Rollback(ctx)
			return d.fail(ctx, e, orderID, kind, err, log)
		}
		if exists || order.HasRecordedAction(kind, actionID) {
			log.Debug().Str("action_id", actionID).Msg("Action already applied, marking processed")
			return d.commitTerminal(ctx, tx, e, orderID, kind, outcomeDuplicate, log)
		}
	}

	notes, err := handler(ctx, tx, order, ev)
	if err != nil {
		_ = tx.Rollback(ctx)
		return d.fail(ctx, e, orderID, kind, err, log)
	}

	if err := d.deps.Orders.Update(ctx, tx, order); err != nil {
		_ = tx.Rollback(ctx)
		return d.fail(ctx, e, orderID, kind, err, log)
	}
	for _, note := range notes {
		if err := d.deps.Orders.AddNote(ctx, tx, orderID, note); err != nil {
			_ = tx.Rollback(ctx)
			return d.fail(ctx, e, orderID, kind, err, log)
		}
	}

	if actionID != "" {
		inserted, err := d.deps.Actions.Record(ctx, tx, &domain.OrderAction{
			OrderID:   orderID,
			Kind:      kind,
			ActionID:  actionID,
			EntryID:   e.ID,
			CreatedAt: d.now(),
		})
		if err != nil {
			_ = tx.Rollback(ctx)
			return d.fail(ctx, e, orderID, kind, err, log)
		}
		if !inserted {
			_ = tx.Rollback(ctx)
			log.Debug().Str("action_id", actionID).Msg("Action recorded concurrently, marking processed")
			return d.finishTerminal(ctx, e, &orderID, kind, outcomeDuplicate, log)
		}
	}

	marked, err := d.deps.Queue.MarkProcessed(ctx, tx, e.ID, &orderID)
	if err != nil {
		_ = tx.Rollback(ctx)
		return d.fail(ctx, e, orderID, kind, err, log)
	}
	if !marked {
		_ = tx.Rollback(ctx)
		log.Debug().Msg("Entry processed by another pass, discarding effects")
		observability.RecordDispatchOutcome(string(kind), outcomeDuplicate)
		return outcomeDuplicate, orderID, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return d.fail(ctx, e, orderID, kind, fmt.Errorf("commit: %w", err), log)
	}

	if actionID != "" && d.deps.Cache != nil {
		if err := d.deps.Cache.Mark(ctx, orderID, kind, actionID, d.cfg.CacheTTL); err != nil {
			log.Debug().Err(err).Msg("Failed to cache applied action")
		}
	}

	observability.RecordDispatchOutcome(string(kind), outcomeApplied)
	log.Info().
		Str("kind", string(kind)).
		Str("action_id", actionID).
		Str("status", string(order.Status)).
		Msg("Webhook applied to order")
	return outcomeApplied, orderID, nil
}

func (d *Dispatcher) resolveOrder(ctx context.Context, e *domain.QueueEntry, ev *domain.Event) (string, error) {
	if e.OrderID != nil && *e.OrderID != "" {
		return *e.OrderID, nil
	}
	paymentID := e.PaymentID
	if paymentID == "" {
		paymentID = ev.PaymentID
	}
	sessionID := ev.SessionID
	if e.PaymentSessionID != nil && *e.PaymentSessionID != "" {
		sessionID = *e.PaymentSessionID
	}
	if paymentID == "" && sessionID == "" {
		return ev.OrderRef, nil
	}
	orderID, err := d.deps.Mappings.Resolve(ctx, paymentID, sessionID)
	if err != nil {
		return "", fmt.Errorf("resolve order: %w", err)
	}
	if orderID == "" {
		orderID = ev.OrderRef
	}
	return orderID, nil
}

// commitTerminal marks the entry processed inside an open transaction with no
// other effects.
func (d *Dispatcher) commitTerminal(ctx context.Context, tx pgx.Tx, e *domain.QueueEntry, orderID string, kind domain.EventKind, outcome string, log zerolog.Logger) (string, string, error) {
	if _, err := d.deps.Queue.MarkProcessed(ctx, tx, e.ID, &orderID); err != nil {
		_ = tx.Rollback(ctx)
		return d.fail(ctx, e, orderID, kind, err, log)
	}
	if err := tx.Commit(ctx); err != nil {
		return d.fail(ctx, e, orderID, kind, fmt.Errorf("commit: %w", err), log)
	}
	observability.RecordDispatchOutcome(string(kind), outcome)
	return outcome, orderID, nil
}

// finishTerminal marks the entry processed in its own transaction.
func (d *Dispatcher) finishTerminal(ctx context.Context, e *domain.QueueEntry, orderID *string, kind domain.EventKind, outcome string, log zerolog.Logger) (string, string, error) {
	resolved := ""
	if orderID != nil {
		resolved = *orderID
	}

	tx, err := d.deps.Transactor.Begin(ctx)
	if err != nil {
		return d.fail(ctx, e, resolved, kind, err, log)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := d.deps.Queue.MarkProcessed(ctx, tx, e.ID, orderID); err != nil {
		_ = tx.Rollback(ctx)
		return d.fail(ctx, e, resolved, kind, err, log)
	}
	if err := tx.Commit(ctx); err != nil {
		return d.fail(ctx, e, resolved, kind, fmt.Errorf("commit: %w", err), log)
	}
	observability.RecordDispatchOutcome(string(kind), outcome)
	return outcome, resolved, nil
}

// fail records a transient failure. The caller must have closed any
// transaction it held.
func (d *Dispatcher) fail(ctx context.Context, e *domain.QueueEntry, orderID string, kind domain.EventKind, cause error, log zerolog.Logger) (string, string, error) {
	observability.RecordDispatchOutcome(string(kind), outcomeFailed)

	attempts, err := d.deps.Queue.RecordFailure(context.WithoutCancel(ctx), e.ID, cause.Error())
	if err != nil {
		log.Error().Err(err).AnErr("cause", cause).Msg("Failed to record dispatch failure")
		return outcomeFailed, orderID, cause
	}

	if d.cfg.EscalateAfter > 0 && attempts >= d.cfg.EscalateAfter {
		observability.RecordDispatchEscalation()
		log.Error().Err(cause).Int("attempts", attempts).Msg("Webhook keeps failing to dispatch")
	} else {
		log.Warn().Err(cause).Int("attempts", attempts).Msg("Webhook dispatch failed, will retry")
	}
	return outcomeFailed, orderID, cause
}

// --- handlers ---

func formatAmount(amount int64, o *domain.Order, ev *domain.Event) string {
	currency := ev.Currency
	if currency == "" {
		currency = o.Currency
	}
	return money.Format(amount, currency)
}

func describe(prefix string, o *domain.Order, ev *domain.Event) string {
	msg := fmt.Sprintf("%s. Payment ID: %s, Action ID: %s", prefix, ev.PaymentID, ev.TransactionID)
	if ev.Amount > 0 {
		msg += ", Amount: " + formatAmount(ev.Amount, o, ev)
	}
	return msg
}

func (d *Dispatcher) applyAuthorizationSuccess(_ context.Context, _ pgx.Tx, o *domain.Order, ev *domain.Event) ([]string, error) {
	if ev.Flagged {
		o.Flagged = true
	}
	if o.Captured {
		o.Authorized = true
		return []string{describe("Payment authorized after capture, status unchanged", o, ev)}, nil
	}

	target := d.cfg.Statuses.Authorized
	if o.Flagged {
		target = d.cfg.Statuses.Flagged
	}
	if o.Authorized && o.Status == target {
		return []string{describe("Payment authorization repeated, status unchanged", o, ev)}, nil
	}

	o.Authorized = true
	o.RecordAction(ev.Kind, ev.TransactionID)
	o.Status = target

	if o.Flagged {
		return []string{describe("Payment authorized and flagged for review", o, ev)}, nil
	}
	return []string{describe("Payment authorized", o, ev)}, nil
}

func (d *Dispatcher) applyAuthorizationFailure(_ context.Context, _ pgx.Tx, o *domain.Order, ev *domain.Event) ([]string, error) {
	reason := ev.ResponseSummary
	if reason == "" {
		reason = ev.ResponseCode
	}
	if reason == "" {
		reason = ev.Type
	}

	if o.Captured {
		return []string{describe("Payment failure reported after capture, status unchanged ("+reason+")", o, ev)}, nil
	}

	o.RecordAction(ev.Kind, ev.TransactionID)
	o.Status = d.cfg.Statuses.Failed
	return []string{describe("Payment declined ("+reason+")", o, ev)}, nil
}

func (d *Dispatcher) applyCapture(ctx context.Context, tx pgx.Tx, o *domain.Order, ev *domain.Event) ([]string, error) {
	amount := ev.Amount
	if amount <= 0 {
		amount = o.TotalMinor - o.CapturedMinor
		if amount < 0 {
			amount = 0
		}
	}

	o.Captured = true
	o.CapturedMinor += amount
	o.RecordAction(ev.Kind, ev.TransactionID)
	o.Status = d.cfg.Statuses.Captured

	var notes []string
	if ev.Amount > 0 && ev.Amount < o.TotalMinor {
		notes = append(notes, describe(fmt.Sprintf("Payment partially captured (%s of %s)",
			formatAmount(ev.Amount, o, ev), formatAmount(o.TotalMinor, o, ev)), o, ev))
	} else {
		notes = append(notes, describe("Payment captured", o, ev))
	}

	if !o.StockReduced {
		if err := d.deps.Inventory.ReduceStockForOrder(ctx, tx, o.ID); err != nil {
			return nil, err
		}
		o.StockReduced = true
		notes = append(notes, "Stock levels reduced for order items")
	}
	return notes, nil
}

func (d *Dispatcher) applyRefund(ctx context.Context, tx pgx.Tx, o *domain.Order, ev *domain.Event) ([]string, error) {
	if !o.Captured {
		return nil, fmt.Errorf("refund %s for order %s: %w", ev.TransactionID, o.ID, ErrDependencyPending)
	}

	amount := ev.Amount
	if amount <= 0 {
		amount = o.RefundableMinor()
	}

	reason := ev.ResponseSummary
	if reason == "" {
		reason = "Refunded by processor (" + ev.Type + ")"
	}
	refund := &domain.Refund{
		ID:        uuid.New(),
		OrderID:   o.ID,
		ActionID:  ev.IdempotencyKey(),
		Amount:    amount,
		Reason:    reason,
		CreatedAt: d.now(),
	}
	if err := d.deps.Refunds.Create(ctx, tx, refund); err != nil {
		return nil, err
	}

	o.RefundedMinor += amount
	o.RecordAction(ev.Kind, ev.TransactionID)

	if o.RefundedMinor >= o.CapturedMinor {
		o.Status = d.cfg.Statuses.Refunded
		return []string{describe("Payment fully refunded ("+formatAmount(amount, o, ev)+")", o, ev)}, nil
	}
	return []string{describe(fmt.Sprintf("Payment partially refunded (%s, %s refunded in total)",
		formatAmount(amount, o, ev), formatAmount(o.RefundedMinor, o, ev)), o, ev)}, nil
}

func (d *Dispatcher) applyVoid(_ context.Context, _ pgx.Tx, o *domain.Order, ev *domain.Event) ([]string, error) {
	if o.Captured {
		return []string{describe("Void reported after capture, status unchanged", o, ev)}, nil
	}
	o.RecordAction(ev.Kind, ev.TransactionID)
	o.Status = d.cfg.Statuses.Void
	return []string{describe("Payment voided", o, ev)}, nil
}

func (d *Dispatcher) applyDispute(_ context.Context, _ pgx.Tx, o *domain.Order, ev *domain.Event) ([]string, error) {
	status := ev.DisputeStatus
	o.DisputeStatus = &status

	if domain.IsDisputeOpening(ev.Type) && d.cfg.Statuses.Disputed != "" {
		o.Status = d.cfg.Statuses.Disputed
	}
	return []string{describe("Dispute "+status, o, ev)}, nil
}

func (d *Dispatcher) applySourceUpdate(_ context.Context, _ pgx.Tx, o *domain.Order, ev *domain.Event) ([]string, error) {
	src := ev.Source
	if src == nil {
		return []string{"Payment source updated"}, nil
	}
	if src.ID != "" {
		id := src.ID
		o.SourceID = &id
	}
	if src.Scheme != "" {
		scheme := src.Scheme
		o.SourceScheme = &scheme
	}
	if src.Last4 != "" {
		last4 := src.Last4
		o.SourceLast4 = &last4
	}
	return []string{fmt.Sprintf("Payment source updated (%s ending %s)", src.Scheme, src.Last4)}, nil
}

func (d *Dispatcher) applyNote(_ context.Context, _ pgx.Tx, o *domain.Order, ev *domain.Event) ([]string, error) {
	msg := "Processor event " + ev.Type
	if ev.ResponseSummary != "" {
		msg += ": " + ev.ResponseSummary
	}
	return []string{describe(msg, o, ev)}, nil
}
