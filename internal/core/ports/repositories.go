package ports

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

import (
	"context"
	"time"

	"payment-webhook-queue/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// ClaimFilter scopes a dispatch pass. Zero value claims across all orders.
// Non-empty identifiers are OR-ed, matching any entry tied to the same payment.
type ClaimFilter struct {
	OrderID          string
	PaymentID        string
	PaymentSessionID string
	// Prioritized orders the claim authorizations first, then captures, then
	// the rest, instead of strictly by id.
	Prioritized bool
}

// IsScoped reports whether any identifier is set.
func (f ClaimFilter) IsScoped() bool {
	return f.OrderID != "" || f.PaymentID != "" || f.PaymentSessionID != ""
}

// QueueRepository is the durable webhook queue.
type QueueRepository interface {
	Enqueue(ctx context.Context, entry *domain.QueueEntry) error
	GetByID(ctx context.Context, id int64) (*domain.QueueEntry, error)
	// ClaimBatch leases up to limit claimable entries until now+lease.
	ClaimBatch(ctx context.Context, filter ClaimFilter, limit int, lease time.Duration) ([]domain.QueueEntry, error)
	// MarkProcessed sets processed_at once. Returns false if the entry was already processed.
	MarkProcessed(ctx context.Context, tx pgx.Tx, id int64, orderID *string) (bool, error)
	// RecordFailure increments attempts, stores the error and releases the lease.
	RecordFailure(ctx context.Context, id int64, errMsg string) (int, error)
	ReleaseClaim(ctx context.Context, id int64) error
	Stats(ctx context.Context) (*domain.QueueStats, error)
	ListRecent(ctx context.Context, limit int) ([]domain.QueueEntry, error)
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteUnprocessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeadLetterUnprocessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// DeleteDeadLetteredBefore removes entries dead-lettered before cutoff.
	DeleteDeadLetteredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// OrderRepository persists orders and their notes.
// Methods accepting pgx.Tx run inside the dispatcher's per-entry transaction.
type OrderRepository interface {
	Create(ctx context.Context, tx pgx.Tx, order *domain.Order, items []domain.OrderItem) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*domain.Order, error)
	Update(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	AddNote(ctx context.Context, tx pgx.Tx, orderID string, note string) error
	ListNotes(ctx context.Context, orderID string) ([]domain.OrderNote, error)
}

// PaymentMappingRepository maps processor identifiers to local orders.
type PaymentMappingRepository interface {
	Save(ctx context.Context, tx pgx.Tx, mapping *domain.PaymentMapping) error
	// Resolve returns the order id for paymentID, falling back to sessionID. Empty if none.
	Resolve(ctx context.Context, paymentID, sessionID string) (string, error)
}

// OrderActionRepository is the per-stage idempotency ledger.
type OrderActionRepository interface {
	Exists(ctx context.Context, tx pgx.Tx, orderID string, kind domain.EventKind, actionID string) (bool, error)
	// Record inserts the action. Returns false if it was already recorded.
	Record(ctx context.Context, tx pgx.Tx, action *domain.OrderAction) (bool, error)
}

// RefundRepository persists applied refunds.
type RefundRepository interface {
	Create(ctx context.Context, tx pgx.Tx, refund *domain.Refund) error
	ListByOrder(ctx context.Context, orderID string) ([]domain.Refund, error)
}

// InventoryRepository adjusts product stock for an order's items.
type InventoryRepository interface {
	ReduceStockForOrder(ctx context.Context, tx pgx.Tx, orderID string) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
