package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payment-webhook-queue/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const orderColumns = `id, status, total_minor, currency, payment_id, payment_session_id,
	transaction_id, last_action_kind, authorized, captured, flagged, captured_minor, refunded_minor,
	stock_reduced, dispute_status, source_id, source_scheme, source_last4, created_at, updated_at`

// OrderRepo implements ports.OrderRepository.
type OrderRepo struct {
	pool Pool
}

// NewOrderRepo creates a new OrderRepo.
func NewOrderRepo(pool Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	o := &domain.Order{}
	var status string
	var lastKind *string
	err := row.Scan(
		&o.ID, &status, &o.TotalMinor, &o.Currency, &o.PaymentID, &o.PaymentSessionID,
		&o.TransactionID, &lastKind, &o.Authorized, &o.Captured, &o.Flagged,
		&o.CapturedMinor, &o.RefundedMinor, &o.StockReduced, &o.DisputeStatus,
		&o.SourceID, &o.SourceScheme, &o.SourceLast4, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = domain.OrderStatus(status)
	if lastKind != nil {
		k := domain.EventKind(*lastKind)
		o.LastActionKind = &k
	}
	return o, nil
}

func kindPtr(k *domain.EventKind) *string {
	if k == nil {
		return nil
	}
	s := string(*k)
	return &s
}

// Create inserts an order with its items inside tx.
// Returns domain.ErrOrderExists when the id is taken.
func (r *OrderRepo) Create(ctx context.Context, tx pgx.Tx, o *domain.Order, items []domain.OrderItem) error {
	query := `INSERT INTO orders (id, status, total_minor, currency, payment_id, payment_session_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := tx.Exec(ctx, query,
		o.ID, string(o.Status), o.TotalMinor, o.Currency, o.PaymentID, o.PaymentSessionID,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrOrderExists
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range items {
		_, err := tx.Exec(ctx,
			`INSERT INTO order_items (order_id, sku, quantity) VALUES ($1, $2, $3)`,
			o.ID, item.SKU, item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("insert order item %s: %w", item.SKU, err)
		}
	}
	return nil
}

// GetByID fetches an order without locking. Returns nil, nil if not found.
func (r *OrderRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// GetByIDForUpdate fetches an order with a row lock.
// This MUST be called within a transaction.
func (r *OrderRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	o, err := scanOrder(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order for update: %w", err)
	}
	return o, nil
}

// Update writes every webhook-driven field of the order.
func (r *OrderRepo) Update(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	o.UpdatedAt = time.Now().UTC()

	query := `UPDATE orders SET
			status = $2, transaction_id = $3, last_action_kind = $4,
			authorized = $5, captured = $6, flagged = $7,
			captured_minor = $8, refunded_minor = $9, stock_reduced = $10,
			dispute_status = $11, source_id = $12, source_scheme = $13, source_last4 = $14,
			updated_at = $15
		WHERE id = $1`

	tag, err := tx.Exec(ctx, query,
		o.ID, string(o.Status), o.TransactionID, kindPtr(o.LastActionKind),
		o.Authorized, o.Captured, o.Flagged,
		o.CapturedMinor, o.RefundedMinor, o.StockReduced,
		o.DisputeStatus, o.SourceID, o.SourceScheme, o.SourceLast4,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update order %s: no rows affected", o.ID)
	}
	return nil
}

// AddNote appends an audit note to the order.
func (r *OrderRepo) AddNote(ctx context.Context, tx pgx.Tx, orderID string, note string) error {
	query := `INSERT INTO order_notes (order_id, note, created_at) VALUES ($1, $2, $3)`

	if _, err := tx.Exec(ctx, query, orderID, note, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert order note: %w", err)
	}
	return nil
}

// ListNotes returns an order's notes oldest first.
func (r *OrderRepo) ListNotes(ctx context.Context, orderID string) ([]domain.OrderNote, error) {
	query := `SELECT id, order_id, note, created_at FROM order_notes WHERE order_id = $1 ORDER BY id`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order notes: %w", err)
	}
	defer rows.Close()

	var notes []domain.OrderNote
	for rows.Next() {
		var n domain.OrderNote
		if err := rows.Scan(&n.ID, &n.OrderID, &n.Note, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
