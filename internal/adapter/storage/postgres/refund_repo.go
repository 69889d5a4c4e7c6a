package postgres

import (
	"context"
	"fmt"

	"payment-webhook-queue/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// RefundRepo implements ports.RefundRepository.
type RefundRepo struct {
	pool Pool
}

// NewRefundRepo creates a new RefundRepo.
func NewRefundRepo(pool Pool) *RefundRepo {
	return &RefundRepo{pool: pool}
}

// Create inserts a refund within a transaction.
func (r *RefundRepo) Create(ctx context.Context, tx pgx.Tx, refund *domain.Refund) error {
	query := `INSERT INTO order_refunds (id, order_id, action_id, amount, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := tx.Exec(ctx, query,
		refund.ID, refund.OrderID, refund.ActionID, refund.Amount, refund.Reason, refund.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert refund: %w", err)
	}
	return nil
}

// ListByOrder returns an order's refunds oldest first.
func (r *RefundRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.Refund, error) {
	query := `SELECT id, order_id, action_id, amount, reason, created_at
		FROM order_refunds WHERE order_id = $1 ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list refunds: %w", err)
	}
	defer rows.Close()

	var refunds []domain.Refund
	for rows.Next() {
		var rf domain.Refund
		if err := rows.Scan(&rf.ID, &rf.OrderID, &rf.ActionID, &rf.Amount, &rf.Reason, &rf.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan refund: %w", err)
		}
		refunds = append(refunds, rf)
	}
	return refunds, rows.Err()
}
