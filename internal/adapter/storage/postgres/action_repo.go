package postgres

import (
	"context"
	"fmt"
	"time"

	"payment-webhook-queue/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// ActionRepo implements ports.OrderActionRepository on order_actions.
// The unique key (order_id, kind, action_id) makes each stage apply once.
type ActionRepo struct {
	pool Pool
}

// NewActionRepo creates a new ActionRepo.
func NewActionRepo(pool Pool) *ActionRepo {
	return &ActionRepo{pool: pool}
}

// Exists checks the ledger inside tx.
func (r *ActionRepo) Exists(ctx context.Context, tx pgx.Tx, orderID string, kind domain.EventKind, actionID string) (bool, error) {
	query := `SELECT EXISTS (
			SELECT 1 FROM order_actions WHERE order_id = $1 AND kind = $2 AND action_id = $3
		)`

	var exists bool
	if err := tx.QueryRow(ctx, query, orderID, string(kind), actionID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check order action: %w", err)
	}
	return exists, nil
}

// Record inserts the action. Returns false when the row already existed.
func (r *ActionRepo) Record(ctx context.Context, tx pgx.Tx, a *domain.OrderAction) (bool, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO order_actions (order_id, kind, action_id, entry_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id, kind, action_id) DO NOTHING`

	tag, err := tx.Exec(ctx, query, a.OrderID, string(a.Kind), a.ActionID, a.EntryID, a.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("record order action: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
