package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payment-webhook-queue/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// MappingRepo implements ports.PaymentMappingRepository.
type MappingRepo struct {
	pool Pool
}

// NewMappingRepo creates a new MappingRepo.
func NewMappingRepo(pool Pool) *MappingRepo {
	return &MappingRepo{pool: pool}
}

// Save records which order a payment and session belong to.
func (r *MappingRepo) Save(ctx context.Context, tx pgx.Tx, m *domain.PaymentMapping) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO payment_order_map (payment_id, payment_session_id, order_id, created_at)
		VALUES ($1, $2, $3, $4)`

	if _, err := tx.Exec(ctx, query, m.PaymentID, m.PaymentSessionID, m.OrderID, m.CreatedAt); err != nil {
		return fmt.Errorf("insert payment mapping: %w", err)
	}
	return nil
}

// Resolve looks up the order by payment id first, then by session id.
// The newest mapping wins. Returns "" when neither matches.
func (r *MappingRepo) Resolve(ctx context.Context, paymentID, sessionID string) (string, error) {
	if paymentID != "" {
		id, err := r.lookup(ctx, "payment_id", paymentID)
		if err != nil || id != "" {
			return id, err
		}
	}
	if sessionID != "" {
		return r.lookup(ctx, "payment_session_id", sessionID)
	}
	return "", nil
}

func (r *MappingRepo) lookup(ctx context.Context, column, value string) (string, error) {
	query := fmt.Sprintf(`SELECT order_id FROM payment_order_map
		WHERE %s = $1 ORDER BY created_at DESC LIMIT 1`, column)

	var orderID string
	if err := r.pool.QueryRow(ctx, query, value).Scan(&orderID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("resolve payment mapping by %s: %w", column, err)
	}
	return orderID, nil
}
