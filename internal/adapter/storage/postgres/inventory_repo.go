package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// InventoryRepo implements ports.InventoryRepository on products/order_items.
type InventoryRepo struct {
	pool Pool
}

// NewInventoryRepo creates a new InventoryRepo.
func NewInventoryRepo(pool Pool) *InventoryRepo {
	return &InventoryRepo{pool: pool}
}

// ReduceStockForOrder subtracts every item quantity of the order from stock.
// Items without a matching product are ignored.
func (r *InventoryRepo) ReduceStockForOrder(ctx context.Context, tx pgx.Tx, orderID string) error {
	query := `UPDATE products p
		SET stock = p.stock - oi.quantity
		FROM order_items oi
		WHERE oi.order_id = $1 AND oi.sku = p.sku`

	if _, err := tx.Exec(ctx, query, orderID); err != nil {
		return fmt.Errorf("reduce stock: %w", err)
	}
	return nil
}
