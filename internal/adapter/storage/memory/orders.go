package memory

import (
	"context"
	"fmt"

	"payment-webhook-queue/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// OrderRepo implements ports.OrderRepository over a Store.
type OrderRepo struct{ s *Store }

// Orders returns the store's order repository.
func (s *Store) Orders() *OrderRepo { return &OrderRepo{s: s} }

func (r *OrderRepo) Create(ctx context.Context, tx pgx.Tx, o *domain.Order, items []domain.OrderItem) error {
	t, err := r.s.own(tx)
	if err != nil {
		return err
	}
	if _, exists := r.s.orders[o.ID]; exists {
		return domain.ErrOrderExists
	}

	stored := *o
	r.s.orders[o.ID] = &stored
	lines := make([]domain.OrderItem, len(items))
	for i, it := range items {
		it.OrderID = o.ID
		lines[i] = it
	}
	r.s.items[o.ID] = lines

	t.onRollback(func() {
		delete(r.s.orders, o.ID)
		delete(r.s.items, o.ID)
	})
	return nil
}

func (r *OrderRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o, ok := r.s.orders[id]
	if !ok {
		return nil, nil
	}
	c := *o
	return &c, nil
}

func (r *OrderRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*domain.Order, error) {
	if _, err := r.s.own(tx); err != nil {
		return nil, err
	}
	o, ok := r.s.orders[id]
	if !ok {
		return nil, nil
	}
	c := *o
	return &c, nil
}

func (r *OrderRepo) Update(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	t, err := r.s.own(tx)
	if err != nil {
		return err
	}
	cur, ok := r.s.orders[o.ID]
	if !ok {
		return fmt.Errorf("update order %s: no rows affected", o.ID)
	}

	prev := *cur
	o.UpdatedAt = r.s.now()
	*cur = *o
	t.onRollback(func() { *cur = prev })
	return nil
}

func (r *OrderRepo) AddNote(ctx context.Context, tx pgx.Tx, orderID string, note string) error {
	t, err := r.s.own(tx)
	if err != nil {
		return err
	}

	r.s.nextNoteID++
	prevLen := len(r.s.notes[orderID])
	r.s.notes[orderID] = append(r.s.notes[orderID], domain.OrderNote{
		ID:        r.s.nextNoteID,
		OrderID:   orderID,
		Note:      note,
		CreatedAt: r.s.now(),
	})
	t.onRollback(func() { r.s.notes[orderID] = r.s.notes[orderID][:prevLen] })
	return nil
}

func (r *OrderRepo) ListNotes(ctx context.Context, orderID string) ([]domain.OrderNote, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return append([]domain.OrderNote(nil), r.s.notes[orderID]...), nil
}

// MappingRepo implements ports.PaymentMappingRepository over a Store.
type MappingRepo struct{ s *Store }

// Mappings returns the store's payment mapping repository.
func (s *Store) Mappings() *MappingRepo { return &MappingRepo{s: s} }

func (r *MappingRepo) Save(ctx context.Context, tx pgx.Tx, m *domain.PaymentMapping) error {
	t, err := r.s.own(tx)
	if err != nil {
		return err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = r.s.now()
	}
	prevLen := len(r.s.mappings)
	r.s.mappings = append(r.s.mappings, *m)
	t.onRollback(func() { r.s.mappings = r.s.mappings[:prevLen] })
	return nil
}

// Resolve scans newest first so a re-registered payment wins.
func (r *MappingRepo) Resolve(ctx context.Context, paymentID, sessionID string) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if paymentID != "" {
		for i := len(r.s.mappings) - 1; i >= 0; i-- {
			if r.s.mappings[i].PaymentID == paymentID {
				return r.s.mappings[i].OrderID, nil
			}
		}
	}
	if sessionID != "" {
		for i := len(r.s.mappings) - 1; i >= 0; i-- {
			if r.s.mappings[i].PaymentSessionID == sessionID {
				return r.s.mappings[i].OrderID, nil
			}
		}
	}
	return "", nil
}

// ActionRepo implements ports.OrderActionRepository over a Store.
type ActionRepo struct{ s *Store }

// Actions returns the store's action ledger.
func (s *Store) Actions() *ActionRepo { return &ActionRepo{s: s} }

func (r *ActionRepo) Exists(ctx context.Context, tx pgx.Tx, orderID string, kind domain.EventKind, actionID string) (bool, error) {
	if _, err := r.s.own(tx); err != nil {
		return false, err
	}
	_, ok := r.s.actions[actionKey{orderID, kind, actionID}]
	return ok, nil
}

func (r *ActionRepo) Record(ctx context.Context, tx pgx.Tx, a *domain.OrderAction) (bool, error) {
	t, err := r.s.own(tx)
	if err != nil {
		return false, err
	}
	k := actionKey{a.OrderID, a.Kind, a.ActionID}
	if _, ok := r.s.actions[k]; ok {
		return false, nil
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.s.now()
	}
	r.s.actions[k] = *a
	t.onRollback(func() { delete(r.s.actions, k) })
	return true, nil
}

// RefundRepo implements ports.RefundRepository over a Store.
type RefundRepo struct{ s *Store }

// Refunds returns the store's refund repository.
func (s *Store) Refunds() *RefundRepo { return &RefundRepo{s: s} }

func (r *RefundRepo) Create(ctx context.Context, tx pgx.Tx, refund *domain.Refund) error {
	t, err := r.s.own(tx)
	if err != nil {
		return err
	}
	prevLen := len(r.s.refunds[refund.OrderID])
	r.s.refunds[refund.OrderID] = append(r.s.refunds[refund.OrderID], *refund)
	t.onRollback(func() { r.s.refunds[refund.OrderID] = r.s.refunds[refund.OrderID][:prevLen] })
	return nil
}

func (r *RefundRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.Refund, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return append([]domain.Refund(nil), r.s.refunds[orderID]...), nil
}

// InventoryRepo implements ports.InventoryRepository over a Store.
type InventoryRepo struct{ s *Store }

// Inventory returns the store's inventory repository.
func (s *Store) Inventory() *InventoryRepo { return &InventoryRepo{s: s} }

// ReduceStockForOrder only touches SKUs seeded with SetStock.
func (r *InventoryRepo) ReduceStockForOrder(ctx context.Context, tx pgx.Tx, orderID string) error {
	t, err := r.s.own(tx)
	if err != nil {
		return err
	}
	for _, it := range r.s.items[orderID] {
		sku, qty := it.SKU, it.Quantity
		if _, ok := r.s.stock[sku]; !ok {
			continue
		}
		r.s.stock[sku] -= qty
		t.onRollback(func() { r.s.stock[sku] += qty })
	}
	return nil
}
