// Package memory is a process-local implementation of the storage ports,
// selected with database.driver=memory and used by end-to-end tests.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"payment-webhook-queue/internal/core/domain"
	"payment-webhook-queue/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	errForeignTx  = errors.New("memory: transaction does not belong to this store")
	errTxDone     = errors.New("memory: transaction already closed")
	errSQLNotUsed = errors.New("memory: raw SQL is not supported")
)

// Store holds all tables in maps guarded by one mutex. A transaction owns
// the mutex from Begin until Commit or Rollback, so transactions are serial.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	nextEntryID int64
	nextNoteID  int64

	entries  map[int64]*domain.QueueEntry
	orders   map[string]*domain.Order
	items    map[string][]domain.OrderItem
	stock    map[string]int
	notes    map[string][]domain.OrderNote
	actions  map[actionKey]domain.OrderAction
	refunds  map[string][]domain.Refund
	mappings []domain.PaymentMapping
}

type actionKey struct {
	orderID  string
	kind     domain.EventKind
	actionID string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		now:     func() time.Time { return time.Now().UTC() },
		entries: make(map[int64]*domain.QueueEntry),
		orders:  make(map[string]*domain.Order),
		items:   make(map[string][]domain.OrderItem),
		stock:   make(map[string]int),
		notes:   make(map[string][]domain.OrderNote),
		actions: make(map[actionKey]domain.OrderAction),
		refunds: make(map[string][]domain.Refund),
	}
}

// SetClock overrides the store's notion of now.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetStock seeds a product's stock level.
func (s *Store) SetStock(sku string, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[sku] = qty
}

// Stock returns a product's stock level.
func (s *Store) Stock(sku string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock[sku]
}

// Begin implements ports.DBTransactor.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	return &Tx{store: s}, nil
}

// own validates that tx was opened on s and is still live.
func (s *Store) own(tx pgx.Tx) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t.store != s {
		return nil, errForeignTx
	}
	if t.done {
		return nil, errTxDone
	}
	return t, nil
}

// Tx is a pgx.Tx over the store. Mutations register undo steps that
// Rollback replays in reverse.
type Tx struct {
	store *Store
	undo  []func()
	done  bool
}

func (t *Tx) onRollback(f func()) {
	t.undo = append(t.undo, f)
}

func (t *Tx) finish() {
	t.done = true
	t.undo = nil
	t.store.mu.Unlock()
}

func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.finish()
	return nil
}

// Rollback undoes every mutation. After Commit it returns pgx.ErrTxClosed
// and changes nothing.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.finish()
	return nil
}

func (t *Tx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, errSQLNotUsed }
func (t *Tx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errSQLNotUsed
}
func (t *Tx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *Tx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *Tx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errSQLNotUsed
}
func (t *Tx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), errSQLNotUsed
}
func (t *Tx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errSQLNotUsed
}
func (t *Tx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return errRow{} }
func (t *Tx) Conn() *pgx.Conn                                              { return nil }

type errRow struct{}

func (errRow) Scan(dest ...any) error { return errSQLNotUsed }

// Ping implements ports.HealthChecker.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// Name implements ports.HealthChecker.
func (s *Store) Name() string { return "memory" }

var (
	_ ports.QueueRepository          = (*QueueRepo)(nil)
	_ ports.OrderRepository          = (*OrderRepo)(nil)
	_ ports.PaymentMappingRepository = (*MappingRepo)(nil)
	_ ports.OrderActionRepository    = (*ActionRepo)(nil)
	_ ports.RefundRepository         = (*RefundRepo)(nil)
	_ ports.InventoryRepository      = (*InventoryRepo)(nil)
	_ ports.DBTransactor             = (*Store)(nil)
	_ ports.HealthChecker            = (*Store)(nil)
)
