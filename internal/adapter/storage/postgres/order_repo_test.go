package postgres

import (
	"context"
	"testing"
	"time"

	"payment-webhook-queue/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder() *domain.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Order{
		ID:         "1001",
		Status:     domain.OrderStatusPending,
		TotalMinor: 2500,
		Currency:   "EUR",
		PaymentID:  "pay_abc",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func orderRow(o *domain.Order) *pgxmock.Rows {
	cols := []string{"id", "status", "total_minor", "currency", "payment_id", "payment_session_id",
		"transaction_id", "last_action_kind", "authorized", "captured", "flagged", "captured_minor",
		"refunded_minor", "stock_reduced", "dispute_status", "source_id", "source_scheme", "source_last4",
		"created_at", "updated_at"}
	return pgxmock.NewRows(cols).AddRow(
		o.ID, string(o.Status), o.TotalMinor, o.Currency, o.PaymentID, o.PaymentSessionID,
		o.TransactionID, kindPtr(o.LastActionKind), o.Authorized, o.Captured, o.Flagged, o.CapturedMinor,
		o.RefundedMinor, o.StockReduced, o.DisputeStatus, o.SourceID, o.SourceScheme, o.SourceLast4,
		o.CreatedAt, o.UpdatedAt,
	)
}

func TestOrderRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	o := newTestOrder()
	items := []domain.OrderItem{{SKU: "MUG-1", Quantity: 2}, {SKU: "TEE-L", Quantity: 1}}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WithArgs(o.ID, "pending", o.TotalMinor, o.Currency, o.PaymentID, o.PaymentSessionID, o.CreatedAt, o.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs(o.ID, "MUG-1", 2).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs(o.ID, "TEE-L", 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.Create(context.Background(), tx, o, items))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_Create_Duplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	o := newTestOrder()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, o, nil)
	assert.ErrorIs(t, err, domain.ErrOrderExists)
}

func TestOrderRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	o := newTestOrder()
	o.Authorized = true
	o.RecordAction(domain.EventKindAuthorizationSuccess, "act_1")

	mock.ExpectQuery("SELECT .+ FROM orders WHERE id").
		WithArgs(o.ID).
		WillReturnRows(orderRow(o))

	got, err := repo.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.OrderStatusPending, got.Status)
	assert.True(t, got.HasRecordedAction(domain.EventKindAuthorizationSuccess, "act_1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	mock.ExpectQuery("SELECT .+ FROM orders WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.GetByID(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestOrderRepo_GetByIDForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	o := newTestOrder()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM orders WHERE id .+ FOR UPDATE").
		WithArgs(o.ID).
		WillReturnRows(orderRow(o))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	got, err := repo.GetByIDForUpdate(context.Background(), tx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, o.ID, got.ID)
	assert.Nil(t, got.LastActionKind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_Update(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	o := newTestOrder()
	o.Status = "processing"
	o.Captured = true
	o.CapturedMinor = 2500
	o.RecordAction(domain.EventKindCapture, "act_cap")

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders SET").
		WithArgs(o.ID, "processing", o.TransactionID, kindPtr(o.LastActionKind),
			false, true, false, int64(2500), int64(0), false,
			o.DisputeStatus, o.SourceID, o.SourceScheme, o.SourceLast4, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.Update(context.Background(), tx, o))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_Update_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders SET").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Update(context.Background(), tx, newTestOrder())
	assert.ErrorContains(t, err, "no rows affected")
}

func TestOrderRepo_Notes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	created := time.Now().UTC().Truncate(time.Microsecond)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO order_notes").
		WithArgs("1001", "Payment captured: 25.00 EUR", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT id, order_id, note, created_at FROM order_notes").
		WithArgs("1001").
		WillReturnRows(pgxmock.NewRows([]string{"id", "order_id", "note", "created_at"}).
			AddRow(int64(1), "1001", "Payment captured: 25.00 EUR", created))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, repo.AddNote(context.Background(), tx, "1001", "Payment captured: 25.00 EUR"))

	notes, err := repo.ListNotes(context.Background(), "1001")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "Payment captured: 25.00 EUR", notes[0].Note)
	assert.NoError(t, mock.ExpectationsWereMet())
}
