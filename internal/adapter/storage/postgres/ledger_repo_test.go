package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"payment-webhook-queue/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMappingRepo_Save(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewMappingRepo(mock)
	m := &domain.PaymentMapping{PaymentID: "pay_1", PaymentSessionID: "ps_1", OrderID: "1001"}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO payment_order_map").
		WithArgs("pay_1", "ps_1", "1001", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	require.NoError(t, repo.Save(context.Background(), tx, m))
	assert.False(t, m.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMappingRepo_Resolve(t *testing.T) {
	t.Run("by payment id", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("SELECT order_id FROM payment_order_map WHERE payment_id").
			WithArgs("pay_1").
			WillReturnRows(pgxmock.NewRows([]string{"order_id"}).AddRow("1001"))

		id, err := NewMappingRepo(mock).Resolve(context.Background(), "pay_1", "ps_1")
		require.NoError(t, err)
		assert.Equal(t, "1001", id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("falls back to session id", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("SELECT order_id FROM payment_order_map WHERE payment_id").
			WithArgs("pay_unknown").
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery("SELECT order_id FROM payment_order_map WHERE payment_session_id").
			WithArgs("ps_1").
			WillReturnRows(pgxmock.NewRows([]string{"order_id"}).AddRow("1002"))

		id, err := NewMappingRepo(mock).Resolve(context.Background(), "pay_unknown", "ps_1")
		require.NoError(t, err)
		assert.Equal(t, "1002", id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unresolved", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id, err := NewMappingRepo(mock).Resolve(context.Background(), "", "")
		require.NoError(t, err)
		assert.Empty(t, id)
	})

	t.Run("query error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("SELECT order_id FROM payment_order_map").
			WillReturnError(errors.New("conn reset"))

		_, err = NewMappingRepo(mock).Resolve(context.Background(), "pay_1", "")
		assert.ErrorContains(t, err, "resolve payment mapping")
	})
}

func TestActionRepo_ExistsAndRecord(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewActionRepo(mock)
	action := &domain.OrderAction{OrderID: "1001", Kind: domain.EventKindCapture, ActionID: "act_1", EntryID: 12}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("1001", "capture", "act_1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO order_actions .+ ON CONFLICT").
		WithArgs("1001", "capture", "act_1", int64(12), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO order_actions .+ ON CONFLICT").
		WithArgs("1001", "capture", "act_1", int64(12), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	exists, err := repo.Exists(context.Background(), tx, "1001", domain.EventKindCapture, "act_1")
	require.NoError(t, err)
	assert.False(t, exists)

	inserted, err := repo.Record(context.Background(), tx, action)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.Record(context.Background(), tx, action)
	require.NoError(t, err)
	assert.False(t, inserted)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefundRepo(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRefundRepo(mock)
	rf := &domain.Refund{
		ID:        uuid.New(),
		OrderID:   "1001",
		ActionID:  "act_ref",
		Amount:    500,
		Reason:    "Refund via webhook",
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO order_refunds").
		WithArgs(rf.ID, rf.OrderID, rf.ActionID, rf.Amount, rf.Reason, rf.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT .+ FROM order_refunds WHERE order_id").
		WithArgs("1001").
		WillReturnRows(pgxmock.NewRows([]string{"id", "order_id", "action_id", "amount", "reason", "created_at"}).
			AddRow(rf.ID, rf.OrderID, rf.ActionID, rf.Amount, rf.Reason, rf.CreatedAt))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), tx, rf))

	refunds, err := repo.ListByOrder(context.Background(), "1001")
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, int64(500), refunds[0].Amount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryRepo_ReduceStockForOrder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewInventoryRepo(mock)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE products p SET stock = p.stock - oi.quantity FROM order_items oi").
		WithArgs("1001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectExec("UPDATE products p").
		WithArgs("1002").
		WillReturnError(errors.New("deadlock detected"))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.ReduceStockForOrder(context.Background(), tx, "1001"))
	assert.ErrorContains(t, repo.ReduceStockForOrder(context.Background(), tx, "1002"), "reduce stock")
	assert.NoError(t, mock.ExpectationsWereMet())
}
