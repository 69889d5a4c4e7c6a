package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"payment-webhook-queue/internal/core/domain"
	"payment-webhook-queue/internal/core/ports/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type adminMocks struct {
	queue   *mocks.MockQueueRepository
	orders  *mocks.MockOrderRepository
	refunds *mocks.MockRefundRepository
	hash    *mocks.MockHashService
	token   *mocks.MockTokenService
}

func setupAdminService(t *testing.T) (*AdminServiceImpl, *adminMocks) {
	ctrl := gomock.NewController(t)
	m := &adminMocks{
		queue:   mocks.NewMockQueueRepository(ctrl),
		orders:  mocks.NewMockOrderRepository(ctrl),
		refunds: mocks.NewMockRefundRepository(ctrl),
		hash:    mocks.NewMockHashService(ctrl),
		token:   mocks.NewMockTokenService(ctrl),
	}
	svc := NewAdminService(m.queue, m.orders, m.refunds, m.hash, m.token, "admin", "$argon2id$stored")
	return svc, m
}

func TestAdminLogin(t *testing.T) {
	expiry := time.Now().Add(time.Hour)

	tests := []struct {
		name     string
		username string
		setup    func(m *adminMocks)
		wantCode string
	}{
		{
			name:     "success",
			username: "admin",
			setup: func(m *adminMocks) {
				m.hash.EXPECT().Verify("s3cret", "$argon2id$stored").Return(true, nil)
				m.token.EXPECT().Generate("admin").Return("jwt-token", expiry, nil)
			},
		},
		{
			name:     "unknown user",
			username: "root",
			setup:    func(m *adminMocks) {},
			wantCode: "AUTH_001",
		},
		{
			name:     "wrong password",
			username: "admin",
			setup: func(m *adminMocks) {
				m.hash.EXPECT().Verify("s3cret", gomock.Any()).Return(false, nil)
			},
			wantCode: "AUTH_001",
		},
		{
			name:     "hash error",
			username: "admin",
			setup: func(m *adminMocks) {
				m.hash.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(false, errors.New("malformed hash"))
			},
			wantCode: "SYS_001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := setupAdminService(t)
			tt.setup(m)

			token, exp, err := svc.Login(context.Background(), tt.username, "s3cret")
			if tt.wantCode != "" {
				assertAppErrorCode(t, err, tt.wantCode)
				assert.Empty(t, token)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "jwt-token", token)
			assert.Equal(t, expiry, exp)
		})
	}
}

func TestAdminLogin_NoHashConfigured(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := NewAdminService(nil, nil, nil, mocks.NewMockHashService(ctrl), mocks.NewMockTokenService(ctrl), "admin", "")

	_, _, err := svc.Login(context.Background(), "admin", "")
	assertAppErrorCode(t, err, "AUTH_001")
}

func TestAdminRecent_ClampsLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 20},
		{-5, 20},
		{15, 15},
		{500, 100},
	}

	for _, tt := range tests {
		svc, m := setupAdminService(t)
		m.queue.EXPECT().ListRecent(gomock.Any(), tt.want).Return(nil, nil)

		entries, err := svc.Recent(context.Background(), tt.in)
		require.NoError(t, err)
		assert.NotNil(t, entries)
		assert.Empty(t, entries)
	}
}

func TestAdminStats(t *testing.T) {
	svc, m := setupAdminService(t)
	want := &domain.QueueStats{Total: 4, Pending: 1, Processed: 2, DeadLettered: 1}
	m.queue.EXPECT().Stats(gomock.Any()).Return(want, nil)

	got, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	m.queue.EXPECT().Stats(gomock.Any()).Return(nil, errors.New("down"))
	_, err = svc.Stats(context.Background())
	assertAppErrorCode(t, err, "SYS_001")
}

func TestAdminGetOrder(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		svc, m := setupAdminService(t)
		order := &domain.Order{ID: "1001", Status: "processing"}
		m.orders.EXPECT().GetByID(gomock.Any(), "1001").Return(order, nil)
		m.orders.EXPECT().ListNotes(gomock.Any(), "1001").Return([]domain.OrderNote{{ID: 1, Note: "Payment captured"}}, nil)
		m.refunds.EXPECT().ListByOrder(gomock.Any(), "1001").Return(nil, nil)

		view, err := svc.GetOrder(context.Background(), "1001")
		require.NoError(t, err)
		assert.Equal(t, order, view.Order)
		assert.Len(t, view.Notes, 1)
		assert.NotNil(t, view.Refunds)
	})

	t.Run("not found", func(t *testing.T) {
		svc, m := setupAdminService(t)
		m.orders.EXPECT().GetByID(gomock.Any(), "404").Return(nil, nil)

		_, err := svc.GetOrder(context.Background(), "404")
		assertAppErrorCode(t, err, "ORD_001")
	})
}
