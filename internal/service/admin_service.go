package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"payment-webhook-queue/internal/core/domain"
	"payment-webhook-queue/internal/core/ports"
	"payment-webhook-queue/pkg/apperror"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

// AdminServiceImpl implements ports.AdminService.
type AdminServiceImpl struct {
	queue        ports.QueueRepository
	orders       ports.OrderRepository
	refunds      ports.RefundRepository
	hashSvc      ports.HashService
	tokenSvc     ports.TokenService
	username     string
	passwordHash string
}

// NewAdminService creates a new AdminServiceImpl.
func NewAdminService(
	queue ports.QueueRepository,
	orders ports.OrderRepository,
	refunds ports.RefundRepository,
	hashSvc ports.HashService,
	tokenSvc ports.TokenService,
	username string,
	passwordHash string,
) *AdminServiceImpl {
	return &AdminServiceImpl{
		queue:        queue,
		orders:       orders,
		refunds:      refunds,
		hashSvc:      hashSvc,
		tokenSvc:     tokenSvc,
		username:     username,
		passwordHash: passwordHash,
	}
}

// Login validates the operator credentials and returns a JWT token.
func (s *AdminServiceImpl) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	if s.passwordHash == "" || subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) != 1 {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	valid, err := s.hashSvc.Verify(password, s.passwordHash)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("verify password: %w", err))
	}
	if !valid {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	token, expiry, err := s.tokenSvc.Generate(username)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}
	return token, expiry, nil
}

// Stats returns queue counters.
func (s *AdminServiceImpl) Stats(ctx context.Context) (*domain.QueueStats, error) {
	stats, err := s.queue.Stats(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	return stats, nil
}

// Recent returns the newest entries. limit is clamped to [1, 100]; zero means 20.
func (s *AdminServiceImpl) Recent(ctx context.Context, limit int) ([]domain.QueueEntry, error) {
	switch {
	case limit <= 0:
		limit = defaultRecentLimit
	case limit > maxRecentLimit:
		limit = maxRecentLimit
	}

	entries, err := s.queue.ListRecent(ctx, limit)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if entries == nil {
		entries = []domain.QueueEntry{}
	}
	return entries, nil
}

// GetOrder returns an order with its notes and refunds.
func (s *AdminServiceImpl) GetOrder(ctx context.Context, orderID string) (*ports.OrderView, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if order == nil {
		return nil, apperror.ErrOrderNotFound(orderID)
	}

	notes, err := s.orders.ListNotes(ctx, orderID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	refunds, err := s.refunds.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}

	if notes == nil {
		notes = []domain.OrderNote{}
	}
	if refunds == nil {
		refunds = []domain.Refund{}
	}
	return &ports.OrderView{Order: order, Notes: notes, Refunds: refunds}, nil
}
