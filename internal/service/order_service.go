package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"payment-webhook-queue/internal/core/domain"
	"payment-webhook-queue/internal/core/ports"
	"payment-webhook-queue/pkg/apperror"

	"github.com/rs/zerolog"
)

// orderService implements ports.OrderService.
type orderService struct {
	orders     ports.OrderRepository
	mappings   ports.PaymentMappingRepository
	transactor ports.DBTransactor
	dispatcher ports.EventDispatcher
	log        zerolog.Logger
}

// NewOrderService creates a new order intake service.
func NewOrderService(
	orders ports.OrderRepository,
	mappings ports.PaymentMappingRepository,
	transactor ports.DBTransactor,
	dispatcher ports.EventDispatcher,
	log zerolog.Logger,
) ports.OrderService {
	return &orderService{
		orders:     orders,
		mappings:   mappings,
		transactor: transactor,
		dispatcher: dispatcher,
		log:        log,
	}
}

// RegisterOrder stores the order, its items and its payment mapping in one
// transaction, then flushes any webhooks that arrived before it.
func (s *orderService) RegisterOrder(ctx context.Context, req ports.RegisterOrderRequest) (*domain.Order, *ports.PassResult, error) {
	now := time.Now().UTC()
	order := &domain.Order{
		ID:               req.OrderID,
		Status:           domain.OrderStatusPending,
		TotalMinor:       req.TotalMinor,
		Currency:         strings.ToUpper(req.Currency),
		PaymentID:        req.PaymentID,
		PaymentSessionID: req.PaymentSessionID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := s.orders.Create(ctx, tx, order, mergeItems(req.Items)); err != nil {
		if errors.Is(err, domain.ErrOrderExists) {
			return nil, nil, apperror.ErrDuplicateOrder(req.OrderID)
		}
		return nil, nil, apperror.ErrDatabaseError(err)
	}

	if req.PaymentID != "" || req.PaymentSessionID != "" {
		mapping := &domain.PaymentMapping{
			PaymentID:        req.PaymentID,
			PaymentSessionID: req.PaymentSessionID,
			OrderID:          req.OrderID,
			CreatedAt:        now,
		}
		if err := s.mappings.Save(ctx, tx, mapping); err != nil {
			return nil, nil, apperror.ErrDatabaseError(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("order_id", order.ID).
		Str("payment_id", order.PaymentID).
		Int64("total_minor", order.TotalMinor).
		Msg("Order registered")

	res, err := s.dispatcher.RunPass(ctx, ports.ClaimFilter{
		OrderID:          order.ID,
		PaymentID:        order.PaymentID,
		PaymentSessionID: order.PaymentSessionID,
		Prioritized:      true,
	})
	if err != nil {
		// The order exists; queued webhooks will reach it on the next pass.
		s.log.Warn().Err(err).Str("order_id", order.ID).Msg("Early webhook flush failed")
		return order, &ports.PassResult{}, nil
	}

	if res.Applied > 0 {
		if fresh, err := s.orders.GetByID(ctx, order.ID); err == nil && fresh != nil {
			order = fresh
		}
	}
	return order, res, nil
}

// mergeItems folds repeated SKUs into one line, keeping first-seen order.
func mergeItems(items []domain.OrderItem) []domain.OrderItem {
	if len(items) == 0 {
		return items
	}
	merged := make([]domain.OrderItem, 0, len(items))
	index := make(map[string]int, len(items))
	for _, it := range items {
		if i, ok := index[it.SKU]; ok {
			merged[i].Quantity += it.Quantity
			continue
		}
		index[it.SKU] = len(merged)
		merged = append(merged, it)
	}
	return merged
}
