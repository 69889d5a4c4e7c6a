package handler

import (
	"payment-webhook-queue/internal/adapter/http/dto"
	"payment-webhook-queue/internal/core/domain"
	"payment-webhook-queue/internal/core/ports"
	"payment-webhook-queue/pkg/apperror"
	"payment-webhook-queue/pkg/response"

	"github.com/gin-gonic/gin"
)

// OrderHandler handles order intake.
type OrderHandler struct {
	orderSvc ports.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderSvc ports.OrderService) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc}
}

// Register handles POST /api/v1/orders.
func (h *OrderHandler) Register(c *gin.Context) {
	var req dto.RegisterOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, domain.OrderItem{SKU: it.SKU, Quantity: it.Quantity})
	}

	order, flushed, err := h.orderSvc.RegisterOrder(c.Request.Context(), ports.RegisterOrderRequest{
		OrderID:          req.OrderID,
		TotalMinor:       req.TotalMinor,
		Currency:         req.Currency,
		PaymentID:        req.PaymentID,
		PaymentSessionID: req.PaymentSessionID,
		Items:            items,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.RegisterOrderResponse{Order: order, Flushed: flushed})
}
