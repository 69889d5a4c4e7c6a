package dto

import (
	"payment-webhook-queue/internal/core/domain"
	"payment-webhook-queue/internal/core/ports"
)

// LoginRequest is the request body for admin login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// WebhookAcceptedResponse acknowledges a stored webhook.
type WebhookAcceptedResponse struct {
	EntryID     int64  `json:"entry_id"`
	WebhookType string `json:"webhook_type"`
	Accepted    bool   `json:"accepted"`
}

// CleanupRequest is the request body for an admin cleanup run.
// Days defaults to the configured retention when omitted.
type CleanupRequest struct {
	Bucket string `json:"bucket" binding:"required,oneof=processed unprocessed"`
	Days   *int   `json:"days,omitempty"`
}

// CleanupResponse reports what a cleanup run did.
type CleanupResponse struct {
	Bucket   string `json:"bucket"`
	Policy   string `json:"policy,omitempty"`
	Days     int    `json:"days"`
	Affected int64  `json:"affected"`
}

// OrderItemRequest is one line item of an order.
type OrderItemRequest struct {
	SKU      string `json:"sku" binding:"required,max=64,safe_id"`
	Quantity int    `json:"quantity" binding:"required,gt=0"`
}

// RegisterOrderRequest is the request body for order intake.
type RegisterOrderRequest struct {
	OrderID          string             `json:"order_id" binding:"required,max=64,safe_id"`
	TotalMinor       int64              `json:"total_minor" binding:"gte=0"`
	Currency         string             `json:"currency" binding:"required,len=3"`
	PaymentID        string             `json:"payment_id" binding:"omitempty,max=128,safe_id"`
	PaymentSessionID string             `json:"payment_session_id" binding:"omitempty,max=128,safe_id"`
	Items            []OrderItemRequest `json:"items" binding:"omitempty,unique=SKU,dive"`
}

// RegisterOrderResponse is the response body for order intake. Flushed
// reports the webhooks that were waiting for the order.
type RegisterOrderResponse struct {
	Order   *domain.Order     `json:"order"`
	Flushed *ports.PassResult `json:"flushed"`
}
