package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// OrderStatus is a shop-side order status. Values are operator-configured,
// so only the intake status is fixed here.
type OrderStatus string

const OrderStatusPending OrderStatus = "pending"

// ErrOrderExists is returned when an order id is already registered.
var ErrOrderExists = errors.New("order already exists")

// Order is the local order record webhooks are reconciled against.
type Order struct {
	ID               string      `json:"id"`
	Status           OrderStatus `json:"status"`
	TotalMinor       int64       `json:"total_minor"`
	Currency         string      `json:"currency"`
	PaymentID        string      `json:"payment_id"`
	PaymentSessionID string      `json:"payment_session_id,omitempty"`
	TransactionID    *string     `json:"transaction_id,omitempty"`
	LastActionKind   *EventKind  `json:"last_action_kind,omitempty"`
	Authorized       bool        `json:"authorized"`
	Captured         bool        `json:"captured"`
	Flagged          bool        `json:"flagged"`
	CapturedMinor    int64       `json:"captured_minor"`
	RefundedMinor    int64       `json:"refunded_minor"`
	StockReduced     bool        `json:"stock_reduced"`
	DisputeStatus    *string     `json:"dispute_status,omitempty"`
	SourceID         *string     `json:"source_id,omitempty"`
	SourceScheme     *string     `json:"source_scheme,omitempty"`
	SourceLast4      *string     `json:"source_last4,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// RecordAction stores the transaction id applied for a lifecycle stage.
func (o *Order) RecordAction(kind EventKind, transactionID string) {
	if transactionID == "" {
		return
	}
	k := kind
	o.TransactionID = &transactionID
	o.LastActionKind = &k
}

// HasRecordedAction reports whether transactionID is the last action applied for kind.
func (o *Order) HasRecordedAction(kind EventKind, transactionID string) bool {
	if transactionID == "" || o.TransactionID == nil || o.LastActionKind == nil {
		return false
	}
	return *o.TransactionID == transactionID && *o.LastActionKind == kind
}

// RefundableMinor is the captured amount not yet refunded.
func (o *Order) RefundableMinor() int64 {
	r := o.CapturedMinor - o.RefundedMinor
	if r < 0 {
		return 0
	}
	return r
}

// OrderItem is a line item whose stock is reduced once on capture.
type OrderItem struct {
	OrderID  string `json:"order_id"`
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// OrderNote is a human-readable audit line attached to an order.
type OrderNote struct {
	ID        int64     `json:"id"`
	OrderID   string    `json:"order_id"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

// OrderAction is a ledger row recording that an action id was applied to an
// order for a lifecycle stage.
type OrderAction struct {
	OrderID   string    `json:"order_id"`
	Kind      EventKind `json:"kind"`
	ActionID  string    `json:"action_id"`
	EntryID   int64     `json:"entry_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Refund is one applied refund action.
type Refund struct {
	ID        uuid.UUID `json:"id"`
	OrderID   string    `json:"order_id"`
	ActionID  string    `json:"action_id"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// PaymentMapping links processor identifiers to a local order.
type PaymentMapping struct {
	PaymentID        string    `json:"payment_id"`
	PaymentSessionID string    `json:"payment_session_id,omitempty"`
	OrderID          string    `json:"order_id"`
	CreatedAt        time.Time `json:"created_at"`
}
