package domain

// AccountMode identifies the processor account style an event was framed in.
type AccountMode string

const (
	AccountModeNAS AccountMode = "nas"
	AccountModeABC AccountMode = "abc"
)

// EventKind is the handler an event is dispatched to.
type EventKind string

const (
	EventKindAuthorizationSuccess EventKind = "authorization_success"
	EventKindAuthorizationFailure EventKind = "authorization_failure"
	EventKindCapture              EventKind = "capture"
	EventKindRefund               EventKind = "refund"
	EventKindVoid                 EventKind = "void"
	EventKindDispute              EventKind = "dispute"
	EventKindSourceUpdate         EventKind = "source_update"
	EventKindNote                 EventKind = "note"
	EventKindUnknown              EventKind = "unknown"
)

// ABC response codes treated as an approved charge.
const (
	ABCResponseApproved         = "10000"
	ABCResponseApprovedWithRisk = "10100"
)

var nasKinds = map[string]EventKind{
	"payment_approved":              EventKindAuthorizationSuccess,
	"card_verified":                 EventKindAuthorizationSuccess,
	"payment_declined":              EventKindAuthorizationFailure,
	"payment_authentication_failed": EventKindAuthorizationFailure,
	"payment_expired":               EventKindAuthorizationFailure,
	"payment_captured":              EventKindCapture,
	"payment_refunded":              EventKindRefund,
	"payment_voided":                EventKindVoid,
	"payment_canceled":              EventKindVoid,
	"payment_cancelled":             EventKindVoid,
	"dispute_received":              EventKindDispute,
	"dispute_evidence_required":     EventKindDispute,
	"dispute_evidence_submitted":    EventKindDispute,
	"dispute_accepted":              EventKindDispute,
	"dispute_won":                   EventKindDispute,
	"dispute_lost":                  EventKindDispute,
	"dispute_resolved":              EventKindDispute,
	"dispute_canceled":              EventKindDispute,
	"dispute_arbitration_won":       EventKindDispute,
	"dispute_arbitration_lost":      EventKindDispute,
	"source_updated":                EventKindSourceUpdate,
	"payment_instrument_updated":    EventKindSourceUpdate,
	"payment_capture_declined":      EventKindNote,
	"payment_refund_declined":       EventKindNote,
	"payment_void_declined":         EventKindNote,
	"payment_pending":               EventKindNote,
}

var abcKinds = map[string]EventKind{
	"charge.succeeded":  EventKindAuthorizationSuccess,
	"charge.failed":     EventKindAuthorizationFailure,
	"charge.captured":   EventKindCapture,
	"charge.refunded":   EventKindRefund,
	"charge.voided":     EventKindVoid,
	"invoice.cancelled": EventKindVoid,
	"charge.chargeback": EventKindDispute,
}

// KindForType maps a declared webhook type to its handler kind. Types are
// looked up in both tables so a generic envelope still resolves.
func KindForType(webhookType string) EventKind {
	if k, ok := nasKinds[webhookType]; ok {
		return k
	}
	if k, ok := abcKinds[webhookType]; ok {
		return k
	}
	return EventKindUnknown
}

// IsDisputeOpening reports whether a dispute event opens (rather than settles) a dispute.
func IsDisputeOpening(webhookType string) bool {
	switch webhookType {
	case "dispute_received", "dispute_evidence_required", "charge.chargeback":
		return true
	}
	return false
}

// PaymentSource carries card details from a source update event.
type PaymentSource struct {
	ID     string `json:"id,omitempty"`
	Scheme string `json:"scheme,omitempty"`
	Last4  string `json:"last4,omitempty"`
}

// Event is the normalized form of a webhook body, independent of account mode.
type Event struct {
	Mode            AccountMode
	Type            string
	Kind            EventKind
	EventID         string
	PaymentID       string
	TransactionID   string
	OrderRef        string
	SessionID       string
	Amount          int64 // minor units
	Currency        string
	ResponseCode    string
	ResponseSummary string
	Flagged         bool
	DisputeStatus   string
	Source          *PaymentSource
}

// IdempotencyKey returns the action identifier used to detect a replay, or
// an empty string when the event carries none.
func (e *Event) IdempotencyKey() string {
	switch e.Kind {
	case EventKindDispute, EventKindSourceUpdate, EventKindNote:
		if e.EventID != "" {
			return e.EventID
		}
		if e.TransactionID != "" {
			return e.TransactionID + ":" + e.Type
		}
		return ""
	}
	return e.TransactionID
}
