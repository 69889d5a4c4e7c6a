package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"payment-webhook-queue/internal/core/domain"
	"payment-webhook-queue/pkg/money"
)

var (
	// ErrMalformedPayload means the body is not a JSON object.
	ErrMalformedPayload = errors.New("payload is not a JSON object")
	// ErrMissingEventType means the body is JSON but declares no event type.
	ErrMissingEventType = errors.New("payload declares no event type")
	// ErrPartialPayload means the event type was read but some inner fields
	// were not. ParseEvent still returns the fields it could salvage.
	ErrPartialPayload = errors.New("payload fields could not be read")
)

// flexString accepts a JSON string or number. Processors send order ids
// and response codes as either.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type envelope struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	EventType   string          `json:"eventType"`
	EventTypeSn string          `json:"event_type"`
	WebhookType string          `json:"webhook_type"`
	Data        json.RawMessage `json:"data"`
	Message     json.RawMessage `json:"message"`
}

// nasData is the data object of a NAS event.
type nasData struct {
	ID              string     `json:"id"`
	ActionID        string     `json:"action_id"`
	PaymentID       string     `json:"payment_id"`
	OrderID         flexString `json:"order_id"`
	Amount          flexString `json:"amount"`
	Currency        string     `json:"currency"`
	Reference       flexString `json:"reference"`
	ResponseCode    flexString `json:"response_code"`
	ResponseSummary string     `json:"response_summary"`
	Status          string     `json:"status"`
	Metadata        struct {
		OrderID          flexString `json:"order_id"`
		PaymentSessionID string     `json:"payment_session_id"`
		CkoSessionID     string     `json:"cko_payment_session_id"`
	} `json:"metadata"`
	Risk struct {
		Flagged bool `json:"flagged"`
	} `json:"risk"`
	Source *struct {
		ID     string `json:"id"`
		Scheme string `json:"scheme"`
		Last4  string `json:"last4"`
	} `json:"source"`
}

// abcMessage is the message object of an ABC event.
type abcMessage struct {
	ID              string     `json:"id"`
	TrackID         flexString `json:"trackId"`
	ResponseCode    flexString `json:"responseCode"`
	ResponseMessage string     `json:"responseMessage"`
	Value           flexString `json:"value"`
	Currency        string     `json:"currency"`
	Status          string     `json:"status"`
}

// ParseEvent normalizes a webhook body into a domain.Event.
// The mode is decided by the body's shape, not by configuration, so a
// replay of an entry enqueued under another mode still parses.
//
// When the type is known but inner fields do not decode, ParseEvent returns
// both a partial event and an error wrapping ErrPartialPayload.
func ParseEvent(body []byte) (*domain.Event, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrMalformedPayload
	}
	if !utf8.Valid(trimmed) {
		return nil, fmt.Errorf("%w: invalid UTF-8", ErrMalformedPayload)
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	abcType := env.EventType
	if abcType == "" {
		abcType = env.EventTypeSn
	}

	switch {
	case abcType != "" && len(env.Message) > 0:
		return parseABC(abcType, env.Message)
	case env.Type != "":
		return parseNAS(env.ID, env.Type, env.Data)
	case env.WebhookType != "":
		return parseGeneric(env)
	case abcType != "":
		return parseABC(abcType, nil)
	}
	return nil, ErrMissingEventType
}

func parseNAS(eventID, webhookType string, raw json.RawMessage) (*domain.Event, error) {
	var d nasData
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if err := json.Unmarshal(raw, &d); err != nil {
			return salvage(domain.AccountModeNAS, eventID, webhookType, raw, fmt.Errorf("data: %v", err))
		}
	}

	ev := &domain.Event{
		Mode:            domain.AccountModeNAS,
		Type:            webhookType,
		Kind:            domain.KindForType(webhookType),
		EventID:         eventID,
		PaymentID:       d.ID,
		TransactionID:   d.ActionID,
		Currency:        d.Currency,
		ResponseCode:    string(d.ResponseCode),
		ResponseSummary: d.ResponseSummary,
		Flagged:         d.Risk.Flagged,
	}
	if d.PaymentID != "" {
		ev.PaymentID = d.PaymentID
	}
	if ev.TransactionID == "" {
		ev.TransactionID = d.ID
	}

	ev.OrderRef = string(d.Metadata.OrderID)
	if ev.OrderRef == "" {
		ev.OrderRef = string(d.OrderID)
	}
	if ev.OrderRef == "" {
		ev.OrderRef = string(d.Reference)
	}
	ev.SessionID = d.Metadata.PaymentSessionID
	if ev.SessionID == "" {
		ev.SessionID = d.Metadata.CkoSessionID
	}

	if ev.Kind == domain.EventKindDispute {
		ev.DisputeStatus = disputeStatus(webhookType, d.Status)
	}
	if d.Source != nil {
		ev.Source = &domain.PaymentSource{ID: d.Source.ID, Scheme: d.Source.Scheme, Last4: d.Source.Last4}
	}

	if d.Amount != "" {
		amount, err := strconv.ParseInt(string(d.Amount), 10, 64)
		if err != nil {
			return ev, fmt.Errorf("%w: amount %q is not an integer", ErrPartialPayload, d.Amount)
		}
		ev.Amount = amount
	}
	return ev, nil
}

func parseABC(webhookType string, raw json.RawMessage) (*domain.Event, error) {
	var m abcMessage
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if err := json.Unmarshal(raw, &m); err != nil {
			return salvage(domain.AccountModeABC, "", webhookType, raw, fmt.Errorf("message: %v", err))
		}
	}

	ev := &domain.Event{
		Mode:            domain.AccountModeABC,
		Type:            webhookType,
		Kind:            domain.KindForType(webhookType),
		PaymentID:       m.ID,
		TransactionID:   m.ID,
		OrderRef:        string(m.TrackID),
		Currency:        m.Currency,
		ResponseCode:    string(m.ResponseCode),
		ResponseSummary: m.ResponseMessage,
	}

	if webhookType == "charge.succeeded" && ev.ResponseCode != "" {
		switch ev.ResponseCode {
		case domain.ABCResponseApproved:
		case domain.ABCResponseApprovedWithRisk:
			ev.Flagged = true
		default:
			ev.Kind = domain.EventKindAuthorizationFailure
		}
	}
	if ev.Kind == domain.EventKindDispute {
		ev.EventID = m.ID + ":" + webhookType
		ev.DisputeStatus = disputeStatus(webhookType, m.Status)
	}

	if m.Value != "" {
		amount, err := money.ToMinor(string(m.Value), m.Currency)
		if err != nil {
			return ev, fmt.Errorf("%w: value: %v", ErrPartialPayload, err)
		}
		ev.Amount = amount
	}
	return ev, nil
}

// parseGeneric reads {webhook_type, data|message}. The inner object uses
// NAS field names unless it carries ABC-only keys.
func parseGeneric(env envelope) (*domain.Event, error) {
	raw := env.Data
	if len(raw) == 0 {
		raw = env.Message
	}

	var keys map[string]json.RawMessage
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &keys); err != nil {
			return salvage(domain.AccountModeNAS, env.ID, env.WebhookType, raw, fmt.Errorf("data: %v", err))
		}
	}
	for _, k := range []string{"trackId", "responseCode", "value"} {
		if _, ok := keys[k]; ok {
			ev, err := parseABC(env.WebhookType, raw)
			if ev != nil && env.ID != "" && ev.Kind != domain.EventKindDispute {
				ev.EventID = env.ID
			}
			return ev, err
		}
	}
	return parseNAS(env.ID, env.WebhookType, raw)
}

// salvage builds a minimal event from an inner object that did not decode as
// a whole, keeping whichever identifiers are still readable.
func salvage(mode domain.AccountMode, eventID, webhookType string, raw json.RawMessage, cause error) (*domain.Event, error) {
	ev := &domain.Event{
		Mode:    mode,
		Type:    webhookType,
		Kind:    domain.KindForType(webhookType),
		EventID: eventID,
	}

	var fields map[string]json.RawMessage
	if json.Unmarshal(raw, &fields) == nil {
		ev.PaymentID = readableField(fields, "payment_id", "id")
		ev.OrderRef = readableField(fields, "order_id", "trackId", "reference")
	}
	return ev, fmt.Errorf("%w: %v", ErrPartialPayload, cause)
}

// readableField returns the first of keys holding a string or number.
func readableField(fields map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		var v flexString
		if raw, ok := fields[k]; ok && json.Unmarshal(raw, &v) == nil && v != "" {
			return string(v)
		}
	}
	return ""
}

// disputeStatus prefers the payload's status, else the type suffix
// ("dispute_evidence_required" -> "evidence_required").
func disputeStatus(webhookType, status string) string {
	if status != "" {
		return status
	}
	if s, ok := strings.CutPrefix(webhookType, "dispute_"); ok {
		return s
	}
	if s, ok := strings.CutPrefix(webhookType, "charge."); ok {
		return s
	}
	return webhookType
}
