package service

import (
	"testing"

	"payment-webhook-queue/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent_NAS(t *testing.T) {
	body := `{
		"id": "evt_1",
		"type": "payment_captured",
		"data": {
			"id": "pay_abc",
			"action_id": "act_cap_1",
			"amount": 2500,
			"currency": "EUR",
			"reference": "ORD-REF",
			"metadata": {"order_id": 1001, "payment_session_id": "ps_1"},
			"response_summary": "Approved",
			"risk": {"flagged": true}
		}
	}`

	ev, err := ParseEvent([]byte(body))
	require.NoError(t, err)

	assert.Equal(t, domain.AccountModeNAS, ev.Mode)
	assert.Equal(t, "payment_captured", ev.Type)
	assert.Equal(t, domain.EventKindCapture, ev.Kind)
	assert.Equal(t, "evt_1", ev.EventID)
	assert.Equal(t, "pay_abc", ev.PaymentID)
	assert.Equal(t, "act_cap_1", ev.TransactionID)
	assert.Equal(t, "1001", ev.OrderRef, "metadata.order_id wins over reference")
	assert.Equal(t, "ps_1", ev.SessionID)
	assert.Equal(t, int64(2500), ev.Amount)
	assert.True(t, ev.Flagged)
	assert.Equal(t, "act_cap_1", ev.IdempotencyKey())
}

func TestParseEvent_NASFallbacks(t *testing.T) {
	body := `{"type":"payment_approved","data":{"id":"pay_abc","reference":"1002"}}`

	ev, err := ParseEvent([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "pay_abc", ev.TransactionID, "data.id stands in for a missing action_id")
	assert.Equal(t, "1002", ev.OrderRef)
	assert.Equal(t, domain.EventKindAuthorizationSuccess, ev.Kind)
}

func TestParseEvent_DataOrderID(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"webhook_type":"payment_captured","data":{"id":"pay_x","action_id":"tx_1","order_id":"42","amount":1000,"reference":"REF-9"}}`))
	require.NoError(t, err)
	assert.Equal(t, "42", ev.OrderRef, "data.order_id wins over reference")

	ev, err = ParseEvent([]byte(`{"type":"payment_captured","data":{"id":"pay_x","order_id":43,"metadata":{"order_id":"44"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "44", ev.OrderRef, "metadata.order_id wins over data.order_id")
}

func TestParseEvent_NASDisputeAndSource(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"id":"evt_d","type":"dispute_evidence_required","data":{"id":"dsp_1","payment_id":"pay_abc"}}`))
	require.NoError(t, err)
	assert.Equal(t, domain.EventKindDispute, ev.Kind)
	assert.Equal(t, "evidence_required", ev.DisputeStatus)
	assert.Equal(t, "pay_abc", ev.PaymentID)
	assert.Equal(t, "evt_d", ev.IdempotencyKey())

	ev, err = ParseEvent([]byte(`{"id":"evt_s","type":"source_updated","data":{"id":"pay_abc","source":{"id":"src_9","scheme":"visa","last4":"4242"}}}`))
	require.NoError(t, err)
	assert.Equal(t, domain.EventKindSourceUpdate, ev.Kind)
	require.NotNil(t, ev.Source)
	assert.Equal(t, "4242", ev.Source.Last4)
}

func TestParseEvent_ABC(t *testing.T) {
	body := `{"eventType":"charge.captured","message":{"id":"charge_1","trackId":"1001","responseCode":"10000","value":"25.00","currency":"EUR"}}`

	ev, err := ParseEvent([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, domain.AccountModeABC, ev.Mode)
	assert.Equal(t, domain.EventKindCapture, ev.Kind)
	assert.Equal(t, "charge_1", ev.TransactionID)
	assert.Equal(t, "1001", ev.OrderRef)
	assert.Equal(t, int64(2500), ev.Amount)
}

func TestParseEvent_ABCResponseCodes(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		kind    domain.EventKind
		flagged bool
	}{
		{"approved", "10000", domain.EventKindAuthorizationSuccess, false},
		{"approved with risk", "10100", domain.EventKindAuthorizationSuccess, true},
		{"declined", "20005", domain.EventKindAuthorizationFailure, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"event_type":"charge.succeeded","message":{"id":"charge_1","responseCode":` + tt.code + `,"value":10,"currency":"JPY"}}`
			ev, err := ParseEvent([]byte(body))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, ev.Kind)
			assert.Equal(t, tt.flagged, ev.Flagged)
			assert.Equal(t, int64(10), ev.Amount)
		})
	}
}

func TestParseEvent_Generic(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"webhook_type":"payment_refunded","data":{"id":"pay_1","action_id":"act_r","amount":500}}`))
	require.NoError(t, err)
	assert.Equal(t, domain.EventKindRefund, ev.Kind)
	assert.Equal(t, "act_r", ev.TransactionID)
	assert.Equal(t, int64(500), ev.Amount)

	ev, err = ParseEvent([]byte(`{"webhook_type":"charge.refunded","message":{"id":"charge_2","trackId":"77","value":"1.5","currency":"KWD"}}`))
	require.NoError(t, err)
	assert.Equal(t, domain.AccountModeABC, ev.Mode)
	assert.Equal(t, "77", ev.OrderRef)
	assert.Equal(t, int64(1500), ev.Amount)
}

func TestParseEvent_UnknownTypeStillParses(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"payment_teleported","data":{"id":"pay_1"}}`))
	require.NoError(t, err)
	assert.Equal(t, domain.EventKindUnknown, ev.Kind)
}

func TestParseEvent_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"empty", ``, ErrMalformedPayload},
		{"not json", `hello`, ErrMalformedPayload},
		{"json array", `[1,2]`, ErrMalformedPayload},
		{"truncated", `{"type":"payment_approved"`, ErrMalformedPayload},
		{"invalid utf-8", "{\"type\":\"payment_captured\",\"data\":{\"id\":\"\xfe\"}}", ErrMalformedPayload},
		{"no type", `{"data":{"id":"pay_1"}}`, ErrMissingEventType},
		{"empty object", `{}`, ErrMissingEventType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEvent([]byte(tt.body))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseEvent_PartialPayloads(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantType    string
		wantPayment string
		wantOrder   string
	}{
		{"non-integer nas amount", `{"type":"payment_captured","data":{"id":"pay_1","action_id":"act_1","amount":"12.50"}}`, "payment_captured", "pay_1", ""},
		{"metadata as string", `{"type":"payment_captured","data":{"id":"pay_1","metadata":"oops"}}`, "payment_captured", "pay_1", ""},
		{"data not an object", `{"webhook_type":"payment_refunded","data":"pay_1"}`, "payment_refunded", "", ""},
		{"bad abc value", `{"eventType":"charge.captured","message":{"id":"c_1","trackId":"77","value":"abc"}}`, "charge.captured", "c_1", "77"},
		{"abc field type mismatch", `{"eventType":"charge.captured","message":{"id":"c_1","trackId":"77","currency":5}}`, "charge.captured", "c_1", "77"},
		{"generic nas with order id", `{"webhook_type":"payment_captured","data":{"payment_id":"pay_2","order_id":"42","source":"card"}}`, "payment_captured", "pay_2", "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseEvent([]byte(tt.body))
			require.ErrorIs(t, err, ErrPartialPayload)
			assert.NotErrorIs(t, err, ErrMalformedPayload)
			require.NotNil(t, ev)
			assert.Equal(t, tt.wantType, ev.Type)
			assert.Equal(t, tt.wantPayment, ev.PaymentID)
			assert.Equal(t, tt.wantOrder, ev.OrderRef)
		})
	}
}
