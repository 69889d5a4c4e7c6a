package service

import (
	"testing"

	"payment-webhook-queue/internal/core/domain"
	"payment-webhook-queue/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertUnauthorized(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "SEC_001", appErr.Code)
	assert.Equal(t, 401, appErr.HTTPStatus)
}

func TestWebhookAuthenticator_NAS(t *testing.T) {
	auth := NewWebhookAuthenticator(domain.AccountModeNAS, "sk_secret", "", NewHMACSignatureService())
	body := []byte(`{"type":"payment_captured"}`)

	assert.NoError(t, auth.Authenticate("Bearer sk_secret", "", body))
	assertUnauthorized(t, auth.Authenticate("sk_secret", "", body))
	assertUnauthorized(t, auth.Authenticate("bearer sk_secret", "", body))
	assertUnauthorized(t, auth.Authenticate("Bearer sk_secret ", "", body))
	assertUnauthorized(t, auth.Authenticate("", "", body))
}

func TestWebhookAuthenticator_ABC(t *testing.T) {
	auth := NewWebhookAuthenticator(domain.AccountModeABC, "sk_secret", "", NewHMACSignatureService())
	body := []byte(`{"eventType":"charge.captured"}`)

	assert.NoError(t, auth.Authenticate("sk_secret", "", body))
	assertUnauthorized(t, auth.Authenticate("Bearer sk_secret", "", body))
	assertUnauthorized(t, auth.Authenticate("sk_other", "", body))
}

func TestWebhookAuthenticator_Signature(t *testing.T) {
	sigSvc := NewHMACSignatureService()
	auth := NewWebhookAuthenticator(domain.AccountModeNAS, "sk_secret", "whsec", sigSvc)
	body := []byte(`{"type":"payment_captured"}`)
	good := sigSvc.Sign("whsec", string(body))

	assert.NoError(t, auth.Authenticate("Bearer sk_secret", good, body))
	assertUnauthorized(t, auth.Authenticate("Bearer sk_secret", "", body))
	assertUnauthorized(t, auth.Authenticate("Bearer sk_secret", good, []byte(`{"type":"payment_refunded"}`)))
}

func TestWebhookAuthenticator_NoSecretConfigured(t *testing.T) {
	auth := NewWebhookAuthenticator(domain.AccountModeABC, "", "", NewHMACSignatureService())
	assertUnauthorized(t, auth.Authenticate("", "", []byte(`{}`)))
}
