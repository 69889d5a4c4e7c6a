package service

import (
	"crypto/subtle"

	"payment-webhook-queue/internal/core/domain"
	"payment-webhook-queue/internal/core/ports"
	"payment-webhook-queue/pkg/apperror"
)

// WebhookAuthenticator implements ports.WebhookAuthenticator.
//
// ABC accounts send the secret key verbatim in Authorization; NAS accounts
// send it as a Bearer token. When a signing key is configured the body's
// HMAC must also match the Cko-Signature header.
type WebhookAuthenticator struct {
	mode       domain.AccountMode
	secretKey  string
	signingKey string
	sigSvc     ports.SignatureService
}

// NewWebhookAuthenticator creates a new WebhookAuthenticator.
func NewWebhookAuthenticator(mode domain.AccountMode, secretKey, signingKey string, sigSvc ports.SignatureService) *WebhookAuthenticator {
	return &WebhookAuthenticator{
		mode:       mode,
		secretKey:  secretKey,
		signingKey: signingKey,
		sigSvc:     sigSvc,
	}
}

// Authenticate returns SEC_001 unless every configured credential matches exactly.
func (a *WebhookAuthenticator) Authenticate(authorization string, signature string, body []byte) error {
	if a.secretKey == "" || authorization == "" {
		return apperror.ErrWebhookUnauthorized()
	}

	expected := a.secretKey
	if a.mode == domain.AccountModeNAS {
		expected = "Bearer " + a.secretKey
	}
	if subtle.ConstantTimeCompare([]byte(authorization), []byte(expected)) != 1 {
		return apperror.ErrWebhookUnauthorized()
	}

	if a.signingKey != "" {
		if signature == "" || !a.sigSvc.Verify(a.signingKey, string(body), signature) {
			return apperror.ErrWebhookUnauthorized()
		}
	}
	return nil
}
