package handler

import (
	"io"

	"payment-webhook-queue/internal/adapter/http/dto"
	"payment-webhook-queue/internal/adapter/http/middleware"
	"payment-webhook-queue/internal/core/ports"
	"payment-webhook-queue/pkg/apperror"
	"payment-webhook-queue/pkg/response"

	"github.com/gin-gonic/gin"
)

// WebhookHandler accepts processor notifications.
type WebhookHandler struct {
	receiver ports.WebhookReceiver
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(receiver ports.WebhookReceiver) *WebhookHandler {
	return &WebhookHandler{receiver: receiver}
}

// Receive handles POST /webhooks/checkout. WebhookAuth has already verified
// the caller and stashed the raw body.
func (h *WebhookHandler) Receive(c *gin.Context) {
	var body []byte
	if raw, ok := c.Get(middleware.CtxWebhookBody); ok {
		body, _ = raw.([]byte)
	} else {
		b, err := io.ReadAll(c.Request.Body)
		if err != nil {
			response.Error(c, apperror.Validation("cannot read request body"))
			return
		}
		body = b
	}

	entry, err := h.receiver.Receive(c.Request.Context(), body)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.WebhookAcceptedResponse{
		EntryID:     entry.ID,
		WebhookType: entry.WebhookType,
		Accepted:    true,
	})
}
