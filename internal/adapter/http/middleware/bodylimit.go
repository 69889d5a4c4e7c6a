package middleware

import (
	"net/http"

	"payment-webhook-queue/pkg/apperror"
	"payment-webhook-queue/pkg/response"

	"github.com/gin-gonic/gin"
)

// DefaultMaxBody is the request body ceiling for every route.
const DefaultMaxBody = 1 << 20

// MaxBodySize rejects a declared oversize body with 413 up front and caps
// the reader for chunked bodies, whose overrun surfaces as a read error.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			response.Error(c, apperror.ErrBodyTooLarge())
			c.Abort()
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
