package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"payment-webhook-queue/internal/core/ports"
	"payment-webhook-queue/internal/core/ports/mocks"
	"payment-webhook-queue/pkg/apperror"
	"payment-webhook-queue/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func webhookRouter(auth ports.WebhookAuthenticator, handlerBody *string) *gin.Engine {
	router := gin.New()
	router.POST("/webhooks/checkout", WebhookAuth(auth, zerolog.Nop()), func(c *gin.Context) {
		b, _ := io.ReadAll(c.Request.Body)
		*handlerBody = string(b)
		c.JSON(200, gin.H{"ok": true})
	})
	return router
}

func TestWebhookAuth_PassesBodyThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	auth := mocks.NewMockWebhookAuthenticator(ctrl)
	body := `{"type":"payment_captured"}`

	auth.EXPECT().Authenticate("Bearer sk_1", "abc123", []byte(body)).Return(nil)

	var seen string
	req := httptest.NewRequest(http.MethodPost, "/webhooks/checkout", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer sk_1")
	req.Header.Set(HeaderSignature, "abc123")
	w := httptest.NewRecorder()
	webhookRouter(auth, &seen).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, body, seen)
}

func TestWebhookAuth_Rejects(t *testing.T) {
	ctrl := gomock.NewController(t)
	auth := mocks.NewMockWebhookAuthenticator(ctrl)

	auth.EXPECT().Authenticate("wrong", "", gomock.Any()).Return(apperror.ErrWebhookUnauthorized())

	var seen string
	req := httptest.NewRequest(http.MethodPost, "/webhooks/checkout", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "wrong")
	w := httptest.NewRecorder()
	webhookRouter(auth, &seen).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "SEC_001")
	assert.Empty(t, seen, "handler must not run")
}

func TestWebhookAuth_OversizeBody(t *testing.T) {
	ctrl := gomock.NewController(t)
	auth := mocks.NewMockWebhookAuthenticator(ctrl)

	router := gin.New()
	router.Use(RequestID(), MaxBodySize(8))
	var seen string
	router.POST("/webhooks/checkout", WebhookAuth(auth, zerolog.Nop()), func(c *gin.Context) {
		seen = "ran"
	})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/checkout", bytes.NewReader([]byte(strings.Repeat("x", 64))))
	req.ContentLength = -1
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, seen)

	var resp response.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "WHK_003", resp.ErrorCode)
	assert.NotEmpty(t, resp.RequestID)
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	var got string
	router.GET("/test", func(c *gin.Context) {
		got = c.GetString("request_id")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.NotEmpty(t, got)
	assert.Equal(t, got, w.Header().Get(HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-42", got)
}

func TestJWTAuth_MissingHeader(t *testing.T) {
	ctrl := gomock.NewController(t)
	tokenSvc := mocks.NewMockTokenService(ctrl)

	router := gin.New()
	router.GET("/test", JWTAuth(tokenSvc, zerolog.Nop()), func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	for _, header := range []string{"", "Bearer ", "Basic abc", "bearer tok"} {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
	}
}

func TestJWTAuth_InvalidToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	tokenSvc := mocks.NewMockTokenService(ctrl)
	tokenSvc.EXPECT().Validate("bad_token").Return(nil, assert.AnError)

	router := gin.New()
	router.GET("/test", JWTAuth(tokenSvc, zerolog.Nop()), func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer bad_token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "AUTH_003")
}

func TestJWTAuth_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	tokenSvc := mocks.NewMockTokenService(ctrl)
	tokenSvc.EXPECT().Validate("good_token").Return(&ports.TokenClaims{Subject: "admin"}, nil)

	var captured string
	router := gin.New()
	router.GET("/test", JWTAuth(tokenSvc, zerolog.Nop()), func(c *gin.Context) {
		captured = c.GetString(CtxAdmin)
		c.JSON(200, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer good_token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin", captured)
}

func TestRecovery_PanicRecovered(t *testing.T) {
	router := gin.New()
	router.Use(RequestID(), Recovery(zerolog.Nop()))
	router.GET("/panic", func(c *gin.Context) {
		panic("something went wrong")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp response.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "SYS_001", resp.ErrorCode)
	assert.Equal(t, w.Header().Get(HeaderRequestID), resp.RequestID)
	assert.NotEmpty(t, resp.RequestID)
}
