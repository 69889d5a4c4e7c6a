package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRecordWebhookReceived(t *testing.T) {
	before := testutil.ToFloat64(webhooksReceivedTotal.WithLabelValues("nas", "payment_captured"))
	RecordWebhookReceived("nas", "payment_captured")
	RecordWebhookReceived("nas", "payment_captured")
	after := testutil.ToFloat64(webhooksReceivedTotal.WithLabelValues("nas", "payment_captured"))

	assert.Equal(t, before+2, after)
}

func TestRecordDispatchOutcome(t *testing.T) {
	before := testutil.ToFloat64(dispatchOutcomesTotal.WithLabelValues("refund", "deferred"))
	RecordDispatchOutcome("refund", "deferred")
	assert.Equal(t, before+1, testutil.ToFloat64(dispatchOutcomesTotal.WithLabelValues("refund", "deferred")))
}

func TestRecordCleanup_IgnoresZero(t *testing.T) {
	before := testutil.ToFloat64(cleanupAffectedTotal.WithLabelValues("processed", "deleted"))
	RecordCleanup("processed", "deleted", 0)
	RecordCleanup("processed", "deleted", 4)
	assert.Equal(t, before+4, testutil.ToFloat64(cleanupAffectedTotal.WithLabelValues("processed", "deleted")))
}

func TestGinMiddleware_RecordsMatchedRoute(t *testing.T) {
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/items/:id", "204"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/7", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/items/:id", "204")))
}

func TestHandler_ServesRegistry(t *testing.T) {
	ObserveDispatchPass("all", 20*time.Millisecond)

	r := gin.New()
	r.GET("/metrics", Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "webhook_dispatch_pass_duration_seconds")
}
