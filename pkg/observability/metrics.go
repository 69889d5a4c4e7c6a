package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Intake
	webhooksReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_received_total",
		Help: "Webhooks accepted and enqueued",
	}, []string{
		"mode",         // nas, abc
		"webhook_type", // declared type as received
	})

	webhooksRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_rejected_total",
		Help: "Webhooks rejected before enqueue",
	}, []string{
		"reason", // unauthorized, malformed, missing_type, storage
	})

	// Dispatch
	dispatchOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_dispatch_outcomes_total",
		Help: "Per-entry dispatch outcomes",
	}, []string{
		"kind",    // capture, refund, ...
		"outcome", // applied, duplicate, unknown_type, unresolved, failed, deferred
	})

	dispatchEscalationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_dispatch_escalations_total",
		Help: "Transient failures on entries past the escalation threshold",
	})

	dispatchPassDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_dispatch_pass_duration_seconds",
		Help:    "Duration of a dispatch pass",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{
		"scope", // all, order
	})

	// Cleanup
	cleanupAffectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_cleanup_affected_total",
		Help: "Entries removed or dead-lettered by cleanup",
	}, []string{
		"bucket", // processed, unprocessed
		"action", // deleted, dead_lettered
	})

	// HTTP
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// RecordWebhookReceived counts an enqueued webhook.
func RecordWebhookReceived(mode, webhookType string) {
	webhooksReceivedTotal.WithLabelValues(mode, webhookType).Inc()
}

// RecordWebhookRejected counts a webhook refused at the receiver.
func RecordWebhookRejected(reason string) {
	webhooksRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordDispatchOutcome counts the outcome of dispatching one entry.
func RecordDispatchOutcome(kind, outcome string) {
	dispatchOutcomesTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordDispatchEscalation counts a failure at or beyond the escalation threshold.
func RecordDispatchEscalation() {
	dispatchEscalationsTotal.Inc()
}

// ObserveDispatchPass records how long a pass took.
func ObserveDispatchPass(scope string, d time.Duration) {
	dispatchPassDuration.WithLabelValues(scope).Observe(d.Seconds())
}

// RecordCleanup counts entries affected by a cleanup run.
func RecordCleanup(bucket, action string, n int64) {
	if n <= 0 {
		return
	}
	cleanupAffectedTotal.WithLabelValues(bucket, action).Add(float64(n))
}

// GinMiddleware records request count and latency per matched route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the default registry for scraping.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
