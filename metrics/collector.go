// Package metrics exposes the service's Prometheus instrumentation.
// One Collector owns a private registry and satisfies every recorder
// seam in the module (guard decisions, transport outcomes, webhook
// deliveries, verification cache, KV operations), so wiring metrics in
// means passing the same value everywhere. All methods are nil-receiver
// safe; a nil Collector records nothing.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oriys/novacore/guard"
	"github.com/oriys/novacore/kv"
	"github.com/oriys/novacore/transport"
	"github.com/oriys/novacore/verify"
	"github.com/oriys/novacore/webhook"
)

// Collector accumulates service metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	guardDecisions    *prometheus.CounterVec
	transportRequests *prometheus.CounterVec
	transportBytes    prometheus.Histogram
	webhookDeliveries *prometheus.CounterVec
	verifyCache       *prometheus.CounterVec
	kvOps             *prometheus.CounterVec
	reminderOutcomes  *prometheus.CounterVec
}

var (
	_ guard.DecisionRecorder = (*Collector)(nil)
	_ transport.Recorder     = (*Collector)(nil)
	_ webhook.Recorder       = (*Collector)(nil)
	_ verify.CacheRecorder   = (*Collector)(nil)
	_ kv.OpRecorder          = (*Collector)(nil)
)

// NewCollector builds a Collector with its metrics registered.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "novacore_guard_decisions_total",
			Help: "URL guard decisions by outcome and deny reason.",
		}, []string{"allowed", "reason"}),
		transportRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "novacore_transport_requests_total",
			Help: "Outbound requests by outcome.",
		}, []string{"outcome"}),
		transportBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "novacore_transport_response_bytes",
			Help:    "Response sizes of completed outbound requests.",
			Buckets: prometheus.ExponentialBuckets(256, 4, 10),
		}),
		webhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "novacore_webhook_deliveries_total",
			Help: "Webhook delivery attempts by outcome.",
		}, []string{"outcome"}),
		verifyCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "novacore_verify_cache_total",
			Help: "Verification cache lookups by result.",
		}, []string{"result"}),
		kvOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "novacore_kv_operations_total",
			Help: "KV store operations by name and status.",
		}, []string{"op", "status"}),
		reminderOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "novacore_reminder_outcomes_total",
			Help: "Reminder batch outcomes.",
		}, []string{"outcome"}),
	}
	c.registry.MustRegister(
		c.guardDecisions,
		c.transportRequests,
		c.transportBytes,
		c.webhookDeliveries,
		c.verifyCache,
		c.kvOps,
		c.reminderOutcomes,
	)
	return c
}

// Registry exposes the underlying registry for extra collectors.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the scrape endpoint.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// GuardDecision implements guard.DecisionRecorder. Allowed decisions
// carry no reason label so the cardinality stays one series.
func (c *Collector) GuardDecision(allowed bool, reason string) {
	if c == nil {
		return
	}
	if allowed {
		reason = ""
	}
	c.guardDecisions.WithLabelValues(strconv.FormatBool(allowed), reason).Inc()
}

// TransportRequest implements transport.Recorder.
func (c *Collector) TransportRequest(outcome string, bytes int64) {
	if c == nil {
		return
	}
	c.transportRequests.WithLabelValues(outcome).Inc()
	if bytes >= 0 {
		c.transportBytes.Observe(float64(bytes))
	}
}

// WebhookDelivery implements webhook.Recorder.
func (c *Collector) WebhookDelivery(outcome string) {
	if c == nil {
		return
	}
	c.webhookDeliveries.WithLabelValues(outcome).Inc()
}

// VerifyCache implements verify.CacheRecorder.
func (c *Collector) VerifyCache(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.verifyCache.WithLabelValues(result).Inc()
}

// KVOp implements kv.OpRecorder.
func (c *Collector) KVOp(op string, err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.kvOps.WithLabelValues(op, status).Inc()
}

// ReminderOutcome counts reminder batch outcomes (sent, failed,
// skipped, deferred).
func (c *Collector) ReminderOutcome(outcome string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.reminderOutcomes.WithLabelValues(outcome).Add(float64(n))
}
