package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors for the registry API and dispatch flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	deliveriesTotal       *prometheus.CounterVec
	deliveryDuration      *prometheus.HistogramVec
	deliveriesInflight    prometheus.Gauge
	dispatchFanoutSize    prometheus.Histogram
	autoDisabledTotal     prometheus.Counter
	subscriptionMutations *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webhook_dispatch",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "webhook_dispatch",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		deliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webhook_dispatch",
				Name:      "deliveries_total",
				Help:      "Total number of delivery attempts grouped by event type and outcome.",
			},
			[]string{"event", "outcome"},
		),
		deliveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "webhook_dispatch",
				Name:      "delivery_duration_seconds",
				Help:      "Outbound delivery duration in seconds grouped by event type.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"event"},
		),
		deliveriesInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "webhook_dispatch",
				Name:      "deliveries_inflight",
				Help:      "Current number of in-flight delivery attempts.",
			},
		),
		dispatchFanoutSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "webhook_dispatch",
				Name:      "dispatch_fanout_size",
				Help:      "Number of subscriptions matched per dispatched event.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		autoDisabledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "webhook_dispatch",
				Name:      "subscriptions_auto_disabled_total",
				Help:      "Total number of subscriptions deactivated by the failure policy.",
			},
		),
		subscriptionMutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webhook_dispatch",
				Name:      "subscription_mutations_total",
				Help:      "Total number of subscription store mutations by operation.",
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.deliveriesTotal,
		m.deliveryDuration,
		m.deliveriesInflight,
		m.dispatchFanoutSize,
		m.autoDisabledTotal,
		m.subscriptionMutations,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncDelivery(event string, success bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.deliveriesTotal.WithLabelValues(normalizeEvent(event), outcome).Inc()
}

func (m *Metrics) ObserveDeliveryDuration(event string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.deliveryDuration.WithLabelValues(normalizeEvent(event)).Observe(seconds)
}

func (m *Metrics) IncDeliveriesInflight() {
	if m == nil {
		return
	}
	m.deliveriesInflight.Inc()
}

func (m *Metrics) DecDeliveriesInflight() {
	if m == nil {
		return
	}
	m.deliveriesInflight.Dec()
}

func (m *Metrics) ObserveDispatchFanout(matched int) {
	if m == nil {
		return
	}
	if matched < 0 {
		matched = 0
	}
	m.dispatchFanoutSize.Observe(float64(matched))
}

func (m *Metrics) IncAutoDisabled() {
	if m == nil {
		return
	}
	m.autoDisabledTotal.Inc()
}

func (m *Metrics) IncSubscriptionMutation(operation string) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(strings.ToLower(operation))
	if op == "" {
		op = "unknown"
	}
	m.subscriptionMutations.WithLabelValues(op).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeEvent(event string) string {
	normalized := strings.ToLower(strings.TrimSpace(event))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
