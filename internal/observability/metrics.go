package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Collector holds the Prometheus metrics of the service on its own registry.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	Mutations       *prometheus.CounterVec
	ItemEvents      *prometheus.CounterVec
	AuditViolations *prometheus.GaugeVec
	AuditRuns       prometheus.Counter
}

func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "category_mutations_total",
				Help:      "Committed and failed category mutations",
			},
			[]string{"operation", "status"},
		),
		ItemEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "item_events_total",
				Help:      "Item events received from the catalog",
			},
			[]string{"event", "status"},
		),
		AuditViolations: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "audit_violations",
				Help:      "Invariant violations found by the last audit, per rule",
			},
			[]string{"rule"},
		),
		AuditRuns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_runs_total",
				Help:      "Completed invariant audits",
			},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.Mutations,
		c.ItemEvents,
		c.AuditViolations,
		c.AuditRuns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the registry for tests and custom exporters.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
}

func (c *Collector) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (c *Collector) RecordMutation(operation string, err error) {
	c.Mutations.WithLabelValues(operation, outcome(err)).Inc()
}

func (c *Collector) RecordItemEvent(event string, err error) {
	c.ItemEvents.WithLabelValues(event, outcome(err)).Inc()
}

// RecordAudit replaces the per-rule violation counts with the latest run.
func (c *Collector) RecordAudit(byRule map[string]int) {
	c.AuditViolations.Reset()
	for rule, n := range byRule {
		c.AuditViolations.WithLabelValues(rule).Set(float64(n))
	}
	c.AuditRuns.Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
