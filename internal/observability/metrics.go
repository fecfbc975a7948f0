package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nexuslog"

var upstreamBuckets = []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}

type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	upstreamRequestsTotal *prometheus.CounterVec
	upstreamDuration      *prometheus.HistogramVec
	providerAttempts      *prometheus.CounterVec
	providerConfigured    *prometheus.GaugeVec
	routerDefaults        *prometheus.CounterVec
	ingestions            *prometheus.CounterVec
}

func counter(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func histogram(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		httpRequestsTotal: counter("http", "requests_total",
			"Total number of HTTP requests handled.", "route", "method", "status"),
		httpRequestDuration: histogram("http", "request_duration_seconds",
			"HTTP request duration in seconds.", prometheus.DefBuckets, "route", "method", "status"),
		upstreamRequestsTotal: counter("upstream", "requests_total",
			"Total requests to AI, Telegram and Sheets APIs.", "endpoint", "status"),
		upstreamDuration: histogram("upstream", "request_duration_seconds",
			"Upstream request duration in seconds.", upstreamBuckets, "endpoint", "status"),
		providerAttempts: counter("provider", "attempts_total",
			"Provider router attempts by adapter, capability and outcome.", "provider", "capability", "outcome"),
		providerConfigured: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "configured",
			Help:      "1 when the adapter is in the router, 0 when it was skipped for missing configuration.",
		}, []string{"provider"}),
		routerDefaults: counter("router", "default_total",
			"Router calls that exhausted every adapter and returned the capability default.", "capability"),
		ingestions: counter("", "ingestions_total",
			"Inbound items by ingestion outcome.", "outcome"),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.upstreamRequestsTotal,
		m.upstreamDuration,
		m.providerAttempts,
		m.providerConfigured,
		m.routerDefaults,
		m.ingestions,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := []string{orUnknown(route, "unknown"), orUnknown(method, "UNKNOWN"), strconv.Itoa(status)}
	m.httpRequestsTotal.WithLabelValues(labels...).Inc()
	m.httpRequestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
}

// ObserveUpstream matches the ObserverFunc of every upstream client.
func (m *Metrics) ObserveUpstream(endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := []string{orUnknown(endpoint, "unknown"), strconv.Itoa(status)}
	m.upstreamRequestsTotal.WithLabelValues(labels...).Inc()
	m.upstreamDuration.WithLabelValues(labels...).Observe(duration.Seconds())
}

// Upstream prefixes endpoint labels with the client name, e.g. "gemini_generate".
func (m *Metrics) Upstream(client string) func(endpoint string, status int, duration time.Duration) {
	return func(endpoint string, status int, duration time.Duration) {
		m.ObserveUpstream(client+"_"+endpoint, status, duration)
	}
}

func (m *Metrics) ObserveProviderAttempt(provider, capability, outcome string) {
	if m == nil {
		return
	}
	m.providerAttempts.WithLabelValues(provider, capability, outcome).Inc()
}

// SetProviders records which adapters the router kept.
func (m *Metrics) SetProviders(active, skipped []string) {
	if m == nil {
		return
	}
	for _, name := range active {
		m.providerConfigured.WithLabelValues(name).Set(1)
	}
	for _, name := range skipped {
		m.providerConfigured.WithLabelValues(name).Set(0)
	}
}

func (m *Metrics) IncRouterDefault(capability string) {
	if m == nil {
		return
	}
	m.routerDefaults.WithLabelValues(capability).Inc()
}

func (m *Metrics) ObserveIngestion(outcome string) {
	if m == nil {
		return
	}
	m.ingestions.WithLabelValues(outcome).Inc()
}

func orUnknown(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
