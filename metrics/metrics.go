// Package metrics exposes the relay's Prometheus instrumentation.
//
// Metrics:
//   - chatrelay_http_requests_total: HTTP requests by route and status code
//   - chatrelay_http_request_duration_seconds: HTTP latency by route
//   - chatrelay_provider_requests_total: provider calls by provider, model and outcome
//   - chatrelay_provider_duration_seconds: provider call latency
//   - chatrelay_provider_errors_total: provider failures by kind
//   - chatrelay_tokens_total: tokens by model and type (prompt, completion)
//
// All recording methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatrelay"

// Outcomes of a provider call.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Provider call latencies for LLM workloads (100ms - 60s).
var providerBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}

type Metrics struct {
	registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	providerRequests *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	providerErrors   *prometheus.CounterVec
	tokens           *prometheus.CounterVec
}

// New registers the relay metrics on a private registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests by route and status code",
			},
			[]string{"route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		providerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Total completion provider calls by outcome",
			},
			[]string{"provider", "model", "outcome"},
		),
		providerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_duration_seconds",
				Help:      "Completion provider call latency in seconds",
				Buckets:   providerBuckets,
			},
			[]string{"provider", "model"},
		),
		providerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_errors_total",
				Help:      "Total completion provider failures by kind",
			},
			[]string{"provider", "kind"},
		),
		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_total",
				Help:      "Total tokens reported by the provider",
			},
			[]string{"model", "type"},
		),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.providerRequests,
		m.providerDuration,
		m.providerErrors,
		m.tokens,
	)
	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveHTTP records one served request. route must be a fixed pattern, not
// the raw URL path.
func (m *Metrics) ObserveHTTP(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveProviderSuccess records a successful completion and its token usage.
func (m *Metrics) ObserveProviderSuccess(provider, model string, d time.Duration, promptTokens, completionTokens int) {
	if m == nil {
		return
	}
	m.providerRequests.WithLabelValues(provider, model, OutcomeSuccess).Inc()
	m.providerDuration.WithLabelValues(provider, model).Observe(d.Seconds())
	if promptTokens > 0 {
		m.tokens.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.tokens.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
}

// ObserveProviderError records a failed completion of the given error kind.
func (m *Metrics) ObserveProviderError(provider, model, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.providerRequests.WithLabelValues(provider, model, OutcomeError).Inc()
	m.providerDuration.WithLabelValues(provider, model).Observe(d.Seconds())
	m.providerErrors.WithLabelValues(provider, kind).Inc()
}
