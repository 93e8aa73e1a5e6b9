// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for the orchestration engine, grounded on
// services/orchestrator/observability/metrics.go's promauto counter/
// histogram definitions and services/orchestrator/main.go's tracer
// initialization, generalized from streaming-chat metrics to chain/LLM
// metrics per §4.16.
//
// These metrics are distinct from, and computed independently of, the
// JSON GET /metrics endpoint, which aggregates directly from the
// Conversation Store over a rolling 24h window.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "chainforge"

// Metrics holds every Prometheus instrument emitted by the engine.
// Construct once via NewMetrics() at process startup and share the
// instance across the LLM Connector and the Chain Runtime.
type Metrics struct {
	// LLMCallsTotal counts LLM Connector calls by provider, model, and
	// outcome. Labels: provider, model, outcome (success, fallback, error).
	LLMCallsTotal *prometheus.CounterVec

	// LLMCallDurationSeconds measures end-to-end Connector.Call latency,
	// including any retries and fallback attempts. Labels: provider, model.
	LLMCallDurationSeconds *prometheus.HistogramVec

	// ChainDurationSeconds measures total Chain() wall-clock time.
	// Labels: outcome (success, error).
	ChainDurationSeconds *prometheus.HistogramVec

	// TokensTotal counts tokens processed by direction.
	// Labels: direction (prompt, completion).
	TokensTotal *prometheus.CounterVec
}

// NewMetrics registers and returns a fresh Metrics instance. Registering
// the same instrument twice against the same registry panics, so callers
// should construct exactly one Metrics per process (or pass a fresh
// *prometheus.Registry in tests).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LLMCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "llm_calls_total",
				Help:      "Total LLM Connector calls by provider, model, and outcome",
			},
			[]string{"provider", "model", "outcome"},
		),
		LLMCallDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "llm_call_duration_seconds",
				Help:      "Connector.Call duration in seconds, including retries and fallback",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		ChainDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "chain_duration_seconds",
				Help:      "Chain() total duration in seconds",
				Buckets:   []float64{1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"outcome"},
		),
		TokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "tokens_total",
				Help:      "Total tokens processed by direction",
			},
			[]string{"direction"},
		),
	}
}

// RecordLLMCall records one Connector.Call outcome: the provider/model
// actually used (not the originally requested one, so fallbacks are
// attributed to the candidate that succeeded), the outcome label, and the
// prompt/completion token counts.
func (m *Metrics) RecordLLMCall(provider, model, outcome string, duration time.Duration, promptTokens, completionTokens int) {
	if m == nil {
		return
	}
	m.LLMCallsTotal.WithLabelValues(provider, model, outcome).Inc()
	m.LLMCallDurationSeconds.WithLabelValues(provider, model).Observe(duration.Seconds())
	m.TokensTotal.WithLabelValues("prompt").Add(float64(promptTokens))
	m.TokensTotal.WithLabelValues("completion").Add(float64(completionTokens))
}

// RecordChain records one Chain() invocation's total duration and outcome.
func (m *Metrics) RecordChain(success bool, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "error"
	}
	m.ChainDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// Handler returns the Prometheus scrape endpoint for gatherer, mounted at
// /metrics/prom rather than /metrics since §6 already reserves /metrics
// for the JSON Conversation-Store aggregate endpoint in internal/httpapi.
// Callers pass the same registry given to NewMetrics rather than the
// global DefaultGatherer, so a process can wire more than one Metrics
// instance (as tests that construct an app repeatedly do) without
// colliding on process-wide registration.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
