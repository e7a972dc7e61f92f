// Package telemetry wires Prometheus metrics and OpenTelemetry tracing for
// the service, following the teacher's observability package shape scaled
// down to this service's domain (queue depth, LLM calls, HTTP intake).
package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics centralizes the service's Prometheus collectors.
type Metrics struct {
	// QueueDepth tracks raw rows by status and queue (events|summaries).
	QueueDepth *prometheus.GaugeVec

	// EventsProcessed counts raw tool event processing attempts by outcome
	// (completed, or failed — which may still retry before going terminal).
	EventsProcessed *prometheus.CounterVec

	// SummariesProcessed counts raw summary request processing attempts by
	// outcome (completed, or failed — which may still retry before going
	// terminal).
	SummariesProcessed *prometheus.CounterVec

	// LLMRequestDuration measures LLM call latency in seconds.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM calls by provider, model, and status.
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption by provider and model.
	LLMTokensUsed *prometheus.CounterVec

	// HTTPRequestDuration measures intake HTTP request latency.
	HTTPRequestDuration *prometheus.HistogramVec

	// ReaperKills counts orphan processes the reaper terminated.
	ReaperKills *prometheus.CounterVec

	// StaleRowsReleased counts rows recovered from a crashed worker.
	StaleRowsReleased *prometheus.CounterVec
}

// NewMetrics registers and returns the service's collectors. Call once at
// startup.
func NewMetrics() *Metrics {
	return &Metrics{
		QueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "claude_mem_queue_depth",
				Help: "Current raw row count by queue and status",
			},
			[]string{"queue", "status"},
		),
		EventsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claude_mem_events_processed_total",
				Help: "Total raw tool event processing attempts by outcome",
			},
			[]string{"outcome"},
		),
		SummariesProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claude_mem_summaries_processed_total",
				Help: "Total raw summary request processing attempts by outcome",
			},
			[]string{"outcome"},
		),
		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "claude_mem_llm_request_duration_seconds",
				Help:    "Duration of LLM calls in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claude_mem_llm_requests_total",
				Help: "Total LLM calls by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),
		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claude_mem_llm_tokens_total",
				Help: "Total LLM tokens consumed by provider and model",
			},
			[]string{"provider", "model"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "claude_mem_http_request_duration_seconds",
				Help:    "Duration of intake HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),
		ReaperKills: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claude_mem_reaper_kills_total",
				Help: "Total orphaned processes terminated by the orphan reaper",
			},
			[]string{"result"},
		),
		StaleRowsReleased: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claude_mem_stale_rows_released_total",
				Help: "Total rows released from a stalled summarizing state back to pending",
			},
			[]string{"queue"},
		),
	}
}

// RecordLLMRequest records a single LLM call's outcome, latency, and token usage.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, totalTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if totalTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model).Add(float64(totalTokens))
	}
}

// RecordEventProcessed increments the event outcome counter (completed|failed).
func (m *Metrics) RecordEventProcessed(outcome string) {
	m.EventsProcessed.WithLabelValues(outcome).Inc()
}

// RecordSummaryProcessed increments the summary outcome counter (completed|failed).
func (m *Metrics) RecordSummaryProcessed(outcome string) {
	m.SummariesProcessed.WithLabelValues(outcome).Inc()
}

// RecordReaperKill adds n to the reaper kill counter for a result (killed|failed).
func (m *Metrics) RecordReaperKill(result string, n int) {
	if n <= 0 {
		return
	}
	m.ReaperKills.WithLabelValues(result).Add(float64(n))
}

// RecordStaleRowsReleased adds n to the stale-row release counter for a queue.
func (m *Metrics) RecordStaleRowsReleased(queue string, n int64) {
	if n <= 0 {
		return
	}
	m.StaleRowsReleased.WithLabelValues(queue).Add(float64(n))
}

// RecordHTTPRequest observes one intake HTTP request's latency by method,
// path, and status code.
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, durationSeconds float64) {
	m.HTTPRequestDuration.WithLabelValues(method, path, strconv.Itoa(statusCode)).Observe(durationSeconds)
}

// SetQueueDepth sets the current row count for a queue/status pair, called
// periodically from GetStats snapshots.
func (m *Metrics) SetQueueDepth(queue, status string, count int) {
	m.QueueDepth.WithLabelValues(queue, status).Set(float64(count))
}
