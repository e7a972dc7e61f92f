package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordLLMRequest_IncrementsCounterAndTokens(t *testing.T) {
	m := &Metrics{
		LLMRequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "test_llm_requests_total", Help: "h"},
			[]string{"provider", "model", "status"},
		),
		LLMRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "test_llm_request_duration_seconds", Help: "h"},
			[]string{"provider", "model"},
		),
		LLMTokensUsed: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "test_llm_tokens_total", Help: "h"},
			[]string{"provider", "model"},
		),
	}

	m.RecordLLMRequest("openrouter", "gpt-4o-mini", "success", 1.5, 200)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.LLMRequestCounter.WithLabelValues("openrouter", "gpt-4o-mini", "success")))
	assert.Equal(t, float64(200), testutil.ToFloat64(m.LLMTokensUsed.WithLabelValues("openrouter", "gpt-4o-mini")))
}

func TestRecordStaleRowsReleased_SkipsZero(t *testing.T) {
	m := &Metrics{
		StaleRowsReleased: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "test_stale_rows_released_total", Help: "h"},
			[]string{"queue"},
		),
	}

	m.RecordStaleRowsReleased("events", 0)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.StaleRowsReleased.WithLabelValues("events")))

	m.RecordStaleRowsReleased("events", 3)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.StaleRowsReleased.WithLabelValues("events")))
}

func TestRecordReaperKill_SkipsZero(t *testing.T) {
	m := &Metrics{
		ReaperKills: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "test_reaper_kills_total", Help: "h"},
			[]string{"result"},
		),
	}

	m.RecordReaperKill("failed", 0)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ReaperKills.WithLabelValues("failed")))

	m.RecordReaperKill("killed", 2)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ReaperKills.WithLabelValues("killed")))
}

func TestRecordHTTPRequest(t *testing.T) {
	m := &Metrics{
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "test_http_request_duration_seconds", Help: "h"},
			[]string{"method", "path", "status_code"},
		),
	}

	m.RecordHTTPRequest("POST", "/api/sessions/init", 200, 0.02)

	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPRequestDuration))
}

func TestSetQueueDepth(t *testing.T) {
	m := &Metrics{
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "test_queue_depth", Help: "h"},
			[]string{"queue", "status"},
		),
	}

	m.SetQueueDepth("events", "pending", 7)
	assert.Equal(t, float64(7), testutil.ToFloat64(m.QueueDepth.WithLabelValues("events", "pending")))
}
