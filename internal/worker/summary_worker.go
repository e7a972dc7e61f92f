package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/pitimon/claude-mem-plugin/internal/llm"
	"github.com/pitimon/claude-mem-plugin/internal/parser"
	"github.com/pitimon/claude-mem-plugin/internal/queue"
	"github.com/pitimon/claude-mem-plugin/internal/sessionstore"
	"github.com/pitimon/claude-mem-plugin/internal/telemetry"
	"github.com/pitimon/claude-mem-plugin/pkg/models"
)

// DefaultSummaryBatchSize bounds how many requests one Summary Summarizer
// tick claims.
const DefaultSummaryBatchSize = 5

// SummaryWorkerConfig configures a SummaryWorker.
type SummaryWorkerConfig struct {
	Store        *queue.Store
	SessionStore *sessionstore.Store
	LLM          llm.Client
	LLMProvider  string
	LLMModel     string
	ModePreamble string

	TickSchedule       string
	BatchSize          int
	StallThreshold     time.Duration
	GCEveryNTicks      int
	ReleaseEveryNTicks int
	GCRetention        time.Duration

	// Tracer and Metrics are optional; a nil value disables the
	// corresponding instrumentation rather than panicking.
	Tracer  *telemetry.Tracer
	Metrics *telemetry.Metrics

	Logger *slog.Logger
}

// SummaryWorker runs the §4.5 Summary Summarizer loop. Unlike the Event
// Summarizer, each claimed request is processed individually: the queue's
// duplicate guard already ensures at most one pending/summarizing request
// per session, so there is no per-session batch to assemble.
type SummaryWorker struct {
	cfg       SummaryWorkerConfig
	cron      *cron.Cron
	tickCount int
	logger    *slog.Logger
}

// NewSummaryWorker builds a SummaryWorker, filling defaults for zero-valued
// config fields.
func NewSummaryWorker(cfg SummaryWorkerConfig) *SummaryWorker {
	if cfg.TickSchedule == "" {
		cfg.TickSchedule = DefaultTickSchedule
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultSummaryBatchSize
	}
	if cfg.StallThreshold <= 0 {
		cfg.StallThreshold = DefaultStallThreshold
	}
	if cfg.GCEveryNTicks <= 0 {
		cfg.GCEveryNTicks = DefaultGCEveryNTicks
	}
	if cfg.ReleaseEveryNTicks <= 0 {
		cfg.ReleaseEveryNTicks = DefaultReleaseEveryNTicks
	}
	if cfg.GCRetention <= 0 {
		cfg.GCRetention = DefaultGCRetention
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SummaryWorker{cfg: cfg, logger: logger.With("worker", "summary_summarizer")}
}

// Start schedules the tick loop, skipping a tick if the prior one is still running.
func (w *SummaryWorker) Start(ctx context.Context) error {
	if n, err := w.cfg.Store.ReleaseStuckSummaryRequests(ctx, 0); err != nil {
		w.logger.Error("startup release stuck summary requests failed", "error", err)
	} else if n > 0 {
		w.logger.Info("startup released stuck summary requests", "count", n)
	}

	w.cron = cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cronLoggerFromSlog(w.logger))),
	)
	if _, err := w.cron.AddFunc(w.cfg.TickSchedule, func() { w.tick(ctx) }); err != nil {
		return fmt.Errorf("worker: summary schedule: %w", err)
	}
	w.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for any in-flight tick to finish.
func (w *SummaryWorker) Stop() {
	if w.cron == nil {
		return
	}
	<-w.cron.Stop().Done()
}

func (w *SummaryWorker) tick(ctx context.Context) {
	w.tickCount++

	if w.cfg.Tracer != nil {
		var span trace.Span
		ctx, span = w.cfg.Tracer.TraceWorkerTick(ctx, "summary_summarizer")
		defer span.End()
	}

	if w.tickCount%w.cfg.ReleaseEveryNTicks == 0 {
		if n, err := w.cfg.Store.ReleaseStuckSummaryRequests(ctx, w.cfg.StallThreshold.Milliseconds()); err != nil {
			w.logger.Error("release stuck summary requests failed", "error", err)
		} else if w.cfg.Metrics != nil {
			w.cfg.Metrics.RecordStaleRowsReleased("summaries", n)
		}
	}

	if w.tickCount%w.cfg.GCEveryNTicks == 0 {
		cutoff := models.NowEpochMillis() - w.cfg.GCRetention.Milliseconds()
		if n, err := w.cfg.Store.DeleteCompletedSummaryRequests(ctx, cutoff); err != nil {
			w.logger.Error("gc completed summary requests failed", "error", err)
		} else if n > 0 {
			w.logger.Info("gc removed completed summary requests", "count", n)
		}
	}

	batch, err := w.cfg.Store.ClaimSummaryBatch(ctx, w.cfg.BatchSize)
	if err != nil {
		w.logger.Error("claim summary batch failed", "error", err)
		return
	}

	for _, req := range batch {
		w.processOne(ctx, req)
	}
}

func (w *SummaryWorker) processOne(ctx context.Context, req *models.RawSummaryRequest) {
	sess, err := w.cfg.SessionStore.GetSessionByID(ctx, req.SessionDBID)
	if err != nil || sess == nil {
		if err := w.cfg.Store.MarkSummaryFailed(ctx, req.ID, "session lookup failed"); err != nil {
			w.logger.Error("mark summary failed failed", "id", req.ID, "error", err)
		}
		w.recordSummaryOutcome("failed")
		return
	}

	recent, err := w.cfg.SessionStore.GetRecentObservations(ctx, sess.Project, 10)
	if err != nil {
		recent = nil
	}

	system, user := BuildSummaryPrompt(w.cfg.ModePreamble, req, recent)

	resp, err := w.callLLM(ctx, system, user)
	if err != nil {
		if err := w.cfg.Store.MarkSummaryFailed(ctx, req.ID, err.Error()); err != nil {
			w.logger.Error("mark summary failed failed", "id", req.ID, "error", err)
		}
		w.recordSummaryOutcome("failed")
		return
	}

	summary := parser.ParseSummary(resp.Content, req.SessionDBID)
	if summary == nil {
		if err := w.cfg.Store.MarkSummaryFailed(ctx, req.ID, "Failed to parse summary from LLM response"); err != nil {
			w.logger.Error("mark summary failed failed", "id", req.ID, "error", err)
		}
		w.recordSummaryOutcome("failed")
		return
	}

	promptNumber := 0 // prompt_number is not carried on RawSummaryRequest; summaries are scoped by memory_session_id
	result, err := w.cfg.SessionStore.StoreObservations(ctx, sess.MemorySessionID, sess.Project, promptNumber, nil, summary, resp.TotalTokens)
	if err != nil {
		if err := w.cfg.Store.MarkSummaryFailed(ctx, req.ID, fmt.Sprintf("materialization failed: %v", err)); err != nil {
			w.logger.Error("mark summary failed failed", "id", req.ID, "error", err)
		}
		w.recordSummaryOutcome("failed")
		return
	}

	if err := w.cfg.Store.MarkSummaryCompleted(ctx, req.ID, result.SummaryID); err != nil {
		w.logger.Error("mark summary completed failed", "id", req.ID, "error", err)
	}
	w.recordSummaryOutcome("completed")
}

func (w *SummaryWorker) recordSummaryOutcome(outcome string) {
	if w.cfg.Metrics != nil {
		w.cfg.Metrics.RecordSummaryProcessed(outcome)
	}
}

// callLLM wraps a single summarization call with tracing and metrics; both
// are no-ops when the corresponding config field is nil.
func (w *SummaryWorker) callLLM(ctx context.Context, system, user string) (llm.Response, error) {
	var span trace.Span
	if w.cfg.Tracer != nil {
		ctx, span = w.cfg.Tracer.TraceLLMRequest(ctx, w.cfg.LLMProvider, w.cfg.LLMModel)
		defer span.End()
	}

	start := time.Now()
	resp, err := w.cfg.LLM.Call(ctx, llm.Request{SystemPrompt: system, UserPrompt: user})
	elapsed := time.Since(start)

	if w.cfg.Tracer != nil {
		w.cfg.Tracer.RecordError(span, err)
	}
	if w.cfg.Metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		w.cfg.Metrics.RecordLLMRequest(w.cfg.LLMProvider, w.cfg.LLMModel, status, elapsed.Seconds(), resp.TotalTokens)
	}
	return resp, err
}
