// Package worker implements the Event Summarizer and Summary Summarizer
// Workers (spec §4.4, §4.5): tick-driven loops that claim a batch off the
// durable queue, call the LLM, parse the response, and persist results.
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

// DefaultTickSchedule fires once every 10 seconds, a standard cron
// expression extended with a leading seconds field, which cron.WithSeconds
// requires (matches the teacher's own cron.Parser configuration).
const DefaultTickSchedule = "*/10 * * * * *"

// DefaultBatchSize bounds how many raw rows one Event Summarizer tick claims.
const DefaultBatchSize = 10

// DefaultStallThreshold is how long a row may sit in summarizing before the
// stall-release sweep reverts it to pending.
const DefaultStallThreshold = 5 * time.Minute

// DefaultGCEveryNTicks runs the completed-row garbage collector once every
// this many ticks, not on every tick, to keep routine ticks cheap.
const DefaultGCEveryNTicks = 100

// DefaultReleaseEveryNTicks runs the stall-release sweep once every this
// many ticks.
const DefaultReleaseEveryNTicks = 30

// DefaultGCRetention is how long a completed row survives before GC deletes it.
const DefaultGCRetention = time.Hour

// EventWorkerConfig configures an EventWorker.
type EventWorkerConfig struct {
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

// EventWorker runs the §4.4 Event Summarizer loop on a cron schedule.
type EventWorker struct {
	cfg       EventWorkerConfig
	cron      *cron.Cron
	entryID   cron.EntryID
	tickCount int
	logger    *slog.Logger
}

// NewEventWorker builds an EventWorker, filling defaults for zero-valued
// config fields.
func NewEventWorker(cfg EventWorkerConfig) *EventWorker {
	if cfg.TickSchedule == "" {
		cfg.TickSchedule = DefaultTickSchedule
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
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

	return &EventWorker{cfg: cfg, logger: logger.With("worker", "event_summarizer")}
}

// Start schedules the tick loop. A tick that is still running when the next
// one fires is skipped rather than queued (spec §4.4 reentrancy guard),
// implemented via cron/v3's SkipIfStillRunning chain middleware.
func (w *EventWorker) Start(ctx context.Context) error {
	if n, err := w.cfg.Store.ReleaseStuckEvents(ctx, 0); err != nil {
		w.logger.Error("startup release stuck events failed", "error", err)
	} else if n > 0 {
		w.logger.Info("startup released stuck events", "count", n)
	}

	logAdapter := cronLoggerFromSlog(w.logger)
	w.cron = cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(logAdapter)),
	)

	id, err := w.cron.AddFunc(w.cfg.TickSchedule, func() { w.tick(ctx) })
	if err != nil {
		return fmt.Errorf("worker: event schedule: %w", err)
	}
	w.entryID = id
	w.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for any in-flight tick to finish.
func (w *EventWorker) Stop() {
	if w.cron == nil {
		return
	}
	<-w.cron.Stop().Done()
}

func (w *EventWorker) tick(ctx context.Context) {
	w.tickCount++

	if w.cfg.Tracer != nil {
		var span trace.Span
		ctx, span = w.cfg.Tracer.TraceWorkerTick(ctx, "event_summarizer")
		defer span.End()
	}

	if w.tickCount%w.cfg.ReleaseEveryNTicks == 0 {
		if n, err := w.cfg.Store.ReleaseStuckEvents(ctx, w.cfg.StallThreshold.Milliseconds()); err != nil {
			w.logger.Error("release stuck events failed", "error", err)
		} else if w.cfg.Metrics != nil {
			w.cfg.Metrics.RecordStaleRowsReleased("events", n)
		}
	}

	if w.tickCount%w.cfg.GCEveryNTicks == 0 {
		cutoff := models.NowEpochMillis() - w.cfg.GCRetention.Milliseconds()
		if n, err := w.cfg.Store.DeleteCompleted(ctx, cutoff); err != nil {
			w.logger.Error("gc completed events failed", "error", err)
		} else if n > 0 {
			w.logger.Info("gc removed completed events", "count", n)
		}
	}

	if w.cfg.Metrics != nil {
		if stats, err := w.cfg.Store.GetStats(ctx); err == nil {
			w.cfg.Metrics.SetQueueDepth("events", "pending", stats.Pending)
			w.cfg.Metrics.SetQueueDepth("events", "summarizing", stats.Summarizing)
			w.cfg.Metrics.SetQueueDepth("events", "completed", stats.Completed)
			w.cfg.Metrics.SetQueueDepth("events", "failed", stats.Failed)
		}
	}

	batch, err := w.cfg.Store.ClaimBatchForSummarization(ctx, w.cfg.BatchSize)
	if err != nil {
		w.logger.Error("claim batch failed", "error", err)
		return
	}
	if len(batch) == 0 {
		return
	}

	for sessionDBID, events := range groupBySession(batch) {
		w.processGroup(ctx, sessionDBID, events)
	}
}

// callLLM wraps a single summarization call with tracing and metrics; both
// are no-ops when the corresponding config field is nil.
func (w *EventWorker) callLLM(ctx context.Context, system, user string) (llm.Response, error) {
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

func groupBySession(events []*models.RawToolEvent) map[int64][]*models.RawToolEvent {
	groups := make(map[int64][]*models.RawToolEvent)
	for _, e := range events {
		groups[e.SessionDBID] = append(groups[e.SessionDBID], e)
	}
	return groups
}

func (w *EventWorker) processGroup(ctx context.Context, sessionDBID int64, events []*models.RawToolEvent) {
	sess, err := w.cfg.SessionStore.GetSessionByID(ctx, sessionDBID)
	if err != nil || sess == nil {
		w.failAll(ctx, events, "session lookup failed")
		return
	}

	recent, err := w.cfg.SessionStore.GetRecentObservations(ctx, sess.Project, 10)
	if err != nil {
		// Advisory context only; proceed without it.
		recent = nil
	}

	system, user := BuildEventPrompt(w.cfg.ModePreamble, events, recent)

	resp, err := w.callLLM(ctx, system, user)
	if err != nil {
		w.failAll(ctx, events, err.Error())
		return
	}

	observations := parser.ParseObservations(resp.Content, events[0].ContentSessionID)
	if len(observations) == 0 {
		for _, e := range events {
			if err := w.cfg.Store.MarkCompleted(ctx, e.ID, 0); err != nil {
				w.logger.Error("mark completed failed", "id", e.ID, "error", err)
			}
			w.recordEventOutcome("completed")
		}
		return
	}

	result, err := w.cfg.SessionStore.StoreObservations(ctx, sess.MemorySessionID, sess.Project, events[0].PromptNumber, observations, nil, resp.TotalTokens)
	if err != nil {
		w.failAll(ctx, events, fmt.Sprintf("materialization failed: %v", err))
		return
	}

	w.markCompletedReusingLastID(ctx, events, result.ObservationIDs)
}

// markCompletedReusingLastID marks each raw event completed, attributing it
// to the observation produced from its batch. Events outnumbering
// observations reuse the last assigned id (spec §4.4 step 5f): this is
// documented, intentional lossy compression, not a bug — observation_id on
// a completed row is informational only.
func (w *EventWorker) markCompletedReusingLastID(ctx context.Context, events []*models.RawToolEvent, observationIDs []int64) {
	lastID := int64(0)
	if len(observationIDs) > 0 {
		lastID = observationIDs[len(observationIDs)-1]
	}
	for i, e := range events {
		id := lastID
		if i < len(observationIDs) {
			id = observationIDs[i]
		}
		if err := w.cfg.Store.MarkCompleted(ctx, e.ID, id); err != nil {
			w.logger.Error("mark completed failed", "id", e.ID, "error", err)
		}
		w.recordEventOutcome("completed")
	}
}

func (w *EventWorker) failAll(ctx context.Context, events []*models.RawToolEvent, reason string) {
	for _, e := range events {
		if err := w.cfg.Store.MarkFailed(ctx, e.ID, reason); err != nil {
			w.logger.Error("mark failed failed", "id", e.ID, "error", err)
		}
		w.recordEventOutcome("failed")
	}
}

func (w *EventWorker) recordEventOutcome(outcome string) {
	if w.cfg.Metrics != nil {
		w.cfg.Metrics.RecordEventProcessed(outcome)
	}
}
