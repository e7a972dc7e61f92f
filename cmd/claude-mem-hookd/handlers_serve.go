package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/pitimon/claude-mem-plugin/internal/config"
	"github.com/pitimon/claude-mem-plugin/internal/httpapi"
	"github.com/pitimon/claude-mem-plugin/internal/llm"
	"github.com/pitimon/claude-mem-plugin/internal/queue"
	"github.com/pitimon/claude-mem-plugin/internal/reaper"
	"github.com/pitimon/claude-mem-plugin/internal/sessionstore"
	"github.com/pitimon/claude-mem-plugin/internal/telemetry"
	"github.com/pitimon/claude-mem-plugin/internal/tracker"
	"github.com/pitimon/claude-mem-plugin/internal/worker"
)

// runServe implements the serve command: it wires every collaborator and
// blocks until a shutdown signal arrives.
func runServe(ctx context.Context, configPath string, debug bool) error {
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	logger := slog.Default()

	logger.Info("starting claude-mem-hookd", "version", version, "commit", commit, "config", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	q, err := queue.Open(queue.Config{
		Path:            cfg.Queue.Path,
		MaxRetries:      cfg.Queue.MaxRetries,
		ToolResponseCap: cfg.Queue.ToolResponseCap,
	})
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	defer q.Close()

	sessionStore, err := sessionstore.Open(cfg.SessionStore.Path)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer sessionStore.Close()

	llmClient, err := llm.New(llm.Config{
		Provider:         llm.Provider(cfg.LLM.Provider),
		OpenRouterAPIKey: cfg.LLM.OpenRouterAPIKey,
		OpenRouterModel:  cfg.LLM.OpenRouterModel,
		GeminiAPIKey:     cfg.LLM.GeminiAPIKey,
		GeminiModel:      cfg.LLM.GeminiModel,
	})
	if err != nil {
		return fmt.Errorf("build llm client: %w", err)
	}

	metrics := telemetry.NewMetrics()
	tracer, shutdownTracer := telemetry.NewTracer(telemetry.TraceConfig{
		ServiceName:    "claude-mem-hookd",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("tracer shutdown failed", "error", err)
		}
	}()

	procTracker := tracker.New(tracker.WithLogger(logger))

	orphanReaper := reaper.New(reaper.Config{
		Signature:       cfg.Reaper.Signature,
		MaxAge:          cfg.Reaper.MaxAge,
		GracefulTimeout: cfg.Reaper.GracefulTimeout,
		Scanner:         reaper.NewHostScanner(),
		Tracker:         procTracker,
		Logger:          logger,
	})

	eventWorker := worker.NewEventWorker(worker.EventWorkerConfig{
		Store:         q,
		SessionStore:  sessionStore,
		LLM:           llmClient,
		LLMProvider:   string(cfg.LLM.Provider),
		LLMModel:      llmModelLabel(cfg.LLM),
		ModePreamble:  cfg.Mode.Preamble,
		TickSchedule:  cfg.EventWorker.TickSchedule,
		BatchSize:     cfg.EventWorker.BatchSize,
		GCEveryNTicks: cfg.EventWorker.GCEveryNTicks,
		GCRetention:   cfg.EventWorker.GCRetention,
		Tracer:        tracer,
		Metrics:       metrics,
		Logger:        logger,
	})
	summaryWorker := worker.NewSummaryWorker(worker.SummaryWorkerConfig{
		Store:         q,
		SessionStore:  sessionStore,
		LLM:           llmClient,
		LLMProvider:   string(cfg.LLM.Provider),
		LLMModel:      llmModelLabel(cfg.LLM),
		ModePreamble:  cfg.Mode.Preamble,
		TickSchedule:  cfg.SummaryWorker.TickSchedule,
		BatchSize:     cfg.SummaryWorker.BatchSize,
		GCEveryNTicks: cfg.SummaryWorker.GCEveryNTicks,
		GCRetention:   cfg.SummaryWorker.GCRetention,
		Tracer:        tracer,
		Metrics:       metrics,
		Logger:        logger,
	})

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := eventWorker.Start(ctx); err != nil {
		return fmt.Errorf("start event worker: %w", err)
	}
	defer eventWorker.Stop()

	if err := summaryWorker.Start(ctx); err != nil {
		return fmt.Errorf("start summary worker: %w", err)
	}
	defer summaryWorker.Stop()

	reaperInterval := cfg.Reaper.Interval
	if reaperInterval <= 0 {
		reaperInterval = reaper.DefaultInterval
	}
	stopReaper := runReaperLoop(ctx, orphanReaper, reaperInterval, tracer, metrics, logger)
	defer stopReaper()

	apiHandler := httpapi.NewHandler(httpapi.Config{
		Store:        q,
		SessionStore: sessionStore,
		Logger:       logger,
		Metrics:      metrics,
	})

	mux := http.NewServeMux()
	mux.Handle("/", apiHandler.Mount())
	mux.Handle("/metrics", promhttp.Handler())

	addr := cfg.HTTP.Addr
	if addr == "" {
		addr = "127.0.0.1:37777"
	}
	httpServer := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("intake server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logger.Info("shutdown signal received, stopping")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	procTracker.TerminateAll(cfg.Reaper.GracefulTimeout)

	logger.Info("claude-mem-hookd stopped gracefully")
	return nil
}

// llmModelLabel returns the configured model name for whichever provider is
// active, for use as a metrics/tracing label.
func llmModelLabel(cfg config.LLMConfig) string {
	if llm.Provider(cfg.Provider) == llm.ProviderGemini {
		return cfg.GeminiModel
	}
	return cfg.OpenRouterModel
}

// runReaperLoop runs orphanReaper.Scan on a ticker until ctx is canceled,
// returning a stop func for symmetry with the worker Start/Stop pairs.
func runReaperLoop(ctx context.Context, r *reaper.Reaper, interval time.Duration, tracer *telemetry.Tracer, metrics *telemetry.Metrics, logger *slog.Logger) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				scanCtx := ctx
				var span trace.Span
				if tracer != nil {
					scanCtx, span = tracer.TraceReaperScan(scanCtx)
				}
				report, err := r.Scan(scanCtx)
				if span != nil {
					tracer.RecordError(span, err)
					span.End()
				}
				if err != nil {
					logger.Error("reaper scan failed", "error", err)
					continue
				}
				if metrics != nil {
					metrics.RecordReaperKill("killed", report.Killed)
					metrics.RecordReaperKill("failed", report.Failed)
				}
				if report.Found > 0 {
					logger.Info("reaper scan complete", "found", report.Found, "killed", report.Killed, "failed", report.Failed)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// runStats implements the stats command: open the queue and print the raw
// tool-event status breakdown.
func runStats(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	q, err := queue.Open(queue.Config{Path: cfg.Queue.Path})
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	defer q.Close()

	stats, err := q.GetStats(cmd.Context())
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "pending:     %d\n", stats.Pending)
	fmt.Fprintf(out, "summarizing: %d\n", stats.Summarizing)
	fmt.Fprintf(out, "completed:   %d\n", stats.Completed)
	fmt.Fprintf(out, "failed:      %d\n", stats.Failed)
	return nil
}

// runDoctor implements the doctor command: run a single orphan reaper scan
// against the live host process table and report what it found.
func runDoctor(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	r := reaper.New(reaper.Config{
		Signature:       cfg.Reaper.Signature,
		MaxAge:          cfg.Reaper.MaxAge,
		GracefulTimeout: cfg.Reaper.GracefulTimeout,
		Scanner:         reaper.NewHostScanner(),
		Tracker:         tracker.New(),
	})

	report, err := r.Scan(cmd.Context())
	if err != nil {
		return fmt.Errorf("reaper scan: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "found:  %d\n", report.Found)
	fmt.Fprintf(out, "killed: %d\n", report.Killed)
	fmt.Fprintf(out, "failed: %d\n", report.Failed)
	return nil
}
