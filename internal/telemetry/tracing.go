package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TraceConfig configures distributed tracing. An empty Endpoint exports spans
// to stdout instead of an OTLP collector.
type TraceConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	SamplingRate   float64
	EnableInsecure bool
}

// Tracer wraps an OpenTelemetry tracer with the span helpers this service's
// worker/LLM/reaper loops need.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer builds a Tracer and a shutdown func that must be called on exit.
// With no Endpoint configured, spans are written to stdout so the service is
// fully runnable for local development without a collector.
func NewTracer(cfg TraceConfig) (*Tracer, func(context.Context) error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "claude-mem-hookd"
	}
	if cfg.SamplingRate == 0 {
		cfg.SamplingRate = 1.0
	}

	var exporter sdktrace.SpanExporter
	if cfg.Endpoint == "" {
		stdoutExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return &Tracer{tracer: otel.Tracer(cfg.ServiceName)}, func(context.Context) error { return nil }
		}
		exporter = stdoutExporter
	} else {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.EnableInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		otlpExporter, err := otlptrace.New(context.Background(), otlptracegrpc.NewClient(opts...))
		if err != nil {
			return &Tracer{tracer: otel.Tracer(cfg.ServiceName)}, func(context.Context) error { return nil }
		}
		exporter = otlpExporter
	}

	res, err := resource.New(context.Background(), resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		res = resource.Default()
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SamplingRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)

	return &Tracer{provider: provider, tracer: provider.Tracer(cfg.ServiceName)}, provider.Shutdown
}

// Start begins a span and returns its context.
func (t *Tracer) Start(ctx context.Context, name string, kind trace.SpanKind) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithSpanKind(kind))
}

// RecordError marks the span as errored.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TraceLLMRequest starts a span for an LLM provider call.
func (t *Tracer) TraceLLMRequest(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	ctx, span := t.Start(ctx, "llm."+provider, trace.SpanKindClient)
	span.SetAttributes(attribute.String("llm.provider", provider), attribute.String("llm.model", model))
	return ctx, span
}

// TraceWorkerTick starts a span for one summarizer worker tick.
func (t *Tracer) TraceWorkerTick(ctx context.Context, worker string) (context.Context, trace.Span) {
	ctx, span := t.Start(ctx, "worker.tick", trace.SpanKindInternal)
	span.SetAttributes(attribute.String("worker.name", worker))
	return ctx, span
}

// TraceReaperScan starts a span for one orphan reaper scan.
func (t *Tracer) TraceReaperScan(ctx context.Context) (context.Context, trace.Span) {
	return t.Start(ctx, "reaper.scan", trace.SpanKindInternal)
}
