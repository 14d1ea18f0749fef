package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// NewTracerProvider builds a TracerProvider for serviceName using a
// SimpleSpanProcessor over a LogSpanExporter, so every completed span is
// emitted to the process's structured logger rather than batched for an
// external collector.
func NewTracerProvider(serviceName string, logger *slog.Logger) *sdktrace.TracerProvider {
	if logger == nil {
		logger = slog.Default()
	}

	exporter := NewLogSpanExporter(logger)
	processor := sdktrace.NewSimpleSpanProcessor(exporter)

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)),
	)
	if err != nil {
		logger.Warn("failed to build otel resource, using default", "error", err)
		res = resource.Default()
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(processor),
		sdktrace.WithResource(res),
	)
}

// Tracer returns a named tracer from the provider.
func Tracer(tp *sdktrace.TracerProvider, name string) trace.Tracer {
	return tp.Tracer(name)
}

// LogSpanExporter implements the OpenTelemetry SpanExporter interface by
// writing each completed span to a structured logger. There is no tracing
// backend in this deployment, so spans are surfaced through the same log
// stream as everything else instead of being dropped silently.
type LogSpanExporter struct {
	log *slog.Logger
}

// NewLogSpanExporter builds a LogSpanExporter.
func NewLogSpanExporter(logger *slog.Logger) *LogSpanExporter {
	return &LogSpanExporter{log: logger}
}

// ExportSpans implements sdktrace.SpanExporter.
func (e *LogSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		attrs := make([]any, 0, 8)
		attrs = append(attrs,
			"trace_id", span.SpanContext().TraceID().String(),
			"span_id", span.SpanContext().SpanID().String(),
			"name", span.Name(),
			"duration", span.EndTime().Sub(span.StartTime()),
		)
		for _, a := range span.Attributes() {
			attrs = append(attrs, string(a.Key), attributeValue(a.Value))
		}
		e.log.Info("span completed", attrs...)
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter.
func (e *LogSpanExporter) Shutdown(ctx context.Context) error {
	return nil
}

func attributeValue(v attribute.Value) any {
	switch v.Type() {
	case attribute.STRING:
		return v.AsString()
	case attribute.INT64:
		return v.AsInt64()
	case attribute.FLOAT64:
		return v.AsFloat64()
	case attribute.BOOL:
		return v.AsBool()
	default:
		return v.Emit()
	}
}
