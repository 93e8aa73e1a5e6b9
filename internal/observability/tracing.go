package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	stdouttrace "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// InitTracer wires the global OTel tracer provider, grounded on
// services/orchestrator/main.go's initTracer. When endpoint is empty
// (no collector configured) it falls back to the stdouttrace exporter
// rather than failing startup, so a developer machine without a
// collector still gets spans on stdout.
//
// The returned shutdown func flushes and closes the exporter; callers
// must invoke it (typically via defer) before process exit.
func InitTracer(ctx context.Context, serviceName, endpoint string) (shutdown func(context.Context), err error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	var sp sdktrace.SpanExporter
	if endpoint == "" {
		sp, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("observability: build stdout exporter: %w", err)
		}
	} else {
		sp, err = otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
		if err != nil {
			return nil, fmt.Errorf("observability: build otlp exporter: %w", err)
		}
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(sp),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(ctx)
	}, nil
}

// StartSpan starts a span on the global tracer, adapted from
// services/trace/telemetry/tracing.go's StartSpan so every LLM Connector
// call, store operation, and chain stage shares one span-naming
// convention: tracerName is the package path, spanName is
// "Type.Method" or the operation name.
func StartSpan(ctx context.Context, tracerName, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, opts...)
}

// EndWithError sets the span's status from err (nil means success) and
// ends it. Callers typically defer this immediately after StartSpan:
//
//	ctx, span := observability.StartSpan(ctx, "internal/llm", "Connector.Call")
//	defer func() { observability.EndWithError(span, err) }()
func EndWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// SetAttributes sets attributes on span, a no-op when span is nil.
func SetAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span == nil {
		return
	}
	span.SetAttributes(attrs...)
}
