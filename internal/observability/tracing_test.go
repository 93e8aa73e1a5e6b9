package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestInitTracer_StdoutFallback(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "chainforge-test", "")
	if err != nil {
		t.Fatalf("InitTracer() error = %v", err)
	}
	defer shutdown(context.Background())

	ctx, span := StartSpan(context.Background(), "test.tracer", "TestOperation")
	defer span.End()

	if !span.SpanContext().IsValid() {
		t.Fatal("expected a valid span context")
	}

	fromCtx := trace.SpanFromContext(ctx)
	if fromCtx.SpanContext().TraceID() != span.SpanContext().TraceID() {
		t.Fatal("context should carry the started span")
	}
}

func TestEndWithError_SetsErrorStatus(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "chainforge-test", "")
	if err != nil {
		t.Fatalf("InitTracer() error = %v", err)
	}
	defer shutdown(context.Background())

	_, span := StartSpan(context.Background(), "test.tracer", "FailingOperation")
	EndWithError(span, errors.New("boom"))
}

func TestEndWithError_NilSpanIsNoOp(t *testing.T) {
	EndWithError(nil, errors.New("boom"))
	SetAttributes(nil)
}
