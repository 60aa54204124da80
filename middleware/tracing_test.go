package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	mw "github.com/makimoto/kuroko2/middleware"
)

func setupTestTracer() (*tracetest.SpanRecorder, trace.Tracer) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	tracer := tp.Tracer("test")
	return sr, tracer
}

func TestTracing_CreatesSpan(t *testing.T) {
	sr, tracer := setupTestTracer()
	m := mw.TracingWithTracer(tracer)

	_, err := m(context.Background(), newTestDefinition(), func(_ context.Context) (bool, error) {
		return true, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "kuroko2.admission.decide" {
		t.Errorf("expected span name %q, got %q", "kuroko2.admission.decide", spans[0].Name())
	}
}

func TestTracing_SpanAttributes(t *testing.T) {
	sr, tracer := setupTestTracer()
	m := mw.TracingWithTracer(tracer)
	def := newTestDefinition()

	_, _ = m(context.Background(), def, func(_ context.Context) (bool, error) {
		return false, nil
	})

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	expected := map[string]string{
		"kuroko2.definition.id":   def.ID.String(),
		"kuroko2.definition.name": def.Name,
		"kuroko2.prevent_multi":   def.PreventMulti.String(),
	}
	got := map[string]string{}
	admittedSeen := false
	for _, attr := range spans[0].Attributes() {
		switch string(attr.Key) {
		case "kuroko2.admitted":
			admittedSeen = true
			if attr.Value.AsBool() {
				t.Error("expected kuroko2.admitted=false")
			}
		default:
			got[string(attr.Key)] = attr.Value.AsString()
		}
	}
	for k, want := range expected {
		if got[k] != want {
			t.Errorf("attribute %s = %q, want %q", k, got[k], want)
		}
	}
	if !admittedSeen {
		t.Error("expected kuroko2.admitted attribute")
	}
}

func TestTracing_ErrorSetsStatus(t *testing.T) {
	sr, tracer := setupTestTracer()
	m := mw.TracingWithTracer(tracer)

	_, _ = m(context.Background(), newTestDefinition(), func(_ context.Context) (bool, error) {
		return false, errors.New("snapshot read failed")
	})

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", spans[0].Status().Code)
	}
}
