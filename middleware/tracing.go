package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/makimoto/kuroko2/definition"
)

// tracerName is the instrumentation scope name for kuroko2 tracing.
const tracerName = "github.com/makimoto/kuroko2"

// Tracing returns middleware that wraps the admission decision in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a pass-through
// with zero overhead.
//
// Span attributes include: kuroko2.definition.id, kuroko2.definition.name,
// kuroko2.prevent_multi, and kuroko2.admitted once decided. On error, the
// span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, def *definition.Definition, next Handler) (bool, error) {
		ctx, span := tracer.Start(ctx, "kuroko2.admission.decide",
			trace.WithAttributes(
				attribute.String("kuroko2.definition.id", def.ID.String()),
				attribute.String("kuroko2.definition.name", def.Name),
				attribute.String("kuroko2.prevent_multi", def.PreventMulti.String()),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		admitted, err := next(ctx)
		span.SetAttributes(attribute.Bool("kuroko2.admitted", admitted))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return admitted, err
	}
}
