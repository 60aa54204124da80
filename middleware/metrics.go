package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/makimoto/kuroko2/definition"
)

// meterName is the instrumentation scope name for kuroko2 metrics.
const meterName = "github.com/makimoto/kuroko2"

// Metrics returns middleware that records per-decision metrics using the
// global OTel MeterProvider. If no MeterProvider is configured, noop
// instruments are used and this middleware becomes a pass-through.
//
// Instruments:
//   - kuroko2.admission.duration (Float64Histogram): decision time in
//     seconds, with attributes: definition_name, prevent_multi, decision
//     ("admitted", "denied", or "error")
//   - kuroko2.admission.decisions (Int64Counter): total decisions,
//     with the same attributes
func Metrics() Middleware {
	meter := otel.Meter(meterName)
	return MetricsWithMeter(meter)
}

// MetricsWithMeter returns metrics middleware using the provided meter.
// This variant allows injecting a specific MeterProvider for testing.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// Create instruments once at middleware construction time.
	// OTel instruments are safe for concurrent use. On error, the API
	// returns noop instruments so the middleware degrades gracefully.
	duration, dErr := meter.Float64Histogram(
		"kuroko2.admission.duration",
		metric.WithDescription("Duration of admission decisions in seconds"),
		metric.WithUnit("s"),
	)
	_ = dErr // noop fallback guaranteed by OTel API contract

	decisions, cErr := meter.Int64Counter(
		"kuroko2.admission.decisions",
		metric.WithDescription("Total number of admission decisions"),
		metric.WithUnit("{decision}"),
	)
	_ = cErr // noop fallback guaranteed by OTel API contract

	return func(ctx context.Context, def *definition.Definition, next Handler) (bool, error) {
		start := time.Now()
		admitted, err := next(ctx)
		elapsed := time.Since(start).Seconds()

		decision := "denied"
		switch {
		case err != nil:
			decision = "error"
		case admitted:
			decision = "admitted"
		}

		attrs := metric.WithAttributes(
			attribute.String("definition_name", def.Name),
			attribute.String("prevent_multi", def.PreventMulti.String()),
			attribute.String("decision", decision),
		)

		duration.Record(ctx, elapsed, attrs)
		decisions.Add(ctx, 1, attrs)

		return admitted, err
	}
}
