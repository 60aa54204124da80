// Package observability provides a metrics extension that records lifecycle
// counters and durations via OpenTelemetry.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/makimoto/kuroko2/definition"
	"github.com/makimoto/kuroko2/ext"
	"github.com/makimoto/kuroko2/instance"
	"github.com/makimoto/kuroko2/token"
)

const meterName = "github.com/makimoto/kuroko2/observability"

// Compile-time interface checks.
var (
	_ ext.Extension           = (*MetricsExtension)(nil)
	_ ext.DefinitionCreated   = (*MetricsExtension)(nil)
	_ ext.DefinitionUpdated   = (*MetricsExtension)(nil)
	_ ext.DefinitionDestroyed = (*MetricsExtension)(nil)
	_ ext.DestroyDenied       = (*MetricsExtension)(nil)
	_ ext.InstanceLaunched    = (*MetricsExtension)(nil)
	_ ext.LaunchDenied        = (*MetricsExtension)(nil)
	_ ext.InstanceFinished    = (*MetricsExtension)(nil)
	_ ext.TokenRecorded       = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle metrics. Register it as a
// kuroko2 extension to automatically track definition churn, launch admission
// and denial rates, instance durations, and token status counts.
type MetricsExtension struct {
	definitionCreated   metric.Int64Counter
	definitionUpdated   metric.Int64Counter
	definitionDestroyed metric.Int64Counter
	destroyDenied       metric.Int64Counter
	instanceLaunched    metric.Int64Counter
	launchDenied        metric.Int64Counter
	instanceFinished    metric.Int64Counter
	instanceDuration    metric.Float64Histogram
	tokenRecorded       metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global meter provider.
func NewMetricsExtension() (*MetricsExtension, error) {
	return NewMetricsExtensionWithMeter(otel.GetMeterProvider().Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension on the given meter.
// Use a ManualReader-backed meter in tests.
func NewMetricsExtensionWithMeter(meter metric.Meter) (*MetricsExtension, error) {
	m := &MetricsExtension{}
	var err error

	if m.definitionCreated, err = meter.Int64Counter("kuroko2.definition.created",
		metric.WithDescription("Definitions created")); err != nil {
		return nil, fmt.Errorf("observability: create counter: %w", err)
	}
	if m.definitionUpdated, err = meter.Int64Counter("kuroko2.definition.updated",
		metric.WithDescription("Definitions updated")); err != nil {
		return nil, fmt.Errorf("observability: create counter: %w", err)
	}
	if m.definitionDestroyed, err = meter.Int64Counter("kuroko2.definition.destroyed",
		metric.WithDescription("Definitions destroyed")); err != nil {
		return nil, fmt.Errorf("observability: create counter: %w", err)
	}
	if m.destroyDenied, err = meter.Int64Counter("kuroko2.definition.destroy_denied",
		metric.WithDescription("Destroy attempts denied by the lifecycle guard")); err != nil {
		return nil, fmt.Errorf("observability: create counter: %w", err)
	}
	if m.instanceLaunched, err = meter.Int64Counter("kuroko2.instance.launched",
		metric.WithDescription("Instances admitted and launched")); err != nil {
		return nil, fmt.Errorf("observability: create counter: %w", err)
	}
	if m.launchDenied, err = meter.Int64Counter("kuroko2.instance.launch_denied",
		metric.WithDescription("Launches denied by the admission gate")); err != nil {
		return nil, fmt.Errorf("observability: create counter: %w", err)
	}
	if m.instanceFinished, err = meter.Int64Counter("kuroko2.instance.finished",
		metric.WithDescription("Instances finished")); err != nil {
		return nil, fmt.Errorf("observability: create counter: %w", err)
	}
	if m.instanceDuration, err = meter.Float64Histogram("kuroko2.instance.duration",
		metric.WithDescription("Instance duration from launch to finish"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("observability: create histogram: %w", err)
	}
	if m.tokenRecorded, err = meter.Int64Counter("kuroko2.token.recorded",
		metric.WithDescription("Status tokens recorded")); err != nil {
		return nil, fmt.Errorf("observability: create counter: %w", err)
	}
	return m, nil
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Definition lifecycle hooks ──────────────────────

// OnDefinitionCreated implements ext.DefinitionCreated.
func (m *MetricsExtension) OnDefinitionCreated(ctx context.Context, d *definition.Definition) error {
	m.definitionCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("prevent_multi", d.PreventMulti.String()),
	))
	return nil
}

// OnDefinitionUpdated implements ext.DefinitionUpdated.
func (m *MetricsExtension) OnDefinitionUpdated(ctx context.Context, d *definition.Definition) error {
	m.definitionUpdated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("prevent_multi", d.PreventMulti.String()),
	))
	return nil
}

// OnDefinitionDestroyed implements ext.DefinitionDestroyed.
func (m *MetricsExtension) OnDefinitionDestroyed(ctx context.Context, _ *definition.Definition) error {
	m.definitionDestroyed.Add(ctx, 1)
	return nil
}

// OnDestroyDenied implements ext.DestroyDenied.
func (m *MetricsExtension) OnDestroyDenied(ctx context.Context, _ *definition.Definition, _ string) error {
	m.destroyDenied.Add(ctx, 1)
	return nil
}

// ── Launch lifecycle hooks ──────────────────────────

// OnInstanceLaunched implements ext.InstanceLaunched.
func (m *MetricsExtension) OnInstanceLaunched(ctx context.Context, d *definition.Definition, _ *instance.Instance) error {
	m.instanceLaunched.Add(ctx, 1, metric.WithAttributes(
		attribute.String("definition_name", d.Name),
	))
	return nil
}

// OnLaunchDenied implements ext.LaunchDenied.
func (m *MetricsExtension) OnLaunchDenied(ctx context.Context, d *definition.Definition) error {
	m.launchDenied.Add(ctx, 1, metric.WithAttributes(
		attribute.String("definition_name", d.Name),
		attribute.String("prevent_multi", d.PreventMulti.String()),
	))
	return nil
}

// OnInstanceFinished implements ext.InstanceFinished.
func (m *MetricsExtension) OnInstanceFinished(ctx context.Context, _ *instance.Instance, elapsed time.Duration) error {
	m.instanceFinished.Add(ctx, 1)
	m.instanceDuration.Record(ctx, elapsed.Seconds())
	return nil
}

// ── Token lifecycle hooks ───────────────────────────

// OnTokenRecorded implements ext.TokenRecorded.
func (m *MetricsExtension) OnTokenRecorded(ctx context.Context, t *token.Token) error {
	m.tokenRecorded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(t.Status)),
	))
	return nil
}
