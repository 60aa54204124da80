package observability_test

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/makimoto/kuroko2/definition"
	"github.com/makimoto/kuroko2/id"
	"github.com/makimoto/kuroko2/instance"
	"github.com/makimoto/kuroko2/observability"
	"github.com/makimoto/kuroko2/token"
)

func newTestExtension(t *testing.T) (*observability.MetricsExtension, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	e, err := observability.NewMetricsExtensionWithMeter(mp.Meter("test"))
	if err != nil {
		t.Fatalf("create extension: %v", err)
	}
	return e, reader
}

func newTestDefinition() *definition.Definition {
	return &definition.Definition{
		ID:           id.NewDefinitionID(),
		Name:         "nightly-batch",
		PreventMulti: definition.PreventMultiWorking,
	}
}

func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: expected Sum[int64], got %T", name, m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestMetricsExtension_Name(t *testing.T) {
	e, _ := newTestExtension(t)
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_DefinitionCounters(t *testing.T) {
	e, reader := newTestExtension(t)
	ctx := context.Background()
	d := newTestDefinition()

	if err := e.OnDefinitionCreated(ctx, d); err != nil {
		t.Fatal(err)
	}
	if err := e.OnDefinitionUpdated(ctx, d); err != nil {
		t.Fatal(err)
	}
	if err := e.OnDestroyDenied(ctx, d, "tokens remain"); err != nil {
		t.Fatal(err)
	}
	if err := e.OnDefinitionDestroyed(ctx, d); err != nil {
		t.Fatal(err)
	}

	for name, want := range map[string]int64{
		"kuroko2.definition.created":        1,
		"kuroko2.definition.updated":        1,
		"kuroko2.definition.destroy_denied": 1,
		"kuroko2.definition.destroyed":      1,
	} {
		if got := counterValue(t, reader, name); got != want {
			t.Errorf("%s = %d, want %d", name, got, want)
		}
	}
}

func TestMetricsExtension_LaunchCounters(t *testing.T) {
	e, reader := newTestExtension(t)
	ctx := context.Background()
	d := newTestDefinition()
	inst := &instance.Instance{ID: id.NewInstanceID(), DefinitionID: d.ID}

	if err := e.OnInstanceLaunched(ctx, d, inst); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := e.OnLaunchDenied(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	if got := counterValue(t, reader, "kuroko2.instance.launched"); got != 1 {
		t.Errorf("launched = %d, want 1", got)
	}
	if got := counterValue(t, reader, "kuroko2.instance.launch_denied"); got != 2 {
		t.Errorf("launch_denied = %d, want 2", got)
	}
}

func TestMetricsExtension_InstanceDuration(t *testing.T) {
	e, reader := newTestExtension(t)
	ctx := context.Background()
	inst := &instance.Instance{ID: id.NewInstanceID()}

	if err := e.OnInstanceFinished(ctx, inst, 2*time.Second); err != nil {
		t.Fatal(err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "kuroko2.instance.duration" {
				continue
			}
			hist, ok := m.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("expected Histogram[float64], got %T", m.Data)
			}
			if len(hist.DataPoints) == 0 || hist.DataPoints[0].Count != 1 {
				t.Error("duration not recorded")
			}
			if hist.DataPoints[0].Sum < 1.9 || hist.DataPoints[0].Sum > 2.1 {
				t.Errorf("duration sum = %v, want ~2s", hist.DataPoints[0].Sum)
			}
			found = true
		}
	}
	if !found {
		t.Fatal("kuroko2.instance.duration metric not found")
	}
}

func TestMetricsExtension_TokenCounter(t *testing.T) {
	e, reader := newTestExtension(t)
	ctx := context.Background()

	for _, status := range token.Statuses {
		tok := &token.Token{ID: id.NewTokenID(), Status: status}
		if err := e.OnTokenRecorded(ctx, tok); err != nil {
			t.Fatal(err)
		}
	}

	if got := counterValue(t, reader, "kuroko2.token.recorded"); got != int64(len(token.Statuses)) {
		t.Errorf("token.recorded = %d, want %d", got, len(token.Statuses))
	}
}
