package middleware_test

import (
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	mw "github.com/makimoto/kuroko2/middleware"
)

func setupTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return reader, mp
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func decisionAttr(dp metricdata.DataPoint[int64]) string {
	for _, attr := range dp.Attributes.ToSlice() {
		if string(attr.Key) == "decision" {
			return attr.Value.AsString()
		}
	}
	return ""
}

func TestMetrics_RecordsDuration(t *testing.T) {
	reader, mp := setupTestMeter()
	m := mw.MetricsWithMeter(mp.Meter("test"))

	_, _ = m(context.Background(), newTestDefinition(), func(_ context.Context) (bool, error) {
		return true, nil
	})

	rm := collectMetrics(t, reader)
	metric := findMetric(rm, "kuroko2.admission.duration")
	if metric == nil {
		t.Fatal("kuroko2.admission.duration metric not found")
	}

	hist, ok := metric.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("expected Histogram[float64] data type")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points recorded for duration")
	}
	if hist.DataPoints[0].Count != 1 {
		t.Errorf("expected count=1, got %d", hist.DataPoints[0].Count)
	}
}

func TestMetrics_RecordsDecisionOutcome(t *testing.T) {
	tests := []struct {
		name     string
		handler  mw.Handler
		decision string
	}{
		{"admitted", func(_ context.Context) (bool, error) { return true, nil }, "admitted"},
		{"denied", func(_ context.Context) (bool, error) { return false, nil }, "denied"},
		{"error", func(_ context.Context) (bool, error) { return false, errors.New("boom") }, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, mp := setupTestMeter()
			m := mw.MetricsWithMeter(mp.Meter("test"))

			_, _ = m(context.Background(), newTestDefinition(), tt.handler)

			rm := collectMetrics(t, reader)
			metric := findMetric(rm, "kuroko2.admission.decisions")
			if metric == nil {
				t.Fatal("kuroko2.admission.decisions metric not found")
			}

			sum, ok := metric.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatal("expected Sum[int64] data type")
			}
			if len(sum.DataPoints) == 0 {
				t.Fatal("no data points recorded")
			}
			if sum.DataPoints[0].Value != 1 {
				t.Errorf("expected value=1, got %d", sum.DataPoints[0].Value)
			}
			if got := decisionAttr(sum.DataPoints[0]); got != tt.decision {
				t.Errorf("expected decision=%q attribute, got %q", tt.decision, got)
			}
		})
	}
}
