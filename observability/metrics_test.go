package observability

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"
)

func TestNewMetricsNilMeter(t *testing.T) {
	m, err := NewMetrics(nil)
	if err != nil || m != nil {
		t.Fatalf("expected nil metrics, got %v %v", m, err)
	}
	// Record on nil metrics must not panic.
	m.Record(context.Background(), OutcomeOK, 1, 1, 1, time.Millisecond)
}

func TestMetricsRecord(t *testing.T) {
	m, err := NewMetrics(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	if m == nil || m.documents == nil || m.duration == nil || m.saved == nil {
		t.Fatalf("instruments not created")
	}
	m.Record(context.Background(), OutcomeOK, 3, 2, -10, time.Second)
	m.Record(context.Background(), OutcomeDecode, 0, 0, 0, time.Millisecond)
}
