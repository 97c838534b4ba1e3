package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the instruments recorded once per redacted document.
type Metrics struct {
	documents metric.Int64Counter
	deletions metric.Int64Counter
	removed   metric.Int64Counter
	saved     metric.Int64Histogram
	duration  metric.Float64Histogram
}

// NewMetrics creates the instruments on meter. A nil meter yields nil
// Metrics, on which Record is a no-op.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		return nil, nil
	}
	m := &Metrics{}
	var err error
	if m.documents, err = meter.Int64Counter("pdfscrub.documents",
		metric.WithDescription("Documents processed, by outcome"),
		metric.WithUnit("1")); err != nil {
		return nil, fmt.Errorf("create documents counter: %w", err)
	}
	if m.deletions, err = meter.Int64Counter("pdfscrub.deletions",
		metric.WithDescription("Keys removed from documents"),
		metric.WithUnit("1")); err != nil {
		return nil, fmt.Errorf("create deletions counter: %w", err)
	}
	if m.removed, err = meter.Int64Counter("pdfscrub.objects.removed",
		metric.WithDescription("Unreachable objects dropped by compaction"),
		metric.WithUnit("1")); err != nil {
		return nil, fmt.Errorf("create removed counter: %w", err)
	}
	if m.saved, err = meter.Int64Histogram("pdfscrub.bytes.saved",
		metric.WithDescription("Input size minus output size"),
		metric.WithUnit("By")); err != nil {
		return nil, fmt.Errorf("create bytes histogram: %w", err)
	}
	if m.duration, err = meter.Float64Histogram("pdfscrub.duration",
		metric.WithDescription("Pipeline duration in milliseconds"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	return m, nil
}

// Outcome values recorded on pdfscrub.documents.
const (
	OutcomeOK     = "ok"
	OutcomeDecode = "decode_error"
	OutcomeEncode = "encode_error"
	OutcomeAbort  = "aborted"
	OutcomeFailed = "error"
)

// Record adds one document's figures. deletions, removed and saved are
// ignored unless outcome is OutcomeOK.
func (m *Metrics) Record(ctx context.Context, outcome string, deletions, removed int, saved int64, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.documents.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(d.Microseconds())/1000, attrs)
	if outcome != OutcomeOK {
		return
	}
	m.deletions.Add(ctx, int64(deletions))
	m.removed.Add(ctx, int64(removed))
	m.saved.Record(ctx, saved)
}
