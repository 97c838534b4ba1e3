package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/wudi/pdfscrub/observability"
)

// stats collects pipeline spans and counters in process and prints a
// summary once the batch is done.
type stats struct {
	reader *sdkmetric.ManualReader
	meters *sdkmetric.MeterProvider
	traces *sdktrace.TracerProvider
	stages *stageTimes
}

func newStats() *stats {
	reader := sdkmetric.NewManualReader()
	stages := &stageTimes{total: map[string]time.Duration{}, count: map[string]int{}}
	return &stats{
		reader: reader,
		meters: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		traces: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(stages)),
		stages: stages,
	}
}

func (s *stats) tracer() observability.Tracer {
	return observability.NewOTelTracer(s.traces.Tracer("pdfscrub"))
}

// report writes stage timings and counter totals to w.
func (s *stats) report(ctx context.Context, w io.Writer) error {
	var rm metricdata.ResourceMetrics
	if err := s.reader.Collect(ctx, &rm); err != nil {
		return fmt.Errorf("collect metrics: %w", err)
	}
	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				name := m.Name
				if v, ok := dp.Attributes.Value(attribute.Key("outcome")); ok {
					name += "{outcome=" + v.AsString() + "}"
				}
				totals[name] += dp.Value
			}
		}
	}
	for _, name := range sortedNames(totals) {
		fmt.Fprintf(w, "%-44s %d\n", name, totals[name])
	}
	s.stages.mu.Lock()
	defer s.stages.mu.Unlock()
	for _, name := range sortedNames(s.stages.total) {
		fmt.Fprintf(w, "%-44s %d spans, %v\n", name, s.stages.count[name], s.stages.total[name].Round(time.Microsecond))
	}
	return nil
}

func (s *stats) shutdown(ctx context.Context) {
	s.traces.Shutdown(ctx)
	s.meters.Shutdown(ctx)
}

// stageTimes is a span processor summing span durations by name.
type stageTimes struct {
	mu    sync.Mutex
	total map[string]time.Duration
	count map[string]int
}

func (p *stageTimes) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *stageTimes) OnEnd(s sdktrace.ReadOnlySpan) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total[s.Name()] += s.EndTime().Sub(s.StartTime())
	p.count[s.Name()]++
}

func (p *stageTimes) Shutdown(context.Context) error   { return nil }
func (p *stageTimes) ForceFlush(context.Context) error { return nil }

func sortedNames[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
