// Package scrub drives the redaction pipeline: decode, redact, clean up the
// root and trailer, compact, encode.
package scrub

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/wudi/pdfscrub/ir/raw"
	"github.com/wudi/pdfscrub/observability"
	"github.com/wudi/pdfscrub/optimize"
	"github.com/wudi/pdfscrub/parser"
	"github.com/wudi/pdfscrub/recovery"
	"github.com/wudi/pdfscrub/redact"
	"github.com/wudi/pdfscrub/security"
	"github.com/wudi/pdfscrub/writer"
)

// Options configures a Scrubber. The zero value uses the default catalog,
// lenient decoding and no logging.
type Options struct {
	Catalog *redact.Catalog
	Logger  observability.Logger
	Tracer  observability.Tracer
	// Meter receives per-document counters and histograms when set.
	Meter metric.Meter
	// NewID replaces the trailer file identifier.
	NewID bool
	// Strict fails decoding on the first malformed object instead of
	// skipping it.
	Strict bool
	Limits security.Limits
	// Version overrides the output header version.
	Version string
}

// Result describes one redacted document.
type Result struct {
	Output     []byte
	BytesSaved int64
	Deletions  []redact.Deletion
	Removed    []raw.ObjectRef
	Compaction optimize.Report
	// Warnings lists input damage skipped while decoding.
	Warnings []error
}

// Scrubber is safe for concurrent use; every call builds its own document.
type Scrubber struct {
	opts    Options
	engine  *redact.Engine
	compact *optimize.Optimizer
	metrics *observability.Metrics
}

func New(opts Options) *Scrubber {
	if opts.Catalog == nil {
		opts.Catalog = redact.DefaultCatalog()
	}
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger{}
	}
	if opts.Tracer == nil {
		opts.Tracer = observability.NopTracer()
	}
	opts.Limits = opts.Limits.WithDefaults()
	metrics, err := observability.NewMetrics(opts.Meter)
	if err != nil {
		opts.Logger.Warn("metrics disabled", observability.Error("error", err))
	}
	return &Scrubber{
		opts:    opts,
		engine:  redact.New(redact.Config{Catalog: opts.Catalog, Logger: opts.Logger, NewID: opts.NewID}),
		compact: optimize.New(optimize.Config{Logger: opts.Logger}),
		metrics: metrics,
	}
}

// Redact runs the whole pipeline over input. ctx is checked between stages.
// Every stage runs in a child span of one pdfscrub.redact_document span.
func (s *Scrubber) Redact(ctx context.Context, input []byte) (*Result, error) {
	start := time.Now()
	docCtx, span := s.opts.Tracer.StartSpan(ctx, "pdfscrub.redact_document")
	span.SetTag(observability.TagInputBytes, len(input))
	res, err := s.redact(docCtx, input)
	if err != nil {
		span.SetError(err)
	} else {
		span.SetTag(observability.TagBytesSaved, res.BytesSaved)
	}
	span.Finish()

	var (
		decErr *DecodeError
		encErr *EncodeError
	)
	switch {
	case err == nil:
		s.metrics.Record(ctx, observability.OutcomeOK, len(res.Deletions), len(res.Removed), res.BytesSaved, time.Since(start))
	case errors.As(err, &decErr):
		s.metrics.Record(ctx, observability.OutcomeDecode, 0, 0, 0, time.Since(start))
	case errors.As(err, &encErr):
		s.metrics.Record(ctx, observability.OutcomeEncode, 0, 0, 0, time.Since(start))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.metrics.Record(ctx, observability.OutcomeAbort, 0, 0, 0, time.Since(start))
	default:
		s.metrics.Record(ctx, observability.OutcomeFailed, 0, 0, 0, time.Since(start))
	}
	return res, err
}

func (s *Scrubber) redact(ctx context.Context, input []byte) (*Result, error) {
	doc, warnings, err := s.decode(ctx, input)
	if err != nil {
		return nil, err
	}
	res := &Result{Warnings: warnings}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.stage(ctx, "pdfscrub.redact", func(_ context.Context, span observability.Span) error {
		res.Deletions = s.engine.Redact(doc)
		span.SetTag(observability.TagObjectCount, len(doc.Objects))
		span.SetTag(observability.TagDeletions, len(res.Deletions))
		return nil
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	err = s.stage(ctx, "pdfscrub.cleanup", func(_ context.Context, span observability.Span) error {
		dels, err := s.engine.Cleanup(doc)
		res.Deletions = append(res.Deletions, dels...)
		span.SetTag(observability.TagDeletions, len(dels))
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.compactDocument(ctx, doc, res); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	err = s.stage(ctx, "pdfscrub.encode", func(ctx context.Context, span observability.Span) error {
		var buf bytes.Buffer
		counter := &countingInterceptor{}
		w := (&writer.WriterBuilder{}).WithInterceptor(counter).Build()
		if err := w.Write(ctx, doc, &buf, writer.Config{Version: s.opts.Version}); err != nil {
			return err
		}
		res.Output = buf.Bytes()
		res.BytesSaved = int64(len(input)) - int64(len(res.Output))
		span.SetTag(observability.TagWritten, counter.objects)
		span.SetTag(observability.TagInputBytes, len(input))
		span.SetTag(observability.TagOutputBytes, len(res.Output))
		span.SetTag(observability.TagBytesSaved, res.BytesSaved)
		return nil
	})
	if err != nil {
		var refErr *writer.ReferenceError
		if errors.As(err, &refErr) {
			return nil, &EncodeError{Holder: refErr.Holder, Target: refErr.Target, Err: err}
		}
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, &EncodeError{Err: err}
	}
	return res, nil
}

// compactDocument drops unreachable objects. Its failures are neither decode
// nor encode errors: the document decoded, but its Root was lost on the way.
func (s *Scrubber) compactDocument(ctx context.Context, doc *raw.Document, res *Result) error {
	return s.stage(ctx, "pdfscrub.compact", func(_ context.Context, span observability.Span) error {
		rep, err := s.compact.Compact(doc)
		if err != nil {
			return fmt.Errorf("compact: %w", err)
		}
		res.Compaction = rep
		res.Removed = rep.Removed
		span.SetTag(observability.TagRemoved, len(rep.Removed))
		span.SetTag(observability.TagDangling, rep.Dangling)
		return nil
	})
}

func (s *Scrubber) decode(ctx context.Context, input []byte) (*raw.Document, []error, error) {
	var strategy recovery.Strategy = recovery.NewStrictStrategy()
	var lenient *recovery.LenientStrategy
	if !s.opts.Strict {
		lenient = recovery.NewLenientStrategy()
		strategy = lenient
	}
	p := parser.NewDocumentParser(parser.Config{Recovery: strategy, Limits: s.opts.Limits})

	var doc *raw.Document
	err := s.stage(ctx, "pdfscrub.decode", func(ctx context.Context, span observability.Span) error {
		span.SetTag(observability.TagInputBytes, len(input))
		d, err := p.Parse(ctx, input)
		if err != nil {
			return err
		}
		doc = d
		span.SetTag(observability.TagObjectCount, len(d.Objects))
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, err
		}
		return nil, nil, &DecodeError{Err: err}
	}
	var warnings []error
	if lenient != nil {
		warnings = lenient.Recorded()
		for _, w := range warnings {
			s.opts.Logger.Warn("skipped damaged input", observability.Error("error", w))
		}
	}
	return doc, warnings, nil
}

// stage runs fn inside a span named name, passing it the span's context.
func (s *Scrubber) stage(ctx context.Context, name string, fn func(context.Context, observability.Span) error) error {
	ctx, span := s.opts.Tracer.StartSpan(ctx, name)
	defer span.Finish()
	if err := fn(ctx, span); err != nil {
		span.SetError(err)
		return err
	}
	return nil
}

// countingInterceptor counts the indirect objects a writer emits.
type countingInterceptor struct {
	objects int
	bytes   int64
}

func (c *countingInterceptor) BeforeWrite(context.Context, raw.ObjectRef, raw.Object) error {
	return nil
}

func (c *countingInterceptor) AfterWrite(_ context.Context, _ raw.ObjectRef, _ raw.Object, n int64) error {
	c.objects++
	c.bytes += n
	return nil
}
