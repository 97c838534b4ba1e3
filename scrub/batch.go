package scrub

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wudi/pdfscrub/observability"
)

const DefaultSuffix = ".clean"

// BatchOptions controls RedactFiles.
type BatchOptions struct {
	// Suffix is inserted before the extension of each output name.
	Suffix string
	// Workers bounds how many documents are processed at once. Zero or
	// less means one.
	Workers int
	// Timeout bounds the pipeline of a single document. Zero disables it.
	Timeout time.Duration
	// DryRun runs the pipeline but writes nothing.
	DryRun bool
}

// FileResult is the outcome for one input path. Err is nil on success.
type FileResult struct {
	Input  string
	Output string
	Result *Result
	Err    error
}

// OutputPath returns the path a redacted copy of input is written to:
// "<dir>/<name><suffix>.pdf".
func OutputPath(input, suffix string) string {
	ext := filepath.Ext(input)
	base := strings.TrimSuffix(input, ext)
	if ext == "" {
		ext = ".pdf"
	}
	return base + suffix + ext
}

// RedactFiles redacts every path and writes the result next to it. A
// failing document does not stop the others; its error is reported in its
// FileResult. Results are in input order. The returned error is only set
// when ctx is cancelled.
func (s *Scrubber) RedactFiles(ctx context.Context, paths []string, opts BatchOptions) ([]FileResult, error) {
	if opts.Suffix == "" {
		opts.Suffix = DefaultSuffix
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	results := make([]FileResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = FileResult{Input: path, Err: err}
				return err
			}
			results[i] = s.redactFile(gctx, path, opts)
			return nil
		})
	}
	err := g.Wait()
	return results, err
}

func (s *Scrubber) redactFile(ctx context.Context, path string, opts BatchOptions) FileResult {
	fr := FileResult{Input: path, Output: OutputPath(path, opts.Suffix)}
	log := s.opts.Logger.With(observability.String("file", path))

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	input, err := os.ReadFile(path)
	if err != nil {
		fr.Err = fmt.Errorf("read input: %w", err)
		log.Error("redaction failed", observability.Error("error", fr.Err))
		return fr
	}
	res, err := s.Redact(ctx, input)
	if err != nil {
		fr.Err = err
		log.Error("redaction failed", observability.Error("error", err))
		return fr
	}
	fr.Result = res
	if !opts.DryRun {
		if err := writeAtomic(fr.Output, res.Output); err != nil {
			fr.Err = fmt.Errorf("write output: %w", err)
			log.Error("redaction failed", observability.Error("error", fr.Err))
			return fr
		}
	}
	log.Info("redacted",
		observability.String("output", fr.Output),
		observability.Int("deletions", len(res.Deletions)),
		observability.Int("removed", len(res.Removed)),
		observability.Int64("bytes_saved", res.BytesSaved))
	return fr
}

// writeAtomic writes data to a temporary file in the destination directory
// and renames it over path. The temporary file never outlives a failure.
func writeAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()
	if err = tmp.Chmod(0o644); err != nil {
		return err
	}
	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
