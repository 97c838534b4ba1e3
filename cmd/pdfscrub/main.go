package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/wudi/pdfscrub/observability"
	"github.com/wudi/pdfscrub/redact"
	"github.com/wudi/pdfscrub/scrub"
)

type options struct {
	paths   []string
	rules   string
	suffix  string
	workers int
	timeout time.Duration
	newID   bool
	strict  bool
	verbose bool
	dryRun  bool
	stats   bool
}

// errFailed signals that at least one document could not be redacted.
var errFailed = errors.New("some files failed")

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "pdfscrub: %v\n", err)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, opts, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintf(os.Stderr, "pdfscrub: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("pdfscrub", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: pdfscrub [flags] <pdf>...\n")
		fs.PrintDefaults()
	}
	fs.StringVar(&opts.rules, "rules", "", "YAML rule catalog replacing the built-in one")
	fs.StringVar(&opts.suffix, "suffix", scrub.DefaultSuffix, "Suffix inserted before the extension of each output file")
	fs.IntVar(&opts.workers, "j", 1, "Number of files processed concurrently")
	fs.DurationVar(&opts.timeout, "timeout", 0, "Time limit per file (0 disables)")
	fs.BoolVar(&opts.newID, "new-id", false, "Replace the document file identifier")
	fs.BoolVar(&opts.strict, "strict", false, "Reject damaged input instead of skipping broken objects")
	fs.BoolVar(&opts.verbose, "v", false, "Log every removed key and object")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Report deletions without writing output")
	fs.BoolVar(&opts.stats, "stats", false, "Print stage timings and counters after the run")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return options{}, fmt.Errorf("missing pdf path")
	}
	if opts.workers < 1 {
		return options{}, fmt.Errorf("-j must be at least 1")
	}
	if opts.suffix == "" {
		return options{}, fmt.Errorf("-suffix must not be empty")
	}
	opts.paths = fs.Args()
	return opts, nil
}

func run(ctx context.Context, opts options, stdout, stderr io.Writer) error {
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := observability.NewSlogLogger(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))

	catalog := redact.DefaultCatalog()
	if opts.rules != "" {
		c, err := redact.LoadCatalog(opts.rules)
		if err != nil {
			return fmt.Errorf("load rules: %w", err)
		}
		catalog = c
	}

	scrubOpts := scrub.Options{
		Catalog: catalog,
		Logger:  logger,
		NewID:   opts.newID,
		Strict:  opts.strict,
	}
	var st *stats
	if opts.stats {
		st = newStats()
		defer st.shutdown(context.Background())
		scrubOpts.Tracer = st.tracer()
		scrubOpts.Meter = st.meters.Meter("pdfscrub")
	}
	s := scrub.New(scrubOpts)
	results, err := s.RedactFiles(ctx, opts.paths, scrub.BatchOptions{
		Suffix:  opts.suffix,
		Workers: opts.workers,
		Timeout: opts.timeout,
		DryRun:  opts.dryRun,
	})

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(stdout, "FAIL %s: %v\n", r.Input, r.Err)
			continue
		}
		if opts.dryRun {
			for _, d := range r.Result.Deletions {
				fmt.Fprintf(stdout, "%s: %s = %s\n", r.Input, d, d.Value)
			}
		}
		fmt.Fprintf(stdout, "ok   %s -> %s (%d keys, %d objects removed, %d bytes saved)\n",
			r.Input, r.Output, len(r.Result.Deletions), len(r.Result.Removed), r.Result.BytesSaved)
	}
	if st != nil {
		if err := st.report(context.Background(), stdout); err != nil {
			return err
		}
	}
	if err != nil {
		return err
	}
	if failed > 0 {
		return errFailed
	}
	return nil
}
