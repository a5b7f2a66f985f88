// Command feedpull fetches a plain-text or HTML indicator feed described by
// a JSON config and emits the extracted indicators.
//
// Verbs:
//
//	test   fetch the feed and report how many indicators it yields
//	get    print up to -limit indicators as JSONL (for spot checks)
//	fetch  full run: extract, batch, and submit to the configured sink
//	       (or JSONL on stdout when no sink is configured)
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"secint/internal/config"
	"secint/internal/feed"
	"secint/internal/metrics"
	"secint/internal/metrics/datadog"
	"secint/internal/storage"

	// register all sink backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "secint/internal/storage/all"
)

// backendCloser is the minimal interface used by this command to manage a
// metrics backend.
type backendCloser interface {
	metrics.Backend
	Close() error
}

// deps are external seams for testability.
//
// When to use:
//   - Unit tests: inject fake backend/store factories and capture
//     stdout/stderr.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	BackendFactory func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error)
	StoreFactory   func(ctx context.Context, cfg storage.Config) (storage.Store, error)
	Now            func() time.Time
}

// runConfig holds the parsed flags plus the positional verb.
type runConfig struct {
	Verb       string
	ConfigPath string
	Validate   bool
	Limit      int

	MetricsBackend string
	DDTagsCSV      string
	FlushEvery     time.Duration

	Verbose bool
}

// main is intentionally small: it wires real dependencies and exits with a
// code.
func main() {
	code := run(context.Background(), os.Args[1:], deps{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		BackendFactory: func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error) {
			return datadog.New(ctx, datadog.Options{
				JobName:    jobName,
				Tags:       tags,
				FlushEvery: flushEvery,
			})
		},
		StoreFactory: storage.New,
		Now:          time.Now,
	})
	os.Exit(code)
}

// run executes the feed command and returns an exit code.
//
// Exit codes:
//   - 0: success.
//   - 1: fetch or sink failure at runtime.
//   - 2: configuration/usage error.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.StoreFactory == nil {
		d.StoreFactory = storage.New
	}

	cfg, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	f, err := config.LoadFeed(cfg.ConfigPath)
	if err != nil {
		fmt.Fprintf(d.Stderr, "%v\n", err)
		return 2
	}

	issues := config.ValidateFeed(f)
	for _, iss := range issues {
		fmt.Fprintf(d.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasError(issues) {
		fmt.Fprintf(d.Stderr, "configuration is invalid: %s\n", cfg.ConfigPath)
		return 2
	}
	if cfg.Validate {
		fmt.Fprintf(d.Stderr, "configuration is valid: %s\n", cfg.ConfigPath)
		return 0
	}

	if cfg.MetricsBackend == "datadog" && d.BackendFactory != nil {
		jobName := f.Name
		if jobName == "" {
			jobName = "feedpull"
		}
		tags := append(datadog.ParseTagsCSV(cfg.DDTagsCSV), "tool:feedpull")
		backend, err := d.BackendFactory(ctx, jobName, tags, cfg.FlushEvery)
		if err != nil {
			fmt.Fprintf(d.Stderr, "metrics: datadog backend init failed: %v; using nop\n", err)
		} else {
			metrics.SetBackend(backend)
			defer func() {
				_ = metrics.Flush()
				_ = backend.Close()
			}()
		}
	}

	start := d.Now()
	records, err := collectRecords(ctx, f)
	if err != nil {
		fmt.Fprintf(d.Stderr, "fetch failed: %v\n", err)
		return 1
	}
	metrics.ObserveDuration(metrics.FeedFetchTime, d.Now().Sub(start).Seconds(), "feed:"+f.Name)
	metrics.IncCounter(metrics.FeedRecords, float64(len(records)), "feed:"+f.Name)

	switch cfg.Verb {
	case "test":
		fmt.Fprintf(d.Stderr, "ok: feed %q yielded %d indicators\n", f.Name, len(records))
		return 0

	case "get":
		limit := cfg.Limit
		if limit > len(records) {
			limit = len(records)
		}
		return writeRecords(d.Stdout, d.Stderr, records[:limit])

	case "fetch":
		return submitRecords(ctx, d, f, records, cfg.Verbose)
	}

	// parseFlags already rejected unknown verbs.
	return 2
}

// collectRecords runs the extraction pipeline appropriate for the feed
// format.
func collectRecords(ctx context.Context, f config.Feed) ([]feed.Record, error) {
	c, err := feed.NewClient(f)
	if err != nil {
		return nil, err
	}

	if f.Format == "html" {
		x, err := feed.NewHTMLExtractor(f)
		if err != nil {
			return nil, err
		}
		return feed.CollectHTML(ctx, c, x)
	}

	x, err := feed.NewExtractor(f)
	if err != nil {
		return nil, err
	}
	return feed.Collect(ctx, c, x)
}

// submitRecords batches the records and ships them to the configured sink,
// or prints JSONL when no sink is configured.
func submitRecords(ctx context.Context, d deps, f config.Feed, records []feed.Record, verbose bool) int {
	batchSize := f.BatchSize
	if batchSize == 0 {
		batchSize = config.DefaultBatchSize
	}
	batches := feed.Batches(records, batchSize)
	metrics.IncCounter(metrics.FeedBatches, float64(len(batches)), "feed:"+f.Name)

	if f.Sink.Kind == "" {
		return writeRecords(d.Stdout, d.Stderr, records)
	}

	store, err := d.StoreFactory(ctx, storage.Config{Kind: f.Sink.Kind, DSN: f.Sink.DSN})
	if err != nil {
		fmt.Fprintf(d.Stderr, "sink: open %s: %v\n", f.Sink.Kind, err)
		return 1
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		fmt.Fprintf(d.Stderr, "sink: ensure schema: %v\n", err)
		return 1
	}

	var inserted int64
	for i, batch := range batches {
		n, err := store.InsertIndicators(ctx, f.Name, batch)
		if err != nil {
			fmt.Fprintf(d.Stderr, "sink: batch %d/%d: %v\n", i+1, len(batches), err)
			return 1
		}
		inserted += n
	}

	if verbose {
		fmt.Fprintf(d.Stderr, "fetched %d indicators in %d batches, %d new\n",
			len(records), len(batches), inserted)
	}
	return 0
}

func writeRecords(stdout, stderr io.Writer, records []feed.Record) int {
	enc := json.NewEncoder(stdout)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			fmt.Fprintf(stderr, "write record: %v\n", err)
			return 1
		}
	}
	return 0
}

// parseFlags parses command arguments into a validated runConfig.
//
// Errors:
//   - Returns an error for invalid/missing flags or an unknown verb.
//   - Does not exit the process (caller decides exit code).
func parseFlags(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("feedpull", flag.ContinueOnError)

	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage: %s [flags] <test|get|fetch>\n", fs.Name())
		fs.PrintDefaults()
	}

	var cfg runConfig
	fs.StringVar(&cfg.ConfigPath, "config", "", "feed config JSON path")
	fs.BoolVar(&cfg.Validate, "validate", false, "validate the configuration and exit")
	fs.IntVar(&cfg.Limit, "limit", 10, "max indicators printed by the get verb")
	fs.StringVar(&cfg.MetricsBackend, "metrics-backend", "", "metrics backend to use (datadog, none)")
	fs.StringVar(&cfg.DDTagsCSV, "dd_tags", "", "Extra Datadog tags CSV (e.g. env:prod,service:feeds)")
	fs.DurationVar(&cfg.FlushEvery, "metrics_flush", 1*time.Minute, "Datadog flush interval (default 1m)")
	fs.BoolVar(&cfg.Verbose, "v", false, "enable verbose logs")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return runConfig{}, errors.New(usageBuf.String())
		}
		return runConfig{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}

	if cfg.ConfigPath == "" {
		return runConfig{}, errors.New("missing required -config <path>")
	}
	if cfg.Limit <= 0 {
		return runConfig{}, errors.New("-limit must be > 0")
	}

	rest := fs.Args()
	if cfg.Validate && len(rest) == 0 {
		cfg.Verb = "test"
		return cfg, nil
	}
	if len(rest) != 1 {
		return runConfig{}, errors.New("exactly one verb is required: test, get, or fetch")
	}
	switch rest[0] {
	case "test", "get", "fetch":
		cfg.Verb = rest[0]
	default:
		return runConfig{}, fmt.Errorf("unknown verb %q (want test, get, or fetch)", rest[0])
	}
	return cfg, nil
}
