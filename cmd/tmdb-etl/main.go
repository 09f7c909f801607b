// Command tmdb-etl loads today's trending TMDB movies into the configured
// warehouse. Configuration comes from the environment, optionally seeded from
// a dotenv file; see internal/config.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tmdbetl/internal/config"
	"tmdbetl/internal/extract"
	"tmdbetl/internal/load"
	"tmdbetl/internal/metrics"
	"tmdbetl/internal/metrics/datadog"
	"tmdbetl/internal/metrics/prompush"
	"tmdbetl/internal/pipeline"
	"tmdbetl/internal/storage"
	"tmdbetl/internal/tmdb"

	// register every warehouse backend; WAREHOUSE_KIND picks one at runtime.
	_ "tmdbetl/internal/storage/all"
)

const usage = "usage: tmdb-etl [-env file] [-validate] [-v]"

// runner is the part of *pipeline.Runner the CLI drives.
type runner interface {
	Run(ctx context.Context) error
}

// metricsBackend is a backend that must be closed to stop its flush loop.
type metricsBackend interface {
	Close() error
}

// pushBackend submits buffered metrics on Flush.
type pushBackend interface {
	Flush() error
}

// appDeps are the side-effecting collaborators of runMain.
type appDeps struct {
	loadConfig  func(envFile string) (config.Config, error)
	initMetrics func(ctx context.Context, jobName string, m config.Metrics) (func(), error)
	newRunner   func(ctx context.Context, cfg config.Config, logger *log.Logger) (runner, func() error, error)
}

// Seams for initMetrics tests.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		return datadog.NewBackend(ctx, opts)
	}
	newPushBackend = func(jobName, gatewayURL string) (pushBackend, error) {
		return prompush.NewBackend(jobName, gatewayURL)
	}
	setMetricsBackend = func(b any) {
		if mb, ok := b.(metrics.Backend); ok {
			metrics.SetBackend(mb)
		}
	}
	logPrintf = log.Printf
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, appDeps{
		loadConfig:  config.Load,
		initMetrics: initMetrics,
		newRunner:   newRunner,
	})
	stop()
	os.Exit(code)
}

// runMain returns the process exit code: 0 on success, 1 on configuration or
// runtime failure, 2 on usage errors.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, d appDeps) int {
	fs := flag.NewFlagSet("tmdb-etl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	envFile := fs.String("env", "", "dotenv file loaded before reading the environment")
	validate := fs.Bool("validate", false, "validate the configuration and exit")
	verbose := fs.Bool("v", false, "log every pipeline step")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, usage)
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments %q\n%s\n", fs.Args(), usage)
		return 2
	}

	cfg, err := d.loadConfig(strings.TrimSpace(*envFile))
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		fmt.Fprintln(stderr, "configuration is invalid")
		return 1
	}
	if *validate {
		fmt.Fprintln(stdout, "configuration is valid")
		return 0
	}

	cleanup, err := d.initMetrics(ctx, cfg.JobName, cfg.Metrics)
	if err != nil {
		fmt.Fprintf(stderr, "init metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	logOut := io.Discard
	if *verbose {
		logOut = stderr
	}
	logger := log.New(logOut, "", log.LstdFlags)

	r, closeWarehouse, err := d.newRunner(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "init: %v\n", err)
		return 1
	}
	defer func() {
		if err := closeWarehouse(); err != nil {
			fmt.Fprintf(stderr, "close warehouse: %v\n", err)
		}
	}()

	start := time.Now()
	if err := r.Run(ctx); err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}
	logger.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	fmt.Fprintln(stdout, "ok")
	return 0
}

// newRunner wires the TMDB client, the warehouse and the pipeline.
func newRunner(ctx context.Context, cfg config.Config, logger *log.Logger) (runner, func() error, error) {
	client, err := tmdb.NewClient(tmdb.Options{
		BaseURL: cfg.TMDB.BaseURL,
		APIKey:  cfg.TMDB.APIKey,
		Timeout: cfg.TMDB.Timeout,
		JobName: cfg.JobName,
	})
	if err != nil {
		return nil, nil, err
	}

	w := cfg.Warehouse
	wh, err := storage.New(ctx, storage.Config{
		Kind:            w.Kind,
		DSN:             w.DSN,
		ProjectID:       w.ProjectID,
		Location:        w.Location,
		CredentialsFile: w.CredentialsFile,
	})
	if err != nil {
		return nil, nil, err
	}

	r := &pipeline.Runner{
		Extractor: &extract.Extractor{Fetcher: client, Workers: cfg.TMDB.Workers},
		Loader: &load.Loader{
			Warehouse: wh,
			Dataset:   w.Dataset,
			JobName:   cfg.JobName,
			Logger:    logger,
		},
		JobName: cfg.JobName,
		Logger:  logger,
	}
	return r, wh.Close, nil
}

// initMetrics installs the configured metrics backend. The returned cleanup
// is never nil and flushes or closes the backend; its errors are logged.
func initMetrics(ctx context.Context, jobName string, m config.Metrics) (func(), error) {
	nop := func() {}

	switch m.Backend {
	case "", "none", "noop":
		return nop, nil

	case "datadog", "dd":
		// Submissions outlive a cancelled run so the final flush still happens.
		b, err := newDatadogBackend(context.WithoutCancel(ctx), datadog.Options{
			JobName:    jobName,
			Tags:       datadog.ParseTagsCSV(m.Tags),
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			return nop, fmt.Errorf("datadog: %w", err)
		}
		setMetricsBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				logPrintf("metrics: datadog close error: %v", err)
			}
		}, nil

	case "pushgateway", "prom", "prometheus":
		b, err := newPushBackend(jobName, m.PushgatewayURL)
		if err != nil {
			return nop, fmt.Errorf("pushgateway: %w", err)
		}
		setMetricsBackend(b)
		return func() {
			if err := b.Flush(); err != nil {
				logPrintf("metrics: pushgateway flush error: %v", err)
			}
		}, nil

	default:
		logPrintf("metrics: unknown backend %q (want none|datadog|pushgateway); metrics disabled", m.Backend)
		return nop, nil
	}
}
