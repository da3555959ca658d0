package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/bookcrawl/analysis"
	"github.com/aluiziolira/bookcrawl/config"
	"github.com/aluiziolira/bookcrawl/models"
	"github.com/aluiziolira/bookcrawl/pipeline"
	"github.com/aluiziolira/bookcrawl/scraper"
	"github.com/aluiziolira/bookcrawl/storage"
)

// outputTimeout bounds writing and uploading once the crawl has stopped, so an
// interrupted run still saves what it collected.
const outputTimeout = 2 * time.Minute

func main() {
	configPath := flag.String("config", "", "Config file (yaml, json, toml or .env)")
	flag.Int("pages", 0, "Maximum catalog pages to crawl (0 = all)")
	flag.Bool("detailed", true, "Enrich every book from its detail page")
	flag.Int("workers", 20, "Concurrent detail page fetches")
	flag.Int("max-retries", 3, "Maximum retries per URL")
	flag.Duration("min-delay", time.Second, "Initial retry backoff")
	flag.Duration("max-delay", 3*time.Second, "Retry backoff is capped at three times this value")
	flag.Duration("timeout", 10*time.Second, "HTTP request timeout")
	flag.Duration("task-timeout", 10*time.Second, "Time to wait for one detail page")
	flag.Duration("page-delay", 100*time.Millisecond, "Pause between catalog pages")
	flag.String("base-url", "https://books.toscrape.com", "Base URL to crawl")
	flag.String("output-dir", "files", "Directory for CSV and JSONL output")
	flag.String("format", "csv", "Raw output format: csv, json, or dual")
	flag.Int("min-rating", 4, "Minimum rating kept by the filtered view")
	flag.Float64("max-price", 50.0, "Maximum price kept by the filtered view")
	flag.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	flag.String("log-format", "text", "Log format: text or json")
	flag.String("log-file", "", "Also append logs to this file")
	flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := applyFlags(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid flags: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(logger)

	if err := run(cfg); err != nil {
		slog.Error("run failed", slog.Any("error", err))
		closeLog()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	slog.Info("starting crawl",
		slog.String("base_url", cfg.BaseURL),
		slog.Int("pages", cfg.MaxPages),
		slog.Bool("detailed", cfg.Detailed),
		slog.Int("workers", cfg.Workers),
	)

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		return fmt.Errorf("initialising scraper: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, finishing in-flight work")
	}()

	metricsServer := startMetricsServer(cfg.MetricsAddr, s.Metrics)
	defer shutdownMetricsServer(metricsServer)

	if err := s.Probe(ctx); err != nil {
		return fmt.Errorf("site unreachable: %w", err)
	}

	startTime := time.Now()
	result, err := s.Run(ctx, cfg.MaxPages, cfg.Detailed)
	if err != nil {
		slog.Warn("crawl stopped early, saving partial results", slog.Any("error", err))
	}

	outCtx, cancel := context.WithTimeout(context.Background(), outputTimeout)
	defer cancel()

	rawName := strings.TrimSuffix(analysis.FileRaw, ".csv")
	if cfg.Detailed {
		rawName = strings.TrimSuffix(analysis.FileRawDetailed, ".csv")
	}
	written, err := writeRaw(outCtx, cfg, rawName, result.Books)
	if err != nil {
		return err
	}

	store := openStore(outCtx, cfg)
	var uploader analysis.Uploader
	if store != nil {
		uploader = store
	}

	report, err := analysis.NewPublisher(cfg, uploader).Publish(outCtx, result.Books, cfg.Detailed)
	if err != nil {
		return fmt.Errorf("publish analysis: %w", err)
	}

	if store != nil {
		listStored(outCtx, store)
	}

	printSummary(result, report, time.Since(startTime), cfg.OutputDir, written)
	return nil
}

// applyFlags copies explicitly set flags over the loaded configuration.
func applyFlags(cfg *config.Config) error {
	var err error
	flag.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		getter, ok := f.Value.(flag.Getter)
		if !ok {
			return
		}
		value := getter.Get()
		switch f.Name {
		case "pages":
			cfg.MaxPages = value.(int)
		case "detailed":
			cfg.Detailed = value.(bool)
		case "workers":
			cfg.Workers = value.(int)
		case "max-retries":
			cfg.MaxRetries = value.(int)
		case "min-delay":
			cfg.MinDelay = value.(time.Duration)
		case "max-delay":
			cfg.MaxDelay = value.(time.Duration)
		case "timeout":
			cfg.Timeout = value.(time.Duration)
		case "task-timeout":
			cfg.TaskTimeout = value.(time.Duration)
		case "page-delay":
			cfg.PageDelay = value.(time.Duration)
		case "base-url":
			cfg.BaseURL = value.(string)
		case "output-dir":
			cfg.OutputDir = value.(string)
		case "format":
			cfg.OutputFormat = strings.ToLower(value.(string))
		case "min-rating":
			cfg.MinRatingFilter = value.(int)
		case "max-price":
			cfg.MaxPriceFilter = value.(float64)
		case "metrics-addr":
			cfg.MetricsAddr = value.(string)
		case "log-format":
			cfg.LogFormat = strings.ToLower(value.(string))
		case "log-file":
			cfg.LogFile = value.(string)
		case "v":
			cfg.Verbose = value.(bool)
		case "config":
		default:
			err = fmt.Errorf("unhandled flag %q", f.Name)
		}
	})
	return err
}

func writeRaw(ctx context.Context, cfg *config.Config, baseName string, books []*models.Book) (pipeline.Stats, error) {
	writer, err := pipeline.NewOutputWriter(cfg, baseName)
	if err != nil {
		return pipeline.Stats{}, fmt.Errorf("creating writer: %w", err)
	}

	p := pipeline.NewPipeline(ctx, writer, cfg)
	p.Start(1)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	processErr := p.Process(books...)
	closeErr := p.Close()
	writerErr := writer.Close()
	if err := errors.Join(processErr, closeErr, writerErr); err != nil {
		return pipeline.Stats{}, fmt.Errorf("writing raw output: %w", err)
	}
	if err := writer.Validate(); err != nil {
		return pipeline.Stats{}, fmt.Errorf("output validation failed: %w", err)
	}
	return p.Stats(), nil
}

// openStore returns nil when uploads are not configured or the bucket cannot
// be reached; the run then keeps every output local.
func openStore(ctx context.Context, cfg *config.Config) *storage.S3Store {
	if !cfg.S3Enabled() {
		slog.Warn("object store credentials not set, outputs stay local")
		return nil
	}

	store, err := storage.NewS3Store(ctx, storage.OptionsFromConfig(cfg))
	if err != nil {
		slog.Warn("object store disabled", slog.Any("error", err))
		return nil
	}
	if err := store.EnsureBucket(ctx); err != nil {
		slog.Warn("object store disabled", slog.String("bucket", store.Bucket()), slog.Any("error", err))
		return nil
	}
	return store
}

func listStored(ctx context.Context, store *storage.S3Store) {
	prefixes := []string{
		analysis.PrefixRaw,
		analysis.PrefixCleaned,
		analysis.PrefixStats,
		analysis.PrefixAnalysis,
		analysis.PrefixFiltered,
	}
	for _, prefix := range prefixes {
		objects, err := store.List(ctx, prefix)
		if err != nil {
			slog.Warn("list objects failed", slog.String("prefix", prefix), slog.Any("error", err))
			continue
		}
		for _, obj := range objects {
			slog.Debug("stored object",
				slog.String("key", obj.Key),
				slog.Int64("bytes", obj.Size),
				slog.Time("modified", obj.LastModified),
			)
		}
		slog.Info("stored objects", slog.String("prefix", prefix), slog.Int("count", len(objects)))
	}
}

func startMetricsServer(addr string, metrics *scraper.Metrics) *http.Server {
	if addr == "" || metrics == nil {
		return nil
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func shutdownMetricsServer(server *http.Server) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

func printSummary(result *models.CrawlResult, report *analysis.Report, duration time.Duration, outputDir string, written pipeline.Stats) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Crawl complete")

	fmt.Printf("  Books:         %d\n", result.TotalCount)
	fmt.Printf("  Written:       %d\n", written.Processed)
	fmt.Printf("  Pages:         %d\n", result.PageCount)
	if result.EnrichedCount > 0 || result.EnrichFailures > 0 {
		fmt.Printf("  Enriched:      %d (%d failed)\n", result.EnrichedCount, result.EnrichFailures)
	}
	successRate := 0.0
	if result.RequestCount > 0 {
		successRate = float64(result.RequestCount-result.ErrorCount) / float64(result.RequestCount) * 100
	}
	fmt.Printf("  Requests:      %d (%.2f%% ok)\n", result.RequestCount, successRate)
	fmt.Printf("  Retries:       %d\n", result.RetryCount)
	fmt.Printf("  Errors:        %d\n", result.ErrorCount)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	if written.Invalid > 0 || written.Duplicates > 0 {
		fmt.Printf("  Rejected:      %d invalid, %d duplicate URLs\n", written.Invalid, written.Duplicates)
	}
	if report != nil && report.Summary != nil {
		fmt.Printf("  Duplicates:    %d\n", report.Removed)
		fmt.Printf("  Mean price:    £%.2f\n", report.Summary.Price.Mean)
		fmt.Printf("  Filtered:      %d\n", report.Filtered)
		fmt.Printf("  Uploaded:      %d (%d failed)\n", len(report.UploadedKeys), report.UploadErrors)
	}
	fmt.Printf("  Duration:      %v\n", duration.Round(time.Millisecond))
	fmt.Printf("  Output dir:    %s\n", outputDir)
	fmt.Println(separator)
}

func newLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stdout
	closeFn := func() {}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(os.Stdout, f)
		closeFn = func() { f.Close() }
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    cfg.LogFile != "" || !isTerminal(os.Stdout),
		})
	}
	return slog.New(handler), closeFn, nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
