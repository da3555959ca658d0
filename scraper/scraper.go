package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/bookcrawl/config"
	"github.com/aluiziolira/bookcrawl/models"
	"github.com/aluiziolira/bookcrawl/parser"
)

// Scraper crawls the catalog listing and optionally enriches every record from
// its detail page.
type Scraper struct {
	cfg     *config.Config
	fetcher *Fetcher
	Metrics *Metrics

	pageCount      int64
	errorCount     int64
	enrichedCount  int64
	enrichFailures int64

	mu           sync.Mutex
	failedURLs   []string
	errorsByType map[string]int
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	metrics := NewMetrics()
	fetcher, err := NewFetcher(cfg, metrics)
	if err != nil {
		return nil, err
	}

	return &Scraper{
		cfg:          cfg,
		fetcher:      fetcher,
		Metrics:      metrics,
		errorsByType: make(map[string]int),
	}, nil
}

// Fetcher exposes the shared fetcher.
func (s *Scraper) Fetcher() *Fetcher {
	return s.fetcher
}

// Probe fetches the first catalog page once to check the site is reachable.
func (s *Scraper) Probe(ctx context.Context) error {
	target := parser.CatalogPageURL(s.cfg.BaseURL, 1)
	if _, err := s.fetcher.Fetch(ctx, target); err != nil {
		return fmt.Errorf("probe %s: %w", target, err)
	}
	return nil
}

// Run walks the catalog and, when detailed is set, enriches the collected
// records once pagination has finished. A cancelled ctx returns whatever was
// collected together with the context error.
func (s *Scraper) Run(ctx context.Context, maxPages int, detailed bool) (*models.CrawlResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	books := s.CrawlPages(ctx, parser.CatalogPageURL(s.cfg.BaseURL, 1), maxPages)
	slog.Info("catalog crawl finished",
		slog.Int("books", len(books)),
		slog.Int64("pages", atomic.LoadInt64(&s.pageCount)),
	)

	if detailed && len(books) > 0 && ctx.Err() == nil {
		books = s.Enrich(ctx, books)
	}

	result := &models.CrawlResult{
		Books:          books,
		StartTime:      start,
		EndTime:        time.Now(),
		TotalCount:     len(books),
		ErrorCount:     int(atomic.LoadInt64(&s.errorCount)),
		FailedURLs:     s.snapshotFailedURLs(),
		ErrorsByType:   s.snapshotErrors(),
		RetryCount:     s.fetcher.Retries(),
		RequestCount:   s.fetcher.Attempts(),
		PageCount:      int(atomic.LoadInt64(&s.pageCount)),
		EnrichedCount:  int(atomic.LoadInt64(&s.enrichedCount)),
		EnrichFailures: int(atomic.LoadInt64(&s.enrichFailures)),
	}

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("crawl interrupted: %w", err)
	}
	return result, nil
}

func (s *Scraper) recordFailure(target string, err error) {
	atomic.AddInt64(&s.errorCount, 1)
	category := errorTypeLabel(err)

	s.mu.Lock()
	s.errorsByType[category]++
	s.failedURLs = append(s.failedURLs, target)
	s.mu.Unlock()

	s.Metrics.IncError(category)
}

func (s *Scraper) snapshotFailedURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.failedURLs))
	copy(out, s.failedURLs)
	return out
}

func (s *Scraper) snapshotErrors() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		out[k] = v
	}
	return out
}
