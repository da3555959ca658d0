package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/bookcrawl/models"
	"github.com/aluiziolira/bookcrawl/parser"
)

type detailOutcome struct {
	detail *models.BookDetail
	err    error
}

// Enrich fetches every unique record's detail page on a pool of cfg.Workers
// goroutines and merges what it finds. The result holds one record per unique
// input URL in first-seen order; a later duplicate in books replaces the
// earlier one. Records whose enrichment fails are returned unchanged. The
// input records are not modified.
func (s *Scraper) Enrich(ctx context.Context, books []*models.Book) []*models.Book {
	index := make(map[string]*models.Book, len(books))
	order := make([]string, 0, len(books))
	for _, book := range books {
		if book == nil {
			continue
		}
		if _, seen := index[book.URL]; !seen {
			order = append(order, book.URL)
		}
		index[book.URL] = book.Clone()
	}

	// Each task owns exactly one index entry; the map itself is only read.
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Workers)
	for _, key := range order {
		target := index[key]
		g.Go(func() error {
			s.enrichOne(ctx, target)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*models.Book, 0, len(order))
	for _, key := range order {
		out = append(out, index[key])
	}

	slog.Info("enrichment finished",
		slog.Int("books", len(out)),
		slog.Int64("enriched", atomic.LoadInt64(&s.enrichedCount)),
		slog.Int64("failed", atomic.LoadInt64(&s.enrichFailures)),
	)
	return out
}

// enrichOne waits at most TaskTimeout for the detail of target. A result that
// arrives later is dropped by the abandoned goroutine.
func (s *Scraper) enrichOne(ctx context.Context, target *models.Book) {
	taskCtx, cancel := context.WithTimeout(ctx, s.cfg.TaskTimeout)
	defer cancel()

	detailURL := parser.ResolveDetailURL(target.URL, s.cfg.BaseURL)
	done := make(chan detailOutcome, 1)
	go func() {
		detail, err := s.fetchDetail(taskCtx, detailURL)
		done <- detailOutcome{detail: detail, err: err}
	}()

	var err error
	select {
	case out := <-done:
		if out.err == nil {
			target.Merge(out.detail)
		}
		err = out.err
	case <-taskCtx.Done():
		err = fmt.Errorf("detail task abandoned: %w", taskCtx.Err())
	}

	if err != nil {
		atomic.AddInt64(&s.enrichFailures, 1)
		s.Metrics.IncEnrichment("failed")
		s.recordFailure(detailURL, err)
		slog.Warn("enrichment failed, keeping listing data",
			slog.String("url", detailURL),
			slog.String("category", errorTypeLabel(err)),
			slog.Any("error", err),
		)
		return
	}
	atomic.AddInt64(&s.enrichedCount, 1)
	s.Metrics.IncEnrichment("ok")
}

func (s *Scraper) fetchDetail(ctx context.Context, detailURL string) (*models.BookDetail, error) {
	page, err := s.fetcher.Fetch(ctx, detailURL)
	if err != nil {
		return nil, err
	}
	doc, err := parser.ParseDocument(page.Body)
	if err != nil {
		return nil, err
	}
	detail, err := parser.ExtractDetailPage(doc, detailURL, s.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", detailURL, err)
	}
	return detail, nil
}
