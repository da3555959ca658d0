package scraper

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/aluiziolira/bookcrawl/models"
	"github.com/aluiziolira/bookcrawl/parser"
)

type crawlState struct {
	url   string
	page  int
	books []*models.Book
}

// CrawlPages walks the catalog from startURL, one page at a time, until there is
// no next link or maxPages pages were read (0 means no limit). A page that
// cannot be fetched ends the walk; the records collected so far are returned.
func (s *Scraper) CrawlPages(ctx context.Context, startURL string, maxPages int) []*models.Book {
	state := &crawlState{url: startURL, page: 1}
	limiter := rate.NewLimiter(rate.Every(s.cfg.PageDelay), 1)

	for state.url != "" {
		if err := limiter.Wait(ctx); err != nil {
			slog.Warn("catalog crawl interrupted", slog.Int("page", state.page), slog.Any("error", err))
			break
		}

		page, err := s.fetcher.Fetch(ctx, state.url)
		if err != nil {
			s.recordFailure(state.url, err)
			slog.Error("catalog page fetch failed, stopping",
				slog.String("url", state.url),
				slog.Int("page", state.page),
				slog.String("category", errorTypeLabel(err)),
				slog.Any("error", err),
			)
			break
		}
		atomic.AddInt64(&s.pageCount, 1)
		s.Metrics.IncPages()

		doc, err := parser.ParseDocument(page.Body)
		if err != nil {
			s.recordFailure(state.url, err)
			slog.Error("catalog page unreadable, stopping", slog.String("url", state.url), slog.Any("error", err))
			break
		}

		found := s.extractCards(doc)
		state.books = append(state.books, found...)
		slog.Debug("catalog page crawled",
			slog.Int("page", state.page),
			slog.Int("books", len(found)),
			slog.Int("total", len(state.books)),
		)

		if maxPages > 0 && state.page+1 > maxPages {
			break
		}

		next, err := parser.NextPageURL(doc, page.URL, s.cfg.BaseURL)
		if err != nil {
			slog.Error("next page link unusable, stopping", slog.String("url", state.url), slog.Any("error", err))
			break
		}
		state.url = next
		state.page++
	}

	return state.books
}

func (s *Scraper) extractCards(doc *goquery.Document) []*models.Book {
	cards := parser.ListingCards(doc)
	books := make([]*models.Book, 0, cards.Length())
	scrapedAt := time.Now()

	cards.Each(func(i int, card *goquery.Selection) {
		book, err := parser.ExtractListingCard(card, s.cfg.BaseURL)
		if err != nil {
			slog.Warn("skipping listing card", slog.Int("index", i), slog.Any("error", err))
			return
		}
		book.ScrapedAt = scrapedAt
		books = append(books, book)
	})

	s.Metrics.AddItems(len(books))
	return books
}
