package scraper

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/bookcrawl/models"
)

func baseBook(id int, title string) *models.Book {
	return &models.Book{
		Title:   title,
		Price:   float64(id),
		Rating:  2,
		InStock: true,
		URL:     bookURL(id),
	}
}

func TestEnrichMergesDetails(t *testing.T) {
	cfg := newTestConfig()
	s, transport := newTestScraper(t, cfg)
	transport.RegisterResponder("GET", bookURL(1), htmlResponder(buildDetailPage(1, "Poetry", 22)))
	transport.RegisterResponder("GET", bookURL(2), htmlResponder(buildDetailPage(2, "Travel", 3)))

	in := []*models.Book{baseBook(1, "Book 1"), baseBook(2, "Book 2")}
	out := s.Enrich(context.Background(), in)

	if len(out) != 2 {
		t.Fatalf("books = %d, want 2", len(out))
	}

	first := out[0]
	if first.URL != bookURL(1) {
		t.Fatalf("url changed to %q", first.URL)
	}
	if first.Title != "Book 1 (detail)" {
		t.Fatalf("title = %q, want detail title", first.Title)
	}
	if first.Price != 1.5 || first.Stock != 22 || first.Rating != 4 {
		t.Fatalf("price/stock/rating = %v/%d/%d, want 1.5/22/4", first.Price, first.Stock, first.Rating)
	}
	if first.Category == nil || *first.Category != "Poetry" {
		t.Fatalf("category = %v, want Poetry", first.Category)
	}
	if first.UPC == nil || *first.UPC != "upc-1" {
		t.Fatalf("upc = %v", first.UPC)
	}
	if first.Tax == nil || *first.Tax != 0 {
		t.Fatalf("tax = %v, want 0", first.Tax)
	}
	if first.ImageURL == nil || *first.ImageURL != testBaseURL+"/media/cache/book-1.jpg" {
		t.Fatalf("image url = %v", first.ImageURL)
	}
	if out[1].Category == nil || *out[1].Category != "Travel" {
		t.Fatalf("second category = %v, want Travel", out[1].Category)
	}

	if in[0].Category != nil || in[0].Title != "Book 1" {
		t.Fatalf("input record was modified: %+v", in[0])
	}
	if s.enrichedCount != 2 || s.enrichFailures != 0 {
		t.Fatalf("enriched = %d failed = %d, want 2/0", s.enrichedCount, s.enrichFailures)
	}
}

func TestEnrichKeepsBaseOnFailure(t *testing.T) {
	cfg := newTestConfig()
	cfg.MaxRetries = 0
	s, transport := newTestScraper(t, cfg)
	transport.RegisterResponder("GET", bookURL(1), htmlResponder(buildDetailPage(1, "Poetry", 22)))
	transport.RegisterResponder("GET", bookURL(2), httpmock.NewStringResponder(http.StatusNotFound, ""))
	transport.RegisterResponder("GET", bookURL(3), htmlResponder(`<html><body><h1>No product here</h1></body></html>`))

	in := []*models.Book{baseBook(1, "Book 1"), baseBook(2, "Book 2"), baseBook(3, "Book 3")}
	out := s.Enrich(context.Background(), in)

	if len(out) != 3 {
		t.Fatalf("books = %d, want 3", len(out))
	}
	for _, i := range []int{1, 2} {
		got, want := out[i], in[i]
		if got.Title != want.Title || got.Price != want.Price || got.Stock != want.Stock || got.Category != nil {
			t.Fatalf("failed record %d changed: %+v", i, got)
		}
	}
	if out[0].Category == nil {
		t.Fatalf("successful record was not enriched")
	}
	if s.enrichedCount != 1 || s.enrichFailures != 2 {
		t.Fatalf("enriched = %d failed = %d, want 1/2", s.enrichedCount, s.enrichFailures)
	}
	if got := s.snapshotErrors()["client_error"]; got != 1 {
		t.Fatalf("client errors = %d, want 1", got)
	}
}

func TestEnrichAbandonsSlowTasks(t *testing.T) {
	cfg := newTestConfig()
	cfg.TaskTimeout = 50 * time.Millisecond
	s, transport := newTestScraper(t, cfg)

	detail := buildDetailPage(1, "Poetry", 22)
	transport.RegisterResponder("GET", bookURL(1), func(req *http.Request) (*http.Response, error) {
		time.Sleep(500 * time.Millisecond)
		return httpmock.NewStringResponse(http.StatusOK, detail), nil
	})
	transport.RegisterResponder("GET", bookURL(2), htmlResponder(buildDetailPage(2, "Travel", 3)))

	start := time.Now()
	out := s.Enrich(context.Background(), []*models.Book{baseBook(1, "Book 1"), baseBook(2, "Book 2")})
	if elapsed := time.Since(start); elapsed >= 500*time.Millisecond {
		t.Fatalf("enrich waited %v for an abandoned task", elapsed)
	}

	if out[0].Title != "Book 1" || out[0].Category != nil {
		t.Fatalf("slow record should keep listing data: %+v", out[0])
	}
	if out[1].Category == nil || *out[1].Category != "Travel" {
		t.Fatalf("fast record should be enriched: %+v", out[1])
	}
	if got := s.snapshotErrors()["timeout"]; got != 1 {
		t.Fatalf("timeouts = %d, want 1", got)
	}
}

func TestEnrichPreservesURLSet(t *testing.T) {
	cfg := newTestConfig()
	cfg.MaxRetries = 0
	s, _ := newTestScraper(t, cfg)

	in := []*models.Book{
		baseBook(1, "Book 1"),
		baseBook(2, "Book 2"),
		baseBook(1, "Book 1 again"),
		nil,
		baseBook(3, "Book 3"),
	}
	out := s.Enrich(context.Background(), in)

	want := []string{bookURL(1), bookURL(2), bookURL(3)}
	if len(out) != len(want) {
		t.Fatalf("books = %d, want %d", len(out), len(want))
	}
	for i, url := range want {
		if out[i].URL != url {
			t.Fatalf("book %d url = %q, want %q", i, out[i].URL, url)
		}
	}
	if out[0].Title != "Book 1 again" {
		t.Fatalf("duplicate url should keep the later record, got %q", out[0].Title)
	}
}

func TestEnrichEmptyInput(t *testing.T) {
	cfg := newTestConfig()
	s, transport := newTestScraper(t, cfg)

	if out := s.Enrich(context.Background(), nil); len(out) != 0 {
		t.Fatalf("books = %d, want 0", len(out))
	}
	if got := transport.GetTotalCallCount(); got != 0 {
		t.Fatalf("calls = %d, want 0", got)
	}
}
