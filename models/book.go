// Package models defines data structures for the crawler.
package models

import (
	"strconv"
	"time"
)

// Book is one catalog item. It starts with the fields found on a listing card
// and is optionally enriched once from its detail page. URL is the natural key
// and is never changed by enrichment.
type Book struct {
	Title   string  `json:"title"`
	Price   float64 `json:"price"`
	Rating  int     `json:"rating"`
	Stock   int     `json:"stock"`
	InStock bool    `json:"in_stock"`
	URL     string  `json:"url"`

	UPC          *string  `json:"upc,omitempty"`
	ProductType  *string  `json:"product_type,omitempty"`
	PriceExclTax *float64 `json:"price_excl_tax,omitempty"`
	PriceInclTax *float64 `json:"price_incl_tax,omitempty"`
	Tax          *float64 `json:"tax,omitempty"`
	Category     *string  `json:"category,omitempty"`
	ImageURL     *string  `json:"image_url,omitempty"`

	ScrapedAt time.Time `json:"scraped_at"`
}

// BookDetail holds the fields extracted from a detail page. A nil field was not
// present on the page and leaves the base record untouched when merged.
type BookDetail struct {
	URL string

	Title   *string
	Price   *float64
	Rating  *int
	Stock   *int
	InStock *bool

	UPC          *string
	ProductType  *string
	PriceExclTax *float64
	PriceInclTax *float64
	Tax          *float64
	Category     *string
	ImageURL     *string
}

// Merge overlays every present detail field onto b.
func (b *Book) Merge(d *BookDetail) {
	if b == nil || d == nil {
		return
	}
	if d.Title != nil {
		b.Title = *d.Title
	}
	if d.Price != nil {
		b.Price = *d.Price
	}
	if d.Rating != nil {
		b.Rating = *d.Rating
	}
	if d.Stock != nil {
		b.Stock = *d.Stock
	}
	if d.InStock != nil {
		b.InStock = *d.InStock
	}
	if d.UPC != nil {
		b.UPC = d.UPC
	}
	if d.ProductType != nil {
		b.ProductType = d.ProductType
	}
	if d.PriceExclTax != nil {
		b.PriceExclTax = d.PriceExclTax
	}
	if d.PriceInclTax != nil {
		b.PriceInclTax = d.PriceInclTax
	}
	if d.Tax != nil {
		b.Tax = d.Tax
	}
	if d.Category != nil {
		b.Category = d.Category
	}
	if d.ImageURL != nil {
		b.ImageURL = d.ImageURL
	}
}

// Clone returns a copy of b that shares no mutable state with it.
func (b *Book) Clone() *Book {
	if b == nil {
		return nil
	}
	c := *b
	c.UPC = clonePtr(b.UPC)
	c.ProductType = clonePtr(b.ProductType)
	c.PriceExclTax = clonePtr(b.PriceExclTax)
	c.PriceInclTax = clonePtr(b.PriceInclTax)
	c.Tax = clonePtr(b.Tax)
	c.Category = clonePtr(b.Category)
	c.ImageURL = clonePtr(b.ImageURL)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// CSVHeader is the column order used by every CSV view of the record set.
var CSVHeader = []string{
	"title", "price", "rating", "stock", "in_stock", "url",
	"upc", "product_type", "price_excl_tax", "price_incl_tax", "tax",
	"category", "image_url", "scraped_at",
}

// CSVRecord renders b in CSVHeader order. Absent optional fields are empty cells.
func (b *Book) CSVRecord() []string {
	scrapedAt := ""
	if !b.ScrapedAt.IsZero() {
		scrapedAt = b.ScrapedAt.Format(time.RFC3339)
	}
	return []string{
		b.Title,
		formatFloat(b.Price),
		strconv.Itoa(b.Rating),
		strconv.Itoa(b.Stock),
		strconv.FormatBool(b.InStock),
		b.URL,
		optString(b.UPC),
		optString(b.ProductType),
		optFloat(b.PriceExclTax),
		optFloat(b.PriceInclTax),
		optFloat(b.Tax),
		optString(b.Category),
		optString(b.ImageURL),
		scrapedAt,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func optString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

// CrawlResult holds the overall result of a crawl.
type CrawlResult struct {
	Books          []*Book
	StartTime      time.Time
	EndTime        time.Time
	TotalCount     int
	ErrorCount     int
	FailedURLs     []string
	ErrorsByType   map[string]int
	RetryCount     int
	RequestCount   int
	PageCount      int
	EnrichedCount  int
	EnrichFailures int
}
