package parser

import (
	"testing"

	"github.com/aluiziolira/bookcrawl/models"
)

func TestValidateBook(t *testing.T) {
	tests := []struct {
		name    string
		book    *models.Book
		wantErr bool
	}{
		{
			name: "valid book",
			book: &models.Book{
				Title:  "Test Book",
				Price:  10,
				Rating: 5,
				URL:    "http://example.com/catalogue/test_1/index.html",
			},
			wantErr: false,
		},
		{
			name:    "nil book",
			book:    nil,
			wantErr: true,
		},
		{
			name: "missing title",
			book: &models.Book{
				Price: 10,
				URL:   "http://example.com/catalogue/test_1/index.html",
			},
			wantErr: true,
		},
		{
			name: "relative url",
			book: &models.Book{
				Title: "Test Book",
				URL:   "catalogue/test_1/index.html",
			},
			wantErr: true,
		},
		{
			name: "rating out of range",
			book: &models.Book{
				Title:  "Test Book",
				Rating: 6,
				URL:    "http://example.com/catalogue/test_1/index.html",
			},
			wantErr: true,
		},
		{
			name: "negative stock",
			book: &models.Book{
				Title: "Test Book",
				Stock: -1,
				URL:   "http://example.com/catalogue/test_1/index.html",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBook(tt.book)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBook() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		{name: "with currency symbol", input: "£51.77", expected: 51.77},
		{name: "mojibake currency", input: "Â£10.50", expected: 10.50},
		{name: "already clean", input: "25.99", expected: 25.99},
		{name: "integer", input: "£7", expected: 7},
		{name: "empty string", input: "", expected: 0},
		{name: "no digits", input: "free", expected: 0},
		{name: "dots only", input: "..", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParsePrice(tt.input); got != tt.expected {
				t.Errorf("ParsePrice(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestRatingToNumeric(t *testing.T) {
	tests := []struct {
		input    string
		expected int
		ok       bool
	}{
		{input: "Zero", expected: 0, ok: true},
		{input: "One", expected: 1, ok: true},
		{input: "Two", expected: 2, ok: true},
		{input: "Three", expected: 3, ok: true},
		{input: "Four", expected: 4, ok: true},
		{input: "Five", expected: 5, ok: true},
		{input: "Invalid", expected: 0, ok: false},
		{input: "", expected: 0, ok: false},
		{input: "three", expected: 0, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := RatingToNumeric(tt.input)
			if got != tt.expected || ok != tt.ok {
				t.Errorf("RatingToNumeric(%q) = %d, %v, want %d, %v", tt.input, got, ok, tt.expected, tt.ok)
			}
		})
	}
}

func TestRatingFromClasses(t *testing.T) {
	tests := []struct {
		name     string
		classes  []string
		expected int
	}{
		{name: "three", classes: []string{"star-rating", "Three"}, expected: 3},
		{name: "no rating word", classes: []string{"star-rating"}, expected: 0},
		{name: "first match wins", classes: []string{"Two", "Five"}, expected: 2},
		{name: "zero word", classes: []string{"star-rating", "Zero"}, expected: 0},
		{name: "empty", classes: nil, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RatingFromClasses(tt.classes); got != tt.expected {
				t.Errorf("RatingFromClasses(%v) = %d, want %d", tt.classes, got, tt.expected)
			}
		})
	}
}

func TestParseStockAndAvailability(t *testing.T) {
	tests := []struct {
		name        string
		classes     []string
		text        string
		wantStock   int
		wantInStock bool
	}{
		{name: "available count", text: "In stock (19 available)", wantStock: 19, wantInStock: true},
		{name: "case insensitive", text: "in stock (3 AVAILABLE)", wantStock: 3, wantInStock: true},
		{name: "out of stock", text: "Out of stock", wantStock: 0, wantInStock: false},
		{name: "bare integer fallback", text: "Only 4 left", wantStock: 4, wantInStock: false},
		{name: "instock class only", classes: []string{"instock", "availability"}, text: "", wantStock: 0, wantInStock: true},
		{name: "in stock text without count", text: "In stock", wantStock: 0, wantInStock: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseStock(tt.text); got != tt.wantStock {
				t.Errorf("ParseStock(%q) = %d, want %d", tt.text, got, tt.wantStock)
			}
			if got := IsInStock(tt.classes, tt.text); got != tt.wantInStock {
				t.Errorf("IsInStock(%v, %q) = %v, want %v", tt.classes, tt.text, got, tt.wantInStock)
			}
		})
	}
}

func TestNormalizeCardHref(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "../../../a-light-in-the-attic_1000/index.html", expected: "catalogue/a-light-in-the-attic_1000/index.html"},
		{input: "../../a-light-in-the-attic_1000/index.html", expected: "catalogue/a-light-in-the-attic_1000/index.html"},
		{input: "../../../catalogue/foo.html", expected: "catalogue/foo.html"},
		{input: "catalogue/foo.html", expected: "catalogue/foo.html"},
		{input: "foo_1/index.html", expected: "catalogue/foo_1/index.html"},
		{input: "https://books.toscrape.com/catalogue/foo.html", expected: "https://books.toscrape.com/catalogue/foo.html"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeCardHref(tt.input); got != tt.expected {
				t.Errorf("NormalizeCardHref(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestResolveDetailURL(t *testing.T) {
	base := "https://books.toscrape.com"
	tests := []struct {
		input    string
		expected string
	}{
		{input: "https://books.toscrape.com/catalogue/x_1/index.html", expected: "https://books.toscrape.com/catalogue/x_1/index.html"},
		{input: "catalogue/x_1/index.html", expected: "https://books.toscrape.com/catalogue/x_1/index.html"},
		{input: "x_1/index.html", expected: "https://books.toscrape.com/catalogue/x_1/index.html"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ResolveDetailURL(tt.input, base); got != tt.expected {
				t.Errorf("ResolveDetailURL(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCatalogPageURL(t *testing.T) {
	if got := CatalogPageURL("https://books.toscrape.com/", 3); got != "https://books.toscrape.com/catalogue/page-3.html" {
		t.Fatalf("CatalogPageURL = %q", got)
	}
}
