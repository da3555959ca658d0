package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/aluiziolira/bookcrawl/models"
)

var (
	priceRe          = regexp.MustCompile(`[\d.]+`)
	stockAvailableRe = regexp.MustCompile(`(?i)\((\d+)\s+available\)`)
	stockAnyRe       = regexp.MustCompile(`(\d+)`)
)

// ValidateBook ensures the extractor produced a usable record.
func ValidateBook(b *models.Book) error {
	if b == nil {
		return fmt.Errorf("book is nil")
	}
	if strings.TrimSpace(b.Title) == "" {
		return fmt.Errorf("book missing title")
	}
	u, err := url.Parse(b.URL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("book %q has non-absolute url %q", b.Title, b.URL)
	}
	if b.Price < 0 {
		return fmt.Errorf("book %q has negative price", b.Title)
	}
	if b.Rating < 0 || b.Rating > 5 {
		return fmt.Errorf("book %q has rating %d outside 0-5", b.Title, b.Rating)
	}
	if b.Stock < 0 {
		return fmt.Errorf("book %q has negative stock", b.Title)
	}
	return nil
}

// ParsePrice reads the first run of digits and dots in text. Anything that does
// not parse yields 0.
func ParsePrice(text string) float64 {
	match := priceRe.FindString(text)
	if match == "" {
		return 0
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// RatingToNumeric converts the textual rating to a numeric scale.
func RatingToNumeric(rating string) (int, bool) {
	switch strings.TrimSpace(rating) {
	case "Zero":
		return 0, true
	case "One":
		return 1, true
	case "Two":
		return 2, true
	case "Three":
		return 3, true
	case "Four":
		return 4, true
	case "Five":
		return 5, true
	default:
		return 0, false
	}
}

// RatingFromClasses returns the rating named by the first recognised class token.
func RatingFromClasses(classes []string) int {
	for _, class := range classes {
		if rating, ok := RatingToNumeric(class); ok {
			return rating
		}
	}
	return 0
}

// ParseStock extracts the count from "In stock (19 available)". Without that
// pattern the first bare integer in the text is used, which can pick up unrelated
// numbers on unusual markup.
func ParseStock(text string) int {
	match := stockAvailableRe.FindStringSubmatch(text)
	if match == nil {
		match = stockAnyRe.FindStringSubmatch(text)
	}
	if match == nil {
		return 0
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return n
}

// IsInStock reports availability from the element's class tokens or its text.
func IsInStock(classes []string, text string) bool {
	for _, class := range classes {
		if class == "instock" {
			return true
		}
	}
	lower := strings.ToLower(text)
	return strings.Contains(lower, "available") || strings.Contains(lower, "in stock")
}
