// Package parser turns catalog HTML into book records.
//
// The site renders the same fields with different markup on listing cards and
// on detail pages, so every lookup below tries the detail-specific selector
// first and falls back to the listing one. Extraction never panics on missing
// elements: absent fields take their defaults, and only a missing structural
// anchor (card heading/link, detail product block) is reported as an error.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/bookcrawl/models"
)

var (
	// ErrMissingHeading is returned for a card without an "h3 a" title link.
	ErrMissingHeading = errors.New("card has no heading link")
	// ErrMissingHref is returned for a card whose title link has no target.
	ErrMissingHref = errors.New("card link has no href")
	// ErrMissingProduct is returned for a detail page without a product block.
	ErrMissingProduct = errors.New("detail page has no product block")
)

var (
	listingStockSelectors = []string{"p.instock.availability", "p.availability"}
	detailStockSelectors  = []string{".product_main p.availability", "p.instock.availability", "p.availability"}
	detailPriceSelectors  = []string{".product_main p.price_color", "p.price_color"}
	detailRatingSelectors = []string{".product_main p.star-rating", "p.star-rating"}
)

// ParseDocument parses an HTML body.
func ParseDocument(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// ListingCards selects every product card on a catalog page.
func ListingCards(doc *goquery.Document) *goquery.Selection {
	cards := doc.Find("article.product_pod")
	if cards.Length() == 0 {
		cards = doc.Find("li.col-xs-6 article")
	}
	return cards
}

// ExtractListingCard builds the base record for one catalog card.
func ExtractListingCard(card *goquery.Selection, baseURL string) (*models.Book, error) {
	link := card.Find("h3").First().Find("a").First()
	if link.Length() == 0 {
		return nil, ErrMissingHeading
	}

	title, ok := link.Attr("title")
	if !ok {
		title = strings.TrimSpace(link.Text())
	}

	href := strings.TrimSpace(link.AttrOr("href", ""))
	if href == "" {
		return nil, ErrMissingHref
	}
	bookURL, err := resolve(baseURL, NormalizeCardHref(href))
	if err != nil {
		return nil, fmt.Errorf("resolve card link: %w", err)
	}

	stockElem := first(card, listingStockSelectors...)
	stockText := strings.TrimSpace(stockElem.Text())

	return &models.Book{
		Title:   title,
		Price:   ParsePrice(strings.TrimSpace(card.Find("p.price_color").First().Text())),
		Rating:  RatingFromClasses(classes(card.Find("p.star-rating").First())),
		Stock:   ParseStock(stockText),
		InStock: stockElem.Length() > 0 && IsInStock(classes(stockElem), stockText),
		URL:     bookURL,
	}, nil
}

// ExtractDetailPage reads a book's detail page. The returned detail always
// carries pageURL, whatever links the page itself contains.
func ExtractDetailPage(doc *goquery.Document, pageURL, baseURL string) (*models.BookDetail, error) {
	product := doc.Find("div.product_main").First()
	if product.Length() == 0 {
		return nil, ErrMissingProduct
	}

	detail := &models.BookDetail{URL: pageURL}

	if heading := product.Find("h1").First(); heading.Length() > 0 {
		detail.Title = ptr(strings.TrimSpace(heading.Text()))
	}

	detail.Price = ptr(ParsePrice(strings.TrimSpace(first(doc.Selection, detailPriceSelectors...).Text())))

	stockElem := first(doc.Selection, detailStockSelectors...)
	stockText := strings.TrimSpace(stockElem.Text())
	detail.Stock = ptr(ParseStock(stockText))
	detail.InStock = ptr(stockElem.Length() > 0 && IsInStock(classes(stockElem), stockText))

	detail.Rating = ptr(RatingFromClasses(classes(first(doc.Selection, detailRatingSelectors...))))

	doc.Find("table.table.table-striped tr").Each(func(_ int, row *goquery.Selection) {
		header := row.Find("th").First()
		value := row.Find("td").First()
		if header.Length() == 0 || value.Length() == 0 {
			return
		}
		applyAttribute(detail, strings.ToLower(strings.TrimSpace(header.Text())), strings.TrimSpace(value.Text()))
	})

	if crumbs := doc.Find("ul.breadcrumb").First().Find("a"); crumbs.Length() >= 3 {
		detail.Category = ptr(strings.TrimSpace(crumbs.Eq(2).Text()))
	}

	if src := strings.TrimSpace(doc.Find("div.item.active").First().Find("img").First().AttrOr("src", "")); src != "" {
		imageURL, err := resolve(baseURL, strings.ReplaceAll(src, "../..", ""))
		if err != nil {
			return nil, fmt.Errorf("resolve image: %w", err)
		}
		detail.ImageURL = ptr(imageURL)
	}

	return detail, nil
}

// applyAttribute maps one product-information row onto the detail. The tax row
// is matched last so the two price rows, which also mention tax, win first.
func applyAttribute(detail *models.BookDetail, label, value string) {
	switch {
	case strings.Contains(label, "upc"):
		detail.UPC = ptr(value)
	case strings.Contains(label, "product type"):
		detail.ProductType = ptr(value)
	case strings.Contains(label, "price (excl. tax)"):
		detail.PriceExclTax = ptr(ParsePrice(value))
	case strings.Contains(label, "price (incl. tax)"):
		detail.PriceInclTax = ptr(ParsePrice(value))
	case strings.Contains(label, "tax") && !strings.Contains(label, "number"):
		detail.Tax = ptr(ParsePrice(value))
	}
}

// NextPageURL returns the absolute address of the following catalog page, or ""
// on the last page. Links already shaped like catalog paths resolve against the
// site root, anything else against the current page.
func NextPageURL(doc *goquery.Document, pageURL, baseURL string) (string, error) {
	href := strings.TrimSpace(doc.Find("li.next").First().Find("a").First().AttrOr("href", ""))
	if href == "" {
		return "", nil
	}
	base := pageURL
	if strings.HasPrefix(href, cataloguePrefix) {
		base = baseURL
	}
	next, err := resolve(base, href)
	if err != nil {
		return "", fmt.Errorf("resolve next page: %w", err)
	}
	return next, nil
}

func first(scope *goquery.Selection, selectors ...string) *goquery.Selection {
	for _, selector := range selectors {
		if found := scope.Find(selector).First(); found.Length() > 0 {
			return found
		}
	}
	return scope.Find(selectors[len(selectors)-1]).First()
}

func classes(sel *goquery.Selection) []string {
	return strings.Fields(sel.AttrOr("class", ""))
}

func ptr[T any](v T) *T {
	return &v
}
