// Package analysis derives the cleaned, aggregated and filtered views of a
// crawled record set.
package analysis

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/aluiziolira/bookcrawl/models"
)

// OutlierMultiplier scales the interquartile range when flagging price outliers.
const OutlierMultiplier = 1.5

// PriceStats describes the price column. Std is NaN with fewer than two records.
type PriceStats struct {
	Mean     float64
	Median   float64
	Min      float64
	Max      float64
	Std      float64
	Outliers int
}

// Summary is the result of Analyze. Counts of missing values and duplicates
// refer to the input; every other figure is computed on the de-duplicated set.
type Summary struct {
	TotalRecords  int
	UniqueRecords int
	Duplicates    int

	MissingValues  int
	MissingByField map[string]int

	Price              PriceStats
	RatingDistribution map[int]int

	InStock        int
	InStockPercent float64
	TotalStock     int
	AverageStock   float64
}

// Ratings returns the ratings present in the distribution, ascending.
func (s *Summary) Ratings() []int {
	ratings := make([]int, 0, len(s.RatingDistribution))
	for rating := range s.RatingDistribution {
		ratings = append(ratings, rating)
	}
	sort.Ints(ratings)
	return ratings
}

// Dedupe drops records whose every column except the scrape time repeats an
// earlier record. It returns the kept records in input order and the number removed.
func Dedupe(books []*models.Book) ([]*models.Book, int) {
	seen := make(map[string]struct{}, len(books))
	unique := make([]*models.Book, 0, len(books))
	for _, book := range books {
		if book == nil {
			continue
		}
		key := rowKey(book)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, book)
	}
	return unique, countNonNil(books) - len(unique)
}

func rowKey(book *models.Book) string {
	record := book.CSVRecord()
	return strings.Join(record[:len(record)-1], "\x1f")
}

// Analyze computes the statistics reported for a crawl. It returns nil for an
// empty input.
func Analyze(books []*models.Book) *Summary {
	total := countNonNil(books)
	if total == 0 {
		return nil
	}

	byField := missingValues(books)
	missing := 0
	for _, n := range byField {
		missing += n
	}

	unique, removed := Dedupe(books)
	summary := &Summary{
		TotalRecords:       total,
		UniqueRecords:      len(unique),
		Duplicates:         removed,
		MissingValues:      missing,
		MissingByField:     byField,
		RatingDistribution: make(map[int]int),
	}

	prices := make([]float64, 0, len(unique))
	for _, book := range unique {
		prices = append(prices, book.Price)
		summary.RatingDistribution[book.Rating]++
		if book.InStock {
			summary.InStock++
		}
		summary.TotalStock += book.Stock
	}
	summary.Price = priceStats(prices)

	n := float64(len(unique))
	summary.InStockPercent = float64(summary.InStock) / n * 100
	summary.AverageStock = float64(summary.TotalStock) / n
	return summary
}

// optionalFields lists the detail-only columns. A column counts towards missing
// values only when at least one record carries it.
var optionalFields = []struct {
	name    string
	present func(*models.Book) bool
}{
	{"upc", func(b *models.Book) bool { return b.UPC != nil }},
	{"product_type", func(b *models.Book) bool { return b.ProductType != nil }},
	{"price_excl_tax", func(b *models.Book) bool { return b.PriceExclTax != nil }},
	{"price_incl_tax", func(b *models.Book) bool { return b.PriceInclTax != nil }},
	{"tax", func(b *models.Book) bool { return b.Tax != nil }},
	{"category", func(b *models.Book) bool { return b.Category != nil }},
	{"image_url", func(b *models.Book) bool { return b.ImageURL != nil }},
}

func missingValues(books []*models.Book) map[string]int {
	total := countNonNil(books)
	missing := make(map[string]int)
	for _, field := range optionalFields {
		present := 0
		for _, book := range books {
			if book != nil && field.present(book) {
				present++
			}
		}
		if present > 0 && present < total {
			missing[field.name] = total - present
		}
	}
	return missing
}

func priceStats(prices []float64) PriceStats {
	sorted := append([]float64(nil), prices...)
	sort.Float64s(sorted)

	stats := PriceStats{
		Mean:   mean(sorted),
		Median: quantile(sorted, 0.5),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Std:    sampleStd(sorted),
	}

	q1 := quantile(sorted, 0.25)
	q3 := quantile(sorted, 0.75)
	iqr := q3 - q1
	lower := q1 - OutlierMultiplier*iqr
	upper := q3 + OutlierMultiplier*iqr
	for _, p := range sorted {
		if p < lower || p > upper {
			stats.Outliers++
		}
	}
	return stats
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// quantile interpolates linearly between the closest ranks of sorted.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

func sampleStd(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	m := mean(values)
	sq := 0.0
	for _, v := range values {
		sq += (v - m) * (v - m)
	}
	return math.Sqrt(sq / float64(len(values)-1))
}

// RatingStatsHeader is the column order of AggregateByRating.
var RatingStatsHeader = []string{
	"rating", "price_mean", "price_median", "price_min", "price_max",
	"count", "price_std", "in_stock_sum", "stock_sum",
}

// AggregateByRating groups books by rating, one row per rating in ascending order.
// Values are rounded to two decimals; price_std is empty for single-record groups.
func AggregateByRating(books []*models.Book) Table {
	groups := make(map[int][]*models.Book)
	for _, book := range books {
		if book == nil {
			continue
		}
		groups[book.Rating] = append(groups[book.Rating], book)
	}

	ratings := make([]int, 0, len(groups))
	for rating := range groups {
		ratings = append(ratings, rating)
	}
	sort.Ints(ratings)

	table := Table{Header: RatingStatsHeader}
	for _, rating := range ratings {
		group := groups[rating]
		prices := make([]float64, 0, len(group))
		inStock, stock := 0, 0
		for _, book := range group {
			prices = append(prices, book.Price)
			if book.InStock {
				inStock++
			}
			stock += book.Stock
		}
		stats := priceStats(prices)
		table.Rows = append(table.Rows, []string{
			strconv.Itoa(rating),
			formatRounded(stats.Mean),
			formatRounded(stats.Median),
			formatRounded(stats.Min),
			formatRounded(stats.Max),
			strconv.Itoa(len(group)),
			formatRounded(stats.Std),
			strconv.Itoa(inStock),
			strconv.Itoa(stock),
		})
	}
	return table
}

// QualityReportHeader is the column order of QualityReport.
var QualityReportHeader = []string{"category", "metric", "value"}

// QualityReport flattens a summary into category/metric/value rows.
func QualityReport(s *Summary) Table {
	table := Table{Header: QualityReportHeader}
	if s == nil {
		return table
	}
	add := func(category, metric, value string) {
		table.Rows = append(table.Rows, []string{category, metric, value})
	}

	add("General", "Total records", strconv.Itoa(s.TotalRecords))
	if s.Duplicates > 0 {
		add("General", "Unique records after cleaning", strconv.Itoa(s.UniqueRecords))
	}

	add("Data quality", "Missing values", strconv.Itoa(s.MissingValues))
	add("Data quality", "Full duplicates", strconv.Itoa(s.Duplicates))
	if s.Duplicates > 0 {
		add("Data quality", "Removed duplicates", strconv.Itoa(s.Duplicates))
	}
	if s.Price.Outliers > 0 {
		add("Data quality", "Price outliers", strconv.Itoa(s.Price.Outliers))
	}

	add("Prices", "Mean price (£)", fmt.Sprintf("%.2f", s.Price.Mean))
	add("Prices", "Min price (£)", fmt.Sprintf("%.2f", s.Price.Min))
	add("Prices", "Max price (£)", fmt.Sprintf("%.2f", s.Price.Max))

	add("Availability", "Books in stock", strconv.Itoa(s.InStock))
	add("Availability", "Total copies in stock", strconv.Itoa(s.TotalStock))
	add("Availability", "Average copies per book", fmt.Sprintf("%.1f", s.AverageStock))

	for _, rating := range s.Ratings() {
		count := s.RatingDistribution[rating]
		percent := float64(count) / float64(s.UniqueRecords) * 100
		add("Rating distribution", fmt.Sprintf("Rating %d", rating), fmt.Sprintf("%d books (%.1f%%)", count, percent))
	}
	return table
}

// Filter keeps books rated at least minRating and priced at most maxPrice.
func Filter(books []*models.Book, minRating int, maxPrice float64) []*models.Book {
	filtered := make([]*models.Book, 0)
	for _, book := range books {
		if book == nil {
			continue
		}
		if book.Rating >= minRating && book.Price <= maxPrice {
			filtered = append(filtered, book)
		}
	}
	return filtered
}

func formatRounded(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

func countNonNil(books []*models.Book) int {
	n := 0
	for _, book := range books {
		if book != nil {
			n++
		}
	}
	return n
}
