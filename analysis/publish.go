package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aluiziolira/bookcrawl/config"
	"github.com/aluiziolira/bookcrawl/models"
	"github.com/aluiziolira/bookcrawl/storage"
)

// Object store prefixes, one per published view.
const (
	PrefixRaw      = "raw_data/"
	PrefixCleaned  = "cleaned_data/"
	PrefixStats    = "statistics/"
	PrefixAnalysis = "analysis_results/"
	PrefixFiltered = "filtered_data/"
)

// File names of the published views.
const (
	FileRaw         = "all_books.csv"
	FileRawDetailed = "all_books_detailed.csv"
	FileCleaned     = "books_cleaned.csv"
	FileStats       = "book_statistics.csv"
	FileQuality     = "data_quality_report.csv"
	FileFiltered    = "filtered_books.csv"
)

// Uploader persists named payloads and local files. storage.S3Store implements it.
type Uploader interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string, metadata map[string]string) error
	PutFile(ctx context.Context, localPath, key string, metadata map[string]string) error
}

// Report lists what Publish produced.
type Report struct {
	RunID        string
	Summary      *Summary
	Removed      int
	Filtered     int
	LocalFiles   []string
	UploadedKeys []string
	UploadErrors int
}

// Publisher writes the derived views to OutputDir and, with an uploader, to the
// object store. Upload failures are logged and counted but never abort a run.
type Publisher struct {
	cfg      *config.Config
	uploader Uploader
	now      func() time.Time
	runID    string
}

// NewPublisher builds a publisher. A nil uploader keeps every view local.
func NewPublisher(cfg *config.Config, uploader Uploader) *Publisher {
	return &Publisher{
		cfg:      cfg,
		uploader: uploader,
		now:      time.Now,
		runID:    uuid.NewString(),
	}
}

// RunID identifies this publisher's uploads in object metadata.
func (p *Publisher) RunID() string {
	return p.runID
}

// Publish uploads the raw record set, then derives and stores the cleaned,
// statistics, quality report and filtered views. Cleaned output is only written
// when duplicates were removed, filtered output only when it is not empty.
func (p *Publisher) Publish(ctx context.Context, books []*models.Book, detailed bool) (*Report, error) {
	report := &Report{RunID: p.runID}
	if countNonNil(books) == 0 {
		slog.Warn("no records to analyze")
		return report, nil
	}

	rawName := FileRaw
	if detailed {
		rawName = FileRawDetailed
	}
	if p.uploader != nil {
		body, err := BooksTable(books).Bytes()
		if err != nil {
			return nil, fmt.Errorf("encode raw records: %w", err)
		}
		p.putObject(ctx, report, PrefixRaw, rawName, body, p.metadata(map[string]string{
			"records_count": strconv.Itoa(countNonNil(books)),
			"scraped_at":    p.timestamp(),
			"file_type":     "csv",
		}))
	}

	summary := Analyze(books)
	report.Summary = summary
	for field, n := range summary.MissingByField {
		slog.Warn("missing values", slog.String("field", field), slog.Int("count", n))
	}

	unique, removed := Dedupe(books)
	report.Removed = removed
	if removed > 0 {
		slog.Info("removed duplicate records", slog.Int("removed", removed), slog.Int("remaining", len(unique)))
		err := p.writeView(ctx, report, PrefixCleaned, FileCleaned, BooksTable(unique), map[string]string{
			"records_count":      strconv.Itoa(len(unique)),
			"duplicates_removed": strconv.Itoa(removed),
			"cleaned_at":         p.timestamp(),
		})
		if err != nil {
			return nil, err
		}
	}

	err := p.writeView(ctx, report, PrefixStats, FileStats, AggregateByRating(unique), map[string]string{
		"analysis_type":  "aggregated_statistics",
		"analyzed_at":    p.timestamp(),
		"unique_records": strconv.Itoa(len(unique)),
	})
	if err != nil {
		return nil, err
	}

	qualityMeta := map[string]string{
		"analysis_type": strings.TrimSuffix(FileQuality, ".csv"),
		"analyzed_at":   p.timestamp(),
		"total_records": strconv.Itoa(summary.TotalRecords),
	}
	if removed > 0 {
		qualityMeta["unique_records"] = strconv.Itoa(len(unique))
	}
	if err := p.writeView(ctx, report, PrefixAnalysis, FileQuality, QualityReport(summary), qualityMeta); err != nil {
		return nil, err
	}

	filtered := Filter(unique, p.cfg.MinRatingFilter, p.cfg.MaxPriceFilter)
	report.Filtered = len(filtered)
	slog.Info("filtered records",
		slog.Int("min_rating", p.cfg.MinRatingFilter),
		slog.Float64("max_price", p.cfg.MaxPriceFilter),
		slog.Int("kept", len(filtered)),
		slog.Int("total", len(unique)),
	)
	if len(filtered) > 0 {
		err := p.writeView(ctx, report, PrefixFiltered, FileFiltered, BooksTable(filtered), map[string]string{
			"records_count": strconv.Itoa(len(filtered)),
			"filters":       filterLabel(p.cfg.MinRatingFilter, p.cfg.MaxPriceFilter),
			"filtered_at":   p.timestamp(),
		})
		if err != nil {
			return nil, err
		}
	}

	return report, nil
}

// writeView stores table under OutputDir/name and uploads the file.
func (p *Publisher) writeView(ctx context.Context, report *Report, prefix, name string, table Table, extra map[string]string) error {
	path := filepath.Join(p.cfg.OutputDir, name)
	if err := table.WriteFile(path); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	report.LocalFiles = append(report.LocalFiles, path)

	if p.uploader == nil {
		return nil
	}
	key := storage.ObjectKey(prefix, name, p.now())
	if err := p.uploader.PutFile(ctx, path, key, p.metadata(extra)); err != nil {
		report.UploadErrors++
		slog.Warn("upload failed", slog.String("key", key), slog.Any("error", err))
		return nil
	}
	report.UploadedKeys = append(report.UploadedKeys, key)
	return nil
}

func (p *Publisher) putObject(ctx context.Context, report *Report, prefix, name string, body []byte, metadata map[string]string) {
	key := storage.ObjectKey(prefix, name, p.now())
	if err := p.uploader.PutObject(ctx, key, body, storage.ContentTypeCSV, metadata); err != nil {
		report.UploadErrors++
		slog.Warn("upload failed", slog.String("key", key), slog.Any("error", err))
		return
	}
	report.UploadedKeys = append(report.UploadedKeys, key)
}

func (p *Publisher) metadata(extra map[string]string) map[string]string {
	meta := map[string]string{
		"source": p.cfg.BaseURL,
		"run_id": p.runID,
	}
	for k, v := range extra {
		meta[k] = v
	}
	return meta
}

func (p *Publisher) timestamp() string {
	return p.now().Format(time.RFC3339)
}

func filterLabel(minRating int, maxPrice float64) string {
	price := strconv.FormatFloat(maxPrice, 'f', -1, 64)
	if !strings.Contains(price, ".") {
		price += ".0"
	}
	return fmt.Sprintf("rating>=%d, price<=%s", minRating, price)
}
