package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/bookcrawl/config"
	"github.com/aluiziolira/bookcrawl/models"
	"github.com/aluiziolira/bookcrawl/storage"
)

type upload struct {
	key         string
	body        []byte
	contentType string
	metadata    map[string]string
}

type fakeUploader struct {
	mu      sync.Mutex
	uploads []upload
	failOn  string
}

func (f *fakeUploader) PutObject(_ context.Context, key string, body []byte, contentType string, metadata map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != "" && strings.HasPrefix(key, f.failOn) {
		return errors.New("upload rejected")
	}
	f.uploads = append(f.uploads, upload{key: key, body: body, contentType: contentType, metadata: metadata})
	return nil
}

func (f *fakeUploader) PutFile(ctx context.Context, localPath, key string, metadata map[string]string) error {
	body, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	return f.PutObject(ctx, key, body, storage.ContentTypeCSV, metadata)
}

func (f *fakeUploader) byPrefix(prefix string) *upload {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.uploads {
		if strings.HasPrefix(f.uploads[i].key, prefix) {
			return &f.uploads[i]
		}
	}
	return nil
}

func newTestPublisher(t *testing.T, uploader Uploader) (*Publisher, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.OutputDir = t.TempDir()
	p := NewPublisher(cfg, uploader)
	p.now = func() time.Time { return time.Date(2025, 11, 4, 13, 9, 13, 0, time.UTC) }
	return p, cfg
}

func publishFixture() []*models.Book {
	books := []*models.Book{
		book("a", 10, 4, 5),
		book("b", 60, 5, 0),
		book("c", 30, 3, 10),
		book("d", 45, 5, 3),
	}
	return append(books, books[0].Clone())
}

func TestPublishUploadsEveryView(t *testing.T) {
	uploader := &fakeUploader{}
	p, cfg := newTestPublisher(t, uploader)

	report, err := p.Publish(context.Background(), publishFixture(), true)
	require.NoError(t, err)

	assert.Equal(t, p.RunID(), report.RunID)
	assert.Equal(t, 1, report.Removed)
	assert.Equal(t, 2, report.Filtered)
	assert.Zero(t, report.UploadErrors)
	require.NotNil(t, report.Summary)
	assert.Equal(t, 5, report.Summary.TotalRecords)

	assert.ElementsMatch(t, []string{
		"raw_data/20251104_130913_all_books_detailed.csv",
		"cleaned_data/20251104_130913_books_cleaned.csv",
		"statistics/20251104_130913_book_statistics.csv",
		"analysis_results/20251104_130913_data_quality_report.csv",
		"filtered_data/20251104_130913_filtered_books.csv",
	}, report.UploadedKeys)

	for _, name := range []string{FileCleaned, FileStats, FileQuality, FileFiltered} {
		assert.FileExists(t, filepath.Join(cfg.OutputDir, name))
	}
	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, FileRawDetailed))

	raw := uploader.byPrefix(PrefixRaw)
	require.NotNil(t, raw)
	assert.Equal(t, storage.ContentTypeCSV, raw.contentType)
	assert.Equal(t, "5", raw.metadata["records_count"])
	assert.Equal(t, "csv", raw.metadata["file_type"])
	assert.Equal(t, cfg.BaseURL, raw.metadata["source"])
	assert.Equal(t, p.RunID(), raw.metadata["run_id"])
	assert.Equal(t, 6, strings.Count(string(raw.body), "\n"))

	cleaned := uploader.byPrefix(PrefixCleaned)
	require.NotNil(t, cleaned)
	assert.Equal(t, "4", cleaned.metadata["records_count"])
	assert.Equal(t, "1", cleaned.metadata["duplicates_removed"])

	quality := uploader.byPrefix(PrefixAnalysis)
	require.NotNil(t, quality)
	assert.Equal(t, "data_quality_report", quality.metadata["analysis_type"])
	assert.Equal(t, "5", quality.metadata["total_records"])
	assert.Equal(t, "4", quality.metadata["unique_records"])

	filtered := uploader.byPrefix(PrefixFiltered)
	require.NotNil(t, filtered)
	assert.Equal(t, "rating>=4, price<=50.0", filtered.metadata["filters"])
	assert.Equal(t, "2", filtered.metadata["records_count"])
}

func TestPublishSkipsCleanedAndEmptyFiltered(t *testing.T) {
	uploader := &fakeUploader{}
	p, cfg := newTestPublisher(t, uploader)
	cfg.MinRatingFilter = 5
	cfg.MaxPriceFilter = 1

	books := []*models.Book{book("a", 10, 4, 5), book("b", 20, 5, 0)}
	report, err := p.Publish(context.Background(), books, false)
	require.NoError(t, err)

	assert.Zero(t, report.Removed)
	assert.Zero(t, report.Filtered)
	assert.ElementsMatch(t, []string{
		"raw_data/20251104_130913_all_books.csv",
		"statistics/20251104_130913_book_statistics.csv",
		"analysis_results/20251104_130913_data_quality_report.csv",
	}, report.UploadedKeys)
	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, FileCleaned))
	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, FileFiltered))

	quality := uploader.byPrefix(PrefixAnalysis)
	require.NotNil(t, quality)
	_, ok := quality.metadata["unique_records"]
	assert.False(t, ok)
}

func TestPublishWithoutUploader(t *testing.T) {
	p, cfg := newTestPublisher(t, nil)

	report, err := p.Publish(context.Background(), publishFixture(), false)
	require.NoError(t, err)

	assert.Empty(t, report.UploadedKeys)
	assert.Len(t, report.LocalFiles, 4)
	assert.FileExists(t, filepath.Join(cfg.OutputDir, FileStats))
}

func TestPublishContinuesAfterUploadFailure(t *testing.T) {
	uploader := &fakeUploader{failOn: PrefixRaw}
	p, cfg := newTestPublisher(t, uploader)

	report, err := p.Publish(context.Background(), publishFixture(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.UploadErrors)
	assert.Len(t, report.UploadedKeys, 4)
	assert.FileExists(t, filepath.Join(cfg.OutputDir, FileQuality))
}

func TestPublishEmpty(t *testing.T) {
	uploader := &fakeUploader{}
	p, _ := newTestPublisher(t, uploader)

	report, err := p.Publish(context.Background(), nil, true)
	require.NoError(t, err)
	assert.Nil(t, report.Summary)
	assert.Empty(t, uploader.uploads)
}

func TestPublishLocalWriteFailure(t *testing.T) {
	p, cfg := newTestPublisher(t, nil)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	cfg.OutputDir = filepath.Join(blocker, "out")

	_, err := p.Publish(context.Background(), publishFixture(), false)
	require.Error(t, err)
}

func TestFilterLabel(t *testing.T) {
	assert.Equal(t, "rating>=4, price<=50.0", filterLabel(4, 50))
	assert.Equal(t, "rating>=3, price<=19.99", filterLabel(3, 19.99))
}
