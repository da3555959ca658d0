package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/bookcrawl/config"
)

const (
	resultKey    = "fetch_result"
	maxRedirects = 10
)

// Page is a successfully fetched document. Body is UTF-8 text.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
	Charset    string
}

type attemptResult struct {
	status      int
	body        []byte
	contentType string
	finalURL    string
}

// Fetcher performs GET requests with bounded retries on a single shared colly
// collector. It is safe for concurrent use.
type Fetcher struct {
	cfg       *config.Config
	collector *colly.Collector
	headers   http.Header
	metrics   *Metrics

	attempts atomic.Int64
	retries  atomic.Int64
}

// NewFetcher builds a fetcher from cfg. metrics may be nil.
func NewFetcher(cfg *config.Config, metrics *Metrics) (*Fetcher, error) {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: cfg.Workers,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})
	collector.SetRedirectHandler(func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return errTooManyRedirects
		}
		return nil
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Workers,
	}); err != nil {
		return nil, fmt.Errorf("configure limits: %w", err)
	}

	// A declared iso-8859-1 is not trusted; the catalog serves UTF-8 bytes.
	collector.OnResponseHeaders(func(r *colly.Response) {
		if declaredCharset(r.Headers.Get("Content-Type")) == "iso-8859-1" {
			r.Request.ResponseCharacterEncoding = "utf-8"
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		holder, ok := r.Ctx.GetAny(resultKey).(*attemptResult)
		if !ok {
			return
		}
		holder.status = r.StatusCode
		holder.body = r.Body
		holder.contentType = r.Headers.Get("Content-Type")
		holder.finalURL = r.Request.URL.String()
	})

	headers := make(http.Header, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}

	return &Fetcher{
		cfg:       cfg,
		collector: collector,
		headers:   headers,
		metrics:   metrics,
	}, nil
}

// WithTransport swaps the HTTP transport used by the collector.
func (f *Fetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// Attempts returns the number of HTTP attempts issued so far.
func (f *Fetcher) Attempts() int {
	return int(f.attempts.Load())
}

// Retries returns the number of retries scheduled so far.
func (f *Fetcher) Retries() int {
	return int(f.retries.Load())
}

// Fetch retrieves rawURL, retrying server and network failures up to
// MaxRetries times. Client errors and redirect loops are returned at once.
// After the last attempt the last failure is returned.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	attempt := 0
	operation := func() (*Page, error) {
		if err := ctx.Err(); err != nil {
			return nil, backoff.Permanent(err)
		}
		attempt++
		page, err := f.attempt(rawURL)
		if err == nil {
			return page, nil
		}
		if !isRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	notify := func(err error, wait time.Duration) {
		f.retries.Add(1)
		f.metrics.IncRetries()
		slog.Warn("fetch failed, retrying",
			slog.String("url", rawURL),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.Any("error", err),
		)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(f.newBackOff(), uint64(f.cfg.MaxRetries)), ctx)
	page, err := backoff.RetryNotifyWithData(operation, b, notify)
	if err != nil {
		return nil, err
	}
	return page, nil
}

// newBackOff yields min(MinDelay*2^k, 3*MaxDelay) before retry k.
func (f *Fetcher) newBackOff() *backoff.ExponentialBackOff {
	ceiling := 3 * f.cfg.MaxDelay
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(min(f.cfg.MinDelay, ceiling)),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxInterval(ceiling),
		backoff.WithMaxElapsedTime(0),
	)
}

func (f *Fetcher) attempt(rawURL string) (*Page, error) {
	holder := &attemptResult{}
	cctx := colly.NewContext()
	cctx.Put(resultKey, holder)

	f.attempts.Add(1)
	start := time.Now()
	err := f.collector.Request(http.MethodGet, rawURL, nil, cctx, f.headers.Clone())
	f.metrics.ObserveDuration(time.Since(start))

	if err == nil && holder.status == 0 {
		err = errors.New("no response received")
	}
	if err != nil {
		classified := classifyTransportError(err)
		f.metrics.IncRequest(errorTypeLabel(classified))
		return nil, classified
	}

	switch {
	case holder.status == http.StatusOK:
		f.metrics.IncRequest("ok")
		return &Page{
			URL:        holder.finalURL,
			StatusCode: holder.status,
			Body:       holder.body,
			Charset:    responseCharset(holder.contentType),
		}, nil
	case holder.status >= http.StatusInternalServerError:
		f.metrics.IncRequest("server_error")
		return nil, ErrServer{Status: holder.status, Err: fmt.Errorf("GET %s: %s", rawURL, http.StatusText(holder.status))}
	default:
		f.metrics.IncRequest("client_error")
		return nil, ErrClient{Status: holder.status, Err: fmt.Errorf("GET %s: %s", rawURL, http.StatusText(holder.status))}
	}
}

func declaredCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(params["charset"]))
}

// responseCharset reports the charset a body was decoded from. Missing and
// iso-8859-1 declarations are read as UTF-8.
func responseCharset(contentType string) string {
	switch cs := declaredCharset(contentType); cs {
	case "", "iso-8859-1":
		return "utf-8"
	default:
		return cs
	}
}
