// Package fetch retrieves pages over HTTP politely and extracts them.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/masahif/sitedex/internal/parser"
)

// Page is one fetched and extracted document
type Page struct {
	URL               string
	FinalURL          string
	Title             string
	StructuralContent string
	Text              string
}

// Options configures a Fetcher
type Options struct {
	UserAgent     string
	Timeout       time.Duration
	RequestDelay  time.Duration // Minimum spacing between requests to one host
	RespectRobots bool
	Headers       map[string]string
	MaxBodyBytes  int64
	Logger        *slog.Logger
}

// Fetcher retrieves and extracts pages. It is safe for concurrent use.
type Fetcher struct {
	client  *HTTPClient
	limiter *RateLimiter
	robots  *RobotsParser
	parser  *parser.HTMLParser
	logger  *slog.Logger

	delayed sync.Map // hosts whose robots crawl-delay has been applied
}

// New creates a Fetcher
func New(opts Options) *Fetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = "SiteDex/1.0"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	client := NewHTTPClient(opts.UserAgent, opts.Timeout)
	client.SetCustomHeaders(opts.Headers)
	client.SetMaxBodyBytes(opts.MaxBodyBytes)

	f := &Fetcher{
		client:  client,
		limiter: NewRateLimiter(opts.RequestDelay),
		parser:  parser.NewHTMLParser(),
		logger:  opts.Logger,
	}
	if opts.RespectRobots {
		f.robots = NewRobotsParser(client, opts.UserAgent)
	}
	return f
}

// Fetch retrieves rawURL and extracts its structural content and text.
// Every failure is returned as a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, &FetchError{URL: rawURL, Kind: KindParse, Err: fmt.Errorf("invalid URL %q", rawURL)}
	}

	if f.robots != nil {
		allowed, err := f.robots.IsAllowed(ctx, rawURL)
		if err != nil {
			return nil, &FetchError{URL: rawURL, Kind: KindRobots, Err: err}
		}
		if !allowed {
			return nil, &FetchError{URL: rawURL, Kind: KindRobots, Err: ErrDisallowed}
		}
		if _, done := f.delayed.LoadOrStore(u.Host, true); !done {
			if delay := f.robots.GetCrawlDelay(u.Host); delay > 0 {
				f.logger.Debug("Applying robots.txt crawl delay", "host", u.Host, "delay", delay)
				f.limiter.RaiseDomainDelay(u.Host, delay)
			}
		}
	}

	if err := f.limiter.Wait(ctx, rawURL); err != nil {
		return nil, &FetchError{URL: rawURL, Kind: KindNetwork, Err: err}
	}

	resp, err := f.client.Get(ctx, rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Kind: KindNetwork, Err: err}
	}

	f.logger.Debug("Fetched page",
		"url", rawURL,
		"status", resp.StatusCode,
		"ttfb", resp.Metrics.TTFB,
		"download_time", resp.Metrics.DownloadTime,
		"bytes", len(resp.Body))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{URL: rawURL, Kind: KindStatus,
			Err: fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, http.StatusText(resp.StatusCode))}
	}
	if !isHTML(resp.ContentType) {
		return nil, &FetchError{URL: rawURL, Kind: KindContentType,
			Err: fmt.Errorf("%w: %s", ErrNotHTML, resp.ContentType)}
	}
	if resp.Truncated {
		f.logger.Warn("Response body truncated", "url", rawURL, "bytes", len(resp.Body))
	}

	doc, err := f.parser.Extract(resp.FinalURL, resp.Body)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Kind: KindParse, Err: err}
	}

	return &Page{
		URL:               rawURL,
		FinalURL:          resp.FinalURL,
		Title:             doc.Title,
		StructuralContent: doc.StructuralContent,
		Text:              doc.Text,
	}, nil
}

// Close releases idle connections
func (f *Fetcher) Close() {
	f.client.Close()
}

// isHTML accepts a missing content type, HTML and XHTML
func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "html")
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
