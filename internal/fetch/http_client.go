package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"
)

const (
	defaultMaxBodyBytes = 10 << 20
	maxRedirects        = 10
)

// HTTPClient performs GET requests with a fixed identity and timing metrics
type HTTPClient struct {
	client        *http.Client
	userAgent     string
	customHeaders map[string]string
	maxBodyBytes  int64
}

// HTTPMetrics contains timing for one request
type HTTPMetrics struct {
	TTFB         time.Duration // Time to first response byte
	DownloadTime time.Duration // Total time including body read
}

// HTTPResponse contains the response and metrics
type HTTPResponse struct {
	StatusCode  int
	Headers     http.Header
	Body        []byte
	ContentType string
	Truncated   bool // Body was cut at the size limit
	Metrics     HTTPMetrics
	FinalURL    string // After following redirects
}

// NewHTTPClient creates a new HTTP client
func NewHTTPClient(userAgent string, timeout time.Duration) *HTTPClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	return &HTTPClient{
		client:        client,
		userAgent:     userAgent,
		customHeaders: make(map[string]string),
		maxBodyBytes:  defaultMaxBodyBytes,
	}
}

// SetCustomHeaders adds headers sent with every request
func (h *HTTPClient) SetCustomHeaders(headers map[string]string) {
	for k, v := range headers {
		h.customHeaders[k] = v
	}
}

// SetMaxBodyBytes caps how much of a response body is read. Values <= 0
// restore the default.
func (h *HTTPClient) SetMaxBodyBytes(n int64) {
	if n <= 0 {
		n = defaultMaxBodyBytes
	}
	h.maxBodyBytes = n
}

// Get performs an HTTP GET request and reads the body up to the size limit.
func (h *HTTPClient) Get(ctx context.Context, url string) (*HTTPResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	for name, value := range h.customHeaders {
		req.Header.Set(name, value)
	}

	var firstByteTime time.Time
	trace := &httptrace.ClientTrace{
		GotFirstResponseByte: func() {
			firstByteTime = time.Now()
		},
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	startTime := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var metrics HTTPMetrics
	if !firstByteTime.IsZero() {
		metrics.TTFB = firstByteTime.Sub(startTime)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	truncated := int64(len(body)) > h.maxBodyBytes
	if truncated {
		body = body[:h.maxBodyBytes]
	}
	metrics.DownloadTime = time.Since(startTime)

	return &HTTPResponse{
		StatusCode:  resp.StatusCode,
		Headers:     resp.Header,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		Truncated:   truncated,
		Metrics:     metrics,
		FinalURL:    resp.Request.URL.String(),
	}, nil
}

// Close releases idle connections
func (h *HTTPClient) Close() {
	h.client.CloseIdleConnections()
}
