package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func robotsServer(t *testing.T, robotsTxt string, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(robotsTxt))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRobotsParser(t *testing.T) {
	robotsTxt := `
User-agent: *
Disallow: /admin/
Disallow: /private/
Allow: /private/public/
Crawl-delay: 2

User-agent: Googlebot
Disallow: /no-google/

Sitemap: https://example.com/sitemap.xml
`
	server := robotsServer(t, robotsTxt, http.StatusOK)

	httpClient := NewHTTPClient("Test-Crawler/1.0", 30*time.Second)
	defer httpClient.Close()

	parser := NewRobotsParser(httpClient, "Test-Crawler/1.0")
	ctx := context.Background()

	tests := []struct {
		name     string
		url      string
		expected bool
	}{
		{"Root allowed", server.URL + "/", true},
		{"Admin disallowed", server.URL + "/admin/page", false},
		{"Private disallowed", server.URL + "/private/data", false},
		{"Private public allowed", server.URL + "/private/public/page", true},
		{"Other path allowed", server.URL + "/blog/post", true},
		{"Other agent's rule ignored", server.URL + "/no-google/x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed, err := parser.IsAllowed(ctx, tt.url)
			if err != nil {
				t.Errorf("Error checking robots.txt: %v", err)
			}
			if allowed != tt.expected {
				t.Errorf("Expected %v for %s, got %v", tt.expected, tt.url, allowed)
			}
		})
	}

	parsedURL, _ := url.Parse(server.URL)
	if delay := parser.GetCrawlDelay(parsedURL.Host); delay != 2*time.Second {
		t.Errorf("Expected crawl delay of 2s, got %v", delay)
	}
}

func TestRobotsParserSpecificGroupWins(t *testing.T) {
	robotsTxt := `User-agent: *
Disallow: /

User-agent: sitedex
Disallow: /drafts/
`
	server := robotsServer(t, robotsTxt, http.StatusOK)

	httpClient := NewHTTPClient("SiteDex/1.0", 30*time.Second)
	defer httpClient.Close()
	parser := NewRobotsParser(httpClient, "SiteDex/1.0")
	ctx := context.Background()

	if allowed, _ := parser.IsAllowed(ctx, server.URL+"/docs"); !allowed {
		t.Error("Expected /docs to be allowed for the named agent")
	}
	if allowed, _ := parser.IsAllowed(ctx, server.URL+"/drafts/one"); allowed {
		t.Error("Expected /drafts/ to be disallowed for the named agent")
	}
}

func TestRobotsParserMissingOrBroken(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"not found", http.StatusNotFound},
		{"server error", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := robotsServer(t, "User-agent: *\nDisallow: /", tt.status)

			httpClient := NewHTTPClient("Test-Crawler/1.0", 30*time.Second)
			defer httpClient.Close()
			parser := NewRobotsParser(httpClient, "Test-Crawler/1.0")

			allowed, err := parser.IsAllowed(context.Background(), server.URL+"/anything")
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			if !allowed {
				t.Error("Expected everything to be allowed")
			}
		})
	}
}

func TestMatchesPattern(t *testing.T) {
	tests := []struct {
		path     string
		pattern  string
		expected bool
	}{
		{"/admin/page", "/admin/", true},
		{"/admin", "/admin/", false},
		{"/blog/post", "/admin/", false},
		{"/file.pdf", "*.pdf", true},
		{"/path/file.pdf", "*.pdf", true},
		{"/file.doc", "*.pdf", false},
		{"/path/to/file", "/path/*/file", true},
		{"/path/file", "/path/*/file", false},
		{"/exact", "/exact$", true},
		{"/exact/more", "/exact$", false},
		{"/doc.pdf", "/*.pdf$", true},
		{"/doc.pdf?x=1", "/*.pdf$", false},
	}

	for _, tt := range tests {
		t.Run(tt.path+"_"+tt.pattern, func(t *testing.T) {
			if result := matchesPattern(tt.path, tt.pattern); result != tt.expected {
				t.Errorf("matchesPattern(%s, %s) = %v, expected %v",
					tt.path, tt.pattern, result, tt.expected)
			}
		})
	}
}

func TestGetCrawlDelay(t *testing.T) {
	tests := []struct {
		name          string
		robotsTxt     string
		userAgent     string
		expectedDelay time.Duration
	}{
		{"Valid crawl delay", "User-agent: *\nCrawl-delay: 5", "TestBot/1.0", 5 * time.Second},
		{"No crawl delay specified", "User-agent: *\nDisallow: /admin/", "TestBot/1.0", 0},
		{"Invalid crawl delay format", "User-agent: *\nCrawl-delay: invalid", "TestBot/1.0", 0},
		{"Fractional crawl delay", "User-agent: *\nCrawl-delay: 1.5", "TestBot/1.0", 1500 * time.Millisecond},
		{"Specific user agent with delay", "User-agent: *\nDisallow: /\n\nUser-agent: TestCrawler\nCrawl-delay: 3", "TestCrawler/1.0", 3 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := robotsServer(t, tt.robotsTxt, http.StatusOK)
			u, err := url.Parse(server.URL)
			if err != nil {
				t.Fatalf("Failed to parse server URL: %v", err)
			}

			httpClient := NewHTTPClient(tt.userAgent, 30*time.Second)
			defer httpClient.Close()
			parser := NewRobotsParser(httpClient, tt.userAgent)

			_, _ = parser.IsAllowed(context.Background(), server.URL)

			if delay := parser.GetCrawlDelay(u.Host); delay != tt.expectedDelay {
				t.Errorf("GetCrawlDelay() = %v, expected %v", delay, tt.expectedDelay)
			}
		})
	}
}

func TestProductToken(t *testing.T) {
	tests := map[string]string{
		"SiteDex/1.0":                   "sitedex",
		"Mozilla/5.0 (compatible; Bot)": "mozilla",
		"plainbot":                      "plainbot",
		"":                              "",
	}
	for in, want := range tests {
		if got := productToken(in); got != want {
			t.Errorf("productToken(%q) = %q, want %q", in, got, want)
		}
	}
}
