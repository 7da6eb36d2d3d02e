package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>Page</title></head><body><main><h1>Hello</h1><a href="/other">Other</a></main></body></html>`))
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/docs/page", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/docs/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><a href="sibling">Sibling</a></body></html>`))
	})
	mux.HandleFunc("/private/secret", func(w http.ResponseWriter, r *http.Request) {
		t.Error("robots-disallowed path was requested")
	})
	mux.HandleFunc("/data.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestFetch(t *testing.T) {
	server := newSite(t)
	f := New(Options{UserAgent: "Test-Crawler/1.0", RespectRobots: true})
	defer f.Close()

	page, err := f.Fetch(context.Background(), server.URL+"/page")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if page.Title != "Page" {
		t.Errorf("Expected title 'Page', got '%s'", page.Title)
	}
	if !strings.Contains(page.StructuralContent, `href="`+server.URL+`/other"`) {
		t.Errorf("Expected absolute link in structural content, got %s", page.StructuralContent)
	}
	if !strings.Contains(page.Text, "# Hello") {
		t.Errorf("Expected markdown text, got %s", page.Text)
	}
}

func TestFetchResolvesAgainstFinalURL(t *testing.T) {
	server := newSite(t)
	f := New(Options{})
	defer f.Close()

	page, err := f.Fetch(context.Background(), server.URL+"/moved")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if page.URL != server.URL+"/moved" || page.FinalURL != server.URL+"/docs/page" {
		t.Errorf("Unexpected URLs: %s -> %s", page.URL, page.FinalURL)
	}
	if !strings.Contains(page.StructuralContent, server.URL+"/docs/sibling") {
		t.Errorf("Expected link resolved against final URL, got %s", page.StructuralContent)
	}
}

func TestFetchErrors(t *testing.T) {
	server := newSite(t)
	f := New(Options{UserAgent: "Test-Crawler/1.0", RespectRobots: true, Timeout: 5 * time.Second})
	defer f.Close()

	tests := []struct {
		name    string
		url     string
		kind    Kind
		wrapped error
	}{
		{"robots", server.URL + "/private/secret", KindRobots, ErrDisallowed},
		{"status", server.URL + "/broken", KindStatus, ErrUnexpectedStatus},
		{"not found", server.URL + "/missing", KindStatus, ErrUnexpectedStatus},
		{"content type", server.URL + "/data.json", KindContentType, ErrNotHTML},
		{"invalid url", "not a url", KindParse, nil},
		{"network", "http://127.0.0.1:1/unreachable", KindNetwork, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Fetch(context.Background(), tt.url)
			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("Expected *FetchError, got %v", err)
			}
			if fe.Kind != tt.kind {
				t.Errorf("Expected kind %s, got %s (%v)", tt.kind, fe.Kind, err)
			}
			if tt.wrapped != nil && !errors.Is(err, tt.wrapped) {
				t.Errorf("Expected %v to wrap %v", err, tt.wrapped)
			}
		})
	}
}

func TestIsHTML(t *testing.T) {
	tests := []struct {
		contentType string
		expected    bool
	}{
		{"", true},
		{"text/html", true},
		{"text/html; charset=utf-8", true},
		{"application/xhtml+xml", true},
		{"application/json", false},
		{"text/plain", false},
	}
	for _, tt := range tests {
		if got := isHTML(tt.contentType); got != tt.expected {
			t.Errorf("isHTML(%q) = %v, want %v", tt.contentType, got, tt.expected)
		}
	}
}
