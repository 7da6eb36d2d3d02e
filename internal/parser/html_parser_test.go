package parser

import (
	"strings"
	"testing"
)

const testPage = `
<!DOCTYPE html>
<html>
<head>
	<title>Test Page Title</title>
	<style>body { color: red; }</style>
</head>
<body>
	<nav><a href="/nav-only">Navigation</a></nav>
	<main>
		<h1>Test Page</h1>
		<p>Some content about widgets.</p>
		<a href="/relative-link">Relative Link</a>
		<a href="https://example.com/absolute-link">Absolute Link</a>
		<a href="#anchor">Anchor Link</a>
		<a href="javascript:void(0)">JavaScript Link</a>
		<a href="mailto:someone@example.com">Mail</a>
		<div style="display: none"><a href="/secret">Hidden</a></div>
		<script>var x = "<a href=\"/from-script\">";</script>
	</main>
	<footer>Copyright</footer>
</body>
</html>
`

func TestExtract(t *testing.T) {
	p := NewHTMLParser()

	doc, err := p.Extract("https://example.com/docs/test-page", []byte(testPage))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if doc.Title != "Test Page Title" {
		t.Errorf("Expected title 'Test Page Title', got '%s'", doc.Title)
	}

	tests := []struct {
		name     string
		fragment string
		present  bool
	}{
		{"relative link resolved", `href="https://example.com/relative-link"`, true},
		{"absolute link kept", `href="https://example.com/absolute-link"`, true},
		{"fragment kept as is", `href="#anchor"`, true},
		{"javascript dropped", "javascript:", false},
		{"mailto dropped", "mailto:", false},
		{"nav outside main", "/nav-only", false},
		{"hidden removed", "/secret", false},
		{"script removed", "/from-script", false},
		{"style removed", "color: red", false},
		{"footer outside main", "Copyright", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := strings.Contains(doc.StructuralContent, tt.fragment); got != tt.present {
				t.Errorf("Contains(%q) = %v, want %v\n%s", tt.fragment, got, tt.present, doc.StructuralContent)
			}
		})
	}

	if !strings.Contains(doc.Text, "# Test Page") {
		t.Errorf("Expected markdown heading in text, got:\n%s", doc.Text)
	}
	if !strings.Contains(doc.Text, "Some content about widgets.") {
		t.Errorf("Expected paragraph in text, got:\n%s", doc.Text)
	}
	if !strings.Contains(doc.Text, "(https://example.com/relative-link)") {
		t.Errorf("Expected markdown link resolved against the page URL, got:\n%s", doc.Text)
	}
	if strings.Contains(doc.Text, "Hidden") {
		t.Errorf("Hidden content leaked into text:\n%s", doc.Text)
	}
}

func TestExtractFallsBackToBody(t *testing.T) {
	p := NewHTMLParser()

	doc, err := p.Extract("https://example.com/", []byte(`<html><body><header>Site</header><p>Body text</p><a href="about">About</a></body></html>`))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if !strings.HasPrefix(doc.StructuralContent, "<body>") {
		t.Errorf("Expected body subtree, got %s", doc.StructuralContent)
	}
	if !strings.Contains(doc.StructuralContent, `href="https://example.com/about"`) {
		t.Errorf("Expected resolved link, got %s", doc.StructuralContent)
	}
	if strings.Contains(doc.Text, "Site") {
		t.Errorf("Header should be stripped, got %s", doc.Text)
	}
}

func TestExtractEmptyDocument(t *testing.T) {
	p := NewHTMLParser()

	doc, err := p.Extract("https://example.com/", []byte(""))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if doc.Text != "" {
		t.Errorf("Expected empty text, got %q", doc.Text)
	}
	if strings.Contains(doc.StructuralContent, "href") {
		t.Errorf("Expected no links, got %s", doc.StructuralContent)
	}
}

func TestExtractInvalidBaseURL(t *testing.T) {
	p := NewHTMLParser()

	if _, err := p.Extract("://bad", []byte("<p>x</p>")); err == nil {
		t.Error("Expected error for invalid base URL")
	}
}

func TestIsAllowedScheme(t *testing.T) {
	p := NewHTMLParser()

	tests := []struct {
		href     string
		expected bool
	}{
		{"https://example.com", true},
		{"HTTP://example.com", true},
		{"ftp://example.com/file", false},
		{"/relative/path", true},
		{"?query=1", true},
		{"#section", true},
		{"tel:+1234567890", false},
		{"mailto:a@b.c", false},
		{"javascript:alert(1)", false},
	}

	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			if got := p.isAllowedScheme(tt.href); got != tt.expected {
				t.Errorf("isAllowedScheme(%q) = %v, want %v", tt.href, got, tt.expected)
			}
		})
	}
}
