// Package parser turns a fetched HTML document into the two representations
// the indexer needs: a cleaned structural HTML fragment used for link
// discovery, and markdown text used for chunking.
package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is the result of extracting one page
type Document struct {
	Title             string
	StructuralContent string
	Text              string
}

// HTMLParser extracts documents. It is safe for concurrent use.
type HTMLParser struct {
	md             *converter.Converter
	allowedSchemes []string
}

// NewHTMLParser creates a parser that keeps http and https links
func NewHTMLParser() *HTMLParser {
	return NewHTMLParserWithSchemes([]string{"https://", "http://"})
}

// NewHTMLParserWithSchemes creates a parser with custom allowed link schemes
func NewHTMLParserWithSchemes(allowedSchemes []string) *HTMLParser {
	if len(allowedSchemes) == 0 {
		allowedSchemes = []string{"https://", "http://"}
	}
	return &HTMLParser{
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		allowedSchemes: allowedSchemes,
	}
}

// Extract parses htmlContent fetched from baseURL. The main content subtree
// (main, then article, then body) is stripped of boilerplate and hidden
// nodes, its anchors are made absolute, and it is rendered both back to HTML
// and to markdown.
func (p *HTMLParser) Extract(baseURL string, htmlContent []byte) (*Document, error) {
	pageURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	doc, err := html.Parse(bytes.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	result := &Document{Title: findTitle(doc)}

	content := findMainContent(doc)
	removeNoise(content)
	p.absolutizeLinks(content, pageURL)

	var buf bytes.Buffer
	if err := html.Render(&buf, content); err != nil {
		return nil, fmt.Errorf("failed to render content: %w", err)
	}
	result.StructuralContent = buf.String()

	text, err := p.md.ConvertString(result.StructuralContent, converter.WithDomain(pageURL.String()))
	if err != nil || strings.TrimSpace(text) == "" {
		text = collectText(content)
	}
	result.Text = strings.TrimSpace(text)

	return result, nil
}

func findTitle(doc *html.Node) string {
	if n := findFirst(doc, atom.Title); n != nil {
		return strings.TrimSpace(collectText(n))
	}
	return ""
}

func findMainContent(doc *html.Node) *html.Node {
	for _, tag := range []atom.Atom{atom.Main, atom.Article, atom.Body} {
		if n := findFirst(doc, tag); n != nil {
			return n
		}
	}
	return doc
}

func findFirst(root *html.Node, tag atom.Atom) *html.Node {
	if root.Type == html.ElementNode && root.DataAtom == tag {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if n := findFirst(c, tag); n != nil {
			return n
		}
	}
	return nil
}

// removeNoise deletes script, style, navigation chrome and hidden elements
// below n, along with comments.
func removeNoise(n *html.Node) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if c.Type == html.CommentNode || (c.Type == html.ElementNode && (isBoilerplate(c) || isHidden(c))) {
			n.RemoveChild(c)
			continue
		}
		removeNoise(c)
	}
}

func isBoilerplate(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Iframe,
		atom.Svg, atom.Nav, atom.Footer, atom.Header, atom.Form:
		return true
	}
	return false
}

func isHidden(n *html.Node) bool {
	for _, attr := range n.Attr {
		switch attr.Key {
		case "hidden":
			return true
		case "aria-hidden":
			if strings.EqualFold(attr.Val, "true") {
				return true
			}
		case "style":
			style := strings.ToLower(strings.ReplaceAll(attr.Val, " ", ""))
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		}
	}
	return false
}

// absolutizeLinks resolves every anchor href against pageURL. Fragment-only
// hrefs are left untouched; hrefs with a disallowed scheme are dropped.
func (p *HTMLParser) absolutizeLinks(n *html.Node, pageURL *url.URL) {
	if n.Type == html.ElementNode && n.DataAtom == atom.A {
		attrs := n.Attr[:0]
		for _, attr := range n.Attr {
			if attr.Key == "href" {
				href := strings.TrimSpace(attr.Val)
				if href == "" || !p.isAllowedScheme(href) {
					continue
				}
				if !strings.HasPrefix(href, "#") {
					abs, err := resolveURL(pageURL, href)
					if err != nil || !p.isAllowedScheme(abs) {
						continue
					}
					href = abs
				}
				attr.Val = href
			}
			attrs = append(attrs, attr)
		}
		n.Attr = attrs
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.absolutizeLinks(c, pageURL)
	}
}

func resolveURL(pageURL *url.URL, href string) (string, error) {
	u, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return pageURL.ResolveReference(u).String(), nil
}

// collectText joins visible text nodes with single spaces
func collectText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// isAllowedScheme checks if the URL has an allowed scheme
func (p *HTMLParser) isAllowedScheme(href string) bool {
	if strings.Contains(href, "://") {
		for _, scheme := range p.allowedSchemes {
			if strings.HasPrefix(strings.ToLower(href), scheme) {
				return true
			}
		}
		return false
	}

	// tel:, mailto:, javascript: and friends
	if strings.Contains(href, ":") && !strings.HasPrefix(href, "/") && !strings.HasPrefix(href, "?") && !strings.HasPrefix(href, "#") {
		for _, scheme := range p.allowedSchemes {
			if strings.HasPrefix(strings.ToLower(href), strings.TrimSuffix(scheme, "://")) {
				return true
			}
		}
		return false
	}

	return true
}
