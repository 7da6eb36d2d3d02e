package crawler

import (
	"html"
	"net/url"
	"regexp"
	"strings"
)

var hrefPattern = regexp.MustCompile(`href="([^"]+)"`)

// ExtractLinks returns the href targets in structural content, in document
// order, resolved against baseURL. Fragment-only links and links to a
// fragment of baseURL itself are excluded, fragments are stripped from the
// rest, and anything that is not http(s) is dropped.
func ExtractLinks(structural, baseURL string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	var links []string
	for _, m := range hrefPattern.FindAllStringSubmatch(structural, -1) {
		href := html.UnescapeString(m[1])
		if strings.HasPrefix(href, "#") || strings.HasPrefix(href, baseURL+"#") {
			continue
		}

		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			continue
		}
		abs.Fragment = ""
		abs.RawFragment = ""
		links = append(links, abs.String())
	}
	return links
}
