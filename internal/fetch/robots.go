package fetch

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RobotsParser fetches, caches and evaluates robots.txt per host
type RobotsParser struct {
	httpClient *HTTPClient
	agent      string
	rules      map[string]*RobotRules
	mu         sync.RWMutex
}

// RobotRules contains the rules that apply to our agent on one host
type RobotRules struct {
	Disallowed []string
	Allowed    []string
	CrawlDelay time.Duration
	Sitemap    []string
}

// NewRobotsParser creates a parser that matches groups against the product
// token of userAgent ("SiteDex/1.0" matches "User-agent: sitedex").
func NewRobotsParser(httpClient *HTTPClient, userAgent string) *RobotsParser {
	return &RobotsParser{
		httpClient: httpClient,
		agent:      productToken(userAgent),
		rules:      make(map[string]*RobotRules),
	}
}

func productToken(userAgent string) string {
	token, _, _ := strings.Cut(strings.TrimSpace(userAgent), "/")
	if i := strings.IndexByte(token, ' '); i >= 0 {
		token = token[:i]
	}
	return strings.ToLower(token)
}

// IsAllowed checks urlStr against the host's robots.txt. An unreachable or
// erroring robots.txt allows everything.
func (r *RobotsParser) IsAllowed(ctx context.Context, urlStr string) (bool, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false, fmt.Errorf("invalid URL: %w", err)
	}

	rules, err := r.getRules(ctx, parsedURL.Host, parsedURL.Scheme)
	if err != nil {
		return true, nil
	}

	path := parsedURL.EscapedPath()
	if path == "" {
		path = "/"
	}
	if parsedURL.RawQuery != "" {
		path += "?" + parsedURL.RawQuery
	}

	for _, pattern := range rules.Disallowed {
		if matchesPattern(path, pattern) {
			for _, allowPattern := range rules.Allowed {
				if matchesPattern(path, allowPattern) && len(allowPattern) > len(pattern) {
					return true, nil
				}
			}
			return false, nil
		}
	}

	return true, nil
}

// GetCrawlDelay returns the crawl delay for a host, 0 if unknown
func (r *RobotsParser) GetCrawlDelay(domain string) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rules, ok := r.rules[domain]; ok {
		return rules.CrawlDelay
	}
	return 0
}

func (r *RobotsParser) getRules(ctx context.Context, domain, scheme string) (*RobotRules, error) {
	r.mu.RLock()
	rules, exists := r.rules[domain]
	r.mu.RUnlock()

	if exists {
		return rules, nil
	}

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", scheme, domain)
	resp, err := r.httpClient.Get(ctx, robotsURL)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		rules = r.parseRobotsTxt(string(resp.Body))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		rules = &RobotRules{}
	default:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	r.mu.Lock()
	r.rules[domain] = rules
	r.mu.Unlock()

	return rules, nil
}

// parseRobotsTxt keeps the group naming our agent if there is one,
// otherwise the "*" group.
func (r *RobotsParser) parseRobotsTxt(content string) *RobotRules {
	wildcard := &RobotRules{}
	specific := &RobotRules{}
	var sitemaps []string
	matchedSpecific := false

	var current []*RobotRules
	inAgentLine := false

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		directive, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		directive = strings.ToLower(strings.TrimSpace(directive))
		value = strings.TrimSpace(value)

		if directive == "user-agent" {
			if !inAgentLine {
				current = nil
			}
			inAgentLine = true
			agent := strings.ToLower(value)
			switch {
			case agent == "*":
				current = append(current, wildcard)
			case r.agent != "" && strings.Contains(agent, r.agent):
				current = append(current, specific)
				matchedSpecific = true
			}
			continue
		}
		inAgentLine = false

		switch directive {
		case "disallow":
			for _, g := range current {
				if value != "" {
					g.Disallowed = append(g.Disallowed, value)
				}
			}
		case "allow":
			for _, g := range current {
				if value != "" {
					g.Allowed = append(g.Allowed, value)
				}
			}
		case "crawl-delay":
			if secs, err := strconv.ParseFloat(value, 64); err == nil && secs >= 0 {
				for _, g := range current {
					g.CrawlDelay = time.Duration(secs * float64(time.Second))
				}
			}
		case "sitemap":
			sitemaps = append(sitemaps, value)
		}
	}

	rules := wildcard
	if matchedSpecific {
		rules = specific
	}
	rules.Sitemap = sitemaps
	return rules
}

// matchesPattern checks if a path matches a robots.txt pattern
func matchesPattern(path, pattern string) bool {
	anchored := strings.HasSuffix(pattern, "$")
	pattern = strings.TrimSuffix(pattern, "$")

	parts := strings.Split(pattern, "*")
	if !strings.HasPrefix(path, parts[0]) {
		return false
	}
	remaining := path[len(parts[0]):]

	for i := 1; i < len(parts); i++ {
		if parts[i] == "" {
			continue
		}
		last := i == len(parts)-1
		if last && anchored {
			return strings.HasSuffix(remaining, parts[i])
		}
		idx := strings.Index(remaining, parts[i])
		if idx == -1 {
			return false
		}
		remaining = remaining[idx+len(parts[i]):]
	}

	if anchored {
		return remaining == "" || strings.HasSuffix(pattern, "*")
	}
	return true
}
