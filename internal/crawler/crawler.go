// Package crawler builds a breadth-first tree of pages reachable from a root
// URL, populating each node from the content cache or the network.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/masahif/sitedex/internal/cache"
)

// ErrInvalidRoot is returned when the root URL is not an absolute http(s) URL
var ErrInvalidRoot = errors.New("invalid root URL")

// Crawler runs bounded breadth-first crawls
type Crawler struct {
	config  Config
	fetcher PageFetcher
	cache   PageCache
	logger  *slog.Logger
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// NewCrawler creates a crawler. pageCache may be nil to always fetch.
func NewCrawler(cfg Config, fetcher PageFetcher, pageCache PageCache, logger *slog.Logger) (*Crawler, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	include, err := compilePatterns(cfg.IncludePatterns)
	if err != nil {
		return nil, fmt.Errorf("invalid include pattern: %w", err)
	}
	exclude, err := compilePatterns(cfg.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("invalid exclude pattern: %w", err)
	}

	for _, p := range cfg.ExcludePaths {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude path %q: %w", p, doublestar.ErrBadPattern)
		}
	}

	return &Crawler{
		config:  cfg,
		fetcher: fetcher,
		cache:   pageCache,
		logger:  logger,
		include: include,
		exclude: exclude,
	}, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

// Crawl builds the tree rooted at rootURL. Nodes deeper than the root at
// depth >= maxDepth are never fetched and never expanded; the root is always
// fetched. Per-page failures are logged and skipped. Only an invalid root or
// a cancelled context is fatal.
//
// Up to Concurrency nodes are taken from the head of the frontier and
// populated in parallel, then expanded one by one in frontier order, so the
// resulting tree does not depend on fetch completion order.
func (c *Crawler) Crawl(ctx context.Context, rootURL string, maxDepth int) (*Tree, error) {
	rootURL = strings.TrimSpace(rootURL)
	root, err := url.Parse(rootURL)
	if err != nil || (root.Scheme != "http" && root.Scheme != "https") || root.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRoot, rootURL)
	}
	if maxDepth < 0 {
		maxDepth = 0
	}

	tree := newTree(rootURL, maxDepth)
	tree.Stats.StartTime = time.Now()
	tree.Stats.Discovered = 1

	c.logger.Info("Starting crawl", "url", rootURL, "max_depth", maxDepth, "concurrency", c.config.Concurrency)

	var statsMu sync.Mutex
	frontier := []int{0}

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("crawl cancelled: %w", err)
		}

		var batch []*Node
		for len(frontier) > 0 && len(batch) < c.config.Concurrency {
			n := tree.nodes[frontier[0]]
			frontier = frontier[1:]
			if n.ID != 0 && n.Depth >= maxDepth {
				tree.Stats.Skipped++
				continue
			}
			batch = append(batch, n)
		}
		if len(batch) == 0 {
			continue
		}

		errs := make([]error, len(batch))
		var g errgroup.Group
		for i, n := range batch {
			g.Go(func() error {
				errs[i] = c.populate(ctx, n, &tree.Stats, &statsMu)
				return nil
			})
		}
		_ = g.Wait()

		for i, n := range batch {
			if c.config.OnPage != nil {
				c.config.OnPage(n.URL, errs[i])
			}
			if errs[i] != nil {
				tree.Stats.Failed++
				c.logger.Warn("Failed to populate page, skipping", "url", n.URL, "depth", n.Depth, "error", errs[i])
				continue
			}
			if n.Depth >= maxDepth || n.StructuralContent == "" {
				continue
			}
			frontier = append(frontier, c.expand(tree, n)...)
		}
	}

	tree.Stats.Duration = time.Since(tree.Stats.StartTime)
	c.logger.Info("Crawl completed",
		"url", rootURL,
		"nodes", tree.Len(),
		"fetched", tree.Stats.Fetched,
		"cached", tree.Stats.Cached,
		"failed", tree.Stats.Failed,
		"duration", tree.Stats.Duration)

	return tree, nil
}

// populate fills n from the cache, or fetches it and stores the result.
// A cache write failure is logged; the fetched content is still used.
func (c *Crawler) populate(ctx context.Context, n *Node, stats *CrawlStats, mu *sync.Mutex) error {
	if c.cache != nil {
		entry, err := c.cache.Load(n.URL)
		switch {
		case err == nil:
			n.Text = entry.Text
			n.StructuralContent = entry.StructuralContent
			mu.Lock()
			stats.Cached++
			mu.Unlock()
			c.logger.Debug("Cache hit", "url", n.URL)
			return nil
		case errors.Is(err, cache.ErrNotFound):
		case errors.Is(err, cache.ErrCorruptEntry):
			c.logger.Warn("Discarding corrupt cache entry", "url", n.URL, "error", err)
			if err := c.cache.Purge(n.URL); err != nil {
				c.logger.Warn("Failed to purge cache entry", "url", n.URL, "error", err)
			}
		default:
			c.logger.Warn("Cache read failed, fetching", "url", n.URL, "error", err)
		}
	}

	page, err := c.fetcher.Fetch(ctx, n.URL)
	if err != nil {
		return err
	}
	n.Title = page.Title
	n.Text = page.Text
	n.StructuralContent = page.StructuralContent

	mu.Lock()
	stats.Fetched++
	mu.Unlock()

	if c.cache != nil {
		entry := &cache.Entry{Text: page.Text, StructuralContent: page.StructuralContent}
		if err := c.cache.Store(ctx, n.URL, entry); err != nil {
			c.logger.Warn("Failed to store page in cache", "url", n.URL, "error", err)
		}
	}
	return nil
}

// expand adds n's unseen, in-scope links as children and returns their ids
func (c *Crawler) expand(tree *Tree, n *Node) []int {
	var added []int
	for _, link := range ExtractLinks(n.StructuralContent, n.URL) {
		if c.config.Limit > 0 && tree.Len() >= c.config.Limit {
			c.logger.Debug("Node limit reached", "limit", c.config.Limit)
			break
		}
		if !c.shouldCrawlURL(tree.Root().URL, link) {
			continue
		}
		if !tree.visited.MarkIfNotVisited(link) {
			continue
		}
		child := tree.addChild(n, link)
		tree.Stats.Discovered++
		added = append(added, child.ID)
	}
	return added
}

// shouldCrawlURL applies the host restriction, include/exclude patterns and
// excluded path globs
func (c *Crawler) shouldCrawlURL(rootURL, target string) bool {
	if !c.config.FollowExternalHosts && !sameHost(rootURL, target) {
		return false
	}

	if len(c.include) > 0 {
		matched := false
		for _, re := range c.include {
			if re.MatchString(target) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, re := range c.exclude {
		if re.MatchString(target) {
			return false
		}
	}

	if len(c.config.ExcludePaths) > 0 {
		u, err := url.Parse(target)
		if err != nil {
			return false
		}
		path := u.Path
		if path == "" {
			path = "/"
		}
		for _, pattern := range c.config.ExcludePaths {
			if matched, err := doublestar.Match(pattern, path); err == nil && matched {
				return false
			}
		}
	}
	return true
}

func sameHost(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(ua.Host, ub.Host)
}
