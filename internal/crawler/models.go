package crawler

import "time"

// Config holds crawler configuration
type Config struct {
	Concurrency         int      // Pages populated in parallel per batch
	FollowExternalHosts bool     // Follow links to hosts other than the root's
	IncludePatterns     []string // Regex patterns a URL must match one of
	ExcludePatterns     []string // Regex patterns a URL must match none of
	ExcludePaths        []string // Path globs, e.g. "/blog/**" or "/**/*.pdf"
	Limit               int      // Maximum nodes in the tree (0=unlimited)

	// OnPage, when set, is called on the crawl goroutine after each page is
	// populated; err is nil on success.
	OnPage func(url string, err error)
}

// CrawlStats summarises one crawl
type CrawlStats struct {
	Fetched    int // Pages retrieved over the network
	Cached     int // Pages served from the content cache
	Failed     int // Pages whose population failed
	Skipped    int // Nodes at or beyond the depth bound
	Discovered int // Nodes added to the tree, root included
	StartTime  time.Time
	Duration   time.Duration
}
