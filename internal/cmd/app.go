package cmd

import (
	"fmt"
	"log/slog"

	"github.com/masahif/sitedex/internal/cache"
	"github.com/masahif/sitedex/internal/config"
	"github.com/masahif/sitedex/internal/crawler"
	"github.com/masahif/sitedex/internal/embedding"
	"github.com/masahif/sitedex/internal/fetch"
	"github.com/masahif/sitedex/internal/index"
	"github.com/masahif/sitedex/internal/pipeline"
)

// initializeCrawler creates a crawler backed by the network fetcher and the
// page cache. The returned function releases the fetcher's connections.
func initializeCrawler(cfg *config.Config, onPage func(url string, err error)) (*crawler.Crawler, func(), error) {
	headers, err := cfg.Crawl.ParseHeaders()
	if err != nil {
		return nil, nil, err
	}
	if len(headers) > 0 {
		slog.Info("Set custom headers", "count", len(headers))
	}

	fetcher := fetch.New(fetch.Options{
		UserAgent:     cfg.Crawl.UserAgent,
		Timeout:       cfg.Crawl.RequestTimeout,
		RequestDelay:  cfg.Crawl.RequestDelay,
		RespectRobots: cfg.Crawl.RespectRobots,
		Headers:       headers,
	})

	pageCache := cache.New(cfg.Cache.Dir, cache.Options{
		LockTimeout:   cfg.Cache.LockTimeout,
		RetryInterval: cfg.Cache.RetryInterval,
		LeaseTTL:      cfg.Cache.LeaseTTL,
	})

	c, err := crawler.NewCrawler(crawler.Config{
		Concurrency:         cfg.Crawl.Concurrency,
		FollowExternalHosts: cfg.Crawl.FollowExternalHosts,
		IncludePatterns:     cfg.Crawl.IncludePatterns,
		ExcludePatterns:     cfg.Crawl.ExcludePatterns,
		ExcludePaths:        cfg.Crawl.ExcludePaths,
		Limit:               cfg.Crawl.Limit,
		OnPage:              onPage,
	}, fetcher, pageCache, nil)
	if err != nil {
		fetcher.Close()
		return nil, nil, err
	}
	return c, fetcher.Close, nil
}

// initializeManager creates the index manager with the configured embedder
func initializeManager(cfg *config.Config) (*index.Manager, error) {
	embedder, err := embedding.FromConfig(cfg.Embedding, cfg.APIKey())
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return index.NewManager(embedder, index.ManagerOptions{
		Dir:            cfg.Index.Dir,
		Mode:           cfg.Index.Mode,
		M:              cfg.Index.M,
		EfConstruction: cfg.Index.EfConstruction,
		EfSearch:       cfg.Index.EfSearch,
	})
}

// initializePipeline wires crawler and index manager together
func initializePipeline(cfg *config.Config, onPage func(url string, err error)) (*pipeline.Pipeline, *index.Manager, func(), error) {
	manager, err := initializeManager(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	c, closeFetcher, err := initializeCrawler(cfg, onPage)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize crawler: %w", err)
	}
	return pipeline.New(c, manager, nil), manager, closeFetcher, nil
}
