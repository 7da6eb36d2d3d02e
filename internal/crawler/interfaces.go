package crawler

import (
	"context"

	"github.com/masahif/sitedex/internal/cache"
	"github.com/masahif/sitedex/internal/fetch"
)

// PageFetcher retrieves and extracts one page
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Page, error)
}

// PageCache is the durable content store consulted before fetching
type PageCache interface {
	Load(url string) (*cache.Entry, error)
	Store(ctx context.Context, url string, entry *cache.Entry) error
	Purge(url string) error
}
