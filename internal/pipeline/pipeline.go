// Package pipeline wires crawling, chunking and indexing into one run and
// answers queries against the resulting index.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/masahif/sitedex/internal/cache"
	"github.com/masahif/sitedex/internal/chunker"
	"github.com/masahif/sitedex/internal/crawler"
	"github.com/masahif/sitedex/internal/index"
)

// SiteCrawler builds the page tree of a site
type SiteCrawler interface {
	Crawl(ctx context.Context, rootURL string, maxDepth int) (*crawler.Tree, error)
}

// IndexStore is the part of index.Manager the pipeline uses
type IndexStore interface {
	Exists(name string) bool
	Load(name string) (*index.Index, error)
	GetOrBuild(ctx context.Context, chunks []string, name string) (*index.Index, error)
	Search(ctx context.Context, idx *index.Index, queries []string, k int) ([][]float32, [][]string, error)
}

// Request describes one indexing run
type Request struct {
	URL       string
	MaxDepth  int
	ChunkSize int
	Overlap   int
	IndexName string // defaults to the sanitized site of URL
}

// Result is one ranked query match
type Result struct {
	Rank  int
	Score float32
	Text  string
}

// Pipeline runs crawl, chunk and index stages
type Pipeline struct {
	crawler SiteCrawler
	indexes IndexStore
	logger  *slog.Logger
}

// New creates a pipeline
func New(c SiteCrawler, indexes IndexStore, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{crawler: c, indexes: indexes, logger: logger}
}

// indexName returns the index name a request resolves to
func (r Request) indexName() string {
	if r.IndexName != "" {
		return r.IndexName
	}
	return cache.SanitizeSite(r.URL)
}

// IndexSite returns the index for req.URL. A persisted index is loaded
// without crawling; otherwise the site is crawled, chunked and indexed.
func (p *Pipeline) IndexSite(ctx context.Context, req Request) (*index.Index, error) {
	name := req.indexName()

	if p.indexes.Exists(name) {
		p.logger.Info("Index exists, skipping crawl", "name", name)
		idx, err := p.indexes.Load(name)
		if err != nil {
			return nil, &StageError{Stage: StageLoad, Err: err}
		}
		return idx, nil
	}

	start := time.Now()
	tree, err := p.crawler.Crawl(ctx, req.URL, req.MaxDepth)
	if err != nil {
		return nil, &StageError{Stage: StageCrawl, Err: err}
	}
	p.logger.Info("Crawl finished",
		"url", req.URL,
		"pages", tree.Len(),
		"fetched", tree.Stats.Fetched,
		"cached", tree.Stats.Cached,
		"failed", tree.Stats.Failed,
		"duration", time.Since(start))

	chunks, err := chunker.Split(tree.Text(), req.ChunkSize, req.Overlap)
	if err != nil {
		return nil, &StageError{Stage: StageChunk, Err: err}
	}
	p.logger.Info("Text chunked", "chunks", len(chunks), "size", req.ChunkSize, "overlap", req.Overlap)

	idx, err := p.indexes.GetOrBuild(ctx, chunks, name)
	if err != nil {
		return nil, &StageError{Stage: StageIndex, Err: err}
	}
	return idx, nil
}

// Query returns the k chunks of idx closest to text, best first
func (p *Pipeline) Query(ctx context.Context, idx *index.Index, text string, k int) ([]Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("query text is empty")
	}
	scores, texts, err := p.indexes.Search(ctx, idx, []string{text}, k)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]Result, len(texts[0]))
	for i := range texts[0] {
		results[i] = Result{Rank: i + 1, Score: scores[0][i], Text: texts[0][i]}
	}
	return results, nil
}

// Ask retrieves the k best chunks for question and renders the grounding prompt
func (p *Pipeline) Ask(ctx context.Context, idx *index.Index, question string, k int) (string, error) {
	results, err := p.Query(ctx, idx, question, k)
	if err != nil {
		return "", err
	}
	chunks := make([]string, len(results))
	for i, r := range results {
		chunks[i] = r.Text
	}
	return BuildPrompt(chunks, question), nil
}
