package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/masahif/sitedex/internal/cache"
	"github.com/masahif/sitedex/internal/pipeline"
)

var indexCmd = &cobra.Command{
	Use:   "index <url>",
	Short: "Crawl a site and build its vector index",
	Long: `Crawl the site below <url>, chunk the extracted text and build a
persisted vector index. An existing index with the same name is loaded
instead unless --rebuild is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().String("name", "", "Index name (default is derived from the site)")
	indexCmd.Flags().Bool("rebuild", false, "Discard an existing index with the same name first")
}

func runIndex(cmd *cobra.Command, args []string) error {
	if shown, err := handleShowConfig(cmd); shown {
		return err
	}
	cfg, cleanup, err := setup(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	reporter := newCrawlReporter(cmd)
	p, manager, closeFetcher, err := initializePipeline(cfg, reporter.Page)
	if err != nil {
		return err
	}
	defer closeFetcher()

	rootURL := args[0]
	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = cache.SanitizeSite(rootURL)
	}

	if rebuild, _ := cmd.Flags().GetBool("rebuild"); rebuild {
		if err := manager.Invalidate(name); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Indexing %s\n", rootURL)
	fmt.Fprintf(out, "  Max Depth: %d\n", cfg.Crawl.MaxDepth)
	fmt.Fprintf(out, "  Concurrency: %d\n", cfg.Crawl.Concurrency)
	fmt.Fprintf(out, "  Chunk Size: %d (overlap %d)\n", cfg.Chunk.Size, cfg.Chunk.Overlap)
	fmt.Fprintf(out, "  Embedding: %s\n", cfg.Embedding.Provider)
	fmt.Fprintf(out, "  Index: %s (%s)\n", manager.Path(name), cfg.Index.Mode)

	idx, err := p.IndexSite(cmd.Context(), pipeline.Request{
		URL:       rootURL,
		MaxDepth:  cfg.Crawl.MaxDepth,
		ChunkSize: cfg.Chunk.Size,
		Overlap:   cfg.Chunk.Overlap,
		IndexName: name,
	})
	reporter.Finish()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Index %s ready: %d chunks, %d dimensions, model %s\n",
		idx.Name(), idx.Len(), idx.Dimensions(), idx.Model())
	return nil
}
