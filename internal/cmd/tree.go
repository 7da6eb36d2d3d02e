package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var treeCmd = &cobra.Command{
	Use:   "tree <url>",
	Short: "Crawl a site and print its page tree without indexing",
	Args:  cobra.ExactArgs(1),
	RunE:  runTree,
}

func runTree(cmd *cobra.Command, args []string) error {
	if shown, err := handleShowConfig(cmd); shown {
		return err
	}
	cfg, cleanup, err := setup(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	reporter := newCrawlReporter(cmd)
	c, closeFetcher, err := initializeCrawler(cfg, reporter.Page)
	if err != nil {
		return fmt.Errorf("failed to initialize crawler: %w", err)
	}
	defer closeFetcher()

	tree, err := c.Crawl(cmd.Context(), args[0], cfg.Crawl.MaxDepth)
	reporter.Finish()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if err := tree.Print(out); err != nil {
		return err
	}
	s := tree.Stats
	fmt.Fprintf(out, "\n%d pages (fetched %d, cached %d, failed %d, skipped %d) in %v\n",
		tree.Len(), s.Fetched, s.Cached, s.Failed, s.Skipped, s.Duration)
	return nil
}
