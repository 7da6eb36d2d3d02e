package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/masahif/sitedex/internal/pipeline"
)

var queryCmd = &cobra.Command{
	Use:   "query <index-name> <text...>",
	Short: "Search an index for the chunks closest to a question",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().IntP("top-k", "k", 5, "Number of chunks to return")
	queryCmd.Flags().Bool("prompt", false, "Print the grounding prompt instead of the ranked chunks")
}

func runQuery(cmd *cobra.Command, args []string) error {
	if shown, err := handleShowConfig(cmd); shown {
		return err
	}
	cfg, cleanup, err := setup(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	manager, err := initializeManager(cfg)
	if err != nil {
		return err
	}

	name := args[0]
	question := strings.Join(args[1:], " ")

	idx, err := manager.Load(name)
	if err != nil {
		return err
	}

	// Querying never crawls, so the pipeline needs no crawler
	p := pipeline.New(nil, manager, nil)
	out := cmd.OutOrStdout()

	if asPrompt, _ := cmd.Flags().GetBool("prompt"); asPrompt {
		prompt, err := p.Ask(cmd.Context(), idx, question, cfg.Index.TopK)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, prompt)
		return nil
	}

	results, err := p.Query(cmd.Context(), idx, question, cfg.Index.TopK)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Fprintf(out, "%d. [%.4f] %s\n\n", r.Rank, r.Score, r.Text)
	}
	return nil
}
