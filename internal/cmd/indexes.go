package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var indexesCmd = &cobra.Command{
	Use:   "indexes",
	Short: "List persisted indexes",
	Args:  cobra.NoArgs,
	RunE:  runIndexes,
}

var removeIndexCmd = &cobra.Command{
	Use:   "rm <index-name>...",
	Short: "Remove persisted indexes so the next run rebuilds them",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRemoveIndex,
}

func init() {
	indexesCmd.AddCommand(removeIndexCmd)
}

func runIndexes(cmd *cobra.Command, args []string) error {
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
	metas, err := manager.List()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(metas) == 0 {
		fmt.Fprintf(out, "No indexes in %s\n", cfg.Index.Dir)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMODE\tCHUNKS\tDIMS\tMODEL\tCREATED")
	for _, m := range metas {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			m.Name, m.Mode, m.Count, m.Dimensions, m.Model, m.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runRemoveIndex(cmd *cobra.Command, args []string) error {
	cfg, cleanup, err := setup(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	manager, err := initializeManager(cfg)
	if err != nil {
		return err
	}
	for _, name := range args {
		if err := manager.Invalidate(name); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", name)
	}
	return nil
}
