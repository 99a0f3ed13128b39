package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bamsammich/recall/internal/engine"
	"github.com/bamsammich/recall/internal/ui"
)

func newPruneCmd() *cobra.Command {
	var (
		keep   int
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "prune <project-dir>",
		Short: "Delete all but the newest N snapshots",
		Long: `prune deletes the oldest snapshots in a project directory until only
--keep remain. The snapshot the current pointer addresses is never deleted.
Files shared with retained snapshots stay on disk.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("keep") {
				return errors.New("--keep is required")
			}
			if keep < 1 {
				return fmt.Errorf("--keep must be at least 1, got %d", keep)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := engine.Prune(ctx, engine.PruneConfig{
				Root:   args[0],
				Keep:   keep,
				DryRun: dryRun,
			})
			if err != nil {
				return err
			}
			for _, e := range res.Errors {
				fmt.Fprintf(os.Stderr, "FAILED: %v\n", e)
			}
			fmt.Fprintln(os.Stdout, ui.PruneSummary(res, dryRun))
			if len(res.Errors) > 0 {
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 0, "number of newest snapshots to retain")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list what would be deleted without deleting")
	return cmd
}
