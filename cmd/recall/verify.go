package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bamsammich/recall/internal/engine"
	"github.com/bamsammich/recall/internal/snapshot"
	"github.com/bamsammich/recall/internal/ui"
)

func newVerifyCmd() *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "verify <project-dir> [snapshot]",
		Short: "Re-hash a snapshot and compare it with its hash index",
		Long: `verify re-reads every file of a snapshot taken with --check-content and
compares it with the hashes recorded at backup time. Without a snapshot
name the one the current pointer addresses is checked.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			store := snapshot.NewStore(args[0])
			name, err := pickSnapshot(store, args[1:])
			if err != nil {
				return err
			}

			idx, err := engine.OpenIndex(store.IndexPath(name))
			if err != nil {
				return err
			}
			defer func() { _ = idx.Close() }()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(os.Stderr, "verifying %s...\n", name)
			res, err := engine.Verify(ctx, engine.VerifyConfig{
				Index:        idx,
				SnapshotRoot: store.Path(name),
				Workers:      workers,
			})
			if err != nil {
				return err
			}
			for _, ve := range res.Errors {
				if ve.Err != nil {
					fmt.Fprintf(os.Stderr, "MISMATCH: %s  %v\n", ve.Path, ve.Err)
					continue
				}
				fmt.Fprintf(os.Stderr, "MISMATCH: %s  want %s  got %s\n", ve.Path, ve.Want, ve.Got)
			}
			fmt.Fprintln(os.Stdout, ui.VerifySummary(res))
			if !res.OK() {
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "n", 0, "number of hashing workers")
	return cmd
}

// pickSnapshot returns the named snapshot, or the current one, falling
// back to the newest when the pointer is missing.
func pickSnapshot(store *snapshot.Store, args []string) (string, error) {
	st, err := store.Inspect()
	if err != nil {
		return "", err
	}
	if len(args) == 1 {
		if !slices.Contains(st.Snapshots, args[0]) {
			return "", fmt.Errorf("no snapshot %q in %s", args[0], store.Root())
		}
		return args[0], nil
	}
	if st.Current != "" && slices.Contains(st.Snapshots, st.Current) {
		return st.Current, nil
	}
	if st.Latest == "" {
		return "", errors.New("project directory has no snapshots")
	}
	return st.Latest, nil
}
