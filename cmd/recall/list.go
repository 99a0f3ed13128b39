package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bamsammich/recall/internal/snapshot"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <project-dir>",
		Short: "List the snapshots in a project directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			store := snapshot.NewStore(args[0])
			st, err := store.Inspect()
			if err != nil {
				return err
			}
			for _, name := range st.Snapshots {
				fmt.Fprintln(os.Stdout, listLine(store, st, name))
			}
			for _, p := range st.Partials {
				fmt.Fprintf(os.Stdout, "  %s  (incomplete)\n", p)
			}
			if st.Stale() {
				slog.Warn("current pointer is stale; the next backup repairs it",
					"current", st.Current, "latest", st.Latest)
			}
			return nil
		},
	}
}

func listLine(store *snapshot.Store, st snapshot.State, name string) string {
	mark := " "
	if name == st.Current {
		mark = "*"
	}
	line := mark + " " + name
	if _, err := os.Stat(store.IndexPath(name)); err == nil {
		line += "  (hashed)"
	}
	return line
}
