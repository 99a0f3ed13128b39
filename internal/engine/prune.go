package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/bamsammich/recall/internal/event"
	"github.com/bamsammich/recall/internal/snapshot"
)

// PruneConfig controls a retention pass over one project directory.
type PruneConfig struct {
	Events chan<- event.Event
	Root   string // project directory holding the snapshots
	Keep   int
	DryRun bool
}

// PruneResult reports a retention pass. Only Errors are failures;
// Conflicts are warnings.
type PruneResult struct {
	Selected  []string
	Deleted   []string
	Conflicts []*PruneConflictError
	Errors    []error
}

// SelectPrune returns the oldest len(names)-keep entries of the ascending
// list names. keep below zero is treated as zero.
func SelectPrune(names []string, keep int) []string {
	keep = max(keep, 0)
	if len(names) <= keep {
		return nil
	}
	return append([]string(nil), names[:len(names)-keep]...)
}

// Prune deletes snapshots outside the keep window, oldest first. Deleting
// a snapshot only drops its own directory entries: files hardlinked from a
// retained snapshot keep a positive link count and stay on disk. The
// snapshot the current pointer addresses is never deleted.
func Prune(ctx context.Context, cfg PruneConfig) (PruneResult, error) {
	store := snapshot.NewStore(cfg.Root)
	st, err := store.Inspect()
	if err != nil {
		return PruneResult{}, err
	}

	var res PruneResult
	for _, name := range SelectPrune(st.Snapshots, cfg.Keep) {
		if name == st.Current {
			conflict := &PruneConflictError{Snapshot: name}
			res.Conflicts = append(res.Conflicts, conflict)
			slog.Warn("retention would delete the current snapshot, keeping it",
				"snapshot", name, "keep", cfg.Keep)
			event.Emit(cfg.Events, event.Event{Type: event.PruneConflict, Path: name, Error: conflict})
			continue
		}
		res.Selected = append(res.Selected, name)
	}

	if cfg.DryRun {
		return res, nil
	}

	for _, name := range res.Selected {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := removeTree(store.Path(name)); err != nil {
			err = fmt.Errorf("delete snapshot %s: %w", name, err)
			res.Errors = append(res.Errors, err)
			slog.Warn("prune failed", "snapshot", name, "error", err)
			continue
		}
		if err := os.Remove(store.IndexPath(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("remove hash index", "snapshot", name, "error", err)
		}
		res.Deleted = append(res.Deleted, name)
		slog.Info("pruned snapshot", "snapshot", name)
		event.Emit(cfg.Events, event.Event{Type: event.SnapshotPruned, Path: name})
	}
	return res, nil
}
