package engine

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bamsammich/recall/internal/snapshot"
)

// commitSnapshot publishes the staging directory of name. Order matters
// for crash safety: the index lands first, then the snapshot directory
// (from here on a listing finds it), and the pointer last. A crash after
// the directory rename leaves a complete snapshot behind a stale pointer,
// which the next run repairs from the listing.
func commitSnapshot(store *snapshot.Store, name string, hasIndex bool) error {
	staging := store.StagingPath(name)

	if hasIndex {
		if err := os.Rename(store.StagingIndexPath(name), store.IndexPath(name)); err != nil {
			return &CommitError{Op: "rename index", Staging: staging, Err: err}
		}
	}

	if err := os.Rename(staging, store.Path(name)); err != nil {
		if hasIndex {
			// Keep the staged pair together for inspection.
			_ = os.Rename(store.IndexPath(name), store.StagingIndexPath(name))
		}
		return &CommitError{Op: "rename snapshot", Staging: staging, Err: err}
	}

	if err := store.Repoint(name); err != nil {
		return &CommitError{Op: "repoint current", Staging: store.Path(name), Err: err}
	}
	return nil
}

// discardStaging removes an uncommitted run's staging directory and index.
func discardStaging(store *snapshot.Store, name string) {
	if err := removeTree(store.StagingPath(name)); err != nil {
		slog.Warn("remove staging directory", "path", store.StagingPath(name), "error", err)
	}
	if err := os.Remove(store.StagingIndexPath(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("remove staging index", "path", store.StagingIndexPath(name), "error", err)
	}
}

// removeTree is os.RemoveAll that also copes with directories whose
// restored permissions deny writing (a backed-up 0555 directory).
func removeTree(path string) error {
	err := os.RemoveAll(path)
	if err == nil {
		return nil
	}
	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr == nil && d.IsDir() {
			_ = os.Chmod(p, 0o700)
		}
		return nil
	})
	return os.RemoveAll(path)
}

// freshName picks a snapshot name after latest that collides with neither
// a committed snapshot nor a leftover staging directory.
func freshName(store *snapshot.Store, now time.Time, latest string) string {
	name := snapshot.NextName(now, latest)
	for exists(store.StagingPath(name)) || exists(store.Path(name)) {
		name = snapshot.NextName(now, name)
	}
	return name
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
