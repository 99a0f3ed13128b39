package engine

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is. Each typed error below matches exactly one.
var (
	ErrSourceUnreadable = errors.New("source entry unreadable")
	ErrSnapshotProvider = errors.New("snapshot provider failed")
	ErrCrossVolumeLink  = errors.New("hardlink across volumes")
	ErrCommit           = errors.New("commit failed")
	ErrPruneConflict    = errors.New("refusing to prune current snapshot")

	// ErrCancelled marks a run stopped by the caller. Nothing is committed.
	ErrCancelled = errors.New("backup cancelled")
	// ErrParentFailed marks entries whose parent directory was not created.
	ErrParentFailed = errors.New("parent directory failed")
)

// EntryReadError is a per-entry scan failure. The scan continues.
type EntryReadError struct {
	Err  error
	Path string
}

func (e *EntryReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *EntryReadError) Unwrap() error { return e.Err }

func (e *EntryReadError) Is(target error) bool { return target == ErrSourceUnreadable }

// SnapshotProviderError aborts a run before any staging begins.
type SnapshotProviderError struct {
	Err    error
	Source string
}

func (e *SnapshotProviderError) Error() string {
	return fmt.Sprintf("freeze %s: %v", e.Source, e.Err)
}

func (e *SnapshotProviderError) Unwrap() error { return e.Err }

func (e *SnapshotProviderError) Is(target error) bool { return target == ErrSnapshotProvider }

// CrossVolumeLinkError reports a hardlink whose baseline lives on another
// volume than the staging directory.
type CrossVolumeLinkError struct {
	Err    error
	Path   string
	Source string
}

func (e *CrossVolumeLinkError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("link %s -> %s: baseline is on another volume", e.Path, e.Source)
	}
	return fmt.Sprintf("link %s -> %s: baseline is on another volume: %v", e.Path, e.Source, e.Err)
}

func (e *CrossVolumeLinkError) Unwrap() error { return e.Err }

func (e *CrossVolumeLinkError) Is(target error) bool { return target == ErrCrossVolumeLink }

// CommitError is a failed rename or pointer update. The staging directory
// named by Staging is left in place.
type CommitError struct {
	Err     error
	Op      string
	Staging string
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit %s (%s): %v", e.Staging, e.Op, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

func (e *CommitError) Is(target error) bool { return target == ErrCommit }

// PruneConflictError is a refused deletion of the snapshot the current
// pointer addresses. It is a warning, not fatal to the rest of the batch.
type PruneConflictError struct {
	Snapshot string
}

func (e *PruneConflictError) Error() string {
	return fmt.Sprintf("snapshot %s is current, not pruning it", e.Snapshot)
}

func (e *PruneConflictError) Is(target error) bool { return target == ErrPruneConflict }
