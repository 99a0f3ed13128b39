package ui

import "github.com/bamsammich/recall/internal/event"

// Event is the engine's progress event.
type Event = event.Event

// Re-export event types for convenience.
const (
	ScanStarted       = event.ScanStarted
	ScanComplete      = event.ScanComplete
	BaselineLoaded    = event.BaselineLoaded
	DirCreated        = event.DirCreated
	FileCopied        = event.FileCopied
	FileLinked        = event.FileLinked
	SymlinkCreated    = event.SymlinkCreated
	FileFailed        = event.FileFailed
	FileSkipped       = event.FileSkipped
	SnapshotCommitted = event.SnapshotCommitted
	SnapshotDiscarded = event.SnapshotDiscarded
	SnapshotPruned    = event.SnapshotPruned
	PruneConflict     = event.PruneConflict
	VerifyStarted     = event.VerifyStarted
	VerifyOK          = event.VerifyOK
	VerifyFailed      = event.VerifyFailed
)
