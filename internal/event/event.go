package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	ScanStarted Type = iota + 1
	ScanComplete
	BaselineLoaded
	DirCreated
	FileCopied
	FileLinked
	SymlinkCreated
	FileFailed
	FileSkipped
	SnapshotCommitted
	SnapshotDiscarded
	SnapshotPruned
	PruneConflict
	VerifyStarted
	VerifyOK
	VerifyFailed
)

var typeNames = [...]string{
	ScanStarted:       "ScanStarted",
	ScanComplete:      "ScanComplete",
	BaselineLoaded:    "BaselineLoaded",
	DirCreated:        "DirCreated",
	FileCopied:        "FileCopied",
	FileLinked:        "FileLinked",
	SymlinkCreated:    "SymlinkCreated",
	FileFailed:        "FileFailed",
	FileSkipped:       "FileSkipped",
	SnapshotCommitted: "SnapshotCommitted",
	SnapshotDiscarded: "SnapshotDiscarded",
	SnapshotPruned:    "SnapshotPruned",
	PruneConflict:     "PruneConflict",
	VerifyStarted:     "VerifyStarted",
	VerifyOK:          "VerifyOK",
	VerifyFailed:      "VerifyFailed",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event represents a single progress event from the engine.
type Event struct {
	Timestamp time.Time
	Error     error
	Path      string // relative path, or snapshot name for snapshot events
	Size      int64
	Total     int64 // entries seen (ScanComplete, BaselineLoaded)
	Type      Type
	WorkerID  int
}

// Emit sends e on ch without blocking. A nil channel discards the event.
func Emit(ch chan<- Event, e Event) {
	if ch == nil {
		return
	}
	e.Timestamp = time.Now()
	select {
	case ch <- e:
	default:
	}
}
