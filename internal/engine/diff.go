package engine

import "time"

// ActionKind is the decision for one scanned entry.
type ActionKind uint8

const (
	ActCreateDir ActionKind = iota + 1
	ActCopy                 // full byte copy from the live source
	ActLink                 // hardlink to the baseline's own file
	ActSymlink              // recreate a symlink
	ActVerify               // metadata matches; hash before choosing Link or Copy
	ActError                // entry could not be read
)

func (k ActionKind) String() string {
	switch k {
	case ActCreateDir:
		return "mkdir"
	case ActCopy:
		return "copy"
	case ActLink:
		return "link"
	case ActSymlink:
		return "symlink"
	case ActVerify:
		return "verify"
	case ActError:
		return "error"
	default:
		return "unknown"
	}
}

// DefaultModTimeWindow is the mtime tolerance for treating a file as
// unchanged. It absorbs filesystems with coarse timestamps.
const DefaultModTimeWindow = time.Second

// DecideOptions controls the decision rules.
type DecideOptions struct {
	ModTimeWindow time.Duration
	CheckContent  bool
}

// Action pairs a scanned record with what the executor must do for it.
// Baseline is the zero record when there is no baseline entry.
type Action struct {
	Record   FileRecord
	Baseline FileRecord
	Kind     ActionKind
}

// Source returns the hardlink source for Link and Verify actions: the
// baseline snapshot's own path, never an older ancestor's.
func (a Action) Source() string {
	return a.Baseline.AbsPath
}

// Decide assigns an action to cur given the baseline manifest. It is pure:
// it touches neither filesystem nor clock.
func Decide(cur FileRecord, m *Manifest, opts DecideOptions) Action {
	a := Action{Record: cur}

	if cur.Kind == KindError {
		a.Kind = ActError
		return a
	}
	// Directories are structural and never deduplicated.
	if cur.Kind == KindDir {
		a.Kind = ActCreateDir
		return a
	}

	base, ok := m.Lookup(cur.RelPath)
	if !ok || base.Kind != cur.Kind {
		a.Kind = materialize(cur)
		return a
	}
	a.Baseline = base

	switch cur.Kind {
	case KindSymlink:
		if base.LinkTarget == cur.LinkTarget && metaEqual(cur, base, opts.ModTimeWindow) {
			a.Kind = ActLink
		} else {
			a.Kind = ActSymlink
		}
	case KindRegular:
		switch {
		// A hardlink shares the baseline inode's mode.
		case cur.Perm() != base.Perm():
			a.Kind = ActCopy
		case !metaEqual(cur, base, opts.ModTimeWindow):
			a.Kind = ActCopy
		case opts.CheckContent:
			a.Kind = ActVerify
		default:
			a.Kind = ActLink
		}
	}
	return a
}

// Plan decides every record in order.
func Plan(records []FileRecord, m *Manifest, opts DecideOptions) []Action {
	actions := make([]Action, len(records))
	for i, rec := range records {
		actions[i] = Decide(rec, m, opts)
	}
	return actions
}

// ResolveVerify turns a Verify action into Link or Copy once the live
// file's hash is known. An unknown baseline hash (snapshot built without
// hashing, or with another algorithm) forces Copy.
func ResolveVerify(currentHash, baselineHash string) ActionKind {
	if currentHash == "" || baselineHash == "" || currentHash != baselineHash {
		return ActCopy
	}
	return ActLink
}

func materialize(rec FileRecord) ActionKind {
	if rec.Kind == KindSymlink {
		return ActSymlink
	}
	return ActCopy
}

func metaEqual(cur, base FileRecord, window time.Duration) bool {
	if cur.Size != base.Size {
		return false
	}
	d := cur.ModTime.Sub(base.ModTime)
	if d < 0 {
		d = -d
	}
	return d <= window
}
