package snapshot

import (
	"strings"
	"time"
)

// TimeLayout is the snapshot directory name format. Zero-padded fields make
// lexicographic order identical to chronological order.
const TimeLayout = "2006-01-02_15-04-05"

const (
	// CurrentName is the pointer entry addressing the latest snapshot.
	CurrentName = "current"
	// PartialSuffix marks a staging directory that has not been committed.
	PartialSuffix = ".partial"
	// MetaDir holds per-snapshot sidecar files (hash indexes).
	MetaDir = ".recall"
	// IndexExt is the extension for hash index files under MetaDir.
	IndexExt = ".db"
)

// FormatName returns the snapshot name for t. Names are always UTC so a DST
// change never reorders snapshots.
func FormatName(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseName parses a snapshot directory name. It reports false for anything
// that is not exactly a canonical timestamp name.
func ParseName(name string) (time.Time, bool) {
	if len(name) != len(TimeLayout) {
		return time.Time{}, false
	}
	t, err := time.Parse(TimeLayout, name)
	if err != nil {
		return time.Time{}, false
	}
	// Reject names time.Parse accepts but FormatName would never produce.
	if t.Format(TimeLayout) != name {
		return time.Time{}, false
	}
	return t, true
}

// IsPartial reports whether name is a staging directory name.
func IsPartial(name string) bool {
	base, ok := strings.CutSuffix(name, PartialSuffix)
	if !ok {
		return false
	}
	_, valid := ParseName(base)
	return valid
}

// NextName returns a name for a snapshot taken at now that sorts strictly
// after latest. When the clock has not advanced past latest (same second,
// or skew) the name is bumped forward in one-second steps.
func NextName(now time.Time, latest string) string {
	name := FormatName(now)
	if latest == "" || name > latest {
		return name
	}
	lt, ok := ParseName(latest)
	if !ok {
		return name
	}
	return FormatName(lt.Add(time.Second))
}
