package engine

import (
	"io/fs"
	"path"
	"runtime"
	"strings"
	"time"
)

// Kind identifies the kind of filesystem entry a FileRecord describes.
type Kind uint8

const (
	KindRegular Kind = iota + 1
	KindDir
	KindSymlink
	KindError // entry could not be read; Err is set
)

func (k Kind) String() string {
	switch k {
	case KindRegular:
		return "file"
	case KindDir:
		return "dir"
	case KindSymlink:
		return "symlink"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// FileRecord describes one entry of a scanned tree. Records are values and
// are never mutated after the scanner or manifest loader produces them.
type FileRecord struct {
	ModTime     time.Time
	AccTime     time.Time
	Err         error  // KindError only
	RelPath     string // slash-separated, relative to the scan root
	AbsPath     string // real path under the scan root
	LinkTarget  string // KindSymlink only
	ContentHash string // "<alg>:<hex>", empty when unknown
	Size        int64
	Dev         uint64
	Mode        fs.FileMode
	Kind        Kind
}

// Key returns the join key used to pair a record with its baseline.
func (r FileRecord) Key() string {
	return PathKey(r.RelPath)
}

// Perm returns the permission bits including setuid, setgid and sticky.
func (r FileRecord) Perm() fs.FileMode {
	return r.Mode & (fs.ModePerm | fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky)
}

// foldCase reports whether the platform's default filesystems compare
// names case-insensitively.
var foldCase = runtime.GOOS == "windows" || runtime.GOOS == "darwin"

// PathKey normalizes a relative path for comparison. Case is preserved in
// the record itself; only the key is folded.
func PathKey(rel string) string {
	if foldCase {
		return strings.ToLower(rel)
	}
	return rel
}

// parentRel returns the slash-separated parent of rel, or "" for entries
// directly under the root.
func parentRel(rel string) string {
	dir := path.Dir(rel)
	if dir == "." {
		return ""
	}
	return dir
}

// joinRel joins a child name onto a relative directory path.
func joinRel(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
