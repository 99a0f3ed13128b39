package filter

import (
	"runtime"
	"strings"

	"github.com/gobwas/glob"
)

// foldCase reports whether path comparison on this platform ignores case.
// NTFS and default APFS volumes are case-insensitive but case-preserving.
var foldCase = runtime.GOOS == "windows" || runtime.GOOS == "darwin"

// compiledPattern is a compiled glob pattern matched against a
// slash-separated relative path.
type compiledPattern struct {
	g        glob.Glob
	original string
	anchored bool // pattern starts with / or contains an inner /
	dirOnly  bool // pattern ends with /
}

// compilePattern compiles a gitignore/rsync-style glob.
//
//	*.log         any entry named *.log at any depth
//	node_modules  any entry named node_modules at any depth
//	build/        directories named build only
//	/root.txt     root.txt at the top level only
//	docs/*.md     anchored: docs/ directly under the root
//	**/cache      cache at any depth (same as "cache")
func compilePattern(pattern string) (*compiledPattern, error) {
	cp := &compiledPattern{original: pattern}

	if strings.HasSuffix(pattern, "/") {
		cp.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}

	switch {
	case strings.HasPrefix(pattern, "/"):
		cp.anchored = true
		pattern = strings.TrimPrefix(pattern, "/")
	case strings.HasPrefix(pattern, "**/"):
		// Leading **/ is the same as an unanchored match on segment suffixes.
		pattern = strings.TrimPrefix(pattern, "**/")
	case strings.Contains(pattern, "/"):
		cp.anchored = true
	}

	if foldCase {
		pattern = strings.ToLower(pattern)
	}

	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, err
	}
	cp.g = g
	return cp, nil
}

// match tests whether relPath matches this pattern. Unanchored patterns are
// tried against every suffix of relPath that starts on a segment boundary.
func (cp *compiledPattern) match(relPath string, isDir bool) bool {
	if cp.dirOnly && !isDir {
		return false
	}
	if foldCase {
		relPath = strings.ToLower(relPath)
	}
	if cp.anchored {
		return cp.g.Match(relPath)
	}
	for {
		if cp.g.Match(relPath) {
			return true
		}
		i := strings.IndexByte(relPath, '/')
		if i < 0 {
			return false
		}
		relPath = relPath[i+1:]
	}
}
