package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/recall/internal/filter"
	"github.com/bamsammich/recall/internal/stats"
)

func relPaths(records []FileRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.RelPath
	}
	return out
}

func TestScannerPreOrderSorted(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "c.txt", "c")
	writeFile(t, root, "b/1", "1")
	writeFile(t, root, "a/z", "z")
	writeFile(t, root, "a/y/q", "q")

	want := []string{"a", "a/y", "a/y/q", "a/z", "b", "b/1", "c.txt"}
	for _, workers := range []int{1, 2, 8} {
		s := NewScanner(ScannerConfig{Root: root, Workers: workers})
		records, err := s.Collect(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, relPaths(records), "workers=%d", workers)
	}
}

func TestScannerParentBeforeChildren(t *testing.T) {
	root := t.TempDir()
	createTestTree(t, root)

	records, err := NewScanner(ScannerConfig{Root: root}).Collect(context.Background())
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, r := range records {
		if p := parentRel(r.RelPath); p != "" {
			assert.True(t, seen[p], "%s emitted before its parent", r.RelPath)
		}
		seen[r.RelPath] = true
	}
}

func TestScannerRecordFields(t *testing.T) {
	root := t.TempDir()
	createTestTree(t, root)
	require.NoError(t, os.Chmod(filepath.Join(root, "root.txt"), 0o600))

	records, err := NewScanner(ScannerConfig{Root: root}).Collect(context.Background())
	require.NoError(t, err)

	byPath := map[string]FileRecord{}
	for _, r := range records {
		byPath[r.RelPath] = r
	}

	f := byPath["root.txt"]
	assert.Equal(t, KindRegular, f.Kind)
	assert.Equal(t, int64(17), f.Size)
	assert.Equal(t, os.FileMode(0o600), f.Perm())
	assert.Equal(t, filepath.Join(root, "root.txt"), f.AbsPath)
	assert.NotZero(t, f.Dev)
	assert.False(t, f.ModTime.IsZero())

	l := byPath["link.txt"]
	assert.Equal(t, KindSymlink, l.Kind)
	assert.Equal(t, "root.txt", l.LinkTarget)

	assert.Equal(t, KindDir, byPath["sub/deep"].Kind)
	assert.NotContains(t, byPath, "")
}

func TestScannerExcludePrunesSubtree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.js", "x")
	writeFile(t, root, "node_modules/pkg/index.js", "y")
	writeFile(t, root, "web/node_modules/other/index.js", "z")

	chain, err := filter.FromExcludes([]string{"node_modules"})
	require.NoError(t, err)
	collector := stats.NewCollector()

	records, err := NewScanner(ScannerConfig{Root: root, Filter: chain, Stats: collector}).Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"app.js", "web"}, relPaths(records))
	// Only the pruned directories themselves are counted; children are never visited.
	assert.Equal(t, int64(2), collector.Snapshot().FilesSkipped)
}

func TestScannerSkipsUnsupportedTypes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")
	require.NoError(t, syscall.Mkfifo(filepath.Join(root, "fifo"), 0o644))

	collector := stats.NewCollector()
	records, err := NewScanner(ScannerConfig{Root: root, Stats: collector}).Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt"}, relPaths(records))
	assert.Equal(t, int64(1), collector.Snapshot().FilesSkipped)
}

func TestScannerUnreadableDirBecomesErrorRecord(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	root := t.TempDir()
	writeFile(t, root, "locked/secret.txt", "s")
	writeFile(t, root, "open.txt", "o")
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	records, err := NewScanner(ScannerConfig{Root: root}).Collect(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"locked", "open.txt"}, relPaths(records))

	rec := records[0]
	assert.Equal(t, KindError, rec.Kind)
	assert.True(t, errors.Is(rec.Err, ErrSourceUnreadable))
	var ere *EntryReadError
	require.ErrorAs(t, rec.Err, &ere)
	assert.Equal(t, "locked", ere.Path)
}

func TestScannerMissingRoot(t *testing.T) {
	_, err := NewScanner(ScannerConfig{Root: filepath.Join(t.TempDir(), "missing")}).Collect(context.Background())
	require.Error(t, err)
}

func TestScannerRootNotDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "file", "x")
	_, err := NewScanner(ScannerConfig{Root: filepath.Join(root, "file")}).Collect(context.Background())
	require.Error(t, err)
}

func TestScannerCancelled(t *testing.T) {
	root := t.TempDir()
	createTestTree(t, root)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewScanner(ScannerConfig{Root: root}).Collect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
