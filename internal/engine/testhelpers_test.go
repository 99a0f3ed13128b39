package engine

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bamsammich/recall/internal/event"
)

// createTestTree populates root with a standard test tree:
//
//	root.txt          (17 bytes)
//	big.bin           (320KB)
//	sub/mid.txt       (19 bytes)
//	sub/deep/leaf.txt (17 bytes)
//	link.txt          → root.txt (symlink)
func createTestTree(t *testing.T, root string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "deep"), 0o755))
	writeFile(t, root, "root.txt", "root file content")
	writeFile(t, root, "big.bin", string(bytes.Repeat([]byte("ABCDEFGHIJKLMNOP"), 20000)))
	writeFile(t, root, "sub/mid.txt", "middle file content")
	writeFile(t, root, "sub/deep/leaf.txt", "leaf file content")
	require.NoError(t, os.Symlink("root.txt", filepath.Join(root, "link.txt")))
}

// treeFiles lists the regular files of createTestTree.
var treeFiles = []string{"big.bin", "root.txt", "sub/deep/leaf.txt", "sub/mid.txt"}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

// rewriteSameMeta replaces a file's content while keeping its size and
// mtime, so only a content hash can tell the difference.
func rewriteSameMeta(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	info, err := os.Stat(p)
	require.NoError(t, err)
	require.Len(t, content, int(info.Size()), "replacement must keep the size")
	require.NoError(t, os.WriteFile(p, []byte(content), info.Mode().Perm()))
	require.NoError(t, os.Chtimes(p, info.ModTime(), info.ModTime()))
}

// touchLater rewrites a file and moves its mtime forward so it reads as modified.
func touchLater(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(p, later, later))
}

func inode(t *testing.T, path string) uint64 {
	t.Helper()
	info, err := os.Lstat(path)
	require.NoError(t, err)
	return info.Sys().(*syscall.Stat_t).Ino
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// dirFingerprint describes every entry under root (name, type, mode,
// size, mtime, link target) in walk order.
func dirFingerprint(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == root {
				return filepath.SkipDir
			}
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, p)
		line := fmt.Sprintf("%s %s %d %d", rel, info.Mode(), info.Size(), info.ModTime().UnixNano())
		if info.Mode()&fs.ModeSymlink != 0 {
			target, _ := os.Readlink(p)
			line += " -> " + target
		}
		out = append(out, line)
		return nil
	})
	require.NoError(t, err)
	sort.Strings(out)
	return out
}

// testConfig returns a backup config with a fixed clock.
func testConfig(src, dst string) Config {
	cfg := DefaultConfig(src, dst)
	cfg.Workers = 4
	cfg.ScanWorkers = 4
	cfg.Project = "proj"
	cfg.Now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return cfg
}

// drainEvents creates a buffered event channel, spawns a goroutine to drain
// it, and registers cleanup. Returns the channel for use in Config.
func drainEvents(t *testing.T) chan<- event.Event {
	t.Helper()
	ch := make(chan event.Event, 1024)
	done := make(chan struct{})
	go func() {
		defer close(done)
		//nolint:revive // empty-block: intentionally draining event channel
		for range ch {
		}
	}()
	t.Cleanup(func() {
		close(ch)
		<-done
	})
	return ch
}

// collectEvents returns a channel large enough to hold every event of a
// small test run, read after the run.
func collectEvents() chan event.Event {
	return make(chan event.Event, 4096)
}

func eventTypes(ch chan event.Event) map[event.Type]int {
	close(ch)
	out := make(map[event.Type]int)
	for e := range ch {
		out[e.Type]++
	}
	return out
}
