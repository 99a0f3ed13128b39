package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
)

// Store is the persisted layout of one project under a destination:
//
//	<root>/<YYYY-MM-DD_HH-MM-SS>/...   committed snapshots
//	<root>/<name>.partial/...          staging directory of an in-flight run
//	<root>/current                     relative symlink to the latest snapshot
//	<root>/.recall/<name>.db           hash index of a snapshot
//
// The directory listing is the source of truth. The current pointer is a
// hint that may lag after a crash between commit and repoint.
type Store struct {
	root string
}

// NewStore returns a store rooted at the project directory root. Nothing is
// created on disk.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the project directory.
func (s *Store) Root() string { return s.root }

// Path returns the absolute path of the committed snapshot name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.root, name)
}

// StagingPath returns the staging directory for name.
func (s *Store) StagingPath(name string) string {
	return filepath.Join(s.root, name+PartialSuffix)
}

// IndexPath returns the hash index file of the committed snapshot name.
func (s *Store) IndexPath(name string) string {
	return filepath.Join(s.root, MetaDir, name+IndexExt)
}

// StagingIndexPath returns where the hash index is written before commit.
func (s *Store) StagingIndexPath(name string) string {
	return filepath.Join(s.root, MetaDir, name+PartialSuffix+IndexExt)
}

// PointerPath returns the path of the current pointer entry.
func (s *Store) PointerPath() string {
	return filepath.Join(s.root, CurrentName)
}

// List returns committed snapshot names sorted oldest first. A missing
// project directory yields an empty list.
func (s *Store) List() ([]string, error) {
	names, _, err := s.readRoot()
	return names, err
}

func (s *Store) readRoot() (names, partials []string, err error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("list snapshots in %s: %w", s.root, err)
	}
	for _, e := range entries {
		// Only real directories count; the pointer symlink and stray files never do.
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if _, ok := ParseName(name); ok {
			names = append(names, name)
			continue
		}
		if IsPartial(name) {
			partials = append(partials, name)
		}
	}
	sort.Strings(names)
	sort.Strings(partials)
	return names, partials, nil
}

// Current returns the snapshot name the pointer addresses, or "" when the
// pointer does not exist. The name is returned even if that snapshot no
// longer exists on disk.
func (s *Store) Current() (string, error) {
	target, err := os.Readlink(s.PointerPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read current pointer: %w", err)
	}
	return filepath.Base(filepath.Clean(target)), nil
}

// State is a point-in-time view of the project directory.
type State struct {
	Snapshots []string
	Partials  []string
	Latest    string
	Current   string
}

// Stale reports whether the pointer disagrees with the directory listing.
func (st State) Stale() bool {
	return st.Current != st.Latest
}

// Inspect reads the listing and the pointer together.
func (s *Store) Inspect() (State, error) {
	names, partials, err := s.readRoot()
	if err != nil {
		return State{}, err
	}
	current, err := s.Current()
	if err != nil {
		return State{}, err
	}
	st := State{Snapshots: names, Partials: partials, Current: current}
	if len(names) > 0 {
		st.Latest = names[len(names)-1]
	}
	return st, nil
}

// Repoint atomically points current at name. A relative symlink is created
// under a temporary name and renamed over the old pointer, so readers see
// either the old or the new target, never a missing pointer.
func (s *Store) Repoint(name string) error {
	tmp := filepath.Join(s.root, ".current-"+uuid.NewString())
	if err := os.Symlink(name, tmp); err != nil {
		return fmt.Errorf("create pointer %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.PointerPath()); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("swap current pointer to %s: %w", name, err)
	}
	return nil
}

// Repair repoints a stale pointer at the newest committed snapshot. It
// returns the state after repair and whether anything changed.
func (s *Store) Repair() (State, bool, error) {
	st, err := s.Inspect()
	if err != nil || st.Latest == "" || !st.Stale() {
		return st, false, err
	}
	slog.Warn("current pointer is stale, repointing",
		"current", st.Current, "latest", st.Latest, "root", s.root)
	if err := s.Repoint(st.Latest); err != nil {
		return st, false, err
	}
	st.Current = st.Latest
	return st, true, nil
}
