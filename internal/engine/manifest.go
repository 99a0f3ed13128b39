package engine

import (
	"context"
	"fmt"
	"log/slog"
)

// Manifest is the file listing of one committed snapshot, keyed by PathKey.
// It is read-only once loaded.
type Manifest struct {
	records map[string]FileRecord
	Root    string // snapshot directory; "" for the empty manifest
	Hashed  int    // records carrying a ContentHash from the index
}

// EmptyManifest is the baseline of a first backup: every file resolves to Copy.
func EmptyManifest() *Manifest {
	return &Manifest{records: map[string]FileRecord{}}
}

// LoadManifest scans the snapshot at root without filters and overlays
// content hashes from idx when it is non-nil. Unreadable entries inside
// the snapshot are left out, so the matching live files are copied again.
func LoadManifest(ctx context.Context, root string, idx *HashIndex, workers int) (*Manifest, error) {
	if root == "" {
		return EmptyManifest(), nil
	}

	var hashes map[string]IndexEntry
	if idx != nil {
		var err error
		hashes, err = idx.All(ctx)
		if err != nil {
			// The index is optional; the snapshot still describes itself.
			slog.Warn("ignoring unreadable hash index", "path", idx.Path(), "error", err)
			hashes = nil
		}
	}

	s := NewScanner(ScannerConfig{Root: root, Workers: workers})
	records, errs := s.Scan(ctx)

	m := &Manifest{Root: root, records: make(map[string]FileRecord)}
	for rec := range records {
		if rec.Kind == KindError {
			slog.Warn("baseline entry unreadable", "path", rec.RelPath, "error", rec.Err)
			continue
		}
		if e, ok := hashes[rec.RelPath]; ok && rec.Kind == KindRegular && e.Size == rec.Size {
			rec.ContentHash = e.Hash
			m.Hashed++
		}
		m.records[rec.Key()] = rec
	}
	if err := <-errs; err != nil {
		return nil, fmt.Errorf("load baseline %s: %w", root, err)
	}
	return m, nil
}

// Lookup returns the baseline record for a relative path.
func (m *Manifest) Lookup(rel string) (FileRecord, bool) {
	if m == nil {
		return FileRecord{}, false
	}
	rec, ok := m.records[PathKey(rel)]
	return rec, ok
}

// Len returns the number of records.
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return len(m.records)
}
