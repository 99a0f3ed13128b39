package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const indexSchemaVersion = "1"

// IndexEntry is the recorded hash of one regular file in a snapshot.
type IndexEntry struct {
	Path      string
	Hash      string
	Size      int64
	MtimeNano int64
}

// HashIndex is the SQLite sidecar holding content hashes for one
// snapshot. A writable index is created for the staging snapshot and
// renamed with it on commit; committed indexes are opened read-only.
type HashIndex struct {
	db       *sql.DB
	path     string
	alg      HashAlgorithm
	readOnly bool

	// Batch buffer for Record calls.
	mu      sync.Mutex
	batch   []IndexEntry
	done    chan struct{}
	stopped bool
}

// CreateIndex creates a fresh writable index at path, replacing any
// leftover file from an earlier crashed run.
func CreateIndex(path string, alg HashAlgorithm) (*HashIndex, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("remove stale index: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}
	// One connection keeps the batched transactions serialized.
	db.SetMaxOpenConns(1)

	x := &HashIndex{
		db:   db,
		path: path,
		alg:  alg,
		done: make(chan struct{}),
	}
	if err := x.init(); err != nil {
		db.Close()
		return nil, err
	}

	// Start background batch flusher.
	go x.flushLoop()
	return x, nil
}

// OpenIndex opens a committed index read-only. A missing file yields
// (nil, nil): the snapshot simply has no recorded hashes.
func OpenIndex(path string) (*HashIndex, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat index: %w", err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro&immutable=1", path))
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}
	x := &HashIndex{db: db, path: path, readOnly: true}

	var alg string
	if err := db.QueryRow("SELECT value FROM meta WHERE key = 'algorithm'").Scan(&alg); err != nil {
		db.Close()
		return nil, fmt.Errorf("read index %s: %w", path, err)
	}
	x.alg = HashAlgorithm(alg)
	return x, nil
}

func (x *HashIndex) init() error {
	_, err := x.db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			path    TEXT PRIMARY KEY,
			size    INTEGER NOT NULL,
			mtime   INTEGER NOT NULL,
			hash    TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}

	_, err = x.db.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES ('algorithm', ?), ('version', ?)",
		string(x.alg), indexSchemaVersion,
	)
	if err != nil {
		return fmt.Errorf("store meta: %w", err)
	}
	return nil
}

// Algorithm returns the hash algorithm the index was written with.
func (x *HashIndex) Algorithm() HashAlgorithm { return x.alg }

// Path returns the index file path.
func (x *HashIndex) Path() string { return x.path }

// All returns every entry keyed by relative path.
func (x *HashIndex) All(ctx context.Context) (map[string]IndexEntry, error) {
	rows, err := x.db.QueryContext(ctx, "SELECT path, size, mtime, hash FROM entries")
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	defer rows.Close()

	out := make(map[string]IndexEntry)
	for rows.Next() {
		var e IndexEntry
		if err := rows.Scan(&e.Path, &e.Size, &e.MtimeNano, &e.Hash); err != nil {
			return nil, fmt.Errorf("scan index row: %w", err)
		}
		out[e.Path] = e
	}
	return out, rows.Err()
}

// Record stores a file's hash. Writes are batched and flushed
// periodically for performance.
func (x *HashIndex) Record(e IndexEntry) error {
	if x.readOnly {
		return fmt.Errorf("record %s: index %s is read-only", e.Path, x.path)
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	x.batch = append(x.batch, e)
	if len(x.batch) >= 100 {
		return x.flushLocked()
	}
	return nil
}

// Flush writes any pending batch entries to the database.
func (x *HashIndex) Flush() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.flushLocked()
}

func (x *HashIndex) flushLocked() error {
	if len(x.batch) == 0 {
		return nil
	}

	tx, err := x.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	stmt, err := tx.Prepare("INSERT OR REPLACE INTO entries (path, size, mtime, hash) VALUES (?, ?, ?, ?)")
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range x.batch {
		if _, err := stmt.Exec(e.Path, e.Size, e.MtimeNano, e.Hash); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert %s: %w", e.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	x.batch = x.batch[:0]
	return nil
}

func (x *HashIndex) flushLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-x.done:
			return
		case <-ticker.C:
			x.mu.Lock()
			_ = x.flushLocked()
			x.mu.Unlock()
		}
	}
}

// Close flushes any pending writes and closes the database.
func (x *HashIndex) Close() error {
	if x == nil {
		return nil
	}
	var flushErr error
	if !x.readOnly {
		x.mu.Lock()
		if !x.stopped {
			x.stopped = true
			close(x.done)
		}
		flushErr = x.flushLocked()
		x.mu.Unlock()
	}
	if err := x.db.Close(); err != nil {
		return err
	}
	return flushErr
}
