package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/bamsammich/recall/internal/event"
	"github.com/bamsammich/recall/internal/filter"
	"github.com/bamsammich/recall/internal/stats"
)

// ScannerConfig controls scanner behavior.
type ScannerConfig struct {
	Filter  *filter.Chain      // nil includes everything
	Stats   *stats.Collector   // nil disables counting
	Events  chan<- event.Event // nil disables events
	Root    string
	Workers int // concurrent directory reads
}

// Scanner walks a tree and emits FileRecords in pre-order depth-first
// order with siblings sorted by name. Directory listings are read in
// parallel ahead of the emitter; the emitter blocks on a directory's
// listing only when it reaches that directory, so output order does not
// depend on read scheduling.
type Scanner struct {
	cfg ScannerConfig
	sem chan struct{}
}

// NewScanner creates a scanner with the given config.
func NewScanner(cfg ScannerConfig) *Scanner {
	if cfg.Workers <= 0 {
		cfg.Workers = min(runtime.NumCPU(), 8)
	}
	return &Scanner{
		cfg: cfg,
		sem: make(chan struct{}, cfg.Workers),
	}
}

// listing is the sorted, filtered children of one directory.
type listing struct {
	err     error
	entries []FileRecord
}

type frame struct {
	pending <-chan listing // set for directories
	rec     FileRecord
}

// Scan starts the scanner and returns channels for records and errors.
// The caller must consume records until the channel closes, then read the
// error channel, which yields at most one structural error (unreadable
// root or cancellation). Per-entry failures arrive as KindError records.
func (s *Scanner) Scan(ctx context.Context) (<-chan FileRecord, <-chan error) {
	records := make(chan FileRecord, s.cfg.Workers*4)
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		defer close(records)
		if err := s.walk(ctx, records); err != nil {
			errs <- err
		}
	}()
	return records, errs
}

// Collect runs a scan to completion and returns every record.
func (s *Scanner) Collect(ctx context.Context) ([]FileRecord, error) {
	records, errs := s.Scan(ctx)
	var out []FileRecord
	for rec := range records {
		out = append(out, rec)
	}
	return out, <-errs
}

func (s *Scanner) walk(ctx context.Context, out chan<- FileRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(s.cfg.Root)
	if err != nil {
		return fmt.Errorf("scan root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("scan root %s: not a directory", s.cfg.Root)
	}

	var root listing
	select {
	case root = <-s.readDir(ctx, s.cfg.Root, ""):
	case <-ctx.Done():
		return ctx.Err()
	}
	if root.err != nil {
		return fmt.Errorf("scan root: %w", root.err)
	}

	stack := s.push(ctx, nil, root.entries)
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		rec := top.rec
		var children []FileRecord
		if top.pending != nil {
			var l listing
			select {
			case l = <-top.pending:
			case <-ctx.Done():
				return ctx.Err()
			}
			if l.err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				rec = errorRecord(rec.RelPath, rec.AbsPath, l.err)
			} else {
				children = l.entries
			}
		}

		select {
		case out <- rec:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.count(rec)

		if len(children) > 0 {
			stack = s.push(ctx, stack, children)
		}
	}
	return nil
}

// push starts reads for every child directory in name order, then pushes
// the children so the first sibling is on top.
func (s *Scanner) push(ctx context.Context, stack []frame, entries []FileRecord) []frame {
	frames := make([]frame, len(entries))
	for i, e := range entries {
		frames[i] = frame{rec: e}
		if e.Kind == KindDir {
			frames[i].pending = s.readDir(ctx, e.AbsPath, e.RelPath)
		}
	}
	for i := len(frames) - 1; i >= 0; i-- {
		stack = append(stack, frames[i])
	}
	return stack
}

// readDir lists absDir in the background once a read slot is free.
func (s *Scanner) readDir(ctx context.Context, absDir, relDir string) <-chan listing {
	ch := make(chan listing, 1)
	go func() {
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			ch <- listing{err: ctx.Err()}
			return
		}
		defer func() { <-s.sem }()
		ch <- s.list(absDir, relDir)
	}()
	return ch
}

func (s *Scanner) list(absDir, relDir string) listing {
	dirEntries, err := os.ReadDir(absDir)
	if err != nil {
		return listing{err: err}
	}
	sort.Slice(dirEntries, func(i, j int) bool { return dirEntries[i].Name() < dirEntries[j].Name() })

	entries := make([]FileRecord, 0, len(dirEntries))
	for _, d := range dirEntries {
		rel := joinRel(relDir, d.Name())
		abs := filepath.Join(absDir, d.Name())

		if !s.cfg.Filter.Match(rel, d.IsDir()) {
			s.skip(rel, "excluded")
			continue
		}

		rec, ok := s.stat(rel, abs)
		if !ok {
			s.skip(rel, "unsupported file type")
			continue
		}
		entries = append(entries, rec)
	}
	return listing{entries: entries}
}

// stat builds the record for one entry. It reports false for entry types
// the backup does not carry (sockets, devices, FIFOs).
func (s *Scanner) stat(rel, abs string) (FileRecord, bool) {
	info, err := os.Lstat(abs)
	if err != nil {
		return errorRecord(rel, abs, err), true
	}

	dev, atime := statTimes(info)
	rec := FileRecord{
		RelPath: rel,
		AbsPath: abs,
		ModTime: info.ModTime(),
		AccTime: atime,
		Mode:    info.Mode(),
		Dev:     dev,
	}

	mode := info.Mode()
	switch {
	case mode.IsDir():
		rec.Kind = KindDir
	case mode&os.ModeSymlink != 0:
		target, err := os.Readlink(abs)
		if err != nil {
			return errorRecord(rel, abs, err), true
		}
		rec.Kind = KindSymlink
		rec.LinkTarget = target
		rec.Size = info.Size()
	case mode.IsRegular():
		rec.Kind = KindRegular
		rec.Size = info.Size()
	default:
		return FileRecord{}, false
	}
	return rec, true
}

func (s *Scanner) skip(rel, reason string) {
	slog.Debug("skipping entry", "path", rel, "reason", reason)
	if s.cfg.Stats != nil {
		s.cfg.Stats.AddFilesSkipped(1)
	}
	event.Emit(s.cfg.Events, event.Event{Type: event.FileSkipped, Path: rel})
}

func (s *Scanner) count(rec FileRecord) {
	if s.cfg.Stats != nil {
		s.cfg.Stats.AddEntriesScanned(1)
	}
	if rec.Kind == KindError {
		slog.Warn("unreadable entry", "path", rec.RelPath, "error", rec.Err)
	}
}

func errorRecord(rel, abs string, err error) FileRecord {
	return FileRecord{
		RelPath: rel,
		AbsPath: abs,
		Kind:    KindError,
		Err:     &EntryReadError{Path: rel, Err: err},
	}
}
