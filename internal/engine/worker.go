package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/bamsammich/recall/internal/event"
	"github.com/bamsammich/recall/internal/platform"
	"github.com/bamsammich/recall/internal/stats"
)

// CrossVolumePolicy decides what happens when a Link action's baseline is
// on a different volume than the staging directory.
type CrossVolumePolicy string

const (
	CrossVolumeFail  CrossVolumePolicy = "fail"  // fail that entry, keep going
	CrossVolumeCopy  CrossVolumePolicy = "copy"  // fall back to a full copy
	CrossVolumeAbort CrossVolumePolicy = "abort" // refuse the run before staging
)

// ParseCrossVolumePolicy validates a policy name. The empty string selects
// CrossVolumeFail.
func ParseCrossVolumePolicy(s string) (CrossVolumePolicy, error) {
	switch p := CrossVolumePolicy(strings.ToLower(s)); p {
	case "":
		return CrossVolumeFail, nil
	case CrossVolumeFail, CrossVolumeCopy, CrossVolumeAbort:
		return p, nil
	default:
		return "", fmt.Errorf("unknown cross-volume policy %q (want fail, copy or abort)", s)
	}
}

// WorkerConfig controls worker behavior.
type WorkerConfig struct {
	Stats       *stats.Collector
	Events      chan<- event.Event
	Index       *HashIndex    // receives hashes of materialized files; nil disables
	Limiter     *rate.Limiter // shared copy bandwidth cap; nil is unlimited
	StagingRoot string
	Hash        HashAlgorithm
	CrossVolume CrossVolumePolicy
	DestDev     uint64 // device of the destination, for dry-run link checks
	NumWorkers  int
	DryRun      bool
}

// Outcome records one entry that did not make it into the snapshot.
type Outcome struct {
	Err    error
	Path   string
	Action ActionKind
}

type dirMeta struct {
	modTime time.Time
	accTime time.Time
	path    string
	depth   int
	perm    os.FileMode
}

// WorkerPool materializes actions into the staging directory.
type WorkerPool struct {
	cfg  WorkerConfig
	gate *dirGate
	tmp  tmpRegistry

	mu       sync.Mutex
	failures []Outcome
	dirs     []dirMeta
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(cfg WorkerConfig) *WorkerPool {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	if cfg.CrossVolume == "" {
		cfg.CrossVolume = CrossVolumeFail
	}
	return &WorkerPool{cfg: cfg, gate: newDirGate()}
}

// Run dispatches actions to the workers until actions closes or ctx is
// cancelled, then waits for everything already dispatched to resolve.
// It returns ctx.Err() when the run was cancelled.
func (wp *WorkerPool) Run(ctx context.Context, actions <-chan Action) error {
	work := make(chan Action, wp.cfg.NumWorkers*2)

	var wg sync.WaitGroup
	for id := range wp.cfg.NumWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for a := range work {
				wp.process(ctx, id, a)
			}
		}()
	}

	cancelled := false
dispatch:
	for {
		select {
		case <-ctx.Done():
			cancelled = true
			break dispatch
		case a, ok := <-actions:
			if !ok {
				break dispatch
			}
			// Registered before any child can be dispatched.
			if a.Kind == ActCreateDir {
				wp.gate.register(a.Record.RelPath)
			}
			select {
			case work <- a:
			case <-ctx.Done():
				if a.Kind == ActCreateDir {
					wp.gate.resolve(a.Record.RelPath, ctx.Err())
				}
				cancelled = true
				break dispatch
			}
		}
	}
	close(work)
	wg.Wait()

	if cancelled || ctx.Err() != nil {
		if n := wp.tmp.cleanup(); n > 0 {
			slog.Debug("removed temporary copy files", "count", n)
		}
		return ctx.Err()
	}
	return nil
}

// Failures returns the entries that failed, in completion order.
func (wp *WorkerPool) Failures() []Outcome {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return append([]Outcome(nil), wp.failures...)
}

// FinishDirs applies directory permissions and times, deepest first, so
// creating children no longer bumps a parent's mtime. Call after Run.
func (wp *WorkerPool) FinishDirs() {
	wp.mu.Lock()
	dirs := wp.dirs
	wp.dirs = nil
	wp.mu.Unlock()

	sort.SliceStable(dirs, func(i, j int) bool { return dirs[i].depth > dirs[j].depth })
	for _, d := range dirs {
		if err := os.Chmod(d.path, d.perm); err != nil {
			slog.Warn("set directory mode", "path", d.path, "error", err)
		}
		if err := setTimes(d.path, d.accTime, d.modTime, false); err != nil {
			slog.Warn("set directory times", "path", d.path, "error", err)
		}
	}
}

func (wp *WorkerPool) process(ctx context.Context, id int, a Action) {
	rel := a.Record.RelPath
	isDir := a.Kind == ActCreateDir

	// Queued but not started when the run was cancelled.
	if ctx.Err() != nil {
		if isDir {
			wp.gate.resolve(rel, ctx.Err())
		}
		return
	}

	if err := wp.gate.wait(ctx, parentRel(rel)); err != nil {
		if ctx.Err() == nil {
			err = fmt.Errorf("%s: %w", parentRel(rel), ErrParentFailed)
			wp.fail(id, a, err)
		}
		if isDir {
			wp.gate.resolve(rel, err)
		}
		return
	}

	var err error
	switch a.Kind {
	case ActCreateDir:
		err = wp.createDir(id, a)
		wp.gate.resolve(rel, err)
	case ActCopy:
		err = wp.copyFile(ctx, id, a)
	case ActLink:
		err = wp.link(ctx, id, a, a.Baseline.ContentHash)
	case ActSymlink:
		err = wp.symlink(id, a)
	case ActVerify:
		err = wp.verify(ctx, id, a)
	case ActError:
		err = a.Record.Err
		if err == nil {
			err = &EntryReadError{Path: rel, Err: errors.New("unreadable")}
		}
	default:
		err = fmt.Errorf("unknown action %d for %s", a.Kind, rel)
	}
	if err != nil {
		wp.fail(id, a, err)
	}
}

func (wp *WorkerPool) dstPath(rel string) string {
	return filepath.Join(wp.cfg.StagingRoot, filepath.FromSlash(rel))
}

func (wp *WorkerPool) createDir(id int, a Action) error {
	rel := a.Record.RelPath
	if !wp.cfg.DryRun {
		dst := wp.dstPath(rel)
		// Owner-writable until FinishDirs so children can be created.
		if err := os.Mkdir(dst, 0o700); err != nil {
			return fmt.Errorf("mkdir %s: %w", rel, err)
		}
		wp.mu.Lock()
		wp.dirs = append(wp.dirs, dirMeta{
			path:    dst,
			perm:    a.Record.Perm(),
			modTime: a.Record.ModTime,
			accTime: a.Record.AccTime,
			depth:   strings.Count(rel, "/"),
		})
		wp.mu.Unlock()
	}

	wp.cfg.Stats.AddDirsCreated(1)
	event.Emit(wp.cfg.Events, event.Event{Type: event.DirCreated, Path: rel, WorkerID: id})
	return nil
}

func (wp *WorkerPool) copyFile(ctx context.Context, id int, a Action) error {
	rec := a.Record
	if wp.cfg.DryRun {
		wp.cfg.Stats.AddFilesCopied(1)
		wp.cfg.Stats.AddBytesCopied(rec.Size)
		event.Emit(wp.cfg.Events, event.Event{Type: event.FileCopied, Path: rec.RelPath, Size: rec.Size, WorkerID: id})
		return nil
	}

	dst := wp.dstPath(rec.RelPath)
	tmpName := fmt.Sprintf(".%s.%s.recall-tmp", filepath.Base(dst), uuid.New().String()[:8])
	tmpPath := filepath.Join(filepath.Dir(dst), tmpName)

	wp.tmp.add(tmpPath)
	defer func() {
		wp.tmp.remove(tmpPath)
		_ = os.Remove(tmpPath) // no-op if rename succeeded
	}()

	n, err := wp.copyData(ctx, rec, tmpPath)
	if err != nil {
		return &EntryReadError{Path: rec.RelPath, Err: err}
	}

	// Metadata before rename so the final name never shows partial state.
	if err := os.Chmod(tmpPath, rec.Perm()); err != nil {
		return fmt.Errorf("chmod %s: %w", rec.RelPath, err)
	}
	if err := setTimes(tmpPath, rec.AccTime, rec.ModTime, false); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmpName, rec.RelPath, err)
	}

	wp.cfg.Stats.AddFilesCopied(1)
	wp.cfg.Stats.AddBytesCopied(n)

	if wp.cfg.Index != nil {
		h, err := HashFile(dst, wp.cfg.Hash)
		if err != nil {
			slog.Warn("hash copied file", "path", rec.RelPath, "error", err)
		} else {
			wp.recordHash(rec, h)
		}
	}

	event.Emit(wp.cfg.Events, event.Event{Type: event.FileCopied, Path: rec.RelPath, Size: n, WorkerID: id})
	return nil
}

func (wp *WorkerPool) copyData(ctx context.Context, rec FileRecord, tmpPath string) (int64, error) {
	if wp.cfg.Limiter == nil {
		result, err := platform.CopyFile(platform.CopyFileParams{
			SrcPath: rec.AbsPath,
			DstPath: tmpPath,
			SrcSize: rec.Size,
		})
		return result.BytesWritten, err
	}

	src, err := os.Open(rec.AbsPath)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	dst, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(dst, throttle(ctx, src, wp.cfg.Limiter))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// linkFile creates hardlinks; replaced in tests to simulate link(2) errors.
var linkFile = os.Link

// link hardlinks the baseline's own file into the staging tree. hash is
// the verified content hash, or "" when unknown.
func (wp *WorkerPool) link(ctx context.Context, id int, a Action, hash string) error {
	rec := a.Record
	src := a.Source()

	if wp.cfg.DryRun {
		if wp.cfg.DestDev != 0 && a.Baseline.Dev != 0 && a.Baseline.Dev != wp.cfg.DestDev {
			return wp.crossVolume(ctx, id, a, &CrossVolumeLinkError{Path: rec.RelPath, Source: src})
		}
		wp.countLinked(id, rec)
		return nil
	}

	if err := linkFile(src, wp.dstPath(rec.RelPath)); err != nil {
		switch {
		case errors.Is(err, syscall.EXDEV):
			return wp.crossVolume(ctx, id, a, &CrossVolumeLinkError{Path: rec.RelPath, Source: src, Err: err})
		case errors.Is(err, syscall.EMLINK):
			// The baseline inode has reached the filesystem's link limit.
			slog.Debug("link limit reached, copying instead", "path", rec.RelPath)
			return wp.rematerialize(ctx, id, a)
		default:
			return fmt.Errorf("link %s: %w", rec.RelPath, err)
		}
	}

	wp.countLinked(id, rec)
	if hash != "" && rec.Kind == KindRegular {
		wp.recordHash(rec, hash)
	}
	return nil
}

func (wp *WorkerPool) countLinked(id int, rec FileRecord) {
	wp.cfg.Stats.AddFilesLinked(1)
	wp.cfg.Stats.AddBytesLinked(rec.Size)
	event.Emit(wp.cfg.Events, event.Event{Type: event.FileLinked, Path: rec.RelPath, Size: rec.Size, WorkerID: id})
}

func (wp *WorkerPool) crossVolume(ctx context.Context, id int, a Action, err *CrossVolumeLinkError) error {
	if wp.cfg.CrossVolume == CrossVolumeCopy {
		return wp.rematerialize(ctx, id, a)
	}
	return err
}

// rematerialize performs the action as if there were no baseline.
func (wp *WorkerPool) rematerialize(ctx context.Context, id int, a Action) error {
	if a.Record.Kind == KindSymlink {
		return wp.symlink(id, a)
	}
	return wp.copyFile(ctx, id, a)
}

func (wp *WorkerPool) symlink(id int, a Action) error {
	rec := a.Record
	if !wp.cfg.DryRun {
		dst := wp.dstPath(rec.RelPath)
		if err := os.Symlink(rec.LinkTarget, dst); err != nil {
			return fmt.Errorf("symlink %s -> %s: %w", rec.RelPath, rec.LinkTarget, err)
		}
		if err := setTimes(dst, rec.AccTime, rec.ModTime, true); err != nil {
			slog.Debug("set symlink times", "path", rec.RelPath, "error", err)
		}
	}

	wp.cfg.Stats.AddSymlinksCreated(1)
	event.Emit(wp.cfg.Events, event.Event{Type: event.SymlinkCreated, Path: rec.RelPath, WorkerID: id})
	return nil
}

// verify hashes the live file and links only when it matches the
// baseline's recorded hash. Dry runs hash too so their counts match.
func (wp *WorkerPool) verify(ctx context.Context, id int, a Action) error {
	rec := a.Record
	h, err := HashFile(rec.AbsPath, wp.cfg.Hash)
	if err != nil {
		return &EntryReadError{Path: rec.RelPath, Err: err}
	}
	wp.cfg.Stats.AddFilesVerified(1)

	if ResolveVerify(h, a.Baseline.ContentHash) == ActLink {
		return wp.link(ctx, id, a, h)
	}
	slog.Debug("content differs from baseline or baseline hash unknown, copying",
		"path", rec.RelPath, "baseline_hash", a.Baseline.ContentHash)
	return wp.copyFile(ctx, id, a)
}

func (wp *WorkerPool) recordHash(rec FileRecord, h string) {
	if wp.cfg.Index == nil || wp.cfg.DryRun {
		return
	}
	err := wp.cfg.Index.Record(IndexEntry{
		Path:      rec.RelPath,
		Hash:      h,
		Size:      rec.Size,
		MtimeNano: rec.ModTime.UnixNano(),
	})
	if err != nil {
		slog.Warn("record hash", "path", rec.RelPath, "error", err)
	}
}

func (wp *WorkerPool) fail(id int, a Action, err error) {
	wp.cfg.Stats.AddFilesFailed(1)
	wp.mu.Lock()
	wp.failures = append(wp.failures, Outcome{Path: a.Record.RelPath, Action: a.Kind, Err: err})
	wp.mu.Unlock()

	slog.Warn("entry failed", "path", a.Record.RelPath, "action", a.Kind.String(), "error", err)
	event.Emit(wp.cfg.Events, event.Event{Type: event.FileFailed, Path: a.Record.RelPath, Error: err, WorkerID: id})
}
