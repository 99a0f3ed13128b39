package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bamsammich/recall/internal/event"
	"github.com/bamsammich/recall/internal/filter"
	"github.com/bamsammich/recall/internal/shadow"
	"github.com/bamsammich/recall/internal/snapshot"
	"github.com/bamsammich/recall/internal/stats"
)

// Config describes one backup run.
type Config struct {
	Events        chan<- event.Event
	Provider      shadow.Provider // used with UseSnapshot; nil selects shadow.Default()
	Filter        *filter.Chain   // ignore-file and profile rules, matched before Excludes
	Now           func() time.Time
	Source        string
	Destination   string
	Project       string // directory under Destination; defaults to the source's base name
	Hash          HashAlgorithm
	CrossVolume   CrossVolumePolicy
	Excludes      []string
	ModTimeWindow time.Duration
	BWLimit       int64 // bytes per second, 0 for unlimited
	Workers       int
	ScanWorkers   int
	CheckContent  bool
	UseSnapshot   bool
	DryRun        bool
}

// DefaultConfig returns a config with the defaults the CLI uses.
func DefaultConfig(source, destination string) Config {
	return Config{
		Source:        source,
		Destination:   destination,
		Hash:          HashBLAKE3,
		CrossVolume:   CrossVolumeFail,
		ModTimeWindow: DefaultModTimeWindow,
		Workers:       runtime.NumCPU(),
		Now:           time.Now,
	}
}

// Validate checks the config without touching the filesystem.
func (c Config) Validate() error {
	if c.Source == "" {
		return errors.New("source path is required")
	}
	if c.Destination == "" {
		return errors.New("destination path is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.ModTimeWindow < 0 {
		return fmt.Errorf("mtime window must not be negative, got %s", c.ModTimeWindow)
	}
	if c.BWLimit < 0 {
		return fmt.Errorf("bandwidth limit must not be negative, got %d", c.BWLimit)
	}
	if _, err := ParseHashAlgorithm(string(c.Hash)); err != nil {
		return err
	}
	if _, err := ParseCrossVolumePolicy(string(c.CrossVolume)); err != nil {
		return err
	}
	if strings.ContainsAny(c.ProjectName(), `/\`) || c.ProjectName() == "." || c.ProjectName() == ".." {
		return fmt.Errorf("invalid project name %q", c.ProjectName())
	}
	src, err := filepath.Abs(c.Source)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	dst, err := filepath.Abs(c.Destination)
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	if rel, err := filepath.Rel(src, dst); err == nil &&
		rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("destination %s is inside source %s", c.Destination, c.Source)
	}
	return nil
}

// ProjectName returns the directory name the snapshots live under: Project
// when set, otherwise the base name of the absolute source path. A
// filesystem root has no base name and maps to "root", or to "C_Drive" for
// a Windows drive root.
func (c Config) ProjectName() string {
	if c.Project != "" {
		return c.Project
	}
	src, err := filepath.Abs(c.Source)
	if err != nil {
		src = filepath.Clean(c.Source)
	}
	base := filepath.Base(src)
	if base == string(filepath.Separator) || base == "." || base == ".." {
		if vol := strings.TrimSuffix(filepath.VolumeName(src), ":"); vol != "" {
			return vol + "_Drive"
		}
		return "root"
	}
	return base
}

// ProjectDir returns Destination/ProjectName.
func (c Config) ProjectDir() string {
	return filepath.Join(c.Destination, c.ProjectName())
}

// Verdict is the overall outcome of a run.
type Verdict int

const (
	Success Verdict = iota
	PartialFailure
	Failure
)

func (v Verdict) String() string {
	switch v {
	case Success:
		return "success"
	case PartialFailure:
		return "partial failure"
	default:
		return "failure"
	}
}

// ExitCode maps the verdict to the CLI's process exit status.
func (v Verdict) ExitCode() int {
	return int(v)
}

// Result is the outcome of a backup run.
type Result struct {
	Err          error
	Name         string // snapshot name, also set for dry runs
	SnapshotPath string // committed snapshot directory, "" when nothing was committed
	Outcomes     []Outcome
	Stats        stats.Snapshot
	Verdict      Verdict
	Committed    bool
	DryRun       bool
}

// Run performs one backup, blocking until it commits, discards or fails.
func Run(ctx context.Context, cfg Config) Result {
	collector := stats.NewCollector()
	failed := func(err error) Result {
		return Result{Verdict: Failure, Stats: collector.Snapshot(), Err: err, DryRun: cfg.DryRun}
	}

	if err := cfg.Validate(); err != nil {
		return failed(err)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	chain, err := buildChain(cfg.Filter, cfg.Excludes)
	if err != nil {
		return failed(fmt.Errorf("exclude patterns: %w", err))
	}

	// Work on absolute paths so the run does not depend on the working
	// directory and baseline link sources are unambiguous.
	if abs, err := filepath.Abs(cfg.Source); err == nil {
		cfg.Source = abs
	}
	if abs, err := filepath.Abs(cfg.Destination); err == nil {
		cfg.Destination = abs
	}

	var provider shadow.Provider = shadow.Live{}
	if cfg.UseSnapshot {
		provider = cfg.Provider
		if provider == nil {
			provider = shadow.Default()
		}
	}
	view, err := provider.Freeze(ctx, cfg.Source)
	if err != nil {
		return failed(&SnapshotProviderError{Source: cfg.Source, Err: err})
	}
	defer func() {
		if err := view.Close(); err != nil {
			slog.Warn("release source snapshot", "error", err)
		}
	}()
	scanRoot := view.Root
	if info, err := os.Stat(scanRoot); err != nil {
		return failed(fmt.Errorf("source: %w", err))
	} else if !info.IsDir() {
		return failed(fmt.Errorf("source %s is not a directory", scanRoot))
	}

	// Structural checks run against a read-only view of the project
	// directory; nothing is mutated until all of them pass.
	store := snapshot.NewStore(cfg.ProjectDir())
	st, err := store.Inspect()
	if err != nil {
		return failed(err)
	}
	for _, p := range st.Partials {
		slog.Warn("leftover staging directory from an interrupted run", "path", filepath.Join(store.Root(), p))
	}

	destDev := deviceOf(store.Root())
	var baselinePath string
	if st.Latest != "" {
		baselinePath = store.Path(st.Latest)
		if err := checkReadableDir(baselinePath); err != nil {
			return failed(fmt.Errorf("load baseline %s: %w", baselinePath, err))
		}
		if cfg.CrossVolume == CrossVolumeAbort {
			if dev := deviceOf(baselinePath); dev != destDev {
				return failed(&CrossVolumeLinkError{Path: store.Root(), Source: baselinePath})
			}
		}
	}

	if !cfg.DryRun && st.Stale() && st.Latest != "" {
		if st, _, err = store.Repair(); err != nil {
			return failed(err)
		}
	}

	var baseIdx *HashIndex
	if baselinePath != "" && cfg.CheckContent {
		baseIdx, err = OpenIndex(store.IndexPath(st.Latest))
		if err != nil {
			slog.Warn("baseline hash index unusable, metadata-equal files will be copied", "error", err)
			baseIdx = nil
		}
		defer baseIdx.Close()
	}

	name := freshName(store, cfg.Now(), st.Latest)
	staging := store.StagingPath(name)

	var newIdx *HashIndex
	if !cfg.DryRun {
		if err := os.MkdirAll(store.Root(), 0o755); err != nil {
			return failed(fmt.Errorf("create project dir: %w", err))
		}
		if err := os.Mkdir(staging, 0o700); err != nil {
			return failed(fmt.Errorf("create staging dir: %w", err))
		}
		if cfg.CheckContent {
			newIdx, err = CreateIndex(store.StagingIndexPath(name), cfg.Hash)
			if err != nil {
				discardStaging(store, name)
				return failed(err)
			}
		}
	}

	slog.Info("starting backup", "source", cfg.Source, "snapshot", name,
		"baseline", st.Latest, "dry_run", cfg.DryRun)

	pool := NewWorkerPool(WorkerConfig{
		Stats:       collector,
		Events:      cfg.Events,
		Index:       newIdx,
		Limiter:     NewBWLimiter(cfg.BWLimit),
		StagingRoot: staging,
		Hash:        cfg.Hash,
		CrossVolume: cfg.CrossVolume,
		DestDev:     destDev,
		NumWorkers:  cfg.Workers,
		DryRun:      cfg.DryRun,
	})
	opts := DecideOptions{ModTimeWindow: cfg.ModTimeWindow, CheckContent: cfg.CheckContent}

	g, gctx := errgroup.WithContext(ctx)

	// Baseline load and source scan run concurrently; decisions wait for
	// the baseline.
	var manifest *Manifest
	manifestReady := make(chan struct{})
	g.Go(func() error {
		m, err := LoadManifest(gctx, baselinePath, baseIdx, cfg.ScanWorkers)
		if err != nil {
			return err
		}
		manifest = m
		close(manifestReady)
		if baselinePath != "" {
			slog.Info("baseline loaded", "snapshot", st.Latest, "entries", m.Len(), "hashed", m.Hashed)
		}
		event.Emit(cfg.Events, event.Event{Type: event.BaselineLoaded, Path: st.Latest, Total: int64(m.Len())})
		return nil
	})

	event.Emit(cfg.Events, event.Event{Type: event.ScanStarted, Path: scanRoot})
	scanner := NewScanner(ScannerConfig{
		Root:    scanRoot,
		Filter:  chain,
		Stats:   collector,
		Events:  cfg.Events,
		Workers: cfg.ScanWorkers,
	})
	records, scanErrs := scanner.Scan(gctx)

	actions := make(chan Action, cfg.Workers*4)
	g.Go(func() error {
		defer close(actions)
		select {
		case <-manifestReady:
		case <-gctx.Done():
			return gctx.Err()
		}
		for rec := range records {
			select {
			case actions <- Decide(rec, manifest, opts):
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		if err := <-scanErrs; err != nil {
			return fmt.Errorf("scan source: %w", err)
		}
		event.Emit(cfg.Events, event.Event{Type: event.ScanComplete, Total: collector.Snapshot().EntriesScanned})
		return nil
	})

	g.Go(func() error {
		return pool.Run(gctx, actions)
	})

	// Barrier: nothing commits before every dispatched action resolved.
	runErr := g.Wait()

	if !cfg.DryRun {
		pool.FinishDirs()
	}
	hasIndex := false
	if newIdx != nil {
		if err := newIdx.Close(); err != nil {
			slog.Warn("write hash index, snapshot will have no index", "error", err)
			_ = os.Remove(store.StagingIndexPath(name))
		} else {
			hasIndex = true
		}
	}

	res := Result{
		Name:     name,
		Outcomes: pool.Failures(),
		DryRun:   cfg.DryRun,
	}

	if ctx.Err() != nil || runErr != nil {
		if !cfg.DryRun {
			discardStaging(store, name)
			event.Emit(cfg.Events, event.Event{Type: event.SnapshotDiscarded, Path: name})
		}
		res.Stats = collector.Snapshot()
		res.Verdict = Failure
		if ctx.Err() != nil {
			res.Err = fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		} else {
			res.Err = runErr
		}
		return res
	}

	res.Stats = collector.Snapshot()
	res.Verdict = Success
	if res.Stats.FilesFailed > 0 {
		res.Verdict = PartialFailure
	}

	if res.Stats.Materialized() == 0 {
		if !cfg.DryRun {
			discardStaging(store, name)
			event.Emit(cfg.Events, event.Event{Type: event.SnapshotDiscarded, Path: name})
		}
		if res.Stats.FilesFailed > 0 {
			res.Verdict = Failure
		}
		slog.Info("no entries materialized, nothing committed", "snapshot", name)
		return res
	}

	if cfg.DryRun {
		return res
	}

	if err := commitSnapshot(store, name, hasIndex); err != nil {
		res.Verdict = Failure
		res.Err = err
		var ce *CommitError
		// The directory is already published when only the pointer swap failed.
		if errors.As(err, &ce) && ce.Op == "repoint current" {
			res.Committed = true
			res.SnapshotPath = store.Path(name)
		}
		return res
	}

	res.Committed = true
	res.SnapshotPath = store.Path(name)
	slog.Info("snapshot committed", "snapshot", name, "stats", res.Stats.String())
	event.Emit(cfg.Events, event.Event{Type: event.SnapshotCommitted, Path: name})
	return res
}

func buildChain(base *filter.Chain, excludes []string) (*filter.Chain, error) {
	extra, err := filter.FromExcludes(excludes)
	if err != nil {
		return nil, err
	}
	if base == nil {
		return extra, nil
	}
	return base.Concat(extra), nil
}

// checkReadableDir reports an error unless path is a directory whose
// entries can be listed.
func checkReadableDir(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// deviceOf returns the device number of path, or of its nearest existing
// ancestor when path does not exist yet.
var deviceOf = statDevice

func statDevice(path string) uint64 {
	for p := path; ; p = filepath.Dir(p) {
		if info, err := os.Stat(p); err == nil {
			dev, _ := statTimes(info)
			return dev
		}
		if parent := filepath.Dir(p); parent == p {
			return 0
		}
	}
}
