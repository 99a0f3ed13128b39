package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bamsammich/recall/internal/event"
	"github.com/bamsammich/recall/internal/stats"
)

// VerifyConfig controls a re-hash of a committed snapshot.
type VerifyConfig struct {
	Index        *HashIndex
	Events       chan<- event.Event
	Stats        *stats.Collector // nil disables counting
	SnapshotRoot string
	Workers      int
}

// VerifyResult holds the outcome of a verification pass.
type VerifyResult struct {
	Errors     []VerifyError
	Verified   int64
	Mismatched int64
	Missing    int64 // files with no recorded hash
}

// OK reports whether every recorded file matched.
func (r VerifyResult) OK() bool {
	return r.Mismatched == 0
}

// VerifyError records a single checksum mismatch or unreadable file.
type VerifyError struct {
	Err  error
	Path string
	Want string
	Got  string
}

// Verify re-hashes every regular file in a snapshot and compares it with
// the snapshot's hash index. Index entries whose file is gone count as
// mismatches.
func Verify(ctx context.Context, cfg VerifyConfig) (VerifyResult, error) {
	if cfg.Index == nil {
		return VerifyResult{}, errors.New("snapshot has no hash index (it was taken without --check-content)")
	}
	event.Emit(cfg.Events, event.Event{Type: event.VerifyStarted, Path: cfg.SnapshotRoot})

	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}

	want, err := cfg.Index.All(ctx)
	if err != nil {
		return VerifyResult{}, err
	}

	scanner := NewScanner(ScannerConfig{Root: cfg.SnapshotRoot, Workers: workers})
	records, scanErrs := scanner.Scan(ctx)

	taskCh := make(chan FileRecord, workers*2)
	var mu sync.Mutex
	var result VerifyResult
	seen := make(map[string]struct{}, len(want))
	var wg sync.WaitGroup

	mismatch := func(ve VerifyError) {
		mu.Lock()
		result.Mismatched++
		result.Errors = append(result.Errors, ve)
		mu.Unlock()
		event.Emit(cfg.Events, event.Event{Type: event.VerifyFailed, Path: ve.Path, Error: ve.Err})
	}

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range taskCh {
				if ctx.Err() != nil {
					continue
				}
				entry := want[rec.RelPath]
				got, err := HashFile(rec.AbsPath, AlgorithmOf(entry.Hash))
				switch {
				case err != nil:
					mismatch(VerifyError{Path: rec.RelPath, Want: entry.Hash, Err: err})
				case got != entry.Hash:
					mismatch(VerifyError{
						Path: rec.RelPath, Want: entry.Hash, Got: got,
						Err: fmt.Errorf("%s: content hash mismatch", rec.RelPath),
					})
				default:
					mu.Lock()
					result.Verified++
					mu.Unlock()
					if cfg.Stats != nil {
						cfg.Stats.AddFilesVerified(1)
					}
					event.Emit(cfg.Events, event.Event{Type: event.VerifyOK, Path: rec.RelPath})
				}
			}
		}()
	}

	for rec := range records {
		if rec.Kind != KindRegular {
			continue
		}
		if _, ok := want[rec.RelPath]; !ok {
			mu.Lock()
			result.Missing++
			mu.Unlock()
			continue
		}
		seen[rec.RelPath] = struct{}{}
		taskCh <- rec
	}
	close(taskCh)
	wg.Wait()

	if err := <-scanErrs; err != nil {
		return result, err
	}

	for path, entry := range want {
		if _, ok := seen[path]; !ok {
			mismatch(VerifyError{Path: path, Want: entry.Hash, Err: fmt.Errorf("%s: missing from snapshot", path)})
		}
	}
	return result, ctx.Err()
}
