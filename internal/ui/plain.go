package ui

import (
	"fmt"
	"io"
	"time"
)

// plainPresenter writes one line per notable event to w and a periodic
// progress line to errW. Per-file lines appear only in verbose mode;
// failures and snapshot lifecycle lines always do.
type plainPresenter struct {
	w        io.Writer
	errW     io.Writer
	interval time.Duration
	verbose  bool

	copied, linked, failed int64
	bytesCopied            int64
}

func (p *plainPresenter) Run(events <-chan Event) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
		case <-ticker.C:
			p.printProgress()
		}
	}
}

func (p *plainPresenter) handleEvent(ev Event) {
	switch ev.Type {
	case BaselineLoaded:
		if ev.Path == "" {
			fmt.Fprintln(p.w, "baseline: none, first backup")
		} else {
			fmt.Fprintf(p.w, "baseline: %s (%s entries)\n", ev.Path, FormatCount(ev.Total))
		}
	case FileCopied:
		p.copied++
		p.bytesCopied += ev.Size
		if p.verbose {
			fmt.Fprintf(p.w, "copy     %s  %s\n", ev.Path, FormatBytes(ev.Size))
		}
	case FileLinked:
		p.linked++
		if p.verbose {
			fmt.Fprintf(p.w, "link     %s\n", ev.Path)
		}
	case SymlinkCreated:
		if p.verbose {
			fmt.Fprintf(p.w, "symlink  %s\n", ev.Path)
		}
	case FileSkipped:
		if p.verbose {
			fmt.Fprintf(p.w, "%s  skipped\n", ev.Path)
		}
	case FileFailed:
		p.failed++
		errMsg := "error"
		if ev.Error != nil {
			errMsg = ev.Error.Error()
		}
		fmt.Fprintf(p.w, "FAILED: %s  %s\n", ev.Path, errMsg)
	case SnapshotCommitted:
		fmt.Fprintf(p.w, "committed: %s\n", ev.Path)
	case SnapshotDiscarded:
		fmt.Fprintf(p.w, "discarded: %s\n", ev.Path)
	case SnapshotPruned:
		fmt.Fprintf(p.w, "pruned: %s\n", ev.Path)
	case PruneConflict:
		fmt.Fprintf(p.w, "kept current: %s\n", ev.Path)
	case VerifyStarted:
		fmt.Fprintln(p.w, "verifying...")
	case VerifyFailed:
		fmt.Fprintf(p.w, "MISMATCH: %s\n", ev.Path)
	case VerifyOK, ScanStarted, ScanComplete, DirCreated:
		// silent in plain mode
	}
}

func (p *plainPresenter) printProgress() {
	fmt.Fprintf(p.errW, "progress: %s copied (%s)  %s linked  %s failed\n",
		FormatCount(p.copied), FormatBytes(p.bytesCopied),
		FormatCount(p.linked), FormatCount(p.failed))
}
