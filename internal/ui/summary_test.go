package ui

import (
	"errors"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"

	"github.com/bamsammich/recall/internal/config"
	"github.com/bamsammich/recall/internal/engine"
	"github.com/bamsammich/recall/internal/stats"
)

func TestSummaryCommitted(t *testing.T) {
	res := engine.Result{
		Verdict:      engine.Success,
		Committed:    true,
		SnapshotPath: "/backups/home/2024-05-01_12-00-00",
		Stats: stats.Snapshot{
			FilesCopied: 12, BytesCopied: 2048,
			FilesLinked: 48905, BytesLinked: 1 << 30,
			DirsCreated: 310, SymlinksCreated: 4, FilesSkipped: 2,
			Elapsed: 3*time.Minute + 17*time.Second,
		},
	}
	s := Summary(res, false)
	assert.Equal(t,
		"done ✓  copied 12 (2.0 KiB)  linked 48,905 (1.0 GiB)  dirs 310  symlinks 4  skipped 2  failed 0  time 3m 17s  → /backups/home/2024-05-01_12-00-00",
		s)
}

func TestSummaryNothingCommitted(t *testing.T) {
	s := Summary(engine.Result{Verdict: engine.Success}, false)
	assert.Contains(t, s, "done ✓")
	assert.Contains(t, s, "no changes, nothing committed")
}

func TestSummaryPartialAndFailure(t *testing.T) {
	partial := Summary(engine.Result{
		Verdict:   engine.PartialFailure,
		Committed: true,
		Stats:     stats.Snapshot{FilesFailed: 3, FilesVerified: 9},
	}, false)
	assert.Contains(t, partial, "partial ✗")
	assert.Contains(t, partial, "failed 3")
	assert.Contains(t, partial, "verified 9")

	failed := Summary(engine.Result{Verdict: engine.Failure, Err: errors.New("boom")}, false)
	assert.Contains(t, failed, "failed ✗")
	assert.NotContains(t, failed, "nothing committed")
}

func TestSummaryDryRun(t *testing.T) {
	s := Summary(engine.Result{
		Verdict: engine.Success,
		DryRun:  true,
		Name:    "2024-05-01_12-00-00",
		Stats:   stats.Snapshot{FilesCopied: 2, DirsCreated: 1},
	}, false)
	assert.Contains(t, s, "dry run done ✓")
	assert.Contains(t, s, "would commit 2024-05-01_12-00-00")

	// An empty source commits nothing, dry or not.
	empty := Summary(engine.Result{Verdict: engine.Success, DryRun: true, Name: "2024-05-01_12-00-00"}, false)
	assert.Contains(t, empty, "no changes, nothing committed")
	assert.NotContains(t, empty, "would commit")
}

func TestSummaryStyledKeepsText(t *testing.T) {
	s := Summary(engine.Result{Verdict: engine.Success, Stats: stats.Snapshot{FilesCopied: 7}}, true)
	assert.Contains(t, s, "done ✓")
	assert.Contains(t, s, "copied")
	assert.Contains(t, s, "7 (0 B)")
}

func TestPruneSummary(t *testing.T) {
	res := engine.PruneResult{
		Selected:  []string{"a", "b"},
		Deleted:   []string{"a"},
		Conflicts: []*engine.PruneConflictError{{Snapshot: "c"}},
		Errors:    []error{errors.New("rm b")},
	}
	assert.Equal(t, "prune: deleted 1 snapshot(s), kept 1 current, 1 error(s)", PruneSummary(res, false))
	assert.Equal(t, "prune: would delete 2 snapshot(s), kept 1 current, 1 error(s)", PruneSummary(res, true))
}

func TestVerifySummary(t *testing.T) {
	assert.Equal(t, "verify ✓  ok 4  mismatched 0  unindexed 1",
		VerifySummary(engine.VerifyResult{Verified: 4, Missing: 1}))
	assert.Contains(t, VerifySummary(engine.VerifyResult{Mismatched: 1}), "verify ✗")
}

func TestApplyTheme(t *testing.T) {
	orig := ColorGreen
	t.Cleanup(func() {
		ColorGreen = orig
		rebuildStyles()
	})

	green := "#00ff00"
	ApplyTheme(config.ThemeConfig{Green: &green})
	assert.Equal(t, lipgloss.Color("#00ff00"), ColorGreen)
	assert.Equal(t, lipgloss.Color("#f38ba8"), ColorRed)
}
