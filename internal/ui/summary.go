package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bamsammich/recall/internal/engine"
)

// Summary builds the final line for a backup run.
// Format: done ✓  copied 12 (3.1 MiB)  linked 48,905 (2.0 GiB)  dirs 310  symlinks 4  skipped 2  failed 0  time 3m 17s  → /backups/home/2024-05-01_12-00-00
func Summary(res engine.Result, styled bool) string {
	s := res.Stats
	var verdict string
	var verdictStyle lipgloss.Style
	switch res.Verdict {
	case engine.Success:
		verdict, verdictStyle = "done ✓", styleSuccess
	case engine.PartialFailure:
		verdict, verdictStyle = "partial ✗", stylePartial
	default:
		verdict, verdictStyle = "failed ✗", styleFailure
	}
	if res.DryRun {
		verdict = "dry run " + verdict
	}

	render := func(st lipgloss.Style, text string) string {
		if !styled {
			return text
		}
		return st.Render(text)
	}
	field := func(label, value string) string {
		return render(styleLabel, label) + " " + render(styleValue, value)
	}

	parts := []string{
		render(verdictStyle, verdict),
		field("copied", fmt.Sprintf("%s (%s)", FormatCount(s.FilesCopied), FormatBytes(s.BytesCopied))),
		field("linked", fmt.Sprintf("%s (%s)", FormatCount(s.FilesLinked), FormatBytes(s.BytesLinked))),
		field("dirs", FormatCount(s.DirsCreated)),
		field("symlinks", FormatCount(s.SymlinksCreated)),
		field("skipped", FormatCount(s.FilesSkipped)),
	}
	if s.FilesVerified > 0 {
		parts = append(parts, field("verified", FormatCount(s.FilesVerified)))
	}
	parts = append(parts,
		field("failed", FormatCount(s.FilesFailed)),
		field("time", FormatDuration(s.Elapsed)),
	)

	switch {
	case res.Committed:
		parts = append(parts, "→ "+res.SnapshotPath)
	case res.DryRun && res.Err == nil && s.Materialized() > 0:
		parts = append(parts, "would commit "+res.Name)
	case res.Err == nil:
		parts = append(parts, "no changes, nothing committed")
	}
	return strings.Join(parts, "  ")
}

// PruneSummary builds the final line for a retention pass.
func PruneSummary(res engine.PruneResult, dryRun bool) string {
	verb := "deleted"
	n := len(res.Deleted)
	if dryRun {
		verb = "would delete"
		n = len(res.Selected)
	}
	line := fmt.Sprintf("prune: %s %d snapshot(s)", verb, n)
	if len(res.Conflicts) > 0 {
		line += fmt.Sprintf(", kept %d current", len(res.Conflicts))
	}
	if len(res.Errors) > 0 {
		line += fmt.Sprintf(", %d error(s)", len(res.Errors))
	}
	return line
}

// VerifySummary builds the final line for a verification pass.
func VerifySummary(res engine.VerifyResult) string {
	icon := "✓"
	if !res.OK() {
		icon = "✗"
	}
	return fmt.Sprintf("verify %s  ok %s  mismatched %s  unindexed %s",
		icon, FormatCount(res.Verified), FormatCount(res.Mismatched), FormatCount(res.Missing))
}
