package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/recall/internal/event"
	"github.com/bamsammich/recall/internal/snapshot"
)

// makeSnapshots creates n empty committed snapshots one minute apart and
// returns their names oldest first.
func makeSnapshots(t *testing.T, root string, n int) []string {
	t.Helper()
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	names := make([]string, n)
	for i := range n {
		names[i] = snapshot.FormatName(base.Add(time.Duration(i) * time.Minute))
		writeFile(t, filepath.Join(root, names[i]), "f.txt", names[i])
	}
	return names
}

func TestSelectPrune(t *testing.T) {
	names := []string{"a", "b", "c", "d", "e"}
	assert.Equal(t, []string{"a", "b", "c"}, SelectPrune(names, 2))
	assert.Equal(t, names, SelectPrune(names, 0))
	assert.Equal(t, names, SelectPrune(names, -1))
	assert.Nil(t, SelectPrune(names, 5))
	assert.Nil(t, SelectPrune(names, 9))
	assert.Nil(t, SelectPrune(nil, 1))
}

func TestPruneKeepsNewest(t *testing.T) {
	root := t.TempDir()
	names := makeSnapshots(t, root, 5)
	store := snapshot.NewStore(root)
	require.NoError(t, store.Repoint(names[4]))

	res, err := Prune(context.Background(), PruneConfig{Root: root, Keep: 2})
	require.NoError(t, err)
	assert.Equal(t, names[:3], res.Deleted)
	assert.Empty(t, res.Conflicts)
	assert.Empty(t, res.Errors)

	left, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, names[3:], left)
}

func TestPruneNeverDeletesCurrent(t *testing.T) {
	root := t.TempDir()
	names := makeSnapshots(t, root, 5)
	store := snapshot.NewStore(root)
	require.NoError(t, store.Repoint(names[4]))

	events := collectEvents()
	res, err := Prune(context.Background(), PruneConfig{Root: root, Keep: 0, Events: events})
	require.NoError(t, err)
	assert.Equal(t, names[:4], res.Deleted)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, names[4], res.Conflicts[0].Snapshot)
	assert.ErrorIs(t, res.Conflicts[0], ErrPruneConflict)

	left, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, names[4:], left)
	current, err := store.Current()
	require.NoError(t, err)
	assert.Equal(t, names[4], current)

	types := eventTypes(events)
	assert.Equal(t, 4, types[event.SnapshotPruned])
	assert.Equal(t, 1, types[event.PruneConflict])
}

func TestPruneStalePointerProtectsItsTarget(t *testing.T) {
	root := t.TempDir()
	names := makeSnapshots(t, root, 4)
	require.NoError(t, snapshot.NewStore(root).Repoint(names[1]))

	res, err := Prune(context.Background(), PruneConfig{Root: root, Keep: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{names[0], names[2]}, res.Deleted)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, names[1], res.Conflicts[0].Snapshot)
}

func TestPruneDryRun(t *testing.T) {
	root := t.TempDir()
	names := makeSnapshots(t, root, 3)
	before := dirFingerprint(t, root)

	res, err := Prune(context.Background(), PruneConfig{Root: root, Keep: 1, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, names[:2], res.Selected)
	assert.Empty(t, res.Deleted)
	assert.Equal(t, before, dirFingerprint(t, root))
}

func TestPruneRemovesIndexAndReadOnlyDirs(t *testing.T) {
	root := t.TempDir()
	names := makeSnapshots(t, root, 2)
	store := snapshot.NewStore(root)
	require.NoError(t, store.Repoint(names[1]))

	idx, err := CreateIndex(store.IndexPath(names[0]), HashBLAKE3)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	locked := filepath.Join(store.Path(names[0]), "ro")
	writeFile(t, locked, "x", "x")
	require.NoError(t, os.Chmod(locked, 0o555))

	res, err := Prune(context.Background(), PruneConfig{Root: root, Keep: 1})
	require.NoError(t, err)
	assert.Equal(t, names[:1], res.Deleted)
	assert.NoFileExists(t, store.IndexPath(names[0]))
	assert.NoDirExists(t, store.Path(names[0]))
}

func TestPruneMissingProject(t *testing.T) {
	res, err := Prune(context.Background(), PruneConfig{Root: filepath.Join(t.TempDir(), "none"), Keep: 1})
	require.NoError(t, err)
	assert.Empty(t, res.Deleted)
}

func TestPruneKeepsSharedContent(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	createTestTree(t, src)
	cfg := testConfig(src, dst)

	first := Run(context.Background(), cfg)
	require.NoError(t, first.Err)
	second := Run(context.Background(), cfg)
	require.NoError(t, second.Err)
	require.Zero(t, second.Stats.FilesCopied)

	res, err := Prune(context.Background(), PruneConfig{Root: cfg.ProjectDir(), Keep: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{first.Name}, res.Deleted)

	for _, rel := range treeFiles {
		assert.Equal(t, readFile(t, filepath.Join(src, rel)), readFile(t, filepath.Join(second.SnapshotPath, rel)))
	}
}
