package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/rewind/internal/snapshot"
)

func newTestManager(t *testing.T, fs FS) *Manager {
	t.Helper()
	m, err := NewManager(snapshot.NewStore(nil), fs, nil)
	require.NoError(t, err)
	return m
}

func TestNewManager_RequiresStore(t *testing.T) {
	_, err := NewManager(nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot store is required")
}

func TestManager_CreateAndList(t *testing.T) {
	m := newTestManager(t, NewMemFS(nil))
	ctx := context.Background()

	cp, err := m.Create(ctx, "cp1", map[string][]byte{"a.txt": []byte("hello")}, "")
	require.NoError(t, err)

	list := m.Store().List()
	require.Len(t, list, 1)
	assert.Equal(t, cp.ID, list[0].ID)
}

func TestManager_Restore_RoundTrip(t *testing.T) {
	fs := NewMemFS(nil)
	m := newTestManager(t, fs)
	ctx := context.Background()

	files := map[string][]byte{
		"a.txt":    []byte("hello"),
		"b/c.toml": []byte("key = 1\n"),
	}
	cp, err := m.Create(ctx, "cp1", files, "")
	require.NoError(t, err)

	written, err := m.Restore(ctx, cp.ID, RestoreOptions{Force: true})
	require.NoError(t, err)
	require.Len(t, written, 2)
	assert.True(t, fs.Equal("a.txt", []byte("hello")))
	assert.True(t, fs.Equal("b/c.toml", []byte("key = 1\n")))
}

func TestManager_Restore_ReturnedPlanDoesNotAliasSnapshot(t *testing.T) {
	m := newTestManager(t, NewMemFS(nil))
	ctx := context.Background()

	cp, err := m.Create(ctx, "cp1", map[string][]byte{"a.txt": []byte("hello")}, "")
	require.NoError(t, err)

	written, err := m.Restore(ctx, cp.ID, RestoreOptions{Force: true})
	require.NoError(t, err)
	written["a.txt"][0] = 'X'

	snap, ok := cp.File("a.txt")
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), snap.Content)

	plan, err := m.Restore(ctx, cp.ID, RestoreOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), plan["a.txt"])
}

func TestManager_Restore_PathSubset(t *testing.T) {
	fs := NewMemFS(nil)
	m := newTestManager(t, fs)
	ctx := context.Background()

	cp, err := m.Create(ctx, "cp1", map[string][]byte{
		"a.txt": []byte("a"),
		"b.txt": []byte("b"),
	}, "")
	require.NoError(t, err)

	written, err := m.Restore(ctx, cp.ID, RestoreOptions{Paths: []string{"a.txt"}, Force: true})
	require.NoError(t, err)
	assert.Len(t, written, 1)
	assert.Equal(t, 1, fs.Len())

	// unknown subset path fails without writing anything
	_, err = m.Restore(ctx, cp.ID, RestoreOptions{Paths: []string{"missing.txt"}})
	assert.ErrorIs(t, err, snapshot.ErrNotFound)
}

func TestManager_Restore_OutputDir(t *testing.T) {
	fs := NewMemFS(nil)
	m := newTestManager(t, fs)
	ctx := context.Background()

	cp, err := m.Create(ctx, "cp1", map[string][]byte{"src/a.go": []byte("package a")}, "")
	require.NoError(t, err)

	written, err := m.Restore(ctx, cp.ID, RestoreOptions{OutputDir: "/restored", Force: true})
	require.NoError(t, err)

	target := filepath.Join("/restored", "src", "a.go")
	assert.Contains(t, written, target)
	assert.True(t, fs.Equal(target, []byte("package a")))
}

func TestManager_Restore_DryRun(t *testing.T) {
	fs := NewMemFS(map[string][]byte{"a.txt": []byte("changed")})
	m := newTestManager(t, fs)
	ctx := context.Background()

	cp, err := m.Create(ctx, "cp1", map[string][]byte{"a.txt": []byte("hello")}, "")
	require.NoError(t, err)

	// dry run never mutates, even when the target conflicts
	plan, err := m.Restore(ctx, cp.ID, RestoreOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"a.txt": []byte("hello")}, plan)
	assert.True(t, fs.Equal("a.txt", []byte("changed")))

	// plan equals the forced write set
	written, err := m.Restore(ctx, cp.ID, RestoreOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, plan, written)
}

func TestManager_Restore_Conflict(t *testing.T) {
	fs := NewMemFS(map[string][]byte{
		"a.txt": []byte("locally modified"),
		"b.txt": []byte("b"),
	})
	m := newTestManager(t, fs)
	ctx := context.Background()

	cp, err := m.Create(ctx, "cp1", map[string][]byte{
		"a.txt": []byte("a"),
		"b.txt": []byte("b"),
		"c.txt": []byte("c"),
	}, "")
	require.NoError(t, err)

	_, err = m.Restore(ctx, cp.ID, RestoreOptions{})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{"a.txt"}, conflict.Paths)

	// zero files written: b.txt unchanged, c.txt still absent
	assert.Equal(t, 2, fs.Len())
	assert.True(t, fs.Equal("a.txt", []byte("locally modified")))

	// force overrides
	_, err = m.Restore(ctx, cp.ID, RestoreOptions{Force: true})
	require.NoError(t, err)
	assert.True(t, fs.Equal("a.txt", []byte("a")))
	assert.True(t, fs.Equal("c.txt", []byte("c")))
}

func TestManager_Restore_EqualContentIsNotConflict(t *testing.T) {
	fs := NewMemFS(map[string][]byte{"a.txt": []byte("same")})
	m := newTestManager(t, fs)
	ctx := context.Background()

	cp, err := m.Create(ctx, "cp1", map[string][]byte{"a.txt": []byte("same")}, "")
	require.NoError(t, err)

	_, err = m.Restore(ctx, cp.ID, RestoreOptions{})
	assert.NoError(t, err)
}

func TestManager_Diff(t *testing.T) {
	m := newTestManager(t, NewMemFS(nil))
	ctx := context.Background()

	cp, err := m.Create(ctx, "cp1", map[string][]byte{
		"same.txt":    []byte("same"),
		"changed.txt": []byte("old"),
		"gone.txt":    []byte("bye"),
	}, "")
	require.NoError(t, err)

	diff, err := m.Diff(ctx, cp.ID, map[string][]byte{
		"same.txt":    []byte("same"),
		"changed.txt": []byte("new"),
		"new.txt":     []byte("hi"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"new.txt"}, diff.Added)
	assert.Equal(t, []string{"changed.txt"}, diff.Modified)
	assert.Equal(t, []string{"gone.txt"}, diff.Deleted)
	assert.Equal(t, []string{"same.txt"}, diff.Unchanged)
	assert.True(t, diff.HasChanges())
}

func TestManager_Diff_SelfIsEmpty(t *testing.T) {
	m := newTestManager(t, NewMemFS(nil))
	ctx := context.Background()

	files := map[string][]byte{"a.txt": []byte("x"), "b.txt": []byte("y")}
	cp, err := m.Create(ctx, "cp1", files, "")
	require.NoError(t, err)

	diff, err := m.Diff(ctx, cp.ID, files)
	require.NoError(t, err)
	assert.Empty(t, diff.Added)
	assert.Empty(t, diff.Modified)
	assert.Empty(t, diff.Deleted)
	assert.Len(t, diff.Unchanged, 2)
	assert.False(t, diff.HasChanges())
}

func TestManager_FileHistory(t *testing.T) {
	m := newTestManager(t, NewMemFS(nil))
	ctx := context.Background()

	c1, err := m.Create(ctx, "c1", map[string][]byte{"a.txt": []byte("v1")}, "")
	require.NoError(t, err)
	_, err = m.Create(ctx, "c2", map[string][]byte{"other.txt": []byte("x")}, "")
	require.NoError(t, err)
	c3, err := m.Create(ctx, "c3", map[string][]byte{"a.txt": []byte("v2")}, "")
	require.NoError(t, err)
	c4, err := m.Create(ctx, "c4", map[string][]byte{"a.txt": []byte("v3")}, "")
	require.NoError(t, err)

	history, err := m.FileHistory(ctx, "a.txt")
	require.NoError(t, err)
	require.Len(t, history, 3)

	assert.Equal(t, c1.ID, history[0].CheckpointID)
	assert.Equal(t, c3.ID, history[1].CheckpointID)
	assert.Equal(t, c4.ID, history[2].CheckpointID)

	// distinct content yields distinct fingerprints
	assert.NotEqual(t, history[0].Fingerprint, history[1].Fingerprint)
	assert.NotEqual(t, history[1].Fingerprint, history[2].Fingerprint)

	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].CreatedAt.Before(history[i-1].CreatedAt))
	}
}

func TestManager_FileHistory_RecomputesAfterDelete(t *testing.T) {
	m := newTestManager(t, NewMemFS(nil))
	ctx := context.Background()

	c1, err := m.Create(ctx, "c1", map[string][]byte{"a.txt": []byte("v1")}, "")
	require.NoError(t, err)
	_, err = m.Create(ctx, "c2", map[string][]byte{"a.txt": []byte("v2")}, "")
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, c1.ID))

	history, err := m.FileHistory(ctx, "a.txt")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.NotEqual(t, c1.ID, history[0].CheckpointID)
}

func TestOSFS_WriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	fs := OSFS{}

	target := filepath.Join(dir, "nested", "a.txt")
	require.NoError(t, fs.WriteFileAtomic(target, []byte("hello")))

	content, exists, err := fs.ReadFile(target)
	require.NoError(t, err)
	require.True(t, exists)
	assert.Equal(t, []byte("hello"), content)

	// overwrite leaves no temp files behind
	require.NoError(t, fs.WriteFileAtomic(target, []byte("updated")))
	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, exists, err = fs.ReadFile(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.False(t, exists)
}
