package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFiles() map[string][]byte {
	return map[string][]byte{
		"a.txt":     []byte("hello"),
		"src/b.go":  []byte("package b\n"),
		"docs/c.md": []byte("# c"),
	}
}

func TestStore_Create(t *testing.T) {
	store := NewStore(nil)

	cp, err := store.Create(testFiles(), "cp1", "first checkpoint")
	require.NoError(t, err)

	assert.Len(t, cp.ID, idLength)
	assert.Equal(t, "cp1", cp.Name)
	assert.Equal(t, "first checkpoint", cp.Description)
	assert.Equal(t, 3, cp.Len())
	assert.False(t, cp.CreatedAt.IsZero())

	snap, ok := cp.File("a.txt")
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), snap.Content)
	assert.Equal(t, Fingerprint([]byte("hello")), snap.Fingerprint)

	// paths are stored sorted for determinism
	assert.Equal(t, []string{"a.txt", "docs/c.md", "src/b.go"}, cp.Paths())
}

func TestStore_Create_Validation(t *testing.T) {
	store := NewStore(nil)

	_, err := store.Create(nil, "cp", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = store.Create(map[string][]byte{"a": nil}, "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = store.Create(map[string][]byte{"": []byte("x")}, "cp", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = store.Create(map[string][]byte{"/etc/passwd": []byte("x")}, "cp", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = store.Create(map[string][]byte{"../escape.txt": []byte("x")}, "cp", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStore_Create_CopiesContent(t *testing.T) {
	store := NewStore(nil)

	content := []byte("original")
	cp, err := store.Create(map[string][]byte{"a.txt": content}, "cp", "")
	require.NoError(t, err)

	content[0] = 'X'

	snap, ok := cp.File("a.txt")
	require.True(t, ok)
	assert.Equal(t, []byte("original"), snap.Content)
}

func TestStore_Get_ExactID(t *testing.T) {
	store := NewStore(nil)
	cp, err := store.Create(testFiles(), "cp1", "")
	require.NoError(t, err)

	got, err := store.Get(cp.ID)
	require.NoError(t, err)
	assert.Equal(t, cp.ID, got.ID)
}

func TestStore_Get_Name(t *testing.T) {
	store := NewStore(nil)
	_, err := store.Create(map[string][]byte{"a.txt": []byte("v1")}, "shared", "")
	require.NoError(t, err)
	second, err := store.Create(map[string][]byte{"a.txt": []byte("v2")}, "shared", "")
	require.NoError(t, err)

	// non-unique names resolve to the most recent checkpoint
	got, err := store.Get("shared")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
}

func TestStore_Get_Prefix(t *testing.T) {
	store := NewStore(nil)
	cp, err := store.Create(testFiles(), "cp1", "")
	require.NoError(t, err)

	got, err := store.Get(cp.ID[:6])
	require.NoError(t, err)
	assert.Equal(t, cp.ID, got.ID)
}

func TestStore_Get_AmbiguousPrefix(t *testing.T) {
	store := NewStore(nil)
	for i := 0; i < 40; i++ {
		_, err := store.Create(map[string][]byte{"a.txt": {byte(i)}}, "cp", "")
		require.NoError(t, err)
	}

	// the empty prefix matches everything
	_, err := store.Get("")
	var ambiguous *AmbiguousIDError
	require.ErrorAs(t, err, &ambiguous)
	assert.Len(t, ambiguous.Candidates, 40)
}

func TestStore_Get_NotFound(t *testing.T) {
	store := NewStore(nil)
	_, err := store.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_List_NewestFirst(t *testing.T) {
	store := NewStore(nil)

	first, err := store.Create(map[string][]byte{"a.txt": []byte("1")}, "one", "")
	require.NoError(t, err)
	second, err := store.Create(map[string][]byte{"a.txt": []byte("2")}, "two", "")
	require.NoError(t, err)
	third, err := store.Create(map[string][]byte{"a.txt": []byte("3")}, "three", "")
	require.NoError(t, err)

	list := store.List()
	require.Len(t, list, 3)
	assert.Equal(t, third.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
	assert.Equal(t, first.ID, list[2].ID)
}

func TestStore_Checkpoints_CreationOrder(t *testing.T) {
	store := NewStore(nil)

	first, err := store.Create(map[string][]byte{"a.txt": []byte("1")}, "one", "")
	require.NoError(t, err)
	second, err := store.Create(map[string][]byte{"a.txt": []byte("2")}, "two", "")
	require.NoError(t, err)

	all := store.Checkpoints()
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)
}

func TestStore_Delete(t *testing.T) {
	store := NewStore(nil)
	cp, err := store.Create(testFiles(), "cp1", "")
	require.NoError(t, err)

	require.NoError(t, store.Delete(cp.ID))
	assert.Zero(t, store.Len())

	_, err = store.Get(cp.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// second delete is not idempotent
	err = store.Delete(cp.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// already-held checkpoint objects stay readable
	snap, ok := cp.File("a.txt")
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), snap.Content)
}

func TestStore_Delete_CleansNameIndex(t *testing.T) {
	store := NewStore(nil)
	cp, err := store.Create(testFiles(), "cp1", "")
	require.NoError(t, err)

	require.NoError(t, store.Delete(cp.ID))

	_, err = store.Get("cp1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Insert(t *testing.T) {
	store := NewStore(nil)
	cp := NewCheckpoint("abc123def456", "loaded", "", time.Now(), []FileSnapshot{
		NewFileSnapshot("a.txt", []byte("hi")),
	})

	require.NoError(t, store.Insert(cp))
	got, err := store.Get("abc123def456")
	require.NoError(t, err)
	assert.Equal(t, "loaded", got.Name)

	// duplicate ids are rejected
	err = store.Insert(cp)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDeriveID_SaltChangesID(t *testing.T) {
	now := time.Now()
	snaps := []FileSnapshot{NewFileSnapshot("a.txt", []byte("x"))}

	plain := deriveID("cp", now, snaps, "")
	salted := deriveID("cp", now, snaps, "salt")
	assert.NotEqual(t, plain, salted)
	assert.Len(t, plain, idLength)
}

func TestFingerprint(t *testing.T) {
	// sha256("hello"), full 64-char hex
	assert.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		Fingerprint([]byte("hello")))
}
