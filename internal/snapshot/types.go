package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// idLength is the width of a checkpoint id in hex characters.
const idLength = 12

// Fingerprint returns the SHA-256 digest of content as lowercase hex.
// It is the content identity used for diffing and history; equal
// fingerprints mean byte-equal content.
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// FileSnapshot is a single file captured inside a checkpoint: a
// workspace-relative path, its raw bytes, and the content fingerprint.
// Immutable once stored.
type FileSnapshot struct {
	Path        string
	Content     []byte
	Fingerprint string
}

// NewFileSnapshot captures content under path, computing the fingerprint.
// The content slice is copied so later caller mutations cannot reach the
// stored snapshot.
func NewFileSnapshot(path string, content []byte) FileSnapshot {
	buf := make([]byte, len(content))
	copy(buf, content)
	return FileSnapshot{
		Path:        path,
		Content:     buf,
		Fingerprint: Fingerprint(buf),
	}
}

// Checkpoint is an immutable snapshot of a set of files at a point in time.
// The file mapping is fixed at creation; restore, diff, and history read it
// but never write through it.
type Checkpoint struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time

	paths []string
	files map[string]FileSnapshot
}

// NewCheckpoint assembles a checkpoint from already-captured snapshots.
// It is used by the store on creation and by the persistence codec on load;
// file order follows the snaps slice.
func NewCheckpoint(id, name, description string, createdAt time.Time, snaps []FileSnapshot) *Checkpoint {
	cp := &Checkpoint{
		ID:          id,
		Name:        name,
		Description: description,
		CreatedAt:   createdAt,
		paths:       make([]string, 0, len(snaps)),
		files:       make(map[string]FileSnapshot, len(snaps)),
	}
	for _, snap := range snaps {
		if _, ok := cp.files[snap.Path]; !ok {
			cp.paths = append(cp.paths, snap.Path)
		}
		cp.files[snap.Path] = snap
	}
	return cp
}

// File returns the snapshot stored under path.
func (c *Checkpoint) File(path string) (FileSnapshot, bool) {
	snap, ok := c.files[path]
	return snap, ok
}

// Paths returns the file paths in the checkpoint in stored order.
// The returned slice is a copy.
func (c *Checkpoint) Paths() []string {
	out := make([]string, len(c.paths))
	copy(out, c.paths)
	return out
}

// Files returns all file snapshots in stored order. The slice is a copy;
// the snapshots themselves are shared and must not be mutated.
func (c *Checkpoint) Files() []FileSnapshot {
	out := make([]FileSnapshot, 0, len(c.paths))
	for _, path := range c.paths {
		out = append(out, c.files[path])
	}
	return out
}

// Len returns the number of files in the checkpoint.
func (c *Checkpoint) Len() int {
	return len(c.paths)
}

// deriveID computes a checkpoint id from the name, creation timestamp, and
// the sorted file fingerprints, truncated to idLength hex characters. A
// non-empty salt perturbs the input after a collision.
func deriveID(name string, createdAt time.Time, snaps []FileSnapshot, salt string) string {
	prints := make([]string, 0, len(snaps))
	for _, snap := range snaps {
		prints = append(prints, snap.Fingerprint)
	}
	sort.Strings(prints)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte(0)
	b.WriteString(createdAt.UTC().Format(time.RFC3339Nano))
	for _, p := range prints {
		b.WriteByte(0)
		b.WriteString(p)
	}
	if salt != "" {
		b.WriteByte(0)
		b.WriteString(salt)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:idLength]
}
