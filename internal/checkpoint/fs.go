package checkpoint

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FS is the file-system collaborator used during restore. The manager
// performs no other I/O; reading live content for diffs is the caller's
// responsibility.
type FS interface {
	// ReadFile returns the current content of path and whether it exists.
	// A missing file is not an error.
	ReadFile(path string) (content []byte, exists bool, err error)

	// WriteFileAtomic replaces path with data without ever exposing a
	// truncated file, creating parent directories as needed.
	WriteFileAtomic(path string, data []byte) error
}

// OSFS implements FS against the real file system.
type OSFS struct{}

func (OSFS) ReadFile(path string) ([]byte, bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading %s: %w", path, err)
	}
	return content, true, nil
}

func (OSFS) WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", path, writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", path, closeErr)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting mode on %s: %w", path, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// MemFS is an in-memory FS for tests and dry planning against synthetic
// trees.
type MemFS struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemFS creates a MemFS seeded with the given files. The map may be nil.
func NewMemFS(files map[string][]byte) *MemFS {
	fs := &MemFS{files: make(map[string][]byte, len(files))}
	for path, content := range files {
		fs.files[path] = append([]byte(nil), content...)
	}
	return fs
}

func (m *MemFS) ReadFile(path string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.files[path]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), content...), true, nil
}

func (m *MemFS) WriteFileAtomic(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = append([]byte(nil), data...)
	return nil
}

// Equal reports whether the stored content under path equals want.
func (m *MemFS) Equal(path string, want []byte) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.files[path]
	return ok && bytes.Equal(content, want)
}

// Len returns the number of files held.
func (m *MemFS) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}
