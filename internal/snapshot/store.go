// Package snapshot holds immutable, content-addressed checkpoints of a set
// of files. A Store is an append-only, insertion-ordered sequence of
// checkpoints with an exact-id index and a non-unique name index.
package snapshot

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxIDRetries bounds salted re-derivation after an id collision.
const maxIDRetries = 5

// Store holds checkpoints in insertion order with id and name indices.
// Checkpoints returned by Store methods remain valid after deletion
// (copy-out semantics): Delete only removes index entries.
type Store struct {
	logger *zap.Logger

	mu     sync.RWMutex
	order  []*Checkpoint
	byID   map[string]*Checkpoint
	byName map[string][]string
}

// NewStore creates an empty store. A nil logger defaults to a no-op logger.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		logger: logger,
		byID:   make(map[string]*Checkpoint),
		byName: make(map[string][]string),
	}
}

// Create captures files into a new checkpoint and appends it to the store.
// Paths are snapshotted in sorted order so the checkpoint's file order is
// deterministic regardless of map iteration.
func (s *Store) Create(files map[string][]byte, name, description string) (*Checkpoint, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: checkpoint name is empty", ErrInvalidInput)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: file set is empty", ErrInvalidInput)
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		if err := validatePath(p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)

	snaps := make([]FileSnapshot, 0, len(paths))
	for _, p := range paths {
		snaps = append(snaps, NewFileSnapshot(p, files[p]))
	}

	createdAt := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	id := deriveID(name, createdAt, snaps, "")
	for attempt := 0; ; attempt++ {
		if _, taken := s.byID[id]; !taken {
			break
		}
		if attempt >= maxIDRetries {
			return nil, fmt.Errorf("%w: %s", ErrIDCollision, id)
		}
		s.logger.Warn("checkpoint id collision, re-deriving with salt",
			zap.String("id", id),
			zap.Int("attempt", attempt+1),
		)
		id = deriveID(name, createdAt, snaps, uuid.NewString())
	}

	cp := NewCheckpoint(id, name, description, createdAt, snaps)
	s.insertLocked(cp)

	s.logger.Debug("created checkpoint",
		zap.String("id", cp.ID),
		zap.String("name", cp.Name),
		zap.Int("files", cp.Len()),
	)
	return cp, nil
}

// Insert adds an already-built checkpoint, preserving its id. It is used
// when rebuilding a store from persisted state; the id must be unused.
func (s *Store) Insert(cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cp.ID == "" {
		return fmt.Errorf("%w: checkpoint id is empty", ErrInvalidInput)
	}
	if _, taken := s.byID[cp.ID]; taken {
		return fmt.Errorf("%w: duplicate id %s", ErrInvalidInput, cp.ID)
	}
	s.insertLocked(cp)
	return nil
}

func (s *Store) insertLocked(cp *Checkpoint) {
	s.order = append(s.order, cp)
	s.byID[cp.ID] = cp
	s.byName[cp.Name] = append(s.byName[cp.Name], cp.ID)
}

// Get resolves an exact id, an exact name (most recent when several
// checkpoints share the name), or an unambiguous id prefix.
func (s *Store) Get(idOrName string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cp, ok := s.byID[idOrName]; ok {
		return cp, nil
	}

	if ids, ok := s.byName[idOrName]; ok && len(ids) > 0 {
		return s.byID[ids[len(ids)-1]], nil
	}

	var matches []string
	for id := range s.byID {
		if strings.HasPrefix(id, idOrName) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, idOrName)
	case 1:
		return s.byID[matches[0]], nil
	default:
		sort.Strings(matches)
		return nil, &AmbiguousIDError{Prefix: idOrName, Candidates: matches}
	}
}

// List returns all checkpoints newest first. Creation-time ties keep the
// reverse of insertion order.
func (s *Store) List() []*Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Checkpoint, len(s.order))
	for i, cp := range s.order {
		out[len(s.order)-1-i] = cp
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Checkpoints returns all checkpoints in insertion (creation) order.
func (s *Store) Checkpoints() []*Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Checkpoint, len(s.order))
	copy(out, s.order)
	return out
}

// Delete removes the checkpoint with the given exact id from all indices.
// Deleting twice fails the second time with ErrNotFound.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.byID, id)

	ids := s.byName[cp.Name]
	for i, candidate := range ids {
		if candidate == id {
			s.byName[cp.Name] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(s.byName[cp.Name]) == 0 {
		delete(s.byName, cp.Name)
	}

	for i, candidate := range s.order {
		if candidate.ID == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	s.logger.Debug("deleted checkpoint", zap.String("id", id))
	return nil
}

// Len returns the number of stored checkpoints.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// validatePath rejects empty, absolute, and workspace-escaping paths.
// Stored paths are always workspace-relative, slash-separated.
func validatePath(p string) error {
	if p == "" {
		return fmt.Errorf("%w: file path is empty", ErrInvalidInput)
	}
	if strings.HasPrefix(p, "/") {
		return fmt.Errorf("%w: file path %q is absolute", ErrInvalidInput, p)
	}
	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%w: file path %q escapes the workspace", ErrInvalidInput, p)
	}
	return nil
}
