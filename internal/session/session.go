// Package session wraps opaque external operations (typically AI-assisted
// edits) in a call-scoped checkpoint protocol: every call is preceded by an
// automatic checkpoint of the allowlisted workspace files, and the workspace
// can be rolled back to the state before any recorded call.
//
// At most one call may be pending at a time; opening a second one is a
// protocol violation, not a queued condition.
package session

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/rewind/internal/checkpoint"
	"github.com/fyrsmithlabs/rewind/internal/persist"
	"github.com/fyrsmithlabs/rewind/internal/snapshot"
)

const instrumentationName = "github.com/fyrsmithlabs/rewind/internal/session"

var (
	// ErrCallPending indicates an open was attempted while another call is
	// still pending.
	ErrCallPending = errors.New("a call is already pending")

	// ErrNoPendingCall indicates TrackFile or CloseCall was invoked with no
	// pending call.
	ErrNoPendingCall = errors.New("no call is pending")

	// ErrCallNotFound indicates no call record matches the given id.
	ErrCallNotFound = errors.New("call not found")

	// ErrNoCalls indicates the session has no recorded calls yet.
	ErrNoCalls = errors.New("no calls recorded")
)

// FilesSource reads the current content of every workspace file eligible
// for tracking. The session never walks the file system itself.
type FilesSource interface {
	Files(ctx context.Context) (map[string][]byte, error)
}

// Config configures a session.
type Config struct {
	// WorkspaceRoot is the directory restores are written under.
	WorkspaceRoot string

	// Extensions is the file-extension allowlist, e.g. [".go", ".md"].
	// Recorded for persistence; filtering happens in the FilesSource.
	Extensions []string

	// StatePath is where Save writes the persisted store. Empty defaults
	// to <WorkspaceRoot>/.rewind/state.json.
	StatePath string
}

// Session ties checkpoints to externally triggered operations. All methods
// are safe for use from a single logical flow; a mutex guards against
// accidental cross-goroutine misuse.
type Session struct {
	root       string
	extensions []string
	statePath  string
	manager    *checkpoint.Manager
	source     FilesSource
	logger     *zap.Logger
	tracer     trace.Tracer

	mu      sync.Mutex
	calls   []*CallRecord
	pending *CallRecord
	seq     int
}

// New creates a fresh session over manager. A nil logger defaults to a
// no-op logger.
func New(cfg Config, manager *checkpoint.Manager, source FilesSource, logger *zap.Logger) (*Session, error) {
	if cfg.WorkspaceRoot == "" {
		return nil, fmt.Errorf("workspace root is required")
	}
	if manager == nil {
		return nil, fmt.Errorf("checkpoint manager is required")
	}
	if source == nil {
		return nil, fmt.Errorf("files source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	statePath := cfg.StatePath
	if statePath == "" {
		statePath = path.Join(cfg.WorkspaceRoot, ".rewind", "state.json")
	}

	return &Session{
		root:       cfg.WorkspaceRoot,
		extensions: append([]string(nil), cfg.Extensions...),
		statePath:  statePath,
		manager:    manager,
		source:     source,
		logger:     logger,
		tracer:     otel.Tracer(instrumentationName),
	}, nil
}

// Manager exposes the underlying checkpoint manager.
func (s *Session) Manager() *checkpoint.Manager {
	return s.manager
}

// WorkspaceRoot returns the workspace root path.
func (s *Session) WorkspaceRoot() string {
	return s.root
}

// OpenCall allocates the next call id, captures a checkpoint of the current
// workspace state, and appends a pending call record. It fails with
// ErrCallPending while another call is open.
func (s *Session) OpenCall(ctx context.Context, label, description string) (CallRecord, error) {
	ctx, span := s.tracer.Start(ctx, "session.open_call")
	defer span.End()
	span.SetAttributes(attribute.String("label", label))

	s.mu.Lock()
	if s.pending != nil {
		id := s.pending.ID
		s.mu.Unlock()
		return CallRecord{}, fmt.Errorf("%w: %s", ErrCallPending, id)
	}
	s.seq++
	id := fmt.Sprintf("call-%04d", s.seq)
	s.mu.Unlock()

	files, err := s.source.Files(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return CallRecord{}, fmt.Errorf("reading workspace state: %w", err)
	}

	desc := fmt.Sprintf("state before %s", id)
	if label != "" {
		desc = fmt.Sprintf("state before %s (%s)", id, label)
	}
	cp, err := s.manager.Create(ctx, id, files, desc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return CallRecord{}, err
	}

	rec := &CallRecord{
		ID:           id,
		Label:        label,
		Description:  description,
		CreatedAt:    time.Now().UTC(),
		CheckpointID: cp.ID,
		Status:       CallPending,
	}

	s.mu.Lock()
	s.calls = append(s.calls, rec)
	s.pending = rec
	s.mu.Unlock()

	s.logger.Info("opened call",
		zap.String("call_id", id),
		zap.String("label", label),
		zap.String("checkpoint_id", cp.ID),
	)
	span.SetAttributes(attribute.String("call_id", id))
	return rec.clone(), nil
}

// TrackFile records path as touched by the pending call. It fails with
// ErrNoPendingCall when no call is open.
func (s *Session) TrackFile(p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return fmt.Errorf("%w: track %s", ErrNoPendingCall, p)
	}

	rel := strings.TrimPrefix(path.Clean(strings.ReplaceAll(p, "\\", "/")), "./")
	for _, existing := range s.pending.TrackedFiles {
		if existing == rel {
			return nil
		}
	}
	s.pending.TrackedFiles = append(s.pending.TrackedFiles, rel)
	return nil
}

// CloseCall finishes the pending call: done on nil callErr, failed
// otherwise. A failed call keeps its checkpoint as a rollback target.
func (s *Session) CloseCall(callErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return ErrNoPendingCall
	}

	rec := s.pending
	if callErr != nil {
		rec.Status = CallFailed
	} else {
		rec.Status = CallDone
	}
	s.pending = nil

	s.logger.Info("closed call",
		zap.String("call_id", rec.ID),
		zap.String("status", string(rec.Status)),
		zap.Int("tracked_files", len(rec.TrackedFiles)),
	)
	return nil
}

// Run wraps fn in the full call protocol: open, execute, close. The close
// step runs on every exit path, including panics, so a failed operation
// still leaves a usable rollback point.
func (s *Session) Run(ctx context.Context, label, description string, fn func(context.Context) error) (rec CallRecord, err error) {
	rec, err = s.OpenCall(ctx, label, description)
	if err != nil {
		return CallRecord{}, err
	}

	// The close step and the re-fetch both run in the defer so the named
	// return carries the post-close record, not the pending one.
	defer func() {
		if r := recover(); r != nil {
			_ = s.CloseCall(fmt.Errorf("panic: %v", r))
			panic(r)
		}
		_ = s.CloseCall(err)
		if got, lookupErr := s.Call(rec.ID); lookupErr == nil {
			rec = got
		}
	}()

	err = fn(ctx)
	return rec, err
}

// Calls returns copies of all call records in creation order.
func (s *Session) Calls() []CallRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]CallRecord, 0, len(s.calls))
	for _, rec := range s.calls {
		out = append(out, rec.clone())
	}
	return out
}

// Call returns a copy of the record with the given exact id.
func (s *Session) Call(id string) (CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.calls {
		if rec.ID == id {
			return rec.clone(), nil
		}
	}
	return CallRecord{}, fmt.Errorf("%w: %s", ErrCallNotFound, id)
}

// RestoreBeforeCall rolls the workspace back to the state captured before
// the given call, overwriting modified files. The call log is untouched:
// records made after the restore point remain in place. Returns the sorted
// list of restored paths.
func (s *Session) RestoreBeforeCall(ctx context.Context, callID string) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "session.restore_before_call")
	defer span.End()
	span.SetAttributes(attribute.String("call_id", callID))

	rec, err := s.Call(callID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	written, err := s.manager.Restore(ctx, rec.CheckpointID, checkpoint.RestoreOptions{
		OutputDir: s.root,
		Force:     true,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	paths := make([]string, 0, len(written))
	for p := range written {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	s.logger.Info("restored workspace to pre-call state",
		zap.String("call_id", callID),
		zap.String("checkpoint_id", rec.CheckpointID),
		zap.Int("files", len(paths)),
	)
	return paths, nil
}

// RestoreLatest rolls back to the state before the most recently opened
// call.
func (s *Session) RestoreLatest(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	if len(s.calls) == 0 {
		s.mu.Unlock()
		return nil, ErrNoCalls
	}
	id := s.calls[len(s.calls)-1].ID
	s.mu.Unlock()

	return s.RestoreBeforeCall(ctx, id)
}

// DiffSinceCall reads the current workspace state and classifies it against
// the checkpoint taken before the given call.
func (s *Session) DiffSinceCall(ctx context.Context, callID string) (*checkpoint.DiffResult, error) {
	rec, err := s.Call(callID)
	if err != nil {
		return nil, err
	}
	current, err := s.source.Files(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading workspace state: %w", err)
	}
	return s.manager.Diff(ctx, rec.CheckpointID, current)
}

// Save persists the checkpoint store and call log to the session's state
// path. Last writer wins; concurrent savers need external locking.
func (s *Session) Save() error {
	data, err := persist.Encode(s.manager.Store().Checkpoints(), s.state())
	if err != nil {
		return fmt.Errorf("encoding session state: %w", err)
	}
	if err := persist.SaveFile(s.statePath, data); err != nil {
		return err
	}
	s.logger.Debug("saved session state", zap.String("path", s.statePath))
	return nil
}

func (s *Session) state() *persist.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := &persist.SessionState{
		WorkspaceRoot: s.root,
		Extensions:    append([]string(nil), s.extensions...),
		Calls:         make([]persist.CallState, 0, len(s.calls)),
	}
	for _, rec := range s.calls {
		state.Calls = append(state.Calls, persist.CallState{
			ID:           rec.ID,
			Label:        rec.Label,
			Description:  rec.Description,
			CreatedAt:    rec.CreatedAt,
			CheckpointID: rec.CheckpointID,
			TrackedFiles: append([]string(nil), rec.TrackedFiles...),
			Status:       string(rec.Status),
		})
	}
	return state
}

// Load rebuilds a session from a state file written by Save. The sequence
// counter resumes past the highest persisted call id so ids are never
// reused. A pending call in the state file is marked failed: its operation
// cannot have survived the process that recorded it.
func Load(statePath string, fsys checkpoint.FS, source FilesSource, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	data, err := persist.LoadFile(statePath)
	if err != nil {
		return nil, err
	}
	checkpoints, state, err := persist.Decode(data)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, fmt.Errorf("%w: no session state in document", persist.ErrCorrupt)
	}

	store := snapshot.NewStore(logger)
	for _, cp := range checkpoints {
		if err := store.Insert(cp); err != nil {
			return nil, fmt.Errorf("rebuilding store: %w", err)
		}
	}
	manager, err := checkpoint.NewManager(store, fsys, logger)
	if err != nil {
		return nil, err
	}

	s, err := New(Config{
		WorkspaceRoot: state.WorkspaceRoot,
		Extensions:    state.Extensions,
		StatePath:     statePath,
	}, manager, source, logger)
	if err != nil {
		return nil, err
	}

	for _, cs := range state.Calls {
		status := CallStatus(cs.Status)
		if status == CallPending {
			status = CallFailed
		}
		s.calls = append(s.calls, &CallRecord{
			ID:           cs.ID,
			Label:        cs.Label,
			Description:  cs.Description,
			CreatedAt:    cs.CreatedAt,
			CheckpointID: cs.CheckpointID,
			TrackedFiles: append([]string(nil), cs.TrackedFiles...),
			Status:       status,
		})
		if n, ok := callSeq(cs.ID); ok && n > s.seq {
			s.seq = n
		}
	}

	logger.Info("loaded session state",
		zap.String("path", statePath),
		zap.Int("checkpoints", store.Len()),
		zap.Int("calls", len(s.calls)),
	)
	return s, nil
}

// callSeq extracts the numeric suffix of a call id like "call-0031".
func callSeq(id string) (int, bool) {
	const prefix = "call-"
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(id, prefix))
	if err != nil {
		return 0, false
	}
	return n, true
}
