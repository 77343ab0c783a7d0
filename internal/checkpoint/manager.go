package checkpoint

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/rewind/internal/snapshot"
)

const instrumentationName = "github.com/fyrsmithlabs/rewind/internal/checkpoint"

// ConflictError aborts a restore when target files exist with content that
// differs from the checkpoint and force was not set. Paths lists every
// conflicting target; nothing was written.
type ConflictError struct {
	Paths []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("restore would overwrite %d modified file(s): %s",
		len(e.Paths), strings.Join(e.Paths, ", "))
}

// RestoreOptions control Restore.
type RestoreOptions struct {
	// Paths restricts the restore to a subset of the checkpoint's files.
	// Empty means all files. A requested path absent from the checkpoint
	// fails the whole restore.
	Paths []string

	// OutputDir rebases every target under this directory. Empty means the
	// snapshot paths are used as-is.
	OutputDir string

	// DryRun computes and returns the write plan without touching the
	// file system.
	DryRun bool

	// Force overwrites targets whose current content differs from the
	// checkpoint instead of aborting with a ConflictError.
	Force bool
}

// DiffResult classifies paths against a checkpoint. All slices are sorted.
type DiffResult struct {
	Added     []string `json:"added"`
	Modified  []string `json:"modified"`
	Deleted   []string `json:"deleted"`
	Unchanged []string `json:"unchanged"`
}

// HasChanges reports whether anything differs from the checkpoint.
func (d *DiffResult) HasChanges() bool {
	return len(d.Added)+len(d.Modified)+len(d.Deleted) > 0
}

// HistoryEntry is one occurrence of a path in a checkpoint.
type HistoryEntry struct {
	CheckpointID   string    `json:"checkpoint_id"`
	CheckpointName string    `json:"checkpoint_name"`
	CreatedAt      time.Time `json:"created_at"`
	Fingerprint    string    `json:"fingerprint"`
}

// Manager layers restore, diff, and history over a snapshot store. It is
// the single place where file content enters or leaves the system.
type Manager struct {
	store  *snapshot.Store
	fs     FS
	logger *zap.Logger

	tracer         trace.Tracer
	meter          metric.Meter
	createCounter  metric.Int64Counter
	restoreCounter metric.Int64Counter
}

// NewManager creates a manager over store. A nil fs defaults to the real
// file system; a nil logger defaults to a no-op logger.
func NewManager(store *snapshot.Store, fs FS, logger *zap.Logger) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("snapshot store is required")
	}
	if fs == nil {
		fs = OSFS{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		store:  store,
		fs:     fs,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
	m.initMetrics()
	return m, nil
}

func (m *Manager) initMetrics() {
	var err error

	m.createCounter, err = m.meter.Int64Counter(
		"rewind.checkpoint.creates_total",
		metric.WithDescription("Total number of checkpoints created"),
		metric.WithUnit("{checkpoint}"),
	)
	if err != nil {
		m.logger.Warn("failed to create create counter", zap.Error(err))
	}

	m.restoreCounter, err = m.meter.Int64Counter(
		"rewind.checkpoint.restores_total",
		metric.WithDescription("Total number of checkpoint restores"),
		metric.WithUnit("{restore}"),
	)
	if err != nil {
		m.logger.Warn("failed to create restore counter", zap.Error(err))
	}
}

// Store exposes the underlying snapshot store for listing and persistence.
func (m *Manager) Store() *snapshot.Store {
	return m.store
}

// Create captures files into a new checkpoint.
func (m *Manager) Create(ctx context.Context, name string, files map[string][]byte, description string) (*snapshot.Checkpoint, error) {
	ctx, span := m.tracer.Start(ctx, "checkpoint.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("name", name),
		attribute.Int("file_count", len(files)),
	)

	cp, err := m.store.Create(files, name, description)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if m.createCounter != nil {
		m.createCounter.Add(ctx, 1)
	}
	m.logger.Info("created checkpoint",
		zap.String("id", cp.ID),
		zap.String("name", cp.Name),
		zap.Int("files", cp.Len()),
	)
	span.SetAttributes(attribute.String("checkpoint_id", cp.ID))
	return cp, nil
}

// Restore writes a checkpoint's files back out and returns the written
// content keyed by target path. With DryRun it only returns the plan.
// Conflict detection runs as a full pre-pass before any write, so either
// every non-conflicting target is written or none is.
func (m *Manager) Restore(ctx context.Context, idOrName string, opts RestoreOptions) (map[string][]byte, error) {
	ctx, span := m.tracer.Start(ctx, "checkpoint.restore")
	defer span.End()
	span.SetAttributes(
		attribute.String("checkpoint", idOrName),
		attribute.Bool("dry_run", opts.DryRun),
		attribute.Bool("force", opts.Force),
	)

	cp, err := m.store.Get(idOrName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	snaps, err := selectFiles(cp, opts.Paths)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	plan := make(map[string][]byte, len(snaps))
	targets := make(map[string]snapshot.FileSnapshot, len(snaps))
	for _, snap := range snaps {
		target := snap.Path
		if opts.OutputDir != "" {
			target = filepath.Join(opts.OutputDir, filepath.FromSlash(snap.Path))
		}
		// The plan is handed to the caller; aliasing the stored bytes
		// would let a caller mutate the immutable snapshot.
		plan[target] = append([]byte(nil), snap.Content...)
		targets[target] = snap
	}

	if opts.DryRun {
		span.SetAttributes(attribute.Int("planned_files", len(plan)))
		return plan, nil
	}

	if !opts.Force {
		var conflicts []string
		for target, snap := range targets {
			current, exists, err := m.fs.ReadFile(target)
			if err != nil {
				span.RecordError(err)
				return nil, err
			}
			if exists && !bytes.Equal(current, snap.Content) {
				conflicts = append(conflicts, target)
			}
		}
		if len(conflicts) > 0 {
			sort.Strings(conflicts)
			err := &ConflictError{Paths: conflicts}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	for target, snap := range targets {
		if err := m.fs.WriteFileAtomic(target, snap.Content); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	if m.restoreCounter != nil {
		m.restoreCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.Bool("force", opts.Force),
		))
	}
	m.logger.Info("restored checkpoint",
		zap.String("id", cp.ID),
		zap.Int("files", len(plan)),
		zap.Bool("force", opts.Force),
	)
	return plan, nil
}

// Diff classifies currentFiles against the checkpoint. The manager performs
// no I/O; currentFiles is the live state as read by the caller.
func (m *Manager) Diff(ctx context.Context, idOrName string, currentFiles map[string][]byte) (*DiffResult, error) {
	_, span := m.tracer.Start(ctx, "checkpoint.diff")
	defer span.End()
	span.SetAttributes(attribute.String("checkpoint", idOrName))

	cp, err := m.store.Get(idOrName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := &DiffResult{
		Added:     []string{},
		Modified:  []string{},
		Deleted:   []string{},
		Unchanged: []string{},
	}

	for _, snap := range cp.Files() {
		current, ok := currentFiles[snap.Path]
		if !ok {
			result.Deleted = append(result.Deleted, snap.Path)
			continue
		}
		if snapshot.Fingerprint(current) == snap.Fingerprint {
			result.Unchanged = append(result.Unchanged, snap.Path)
		} else {
			result.Modified = append(result.Modified, snap.Path)
		}
	}
	for path := range currentFiles {
		if _, ok := cp.File(path); !ok {
			result.Added = append(result.Added, path)
		}
	}

	sort.Strings(result.Added)
	sort.Strings(result.Modified)
	sort.Strings(result.Deleted)
	sort.Strings(result.Unchanged)

	span.SetAttributes(
		attribute.Int("added", len(result.Added)),
		attribute.Int("modified", len(result.Modified)),
		attribute.Int("deleted", len(result.Deleted)),
	)
	return result, nil
}

// Delete removes a checkpoint by exact id.
func (m *Manager) Delete(ctx context.Context, id string) error {
	_, span := m.tracer.Start(ctx, "checkpoint.delete")
	defer span.End()
	span.SetAttributes(attribute.String("checkpoint_id", id))

	if err := m.store.Delete(id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	m.logger.Info("deleted checkpoint", zap.String("id", id))
	return nil
}

// FileHistory scans all checkpoints in creation order and returns one entry
// per checkpoint containing path, in increasing creation-time order. Each
// call recomputes from current store state.
func (m *Manager) FileHistory(ctx context.Context, path string) ([]HistoryEntry, error) {
	_, span := m.tracer.Start(ctx, "checkpoint.file_history")
	defer span.End()
	span.SetAttributes(attribute.String("path", path))

	if path == "" {
		return nil, fmt.Errorf("%w: file path is empty", snapshot.ErrInvalidInput)
	}

	var history []HistoryEntry
	for _, cp := range m.store.Checkpoints() {
		snap, ok := cp.File(path)
		if !ok {
			continue
		}
		history = append(history, HistoryEntry{
			CheckpointID:   cp.ID,
			CheckpointName: cp.Name,
			CreatedAt:      cp.CreatedAt,
			Fingerprint:    snap.Fingerprint,
		})
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].CreatedAt.Before(history[j].CreatedAt)
	})

	span.SetAttributes(attribute.Int("entries", len(history)))
	return history, nil
}

// selectFiles filters the checkpoint's snapshots to the requested subset,
// preserving stored order. Every requested path must be present.
func selectFiles(cp *snapshot.Checkpoint, paths []string) ([]snapshot.FileSnapshot, error) {
	if len(paths) == 0 {
		return cp.Files(), nil
	}
	wanted := make(map[string]bool, len(paths))
	for _, p := range paths {
		if _, ok := cp.File(p); !ok {
			return nil, fmt.Errorf("%w: path %s not in checkpoint %s", snapshot.ErrNotFound, p, cp.ID)
		}
		wanted[p] = true
	}
	var snaps []snapshot.FileSnapshot
	for _, snap := range cp.Files() {
		if wanted[snap.Path] {
			snaps = append(snaps, snap)
		}
	}
	return snaps, nil
}
