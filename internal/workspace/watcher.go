package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrWatcherFailed indicates the filesystem watcher could not be
// initialized.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// Tracker receives paths of files changed while a call is pending.
// *session.Session satisfies it.
type Tracker interface {
	TrackFile(path string) error
}

// Watcher feeds filesystem changes under the workspace root into a
// Tracker, so files an external tool edits are recorded against the
// pending call without explicit track requests.
type Watcher struct {
	scanner *Scanner
	tracker Tracker
	watcher *fsnotify.Watcher
	logger  *zap.Logger
	stop    chan struct{}
	done    chan struct{}
}

// NewWatcher creates a watcher over the scanner's root. Only files the
// scanner considers eligible are forwarded to the tracker.
func NewWatcher(scanner *Scanner, tracker Tracker, logger *zap.Logger) (*Watcher, error) {
	if scanner == nil {
		return nil, fmt.Errorf("scanner is required")
	}
	if tracker == nil {
		return nil, fmt.Errorf("tracker is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	return &Watcher{
		scanner: scanner,
		tracker: tracker,
		watcher: fw,
		logger:  logger,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Start registers every directory under the root and begins forwarding
// events in a background goroutine. Call Stop to clean up.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addDirs(w.scanner.Root()); err != nil {
		return fmt.Errorf("watching workspace tree: %w", err)
	}

	go w.processEvents(ctx)
	return nil
}

// Stop stops the watcher and waits for the event goroutine to exit.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		return
	default:
		close(w.stop)
		_ = w.watcher.Close()
		<-w.done
	}
}

// addDirs registers dir and every non-skipped directory beneath it.
// fsnotify watches are not recursive, so each level is added
// explicitly.
func (w *Watcher) addDirs(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && defaultSkipDirs[d.Name()] {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	// A new directory needs its own watch.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !defaultSkipDirs[filepath.Base(event.Name)] {
				_ = w.watcher.Add(event.Name)
			}
			return
		}
	}

	rel, err := filepath.Rel(w.scanner.Root(), event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if !w.scanner.Eligible(rel) {
		return
	}

	if err := w.tracker.TrackFile(rel); err != nil {
		// No call pending: the change is outside any call scope.
		w.logger.Debug("untracked change", zap.String("path", rel), zap.Error(err))
		return
	}
	w.logger.Debug("tracked change", zap.String("path", rel))
}
