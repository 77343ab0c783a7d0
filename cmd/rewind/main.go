// Package main implements the rewind CLI: checkpoint, inspect, and
// roll back workspace state around externally driven edits.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/rewind/internal/checkpoint"
	"github.com/fyrsmithlabs/rewind/internal/config"
	"github.com/fyrsmithlabs/rewind/internal/logging"
	"github.com/fyrsmithlabs/rewind/internal/remote"
	"github.com/fyrsmithlabs/rewind/internal/session"
	"github.com/fyrsmithlabs/rewind/internal/snapshot"
	"github.com/fyrsmithlabs/rewind/internal/telemetry"
	"github.com/fyrsmithlabs/rewind/internal/workspace"
)

var version = "dev"

// Exit codes beyond the generic failure, so scripts can branch on the
// failure mode.
const (
	exitNotFound  = 2
	exitAmbiguous = 3
	exitConflict  = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	app := &app{}
	root := newRootCmd(app)

	if err := root.Execute(); err != nil {
		return exitCode(err)
	}
	return 0
}

func exitCode(err error) int {
	var ambiguous *snapshot.AmbiguousIDError
	var conflict *checkpoint.ConflictError
	switch {
	case errors.Is(err, snapshot.ErrNotFound), errors.Is(err, session.ErrCallNotFound):
		return exitNotFound
	case errors.As(err, &ambiguous):
		return exitAmbiguous
	case errors.As(err, &conflict):
		return exitConflict
	default:
		return 1
	}
}

// app carries the wired collaborators between PersistentPreRunE and the
// command handlers.
type app struct {
	configPath string
	rootFlag   string
	jsonOut    bool

	cfg     *config.Config
	logger  *zap.Logger
	tel     *telemetry.Telemetry
	scanner *workspace.Scanner
	source  session.FilesSource
	session *session.Session
}

// currentFiles reads the live state through the same source the
// session snapshots, local or remote.
func (a *app) currentFiles(ctx context.Context) (map[string][]byte, error) {
	return a.source.Files(ctx)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "rewind",
		Short: "Checkpoint and roll back workspace files around AI-assisted edits",
		Long: `rewind keeps content-addressed checkpoints of your workspace and a log
of the operations (calls) that ran against it, so any edit an external
tool makes can be rolled back to the state captured just before it.

Examples:
  # Take a manual checkpoint
  rewind checkpoint create before-refactor

  # See what changed since a checkpoint
  rewind diff before-refactor

  # Roll the workspace back
  rewind restore before-refactor

  # Wrap a command in the call protocol (checkpoint, run, record)
  rewind session run --label claude -- ./apply-edit.sh`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.bootstrap(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.shutdown(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file path (default ~/.config/rewind/config.yaml)")
	root.PersistentFlags().StringVar(&a.rootFlag, "root", "", "workspace root (default: current directory)")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "emit machine-readable JSON instead of styled output")

	root.AddCommand(
		newCheckpointCmd(a),
		newDiffCmd(a),
		newHistoryCmd(a),
		newRestoreCmd(a),
		newDeleteCmd(a),
		newSessionCmd(a),
	)
	return root
}

// bootstrap loads config and builds the logger, telemetry, scanner, and
// session shared by every command.
func (a *app) bootstrap(ctx context.Context) error {
	cfg, err := config.LoadWithFile(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	// Telemetry first: the logger bridges into its log provider.
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Observability.EnableTelemetry,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.Observability.OTLPEndpoint,
		Insecure:       true,
	})
	if err != nil {
		return err
	}
	a.tel = tel

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}, tel.LoggerProvider())
	if err != nil {
		return err
	}
	a.logger = logger

	root := a.rootFlag
	if root == "" {
		root = cfg.Workspace.Root
	}
	if root == "" {
		root, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("resolving working directory: %w", err)
		}
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving workspace root: %w", err)
	}

	scanner, err := workspace.NewScanner(root, workspace.ScannerOptions{
		Extensions:      cfg.Workspace.Extensions,
		MaxFileSize:     int64(cfg.Workspace.MaxFileSizeKB) * 1024,
		ExcludePatterns: cfg.Workspace.Excludes,
	}, logger)
	if err != nil {
		return err
	}
	a.scanner = scanner

	return a.openSession()
}

// openSession loads persisted session state when present, otherwise
// starts fresh.
func (a *app) openSession() error {
	statePath := a.cfg.Session.StatePath
	if statePath == "" {
		statePath = filepath.Join(a.scanner.Root(), ".rewind", "state.json")
	}

	source, err := a.filesSource()
	if err != nil {
		return err
	}
	a.source = source

	if _, err := os.Stat(statePath); err == nil {
		s, err := session.Load(statePath, checkpoint.OSFS{}, source, a.logger)
		if err != nil {
			return fmt.Errorf("loading session state from %s: %w", statePath, err)
		}
		a.session = s
		return nil
	}

	store := snapshot.NewStore(a.logger)
	manager, err := checkpoint.NewManager(store, checkpoint.OSFS{}, a.logger)
	if err != nil {
		return err
	}
	s, err := session.New(session.Config{
		WorkspaceRoot: a.scanner.Root(),
		Extensions:    a.cfg.Workspace.Extensions,
		StatePath:     statePath,
	}, manager, source, a.logger)
	if err != nil {
		return err
	}
	a.session = s
	return nil
}

// filesSource picks the local scanner or, when a remote repository is
// configured, the GitHub tree filtered by the same eligibility rules.
func (a *app) filesSource() (session.FilesSource, error) {
	if !a.cfg.RemoteEnabled() {
		return a.scanner, nil
	}
	return remote.NewTree(a.cfg.Remote.Owner, a.cfg.Remote.Repo, remote.Options{
		Token:             a.cfg.Remote.Token,
		Ref:               a.cfg.Remote.Ref,
		Filter:            a.scanner.Eligible,
		CacheTTL:          a.cfg.Remote.CacheTTL,
		CacheEntries:      a.cfg.Remote.CacheMaxEntries,
		RequestsPerSecond: a.cfg.Remote.RequestsPerSecond,
		Burst:             a.cfg.Remote.Burst,
	}, a.logger)
}

func (a *app) shutdown(ctx context.Context) {
	if a.tel != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.tel.Shutdown(shutdownCtx); err != nil && a.logger != nil {
			a.logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
