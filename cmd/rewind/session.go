package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/rewind/internal/workspace"
)

func newSessionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and roll back the call log",
		Long: `Every externally driven operation (a "call") is preceded by an
automatic checkpoint. The session commands inspect that log and roll
the workspace back to any pre-call state.`,
	}
	cmd.AddCommand(
		newSessionHistoryCmd(a),
		newSessionRestoreCmd(a),
		newSessionDiffCmd(a),
		newSessionRunCmd(a),
	)
	return cmd
}

func newSessionHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show the call log with checkpoint and status per call",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			calls := a.session.Calls()
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), calls)
			}
			if len(calls) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no calls recorded")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), renderCallLog(calls, workspace.Branch(a.scanner.Root())))
			return nil
		},
	}
}

func newSessionRestoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore [call-id]",
		Short: "Roll the workspace back to the state before a call",
		Long: `Restore every file captured before the given call, overwriting current
content. Without an argument, the most recent call is used. The call
log itself is never rewritten.

Examples:
  rewind session restore            # undo the latest call
  rewind session restore call-0007`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var restored []string
			var err error
			if len(args) == 1 {
				restored, err = a.session.RestoreBeforeCall(ctx, args[0])
			} else {
				restored, err = a.session.RestoreLatest(ctx)
			}
			if err != nil {
				return err
			}
			if err := a.session.Save(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "restored %d file(s)\n", len(restored))
			for _, p := range restored {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", p)
			}
			return nil
		},
	}
}

func newSessionDiffCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <call-id>",
		Short: "Show what changed since the checkpoint before a call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			diff, err := a.session.DiffSinceCall(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), diff)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderDiff(args[0], diff))
			return nil
		},
	}
}

func newSessionRunCmd(a *app) *cobra.Command {
	var (
		label       string
		description string
	)

	cmd := &cobra.Command{
		Use:   "run -- <command> [args...]",
		Short: "Run a command inside the call protocol",
		Long: `Open a call (taking a pre-call checkpoint), run the command, and close
the call with its exit status. A failing command still leaves its
checkpoint as a rollback target.

With session.auto_watch enabled, files the command writes are tracked
against the call automatically.

Examples:
  rewind session run --label claude -- ./apply-edit.sh
  rewind session run -- make generate`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var watcher *workspace.Watcher
			if a.cfg.Session.AutoWatch {
				w, err := workspace.NewWatcher(a.scanner, a.session, a.logger)
				if err != nil {
					return err
				}
				if err := w.Start(ctx); err != nil {
					return err
				}
				watcher = w
				defer watcher.Stop()
			}

			rec, runErr := a.session.Run(ctx, label, description, func(ctx context.Context) error {
				return runCommand(ctx, args)
			})
			if saveErr := a.session.Save(); saveErr != nil {
				a.logger.Error("saving session state", zap.Error(saveErr))
				if runErr == nil {
					return saveErr
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "call %s %s (checkpoint %s, %d tracked files)\n",
				rec.ID, rec.Status, rec.CheckpointID, len(rec.TrackedFiles))
			if runErr != nil {
				return fmt.Errorf("command failed: %w", runErr)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "label for the call, e.g. the model or tool name")
	cmd.Flags().StringVar(&description, "description", "", "what the call is meant to do")
	return cmd
}

func runCommand(ctx context.Context, args []string) error {
	c := exec.CommandContext(ctx, args[0], args[1:]...)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	return c.Run()
}
