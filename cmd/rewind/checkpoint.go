package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/rewind/internal/checkpoint"
	"github.com/fyrsmithlabs/rewind/internal/workspace"
)

func newCheckpointCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Create and list workspace checkpoints",
	}
	cmd.AddCommand(newCheckpointCreateCmd(a), newCheckpointListCmd(a))
	return cmd
}

func newCheckpointCreateCmd(a *app) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Snapshot the current workspace state under a name",
		Long: `Snapshot every eligible workspace file into a content-addressed
checkpoint.

Examples:
  rewind checkpoint create before-refactor
  rewind checkpoint create release-candidate --description "state shipped to QA"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			current, err := a.currentFiles(ctx)
			if err != nil {
				return err
			}

			cp, err := a.session.Manager().Create(ctx, args[0], current, description)
			if err != nil {
				return err
			}
			if err := a.session.Save(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created checkpoint %s (%s, %d files)\n",
				cp.ID, cp.Name, cp.Len())
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "checkpoint description")
	return cmd
}

func newCheckpointListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List checkpoints, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			checkpoints := a.session.Manager().Store().List()
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), checkpointViews(checkpoints))
			}
			if len(checkpoints) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no checkpoints")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), renderCheckpointList(checkpoints, workspace.Branch(a.scanner.Root())))
			return nil
		},
	}
}

func newDiffCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <id-or-name>",
		Short: "Classify current files against a checkpoint",
		Long: `Compare the current workspace state to a checkpoint and list added,
modified, and deleted paths.

Examples:
  rewind diff before-refactor
  rewind diff 3f9a1c`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			current, err := a.currentFiles(ctx)
			if err != nil {
				return err
			}
			diff, err := a.session.Manager().Diff(ctx, args[0], current)
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

func newHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history <file>",
		Short: "Show every checkpointed version of one file",
		Long: `List the checkpoints that contain the given file, oldest first, with
the content fingerprint at each point.

Examples:
  rewind history internal/server.go`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := a.session.Manager().FileHistory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), entries)
			}
			if len(entries) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s appears in no checkpoint\n", args[0])
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), renderFileHistory(args[0], entries))
			return nil
		},
	}
}

func newRestoreCmd(a *app) *cobra.Command {
	var (
		paths     []string
		outputDir string
		dryRun    bool
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "restore [id-or-name]",
		Short: "Write checkpointed content back to the workspace",
		Long: `Restore the files of a checkpoint. Without an argument, an interactive
picker lists all checkpoints.

The restore is all-or-nothing: if any target file has been modified
since the checkpoint, nothing is written unless --force is set.

Examples:
  rewind restore before-refactor
  rewind restore 3f9a1c --paths main.go --dry-run
  rewind restore before-refactor --output-dir /tmp/review
  rewind restore`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var idOrName string
			if len(args) == 1 {
				idOrName = args[0]
			} else {
				picked, err := pickCheckpoint(a.session.Manager().Store().List())
				if err != nil {
					return err
				}
				if picked == "" {
					fmt.Fprintln(cmd.OutOrStdout(), "restore cancelled")
					return nil
				}
				idOrName = picked
			}

			target := outputDir
			if target == "" {
				target = a.scanner.Root()
			}

			written, err := a.session.Manager().Restore(ctx, idOrName, checkpoint.RestoreOptions{
				Paths:     paths,
				OutputDir: target,
				DryRun:    dryRun,
				Force:     force,
			})
			if err != nil {
				return err
			}

			verb := "restored"
			if dryRun {
				verb = "would restore"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d file(s) from %s\n", verb, len(written), idOrName)
			for _, p := range sortedKeys(written) {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", p)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&paths, "paths", nil, "restore only these checkpoint paths")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "write files under this directory instead of the workspace root")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the write plan without touching files")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite files modified since the checkpoint")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a checkpoint by exact id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.session.Manager().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			if err := a.session.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted checkpoint %s\n", args[0])
			return nil
		},
	}
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
