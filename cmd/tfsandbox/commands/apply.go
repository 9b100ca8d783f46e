package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tfsandbox/tfsandbox/pkg/patch"
	"github.com/tfsandbox/tfsandbox/pkg/pipeline"
	"github.com/tfsandbox/tfsandbox/pkg/sandbox"
)

func newApplyCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "apply <patch-file>...",
		Short: "Apply unified diffs to the workspace and validate",
		Long: `Apply unified diffs to the workspace, reformat, and validate the result.

Multi-file diffs (git diff output) are split per file and each target is taken
from the +++ header. --path names the target of a single headerless diff. "-"
reads the diff from standard input.

A diff that does not match its file leaves that file untouched; the other
files are still applied and the command exits non-zero.`,
		Example: `  # Apply a git diff
  git diff > fix.diff && tfsandbox apply fix.diff

  # Apply a bare hunk to one file
  tfsandbox apply hunk.diff --path main.tf

  # Read from stdin and print the full report
  cat fix.diff | tfsandbox apply - --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if path != "" && len(args) != 1 {
				return fmt.Errorf("--path requires exactly one patch file")
			}

			changes, err := collectChanges(cmd, args, path)
			if err != nil {
				return err
			}

			log.Debug().Int("changes", len(changes)).Msg("Applying changes")

			return withApp(cmd.Context(), func(a *app) error {
				rep, applyErr := a.sandbox.ApplyDiff(cmd.Context(), changes)
				if rep == nil {
					return applyErr
				}
				if jsonOutput {
					if err := printJSON(cmd.OutOrStdout(), rep); err != nil {
						return err
					}
				} else {
					printApply(cmd.OutOrStdout(), rep)
				}
				if applyErr != nil {
					return applyErr
				}
				if rep.Status != pipeline.StatusOK {
					return fmt.Errorf("validation status: %s", rep.Status)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "workspace path for a single headerless diff")
	return cmd
}

// collectChanges reads each patch file and turns it into per-file changes.
func collectChanges(cmd *cobra.Command, args []string, path string) ([]sandbox.DiffChange, error) {
	var changes []sandbox.DiffChange
	for _, name := range args {
		text, err := readInput(cmd.InOrStdin(), name)
		if err != nil {
			return nil, err
		}
		if path != "" {
			changes = append(changes, sandbox.DiffChange{Path: path, Patch: text})
			continue
		}

		parts := patch.SplitFiles(text)
		if len(parts) == 0 {
			return nil, fmt.Errorf("%s: no diff found", name)
		}
		for _, part := range parts {
			p, err := patch.Parse(part)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			target := p.TargetPath()
			if target == "" {
				return nil, fmt.Errorf("%s: diff has no file header, use --path", name)
			}
			changes = append(changes, sandbox.DiffChange{Path: target, Patch: part})
		}
	}
	return changes, nil
}
