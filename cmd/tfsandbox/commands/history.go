package commands

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tfsandbox/tfsandbox/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		limit int
		ws    string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled change batches",
		Long: `List the change batches recorded by the journal, newest first. Each
accepted apply request is one batch, recorded before the patches are applied.`,
		Example: `  tfsandbox history
  tfsandbox history --workspace team-a --limit 5
  tfsandbox history show 3f1c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(cmd.Context(), func(j *stores.SQLiteStore) error {
				var filter *string
				if ws != "" {
					filter = &ws
				}
				batches, err := j.ListBatches(cmd.Context(), filter, limit, 0)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), batches)
				}
				if len(batches) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No change batches recorded.")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tWORKSPACE\tCHANGES\tRECORDED")
				for _, b := range batches {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", b.ID, b.Workspace, b.ChangeCount, b.CreatedAt.Local().Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of batches")
	cmd.Flags().StringVar(&ws, "workspace", "", "only batches for this workspace")

	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryDeleteCommand())
	cmd.AddCommand(newHistoryPruneCommand())
	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <batch-id>",
		Short: "Print the patches of one batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(cmd.Context(), func(j *stores.SQLiteStore) error {
				batch, err := j.GetBatch(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), batch)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Batch:     %s\n", batch.ID)
				fmt.Fprintf(out, "Workspace: %s\n", batch.Workspace)
				fmt.Fprintf(out, "Recorded:  %s\n", batch.CreatedAt.Local().Format(time.RFC3339))
				for _, e := range batch.Entries {
					fmt.Fprintf(out, "\n==> %d %s <==\n%s\n", e.Seq, e.Path, e.Patch)
				}
				return nil
			})
		},
	}
}

func newHistoryDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <batch-id>",
		Short: "Delete one batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(cmd.Context(), func(j *stores.SQLiteStore) error {
				if err := j.DeleteBatch(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted batch %s\n", args[0])
				return nil
			})
		},
	}
}

func newHistoryPruneCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:     "prune",
		Short:   "Delete batches older than a duration",
		Example: `  tfsandbox history prune --older-than 720h`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			return withJournal(cmd.Context(), func(j *stores.SQLiteStore) error {
				n, err := j.PruneBefore(cmd.Context(), time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Pruned %d batch(es)\n", n)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "age of the oldest batch to keep")
	return cmd
}

// withJournal opens the configured journal without a workspace.
func withJournal(ctx context.Context, fn func(*stores.SQLiteStore) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Journal.Enabled {
		return errors.New("journal is disabled; enable it in the config or set TFSANDBOX_JOURNAL_PATH")
	}
	j, err := openJournal(ctx, cfg.Journal)
	if err != nil {
		return err
	}
	defer j.Close()
	return fn(j)
}
