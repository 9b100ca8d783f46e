package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath   string
	workspaceDir string
	jsonOutput   bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tfsandbox",
		Short: "tfsandbox - Terraform workspace sandbox with patch-and-validate",
		Long: `tfsandbox keeps a Terraform workspace, applies unified diffs to it with
tolerant context matching, and validates the result with terraform fmt,
init, validate and tflint.

Features:
  - In-memory or directory-backed workspaces confined to their root
  - Drift-tolerant patch application with per-file conflict reporting
  - Automatic formatting with change accounting
  - Change journal in SQLite
  - MCP stdio server for agents`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "tfsandbox.yaml", "config file path (.yaml, .yml or .toml)")
	rootCmd.PersistentFlags().StringVarP(&workspaceDir, "workspace-dir", "w", "", "workspace directory (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newResetCommand())
	rootCmd.AddCommand(newStubCommand())
	rootCmd.AddCommand(newFilesCommand())
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newServeCommand(version))

	return rootCmd
}
