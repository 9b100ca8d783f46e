package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tfsandbox/tfsandbox/pkg/config"
	"github.com/tfsandbox/tfsandbox/pkg/workspace"
)

func newInitCommand() *cobra.Command {
	var (
		journal bool
		stub    bool
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a tfsandbox project",
		Long: `Initialize a tfsandbox project: write the configuration file, create the
workspace directory and, with --journal, the SQLite change journal.

An existing configuration file is kept unless --force is given.`,
		Example: `  # Initialize with defaults
  tfsandbox init

  # Initialize with a change journal and the stub configuration
  tfsandbox init --journal --stub

  # Write a TOML configuration
  tfsandbox init --config tfsandbox.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			log.Info().
				Str("config", configPath).
				Bool("journal", journal).
				Msg("Initializing project")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if journal {
				cfg.Journal.Enabled = true
			}

			// Step 1: configuration file
			_, statErr := os.Stat(configPath)
			switch {
			case statErr == nil && !force:
				fmt.Fprintf(out, "✓ Using existing config: %s\n", configPath)
			case statErr == nil || errors.Is(statErr, fs.ErrNotExist):
				if err := config.Save(cfg, configPath); err != nil {
					return err
				}
				fmt.Fprintf(out, "✓ Wrote config: %s\n", configPath)
			default:
				return fmt.Errorf("failed to stat config: %w", statErr)
			}

			// Step 2: workspace directory
			if cfg.Workspace.Kind == config.WorkspaceDir {
				ds, err := workspace.NewDirStore(cfg.Workspace.Dir)
				if err != nil {
					return fmt.Errorf("failed to create workspace: %w", err)
				}
				fmt.Fprintf(out, "✓ Workspace directory: %s\n", ds.Root())

				if stub {
					entry, err := workspace.LoadStub(ctx, ds)
					if err != nil {
						return fmt.Errorf("failed to load stub: %w", err)
					}
					fmt.Fprintf(out, "✓ Seeded %s\n", filepath.Join(ds.Root(), entry.Path))
				}
				_ = ds.Close()
			} else {
				fmt.Fprintln(out, "✓ Memory workspace (nothing to create)")
			}

			// Step 3: change journal
			if cfg.Journal.Enabled {
				if dir := filepath.Dir(cfg.Journal.Path); dir != "." {
					if err := os.MkdirAll(dir, 0o755); err != nil {
						return fmt.Errorf("failed to create journal directory: %w", err)
					}
				}
				j, err := openJournal(ctx, cfg.Journal)
				if err != nil {
					return err
				}
				_ = j.Close()
				fmt.Fprintf(out, "✓ Journal ready: %s\n", cfg.Journal.Path)
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, "Project initialized. Next steps:")
			fmt.Fprintln(out, "  tfsandbox stub            # seed main.tf")
			fmt.Fprintln(out, "  tfsandbox apply fix.diff  # apply and validate a patch")
			fmt.Fprintln(out, "  tfsandbox serve           # run the MCP server on stdio")
			return nil
		},
	}

	cmd.Flags().BoolVar(&journal, "journal", false, "enable the SQLite change journal")
	cmd.Flags().BoolVar(&stub, "stub", false, "seed the workspace with the stub main.tf")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	return cmd
}
