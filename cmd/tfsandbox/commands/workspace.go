package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tfsandbox/tfsandbox/pkg/workspace"
)

func newResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Remove every file from the workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				res, err := a.sandbox.Reset(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), res)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Workspace %s reset\n", a.sandbox.Name())
				return nil
			})
		},
	}
}

func newStubCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stub",
		Short: "Seed the workspace with a minimal main.tf",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				res, err := a.sandbox.LoadStub(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), res)
				}
				printFiles(cmd.OutOrStdout(), res.Files)
				return nil
			})
		},
	}
}

func newFilesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Read and write workspace files",
	}
	cmd.AddCommand(newFilesGetCommand())
	cmd.AddCommand(newFilesSetCommand())
	return cmd
}

func newFilesGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get [path...]",
		Short: "Print workspace files",
		Long: `Print workspace files sorted by path. With arguments only the named
paths are printed; a named path that does not exist is an error.`,
		Example: `  tfsandbox files get
  tfsandbox files get main.tf --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				res, err := a.sandbox.GetFiles(cmd.Context())
				if err != nil {
					return err
				}
				files, err := selectFiles(res.Files, args)
				if err != nil {
					return err
				}
				if jsonOutput {
					res.Files = files
					return printJSON(cmd.OutOrStdout(), res)
				}
				printFiles(cmd.OutOrStdout(), files)
				return nil
			})
		},
	}
}

func selectFiles(all []workspace.FileEntry, paths []string) ([]workspace.FileEntry, error) {
	if len(paths) == 0 {
		return all, nil
	}
	byPath := make(map[string]workspace.FileEntry, len(all))
	for _, f := range all {
		byPath[f.Path] = f
	}
	out := make([]workspace.FileEntry, 0, len(paths))
	for _, p := range paths {
		clean, err := workspace.CleanPath(p)
		if err != nil {
			return nil, err
		}
		f, ok := byPath[clean]
		if !ok {
			return nil, fmt.Errorf("%s: %w", p, workspace.ErrNotFound)
		}
		out = append(out, f)
	}
	return out, nil
}

func newFilesSetCommand() *cobra.Command {
	var to string

	cmd := &cobra.Command{
		Use:   "set <file>...",
		Short: "Copy local files into the workspace",
		Long: `Copy local files into the workspace. Each file keeps its base name unless
--to names the workspace path, which requires exactly one file. "-" reads
standard input and requires --to.`,
		Example: `  tfsandbox files set main.tf variables.tf
  tfsandbox files set ./modules/net.tf --to modules/net/main.tf
  cat main.tf | tfsandbox files set - --to main.tf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if to != "" && len(args) != 1 {
				return fmt.Errorf("--to requires exactly one file")
			}

			files := make([]workspace.FileEntry, 0, len(args))
			for _, src := range args {
				target := to
				if target == "" {
					if src == "-" {
						return fmt.Errorf("reading standard input requires --to")
					}
					target = filepath.Base(src)
				}
				content, err := readInput(cmd.InOrStdin(), src)
				if err != nil {
					return err
				}
				files = append(files, workspace.FileEntry{Path: target, Content: content})
			}

			return withApp(cmd.Context(), func(a *app) error {
				res, err := a.sandbox.SetFiles(cmd.Context(), files)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), res)
				}
				for _, f := range files {
					fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", f.Path)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "workspace path for a single file")
	return cmd
}

// readInput reads a named file, or stdin for "-".
func readInput(stdin io.Reader, name string) (string, error) {
	if name == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read standard input: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	return string(data), nil
}
