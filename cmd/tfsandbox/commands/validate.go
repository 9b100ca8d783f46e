package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tfsandbox/tfsandbox/pkg/pipeline"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Run fmt, init, validate and tflint without changing files",
		Long: `Run the toolchain checks against the workspace. Files are never modified;
formatting problems are reported, not fixed. Exits non-zero unless the status
is ok.`,
		Example: `  tfsandbox validate
  tfsandbox validate --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				rep, err := a.sandbox.ValidateOnly(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					if err := printJSON(cmd.OutOrStdout(), rep); err != nil {
						return err
					}
				} else {
					printValidation(cmd.OutOrStdout(), rep)
				}
				if rep.Status != pipeline.StatusOK {
					return fmt.Errorf("validation status: %s", rep.Status)
				}
				return nil
			})
		},
	}
}
