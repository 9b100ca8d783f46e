package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tfsandbox/tfsandbox/pkg/config"
	"github.com/tfsandbox/tfsandbox/pkg/mcpserver"
)

func newServeCommand(version string) *cobra.Command {
	var (
		memory bool
		watch  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the sandbox tools over MCP stdio",
		Long: `Serve the sandbox operations as MCP tools on standard input and output.
Logs go to standard error.

With --memory the workspace lives in memory and is materialized into a
temporary directory for each validation. With --watch, toolchain changes in
the config file apply to the next validation without a restart.`,
		Example: `  # Serve an in-memory workspace
  tfsandbox serve --memory

  # Serve a directory workspace and reload toolchain settings
  tfsandbox serve -w ./infra --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if memory {
				cfg.Workspace.Kind = config.WorkspaceMemory
			}

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if srv := a.tel.Metrics.Server(); srv != nil {
				go func() {
					log.Info().Str("addr", srv.Addr).Msg("Serving metrics")
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error().Err(err).Msg("Metrics server failed")
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			if watch {
				loader := config.NewLoader(configPath, a.logger)
				if _, err := loader.Load(); err != nil {
					return err
				}
				loader.OnChange(func(next *config.Config) {
					a.pipeline.SetToolchain(next.Toolchain)
					log.Info().
						Str("terraform", next.Toolchain.Terraform).
						Str("tflint", next.Toolchain.TFLint).
						Msg("Toolchain reloaded")
				})
				if err := loader.Watch(ctx); err != nil {
					return err
				}
				defer loader.Close()
			}

			srv := mcpserver.New(a.sandbox, version, a.logger)
			err = srv.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&memory, "memory", false, "use an in-memory workspace")
	cmd.Flags().BoolVar(&watch, "watch", false, "reload toolchain settings when the config file changes")
	return cmd
}
