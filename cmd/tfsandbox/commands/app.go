package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tfsandbox/tfsandbox/pkg/config"
	"github.com/tfsandbox/tfsandbox/pkg/pipeline"
	"github.com/tfsandbox/tfsandbox/pkg/runner"
	"github.com/tfsandbox/tfsandbox/pkg/sandbox"
	"github.com/tfsandbox/tfsandbox/pkg/stores"
	"github.com/tfsandbox/tfsandbox/pkg/telemetry"
	"github.com/tfsandbox/tfsandbox/pkg/workspace"
)

// newRunner builds the process runner for the toolchain. Tests replace it.
var newRunner = func(logger zerolog.Logger) runner.Runner {
	return runner.NewExec(logger)
}

// app is everything a command needs, built from configuration.
type app struct {
	cfg      *config.Config
	tel      *telemetry.Telemetry
	logger   zerolog.Logger
	pipeline *pipeline.Pipeline
	sandbox  *sandbox.Sandbox
	journal  *stores.SQLiteStore
}

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if workspaceDir != "" {
		cfg.Workspace.Kind = config.WorkspaceDir
		cfg.Workspace.Dir = workspaceDir
	}
	return cfg, nil
}

// openApp wires telemetry, the workspace store, the pipeline, the sandbox
// and, when enabled, the change journal.
func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a := &app{cfg: cfg, tel: tel, logger: tel.Logger.Zerolog()}

	var store workspace.Store
	switch cfg.Workspace.Kind {
	case config.WorkspaceMemory:
		store = workspace.NewMemoryStore(cfg.Workspace.TempDir)
	default:
		ds, err := workspace.NewDirStore(cfg.Workspace.Dir)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("failed to open workspace: %w", err)
		}
		store = ds
	}

	a.pipeline = pipeline.New(newRunner(a.logger), cfg.Toolchain, pipeline.WithTelemetry(tel))

	opts := []sandbox.Option{
		sandbox.WithTelemetry(tel),
		sandbox.WithPatchWindow(cfg.Workspace.PatchWindow),
	}
	if cfg.Workspace.Name != "" {
		opts = append(opts, sandbox.WithName(cfg.Workspace.Name))
	}
	if cfg.Journal.Enabled {
		j, err := openJournal(ctx, cfg.Journal)
		if err != nil {
			_ = store.Close()
			a.Close(ctx)
			return nil, err
		}
		a.journal = j
		opts = append(opts, sandbox.WithChangeSink(j))
	}

	a.sandbox = sandbox.New(store, a.pipeline, opts...)
	log.Debug().
		Str("workspace_kind", store.Kind()).
		Str("workspace", a.sandbox.Name()).
		Bool("journal", a.journal != nil).
		Msg("Sandbox ready")
	return a, nil
}

// openJournal opens and migrates the journal, pruning expired batches.
func openJournal(ctx context.Context, jc config.JournalConfig) (*stores.SQLiteStore, error) {
	j, err := stores.NewSQLiteStore(stores.Config{Path: jc.Path})
	if err != nil {
		return nil, fmt.Errorf("failed to create journal: %w", err)
	}
	if err := j.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := j.Migrate(ctx); err != nil {
		_ = j.Close()
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}

	if jc.Retention > 0 {
		n, err := j.PruneBefore(ctx, time.Now().Add(-jc.Retention))
		if err != nil {
			log.Warn().Err(err).Msg("Failed to prune journal")
		} else if n > 0 {
			log.Info().Int64("batches", n).Dur("retention", jc.Retention).Msg("Pruned journal")
		}
	}
	return j, nil
}

// Close releases the workspace, the journal and telemetry.
func (a *app) Close(ctx context.Context) {
	var errs []error
	if a.sandbox != nil {
		errs = append(errs, a.sandbox.Close())
	}
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	if a.tel != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		errs = append(errs, a.tel.Shutdown(shutdownCtx))
	}
	if err := errors.Join(errs...); err != nil {
		log.Warn().Err(err).Msg("Shutdown incomplete")
	}
}

// withApp loads configuration, opens the app, runs fn and closes the app.
func withApp(ctx context.Context, fn func(*app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(ctx)
	return fn(a)
}
