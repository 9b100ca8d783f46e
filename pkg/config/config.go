package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tfsandbox/tfsandbox/pkg/patch"
	"github.com/tfsandbox/tfsandbox/pkg/pipeline"
	"github.com/tfsandbox/tfsandbox/pkg/telemetry"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TFSANDBOX_"

// Workspace store kinds.
const (
	WorkspaceMemory = "memory"
	WorkspaceDir    = "dir"
)

// Config is the top-level tfsandbox configuration.
type Config struct {
	Workspace WorkspaceConfig    `yaml:"workspace" toml:"workspace"`
	Toolchain pipeline.Toolchain `yaml:"toolchain" toml:"toolchain"`
	Journal   JournalConfig      `yaml:"journal" toml:"journal"`
	Telemetry telemetry.Config   `yaml:"telemetry" toml:"telemetry" validate:"-"`
}

// WorkspaceConfig selects and tunes the workspace store.
type WorkspaceConfig struct {
	// Kind is memory or dir.
	Kind string `yaml:"kind" toml:"kind" validate:"oneof=memory dir"`

	// Dir is the root of a dir workspace.
	Dir string `yaml:"dir" toml:"dir" validate:"required_if=Kind dir"`

	// TempDir is where memory workspaces are materialized. Empty means the
	// system temp dir.
	TempDir string `yaml:"temp_dir" toml:"temp_dir"`

	// Name identifies the workspace to change sinks. Empty derives it from
	// the store.
	Name string `yaml:"name" toml:"name"`

	// PatchWindow bounds the forward search for misplaced lines.
	PatchWindow int `yaml:"patch_window" toml:"patch_window" validate:"gte=1"`
}

// JournalConfig configures the SQLite change journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path" validate:"required_if=Enabled true"`

	// Retention prunes batches older than this on open. Zero keeps everything.
	Retention time.Duration `yaml:"retention" toml:"retention" validate:"gte=0"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Kind:        WorkspaceDir,
			Dir:         "workspace",
			PatchWindow: patch.DefaultWindow,
		},
		Toolchain: pipeline.DefaultToolchain(),
		Journal: JournalConfig{
			Path: "tfsandbox.db",
		},
		Telemetry: *telemetry.DefaultConfig(),
	}
}

var validate = validator.New()

// Validate checks struct tags and the telemetry section.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry configuration: %w", err)
	}
	return nil
}

// ApplyEnvOverrides applies TFSANDBOX_* environment variables.
func (c *Config) ApplyEnvOverrides() error {
	// Workspace overrides
	if v := os.Getenv(EnvPrefix + "WORKSPACE_KIND"); v != "" {
		c.Workspace.Kind = v
	}
	if v := os.Getenv(EnvPrefix + "WORKSPACE_DIR"); v != "" {
		c.Workspace.Dir = v
	}
	if v := os.Getenv(EnvPrefix + "WORKSPACE_NAME"); v != "" {
		c.Workspace.Name = v
	}

	// Toolchain overrides
	if v := os.Getenv(EnvPrefix + "TERRAFORM"); v != "" {
		c.Toolchain.Terraform = v
	}
	if v := os.Getenv(EnvPrefix + "TFLINT"); v != "" {
		c.Toolchain.TFLint = v
	}
	if v := os.Getenv(EnvPrefix + "STAGE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sSTAGE_TIMEOUT: %w", EnvPrefix, err)
		}
		c.Toolchain.StageTimeout = d
	}

	// Journal overrides
	if v := os.Getenv(EnvPrefix + "JOURNAL_PATH"); v != "" {
		c.Journal.Enabled = true
		c.Journal.Path = v
	}

	// Telemetry overrides
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.Telemetry.Logging.Level = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_FORMAT"); v != "" {
		c.Telemetry.Logging.Format = v
	}
	if v := os.Getenv(EnvPrefix + "METRICS_ADDR"); v != "" {
		c.Telemetry.Metrics.Enabled = true
		c.Telemetry.Metrics.ListenAddress = v
	}
	if v := os.Getenv(EnvPrefix + "OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Tracing.Enabled = true
		c.Telemetry.Tracing.Exporter = "otlp"
		c.Telemetry.Tracing.Endpoint = v
	}
	return nil
}
