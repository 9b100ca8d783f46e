package pipeline

import "time"

// Toolchain names the binaries and arguments of every stage.
type Toolchain struct {
	Terraform string `yaml:"terraform" toml:"terraform" json:"terraform" validate:"required"`
	TFLint    string `yaml:"tflint" toml:"tflint" json:"tflint" validate:"required"`

	FmtCheckArgs   []string `yaml:"fmt_check_args" toml:"fmt_check_args" json:"fmtCheckArgs" validate:"min=1"`
	InitArgs       []string `yaml:"init_args" toml:"init_args" json:"initArgs" validate:"min=1"`
	ValidateArgs   []string `yaml:"validate_args" toml:"validate_args" json:"validateArgs" validate:"min=1"`
	LintArgs       []string `yaml:"lint_args" toml:"lint_args" json:"lintArgs"`
	FmtArgs        []string `yaml:"fmt_args" toml:"fmt_args" json:"fmtArgs" validate:"min=1"`
	FmtRecheckArgs []string `yaml:"fmt_recheck_args" toml:"fmt_recheck_args" json:"fmtRecheckArgs" validate:"min=1"`

	// StageTimeout bounds each stage. Zero means no limit.
	StageTimeout time.Duration `yaml:"stage_timeout" toml:"stage_timeout" json:"stageTimeout" validate:"gte=0"`

	// Env is added to the environment of every stage.
	Env map[string]string `yaml:"env" toml:"env" json:"env,omitempty"`
}

// DefaultToolchain returns the stock terraform and tflint invocations.
func DefaultToolchain() Toolchain {
	return Toolchain{
		Terraform:      "terraform",
		TFLint:         "tflint",
		FmtCheckArgs:   []string{"fmt", "-no-color", "-diff", "-check"},
		InitArgs:       []string{"init", "-backend=false", "-input=false", "-lock=false", "-no-color"},
		ValidateArgs:   []string{"validate", "-no-color"},
		LintArgs:       []string{"--no-color", "--format", "json"},
		FmtArgs:        []string{"fmt", "-no-color"},
		FmtRecheckArgs: []string{"fmt", "-no-color", "-check"},
		Env:            map[string]string{"TF_IN_AUTOMATION": "1"},
	}
}
