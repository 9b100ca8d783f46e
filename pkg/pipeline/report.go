package pipeline

import (
	"regexp"

	"github.com/tfsandbox/tfsandbox/pkg/runner"
)

// Stage names a pipeline step.
type Stage string

const (
	StageFmt      Stage = "fmt"
	StageInit     Stage = "init"
	StageValidate Stage = "validate"
	StageLint     Stage = "tflint"
	StageReformat Stage = "reformat"
)

// Outcome is the result of one stage.
type Outcome string

const (
	OutcomePassed  Outcome = "passed"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Status is the aggregate verdict.
type Status string

const (
	StatusOK         Status = "ok"
	StatusLintFailed Status = "lint_failed"
)

// StageResult is the captured run of one stage.
type StageResult struct {
	Stage   Stage   `json:"stage"`
	Command string  `json:"command"`
	Outcome Outcome `json:"outcome"`
	runner.ExecResult
}

// Report is the outcome of a pipeline run. Init, Validate and TFLint are nil
// only when the stage was skipped.
type Report struct {
	Status          Status            `json:"status"`
	FmtNeedsChanges bool              `json:"fmtNeedsChanges"`
	Fmt             *StageResult      `json:"fmt"`
	Init            *StageResult      `json:"init"`
	Validate        *StageResult      `json:"validate"`
	TFLint          *StageResult      `json:"tflint"`
	Reformat        *StageResult      `json:"reformat,omitempty"`
	Lint            LintReport        `json:"lint"`
	Outcomes        map[Stage]Outcome `json:"outcomes"`
}

// fmtDiffMarkers matches the unified diff headers terraform fmt -diff prints.
var fmtDiffMarkers = regexp.MustCompile(`\+{3}|-{3}|@@`)

// FormatNeedsChanges reports whether a format check found unformatted files:
// a non-zero exit or diff markers on stdout.
func FormatNeedsChanges(res runner.ExecResult) bool {
	return res.ExitCode != 0 || fmtDiffMarkers.MatchString(res.Stdout)
}

// ComputeStatus folds the stage results into the verdict. A nil stage was
// skipped and cannot fail the workspace.
func ComputeStatus(fmtNeedsChanges bool, validate, lint *StageResult) Status {
	if fmtNeedsChanges {
		return StatusLintFailed
	}
	if validate != nil && validate.ExitCode != 0 {
		return StatusLintFailed
	}
	if lint != nil && lint.ExitCode != 0 {
		return StatusLintFailed
	}
	return StatusOK
}

func (r *Report) refresh() {
	r.Status = ComputeStatus(r.FmtNeedsChanges, r.Validate, r.TFLint)
	r.Outcomes = map[Stage]Outcome{
		StageFmt:      outcomeOf(r.Fmt),
		StageInit:     outcomeOf(r.Init),
		StageValidate: outcomeOf(r.Validate),
		StageLint:     outcomeOf(r.TFLint),
	}
	if r.Reformat != nil {
		r.Outcomes[StageReformat] = r.Reformat.Outcome
	}
}

func outcomeOf(s *StageResult) Outcome {
	if s == nil {
		return OutcomeSkipped
	}
	return s.Outcome
}
