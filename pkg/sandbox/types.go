package sandbox

import (
	"github.com/tfsandbox/tfsandbox/pkg/pipeline"
	"github.com/tfsandbox/tfsandbox/pkg/workspace"
)

// StatusOK is the status of every successful non-validating operation.
const StatusOK = "ok"

// Result is returned by reset.
type Result struct {
	Status string `json:"status"`
}

// FilesResult is returned by load_stub and get_files.
type FilesResult struct {
	Status string                `json:"status"`
	Files  []workspace.FileEntry `json:"files"`
}

// SetFilesResult is returned by set_files.
type SetFilesResult struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// SetFilesRequest is the validated input of set_files.
type SetFilesRequest struct {
	Files []workspace.FileEntry `json:"files" validate:"required,min=1,dive"`
}

// ApplyDiffRequest is the validated input of apply_diff.
type ApplyDiffRequest struct {
	Changes []DiffChange `json:"changes" validate:"required,min=1,dive"`
}

// ValidationReport is the toolchain verdict over the workspace. Init,
// Validate and TFLint are null only when the stage was skipped.
type ValidationReport struct {
	Status          pipeline.Status                     `json:"status"`
	Files           []workspace.FileEntry               `json:"files"`
	FmtNeedsChanges bool                                `json:"fmtNeedsChanges"`
	Fmt             *pipeline.StageResult               `json:"fmt"`
	Init            *pipeline.StageResult               `json:"init"`
	Validate        *pipeline.StageResult               `json:"validate"`
	TFLint          *pipeline.StageResult               `json:"tflint"`
	Reformat        *pipeline.StageResult               `json:"reformat,omitempty"`
	LintIssues      []pipeline.LintIssue                `json:"lintIssues"`
	LintErrors      []string                            `json:"lintErrors,omitempty"`
	LintParseError  string                              `json:"lintParseError,omitempty"`
	Outcomes        map[pipeline.Stage]pipeline.Outcome `json:"outcomes"`
}

// ApplyReport extends ValidationReport with change accounting.
type ApplyReport struct {
	ValidationReport

	NoChanges         bool                 `json:"noChanges"`
	ChangedCount      int                  `json:"changedCount"`
	PatchChangedCount int                  `json:"patchChangedCount"`
	FmtChangedCount   int                  `json:"fmtChangedCount"`
	ChangedPaths      []string             `json:"changedPaths"`
	UnchangedPaths    []string             `json:"unchangedPaths"`
	Failures          []PatchFailure       `json:"failures,omitempty"`
	LineStats         map[string]LineStats `json:"lineStats,omitempty"`
	Notification      string               `json:"notification"`
}

// PatchFailure is a path whose patch could not be applied. The path keeps
// the content it had before the call.
type PatchFailure struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Hunk    int    `json:"hunk,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// LineStats counts lines added and removed between the content before the
// call and the final content.
type LineStats struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

func newValidationReport(r *pipeline.Report, files []workspace.FileEntry) ValidationReport {
	issues := r.Lint.Issues
	if issues == nil {
		issues = []pipeline.LintIssue{}
	}
	if files == nil {
		files = []workspace.FileEntry{}
	}
	return ValidationReport{
		Status:          r.Status,
		Files:           files,
		FmtNeedsChanges: r.FmtNeedsChanges,
		Fmt:             r.Fmt,
		Init:            r.Init,
		Validate:        r.Validate,
		TFLint:          r.TFLint,
		Reformat:        r.Reformat,
		LintIssues:      issues,
		LintErrors:      r.Lint.Errors,
		LintParseError:  r.Lint.ParseError,
		Outcomes:        r.Outcomes,
	}
}
