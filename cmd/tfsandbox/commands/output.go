package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/tfsandbox/tfsandbox/pkg/pipeline"
	"github.com/tfsandbox/tfsandbox/pkg/sandbox"
	"github.com/tfsandbox/tfsandbox/pkg/workspace"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printFiles(w io.Writer, files []workspace.FileEntry) {
	for i, f := range files {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "==> %s <==\n", f.Path)
		fmt.Fprint(w, f.Content)
		if f.Content != "" && !strings.HasSuffix(f.Content, "\n") {
			fmt.Fprintln(w)
		}
	}
}

func printValidation(w io.Writer, rep *sandbox.ValidationReport) {
	fmt.Fprintf(w, "Status: %s\n", rep.Status)
	for _, st := range []*pipeline.StageResult{rep.Fmt, rep.Init, rep.Validate, rep.TFLint} {
		if st == nil {
			continue
		}
		fmt.Fprintf(w, "  %-9s %-7s exit=%d  %s\n", st.Stage, st.Outcome, st.ExitCode, st.Command)
		if st.Outcome == pipeline.OutcomeFailed {
			for _, line := range nonEmptyLines(st.Stderr + "\n" + st.Stdout) {
				fmt.Fprintf(w, "      %s\n", line)
			}
		}
	}
	if rep.Validate == nil {
		fmt.Fprintf(w, "  %-9s %s\n", pipeline.StageValidate, pipeline.OutcomeSkipped)
	}
	if rep.Reformat != nil {
		fmt.Fprintf(w, "  reformat  %-7s exit=%d\n", rep.Reformat.Outcome, rep.Reformat.ExitCode)
	}
	for _, is := range rep.LintIssues {
		fmt.Fprintf(w, "  lint: %s:%d [%s] %s: %s\n", is.File, is.Line, is.Severity, is.Rule, is.Message)
	}
	for _, e := range rep.LintErrors {
		fmt.Fprintf(w, "  lint error: %s\n", e)
	}
}

func printApply(w io.Writer, rep *sandbox.ApplyReport) {
	printValidation(w, &rep.ValidationReport)
	if rep.NoChanges {
		fmt.Fprintln(w, "No changes.")
	} else {
		fmt.Fprintf(w, "Changed %d file(s) (patch: %d, fmt: %d)\n", rep.ChangedCount, rep.PatchChangedCount, rep.FmtChangedCount)
		for _, p := range rep.ChangedPaths {
			st := rep.LineStats[p]
			fmt.Fprintf(w, "  M %s (+%d -%d)\n", p, st.Added, st.Removed)
		}
	}
	for _, p := range rep.UnchangedPaths {
		fmt.Fprintf(w, "  = %s\n", p)
	}
	for _, f := range rep.Failures {
		fmt.Fprintf(w, "  ! %s: %s\n", f.Path, f.Message)
	}
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
