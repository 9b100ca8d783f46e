package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// LintIssue is one tflint finding.
type LintIssue struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
}

// LintReport is the structured view of tflint output. ParseError is set when
// stdout was not the expected JSON; it never affects the verdict.
type LintReport struct {
	Issues     []LintIssue `json:"issues"`
	Errors     []string    `json:"errors,omitempty"`
	ParseError string      `json:"parseError,omitempty"`
}

type tflintOutput struct {
	Issues []struct {
		Rule struct {
			Name     string `json:"name"`
			Severity string `json:"severity"`
		} `json:"rule"`
		Message string      `json:"message"`
		Range   tflintRange `json:"range"`
	} `json:"issues"`
	Errors []struct {
		Message  string      `json:"message"`
		Severity string      `json:"severity"`
		Range    tflintRange `json:"range"`
	} `json:"errors"`
}

type tflintRange struct {
	Filename string `json:"filename"`
	Start    struct {
		Line int `json:"line"`
	} `json:"start"`
}

// ParseLint decodes tflint --format json output. Empty output yields an empty
// report.
func ParseLint(stdout string) LintReport {
	report := LintReport{Issues: []LintIssue{}}
	if strings.TrimSpace(stdout) == "" {
		return report
	}

	var out tflintOutput
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		report.ParseError = fmt.Sprintf("failed to parse tflint output: %v", err)
		return report
	}

	for _, is := range out.Issues {
		report.Issues = append(report.Issues, LintIssue{
			Rule:     is.Rule.Name,
			Severity: is.Rule.Severity,
			Message:  is.Message,
			File:     is.Range.Filename,
			Line:     is.Range.Start.Line,
		})
	}
	for _, e := range out.Errors {
		msg := e.Message
		if e.Range.Filename != "" {
			msg = fmt.Sprintf("%s:%d: %s", e.Range.Filename, e.Range.Start.Line, e.Message)
		}
		report.Errors = append(report.Errors, msg)
	}
	return report
}
