package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/tfsandbox/tfsandbox/pkg/runner"
	"github.com/tfsandbox/tfsandbox/pkg/telemetry"
)

// Pipeline runs the toolchain stages against a directory.
type Pipeline struct {
	runner    runner.Runner
	mu        sync.RWMutex
	toolchain Toolchain
	log       *telemetry.Logger
	tel       *telemetry.Telemetry
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTelemetry records stage spans and metrics and logs through the
// telemetry logger.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(p *Pipeline) { p.tel = tel }
}

// New creates a pipeline running tc through r.
func New(r runner.Runner, tc Toolchain, opts ...Option) *Pipeline {
	p := &Pipeline{
		runner:    r,
		toolchain: tc,
		tel:       telemetry.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.tel.Logger.NewComponentLogger("pipeline")
	return p
}

// Toolchain returns the configured toolchain.
func (p *Pipeline) Toolchain() Toolchain {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.toolchain
}

// SetToolchain replaces the toolchain for subsequent runs. A run in progress
// keeps the toolchain it started with.
func (p *Pipeline) SetToolchain(tc Toolchain) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toolchain = tc
}

// Run executes the check stages in order against dir.
func (p *Pipeline) Run(ctx context.Context, dir string) *Report {
	tc := p.Toolchain()
	report := &Report{}

	report.Fmt = p.stage(ctx, tc, StageFmt, dir, tc.Terraform, tc.FmtCheckArgs, FormatNeedsChanges)
	report.FmtNeedsChanges = report.Fmt.Outcome == OutcomeFailed

	report.Init = p.stage(ctx, tc, StageInit, dir, tc.Terraform, tc.InitArgs, nil)
	if report.Init.Succeeded() {
		report.Validate = p.stage(ctx, tc, StageValidate, dir, tc.Terraform, tc.ValidateArgs, nil)
	} else {
		p.skip(StageValidate, "init failed")
	}

	report.TFLint = p.stage(ctx, tc, StageLint, dir, tc.TFLint, tc.LintArgs, nil)
	if !report.TFLint.NotStarted() {
		report.Lint = ParseLint(report.TFLint.Stdout)
		for _, is := range report.Lint.Issues {
			p.tel.Metrics.RecordLintIssue(is.Severity)
		}
	} else {
		report.Lint = LintReport{Issues: []LintIssue{}}
	}

	report.refresh()
	p.log.Zerolog().Debug().
		Str("dir", dir).
		Str("status", string(report.Status)).
		Bool("fmt_needs_changes", report.FmtNeedsChanges).
		Msg("pipeline finished")
	return report
}

// Reformat runs the formatter in dir and rechecks formatting. The recheck
// replaces report.Fmt and its verdict is a non-zero exit only.
func (p *Pipeline) Reformat(ctx context.Context, dir string, report *Report) {
	tc := p.Toolchain()

	report.Reformat = p.stage(ctx, tc, StageReformat, dir, tc.Terraform, tc.FmtArgs, nil)
	report.Fmt = p.stage(ctx, tc, StageFmt, dir, tc.Terraform, tc.FmtRecheckArgs, func(res runner.ExecResult) bool {
		return res.ExitCode != 0
	})
	report.FmtNeedsChanges = report.Fmt.Outcome == OutcomeFailed
	report.refresh()
}

// stage runs one command. failed decides the outcome; nil means any non-zero
// exit fails.
func (p *Pipeline) stage(ctx context.Context, tc Toolchain, stage Stage, dir, bin string, args []string, failed func(runner.ExecResult) bool) *StageResult {
	cmd := runner.Command{
		Name:    bin,
		Args:    args,
		Dir:     dir,
		Env:     tc.Env,
		Timeout: tc.StageTimeout,
	}

	ctx, span := p.tel.Tracer.StartStageSpan(ctx, string(stage), cmd.String())
	defer span.End()

	res := p.runner.Run(ctx, cmd)

	if failed == nil {
		failed = func(r runner.ExecResult) bool { return r.ExitCode != 0 }
	}
	outcome := OutcomePassed
	if failed(res) {
		outcome = OutcomeFailed
	}

	span.SetAttributes(
		telemetry.AttrExitCode.Int(res.ExitCode),
		telemetry.AttrOutcome.String(string(outcome)),
	)
	p.tel.Metrics.RecordStage(string(stage), string(outcome), msDuration(res.DurationMs))

	logger := p.log.WithStage(string(stage)).Zerolog()
	ev := logger.Debug()
	if res.NotStarted() {
		ev = logger.Warn().Str("stderr", res.Stderr)
	}
	ev.Str("command", cmd.String()).
		Int("exit_code", res.ExitCode).
		Int64("duration_ms", res.DurationMs).
		Str("outcome", string(outcome)).
		Msg("stage finished")

	return &StageResult{
		Stage:      stage,
		Command:    cmd.String(),
		Outcome:    outcome,
		ExecResult: res,
	}
}

func (p *Pipeline) skip(stage Stage, reason string) {
	p.tel.Metrics.RecordStage(string(stage), string(OutcomeSkipped), 0)
	p.log.WithStage(string(stage)).WithField("reason", reason).Debug("stage skipped")
}

func msDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
