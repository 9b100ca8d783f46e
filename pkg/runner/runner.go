package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ExitCodeNotStarted is the sentinel exit code for a process that could not
// be spawned, or that did not exit on its own (signal, timeout, cancellation).
const ExitCodeNotStarted = -1

// waitDelay bounds how long output pipes are drained after a process is
// killed, so orphaned grandchildren cannot hold a stage open.
const waitDelay = 2 * time.Second

// Command describes a single external process invocation.
type Command struct {
	// Name is the executable to run, resolved through PATH.
	Name string

	// Args are the command-line arguments.
	Args []string

	// Dir is the working directory.
	Dir string

	// Env adds variables on top of the current process environment.
	Env map[string]string

	// Timeout bounds the run; zero means no limit.
	Timeout time.Duration
}

// String renders the command line for logs.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// ExecResult is the captured outcome of a process run.
type ExecResult struct {
	ExitCode   int    `json:"exitCode"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	DurationMs int64  `json:"durationMs"`
}

// Succeeded reports whether the process exited with code zero.
func (r ExecResult) Succeeded() bool {
	return r.ExitCode == 0
}

// NotStarted reports whether the result is the spawn-failure sentinel.
func (r ExecResult) NotStarted() bool {
	return r.ExitCode == ExitCodeNotStarted
}

// Runner runs external commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) ExecResult
}

// Exec is a Runner backed by os/exec.
type Exec struct {
	logger zerolog.Logger
}

// NewExec creates an os/exec backed runner.
func NewExec(logger zerolog.Logger) *Exec {
	return &Exec{
		logger: logger.With().Str("component", "runner").Logger(),
	}
}

// Run executes the command and waits for it to finish.
func (e *Exec) Run(ctx context.Context, c Command) ExecResult {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.WaitDelay = waitDelay
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), envList(c.Env)...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := ExecResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: time.Since(start).Milliseconds(),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.As(err, &exitErr):
		// ExitCode is -1 when the process was killed by a signal.
		result.ExitCode = exitErr.ExitCode()
		if ctxErr := ctx.Err(); ctxErr != nil {
			result.Stderr = appendLine(result.Stderr, ctxErr.Error())
		}
	default:
		result.ExitCode = ExitCodeNotStarted
		result.Stderr = appendLine(result.Stderr, err.Error())
	}

	e.logger.Debug().
		Str("command", c.String()).
		Str("dir", c.Dir).
		Int("exit_code", result.ExitCode).
		Int64("duration_ms", result.DurationMs).
		Msg("Command finished")

	return result
}

// NotStartedResult builds the synthetic result for a process that never ran.
func NotStartedResult(err error) ExecResult {
	return ExecResult{
		ExitCode: ExitCodeNotStarted,
		Stderr:   fmt.Sprint(err),
	}
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(out)
	return out
}

func appendLine(s, line string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s + line
	}
	return s + "\n" + line
}
