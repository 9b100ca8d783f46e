// Package runner spawns external toolchain processes for the sandbox.
//
// A Runner never reports a non-zero exit as an error: every invocation yields
// an ExecResult carrying the exit code and the fully captured stdout/stderr.
// A process that could not be started at all, or that was killed before it
// exited, is reported with ExitCodeNotStarted and the failure text in Stderr.
//
// Two implementations are provided:
//
//   - Exec runs real processes through os/exec.
//   - Fake runs scripted handlers in-process, for tests that must not depend
//     on terraform or tflint being installed.
package runner
