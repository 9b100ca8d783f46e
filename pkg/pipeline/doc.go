// Package pipeline drives the terraform toolchain against a materialized
// workspace and folds the results into a single verdict.
//
// Stages run strictly in order: format check, init, validate (only after a
// successful init) and tflint (always). The workspace is lint_failed when the
// formatter reports pending changes, or when validate or tflint ran and
// exited non-zero. Init failures alone never fail the verdict; they only
// cause validate to be skipped.
package pipeline
