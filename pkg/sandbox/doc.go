// Package sandbox is the operation surface of the engine: reset, set_files,
// get_files, load_stub, apply_diff and validate_only over one workspace.
//
// A Sandbox owns no global state. Callers create one per workspace, issue
// operations one at a time and Close it at the end of the session. Only
// confinement violations, malformed requests, unreconciled patches and store
// failures surface as errors; toolchain failures are reported in the
// ValidationReport.
package sandbox
