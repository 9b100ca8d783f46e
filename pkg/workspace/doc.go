// Package workspace holds the current file set of one sandboxed Terraform
// workspace.
//
// Two Store implementations share the same contract:
//
//   - MemoryStore keeps files in a map and materializes them into a fresh
//     temporary directory whenever a process needs to see them.
//   - DirStore keeps files under a confined root directory and materializes
//     in place.
//
// Every caller-supplied path is cleaned and resolved against the workspace
// root before any I/O happens. A path that would resolve outside the root is
// rejected with ErrPathEscapesRoot, for reads as well as writes.
package workspace
