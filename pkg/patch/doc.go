// Package patch parses unified and git-style patches and applies them to a
// single file's content.
//
// Matching is deliberately loose: carriage returns and trailing blanks are
// ignored when comparing context and deletion lines, and a line that is not at
// the expected position is searched for within a bounded window further down
// the file. A context line that cannot be found aborts the file with a
// ContextMismatchError. A deletion that cannot be found is treated as already
// applied.
package patch
