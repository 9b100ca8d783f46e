package sandbox

import (
	"context"
	"errors"

	"github.com/tfsandbox/tfsandbox/pkg/patch"
	"github.com/tfsandbox/tfsandbox/pkg/workspace"
)

// application tracks the per-path state of one apply_diff call. Changes to
// the same path apply in order against the running content.
type application struct {
	order    []string
	touched  map[string]bool
	before   map[string]string
	current  map[string]string
	failed   map[string]bool
	failures []PatchFailure
}

func newApplication() *application {
	return &application{
		touched: make(map[string]bool),
		before:  make(map[string]string),
		current: make(map[string]string),
		failed:  make(map[string]bool),
	}
}

// apply patches path in memory. Only store read failures are returned;
// patch failures are recorded on the application.
func (a *application) apply(ctx context.Context, s *Sandbox, path, text string) error {
	if !a.touched[path] {
		content, err := s.store.Read(ctx, path)
		switch {
		case errors.Is(err, workspace.ErrNotFound):
			content = ""
		case err != nil:
			return s.storeError(err, "apply_diff", "failed to read current content")
		}
		a.touched[path] = true
		a.order = append(a.order, path)
		a.before[path] = content
		a.current[path] = content
	}
	if a.failed[path] {
		return nil
	}

	logger := s.log.WithPath(path)

	next, res, err := patch.Apply(a.current[path], text, patch.WithWindow(s.window))
	if err != nil {
		a.fail(path, err)
		s.tel.Metrics.RecordPatchResult("mismatch", res.ForwardRecoveries)
		_ = s.tel.Events.PublishDiffRejected(s.name, path, err.Error())
		logger.WithError(err).Warn("patch rejected, path keeps previous content")
		return nil
	}

	if res.DeletionsAlreadyApplied > 0 {
		logger.Zerolog().Debug().Int("deletions", res.DeletionsAlreadyApplied).Msg("deletion targets not found, treated as already removed")
	}

	changed := next != a.current[path]
	result := "unchanged"
	if changed {
		result = "changed"
	}
	s.tel.Metrics.RecordPatchResult(result, res.ForwardRecoveries)
	_ = s.tel.Events.PublishDiffApplied(s.name, path, changed, res.Added, res.Removed)
	logger.Zerolog().Debug().
		Int("hunks", res.Hunks).
		Int("added", res.Added).
		Int("removed", res.Removed).
		Int("forward_recoveries", res.ForwardRecoveries).
		Bool("changed", changed).
		Msg("patch applied")

	a.current[path] = next
	return nil
}

func (a *application) fail(path string, err error) {
	a.failed[path] = true
	a.current[path] = a.before[path]

	f := PatchFailure{Path: path, Code: ErrCodePatchInvalid, Message: err.Error()}
	var mismatch *patch.ContextMismatchError
	if errors.As(err, &mismatch) {
		f.Code = ErrCodePatchContextMismatch
		f.Hunk = mismatch.Hunk + 1
		f.Line = mismatch.Line
	}
	a.failures = append(a.failures, f)
}

// commit writes every successfully patched path.
func (a *application) commit(ctx context.Context, store workspace.Store) error {
	var entries []workspace.FileEntry
	for _, p := range a.order {
		if a.failed[p] {
			continue
		}
		entries = append(entries, workspace.FileEntry{Path: p, Content: a.current[p]})
	}
	if len(entries) == 0 {
		return nil
	}
	return store.Write(ctx, entries...)
}

// applied keeps the paths this call patched successfully, in input order.
func (a *application) applied(paths []string) []string {
	var out []string
	for _, p := range paths {
		if a.touched[p] && !a.failed[p] {
			out = append(out, p)
		}
	}
	return out
}

func (a *application) changedPaths() []string {
	var out []string
	for _, p := range a.order {
		if !a.failed[p] && a.current[p] != a.before[p] {
			out = append(out, p)
		}
	}
	return out
}

func (a *application) unchangedPaths() []string {
	var out []string
	for _, p := range a.order {
		if !a.failed[p] && a.current[p] == a.before[p] {
			out = append(out, p)
		}
	}
	return out
}
