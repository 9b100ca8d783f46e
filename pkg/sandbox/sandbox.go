package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tfsandbox/tfsandbox/pkg/patch"
	"github.com/tfsandbox/tfsandbox/pkg/pipeline"
	"github.com/tfsandbox/tfsandbox/pkg/telemetry"
	"github.com/tfsandbox/tfsandbox/pkg/workspace"
)

// Sandbox exposes the workspace operations. It is not safe for concurrent
// use; one caller drives one workspace.
type Sandbox struct {
	store    workspace.Store
	pipeline *pipeline.Pipeline
	sink     ChangeSink
	validate *validator.Validate
	log      *telemetry.Logger
	tel      *telemetry.Telemetry
	window   int
	name     string
}

// Option configures a Sandbox.
type Option func(*Sandbox)

// WithChangeSink forwards every apply_diff change list to sink.
func WithChangeSink(sink ChangeSink) Option {
	return func(s *Sandbox) { s.sink = sink }
}

// WithTelemetry records spans, metrics and events and logs through the
// telemetry logger.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(s *Sandbox) { s.tel = tel }
}

// WithPatchWindow overrides the forward search window of the patch engine.
func WithPatchWindow(n int) Option {
	return func(s *Sandbox) { s.window = n }
}

// WithName labels the workspace in logs, events and the change journal.
func WithName(name string) Option {
	return func(s *Sandbox) { s.name = name }
}

// New creates a sandbox over store, validating through p.
func New(store workspace.Store, p *pipeline.Pipeline, opts ...Option) *Sandbox {
	s := &Sandbox{
		store:    store,
		pipeline: p,
		validate: validator.New(),
		tel:      telemetry.Nop(),
		window:   patch.DefaultWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.name == "" {
		s.name = workspaceName(store)
	}
	s.log = s.tel.Logger.NewComponentLogger("sandbox").WithWorkspace(store.Kind(), s.name)
	return s
}

// Name returns the workspace label.
func (s *Sandbox) Name() string {
	return s.name
}

// Store returns the underlying workspace store.
func (s *Sandbox) Store() workspace.Store {
	return s.store
}

func workspaceName(store workspace.Store) string {
	if r, ok := store.(interface{ Root() string }); ok {
		return r.Root()
	}
	return store.Kind()
}

// Reset empties the workspace.
func (s *Sandbox) Reset(ctx context.Context) (res *Result, err error) {
	op := s.begin(ctx, "reset")
	defer func() { op.End(statusOf(err), err) }()

	if err := s.store.Reset(op.Ctx); err != nil {
		return nil, NewWorkspaceError("failed to reset workspace", err).WithOperation("reset")
	}
	_ = s.tel.Events.PublishWorkspaceReset(s.name)
	s.log.Info("workspace reset")
	return &Result{Status: StatusOK}, nil
}

// LoadStub seeds the minimal main.tf and returns it.
func (s *Sandbox) LoadStub(ctx context.Context) (res *FilesResult, err error) {
	op := s.begin(ctx, "load_stub")
	defer func() { op.End(statusOf(err), err) }()

	stub, err := workspace.LoadStub(op.Ctx, s.store)
	if err != nil {
		return nil, NewWorkspaceError("failed to load stub", err).WithOperation("load_stub")
	}
	return &FilesResult{Status: StatusOK, Files: []workspace.FileEntry{stub}}, nil
}

// SetFiles upserts files. Every path is checked before anything is written.
func (s *Sandbox) SetFiles(ctx context.Context, files []workspace.FileEntry) (res *SetFilesResult, err error) {
	op := s.begin(ctx, "set_files")
	defer func() { op.End(statusOf(err), err) }()

	if err := s.validateRequest(SetFilesRequest{Files: files}, "set_files"); err != nil {
		return nil, err
	}
	for _, f := range files {
		if _, err := s.cleanPath(f.Path, "set_files"); err != nil {
			return nil, err
		}
	}

	if err := s.store.Write(op.Ctx, files...); err != nil {
		return nil, s.storeError(err, "set_files", "failed to write files")
	}
	_ = s.tel.Events.PublishFilesWritten(s.name, len(files))
	s.log.Zerolog().Debug().Int("count", len(files)).Msg("files written")
	return &SetFilesResult{Status: StatusOK, Count: len(files)}, nil
}

// GetFiles returns every file sorted by path.
func (s *Sandbox) GetFiles(ctx context.Context) (res *FilesResult, err error) {
	op := s.begin(ctx, "get_files")
	defer func() { op.End(statusOf(err), err) }()

	files, err := s.store.List(op.Ctx)
	if err != nil {
		return nil, NewWorkspaceError("failed to list files", err).WithOperation("get_files")
	}
	if files == nil {
		files = []workspace.FileEntry{}
	}
	return &FilesResult{Status: StatusOK, Files: files}, nil
}

// ValidateOnly runs the pipeline over the current content without modifying
// it.
func (s *Sandbox) ValidateOnly(ctx context.Context) (rep *ValidationReport, err error) {
	op := s.begin(ctx, "validate_only")
	defer func() {
		status := statusOf(err)
		if rep != nil {
			status = string(rep.Status)
		}
		op.End(status, err)
	}()

	dir, cleanup, err := s.store.Materialize(op.Ctx)
	if err != nil {
		return nil, NewWorkspaceError("failed to materialize workspace", err).WithOperation("validate_only")
	}
	defer cleanup()

	timer := telemetry.NewTimer()
	report := s.pipeline.Run(op.Ctx, dir)
	_ = s.tel.Events.PublishValidationCompleted(s.name, string(report.Status), timer.Duration())

	files, err := s.store.List(op.Ctx)
	if err != nil {
		return nil, NewWorkspaceError("failed to list files", err).WithOperation("validate_only")
	}

	out := newValidationReport(report, files)
	return &out, nil
}

// ApplyDiff applies every change, validates the result and reformats it.
// A change that does not match current content is recorded in Failures, its
// path keeps its previous content and the other changes proceed; the report
// is then returned together with a PATCH_CONTEXT_MISMATCH error.
func (s *Sandbox) ApplyDiff(ctx context.Context, changes []DiffChange) (rep *ApplyReport, err error) {
	op := s.begin(ctx, "apply_diff", telemetry.AttrChangeCount.Int(len(changes)))
	defer func() {
		status := statusOf(err)
		if rep != nil {
			status = string(rep.Status)
		}
		op.End(status, err)
	}()
	ctx = op.Ctx

	if err := s.validateRequest(ApplyDiffRequest{Changes: changes}, "apply_diff"); err != nil {
		return nil, err
	}
	paths := make([]string, len(changes))
	for i, ch := range changes {
		clean, err := s.cleanPath(ch.Path, "apply_diff")
		if err != nil {
			return nil, err
		}
		paths[i] = clean
	}

	notification := s.notify(ctx, changes)

	a := newApplication()
	for i, ch := range changes {
		if err := a.apply(ctx, s, paths[i], ch.Patch); err != nil {
			return nil, err
		}
	}
	if err := a.commit(ctx, s.store); err != nil {
		return nil, s.storeError(err, "apply_diff", "failed to write patched files")
	}

	dir, cleanup, err := s.store.Materialize(ctx)
	if err != nil {
		return nil, NewWorkspaceError("failed to materialize workspace", err).WithOperation("apply_diff")
	}
	defer cleanup()

	timer := telemetry.NewTimer()
	report := s.pipeline.Run(ctx, dir)

	var fmtChanged []string
	if report.FmtNeedsChanges {
		rewritten, err := s.reformat(ctx, dir, report)
		if err != nil {
			return nil, err
		}
		fmtChanged = a.applied(rewritten)
	}
	_ = s.tel.Events.PublishValidationCompleted(s.name, string(report.Status), timer.Duration())

	rep, err = s.buildApplyReport(ctx, a, report, fmtChanged, notification)
	if err != nil {
		return nil, err
	}

	if len(a.failures) > 0 {
		failed := make([]string, len(a.failures))
		var errs []error
		for i, f := range a.failures {
			failed[i] = f.Path
			errs = append(errs, fmt.Errorf("%s: %s", f.Path, f.Message))
		}
		return rep, NewContextMismatchError(failed, errors.Join(errs...)).WithOperation("apply_diff")
	}
	return rep, nil
}

// reformat runs the formatter over dir and syncs every file it rewrote back
// into the store. It returns the rewritten paths.
func (s *Sandbox) reformat(ctx context.Context, dir string, report *pipeline.Report) ([]string, error) {
	before, err := workspace.ReadTree(dir)
	if err != nil {
		return nil, NewWorkspaceError("failed to snapshot materialized files", err).WithOperation("apply_diff")
	}

	s.pipeline.Reformat(ctx, dir, report)

	after, err := workspace.ReadTree(dir)
	if err != nil {
		return nil, NewWorkspaceError("failed to read formatted files", err).WithOperation("apply_diff")
	}

	prev := make(map[string]string, len(before))
	for _, f := range before {
		prev[f.Path] = f.Content
	}
	var changed []workspace.FileEntry
	for _, f := range after {
		if old, ok := prev[f.Path]; ok && old != f.Content {
			changed = append(changed, f)
		}
	}
	if len(changed) == 0 {
		return nil, nil
	}

	if err := s.store.Write(ctx, changed...); err != nil {
		return nil, s.storeError(err, "apply_diff", "failed to sync formatted files")
	}
	paths := make([]string, len(changed))
	for i, f := range changed {
		paths[i] = f.Path
	}
	s.log.Zerolog().Debug().Strs("paths", paths).Msg("formatter rewrote files")
	return paths, nil
}

// buildApplyReport assembles the report. fmtChanged only holds applied
// paths, so every changed path has its pre-call content in a.before.
func (s *Sandbox) buildApplyReport(ctx context.Context, a *application, report *pipeline.Report, fmtChanged []string, notification string) (*ApplyReport, error) {
	patchChanged := a.changedPaths()

	changedSet := make(map[string]bool)
	var changed []string
	for _, p := range append(append([]string{}, patchChanged...), fmtChanged...) {
		if !changedSet[p] {
			changedSet[p] = true
			changed = append(changed, p)
		}
	}

	var files []workspace.FileEntry
	for _, p := range a.order {
		content, err := s.store.Read(ctx, p)
		if errors.Is(err, workspace.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, NewWorkspaceError("failed to read patched file", err).WithPath(p).WithOperation("apply_diff")
		}
		files = append(files, workspace.FileEntry{Path: p, Content: content})
	}

	final := make(map[string]string, len(files))
	for _, f := range files {
		final[f.Path] = f.Content
	}
	stats := make(map[string]LineStats, len(changed))
	for _, p := range changed {
		stats[p] = lineStats(a.before[p], final[p])
	}

	rep := &ApplyReport{
		ValidationReport:  newValidationReport(report, files),
		NoChanges:         len(changed) == 0,
		ChangedCount:      len(changed),
		PatchChangedCount: len(patchChanged),
		FmtChangedCount:   len(fmtChanged),
		ChangedPaths:      nonNil(changed),
		UnchangedPaths:    nonNil(a.unchangedPaths()),
		Failures:          a.failures,
		LineStats:         stats,
		Notification:      notification,
	}

	s.tel.Metrics.RecordChangedPaths("patch", len(patchChanged))
	s.tel.Metrics.RecordChangedPaths("fmt", len(fmtChanged))
	s.log.Zerolog().Info().
		Str("status", string(rep.Status)).
		Int("changed", rep.ChangedCount).
		Int("patch_changed", rep.PatchChangedCount).
		Int("fmt_changed", rep.FmtChangedCount).
		Int("failures", len(rep.Failures)).
		Str("notification", notification).
		Msg("diff applied")
	return rep, nil
}

func (s *Sandbox) begin(ctx context.Context, operation string, attrs ...attribute.KeyValue) *telemetry.InstrumentedContext {
	attrs = append(attrs, telemetry.AttrWorkspaceKind.String(s.store.Kind()))
	return s.tel.StartOperation(ctx, s.log, operation, attrs...)
}

func (s *Sandbox) validateRequest(req interface{}, operation string) error {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, len(verrs))
			for i, fe := range verrs {
				fields[i] = fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag())
			}
			sort.Strings(fields)
			err = errors.New(strings.Join(fields, "; "))
		}
		s.tel.Metrics.RecordError(string(ErrorClassPermanent), ErrCodeValidation)
		return NewValidationError("invalid request", err).WithOperation(operation)
	}
	return nil
}

func (s *Sandbox) cleanPath(path, operation string) (string, error) {
	clean, err := workspace.CleanPath(path)
	switch {
	case err == nil:
		return clean, nil
	case errors.Is(err, workspace.ErrPathEscapesRoot):
		s.tel.Metrics.RecordError(string(ErrorClassPermanent), ErrCodePathEscapesRoot)
		s.log.WithPath(path).WithOperation(operation).Warn("rejected path outside workspace")
		return "", NewConfinementError(path, err).WithOperation(operation)
	default:
		s.tel.Metrics.RecordError(string(ErrorClassPermanent), ErrCodeValidation)
		return "", NewValidationError("invalid path", err).WithPath(path).WithOperation(operation)
	}
}

func (s *Sandbox) storeError(err error, operation, message string) error {
	if errors.Is(err, workspace.ErrPathEscapesRoot) {
		return NewConfinementError("", err).WithOperation(operation)
	}
	if errors.Is(err, workspace.ErrInvalidPath) {
		return NewValidationError("invalid path", err).WithOperation(operation)
	}
	return NewWorkspaceError(message, err).WithOperation(operation)
}

// Close tears the workspace session down.
func (s *Sandbox) Close() error {
	return s.store.Close()
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return StatusOK
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
