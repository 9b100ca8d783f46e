package sandbox

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a SandboxError for callers deciding how to react.
type ErrorClass string

const (
	// ErrorClassPermanent marks requests that can never succeed as sent, such
	// as paths escaping the workspace or malformed input.
	ErrorClassPermanent ErrorClass = "permanent"

	// ErrorClassConflict marks patches written against content that has
	// drifted. Regenerating the patch from current content resolves it.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassTransient marks I/O failures of the store or the host.
	ErrorClassTransient ErrorClass = "transient"
)

// Error codes.
const (
	ErrCodePathEscapesRoot      = "PATH_ESCAPES_ROOT"
	ErrCodePatchContextMismatch = "PATCH_CONTEXT_MISMATCH"
	ErrCodePatchInvalid         = "PATCH_INVALID"
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeWorkspace            = "WORKSPACE_ERROR"
)

// SandboxError is a classified error with the path and operation involved.
// nolint:revive // SandboxError reads better than sandbox.Error at call sites
type SandboxError struct {
	Class     ErrorClass             `json:"class"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code,omitempty"`
	Path      string                 `json:"path,omitempty"`
	Operation string                 `json:"operation,omitempty"`
	Err       error                  `json:"-"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

func (e *SandboxError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	switch {
	case e.Path != "" && e.Operation != "":
		msg += fmt.Sprintf(" (path=%s, operation=%s)", e.Path, e.Operation)
	case e.Path != "":
		msg += fmt.Sprintf(" (path=%s)", e.Path)
	case e.Operation != "":
		msg += fmt.Sprintf(" (operation=%s)", e.Operation)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *SandboxError) Unwrap() error {
	return e.Err
}

// Is matches on class and code.
func (e *SandboxError) Is(target error) bool {
	t, ok := target.(*SandboxError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewConfinementError reports a path resolving outside the workspace root.
func NewConfinementError(path string, err error) *SandboxError {
	return &SandboxError{
		Class:   ErrorClassPermanent,
		Code:    ErrCodePathEscapesRoot,
		Message: "path escapes workspace root",
		Path:    path,
		Err:     err,
	}
}

// NewValidationError reports a malformed request.
func NewValidationError(message string, err error) *SandboxError {
	return &SandboxError{
		Class:   ErrorClassPermanent,
		Code:    ErrCodeValidation,
		Message: message,
		Err:     err,
	}
}

// NewContextMismatchError reports patches that could not be reconciled with
// current content.
func NewContextMismatchError(paths []string, err error) *SandboxError {
	e := &SandboxError{
		Class:   ErrorClassConflict,
		Code:    ErrCodePatchContextMismatch,
		Message: fmt.Sprintf("%d patch(es) did not match current content", len(paths)),
		Err:     err,
	}
	if len(paths) == 1 {
		e.Path = paths[0]
	}
	return e.WithDetail("paths", paths)
}

// NewWorkspaceError wraps a store or filesystem failure.
func NewWorkspaceError(message string, err error) *SandboxError {
	return &SandboxError{
		Class:   ErrorClassTransient,
		Code:    ErrCodeWorkspace,
		Message: message,
		Err:     err,
	}
}

// WithPath adds path context.
func (e *SandboxError) WithPath(path string) *SandboxError {
	e.Path = path
	return e
}

// WithOperation adds operation context.
func (e *SandboxError) WithOperation(operation string) *SandboxError {
	e.Operation = operation
	return e
}

// WithCode overrides the error code.
func (e *SandboxError) WithCode(code string) *SandboxError {
	e.Code = code
	return e
}

// WithDetail adds a detail field.
func (e *SandboxError) WithDetail(key string, value interface{}) *SandboxError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsConfinement reports whether err is a path confinement violation.
func IsConfinement(err error) bool {
	return hasCode(err, ErrCodePathEscapesRoot)
}

// IsContextMismatch reports whether err carries unreconciled patches.
func IsContextMismatch(err error) bool {
	return hasCode(err, ErrCodePatchContextMismatch)
}

// IsValidation reports whether err is a malformed request.
func IsValidation(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

// IsPermanent reports whether retrying the same request is pointless.
func IsPermanent(err error) bool {
	var e *SandboxError
	return errors.As(err, &e) && e.Class == ErrorClassPermanent
}

func hasCode(err error, code string) bool {
	var e *SandboxError
	return errors.As(err, &e) && e.Code == code
}
