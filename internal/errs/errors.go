// Package errs defines the error kinds of spec §7: recoverable
// ModuleNotFound errors resolved at the point of discovery, and the
// unrecoverable CompileError that unwinds a single typed failure to the
// build entry point.
package errs

import (
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// ModuleNotFound signals an unresolved import. It is recovered locally
// by the graph loader (moving the dependency from Dependencies to
// Suppressed) or escalated to a diagnostic depending on follow-imports
// policy.
type ModuleNotFound struct {
	ID   string
	Path string
}

func (e *ModuleNotFound) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("module %q not found (looked under %s)", e.ID, e.Path)
	}
	return fmt.Sprintf("module %q not found", e.ID)
}

// CyclicDependency is the defensive error raised by the SCC-DAG
// topological sort if, after some round, no component is ready yet the
// dependency map is non-empty. It should be unreachable when the input
// came from a real SCC computation; its presence here is the invariant
// check described in spec §4.1.
type CyclicDependency struct {
	Remaining []string // remaining, unschedulable component keys
}

func (e *CyclicDependency) Error() string {
	return fmt.Sprintf("cyclic dependency among SCCs that should have been acyclic: %v", e.Remaining)
}

// Message is a single diagnostic, either blocking or advisory.
type Message struct {
	File      string
	Line      int
	Text      string
	IsBlocker bool
}

// CompileError is the single typed failure that unwinds to the build
// entry point (spec §7). It carries whatever diagnostics had already
// been accumulated before the fatal error occurred, so the caller's
// flush_errors sink still sees them. The underlying *goerrors.Error
// preserves a stack trace captured at the point the failure was first
// wrapped, which matters most for InternalError: an uncaught panic
// inside a pass is otherwise very hard to locate once it has unwound
// through several layers of pipeline dispatch.
type CompileError struct {
	Messages []Message
	cause    *goerrors.Error
}

// NewCompileError wraps cause, capturing a stack trace if cause does not
// already carry one, and attaches the diagnostics accumulated so far.
func NewCompileError(cause error, messages []Message) *CompileError {
	return &CompileError{
		Messages: messages,
		cause:    goerrors.Wrap(cause, 1),
	}
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile error: %s", e.cause.Error())
}

func (e *CompileError) Unwrap() error { return e.cause.Err }

// Stack returns a formatted stack trace captured at the point the
// underlying cause was first wrapped.
func (e *CompileError) Stack() string { return string(e.cause.Stack()) }

// InternalError reports an uncaught exception from within a pass. The
// per-state context wrapper recovers it, converts it to a diagnostic
// identifying the offending module and line, then re-raises it as a
// CompileError.
type InternalError struct {
	ModuleID string
	Line     int
	cause    *goerrors.Error
}

// NewInternalError wraps a recovered panic value.
func NewInternalError(moduleID string, line int, recovered any) *InternalError {
	var cause error
	switch v := recovered.(type) {
	case error:
		cause = v
	default:
		cause = fmt.Errorf("%v", v)
	}
	return &InternalError{
		ModuleID: moduleID,
		Line:     line,
		cause:    goerrors.Wrap(cause, 2),
	}
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error in %s:%d: %s", e.ModuleID, e.Line, e.cause.Error())
}

func (e *InternalError) Stack() string { return string(e.cause.Stack()) }
