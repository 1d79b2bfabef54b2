package scheduler

import (
	"github.com/buildgraph/orchestrator/internal/errs"
	"github.com/buildgraph/orchestrator/internal/module"
)

// guard recovers a panic raised while running fn on behalf of module s,
// converting it into an *errs.InternalError identifying the offending
// module (spec §7: "InternalError — uncaught exceptions in a pass.
// Captured by the per-state context wrapper, converted to a diagnostic
// that identifies the offending file and line, then re-raised as a
// blocker."). The caller wraps the resulting error with blockingError,
// which is the "re-raised as a blocker" step.
func guard(s *module.State, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.NewInternalError(string(s.ID), 0, r)
		}
	}()
	return fn()
}

// guardValue is guard's counterpart for a pass that returns a value
// alongside its error (semantic analysis patches, the type-check
// fixpoint's continue signal).
func guardValue[T any](s *module.State, fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.NewInternalError(string(s.ID), 0, r)
		}
	}()
	return fn()
}
