// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrFlowNotFound indicates no flow exists for the given identifier.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrRunNotFound indicates no run exists for the given identifier.
	ErrRunNotFound = errors.New("run not found")

	// ErrCredentialNotFound indicates no credential row exists for the
	// given identifier.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrInvalidTransition indicates a run-status move that the
	// monotonic state machine does not permit.
	ErrInvalidTransition = errors.New("invalid run status transition")

	// ErrFlowNotRunnable indicates the flow exists but cannot accept
	// new runs, for example because it is not active.
	ErrFlowNotRunnable = errors.New("flow not runnable")
)

// RunError wraps run-related storage errors with operation context.
type RunError struct {
	Op    string
	RunID string
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s operation failed for run %s: %v", e.Op, e.RunID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func (e *RunError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRunError creates a run error with context.
func NewRunError(op, runID string, err error) *RunError {
	return &RunError{Op: op, RunID: runID, Err: err}
}

// IsNotFound reports whether err is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFlowNotFound) ||
		errors.Is(err, ErrRunNotFound) ||
		errors.Is(err, ErrCredentialNotFound)
}
