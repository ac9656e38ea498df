package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAlarmExists is returned by AlarmManager.Create for a duplicate name.
	ErrAlarmExists = errors.New("alarm already exists")

	// ErrDaemonNotRunning means no daemon is listening on the command socket.
	ErrDaemonNotRunning = errors.New("daemon not running")
)

// ValidationError is bad user input. No state was mutated.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// NewValidationError creates a ValidationError with a formatted reason.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError means the schedule id vanished, e.g. deleted by another process.
type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("schedule %d not found", e.ID)
}

// PersistenceError wraps a store read or write failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// RuleEngineError wraps a rejected rule batch.
type RuleEngineError struct {
	Err error
}

func (e *RuleEngineError) Error() string {
	return fmt.Sprintf("rule engine rejected update: %v", e.Err)
}

func (e *RuleEngineError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
