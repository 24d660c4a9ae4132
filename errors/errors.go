// Package errors provides the structured error type used across boothkit.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for recovery decisions.
type Kind string

const (
	KindValidation  Kind = "VALIDATION"  // bad input, surfaced before any write
	KindUnavailable Kind = "UNAVAILABLE" // remote unreachable or network-layer failure
	KindStorage     Kind = "STORAGE"     // local persistence failure, treated as cache miss
	KindNotFound    Kind = "NOT_FOUND"   // target record does not exist remotely
	KindConflict    Kind = "CONFLICT"    // reserved; last-writer-wins keeps this unused
)

// Operation identifies the sync operation during which an error occurred.
type Operation string

const (
	OpEnqueue   Operation = "enqueue"
	OpDrain     Operation = "drain"
	OpReload    Operation = "reload"
	OpSave      Operation = "save"
	OpLoad      Operation = "load"
	OpCreate    Operation = "create"
	OpUpdate    Operation = "update"
	OpDelete    Operation = "delete"
	OpQuery     Operation = "query"
	OpSubscribe Operation = "subscribe"
	OpClose     Operation = "close"
)

// SyncError is the error type returned by boothkit components.
type SyncError struct {
	// Op is the operation during which the error occurred.
	Op Operation

	// Component names the subsystem that generated the error
	// (e.g. "storage/sqlite", "remote/httpremote", "engine").
	Component string

	// Kind classifies the failure.
	Kind Kind

	// Retryable reports whether repeating the operation may succeed.
	Retryable bool

	// Err is the underlying cause.
	Err error
}

func (e *SyncError) Error() string {
	var msg string
	if e.Component != "" {
		msg = fmt.Sprintf("%s operation failed in %s", e.Op, e.Component)
	} else {
		msg = fmt.Sprintf("%s operation failed", e.Op)
	}
	if e.Kind != "" {
		msg += fmt.Sprintf(" [%s]", e.Kind)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// New creates a SyncError with just an operation and cause.
func New(op Operation, err error) *SyncError {
	return &SyncError{Op: op, Err: err}
}

// NewWithComponent creates a SyncError carrying component information.
func NewWithComponent(op Operation, component string, err error) *SyncError {
	return &SyncError{Op: op, Component: component, Err: err}
}

// NewValidation creates a non-retryable validation error.
func NewValidation(op Operation, err error) *SyncError {
	return &SyncError{Op: op, Kind: KindValidation, Err: err}
}

// NewUnavailable creates a retryable network-layer error.
func NewUnavailable(op Operation, component string, err error) *SyncError {
	return &SyncError{Op: op, Component: component, Kind: KindUnavailable, Retryable: true, Err: err}
}

// NewStorage creates a retryable local-storage error.
func NewStorage(op Operation, component string, err error) *SyncError {
	return &SyncError{Op: op, Component: component, Kind: KindStorage, Retryable: true, Err: err}
}

// NewNotFound creates a non-retryable not-found error.
func NewNotFound(op Operation, component string, err error) *SyncError {
	return &SyncError{Op: op, Component: component, Kind: KindNotFound, Err: err}
}

// IsRetryable reports whether err is a SyncError marked retryable.
func IsRetryable(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// IsKind reports whether err is a SyncError of the given kind.
func IsKind(err error, kind Kind) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// IsUnavailable reports whether err represents a network-layer failure.
// Write paths use this to decide between direct dispatch and queueing.
func IsUnavailable(err error) bool {
	return IsKind(err, KindUnavailable)
}
