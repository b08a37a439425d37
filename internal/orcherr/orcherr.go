// Package orcherr defines the typed error taxonomy shared by every
// orchestrator component, replacing the ad-hoc sentinel errors the teacher
// scatters across pkg/storage (ErrNotFound, ErrConflict).
package orcherr

import (
	"errors"
	"fmt"
)

// Code is one of the error classes from the orchestrator's error taxonomy.
type Code string

const (
	NotFound           Code = "NOT_FOUND"
	PreconditionFailed Code = "PRECONDITION_FAILED"
	Conflict           Code = "CONFLICT"
	Transient          Code = "TRANSIENT"
	Timeout            Code = "TIMEOUT"
	Permanent          Code = "PERMANENT"
	CapacityExceeded   Code = "CAPACITY_EXCEEDED"
	Cancelled          Code = "CANCELLED"
)

// Error is the concrete error type returned by every store and facade method.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, orcherr.NotFound) style comparisons by treating
// the target as a sentinel for its Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the Code of err, defaulting to "" if err is not (or does
// not wrap) an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// sentinels usable with errors.Is(err, orcherr.ErrNotFound)
var (
	ErrNotFound           = &Error{Code: NotFound, Message: "not found"}
	ErrPreconditionFailed = &Error{Code: PreconditionFailed, Message: "precondition failed"}
	ErrConflict           = &Error{Code: Conflict, Message: "conflict"}
	ErrTransient          = &Error{Code: Transient, Message: "transient store error"}
	ErrTimeout            = &Error{Code: Timeout, Message: "operation timed out"}
	ErrPermanent          = &Error{Code: Permanent, Message: "permanent error"}
	ErrCapacityExceeded   = &Error{Code: CapacityExceeded, Message: "capacity exceeded"}
	ErrCancelled          = &Error{Code: Cancelled, Message: "cancelled"}
)
