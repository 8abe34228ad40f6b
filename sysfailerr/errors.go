// Package sysfailerr provides typed error handling for the sysfail-go
// failure-injection engine.
//
// It defines a small closed taxonomy of error kinds that can surface out of
// Session construction, per-thread enable/disable, or plan validation. All
// errors support the standard errors.Is()/errors.As() functions.
package sysfailerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind int

const (
	// InvalidArgument indicates a Plan or Outcome failed validation at
	// construction: a probability out of [0,1], or an empty error-weight
	// distribution paired with a non-zero fail probability.
	InvalidArgument Kind = iota
	// AlreadyActive indicates a second Session was constructed while one was
	// already live; only one Session may exist at a time.
	AlreadyActive
	// MapNotFound indicates the injector's own executable text range could
	// not be uniquely identified in /proc/pid/maps.
	MapNotFound
	// SignalInstallFailed indicates the OS refused to install one of the
	// SIGSYS/SIG_ENABLE/SIG_DISABLE/SIG_REARM handlers.
	SignalInstallFailed
	// KernelRefusedDispatch indicates PR_SET_SYSCALL_USER_DISPATCH failed.
	KernelRefusedDispatch
	// MonitorStartFailed indicates the thread-discovery background poller
	// could not be launched.
	MonitorStartFailed
	// Internal indicates an invariant was broken on the Go side somewhere
	// not covered by the kinds above. Failures inside the engine's C signal
	// handlers are not reported through any kind: those handlers do not
	// check the results of their raw syscalls and do not abort the process.
	Internal
)

// String returns a human-readable name for the error kind.
func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid argument"
	case AlreadyActive:
		return "session already active"
	case MapNotFound:
		return "self-text range not found"
	case SignalInstallFailed:
		return "signal install failed"
	case KernelRefusedDispatch:
		return "kernel refused syscall user dispatch"
	case MonitorStartFailed:
		return "thread monitor start failed"
	case Internal:
		return "internal error"
	default:
		return "unknown error"
	}
}

// Error represents an error raised by the sysfail-go engine.
type Error struct {
	// Op is the operation that failed (e.g. "Session.new", "Session.add").
	Op string
	// Kind classifies the error.
	Kind Kind
	// Detail provides additional human-readable context.
	Detail string
	// Err is the underlying error, if any (e.g. the errno from a syscall).
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := ""
	if e.Op != "" {
		msg += e.Op + ": "
	}
	if e.Detail != "" {
		msg += e.Detail
	} else {
		msg += e.Kind.String()
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target matches this error by Kind.
func (e *Error) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates a new Error of the given kind.
func New(kind Kind, op, detail string) *Error {
	return &Error{Op: op, Kind: kind, Detail: detail}
}

// Wrap wraps err with the given kind and operation.
func Wrap(err error, kind Kind, op string) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// WrapDetail wraps err with kind, operation, and extra detail.
func WrapDetail(err error, kind Kind, op, detail string) *Error {
	return &Error{Op: op, Kind: kind, Detail: detail, Err: err}
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// GetKind returns the Kind of err if it is a *Error.
func GetKind(err error) (Kind, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}

// Re-exported for convenience, mirroring the standard library.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)
