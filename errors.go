package oaksub

import "github.com/home-river/OAK-sub001/internal/errs"

// ErrorCode represents a high-level error category raised by the
// concurrency substrate. Drops and purges are not errors and are never
// represented by a Code; they are counters observed through Metrics.
type ErrorCode = errs.Code

const (
	ErrCodeConfig           = errs.CodeConfig
	ErrCodeDuplicatePayload = errs.CodeDuplicatePayload
	ErrCodeProvider         = errs.CodeProvider
	ErrCodeHandler          = errs.CodeHandler
	ErrCodeShutdownTimeout  = errs.CodeShutdownTimeout
)

// Error is the structured error type returned by every component in this
// module. Op identifies the failing call (e.g. "Monitor.Register",
// "Packager.Stop"), Queue names the affected queue or pool key when one
// applies, and Inner carries the wrapped cause.
type Error = errs.Error

// NewError creates a structured error without an affected queue.
func NewError(op string, code ErrorCode, msg string) *Error {
	return errs.New(op, code, msg)
}

// NewQueueError creates a structured error scoped to a named queue or pool.
func NewQueueError(op, queue string, code ErrorCode, msg string) *Error {
	return errs.NewQueue(op, queue, code, msg)
}

// WrapError wraps an existing error with a Code and the operation that
// observed it, preserving it as Inner for errors.Unwrap/errors.Is. If inner
// is already an *Error, code is ignored: the result keeps inner's Code,
// Queue, Msg and Inner and only replaces Op.
func WrapError(op string, code ErrorCode, inner error) *Error {
	return errs.Wrap(op, code, inner)
}

// IsCode reports whether err is an *Error (anywhere in its chain) with the
// given Code.
func IsCode(err error, code ErrorCode) bool {
	return errs.IsCode(err, code)
}
