// Package errs defines the structured error type shared by every package
// in the module. It lives under internal so both the root package and the
// internal/* packages can construct and inspect it without an import
// cycle; the root package re-exports it verbatim.
package errs

import (
	"errors"
	"fmt"
)

// Code is a high-level error category. Drops and purges are never
// represented as errors; they are counters surfaced through metrics.
type Code string

const (
	CodeConfig           Code = "config error"
	CodeDuplicatePayload Code = "duplicate payload"
	CodeProvider         Code = "provider error"
	CodeHandler          Code = "handler error"
	CodeShutdownTimeout  Code = "shutdown timeout"
)

// Error is the structured error type returned by every component.
type Error struct {
	Op    string
	Code  Code
	Queue string
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Queue != "" {
		return fmt.Sprintf("oaksub: %s: %s (queue=%s)", e.Op, msg, e.Queue)
	}
	if e.Op != "" {
		return fmt.Sprintf("oaksub: %s: %s", e.Op, msg)
	}
	return fmt.Sprintf("oaksub: %s", msg)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// New creates a structured error without an affected queue.
func New(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewQueue creates a structured error scoped to a named queue or pool.
func NewQueue(op, queue string, code Code, msg string) *Error {
	return &Error{Op: op, Queue: queue, Code: code, Msg: msg}
}

// Wrap wraps an existing error with a Code and the operation that observed
// it, preserving it as Inner for errors.Unwrap/errors.Is. If inner is
// already an *Error, code is ignored: the result keeps inner's Code, Queue,
// Msg and Inner and only replaces Op.
func Wrap(op string, code Code, inner error) *Error {
	if inner == nil {
		return nil
	}
	if oe, ok := inner.(*Error); ok {
		return &Error{Op: op, Code: oe.Code, Queue: oe.Queue, Msg: oe.Msg, Inner: oe.Inner}
	}
	return &Error{Op: op, Code: code, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is an *Error (anywhere in its chain) with the
// given Code.
func IsCode(err error, code Code) bool {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Code == code
	}
	return false
}
