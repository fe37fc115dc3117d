package xerrors

import (
	"errors"
	"fmt"
)

// Error kinds. Every application error wraps exactly one of these so callers
// can classify failures with errors.Is without knowing the concrete message.
var (
	ErrValidation   = errors.New("invalid input")
	ErrNotFound     = errors.New("resource not found")
	ErrConflict     = errors.New("conflict: resource already exists")
	ErrCapacity     = errors.New("plan capacity exceeded")
	ErrPolicy       = errors.New("policy violation")
	ErrUnauthorized = errors.New("unauthorized access")
	ErrPayment      = errors.New("payment failed")
	ErrState        = errors.New("invalid state transition")
	ErrInternal     = errors.New("internal server error")
)

// Error carries a kind, a human-readable message and an optional cause.
type Error struct {
	kind  error
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *Error) Is(target error) bool {
	return e.kind == target
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates an error of the given kind.
func New(kind error, msg string) error {
	return &Error{kind: kind, msg: msg}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind error, format string, args ...interface{}) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// WithCause creates an error of the given kind wrapping an underlying cause.
func WithCause(kind error, msg string, cause error) error {
	return &Error{kind: kind, msg: msg, cause: cause}
}

// Wrap adds context to an error (similar to fmt.Errorf("%w")).
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is allows checking whether an error is a specific sentinel error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// MessageOrDefault returns err.Error() or a fallback message if err is nil.
func MessageOrDefault(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
