package common

import (
	"context"
	"errors"
	"fmt"
)

// The engine classifies every failure into one of a small set of kinds.
// Callers branch on the kind with errors.As; the kind string also feeds
// the structured failure log line.

// ValidationError reports malformed input to a write or query. It is
// raised before any object-store call and is never retried.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Msg)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}

// NotFoundError reports an absent object.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Key)
}

// StorageError reports an object-store I/O failure. The write pipeline
// triggers rollback on it; queries surface it unchanged.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PushdownError reports a failed or unsupported server-side scan. The
// query engine catches it internally and falls back to client filtering.
type PushdownError struct {
	Key string
	Err error
}

func (e *PushdownError) Error() string {
	return fmt.Sprintf("pushdown %s: %v", e.Key, e.Err)
}

func (e *PushdownError) Unwrap() error { return e.Err }

// ConfigError reports invalid construction parameters such as a
// non-positive cache size or worker count.
type ConfigError struct {
	Param string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Param, e.Msg)
}

// NewValidationError builds a field-level validation error.
func NewValidationError(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsPushdown reports whether err is (or wraps) a PushdownError.
func IsPushdown(err error) bool {
	var pe *PushdownError
	return errors.As(err, &pe)
}

// ErrorKind returns the taxonomy name for err, for structured logging.
func ErrorKind(err error) string {
	var (
		ve *ValidationError
		nf *NotFoundError
		se *StorageError
		pe *PushdownError
		ce *ConfigError
	)
	switch {
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &nf):
		return "not_found"
	case errors.As(err, &pe):
		return "pushdown"
	case errors.As(err, &se):
		return "storage"
	case errors.As(err, &ce):
		return "config"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal"
	}
}
