// Package apperr defines the error taxonomy shared across the service.
package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors checked with errors.Is. Handlers map them to HTTP status codes.
var (
	// ErrUnauthorized means the request carried no usable identity.
	ErrUnauthorized = errors.New("user not authenticated")
	// ErrAccessDenied means a path escaped the caller's own workspace.
	ErrAccessDenied = errors.New("access denied")
	// ErrNotFound means an explicitly requested file or record is absent.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports a missing or malformed required field. Raised
// before any I/O is performed.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// Validation returns a ValidationError for the given field.
func Validation(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// EngineError reports an external engine run that failed or produced
// unparseable output. It carries both captured streams for diagnosis.
type EngineError struct {
	Msg    string
	Stdout string
	Stderr string
	Err    error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("engine: %s: %v", e.Msg, e.Err)
	}
	return "engine: " + e.Msg
}

func (e *EngineError) Unwrap() error { return e.Err }
