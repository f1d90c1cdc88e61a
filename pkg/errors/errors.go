// Package errors provides structured error types for canvasgraph.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the library, CLI and HTTP server
//   - Machine-readable error codes for programmatic handling
//   - A clear split between programmer errors and data-quality problems
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - INVALID_*: Input validation failures
//   - CONTRACT_VIOLATION: Programmer errors (mutating outside a transaction,
//     planning a connected placement with no sources)
//   - DUPLICATE_* / DANGLING_EDGE: Graph integrity violations at creation time
//   - NOT_FOUND / CANVAS_NOT_FOUND: Resource not found
//   - TRANSPORT / STORAGE / INTERNAL: Collaborator or unexpected failures
//
// # Usage
//
//	err := errors.New(errors.ErrCodeDuplicateEntity, "node %s/%s already exists", typ, entityID)
//	if errors.Is(err, errors.ErrCodeDuplicateEntity) {
//	    // Select the existing node instead
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeStorage, origErr, "save canvas %s", id)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput     Code = "INVALID_INPUT"
	ErrCodeInvalidDirection Code = "INVALID_DIRECTION"
	ErrCodeInvalidNodeType  Code = "INVALID_NODE_TYPE"

	// Programmer errors
	ErrCodeContractViolation Code = "CONTRACT_VIOLATION"

	// Graph integrity errors
	ErrCodeDuplicateEntity Code = "DUPLICATE_ENTITY"
	ErrCodeDuplicateEdge   Code = "DUPLICATE_EDGE"
	ErrCodeDanglingEdge    Code = "DANGLING_EDGE"

	// Resource not found errors
	ErrCodeNotFound       Code = "NOT_FOUND"
	ErrCodeCanvasNotFound Code = "CANVAS_NOT_FOUND"

	// Collaborator errors
	ErrCodeTransport Code = "TRANSPORT"
	ErrCodeStorage   Code = "STORAGE"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// IsContractViolation reports whether err signals a programmer error rather
// than a data-quality problem. Contract violations are never coerced.
func IsContractViolation(err error) bool {
	return Is(err, ErrCodeContractViolation)
}

// HTTPStatus maps an error code onto the status the HTTP surface reports.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case ErrCodeInvalidInput, ErrCodeInvalidDirection, ErrCodeInvalidNodeType, ErrCodeDanglingEdge:
		return 400
	case ErrCodeNotFound, ErrCodeCanvasNotFound:
		return 404
	case ErrCodeDuplicateEntity, ErrCodeDuplicateEdge:
		return 409
	case ErrCodeContractViolation:
		return 422
	case ErrCodeTransport, ErrCodeStorage:
		return 502
	default:
		return 500
	}
}
