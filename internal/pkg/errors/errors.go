// Package errors provides the structured error taxonomy for the
// negotiation core.
//
// Every operation boundary classifies failures into one of six kinds.
// STATE_CONFLICT is the only retryable kind: the caller re-reads the
// aggregate and re-applies the mutation. All other kinds are terminal
// for that call and are surfaced verbatim to the invoking collaborator.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an application error.
type Kind string

const (
	// KindValidation covers missing or malformed required fields and
	// scope mismatches against a parent aggregate.
	KindValidation Kind = "VALIDATION"

	// KindNotFound covers absent referenced aggregates.
	KindNotFound Kind = "NOT_FOUND"

	// KindStateConflict covers stale optimistic versions and actions
	// attempted against a terminal or otherwise incompatible state.
	// Retryable: re-read, re-apply.
	KindStateConflict Kind = "STATE_CONFLICT"

	// KindPrecondition covers unmet cross-aggregate preconditions,
	// e.g. a sub-contract requested against an unsigned parent.
	KindPrecondition Kind = "PRECONDITION"

	// KindAuthorization covers actors that are not a recognized
	// counterpart of the entity they mutate.
	KindAuthorization Kind = "AUTHORIZATION"

	// KindInternal covers unexpected infrastructure failures.
	KindInternal Kind = "INTERNAL"
)

// AppError is a structured application error with kind and machine code.
type AppError struct {
	// Kind is the taxonomy bucket the error belongs to.
	Kind Kind `json:"kind"`

	// Code is a machine-readable error code (e.g. "PROPOSAL_VERSION_STALE").
	Code string `json:"code"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// Params carries structured context for the invoking collaborator.
	Params map[string]interface{} `json:"params,omitempty"`

	// Err is the wrapped underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Kind, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s/%s: %s", e.Kind, e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may re-read and re-apply.
func (e *AppError) Retryable() bool {
	return e.Kind == KindStateConflict
}

// WithParams attaches structured parameters to the error.
func (e *AppError) WithParams(params map[string]interface{}) *AppError {
	if e == nil || len(params) == 0 {
		return e
	}
	e.Params = params
	return e
}

// New creates a new AppError.
func New(kind Kind, code, message string) *AppError {
	return &AppError{Kind: kind, Code: code, Message: message}
}

// Wrap wraps an existing error into an AppError.
func Wrap(err error, kind Kind, code, message string) *AppError {
	return &AppError{Kind: kind, Code: code, Message: message, Err: err}
}

// Kind-specific constructors.

// Validation creates a VALIDATION error.
func Validation(code, message string) *AppError {
	return New(KindValidation, code, message)
}

// NotFound creates a NOT_FOUND error.
func NotFound(code, message string) *AppError {
	return New(KindNotFound, code, message)
}

// StateConflict creates a retryable STATE_CONFLICT error.
func StateConflict(code, message string) *AppError {
	return New(KindStateConflict, code, message)
}

// Precondition creates a PRECONDITION error.
func Precondition(code, message string) *AppError {
	return New(KindPrecondition, code, message)
}

// Authorization creates an AUTHORIZATION error.
func Authorization(code, message string) *AppError {
	return New(KindAuthorization, code, message)
}

// Internal creates an INTERNAL error.
func Internal(code, message string) *AppError {
	return New(KindInternal, code, message)
}

// IsAppError checks if an error is an AppError and returns it.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsKind reports whether err is an AppError of the given kind.
func IsKind(err error, kind Kind) bool {
	if appErr, ok := IsAppError(err); ok {
		return appErr.Kind == kind
	}
	return false
}

// IsRetryable reports whether err is a retryable AppError.
func IsRetryable(err error) bool {
	if appErr, ok := IsAppError(err); ok {
		return appErr.Retryable()
	}
	return false
}
