// Package apperrors implements the single tagged error type used across
// orchestrator-core: every InputError/NotRegistered/NotFound/ValidationError/
// ExecutionError/Timeout/ParseError/PersistenceError/Cancelled variant named
// in the component design is an AppError with the matching ErrorType.
package apperrors

import (
	"fmt"
	"net/http"
)

// ErrorType is a closed enum of the error kinds the orchestration core
// surfaces to callers.
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeNotRegistered ErrorType = "not_registered"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeExecution     ErrorType = "execution"
	ErrorTypeTimeout       ErrorType = "timeout"
	ErrorTypeParse         ErrorType = "parse"
	ErrorTypePersistence   ErrorType = "persistence"
	ErrorTypeCancelled     ErrorType = "cancelled"
	ErrorTypeInternal      ErrorType = "internal"
)

var statusCodes = map[ErrorType]int{
	ErrorTypeValidation:    http.StatusBadRequest,
	ErrorTypeNotRegistered: http.StatusNotFound,
	ErrorTypeNotFound:      http.StatusNotFound,
	ErrorTypeExecution:     http.StatusInternalServerError,
	ErrorTypeTimeout:       http.StatusRequestTimeout,
	ErrorTypeParse:         http.StatusUnprocessableEntity,
	ErrorTypePersistence:   http.StatusInternalServerError,
	ErrorTypeCancelled:     http.StatusConflict,
	ErrorTypeInternal:      http.StatusInternalServerError,
}

var safeMessages = map[ErrorType]string{
	ErrorTypeNotRegistered: "the requested tool is not registered",
	ErrorTypeNotFound:      "the requested resource was not found",
	ErrorTypeTimeout:       "the operation timed out",
	ErrorTypeExecution:     "an internal error occurred",
	ErrorTypePersistence:   "an internal error occurred",
	ErrorTypeParse:         "an internal error occurred",
	ErrorTypeCancelled:     "the operation was cancelled",
	ErrorTypeInternal:      "an internal error occurred",
}

// AppError is the single structured error carried through every layer.
type AppError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Details    string
	Cause      error
}

// New creates an AppError of the given type with no cause.
func New(t ErrorType, message string) *AppError {
	return &AppError{Type: t, Message: message, StatusCode: statusCodeFor(t)}
}

// Newf creates a formatted AppError of the given type.
func Newf(t ErrorType, format string, args ...interface{}) *AppError {
	return New(t, fmt.Sprintf(format, args...))
}

// Wrap creates an AppError of the given type around an existing cause.
func Wrap(cause error, t ErrorType, message string) *AppError {
	return &AppError{Type: t, Message: message, StatusCode: statusCodeFor(t), Cause: cause}
}

// Wrapf creates a formatted, wrapped AppError.
func Wrapf(cause error, t ErrorType, format string, args ...interface{}) *AppError {
	return Wrap(cause, t, fmt.Sprintf(format, args...))
}

func statusCodeFor(t ErrorType) int {
	if code, ok := statusCodes[t]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// WithDetails attaches a details string to the error in place and returns it.
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithDetailsf attaches a formatted details string in place.
func (e *AppError) WithDetailsf(format string, args ...interface{}) *AppError {
	e.Details = fmt.Sprintf(format, args...)
	return e
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Predefined constructors mirroring the component design's error kinds.

func NewValidationError(message string) *AppError { return New(ErrorTypeValidation, message) }

func NewNotRegisteredError(toolID string) *AppError {
	return Newf(ErrorTypeNotRegistered, "tool not registered: %s", toolID)
}

func NewNotFoundError(resource string) *AppError {
	return Newf(ErrorTypeNotFound, "%s not found", resource)
}

func NewExecutionError(operation string, cause error) *AppError {
	return Wrapf(cause, ErrorTypeExecution, "execution failed: %s", operation)
}

func NewTimeoutError(operation string) *AppError {
	return Newf(ErrorTypeTimeout, "operation timed out: %s", operation)
}

func NewParseError(toolID string, cause error) *AppError {
	return Wrapf(cause, ErrorTypeParse, "failed to parse output from %s", toolID)
}

func NewPersistenceError(operation string, cause error) *AppError {
	return Wrapf(cause, ErrorTypePersistence, "persistence operation failed: %s", operation)
}

func NewCancelledError(resource string) *AppError {
	return Newf(ErrorTypeCancelled, "%s was cancelled", resource)
}

// IsType reports whether err is an *AppError of the given type.
func IsType(err error, t ErrorType) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Type == t
}

// GetType returns err's ErrorType, or ErrorTypeInternal if err is not an
// *AppError.
func GetType(err error) ErrorType {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// GetStatusCode returns the HTTP status code associated with err.
func GetStatusCode(err error) int {
	if appErr, ok := err.(*AppError); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// SafeErrorMessage returns a message safe to show an external caller:
// validation messages pass through verbatim (they describe the caller's own
// input), every other type maps to a generic, non-leaking message.
func SafeErrorMessage(err error) string {
	appErr, ok := err.(*AppError)
	if !ok {
		return "An unexpected error occurred"
	}
	if appErr.Type == ErrorTypeValidation {
		return appErr.Message
	}
	if msg, ok := safeMessages[appErr.Type]; ok {
		return msg
	}
	return "An internal error occurred"
}

// LogFields returns a structured field map suitable for logrus.WithFields.
func LogFields(err error) map[string]interface{} {
	fields := map[string]interface{}{"error": err.Error()}
	appErr, ok := err.(*AppError)
	if !ok {
		return fields
	}
	fields["error_type"] = string(appErr.Type)
	fields["status_code"] = appErr.StatusCode
	if appErr.Details != "" {
		fields["error_details"] = appErr.Details
	}
	if appErr.Cause != nil {
		fields["underlying_error"] = appErr.Cause.Error()
	}
	return fields
}

// Chain concatenates multiple errors (dropping nils) into one error whose
// message joins each non-nil error's message with " -> ". A single non-nil
// error is returned unchanged; an all-nil input returns nil.
func Chain(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		msg := nonNil[0].Error()
		for _, err := range nonNil[1:] {
			msg += " -> " + err.Error()
		}
		return fmt.Errorf("%s", msg)
	}
}

// FailedTo is a low-ceremony wrap for leaf call sites that don't need the
// full AppError ceremony.
func FailedTo(action string, cause error) error {
	if cause == nil {
		return fmt.Errorf("failed to %s", action)
	}
	return fmt.Errorf("failed to %s: %w", action, cause)
}
