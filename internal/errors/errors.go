// Package errors defines the service error taxonomy for the trust core.
// Every failure surfaced to a caller carries a stable code so terminals and
// admin consoles can branch on it without parsing messages, and anomaly
// outcomes stay distinguishable from hard failures.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error code.
type Code string

const (
	CodeValidation            Code = "VALIDATION"
	CodeNotFound              Code = "NOT_FOUND"
	CodeDuplicate             Code = "DUPLICATE"
	CodeUnauthorized          Code = "UNAUTHORIZED"
	CodeInvalidState          Code = "INVALID_STATE"
	CodeInsufficientBalance   Code = "INSUFFICIENT_BALANCE"
	CodeInsufficientLiquidity Code = "INSUFFICIENT_LIQUIDITY"
	CodeThresholdExceeded     Code = "THRESHOLD_EXCEEDED"
	CodeInternal              Code = "INTERNAL"
)

// ServiceError is the error type returned by core operations.
type ServiceError struct {
	Code    Code                   `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	cause   error
}

func (e *ServiceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As chains.
func (e *ServiceError) Unwrap() error { return e.cause }

// WithDetails attaches a key/value pair and returns the error for chaining.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(code Code, message string, cause error) *ServiceError {
	return &ServiceError{Code: code, Message: message, cause: cause}
}

// Validation reports malformed input.
func Validation(message string) *ServiceError { return newError(CodeValidation, message, nil) }

// NotFound reports an unknown entity.
func NotFound(kind, id string) *ServiceError {
	return newError(CodeNotFound, fmt.Sprintf("%s %s not found", kind, id), nil)
}

// Duplicate reports re-registration of an existing id.
func Duplicate(kind, id string) *ServiceError {
	return newError(CodeDuplicate, fmt.Sprintf("%s %s already exists", kind, id), nil)
}

// Unauthorized reports a caller lacking the required role.
func Unauthorized(message string) *ServiceError { return newError(CodeUnauthorized, message, nil) }

// InvalidState reports an illegal state transition.
func InvalidState(message string) *ServiceError { return newError(CodeInvalidState, message, nil) }

// InsufficientBalance reports a debit exceeding the recorded balance.
func InsufficientBalance(message string) *ServiceError {
	return newError(CodeInsufficientBalance, message, nil)
}

// InsufficientLiquidity reports a payout the vault cannot fund.
func InsufficientLiquidity(message string) *ServiceError {
	return newError(CodeInsufficientLiquidity, message, nil)
}

// ThresholdExceeded reports an anomaly or rate-limit trip. It is a flagged
// outcome, not a bug: callers must hold the operation for review rather than
// retry it blindly.
func ThresholdExceeded(message string) *ServiceError {
	return newError(CodeThresholdExceeded, message, nil)
}

// Internal wraps an unexpected failure without leaking storage details.
func Internal(message string, cause error) *ServiceError {
	return newError(CodeInternal, message, cause)
}

// GetServiceError extracts a *ServiceError from an error chain, or nil.
func GetServiceError(err error) *ServiceError {
	var svcErr *ServiceError
	if stderrors.As(err, &svcErr) {
		return svcErr
	}
	return nil
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	svcErr := GetServiceError(err)
	return svcErr != nil && svcErr.Code == code
}

// HTTPStatus maps a code to the response status used by the REST surface.
func (e *ServiceError) HTTPStatus() int {
	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDuplicate:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeInvalidState:
		return http.StatusConflict
	case CodeInsufficientBalance, CodeInsufficientLiquidity:
		return http.StatusUnprocessableEntity
	case CodeThresholdExceeded:
		return http.StatusAccepted
	default:
		return http.StatusInternalServerError
	}
}
