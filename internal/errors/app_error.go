package errors

import (
	"fmt"
	"net/http"
)

// Code identifies the business meaning of an AppError independently of its
// message, so callers can branch on it with errors.Is.
type Code string

const (
	CodeValidation       Code = "VALIDATION_ERROR"
	CodeVehicleNotFound  Code = "VEHICLE_NOT_FOUND"
	CodeStateNotFound    Code = "STATE_NOT_FOUND"
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
	CodeInternal         Code = "INTERNAL_ERROR"
	CodeRouteNotFound    Code = "ROUTE_NOT_FOUND"
	CodeUnauthorized     Code = "UNAUTHORIZED"
)

const (
	MessageVehicleNotFound = "Vehicle not found"
	MessageStateNotFound   = "Seller information not found"
	MessageInternal        = "Internal Server Error"
	MessageRouteNotFound   = "Not Found"
)

// Sentinels for errors.Is. Matching is by Code only.
var (
	ErrValidation       = &AppError{Code: CodeValidation}
	ErrVehicleNotFound  = &AppError{Code: CodeVehicleNotFound}
	ErrStateNotFound    = &AppError{Code: CodeStateNotFound}
	ErrStoreUnavailable = &AppError{Code: CodeStoreUnavailable}
	ErrInternal         = &AppError{Code: CodeInternal}
)

// AppError represents an application error
type AppError struct {
	Code       Code
	Message    string
	StatusCode int
	// Retryable is set for infrastructure failures such as timeouts, where a
	// later attempt may succeed.
	Retryable bool
	Err       error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewValidationError creates a validation error for a malformed request field
func NewValidationError(field, reason string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    fmt.Sprintf("%s %s", field, reason),
		StatusCode: http.StatusBadRequest,
	}
}

// NewVehicleNotFoundError is returned when no vehicle row exists for the id
func NewVehicleNotFoundError(err error) *AppError {
	return &AppError{
		Code:       CodeVehicleNotFound,
		Message:    MessageVehicleNotFound,
		StatusCode: http.StatusNotFound,
		Err:        err,
	}
}

// NewStateNotFoundError is returned when the vehicle exists but has no state
// recorded at or before the requested time
func NewStateNotFoundError(err error) *AppError {
	return &AppError{
		Code:       CodeStateNotFound,
		Message:    MessageStateNotFound,
		StatusCode: http.StatusNotFound,
		Err:        err,
	}
}

// NewStoreError wraps a connection, timeout or transaction failure
func NewStoreError(err error, retryable bool) *AppError {
	return &AppError{
		Code:       CodeStoreUnavailable,
		Message:    "Database error",
		StatusCode: http.StatusInternalServerError,
		Retryable:  retryable,
		Err:        err,
	}
}

// NewInternalError creates an internal server error
func NewInternalError(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    MessageInternal,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewRouteNotFoundError is used by the catch-all route
func NewRouteNotFoundError() *AppError {
	return &AppError{
		Code:       CodeRouteNotFound,
		Message:    MessageRouteNotFound,
		StatusCode: http.StatusNotFound,
	}
}

// NewUnauthorizedError is used by the auth middleware
func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}
