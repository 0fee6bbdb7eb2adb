package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// Standard error types
var (
	ErrNotFound        = errors.New("resource not found")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrTenantMismatch  = errors.New("tenant mismatch")
	ErrBadRequest      = errors.New("bad request")
	ErrConflict        = errors.New("resource conflict")
	ErrInternal        = errors.New("internal server error")
	ErrValidation      = errors.New("validation error")
	ErrTokenExpired    = errors.New("token expired")
	ErrTokenInvalid    = errors.New("invalid token")

	// Admission errors
	ErrEmployeeInactive  = errors.New("employee inactive")
	ErrBranchUnavailable = errors.New("branch unavailable")
	ErrOutOfGeofence     = errors.New("outside branch geofence")
	ErrAlreadyCheckedIn  = errors.New("already checked in")
	ErrNotCheckedIn      = errors.New("not checked in")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthenticated,
		Code:       "UNAUTHENTICATED",
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Code:       "FORBIDDEN",
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

// TenantMismatch is returned when a payload carries a company_id that differs
// from the principal's. The server-side copy is authoritative; the payload
// field is only a consistency check.
func TenantMismatch() *AppError {
	return &AppError{
		Err:        ErrTenantMismatch,
		Code:       "TENANT_MISMATCH",
		Message:    "payload company does not match the authenticated company",
		StatusCode: http.StatusForbidden,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

func TokenExpired() *AppError {
	return &AppError{
		Err:        ErrTokenExpired,
		Code:       "TOKEN_EXPIRED",
		Message:    "token has expired",
		StatusCode: http.StatusUnauthorized,
	}
}

func TokenInvalid() *AppError {
	return &AppError{
		Err:        ErrTokenInvalid,
		Code:       "TOKEN_INVALID",
		Message:    "invalid token",
		StatusCode: http.StatusUnauthorized,
	}
}

// Admission error constructors

func EmployeeInactive() *AppError {
	return &AppError{
		Err:        ErrEmployeeInactive,
		Code:       "EMPLOYEE_INACTIVE",
		Message:    "employee is deactivated",
		StatusCode: http.StatusForbidden,
	}
}

func BranchUnavailable() *AppError {
	return &AppError{
		Err:        ErrBranchUnavailable,
		Code:       "BRANCH_UNAVAILABLE",
		Message:    "branch is missing or inactive",
		StatusCode: http.StatusConflict,
	}
}

// OutOfGeofence carries the computed distance so clients can render
// actionable feedback.
func OutOfGeofence(distanceM, radiusM float64) *AppError {
	return &AppError{
		Err:        ErrOutOfGeofence,
		Code:       "OUT_OF_GEOFENCE",
		Message:    "check-in location is outside the branch geofence",
		StatusCode: http.StatusUnprocessableEntity,
		Details: map[string]string{
			"distance_m":        strconv.FormatFloat(distanceM, 'f', 1, 64),
			"geofence_radius_m": strconv.FormatFloat(radiusM, 'f', 1, 64),
		},
	}
}

func AlreadyCheckedIn() *AppError {
	return &AppError{
		Err:        ErrAlreadyCheckedIn,
		Code:       "ALREADY_CHECKED_IN",
		Message:    "an open attendance session already exists for today",
		StatusCode: http.StatusConflict,
	}
}

func NotCheckedIn() *AppError {
	return &AppError{
		Err:        ErrNotCheckedIn,
		Code:       "NOT_CHECKED_IN",
		Message:    "no open attendance session for today",
		StatusCode: http.StatusConflict,
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
