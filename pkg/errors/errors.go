package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced to API callers.
const (
	CodeValidation            = "VALIDATION_ERROR"
	CodeConflictingActiveTrip = "CONFLICTING_ACTIVE_TRIP"
	CodeDriverBusy            = "DRIVER_BUSY"
	CodeNoActiveTrip          = "NO_ACTIVE_TRIP"
	CodeInvalidTransition     = "INVALID_TRANSITION"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeTripNotFound          = "TRIP_NOT_FOUND"
	CodeRouteUnavailable      = "ROUTE_UNAVAILABLE"
	CodeUnauthenticated       = "UNAUTHENTICATED"
	CodeForbidden             = "FORBIDDEN"
	CodeInternal              = "INTERNAL_ERROR"
)

// AppError represents an application error with HTTP status code
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
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

// Is reports whether target is an AppError carrying the same code, so that
// errors.Is(err, ErrDriverBusy) matches regardless of message or cause.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewAppError creates a new AppError
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// Validation creates a 400 error for malformed or missing request fields.
func Validation(message string, err error) *AppError {
	return NewAppError(CodeValidation, message, http.StatusBadRequest, err)
}

// ConflictingActiveTrip is returned when a rider already holds an active trip.
func ConflictingActiveTrip(riderID string) *AppError {
	return NewAppError(CodeConflictingActiveTrip,
		fmt.Sprintf("rider %s already has an active trip; only one active trip per rider is allowed", riderID),
		http.StatusBadRequest, nil)
}

// DriverBusy is returned when a driver already has an accepted or in-progress trip.
func DriverBusy(driverID string) *AppError {
	return NewAppError(CodeDriverBusy,
		fmt.Sprintf("driver %s already has an active trip; a driver may serve one trip at a time", driverID),
		http.StatusBadRequest, nil)
}

// NoActiveTrip is returned when an actor has no trip that can be acted upon.
func NoActiveTrip(actorID string) *AppError {
	return NewAppError(CodeNoActiveTrip,
		fmt.Sprintf("user %s has no active trip to cancel", actorID),
		http.StatusNotFound, nil)
}

// InvalidTransition names both the current and the attempted status.
func InvalidTransition(current, attempted string) *AppError {
	return NewAppError(CodeInvalidTransition,
		fmt.Sprintf("cannot move trip from %s to %s", current, attempted),
		http.StatusBadRequest, nil)
}

// Unauthorized is returned when the actor does not own the resource.
func Unauthorized(message string) *AppError {
	return NewAppError(CodeUnauthorized, message, http.StatusBadRequest, nil)
}

// TripNotFound creates a 404 error
func TripNotFound(tripID string) *AppError {
	return NewAppError(CodeTripNotFound, fmt.Sprintf("trip %s not found", tripID), http.StatusNotFound, nil)
}

// RouteUnavailable wraps a routing provider failure.
func RouteUnavailable(err error) *AppError {
	return NewAppError(CodeRouteUnavailable, "route could not be calculated", http.StatusBadRequest, err)
}

// Unauthenticated creates a 401 error for missing or invalid bearer credentials.
func Unauthenticated(message string, err error) *AppError {
	return NewAppError(CodeUnauthenticated, message, http.StatusUnauthorized, err)
}

// Forbidden creates a 403 error
func Forbidden(message string) *AppError {
	return NewAppError(CodeForbidden, message, http.StatusForbidden, nil)
}

// Internal creates a 500 error
func Internal(message string, err error) *AppError {
	return NewAppError(CodeInternal, message, http.StatusInternalServerError, err)
}

// Sentinels for errors.Is comparisons; matching is by code only.
var (
	ErrValidation            = &AppError{Code: CodeValidation}
	ErrConflictingActiveTrip = &AppError{Code: CodeConflictingActiveTrip}
	ErrDriverBusy            = &AppError{Code: CodeDriverBusy}
	ErrNoActiveTrip          = &AppError{Code: CodeNoActiveTrip}
	ErrInvalidTransition     = &AppError{Code: CodeInvalidTransition}
	ErrUnauthorized          = &AppError{Code: CodeUnauthorized}
	ErrTripNotFound          = &AppError{Code: CodeTripNotFound}
	ErrRouteUnavailable      = &AppError{Code: CodeRouteUnavailable}
)

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError attempts to convert an error to AppError
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	// Return generic internal error if not an AppError
	return Internal("An unexpected error occurred", err)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
