// Package errors provides custom error types for the Hearth API.
// All service-layer errors should use AppError to ensure consistent,
// secure error responses that never leak internal details to clients.
package errors

import "net/http"

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// Authentication & authorization errors.
var (
	ErrUnauthorized       = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrInvalidCredentials = &AppError{Code: "INVALID_CREDENTIALS", Message: "Invalid email or password", StatusCode: http.StatusUnauthorized}
	// ErrForbidden is returned when a record exists but the caller may not
	// act on it. Distinct from not-found: existence is never hidden from a
	// household member, only write access is gated.
	ErrForbidden = &AppError{Code: "FORBIDDEN", Message: "Access denied", StatusCode: http.StatusForbidden}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// User errors.
var (
	ErrUserNotFound   = &AppError{Code: "USER_NOT_FOUND", Message: "User not found", StatusCode: http.StatusNotFound}
	ErrDuplicateEmail = &AppError{Code: "DUPLICATE_EMAIL", Message: "A user with this email already exists", StatusCode: http.StatusConflict}
)

// Category errors.
var (
	ErrCategoryNotFound = &AppError{Code: "CATEGORY_NOT_FOUND", Message: "Category not found", StatusCode: http.StatusNotFound}
	ErrCategoryInUse    = &AppError{Code: "CATEGORY_IN_USE", Message: "Category is used by existing payments or allocations", StatusCode: http.StatusConflict}
)

// Period budget errors.
var (
	ErrPeriodNotFound    = &AppError{Code: "PERIOD_NOT_FOUND", Message: "Period budget not found", StatusCode: http.StatusNotFound}
	ErrSliceNotFound     = &AppError{Code: "SLICE_NOT_FOUND", Message: "Weekly slice not found", StatusCode: http.StatusNotFound}
	ErrInvalidPeriodType = &AppError{Code: "INVALID_PERIOD_TYPE", Message: "Unsupported period type", StatusCode: http.StatusBadRequest}
	ErrCustomRangeNeeded = &AppError{Code: "CUSTOM_RANGE_REQUIRED", Message: "Custom periods require start and end dates", StatusCode: http.StatusBadRequest}
)

// Ledger errors.
var (
	ErrLedgerNotFound = &AppError{Code: "LEDGER_NOT_FOUND", Message: "Weekly ledger not found", StatusCode: http.StatusNotFound}
	ErrEntryNotFound  = &AppError{Code: "ENTRY_NOT_FOUND", Message: "Payment entry not found", StatusCode: http.StatusNotFound}
	// ErrOverAllocation is a domain-rule error, not a validation error: the
	// payment itself is well-formed but would push a limited category past
	// its allocation ceiling.
	ErrOverAllocation = &AppError{Code: "OVER_ALLOCATION", Message: "Payment exceeds the category allocation", StatusCode: http.StatusConflict}
)

// Payment schedule errors.
var (
	ErrScheduleNotFound    = &AppError{Code: "SCHEDULE_NOT_FOUND", Message: "Payment schedule not found", StatusCode: http.StatusNotFound}
	ErrInvalidFrequency    = &AppError{Code: "INVALID_FREQUENCY", Message: "Unsupported payment frequency", StatusCode: http.StatusBadRequest}
	ErrInvalidStatusChange = &AppError{Code: "INVALID_STATUS_CHANGE", Message: "Unsupported payment status", StatusCode: http.StatusBadRequest}
)

// Transaction errors.
var (
	ErrTransactionNotFound = &AppError{Code: "TRANSACTION_NOT_FOUND", Message: "Transaction not found", StatusCode: http.StatusNotFound}
)
