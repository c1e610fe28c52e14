package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

var (
	ErrNotFound          = new(ErrCodeNotFound, "resource not found")
	ErrValidation        = new(ErrCodeValidation, "validation error")
	ErrInsufficientStock = new(ErrCodeInsufficientStock, "insufficient stock")
	ErrInvalidState      = new(ErrCodeInvalidState, "invalid state")
	ErrNoPaymentMethod   = new(ErrCodeNoPaymentMethod, "no payment method")
	ErrPaymentDeclined   = new(ErrCodePaymentDeclined, "payment declined")
	ErrPaymentGateway    = new(ErrCodePaymentGateway, "payment gateway error")
	ErrLockTimeout       = new(ErrCodeLockTimeout, "lock timeout")
	ErrVersionConflict   = new(ErrCodeVersionConflict, "version conflict")
	ErrDatabase          = new(ErrCodeDatabase, "database error")
	ErrSystem            = new(ErrCodeSystemError, "system error")

	// maps errors to http status codes
	statusCodeMap = map[error]int{
		ErrNotFound:          http.StatusNotFound,
		ErrValidation:        http.StatusBadRequest,
		ErrInsufficientStock: http.StatusConflict,
		ErrInvalidState:      http.StatusConflict,
		ErrNoPaymentMethod:   http.StatusPaymentRequired,
		ErrPaymentDeclined:   http.StatusPaymentRequired,
		ErrPaymentGateway:    http.StatusBadGateway,
		ErrLockTimeout:       http.StatusServiceUnavailable,
		ErrVersionConflict:   http.StatusConflict,
		ErrDatabase:          http.StatusInternalServerError,
		ErrSystem:            http.StatusInternalServerError,
	}
)

const (
	ErrCodeNotFound          = "not_found"
	ErrCodeValidation        = "validation_error"
	ErrCodeInsufficientStock = "insufficient_stock"
	ErrCodeInvalidState      = "invalid_state"
	ErrCodeNoPaymentMethod   = "no_payment_method"
	ErrCodePaymentDeclined   = "payment_declined"
	ErrCodePaymentGateway    = "payment_gateway_error"
	ErrCodeLockTimeout       = "lock_timeout"
	ErrCodeVersionConflict   = "version_conflict"
	ErrCodeDatabase          = "database_error"
	ErrCodeSystemError       = "system_error"
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

func new(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsInsufficientStock(err error) bool {
	return errors.Is(err, ErrInsufficientStock)
}

func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

func IsLockTimeout(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}

// IsPaymentFailure reports whether err counts toward a subscription's retry budget.
func IsPaymentFailure(err error) bool {
	return errors.Is(err, ErrNoPaymentMethod) ||
		errors.Is(err, ErrPaymentDeclined) ||
		errors.Is(err, ErrPaymentGateway)
}

// Code returns the machine code of the first sentinel err is marked with.
func Code(err error) string {
	for e := range statusCodeMap {
		if errors.Is(err, e) {
			return e.(*InternalError).Code
		}
	}
	return ErrCodeSystemError
}

// Hint returns the user-facing hints attached to err, joined by newlines.
func Hint(err error) string {
	return errors.FlattenHints(err)
}

func HTTPStatusFromErr(err error) int {
	for e, status := range statusCodeMap {
		if errors.Is(err, e) {
			return status
		}
	}
	return http.StatusInternalServerError
}
