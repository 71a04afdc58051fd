package apperror

import (
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string      `json:"error_code"`
	Message    string      `json:"message"`
	HTTPStatus int         `json:"-"`
	Details    interface{} `json:"details,omitempty"`
	Err        error       `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Ledger (LED) ----

// BalanceDetails accompanies LED_001 so callers see what was short.
type BalanceDetails struct {
	Available decimal.Decimal `json:"available"`
	Required  decimal.Decimal `json:"required"`
}

func ErrInsufficientFunds(available, required decimal.Decimal) *AppError {
	e := New("LED_001", "Insufficient available balance", http.StatusPaymentRequired)
	e.Details = BalanceDetails{Available: available, Required: required}
	return e
}

func ErrUnknownReservation() *AppError {
	return New("LED_002", "Reservation unknown or already resolved", http.StatusConflict)
}

func ErrInvalidAmount() *AppError {
	return New("LED_003", "Invalid amount", http.StatusBadRequest)
}

func ErrNotFound(entity string) *AppError {
	return New("LED_004", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrAccountClosed() *AppError {
	return New("LED_005", "Account is closed", http.StatusForbidden)
}

// ---- Settlement lifecycle (STL) ----

func ErrUnsupportedChannel(channelID string) *AppError {
	return New("STL_001", fmt.Sprintf("Unsupported settlement channel: %s", channelID), http.StatusBadRequest)
}

func ErrInvalidDestination() *AppError {
	return New("STL_002", "Destination does not match channel format", http.StatusBadRequest)
}

func ErrInvalidStateTransition(from, to string) *AppError {
	return New("STL_003", fmt.Sprintf("Illegal transition from %s to %s", from, to), http.StatusConflict)
}

func ErrAlreadyTerminal(state string) *AppError {
	return New("STL_004", fmt.Sprintf("Request already in terminal state %s", state), http.StatusConflict)
}

func ErrAmountOutOfRange() *AppError {
	return New("STL_005", "Amount outside channel limits", http.StatusBadRequest)
}

// ---- Providers (PRV) ----

func ErrProviderUnavailable(err error) *AppError {
	return Wrap("PRV_001", "Settlement provider unavailable", http.StatusBadGateway, err)
}

func ErrProviderRejected(reason string) *AppError {
	return New("PRV_002", fmt.Sprintf("Settlement provider rejected the transfer: %s", reason), http.StatusUnprocessableEntity)
}

func ErrRateUnavailable(err error) *AppError {
	return Wrap("PRV_003", "Exchange rate unavailable", http.StatusServiceUnavailable, err)
}

// ---- Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New("AUTH_001", "Invalid credentials", http.StatusUnauthorized)
}

func ErrPhoneExists() *AppError {
	return New("AUTH_002", "Phone number already registered", http.StatusConflict)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New("AUTH_004", "Account does not belong to the authenticated user", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a request validation error.
func Validation(message string) *AppError {
	return New("SYS_002", message, http.StatusBadRequest)
}
