package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups error codes by how a caller should react to them.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindExternal       Kind = "external_dependency"
	KindIntegrity      Kind = "integrity"
	KindInternal       Kind = "internal"
)

const genericRetryMessage = "Service temporarily unavailable, please try again later"

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Kind       Kind   `json:"-"`
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
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

// Is matches on Code so that errors.Is(err, apperror.ErrDuplicateInvoice()) works.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(kind Kind, code string, message string, httpStatus int) *AppError {
	return &AppError{
		Kind:       kind,
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(kind Kind, code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Kind:       kind,
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// KindOf returns the Kind of err, or KindInternal for anything that is not an AppError.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// ---- Validation (VAL / VER) ----

// Validation returns a VAL_001 validation error with a caller-facing message.
func Validation(message string) *AppError {
	return New(KindValidation, "VAL_001", message, http.StatusBadRequest)
}

func ErrInvalidAmount() *AppError {
	return New(KindValidation, "VAL_002", "Invalid amount", http.StatusBadRequest)
}

func ErrUnknownSellerIdentity() *AppError {
	return New(KindValidation, "VER_001", "Seller tax ID is not registered with the tax registry", http.StatusUnprocessableEntity)
}

func ErrUnknownBuyerIdentity() *AppError {
	return New(KindValidation, "VER_002", "Buyer tax ID is not registered with the tax registry", http.StatusUnprocessableEntity)
}

// ---- Not found (NF) ----

func ErrNotFound(entity string) *AppError {
	return New(KindNotFound, "NF_001", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- Conflict (CON) ----

func ErrDuplicateIdentity() *AppError {
	return New(KindConflict, "CON_001", "An account with this email or tax ID already exists", http.StatusConflict)
}

func ErrDuplicateInvoice() *AppError {
	return New(KindConflict, "CON_002", "Invoice has already been submitted", http.StatusConflict)
}

func ErrBidNotAvailable() *AppError {
	return New(KindConflict, "CON_003", "Bid is no longer available, refresh and try again", http.StatusConflict)
}

func ErrCreditLimitExceeded() *AppError {
	return New(KindConflict, "CON_004", "Bid exceeds the available credit limit", http.StatusConflict)
}

func ErrInvalidState(message string) *AppError {
	return New(KindConflict, "CON_005", message, http.StatusConflict)
}

func ErrInsufficientFunds() *AppError {
	return New(KindConflict, "CON_006", "Insufficient balance in wallet", http.StatusConflict)
}

// ---- Authentication & Authorization (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New(KindAuthentication, "AUTH_001", "Invalid credentials", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New(KindAuthentication, "AUTH_002", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New(KindAuthorization, "AUTH_003", "Forbidden", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New(KindValidation, "RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- External dependencies (EXT) ----

// ErrExternalDependency hides the collaborator's error text behind a generic message.
func ErrExternalDependency(err error) *AppError {
	return Wrap(KindExternal, "EXT_001", genericRetryMessage, http.StatusServiceUnavailable, err)
}

// ---- Integrity (INT) ----

func ErrInvalidSignature() *AppError {
	return New(KindIntegrity, "INT_001", "Payment verification failed", http.StatusBadRequest)
}

func ErrCorruptedCiphertext(err error) *AppError {
	return Wrap(KindIntegrity, "INT_002", genericRetryMessage, http.StatusInternalServerError, err)
}

func ErrOrderMismatch() *AppError {
	return New(KindIntegrity, "INT_003", "Payment verification failed", http.StatusBadRequest)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(KindInternal, "SYS_001", "Internal server error", http.StatusInternalServerError, err)
}
