package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
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

// ---- Security & Authentication (SEC) ----

func ErrWebhookUnauthorized() *AppError {
	return New("SEC_001", "Invalid webhook credentials", http.StatusUnauthorized)
}

// ---- Webhook Intake (WHK) ----

func ErrMalformedPayload(err error) *AppError {
	return Wrap("WHK_001", "Malformed webhook payload", http.StatusBadRequest, err)
}

func ErrMissingEventType() *AppError {
	return New("WHK_002", "Webhook payload has no event type", http.StatusBadRequest)
}

func ErrWebhookTooLarge() *AppError {
	return New("WHK_003", "Webhook payload too large", http.StatusRequestEntityTooLarge)
}

// ---- Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New("AUTH_001", "Invalid credentials", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Admin (ADM) ----

func ErrInvalidCleanupAge(days int) *AppError {
	return New("ADM_001", fmt.Sprintf("Cleanup age must be at least 1 day, got %d", days), http.StatusBadRequest)
}

// ---- Orders (ORD) ----

func ErrOrderNotFound(orderID string) *AppError {
	return New("ORD_001", fmt.Sprintf("Order %s not found", orderID), http.StatusNotFound)
}

func ErrDuplicateOrder(orderID string) *AppError {
	return New("ORD_002", fmt.Sprintf("Order %s already exists", orderID), http.StatusConflict)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

func ErrBodyTooLarge() *AppError {
	return New("SYS_002", "Request body too large", http.StatusRequestEntityTooLarge)
}

// Validation returns a VAL_001 request validation error.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}
