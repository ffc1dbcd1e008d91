package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrEmailTaken is returned when signing up with an email that already has an account.
	ErrEmailTaken = errors.New("Email already registered")
	// ErrUsernameTaken is returned when signing up with a username that is already in use.
	ErrUsernameTaken = errors.New("Username already registered")
	// ErrInvalidCredentials is returned when a login attempt does not match a stored credential.
	ErrInvalidCredentials = errors.New("Invalid credentials")
	// ErrNotAuthenticated is returned when a request carries no usable identity.
	ErrNotAuthenticated = errors.New("Not authenticated")
	// ErrTransactionNotFound is returned when a transaction does not exist or belongs to another user.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrInvalidCategory is returned when a category is neither expense nor income.
	ErrInvalidCategory = errors.New("category must be one of: expense, income")
	// ErrInvalidAmount is returned when amount is invalid.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidDateRange is returned when a from date falls after its to date.
	ErrInvalidDateRange = errors.New("from must not be after to")
	// ErrUnsupportedFormat is returned for unknown export formats.
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrUnsupportedCurrency is returned when an exchange rate is requested for an unknown currency.
	ErrUnsupportedCurrency = errors.New("unsupported currency")
)

// ValidationError describes malformed client input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a ValidationError with a formatted message.
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// UpstreamError is returned when a third-party dependency fails or misbehaves.
type UpstreamError struct {
	Service    string
	StatusCode int
	Detail     string
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := e.Service + " unavailable"
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message, code string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
	}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Error: e.Message,
		Code:  e.Code,
	}
}

// MapErrorToHTTP maps domain errors to HTTP errors.
func MapErrorToHTTP(err error) *HTTPError {
	var validationErr *ValidationError
	var upstreamErr *UpstreamError

	switch {
	case errors.Is(err, ErrEmailTaken):
		return NewHTTPError(http.StatusBadRequest, ErrEmailTaken.Error(), "EMAIL_TAKEN")
	case errors.Is(err, ErrUsernameTaken):
		return NewHTTPError(http.StatusBadRequest, ErrUsernameTaken.Error(), "USERNAME_TAKEN")
	case errors.Is(err, ErrInvalidCategory):
		return NewHTTPError(http.StatusBadRequest, ErrInvalidCategory.Error(), "INVALID_CATEGORY")
	case errors.Is(err, ErrInvalidAmount):
		return NewHTTPError(http.StatusBadRequest, ErrInvalidAmount.Error(), "INVALID_AMOUNT")
	case errors.Is(err, ErrInvalidDateRange):
		return NewHTTPError(http.StatusBadRequest, ErrInvalidDateRange.Error(), "INVALID_DATE_RANGE")
	case errors.Is(err, ErrUnsupportedFormat):
		return NewHTTPError(http.StatusBadRequest, ErrUnsupportedFormat.Error(), "UNSUPPORTED_FORMAT")
	case errors.Is(err, ErrUnsupportedCurrency):
		return NewHTTPError(http.StatusBadRequest, ErrUnsupportedCurrency.Error(), "UNSUPPORTED_CURRENCY")
	case errors.As(err, &validationErr):
		return NewHTTPError(http.StatusBadRequest, validationErr.Message, "VALIDATION_ERROR")
	case errors.Is(err, ErrInvalidCredentials):
		return NewHTTPError(http.StatusUnauthorized, ErrInvalidCredentials.Error(), "INVALID_CREDENTIALS")
	case errors.Is(err, ErrNotAuthenticated):
		return NewHTTPError(http.StatusUnauthorized, ErrNotAuthenticated.Error(), "NOT_AUTHENTICATED")
	case errors.Is(err, ErrTransactionNotFound):
		return NewHTTPError(http.StatusNotFound, ErrTransactionNotFound.Error(), "TRANSACTION_NOT_FOUND")
	case errors.As(err, &upstreamErr):
		msg := upstreamErr.Service + " unavailable"
		if upstreamErr.Detail != "" {
			msg += ": " + upstreamErr.Detail
		}
		return NewHTTPError(http.StatusBadGateway, msg, "UPSTREAM_ERROR")
	default:
		return NewHTTPError(http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}
