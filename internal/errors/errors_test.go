package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapErrorToHTTP(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"email taken", ErrEmailTaken, http.StatusBadRequest, "EMAIL_TAKEN", "Email already registered"},
		{"wrapped email taken", fmt.Errorf("signup: %w", ErrEmailTaken), http.StatusBadRequest, "EMAIL_TAKEN", "Email already registered"},
		{"invalid category", ErrInvalidCategory, http.StatusBadRequest, "INVALID_CATEGORY", ErrInvalidCategory.Error()},
		{"validation", NewValidationError("limit must be at most %d", 100), http.StatusBadRequest, "VALIDATION_ERROR", "limit must be at most 100"},
		{"invalid credentials", ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials"},
		{"not authenticated", ErrNotAuthenticated, http.StatusUnauthorized, "NOT_AUTHENTICATED", "Not authenticated"},
		{"not found", ErrTransactionNotFound, http.StatusNotFound, "TRANSACTION_NOT_FOUND", "transaction not found"},
		{
			"upstream",
			&UpstreamError{Service: "exchange-rate", StatusCode: http.StatusServiceUnavailable, Err: errors.New("dial tcp: refused")},
			http.StatusBadGateway, "UPSTREAM_ERROR", "exchange-rate unavailable",
		},
		{
			"upstream with detail",
			&UpstreamError{Service: "exchange-rate", StatusCode: http.StatusServiceUnavailable, Detail: "status 503", Err: errors.New("dial tcp: refused")},
			http.StatusBadGateway, "UPSTREAM_ERROR", "exchange-rate unavailable: status 503",
		},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpErr := MapErrorToHTTP(tt.err)
			assert.Equal(t, tt.wantStatus, httpErr.StatusCode)
			assert.Equal(t, tt.wantCode, httpErr.Code)
			assert.Equal(t, tt.wantMsg, httpErr.Message)
			assert.Equal(t, ErrorResponse{Error: tt.wantMsg, Code: tt.wantCode}, httpErr.ToErrorResponse())
		})
	}
}

func TestUpstreamError_Unwrap(t *testing.T) {
	cause := errors.New("timeout")
	err := fmt.Errorf("convert: %w", &UpstreamError{Service: "exchange-rate", Detail: "status 503", Err: cause})

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "convert: exchange-rate unavailable: status 503: timeout", err.Error())
}
