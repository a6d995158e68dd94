package dto

import (
	"net/http"

	"github.com/erp/stockledger/internal/domain/shared"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	ErrCodeUnknown  = "ERR_UNKNOWN"
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation and input error codes
const (
	ErrCodeValidation   = "ERR_VALIDATION"
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON  = "ERR_INVALID_JSON"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// Authentication error codes
const (
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeForbidden    = "ERR_FORBIDDEN"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
	ErrCodeTokenRevoked = "ERR_TOKEN_REVOKED"
)

// Resource error codes
const (
	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeConflict            = "ERR_CONFLICT"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
)

// Inventory rule error codes
const (
	ErrCodeInvalidState         = "ERR_INVALID_STATE"
	ErrCodeInvalidMovement      = "ERR_INVALID_MOVEMENT"
	ErrCodeInsufficientLayers   = "ERR_INSUFFICIENT_LAYERS"
	ErrCodeSessionAlreadyClosed = "ERR_SESSION_ALREADY_CLOSED"
	ErrCodeNegativeBalance      = "ERR_NEGATIVE_BALANCE"
	ErrCodeReconciliationGuard  = "ERR_RECONCILIATION_GUARD"
	ErrCodeReconcileInProgress  = "ERR_RECONCILE_IN_PROGRESS"
)

// Rate limiting error codes
const (
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
	// ErrCodeUpstreamUnavailable is used when the marketplace feed cannot be loaded
	ErrCodeUpstreamUnavailable = "ERR_UPSTREAM_UNAVAILABLE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,
	ErrCodeTokenRevoked: http.StatusUnauthorized,

	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,

	// Rule violations -> 422 Unprocessable Entity
	ErrCodeInvalidState:        http.StatusUnprocessableEntity,
	ErrCodeInvalidMovement:     http.StatusUnprocessableEntity,
	ErrCodeInsufficientLayers:  http.StatusUnprocessableEntity,
	ErrCodeNegativeBalance:     http.StatusUnprocessableEntity,
	ErrCodeReconciliationGuard: http.StatusUnprocessableEntity,

	ErrCodeSessionAlreadyClosed: http.StatusConflict,
	ErrCodeReconcileInProgress:  http.StatusConflict,

	ErrCodeRateLimited:         http.StatusTooManyRequests,
	ErrCodeUpstreamUnavailable: http.StatusBadGateway,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// domainErrorCodes maps shared.DomainError codes to API codes
var domainErrorCodes = map[string]string{
	shared.CodeNotFound:             ErrCodeNotFound,
	shared.CodeInvalidInput:         ErrCodeInvalidInput,
	shared.CodeInvalidState:         ErrCodeInvalidState,
	shared.CodeConcurrencyConflict:  ErrCodeConcurrencyConflict,
	shared.CodeInvalidMovement:      ErrCodeInvalidMovement,
	shared.CodeInsufficientLayers:   ErrCodeInsufficientLayers,
	shared.CodeSessionAlreadyClosed: ErrCodeSessionAlreadyClosed,
	shared.CodeNegativeBalance:      ErrCodeNegativeBalance,
	shared.CodeReconciliationGuard:  ErrCodeReconciliationGuard,
	shared.CodeReconcileInProgress:  ErrCodeReconcileInProgress,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Codes already in the API format or unknown are returned as-is.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := domainErrorCodes[code]; ok {
		return apiCode
	}
	return code
}
