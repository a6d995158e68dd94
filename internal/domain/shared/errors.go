package shared

import "errors"

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches domain errors by code so wrapped copies with a different message
// still satisfy errors.Is against the sentinel.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Error codes shared across the inventory core.
const (
	CodeNotFound             = "NOT_FOUND"
	CodeInvalidInput         = "INVALID_INPUT"
	CodeInvalidState         = "INVALID_STATE"
	CodeConcurrencyConflict  = "CONCURRENCY_CONFLICT"
	CodeInvalidMovement      = "INVALID_MOVEMENT"
	CodeInsufficientLayers   = "INSUFFICIENT_LAYERS"
	CodeSessionAlreadyClosed = "SESSION_ALREADY_CLOSED"
	CodeNegativeBalance      = "NEGATIVE_BALANCE"
	CodeReconciliationGuard  = "RECONCILIATION_GUARD"
	CodeReconcileInProgress  = "RECONCILE_IN_PROGRESS"
)

// Common domain errors
var (
	ErrNotFound             = NewDomainError(CodeNotFound, "Resource not found")
	ErrInvalidInput         = NewDomainError(CodeInvalidInput, "Invalid input provided")
	ErrInvalidState         = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
	ErrConcurrencyConflict  = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
	ErrInvalidMovement      = NewDomainError(CodeInvalidMovement, "Invalid stock movement")
	ErrSessionAlreadyClosed = NewDomainError(CodeSessionAlreadyClosed, "Count session is already closed")
	ErrReconcileInProgress  = NewDomainError(CodeReconcileInProgress, "A reconciliation run for this feed is already in progress")
)

// InvalidMovement returns an INVALID_MOVEMENT error with a specific reason.
func InvalidMovement(reason string) *DomainError {
	return NewDomainError(CodeInvalidMovement, "Invalid stock movement: "+reason)
}
