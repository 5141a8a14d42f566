package errs

import (
	"errors"
	"fmt"
)

// Business-rule rejections. Terminal: never retried, no partial
// mutation behind any of them.
var (
	ErrNotFound         = errors.New("not found")
	ErrPatronIneligible = errors.New("patron ineligible")
	ErrItemUnavailable  = errors.New("item unavailable")
	ErrAlreadyReturned  = errors.New("loan already returned")
	ErrAlreadyAvailable = errors.New("item has available copies")
	ErrForbidden        = errors.New("forbidden")
)

// Stable external error codes.
const (
	CodeNotFound         = "NOT_FOUND"
	CodePatronIneligible = "PATRON_INELIGIBLE"
	CodeItemUnavailable  = "ITEM_UNAVAILABLE"
	CodeAlreadyReturned  = "ALREADY_RETURNED"
	CodeAlreadyAvailable = "ALREADY_AVAILABLE"
	CodeForbidden        = "FORBIDDEN"
	CodeValidation       = "VALIDATION_ERROR"
	CodeInternal         = "INTERNAL_ERROR"
)

// ValidationError names the offending field of a malformed request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// InfraError marks storage failures that survived the single retry at
// the repository boundary, so callers can tell them from business
// rejections.
type InfraError struct {
	Err error
}

func (e *InfraError) Error() string {
	return fmt.Sprintf("infrastructure error: %v", e.Err)
}

func (e *InfraError) Unwrap() error {
	return e.Err
}

func NewInfraError(err error) *InfraError {
	return &InfraError{Err: err}
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}
