package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/imgbatch-api/internal/store"
)

// Common service errors - sentinel errors used across service implementations.
// These errors represent common conditions that callers may want to check for with errors.Is().
//
// Error handling principles:
// 1. Service methods return sentinel errors for expected error conditions
// 2. Unexpected errors are wrapped in ServiceError
// 3. Callers use errors.Is/errors.As to check for specific error conditions
// 4. The API layer maps service errors to appropriate HTTP status codes
var (
	// ErrInvalidPayload indicates that a submitted batch payload is empty.
	// API layer should map this to HTTP 400 Bad Request.
	ErrInvalidPayload = errors.New("batch payload is empty")

	// ErrPayloadTooLarge indicates that a submitted payload exceeds the size limit.
	// API layer should map this to HTTP 413 Request Entity Too Large.
	ErrPayloadTooLarge = errors.New("batch payload exceeds size limit")

	// ErrRequestNotFound indicates that no request exists with the given ID.
	// API layer should map this to HTTP 404 Not Found.
	ErrRequestNotFound = errors.New("request not found")
)

// ServiceError wraps an unexpected failure of a service operation.
type ServiceError struct {
	// Service is the service name (e.g., "request")
	Service string
	// Op is the operation that failed (e.g., "submit")
	Op string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s service %s operation failed", e.Service, e.Op)
	}
	return fmt.Sprintf("%s service %s operation failed: %v", e.Service, e.Op, e.Err)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError.
// It returns known sentinel errors directly without wrapping, and maps
// store-level not-found errors to ErrRequestNotFound.
func NewServiceError(service, op string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrInvalidPayload), errors.Is(err, ErrPayloadTooLarge), errors.Is(err, ErrRequestNotFound):
		return err
	case errors.Is(err, store.ErrRequestNotFound):
		return ErrRequestNotFound
	}

	return &ServiceError{Service: service, Op: op, Err: err}
}
