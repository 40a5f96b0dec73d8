package store

import (
	"errors"
	"fmt"
)

// Base sentinels shared by every RequestStore implementation.
var (
	ErrNotFound          = errors.New("entity not found")
	ErrDuplicate         = errors.New("entity already exists")
	ErrInvalidEntity     = errors.New("invalid entity")
	ErrUpdateFailed      = errors.New("update failed")
	ErrTransactionFailed = errors.New("transaction failed")
)

// Request-specific errors. Each wraps one of the base sentinels.
var (
	ErrRequestNotFound = fmt.Errorf("%w: request", ErrNotFound)
	ErrRequestExists   = fmt.Errorf("%w: request", ErrDuplicate)

	// ErrTerminalStatus rejects any status write to a COMPLETED or FAILED
	// request.
	ErrTerminalStatus = fmt.Errorf("%w: request already in a terminal status", ErrUpdateFailed)
)

// IsNotFoundError reports whether err is, or wraps, ErrNotFound.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StoreError adds the entity and operation to a storage failure.
type StoreError struct {
	Entity    string
	Operation string
	Message   string
	Err       error
}

func (e *StoreError) Error() string {
	msg := fmt.Sprintf("store: %s %s: %s", e.Entity, e.Operation, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError builds a StoreError.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{Entity: entity, Operation: operation, Message: message, Err: err}
}
