package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// RequestStatus represents the processing state of a batch request
type RequestStatus string

// Possible request status values
const (
	RequestStatusPending    RequestStatus = "PENDING"
	RequestStatusProcessing RequestStatus = "PROCESSING"
	RequestStatusCompleted  RequestStatus = "COMPLETED"
	RequestStatusFailed     RequestStatus = "FAILED"
)

// Common validation errors for Request
var (
	ErrEmptyRequestID       = errors.New("request ID cannot be empty")
	ErrEmptyPayloadRef      = errors.New("request payload reference cannot be empty")
	ErrInvalidRequestStatus = errors.New("invalid request status")
)

// Request represents one submitted batch and its lifecycle state.
// The payload itself lives in blob storage; the request only keeps
// a reference to it.
type Request struct {
	ID           uuid.UUID     `json:"id"`
	Status       RequestStatus `json:"status"`
	PayloadRef   string        `json:"payload_ref"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Attempts     int           `json:"attempts"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// NewRequest creates a new pending Request for the given ID and payload reference.
func NewRequest(id uuid.UUID, payloadRef string) (*Request, error) {
	now := time.Now().UTC()
	req := &Request{
		ID:         id,
		Status:     RequestStatusPending,
		PayloadRef: payloadRef,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	return req, nil
}

// Validate checks if the Request has valid data.
func (r *Request) Validate() error {
	if r.ID == uuid.Nil {
		return ErrEmptyRequestID
	}

	if r.PayloadRef == "" {
		return ErrEmptyPayloadRef
	}

	if !r.Status.Valid() {
		return ErrInvalidRequestStatus
	}

	return nil
}

// Valid reports whether s is one of the known request statuses.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusProcessing,
		RequestStatusCompleted, RequestStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition can happen from s.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusCompleted || s == RequestStatusFailed
}
