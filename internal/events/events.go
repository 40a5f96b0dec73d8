package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/imgbatch-api/internal/domain"
)

// Event types emitted by the request pipeline.
const (
	// TypeRequestCompleted is emitted once a request reaches COMPLETED.
	TypeRequestCompleted = "request.completed"

	// TypeRequestFailed is emitted once a request reaches FAILED.
	TypeRequestFailed = "request.failed"
)

// RequestEvent reports that a request reached a terminal status.
type RequestEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type is one of the TypeRequest* constants
	Type string `json:"type"`

	RequestID    uuid.UUID            `json:"request_id"`
	Status       domain.RequestStatus `json:"status"`
	ErrorMessage string               `json:"error_message,omitempty"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// NewRequestEvent creates the event for a request that reached status.
func NewRequestEvent(requestID uuid.UUID, status domain.RequestStatus, errorMessage string) *RequestEvent {
	eventType := TypeRequestCompleted
	if status == domain.RequestStatusFailed {
		eventType = TypeRequestFailed
	}

	return &RequestEvent{
		ID:           uuid.New(),
		Type:         eventType,
		RequestID:    requestID,
		Status:       status,
		ErrorMessage: errorMessage,
		CreatedAt:    time.Now().UTC(),
	}
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *RequestEvent) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows the dispatcher to publish outcomes without knowing who listens.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *RequestEvent) error
}

// EventHandlerFunc adapts a function to the EventHandler interface.
type EventHandlerFunc func(ctx context.Context, event *RequestEvent) error

// HandleEvent calls f(ctx, event).
func (f EventHandlerFunc) HandleEvent(ctx context.Context, event *RequestEvent) error {
	return f(ctx, event)
}
