package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/imgbatch-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestEvent(t *testing.T) {
	requestID := uuid.New()

	completed := NewRequestEvent(requestID, domain.RequestStatusCompleted, "")
	assert.NotEqual(t, uuid.Nil, completed.ID)
	assert.Equal(t, TypeRequestCompleted, completed.Type)
	assert.Equal(t, requestID, completed.RequestID)
	assert.WithinDuration(t, time.Now(), completed.CreatedAt, 2*time.Second)

	failed := NewRequestEvent(requestID, domain.RequestStatusFailed, "payload is not readable text")
	assert.Equal(t, TypeRequestFailed, failed.Type)
	assert.Equal(t, "payload is not readable text", failed.ErrorMessage)
	assert.NotEqual(t, completed.ID, failed.ID)

	data, err := json.Marshal(failed)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "FAILED", decoded["status"])
	assert.Equal(t, requestID.String(), decoded["request_id"])
}

// MockEventHandler implements the EventHandler interface for testing
type MockEventHandler struct {
	// The last event received by this handler
	LastEvent *RequestEvent
	// Error to return from HandleEvent
	HandlerError error
	// Count of events handled
	HandledCount int
}

// HandleEvent implements the EventHandler interface
func (h *MockEventHandler) HandleEvent(ctx context.Context, event *RequestEvent) error {
	h.LastEvent = event
	h.HandledCount++
	return h.HandlerError
}

func TestEventHandlerFunc(t *testing.T) {
	var got *RequestEvent
	handler := EventHandlerFunc(func(ctx context.Context, event *RequestEvent) error {
		got = event
		return errors.New("handler error")
	})

	event := NewRequestEvent(uuid.New(), domain.RequestStatusCompleted, "")
	err := handler.HandleEvent(context.Background(), event)
	assert.EqualError(t, err, "handler error")
	assert.Same(t, event, got)
}
