package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/imgbatch-api/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInMemoryEventEmitter_NoHandlers(t *testing.T) {
	emitter := NewInMemoryEventEmitter(quietLogger())
	event := NewRequestEvent(uuid.New(), domain.RequestStatusCompleted, "")

	assert.NoError(t, emitter.EmitEvent(context.Background(), event))
	assert.NoError(t, emitter.EmitEvent(context.Background(), nil))
}

func TestInMemoryEventEmitter_DeliversInOrder(t *testing.T) {
	emitter := NewInMemoryEventEmitter(nil)

	var order []string
	emitter.RegisterHandler(EventHandlerFunc(func(ctx context.Context, e *RequestEvent) error {
		order = append(order, "first:"+string(e.Status))
		return nil
	}))
	emitter.RegisterHandler(nil)
	emitter.RegisterHandler(EventHandlerFunc(func(ctx context.Context, e *RequestEvent) error {
		order = append(order, "second:"+string(e.Status))
		return nil
	}))
	require.Equal(t, 2, emitter.HandlerCount())

	event := NewRequestEvent(uuid.New(), domain.RequestStatusFailed, "payload not found")
	require.NoError(t, emitter.EmitEvent(context.Background(), event))
	assert.Equal(t, []string{"first:FAILED", "second:FAILED"}, order)
}

func TestInMemoryEventEmitter_FailuresDoNotStopDelivery(t *testing.T) {
	emitter := NewInMemoryEventEmitter(quietLogger())

	errDown := errors.New("webhook down")
	tail := &MockEventHandler{}
	emitter.RegisterHandler(&MockEventHandler{HandlerError: errDown})
	emitter.RegisterHandler(EventHandlerFunc(func(ctx context.Context, e *RequestEvent) error {
		panic("nil map write")
	}))
	emitter.RegisterHandler(tail)

	event := NewRequestEvent(uuid.New(), domain.RequestStatusCompleted, "")
	err := emitter.EmitEvent(context.Background(), event)

	require.Error(t, err)
	assert.ErrorIs(t, err, errDown)
	assert.Contains(t, err.Error(), "panicked: nil map write")
	assert.Equal(t, 1, tail.HandledCount)
	assert.Same(t, event, tail.LastEvent)
}
