package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phrazzld/imgbatch-api/internal/platform/logger"
)

// InMemoryEventEmitter delivers events synchronously to every registered
// handler, in registration order.
type InMemoryEventEmitter struct {
	mu       sync.RWMutex
	handlers []EventHandler
	logger   *slog.Logger
}

// NewInMemoryEventEmitter creates an emitter with no handlers.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryEventEmitter{logger: logger.With("component", "event_emitter")}
}

var _ EventEmitter = (*InMemoryEventEmitter)(nil)

// RegisterHandler subscribes handler to all later events.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler) {
	if handler == nil {
		return
	}
	e.mu.Lock()
	e.handlers = append(e.handlers, handler)
	n := len(e.handlers)
	e.mu.Unlock()
	e.logger.Debug("event handler registered", "handler_count", n)
}

// HandlerCount returns the number of registered handlers.
func (e *InMemoryEventEmitter) HandlerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers)
}

// EmitEvent hands event to every handler. A failing or panicking handler
// does not stop the others; all failures are joined into the returned error.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *RequestEvent) error {
	if event == nil {
		return nil
	}
	log := logger.FromContextOrDefault(ctx, e.logger).With(
		"event_type", event.Type,
		"request_id", event.RequestID,
	)

	e.mu.RLock()
	handlers := append([]EventHandler(nil), e.handlers...)
	e.mu.RUnlock()

	var errs []error
	for i, h := range handlers {
		if err := safeHandle(ctx, h, event); err != nil {
			log.Error("event handler failed", "handler_index", i, "error", err)
			errs = append(errs, err)
		}
	}

	log.Debug("event emitted", "handler_count", len(handlers), "failures", len(errs))
	return errors.Join(errs...)
}

func safeHandle(ctx context.Context, h EventHandler, event *RequestEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event handler panicked: %v", r)
		}
	}()
	return h.HandleEvent(ctx, event)
}
