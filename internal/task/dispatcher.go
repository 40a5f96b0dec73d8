package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/phrazzld/imgbatch-api/internal/batch"
	"github.com/phrazzld/imgbatch-api/internal/domain"
	"github.com/phrazzld/imgbatch-api/internal/events"
	"github.com/phrazzld/imgbatch-api/internal/platform/blob"
	"github.com/phrazzld/imgbatch-api/internal/platform/logger"
	"github.com/phrazzld/imgbatch-api/internal/queue"
	"github.com/phrazzld/imgbatch-api/internal/store"
)

// Failure reasons recorded on FAILED requests.
const (
	ReasonPayloadMissing = "payload not found"
	ReasonUnparseable    = "payload is not readable text"
	ReasonInfrastructure = "infrastructure error"
)

// settleTimeout bounds Ack/Nack calls made after the processing context
// was cancelled.
const settleTimeout = 10 * time.Second

// DispatcherConfig holds the retry policy of the Dispatcher.
type DispatcherConfig struct {
	// MaxAttempts is the number of deliveries after which an infrastructure
	// failure marks the request FAILED instead of redelivering it.
	MaxAttempts int

	// RetryDelay is the base redelivery delay; attempt n waits n*RetryDelay.
	RetryDelay time.Duration

	// BatchTimeout bounds the fan-out of one request. Zero disables it.
	BatchTimeout time.Duration

	// StatusRetries is how many times a status write is retried in-process
	// before the delivery is given up.
	StatusRetries uint64

	// StatusRetryBase is the first backoff of a retried status write.
	StatusRetryBase time.Duration
}

// DefaultDispatcherConfig returns a DispatcherConfig with reasonable defaults
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		MaxAttempts:     3,
		RetryDelay:      10 * time.Second,
		StatusRetries:   3,
		StatusRetryBase: 100 * time.Millisecond,
	}
}

// Dispatcher moves a single request through its state machine for each
// queue delivery. It is the only writer of a request's status and row
// results while it holds the delivery.
type Dispatcher struct {
	store       store.RequestStore
	payloads    PayloadStore
	coordinator *Coordinator
	emitter     events.EventEmitter
	config      DispatcherConfig
	logger      *slog.Logger
}

// NewDispatcher creates a Dispatcher. emitter may be nil.
func NewDispatcher(
	requests store.RequestStore,
	payloads PayloadStore,
	coordinator *Coordinator,
	emitter events.EventEmitter,
	config DispatcherConfig,
	logger *slog.Logger,
) *Dispatcher {
	if requests == nil || payloads == nil || coordinator == nil {
		panic("dispatcher dependencies cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultDispatcherConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.RetryDelay < 0 {
		config.RetryDelay = 0
	}
	if config.StatusRetryBase <= 0 {
		config.StatusRetryBase = defaults.StatusRetryBase
	}

	return &Dispatcher{
		store:       requests,
		payloads:    payloads,
		coordinator: coordinator,
		emitter:     emitter,
		config:      config,
		logger:      logger.With("component", "dispatcher"),
	}
}

var _ DeliveryHandler = (*Dispatcher)(nil)

// Handle processes one delivery and settles it with Ack or Nack.
// The returned error is informational; the delivery is always settled.
func (d *Dispatcher) Handle(ctx context.Context, delivery queue.Delivery) error {
	job := delivery.Job()
	log := logger.FromContextOrDefault(ctx, d.logger).With(
		"request_id", job.RequestID,
		"delivery_attempt", delivery.Attempt(),
	)
	ctx = logger.WithLogger(ctx, log)

	req, err := d.store.GetRequest(ctx, job.RequestID)
	if err != nil {
		if errors.Is(err, store.ErrRequestNotFound) {
			log.Warn("dropping job for unknown request")
			return d.ack(ctx, delivery)
		}
		return d.infrastructureFailure(ctx, delivery, delivery.Attempt(), fmt.Errorf("load request: %w", err))
	}

	if req.Status.IsTerminal() {
		log.Info("request already finished, skipping redelivery", "status", req.Status)
		return d.ack(ctx, delivery)
	}

	// the store counts attempts durably, so the in-memory queue losing its
	// counter on restart does not grant extra attempts
	attempt := max(delivery.Attempt(), req.Attempts+1)

	if err := d.writeStatus(ctx, req.ID, domain.RequestStatusProcessing, ""); err != nil {
		switch {
		case errors.Is(err, store.ErrTerminalStatus):
			return d.ack(ctx, delivery)
		case errors.Is(err, store.ErrRequestNotFound):
			log.Warn("request removed before processing, dropping job")
			return d.ack(ctx, delivery)
		}
		log.Error("failed to mark request processing", "error", err)
		return d.infrastructureFailure(ctx, delivery, attempt, fmt.Errorf("mark processing: %w", err))
	}
	log.Info("processing request", "attempt", attempt)

	payloadRef := req.PayloadRef
	if payloadRef == "" {
		payloadRef = job.PayloadRef
	}

	payload, err := d.payloads.Get(ctx, payloadRef)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			log.Error("payload missing", "payload_ref", payloadRef)
			return d.finish(ctx, delivery, req, domain.RequestStatusFailed, ReasonPayloadMissing)
		}
		return d.infrastructureFailure(ctx, delivery, attempt, fmt.Errorf("read payload: %w", err))
	}

	rows, err := batch.Parse(payload)
	if err != nil {
		log.Warn("payload could not be parsed", "error", err)
		return d.finish(ctx, delivery, req, domain.RequestStatusFailed, ReasonUnparseable)
	}

	runCtx := ctx
	if d.config.BatchTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.config.BatchTimeout)
		defer cancel()
	}
	results := d.coordinator.Run(runCtx, req.ID, rows)

	if ctx.Err() != nil {
		// shutting down; outcomes gathered under a cancelled context are not trustworthy
		return d.nack(ctx, delivery, 0, ctx.Err())
	}

	if err := d.store.UpsertRowResults(ctx, req.ID, results); err != nil {
		return d.infrastructureFailure(ctx, delivery, attempt, fmt.Errorf("record row results: %w", err))
	}

	return d.finish(ctx, delivery, req, domain.RequestStatusCompleted, "")
}

// finish writes a terminal status, acknowledges the delivery, releases the
// payload and emits the outcome event.
func (d *Dispatcher) finish(
	ctx context.Context,
	delivery queue.Delivery,
	req *domain.Request,
	status domain.RequestStatus,
	reason string,
) error {
	log := logger.FromContextOrDefault(ctx, d.logger)

	if err := d.writeStatus(ctx, req.ID, status, reason); err != nil {
		switch {
		case errors.Is(err, store.ErrTerminalStatus):
			log.Warn("request reached a terminal status concurrently")
			return d.ack(ctx, delivery)
		case errors.Is(err, store.ErrRequestNotFound), errors.Is(err, store.ErrInvalidEntity):
			// no redelivery can make this write succeed
			log.Error("terminal status rejected, dropping job", "status", status, "error", err)
			if ackErr := d.ack(ctx, delivery); ackErr != nil {
				return errors.Join(err, ackErr)
			}
			return err
		}
		log.Error("failed to write terminal status", "status", status, "error", err)
		return d.nack(ctx, delivery, d.config.RetryDelay, err)
	}

	log.Info("request finished", "status", status, "reason", reason)
	ackErr := d.ack(ctx, delivery)

	settleCtx, cancel := settleContext(ctx)
	defer cancel()
	if err := d.payloads.Delete(settleCtx, req.PayloadRef); err != nil {
		log.Warn("failed to release payload", "payload_ref", req.PayloadRef, "error", err)
	}

	if d.emitter != nil {
		event := events.NewRequestEvent(req.ID, status, reason)
		if err := d.emitter.EmitEvent(settleCtx, event); err != nil {
			log.Warn("failed to emit request event", "event_type", event.Type, "error", err)
		}
	}

	return ackErr
}

// infrastructureFailure redelivers the job while attempts remain and fails
// the request once they are used up.
func (d *Dispatcher) infrastructureFailure(
	ctx context.Context,
	delivery queue.Delivery,
	attempt int,
	cause error,
) error {
	log := logger.FromContextOrDefault(ctx, d.logger)

	if ctx.Err() != nil {
		return d.nack(ctx, delivery, 0, cause)
	}

	if attempt < d.config.MaxAttempts {
		delay := d.retryDelay(attempt)
		log.Warn("infrastructure error, redelivering",
			"attempt", attempt,
			"max_attempts", d.config.MaxAttempts,
			"retry_in", delay.String(),
			"error", cause)
		return d.nack(ctx, delivery, delay, cause)
	}

	log.Error("infrastructure error, attempts exhausted",
		"attempt", attempt,
		"error", cause)

	req, err := d.store.GetRequest(ctx, delivery.Job().RequestID)
	if err != nil {
		req = &domain.Request{ID: delivery.Job().RequestID, PayloadRef: delivery.Job().PayloadRef}
	}
	if err := d.finish(ctx, delivery, req, domain.RequestStatusFailed, ReasonInfrastructure); err != nil {
		return err
	}
	return cause
}

// writeStatus retries transient store errors with exponential backoff.
func (d *Dispatcher) writeStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.RequestStatus,
	reason string,
) error {
	backoff := retry.WithMaxRetries(d.config.StatusRetries, retry.NewExponential(d.config.StatusRetryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := d.store.UpdateStatus(ctx, id, status, reason)
		if err == nil {
			return nil
		}
		if errors.Is(err, store.ErrTerminalStatus) ||
			errors.Is(err, store.ErrRequestNotFound) ||
			errors.Is(err, store.ErrInvalidEntity) {
			return err
		}
		return retry.RetryableError(err)
	})
}

func (d *Dispatcher) retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(attempt) * d.config.RetryDelay
}

func (d *Dispatcher) ack(ctx context.Context, delivery queue.Delivery) error {
	settleCtx, cancel := settleContext(ctx)
	defer cancel()
	if err := delivery.Ack(settleCtx); err != nil {
		logger.FromContextOrDefault(ctx, d.logger).Error("failed to ack delivery", "error", err)
		return fmt.Errorf("ack delivery: %w", err)
	}
	return nil
}

func (d *Dispatcher) nack(ctx context.Context, delivery queue.Delivery, delay time.Duration, cause error) error {
	settleCtx, cancel := settleContext(ctx)
	defer cancel()
	if err := delivery.Nack(settleCtx, delay); err != nil {
		logger.FromContextOrDefault(ctx, d.logger).Error("failed to nack delivery", "error", err)
		return fmt.Errorf("nack delivery: %w", err)
	}
	return cause
}

// settleContext detaches from ctx cancellation so a delivery can still be
// settled during shutdown.
func settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}
