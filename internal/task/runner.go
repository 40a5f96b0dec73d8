package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/imgbatch-api/internal/domain"
	"github.com/phrazzld/imgbatch-api/internal/queue"
	"github.com/phrazzld/imgbatch-api/internal/store"
)

// receiveErrorBackoff is how long a worker waits after a failed Receive.
const receiveErrorBackoff = time.Second

// RunnerConfig holds configuration for the runner
type RunnerConfig struct {
	// WorkerCount determines how many deliveries are processed concurrently
	WorkerCount int

	// StuckRequestAge defines how long a request can sit in PENDING or
	// PROCESSING before it is considered stuck and re-enqueued
	StuckRequestAge time.Duration

	// StuckCheckInterval defines how often to check for stuck requests
	// If zero, defaults to 5 minutes
	StuckCheckInterval time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:        1,
		StuckRequestAge:    30 * time.Minute,
		StuckCheckInterval: 5 * time.Minute,
	}
}

// Runner manages background request processing
type Runner struct {
	store      store.RequestStore
	queue      queue.Queue
	handler    DeliveryHandler
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	config     RunnerConfig
	logger     *slog.Logger
}

// NewRunner creates a new Runner
func NewRunner(
	requests store.RequestStore,
	q queue.Queue,
	handler DeliveryHandler,
	config RunnerConfig,
	logger *slog.Logger,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultRunnerConfig()
	if config.WorkerCount <= 0 {
		config.WorkerCount = defaults.WorkerCount
	}
	if config.StuckCheckInterval <= 0 {
		config.StuckCheckInterval = defaults.StuckCheckInterval
	}
	if config.StuckRequestAge <= 0 {
		config.StuckRequestAge = defaults.StuckRequestAge
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		store:      requests,
		queue:      q,
		handler:    handler,
		ctx:        ctx,
		cancelFunc: cancel,
		config:     config,
		logger:     logger.With("component", "runner"),
	}
}

// Start recovers unfinished requests and begins processing deliveries
func (r *Runner) Start() error {
	if err := r.Recover(r.ctx); err != nil {
		return fmt.Errorf("failed to recover requests: %w", err)
	}

	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.wg.Add(1)
	go r.stuckRequestMonitor()

	r.logger.Info("runner started", "worker_count", r.config.WorkerCount)
	return nil
}

// Stop cancels in-flight work and waits for the workers to exit.
// Interrupted deliveries are Nacked and picked up again later.
func (r *Runner) Stop() {
	r.cancelFunc()
	r.wg.Wait()
	r.logger.Info("runner stopped")
}

// Recover re-enqueues every PENDING or PROCESSING request. The queue
// ignores jobs that are already queued or in flight.
func (r *Runner) Recover(ctx context.Context) error {
	requeued, err := r.requeue(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	r.logger.Info("recovered unfinished requests", "count", requeued)
	return nil
}

// requeue enqueues unfinished requests last updated before cutoff.
func (r *Runner) requeue(ctx context.Context, cutoff time.Time) (int, error) {
	requests, err := r.store.ListRequestsByStatus(ctx,
		[]domain.RequestStatus{domain.RequestStatusPending, domain.RequestStatusProcessing},
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to list unfinished requests: %w", err)
	}

	requeued := 0
	for _, req := range requests {
		job := queue.Job{RequestID: req.ID, PayloadRef: req.PayloadRef}
		if err := r.queue.Enqueue(ctx, job); err != nil {
			r.logger.Error("failed to requeue request",
				"request_id", req.ID,
				"status", req.Status,
				"error", err)
			continue
		}
		requeued++
	}
	return requeued, nil
}

// worker receives deliveries until the runner stops or the queue closes
func (r *Runner) worker(id int) {
	defer r.wg.Done()

	log := r.logger.With("worker_id", id)
	log.Debug("starting worker")

	for {
		delivery, err := r.queue.Receive(r.ctx)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) || r.ctx.Err() != nil {
				log.Debug("stopping worker")
				return
			}
			log.Error("failed to receive job", "error", err)
			select {
			case <-r.ctx.Done():
				return
			case <-time.After(receiveErrorBackoff):
			}
			continue
		}

		if err := r.handler.Handle(r.ctx, delivery); err != nil {
			log.Warn("delivery finished with error",
				"request_id", delivery.Job().RequestID,
				"error", err)
		}
	}
}

// stuckRequestMonitor periodically re-enqueues requests that have not
// moved for longer than StuckRequestAge
func (r *Runner) stuckRequestMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-r.config.StuckRequestAge)
			n, err := r.requeue(r.ctx, cutoff)
			if err != nil {
				r.logger.Error("failed to check for stuck requests", "error", err)
				continue
			}
			if n > 0 {
				r.logger.Info("requeued stuck requests", "count", n)
			}
		}
	}
}
