package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// fullRetryDelay is how long a Nacked job waits before retrying when the
// buffer is full at redelivery time.
const fullRetryDelay = 100 * time.Millisecond

type entry struct {
	job     Job
	attempt int
}

// MemoryQueue implements Queue on a buffered channel. Jobs do not survive
// a restart; start-up recovery re-enqueues unfinished requests from the
// record store instead.
type MemoryQueue struct {
	jobs   chan entry
	done   chan struct{}
	logger *slog.Logger

	mu      sync.Mutex
	tracked map[uuid.UUID]struct{}
	closed  bool
}

// NewMemoryQueue creates a new queue with the specified buffer size
func NewMemoryQueue(size int, logger *slog.Logger) *MemoryQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryQueue{
		jobs:    make(chan entry, size),
		done:    make(chan struct{}),
		logger:  logger.With("component", "memory_queue"),
		tracked: make(map[uuid.UUID]struct{}),
	}
}

var _ Queue = (*MemoryQueue)(nil)

// Enqueue implements Queue. Returns ErrQueueFull if the buffer is full.
func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if _, ok := q.tracked[job.RequestID]; ok {
		q.logger.Debug("job already queued or in flight",
			"request_id", job.RequestID)
		return nil
	}

	select {
	case q.jobs <- entry{job: job, attempt: 1}:
		q.tracked[job.RequestID] = struct{}{}
		q.logger.Debug("job enqueued",
			"request_id", job.RequestID,
			"queue_len", len(q.jobs),
			"queue_cap", cap(q.jobs))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.jobs))
	}
}

// Receive implements Queue.
func (q *MemoryQueue) Receive(ctx context.Context) (Delivery, error) {
	// prefer reporting closure over draining remaining jobs
	select {
	case <-q.done:
		return nil, ErrQueueClosed
	default:
	}

	select {
	case e := <-q.jobs:
		return &memoryDelivery{queue: q, entry: e}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.done:
		return nil, ErrQueueClosed
	}
}

// Close implements Queue. Jobs still buffered are dropped.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.done)
		q.logger.Info("job queue closed")
	}
	return nil
}

// Len returns the number of buffered jobs.
func (q *MemoryQueue) Len() int {
	return len(q.jobs)
}

func (q *MemoryQueue) release(id uuid.UUID) {
	q.mu.Lock()
	delete(q.tracked, id)
	q.mu.Unlock()
}

// redeliver puts e back on the channel, keeping its request ID tracked.
func (q *MemoryQueue) redeliver(e entry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		delete(q.tracked, e.job.RequestID)
		return
	}

	select {
	case q.jobs <- e:
		q.logger.Debug("job redelivered",
			"request_id", e.job.RequestID,
			"attempt", e.attempt)
	default:
		time.AfterFunc(fullRetryDelay, func() { q.redeliver(e) })
	}
}

type memoryDelivery struct {
	queue *MemoryQueue
	entry entry

	mu      sync.Mutex
	settled bool
}

func (d *memoryDelivery) Job() Job     { return d.entry.job }
func (d *memoryDelivery) Attempt() int { return d.entry.attempt }

func (d *memoryDelivery) settle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.settled {
		return ErrAlreadySettled
	}
	d.settled = true
	return nil
}

func (d *memoryDelivery) Ack(ctx context.Context) error {
	if err := d.settle(); err != nil {
		return err
	}
	d.queue.release(d.entry.job.RequestID)
	return nil
}

func (d *memoryDelivery) Nack(ctx context.Context, delay time.Duration) error {
	if err := d.settle(); err != nil {
		return err
	}

	next := entry{job: d.entry.job, attempt: d.entry.attempt + 1}
	if delay <= 0 {
		d.queue.redeliver(next)
		return nil
	}
	time.AfterFunc(delay, func() { d.queue.redeliver(next) })
	return nil
}
