package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors returned by queue implementations
var (
	ErrQueueClosed    = errors.New("job queue is closed")
	ErrQueueFull      = errors.New("job queue is full")
	ErrAlreadySettled = errors.New("delivery already acknowledged")
)

// Job is the message placed on the queue for one submitted request.
type Job struct {
	RequestID  uuid.UUID `json:"request_id"`
	PayloadRef string    `json:"payload_ref"`
}

// Delivery is one handout of a Job to a consumer. Exactly one of Ack or
// Nack must be called; a delivery that is never settled is redelivered
// when the implementation's lease expires.
type Delivery interface {
	// Job returns the delivered message.
	Job() Job

	// Attempt returns the 1-based number of times this job has been handed out.
	Attempt() int

	// Ack removes the job from the queue.
	Ack(ctx context.Context) error

	// Nack returns the job to the queue, to be delivered again after delay.
	Nack(ctx context.Context, delay time.Duration) error
}

// Queue is an at-least-once job queue.
//
// Enqueueing a job whose request ID is already queued or in flight is a
// no-op, so at most one delivery per request is outstanding at a time.
type Queue interface {
	// Enqueue adds a job to the queue.
	Enqueue(ctx context.Context, job Job) error

	// Receive blocks until a job is available, ctx is done, or the queue
	// is closed (ErrQueueClosed).
	Receive(ctx context.Context) (Delivery, error)

	// Close stops handing out jobs and unblocks pending Receive calls.
	Close() error
}
