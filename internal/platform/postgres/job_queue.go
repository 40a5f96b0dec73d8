package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/imgbatch-api/internal/queue"
	"github.com/phrazzld/imgbatch-api/internal/store"
)

// Default timings for the Postgres job queue.
const (
	DefaultLeaseDuration = 2 * time.Minute
	DefaultPollInterval  = time.Second
)

// JobQueueConfig tunes the lease and polling behaviour of PostgresJobQueue.
type JobQueueConfig struct {
	// LeaseDuration is how long a received job stays invisible to other
	// consumers without a heartbeat.
	LeaseDuration time.Duration

	// PollInterval is the wait between empty dequeue attempts.
	PollInterval time.Duration
}

// PostgresJobQueue implements queue.Queue on the jobs table. A received job
// is leased rather than removed; an unacknowledged job becomes visible again
// when its lease runs out, which gives at-least-once delivery across
// process restarts.
type PostgresJobQueue struct {
	db     *sql.DB
	cfg    JobQueueConfig
	logger *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// NewPostgresJobQueue creates a queue backed by db. Zero config values fall
// back to the package defaults.
func NewPostgresJobQueue(db *sql.DB, cfg JobQueueConfig, logger *slog.Logger) *PostgresJobQueue {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = DefaultLeaseDuration
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	return &PostgresJobQueue{
		db:     db,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "job_queue")),
		done:   make(chan struct{}),
	}
}

var _ queue.Queue = (*PostgresJobQueue)(nil)

// Enqueue implements queue.Queue. A job for a request that already has a
// row in the table is left untouched.
func (q *PostgresJobQueue) Enqueue(ctx context.Context, job queue.Job) error {
	select {
	case <-q.done:
		return queue.ErrQueueClosed
	default:
	}

	query := `
		INSERT INTO jobs (request_id, payload_ref, attempts, available_at, created_at)
		VALUES ($1, $2, 0, NOW(), NOW())
		ON CONFLICT (request_id) DO NOTHING
	`
	result, err := q.db.ExecContext(ctx, query, job.RequestID, job.PayloadRef)
	if err != nil {
		q.logger.Error("failed to enqueue job",
			slog.String("request_id", job.RequestID.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		q.logger.Debug("job already queued or in flight",
			slog.String("request_id", job.RequestID.String()))
		return nil
	}

	q.logger.Debug("job enqueued", slog.String("request_id", job.RequestID.String()))
	return nil
}

// Receive implements queue.Queue. It polls the table until a job can be
// leased.
func (q *PostgresJobQueue) Receive(ctx context.Context) (queue.Delivery, error) {
	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.done:
			return nil, queue.ErrQueueClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		d, err := q.dequeue(ctx)
		if err != nil {
			return nil, err
		}
		if d != nil {
			return d, nil
		}

		select {
		case <-ticker.C:
		case <-q.done:
			return nil, queue.ErrQueueClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// dequeue leases the oldest available job, or returns nil when none is ready.
func (q *PostgresJobQueue) dequeue(ctx context.Context) (*pgDelivery, error) {
	query := `
		UPDATE jobs
		SET leased_until = NOW() + make_interval(secs => $1), attempts = attempts + 1
		WHERE request_id = (
			SELECT request_id FROM jobs
			WHERE available_at <= NOW() AND (leased_until IS NULL OR leased_until < NOW())
			ORDER BY available_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING request_id, payload_ref, attempts
	`

	var job queue.Job
	var attempts int
	err := q.db.QueryRowContext(ctx, query, q.cfg.LeaseDuration.Seconds()).
		Scan(&job.RequestID, &job.PayloadRef, &attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		q.logger.Error("failed to dequeue job", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to dequeue job: %w", MapError(err))
	}

	q.logger.Debug("job leased",
		slog.String("request_id", job.RequestID.String()),
		slog.Int("attempt", attempts))

	d := &pgDelivery{queue: q, job: job, attempts: attempts}
	d.startHeartbeat()
	return d, nil
}

// Close implements queue.Queue. Leased jobs stay in the table and are
// handed out again once their lease expires.
func (q *PostgresJobQueue) Close() error {
	q.closeOnce.Do(func() {
		close(q.done)
		q.logger.Info("job queue closed")
	})
	return nil
}

type pgDelivery struct {
	queue    *PostgresJobQueue
	job      queue.Job
	attempts int

	mu      sync.Mutex
	settled bool
	stop    context.CancelFunc
	stopped chan struct{}
}

func (d *pgDelivery) Job() queue.Job { return d.job }
func (d *pgDelivery) Attempt() int   { return d.attempts }

// startHeartbeat extends the lease every third of its duration until the
// delivery is settled or the queue closes.
func (d *pgDelivery) startHeartbeat() {
	ctx, cancel := context.WithCancel(context.Background())
	d.stop = cancel
	d.stopped = make(chan struct{})

	interval := d.queue.cfg.LeaseDuration / 3
	go func() {
		defer close(d.stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.queue.done:
				return
			case <-ticker.C:
				err := d.extend(ctx)
				if err == nil || ctx.Err() != nil {
					continue
				}
				if errors.Is(err, store.ErrNotFound) {
					// redelivered elsewhere; keep the other consumer's lease
					d.queue.logger.Warn("job lease lost",
						slog.String("request_id", d.job.RequestID.String()),
						slog.Int("attempt", d.attempts))
					return
				}
				d.queue.logger.Warn("failed to extend job lease",
					slog.String("request_id", d.job.RequestID.String()),
					slog.String("error", err.Error()))
			}
		}
	}()
}

func (d *pgDelivery) extend(ctx context.Context) error {
	query := `
		UPDATE jobs SET leased_until = NOW() + make_interval(secs => $3)
		WHERE request_id = $1 AND attempts = $2
	`
	res, err := d.queue.db.ExecContext(ctx, query,
		d.job.RequestID, d.attempts, d.queue.cfg.LeaseDuration.Seconds())
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(res, "job lease")
}

func (d *pgDelivery) settle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.settled {
		return queue.ErrAlreadySettled
	}
	d.settled = true
	d.stop()
	<-d.stopped
	return nil
}

// Ack deletes the job. The attempts guard keeps a consumer whose lease
// already expired from removing a later delivery.
func (d *pgDelivery) Ack(ctx context.Context) error {
	if err := d.settle(); err != nil {
		return err
	}

	_, err := d.queue.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE request_id = $1 AND attempts = $2`,
		d.job.RequestID, d.attempts)
	if err != nil {
		return fmt.Errorf("failed to ack job %s: %w", d.job.RequestID, MapError(err))
	}
	return nil
}

// Nack releases the lease and makes the job available again after delay.
func (d *pgDelivery) Nack(ctx context.Context, delay time.Duration) error {
	if err := d.settle(); err != nil {
		return err
	}
	if delay < 0 {
		delay = 0
	}

	query := `
		UPDATE jobs
		SET leased_until = NULL, available_at = NOW() + make_interval(secs => $3)
		WHERE request_id = $1 AND attempts = $2
	`
	_, err := d.queue.db.ExecContext(ctx, query, d.job.RequestID, d.attempts, delay.Seconds())
	if err != nil {
		return fmt.Errorf("failed to nack job %s: %w", d.job.RequestID, MapError(err))
	}
	return nil
}
