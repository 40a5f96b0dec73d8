package task

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/imgbatch-api/internal/domain"
	"github.com/phrazzld/imgbatch-api/internal/events"
	"github.com/phrazzld/imgbatch-api/internal/imaging"
	"github.com/phrazzld/imgbatch-api/internal/platform/blob"
	"github.com/phrazzld/imgbatch-api/internal/queue"
	"github.com/phrazzld/imgbatch-api/internal/store"
	"github.com/phrazzld/imgbatch-api/internal/store/memstore"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// stubProcessor resolves URLs without network access. URLs containing
// "bad" fail with a fetch error; every call is counted and the highest
// number of concurrent calls is tracked.
type stubProcessor struct {
	delay time.Duration
	// onProcess, when set, runs at the start of every call.
	onProcess func(key, rawURL string)

	calls       atomic.Int64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64

	mu   sync.Mutex
	keys map[string]string
}

func newStubProcessor() *stubProcessor {
	return &stubProcessor{keys: make(map[string]string)}
}

func (p *stubProcessor) Process(ctx context.Context, key string, rawURL string) (string, error) {
	p.calls.Add(1)
	if p.onProcess != nil {
		p.onProcess(key, rawURL)
	}
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		current := p.maxInFlight.Load()
		if n <= current || p.maxInFlight.CompareAndSwap(current, n) {
			break
		}
	}

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", &imaging.Error{Kind: domain.ErrorKindFetch, URL: rawURL, Err: ctx.Err()}
		}
	}

	p.mu.Lock()
	p.keys[rawURL] = key
	p.mu.Unlock()

	if strings.Contains(rawURL, "bad") {
		return "", &imaging.Error{Kind: domain.ErrorKindFetch, URL: rawURL, Err: errors.New("timeout")}
	}
	return blob.OutputKey(key), nil
}

func (p *stubProcessor) keyFor(rawURL string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.keys[rawURL]
}

// fakeDelivery records how it was settled.
type fakeDelivery struct {
	job     queue.Job
	attempt int

	acked    bool
	nacked   bool
	delay    time.Duration
	settleCh chan struct{}
}

func newFakeDelivery(job queue.Job, attempt int) *fakeDelivery {
	return &fakeDelivery{job: job, attempt: attempt, settleCh: make(chan struct{}, 1)}
}

func (d *fakeDelivery) Job() queue.Job { return d.job }
func (d *fakeDelivery) Attempt() int   { return d.attempt }

func (d *fakeDelivery) Ack(ctx context.Context) error {
	d.acked = true
	d.settleCh <- struct{}{}
	return nil
}

func (d *fakeDelivery) Nack(ctx context.Context, delay time.Duration) error {
	d.nacked = true
	d.delay = delay
	d.settleCh <- struct{}{}
	return nil
}

// flakyStore fails UpsertRowResults while failUpserts is positive, and
// fails UpdateStatus writes of failStatus while failStatusWrites is
// positive. statusErr overrides the transient error returned for those.
type flakyStore struct {
	*memstore.RequestStore
	failUpserts atomic.Int64

	failStatus       domain.RequestStatus
	failStatusWrites atomic.Int64
	statusErr        error
	statusWrites     atomic.Int64
}

func (s *flakyStore) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.RequestStatus,
	errorMessage string,
) error {
	s.statusWrites.Add(1)
	if status == s.failStatus && s.failStatusWrites.Load() > 0 {
		s.failStatusWrites.Add(-1)
		if s.statusErr != nil {
			return s.statusErr
		}
		return store.NewStoreError("request", "update_status", "connection reset", store.ErrTransactionFailed)
	}
	return s.RequestStore.UpdateStatus(ctx, id, status, errorMessage)
}

func (s *flakyStore) UpsertRowResults(ctx context.Context, id uuid.UUID, results []domain.RowResult) error {
	if s.failUpserts.Load() > 0 {
		s.failUpserts.Add(-1)
		return store.NewStoreError("request", "upsert_row_results", "connection reset", store.ErrTransactionFailed)
	}
	return s.RequestStore.UpsertRowResults(ctx, id, results)
}

// recordingEmitter collects emitted events.
type recordingEmitter struct {
	mu     sync.Mutex
	events []string
}

func (e *recordingEmitter) EmitEvent(ctx context.Context, event *events.RequestEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, string(event.Status))
	return nil
}

func (e *recordingEmitter) statuses() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

type pipeline struct {
	store     *flakyStore
	payloads  *blob.LocalStore
	processor *stubProcessor
	emitter   *recordingEmitter
	dispatch  *Dispatcher
}

func newPipeline(t *testing.T, limit int) *pipeline {
	t.Helper()
	logger := setupTestLogger()

	payloads, err := blob.NewLocalStoreWithFs(afero.NewMemMapFs(), "/data", logger)
	require.NoError(t, err)

	p := &pipeline{
		store:     &flakyStore{RequestStore: memstore.NewRequestStore(logger)},
		payloads:  payloads,
		processor: newStubProcessor(),
		emitter:   &recordingEmitter{},
	}

	p.dispatch = NewDispatcher(
		p.store,
		payloads,
		NewCoordinator(p.processor, limit, logger),
		p.emitter,
		DispatcherConfig{
			MaxAttempts:     3,
			RetryDelay:      time.Millisecond,
			StatusRetries:   1,
			StatusRetryBase: time.Millisecond,
		},
		logger,
	)
	return p
}

// submit stores a payload and a PENDING request, returning the job.
func (p *pipeline) submit(t *testing.T, payload string) queue.Job {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	key := blob.PayloadKey(id.String())
	_, err := p.payloads.Put(ctx, key, []byte(payload), "text/csv")
	require.NoError(t, err)

	req, err := domain.NewRequest(id, key)
	require.NoError(t, err)
	require.NoError(t, p.store.CreateRequest(ctx, req))
	return queue.Job{RequestID: id, PayloadRef: key}
}
