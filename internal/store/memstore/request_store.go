// Package memstore provides an in-memory store.RequestStore used when no
// database is configured and in tests.
package memstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/imgbatch-api/internal/domain"
	"github.com/phrazzld/imgbatch-api/internal/store"
)

// RequestStore keeps requests and row results in maps guarded by a mutex.
// Values are copied on the way in and out so callers never share memory
// with the store.
type RequestStore struct {
	mu       sync.RWMutex
	requests map[uuid.UUID]domain.Request
	results  map[uuid.UUID]map[int]domain.RowResult
	logger   *slog.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// NewRequestStore creates an empty RequestStore.
func NewRequestStore(logger *slog.Logger) *RequestStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestStore{
		requests: make(map[uuid.UUID]domain.Request),
		results:  make(map[uuid.UUID]map[int]domain.RowResult),
		logger:   logger.With("component", "memory_request_store"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

var _ store.RequestStore = (*RequestStore)(nil)

// CreateRequest implements store.RequestStore.
func (s *RequestStore) CreateRequest(ctx context.Context, req *domain.Request) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[req.ID]; exists {
		return store.ErrRequestExists
	}
	s.requests[req.ID] = *req
	return nil
}

// GetRequest implements store.RequestStore.
func (s *RequestStore) GetRequest(ctx context.Context, id uuid.UUID) (*domain.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, store.ErrRequestNotFound
	}
	return &req, nil
}

// UpdateStatus implements store.RequestStore.
func (s *RequestStore) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.RequestStatus,
	errorMessage string,
) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, domain.ErrInvalidRequestStatus)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return store.ErrRequestNotFound
	}
	if req.Status.IsTerminal() {
		return store.ErrTerminalStatus
	}

	req.Status = status
	req.ErrorMessage = errorMessage
	if status == domain.RequestStatusProcessing {
		req.Attempts++
	}
	req.UpdatedAt = s.now()
	s.requests[id] = req

	s.logger.DebugContext(ctx, "request status updated",
		slog.String("request_id", id.String()),
		slog.String("status", string(status)))
	return nil
}

// ListRequestsByStatus implements store.RequestStore.
func (s *RequestStore) ListRequestsByStatus(
	ctx context.Context,
	statuses []domain.RequestStatus,
	updatedBefore time.Time,
) ([]*domain.Request, error) {
	wanted := make(map[domain.RequestStatus]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Request
	for _, req := range s.requests {
		if !wanted[req.Status] || !req.UpdatedAt.Before(updatedBefore) {
			continue
		}
		r := req
		out = append(out, &r)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return out, nil
}

// UpsertRowResults implements store.RequestStore. All results are
// validated before any is written, so the batch is applied atomically.
func (s *RequestStore) UpsertRowResults(ctx context.Context, requestID uuid.UUID, results []domain.RowResult) error {
	for i := range results {
		if results[i].RequestID != requestID {
			return fmt.Errorf("%w: row result belongs to request %s", store.ErrInvalidEntity, results[i].RequestID)
		}
		if err := results[i].Validate(); err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[requestID]; !ok {
		return store.ErrRequestNotFound
	}

	rows, ok := s.results[requestID]
	if !ok {
		rows = make(map[int]domain.RowResult, len(results))
		s.results[requestID] = rows
	}
	for _, r := range results {
		rows[r.Ordinal] = cloneRowResult(r)
	}
	return nil
}

// GetRowResults implements store.RequestStore.
func (s *RequestStore) GetRowResults(ctx context.Context, requestID uuid.UUID) ([]domain.RowResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.results[requestID]
	out := make([]domain.RowResult, 0, len(rows))
	for _, r := range rows {
		out = append(out, cloneRowResult(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

func cloneRowResult(r domain.RowResult) domain.RowResult {
	r.InputURLs = append([]string(nil), r.InputURLs...)
	r.OutputRefs = append([]string(nil), r.OutputRefs...)
	r.Outcomes = append([]domain.URLOutcome(nil), r.Outcomes...)
	return r
}
