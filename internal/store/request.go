package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/imgbatch-api/internal/domain"
)

// RequestStore persists batch requests and their per-row results.
//
// Implementations must be safe for concurrent use. Status updates on a
// request that already reached a terminal status fail with
// ErrTerminalStatus, so a terminal status is written at most once.
type RequestStore interface {
	// CreateRequest saves a new request.
	// Returns ErrRequestExists if the ID is already taken, or
	// ErrInvalidEntity if the request fails validation.
	CreateRequest(ctx context.Context, req *domain.Request) error

	// GetRequest retrieves a request by ID.
	// Returns ErrRequestNotFound if no such request exists.
	GetRequest(ctx context.Context, id uuid.UUID) (*domain.Request, error)

	// UpdateStatus sets the status and error message of a request.
	// Moving to PROCESSING also increments the attempt counter.
	// Returns ErrRequestNotFound or ErrTerminalStatus.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.RequestStatus, errorMessage string) error

	// ListRequestsByStatus returns requests in any of the given statuses
	// whose last update is older than updatedBefore, oldest first.
	ListRequestsByStatus(
		ctx context.Context,
		statuses []domain.RequestStatus,
		updatedBefore time.Time,
	) ([]*domain.Request, error)

	// UpsertRowResults records the results of a batch atomically. A result
	// replaces any earlier result with the same request ID and ordinal.
	UpsertRowResults(ctx context.Context, requestID uuid.UUID, results []domain.RowResult) error

	// GetRowResults returns the recorded results of a request ordered by ordinal.
	GetRowResults(ctx context.Context, requestID uuid.UUID) ([]domain.RowResult, error)
}
