package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/imgbatch-api/internal/domain"
	"github.com/phrazzld/imgbatch-api/internal/platform/blob"
	"github.com/phrazzld/imgbatch-api/internal/platform/logger"
	"github.com/phrazzld/imgbatch-api/internal/queue"
	"github.com/phrazzld/imgbatch-api/internal/store"
)

// DefaultMaxPayloadBytes caps a submitted payload when no limit is configured.
const DefaultMaxPayloadBytes int64 = 10 << 20

// PayloadStore stores uploaded payloads.
type PayloadStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// StatusView is the externally visible state of a request.
type StatusView struct {
	RequestID    uuid.UUID            `json:"request_id"`
	Status       domain.RequestStatus `json:"status"`
	ErrorMessage string               `json:"error_message,omitempty"`
	Attempts     int                  `json:"attempts"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
	Results      []domain.RowResult   `json:"results"`
}

// RequestService provides the submission and status operations
type RequestService interface {
	// Submit stores payload and enqueues it for processing, returning the
	// new request ID. Returns ErrInvalidPayload for an empty payload.
	Submit(ctx context.Context, payload []byte) (uuid.UUID, error)

	// GetStatus returns the current state of a request and its row results.
	// Returns ErrRequestNotFound for unknown IDs.
	GetStatus(ctx context.Context, id uuid.UUID) (*StatusView, error)
}

// RequestServiceConfig holds limits enforced by the service.
type RequestServiceConfig struct {
	MaxPayloadBytes int64
}

// requestServiceImpl implements the RequestService interface
type requestServiceImpl struct {
	requests store.RequestStore
	payloads PayloadStore
	queue    queue.Queue
	config   RequestServiceConfig
	logger   *slog.Logger
}

// NewRequestService creates a new RequestService
// It returns an error if any of the required dependencies are nil.
func NewRequestService(
	requests store.RequestStore,
	payloads PayloadStore,
	q queue.Queue,
	config RequestServiceConfig,
	logger *slog.Logger,
) (RequestService, error) {
	if requests == nil {
		return nil, &ServiceError{Service: "request", Op: "create_service", Err: errors.New("request store cannot be nil")}
	}
	if payloads == nil {
		return nil, &ServiceError{Service: "request", Op: "create_service", Err: errors.New("payload store cannot be nil")}
	}
	if q == nil {
		return nil, &ServiceError{Service: "request", Op: "create_service", Err: errors.New("queue cannot be nil")}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxPayloadBytes <= 0 {
		config.MaxPayloadBytes = DefaultMaxPayloadBytes
	}

	return &requestServiceImpl{
		requests: requests,
		payloads: payloads,
		queue:    q,
		config:   config,
		logger:   logger.With("component", "request_service"),
	}, nil
}

// Submit implements RequestService.Submit
func (s *requestServiceImpl) Submit(ctx context.Context, payload []byte) (uuid.UUID, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if len(bytes.TrimSpace(payload)) == 0 {
		return uuid.Nil, ErrInvalidPayload
	}
	if int64(len(payload)) > s.config.MaxPayloadBytes {
		return uuid.Nil, ErrPayloadTooLarge
	}

	id := uuid.New()
	key := blob.PayloadKey(id.String())
	log = log.With("request_id", id)

	if _, err := s.payloads.Put(ctx, key, payload, "text/csv"); err != nil {
		log.Error("failed to store payload", "error", err)
		return uuid.Nil, NewServiceError("request", "submit", err)
	}

	req, err := domain.NewRequest(id, key)
	if err != nil {
		return uuid.Nil, NewServiceError("request", "submit", err)
	}

	if err := s.requests.CreateRequest(ctx, req); err != nil {
		log.Error("failed to record request", "error", err)
		if delErr := s.payloads.Delete(ctx, key); delErr != nil {
			log.Warn("failed to remove orphaned payload", "payload_ref", key, "error", delErr)
		}
		return uuid.Nil, NewServiceError("request", "submit", err)
	}

	// the request is durable now; a lost enqueue is recovered by the
	// stale-request monitor
	if err := s.queue.Enqueue(ctx, queue.Job{RequestID: id, PayloadRef: key}); err != nil {
		log.Warn("failed to enqueue request, leaving it for the stale-request monitor", "error", err)
	}

	log.Info("request submitted", "payload_bytes", len(payload))
	return id, nil
}

// GetStatus implements RequestService.GetStatus
func (s *requestServiceImpl) GetStatus(ctx context.Context, id uuid.UUID) (*StatusView, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	req, err := s.requests.GetRequest(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrRequestNotFound) {
			log.Error("failed to load request", "request_id", id, "error", err)
		}
		return nil, NewServiceError("request", "get_status", err)
	}

	results, err := s.requests.GetRowResults(ctx, id)
	if err != nil {
		log.Error("failed to load row results", "request_id", id, "error", err)
		return nil, NewServiceError("request", "get_status", err)
	}
	if results == nil {
		results = []domain.RowResult{}
	}

	return &StatusView{
		RequestID:    req.ID,
		Status:       req.Status,
		ErrorMessage: req.ErrorMessage,
		Attempts:     req.Attempts,
		CreatedAt:    req.CreatedAt,
		UpdatedAt:    req.UpdatedAt,
		Results:      results,
	}, nil
}
